package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFrame(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeSource struct {
	mu     sync.Mutex
	frames map[int][]byte
	calls  int
}

func (s *fakeSource) Frame(ctx context.Context, monitor int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.frames[monitor], nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeWindows struct {
	title string
	app   string
}

func (w *fakeWindows) FocusedWindow(ctx context.Context) (string, string, error) {
	return w.title, w.app, nil
}

type fakeIdle struct {
	idle time.Duration
}

func (p *fakeIdle) IdleDuration(ctx context.Context) (time.Duration, error) {
	return p.idle, nil
}

type recordingSink struct {
	mu       sync.Mutex
	captures []*Capture
}

func (s *recordingSink) Enqueue(ctx context.Context, c *Capture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures = append(s.captures, c)
	return nil
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captures)
}

func newTestController(source FrameSource, windows WindowInspector, idle IdleProbe, sink Sink, excluded []string) *Controller {
	return NewController(
		Config{TickInterval: time.Second, IdleThreshold: 2 * time.Minute, MonitorCount: 1},
		source,
		windows,
		idle,
		NewDetector(30*time.Second, 10),
		NewExclusionList(excluded),
		sink,
	)
}

func TestTickCapturesChangedFrame(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{frames: map[int][]byte{0: encodeFrame(t, color.White)}}
	sink := &recordingSink{}
	c := newTestController(source, &fakeWindows{title: "editor"}, &fakeIdle{}, sink, nil)

	c.tick(ctx)
	require.Equal(t, 1, sink.len())

	capture := sink.captures[0]
	assert.NotEmpty(t, capture.ItemID)
	assert.Equal(t, 0, capture.Monitor)
	assert.Equal(t, "image/png", capture.MimeType)
	assert.NotEmpty(t, capture.Data)

	// Identical frame inside the interval: nothing new.
	c.tick(ctx)
	assert.Equal(t, 1, sink.len())
}

func TestTickSkipsExcludedWindowBeforeAcquisition(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{frames: map[int][]byte{0: encodeFrame(t, color.White)}}
	sink := &recordingSink{}
	c := newTestController(source, &fakeWindows{title: "1Password - vault"}, &fakeIdle{}, sink, []string{"1password"})

	c.tick(ctx)
	assert.Equal(t, 0, sink.len())
	assert.Equal(t, 0, source.callCount(), "no frame may be acquired while excluded")
}

func TestTickSkipsWhenIdle(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{frames: map[int][]byte{0: encodeFrame(t, color.White)}}
	sink := &recordingSink{}
	c := newTestController(source, &fakeWindows{title: "editor"}, &fakeIdle{idle: 5 * time.Minute}, sink, nil)

	c.tick(ctx)
	assert.Equal(t, 0, sink.len())
	assert.Equal(t, 0, source.callCount())
}

func TestPauseResumeStop(t *testing.T) {
	source := &fakeSource{frames: map[int][]byte{0: encodeFrame(t, color.White)}}
	sink := &recordingSink{}
	c := newTestController(source, &fakeWindows{title: "editor"}, &fakeIdle{}, sink, nil)

	assert.Equal(t, StateRunning, c.State())

	c.Pause()
	assert.Equal(t, StatePaused, c.State())

	c.Resume()
	assert.Equal(t, StateRunning, c.State())

	c.Stop()
	assert.Equal(t, StateStopped, c.State())
	c.Resume()
	assert.Equal(t, StateStopped, c.State(), "a stopped controller stays stopped")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{frames: map[int][]byte{0: encodeFrame(t, color.White)}}
	sink := &recordingSink{}
	c := NewController(
		Config{TickInterval: 10 * time.Millisecond, MonitorCount: 1},
		source,
		&fakeWindows{title: "editor"},
		&fakeIdle{},
		NewDetector(time.Hour, 10),
		NewExclusionList(nil),
		sink,
	)

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sink.len() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop on cancel")
	}
	assert.Equal(t, StateStopped, c.State())
}

// blockingSource hangs until the per-call context is cancelled, like a
// screenshot helper that never exits.
type blockingSource struct {
	mu    sync.Mutex
	calls int
}

func (s *blockingSource) Frame(ctx context.Context, monitor int) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *blockingSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestRunSurvivesHungAcquisition(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &blockingSource{}
	sink := &recordingSink{}
	c := NewController(
		Config{TickInterval: 20 * time.Millisecond, MonitorCount: 1},
		source,
		&fakeWindows{title: "editor"},
		&fakeIdle{},
		NewDetector(time.Hour, 10),
		NewExclusionList(nil),
		sink,
	)

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// The hung acquisition times out each tick, so the loop keeps retrying
	// instead of blocking on the first call forever.
	assert.Eventually(t, func() bool { return source.callCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, sink.len())

	c.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not observe stop")
	}
}

func TestHashFrameDistinguishesFrames(t *testing.T) {
	white, err := HashFrame(encodeFrame(t, color.White))
	require.NoError(t, err)
	whiteAgain, err := HashFrame(encodeFrame(t, color.White))
	require.NoError(t, err)
	assert.Equal(t, 0, white.Distance(whiteAgain))

	_, err = HashFrame([]byte("not an image"))
	assert.Error(t, err)
}
