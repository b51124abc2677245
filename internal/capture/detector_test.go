package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestDetector(minInterval time.Duration, threshold int, clock *fakeClock) *Detector {
	d := NewDetector(minInterval, threshold)
	d.now = clock.Now
	return d
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func TestDetectorFirstFrameAlwaysCaptures(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	d := newTestDetector(30*time.Second, 10, clock)

	assert.True(t, d.ShouldCapture(0, 0))
	assert.True(t, d.ShouldCapture(1, 0), "monitors have independent state")
}

func TestDetectorIntervalTrigger(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	d := newTestDetector(30*time.Second, 10, clock)

	assert.True(t, d.ShouldCapture(0, 0))

	// Identical frame inside the interval: no capture.
	clock.Advance(10 * time.Second)
	assert.False(t, d.ShouldCapture(0, 0))

	// Still identical, but the interval elapsed.
	clock.Advance(25 * time.Second)
	assert.True(t, d.ShouldCapture(0, 0))
}

func TestDetectorThresholdTrigger(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	d := newTestDetector(30*time.Second, 10, clock)

	assert.True(t, d.ShouldCapture(0, 0))

	clock.Advance(time.Second)
	// 10 bits differ: at the threshold, not above it.
	atThreshold := Hash(1<<10 - 1)
	assert.False(t, d.ShouldCapture(0, atThreshold))

	// 11 bits differ: above the threshold, captures early.
	aboveThreshold := Hash(1<<11 - 1)
	assert.True(t, d.ShouldCapture(0, aboveThreshold))
}

func TestDetectorBaselineAdvancesOnlyOnCapture(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	d := newTestDetector(30*time.Second, 10, clock)

	assert.True(t, d.ShouldCapture(0, 0))

	// Drift by 6 bits per tick. Each frame is within the threshold of the
	// original baseline at first, but the baseline must not drift with it.
	clock.Advance(time.Second)
	assert.False(t, d.ShouldCapture(0, Hash(1<<6-1)))

	clock.Advance(time.Second)
	// 12 bits away from the baseline, 6 from the last skipped frame.
	assert.True(t, d.ShouldCapture(0, Hash(1<<12-1)))
}

func TestDetectorReset(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	d := newTestDetector(30*time.Second, 10, clock)

	assert.True(t, d.ShouldCapture(0, 0))
	d.Reset()
	assert.True(t, d.ShouldCapture(0, 0))
}

func TestHashDistance(t *testing.T) {
	assert.Equal(t, 0, Hash(0).Distance(0))
	assert.Equal(t, 64, Hash(0).Distance(^Hash(0)))
	assert.Equal(t, 3, Hash(0b111).Distance(0))
}

func TestExclusionList(t *testing.T) {
	e := NewExclusionList([]string{"1Password", " banking ", ""})

	assert.True(t, e.Matches("1password - vault", "browser"))
	assert.True(t, e.Matches("Home", "Banking App"))
	assert.False(t, e.Matches("editor", "code"))

	empty := NewExclusionList(nil)
	assert.False(t, empty.Matches("1password", "1password"))
}
