package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the controller lifecycle state.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Capture is one frame accepted by the change detector, ready for upload.
type Capture struct {
	ItemID     string
	CapturedAt time.Time
	Monitor    int
	MimeType   string
	Data       []byte
}

// Sink receives accepted captures. The durable upload queue implements it.
type Sink interface {
	Enqueue(ctx context.Context, c *Capture) error
}

// Config tunes one controller.
type Config struct {
	TickInterval  time.Duration
	IdleThreshold time.Duration
	MonitorCount  int
}

// Controller drives the capture loop: every tick it checks idle time and the
// focused window, then runs change detection per monitor and hands accepted
// frames to the sink. Pause, Resume and Stop take effect within one tick.
type Controller struct {
	config    Config
	source    FrameSource
	windows   WindowInspector
	idle      IdleProbe
	detector  *Detector
	exclusion *ExclusionList
	sink      Sink

	mu    sync.Mutex
	state State
}

func NewController(
	config Config,
	source FrameSource,
	windows WindowInspector,
	idle IdleProbe,
	detector *Detector,
	exclusion *ExclusionList,
	sink Sink,
) *Controller {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.MonitorCount <= 0 {
		config.MonitorCount = 1
	}
	return &Controller{
		config:    config,
		source:    source,
		windows:   windows,
		idle:      idle,
		detector:  detector,
		exclusion: exclusion,
		sink:      sink,
		state:     StateRunning,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pause suspends capturing. The loop keeps ticking so Resume is picked up.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		c.state = StatePaused
		slog.Info("capture paused")
	}
}

// Resume restarts capturing. Detector state is cleared so the first frame
// after a pause always captures.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePaused {
		c.state = StateRunning
		c.detector.Reset()
		slog.Info("capture resumed")
	}
}

// Stop ends the loop permanently. A stopped controller cannot be resumed.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateStopped
	slog.Info("capture stopped")
}

// Run drives the tick loop until Stop is called or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	slog.Info("capture controller started",
		"tick_interval", c.config.TickInterval,
		"monitors", c.config.MonitorCount,
	)
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case <-ticker.C:
			switch c.State() {
			case StateStopped:
				return
			case StatePaused:
				continue
			}
			// Each tick gets its own deadline so a hung helper command
			// cannot wedge the loop; the child process is killed and the
			// next tick starts fresh.
			tickCtx, cancel := context.WithTimeout(ctx, c.config.TickInterval)
			c.tick(tickCtx)
			cancel()
		}
	}
}

// tick runs one capture cycle. Acquisition failures are logged and the cycle
// moves on; a flaky screenshot tool must not kill the agent.
func (c *Controller) tick(ctx context.Context) {
	if c.idle != nil {
		idleFor, err := c.idle.IdleDuration(ctx)
		if err != nil {
			slog.Warn("idle probe failed", "error", err)
		} else if c.config.IdleThreshold > 0 && idleFor >= c.config.IdleThreshold {
			return
		}
	}

	// Exclusion is checked before any frame is acquired or hashed, so
	// excluded content never exists outside the compositor.
	if c.windows != nil {
		title, app, err := c.windows.FocusedWindow(ctx)
		if err != nil {
			slog.Warn("window inspection failed", "error", err)
		} else if c.exclusion.Matches(title, app) {
			return
		}
	}

	for monitor := 0; monitor < c.config.MonitorCount; monitor++ {
		c.captureMonitor(ctx, monitor)
	}
}

func (c *Controller) captureMonitor(ctx context.Context, monitor int) {
	frame, err := c.source.Frame(ctx, monitor)
	if err != nil {
		slog.Warn("frame acquisition failed", "monitor", monitor, "error", err)
		return
	}
	h, err := HashFrame(frame)
	if err != nil {
		slog.Warn("frame hashing failed", "monitor", monitor, "error", err)
		return
	}
	if !c.detector.ShouldCapture(monitor, h) {
		return
	}

	capture := &Capture{
		ItemID:     uuid.NewString(),
		CapturedAt: time.Now(),
		Monitor:    monitor,
		MimeType:   "image/png",
		Data:       frame,
	}
	if err := c.sink.Enqueue(ctx, capture); err != nil {
		slog.Error("failed to enqueue capture", "monitor", monitor, "error", err)
	}
}
