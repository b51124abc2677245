package capture

import "time"

// Detector decides, per monitor, whether a frame changed enough to capture.
// The rule is hybrid: capture when the minimum interval since the last
// capture elapsed, or earlier when the perceptual hash distance exceeds the
// threshold. State advances only when a capture is triggered, so skipped
// frames keep comparing against the last captured frame rather than drifting
// with gradual change.
type Detector struct {
	minInterval time.Duration
	threshold   int

	lastHash    map[int]Hash
	lastCapture map[int]time.Time
	now         func() time.Time
}

func NewDetector(minInterval time.Duration, threshold int) *Detector {
	return &Detector{
		minInterval: minInterval,
		threshold:   threshold,
		lastHash:    make(map[int]Hash),
		lastCapture: make(map[int]time.Time),
		now:         time.Now,
	}
}

// ShouldCapture reports whether the frame on the given monitor warrants a
// capture and, if so, records it as the new baseline. The first frame on a
// monitor always captures.
func (d *Detector) ShouldCapture(monitor int, h Hash) bool {
	now := d.now()
	last, seen := d.lastCapture[monitor]
	if !seen {
		d.commit(monitor, h, now)
		return true
	}

	if now.Sub(last) >= d.minInterval {
		d.commit(monitor, h, now)
		return true
	}
	if d.lastHash[monitor].Distance(h) > d.threshold {
		d.commit(monitor, h, now)
		return true
	}
	return false
}

func (d *Detector) commit(monitor int, h Hash, t time.Time) {
	d.lastHash[monitor] = h
	d.lastCapture[monitor] = t
}

// Reset clears all per-monitor state. The next frame on every monitor
// captures unconditionally.
func (d *Detector) Reset() {
	d.lastHash = make(map[int]Hash)
	d.lastCapture = make(map[int]time.Time)
}
