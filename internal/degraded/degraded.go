package degraded

import (
	"time"

	"github.com/kjstillabower/farm-weather-service/internal/traffic"
)

// Detector reports whether the weather routes' error rate has breached the configured threshold.
type Detector struct {
	tracker      *traffic.Tracker
	window       time.Duration
	thresholdPct int
}

// NewDetector returns a Detector over tracker. A zero window or threshold disables detection.
func NewDetector(tracker *traffic.Tracker, window time.Duration, thresholdPct int) *Detector {
	return &Detector{tracker: tracker, window: window, thresholdPct: thresholdPct}
}

// Degraded reports whether errors/(errors+successes) within the window is at or above the threshold.
// No outcomes in the window is never degraded.
func (d *Detector) Degraded() bool {
	if d == nil || d.tracker == nil || d.window <= 0 || d.thresholdPct <= 0 {
		return false
	}
	pct, ok := d.tracker.ErrorRatePct(d.window)
	return ok && pct >= float64(d.thresholdPct)
}

// ErrorRate returns (errorCount, totalCount) within the detector's window.
func (d *Detector) ErrorRate() (errors, total int) {
	if d == nil || d.tracker == nil {
		return 0, 0
	}
	return d.tracker.ErrorRate(d.window)
}
