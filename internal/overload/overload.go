package overload

import (
	"time"

	"github.com/kjstillabower/farm-weather-service/internal/traffic"
)

// Detector reports whether inbound weather traffic exceeds a share of rate-limiter capacity.
type Detector struct {
	tracker   *traffic.Tracker
	window    time.Duration
	threshold float64
}

// NewDetector returns a Detector that trips when outcomes within window (successes, errors and
// denials) exceed thresholdPct of rps*window. Zero rps, window or thresholdPct disables detection.
func NewDetector(tracker *traffic.Tracker, window time.Duration, rps, thresholdPct int) *Detector {
	d := &Detector{tracker: tracker, window: window}
	if rps > 0 && thresholdPct > 0 && window > 0 {
		d.threshold = float64(rps) * window.Seconds() * float64(thresholdPct) / 100
	}
	return d
}

// Overloaded reports whether the request count in the window is above the threshold.
func (d *Detector) Overloaded() bool {
	if d == nil || d.tracker == nil || d.threshold <= 0 {
		return false
	}
	return float64(d.tracker.RequestCount(d.window)) > d.threshold
}

// Threshold returns the request count above which the detector trips (0 when disabled).
func (d *Detector) Threshold() int {
	if d == nil {
		return 0
	}
	return int(d.threshold)
}

// DenialCount returns the rate-limit denials within the window.
func (d *Detector) DenialCount() int {
	if d == nil || d.tracker == nil {
		return 0
	}
	return d.tracker.DenialCount(d.window)
}
