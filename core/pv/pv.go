// Package pv estimates available charging current from solar surplus power,
// with a short rolling window used to detect a noisy ("cloudy") feed and fall
// back to a conservative estimate rather than over-allocate current that
// would immediately need to be retracted.
package pv

import (
	"math"
	"sync"
)

const (
	// CloudDetectionWindowS bounds how much sample history is retained.
	CloudDetectionWindowS = 60.0
	// CloudDetectionVarianceThresholdW2 is the sample-variance threshold
	// (W^2) above which the feed is considered cloudy/noisy.
	CloudDetectionVarianceThresholdW2 = 500.0
	// StaleTimeoutS is how long surplus_w may go unrefreshed before the
	// estimator treats the feed as stale.
	StaleTimeoutS = 60.0
)

// Sample is a single PV surplus-power reading.
type Sample struct {
	SurplusW float64
	T        float64
}

// Data is the PV telemetry record: latest surplus, last-update time, and the
// insertion-ordered, window-bounded sample history used for cloud detection.
type Data struct {
	mu         sync.RWMutex
	surplusW   float64
	lastUpdate float64 // 0 == never
	history    []Sample
}

// NewData returns an empty PV data record.
func NewData() *Data {
	return &Data{}
}

// Apply records a new surplus reading, updates last-update, and appends to
// history, evicting samples older than CloudDetectionWindowS relative to t.
func (d *Data) Apply(surplusW float64, t float64) {
	if surplusW < 0 {
		surplusW = 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surplusW = surplusW
	d.lastUpdate = t
	d.history = append(d.history, Sample{SurplusW: surplusW, T: t})
	cutoff := t - CloudDetectionWindowS
	i := 0
	for ; i < len(d.history); i++ {
		if d.history[i].T >= cutoff {
			break
		}
	}
	d.history = d.history[i:]
}

// snapshot copies the fields needed by the estimator without holding the
// lock across computation.
func (d *Data) snapshot() (surplusW, lastUpdate float64, history []Sample) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	history = make([]Sample, len(d.history))
	copy(history, d.history)
	return d.surplusW, d.lastUpdate, history
}

// Estimator converts PV surplus watts into available charging current,
// applying stale detection and a variance-based conservative fallback.
type Estimator struct {
	data        *Data
	wattsPerAmp float64
}

// NewEstimator binds an Estimator to a PV data record and the budget's
// voltage*phases conversion factor.
func NewEstimator(data *Data, wattsPerAmp float64) *Estimator {
	return &Estimator{data: data, wattsPerAmp: wattsPerAmp}
}

// IsStale reports whether the feed has gone silent past StaleTimeoutS, or has
// never reported.
func (e *Estimator) IsStale(now float64) bool {
	_, lastUpdate, _ := e.data.snapshot()
	return lastUpdate == 0 || now-lastUpdate > StaleTimeoutS
}

// IsCloudy reports whether the sample-variance of the window exceeds the
// cloud-detection threshold. Requires at least 3 samples; uses the unbiased
// (n-1) estimator. Returns false if variance cannot be computed.
func (e *Estimator) IsCloudy() bool {
	_, _, history := e.data.snapshot()
	if len(history) < 3 {
		return false
	}
	v, ok := sampleVariance(history)
	if !ok {
		return false
	}
	return v > CloudDetectionVarianceThresholdW2
}

// AvailableCurrentA returns the current decision: 0 if stale, the
// window-minimum-derived conservative estimate if cloudy, else the nominal
// surplus/wattsPerAmp estimate. Always clamped to >= 0.
func (e *Estimator) AvailableCurrentA(now float64) float64 {
	if e.wattsPerAmp <= 0 {
		return 0
	}
	if e.IsStale(now) {
		return 0
	}
	surplusW, _, history := e.data.snapshot()
	if len(history) >= 3 {
		if v, ok := sampleVariance(history); ok && v > CloudDetectionVarianceThresholdW2 {
			return conservativeEstimate(history, e.wattsPerAmp)
		}
	}
	return clampNonNeg(surplusW / e.wattsPerAmp)
}

func conservativeEstimate(history []Sample, wattsPerAmp float64) float64 {
	min := math.Inf(1)
	for _, s := range history {
		if s.SurplusW < min {
			min = s.SurplusW
		}
	}
	return clampNonNeg(min / wattsPerAmp)
}

func clampNonNeg(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// sampleVariance computes the unbiased (n-1) sample variance of the surplus
// values in history. Returns ok=false when fewer than 2 samples are present.
func sampleVariance(history []Sample) (float64, bool) {
	n := len(history)
	if n < 2 {
		return 0, false
	}
	var sum float64
	for _, s := range history {
		sum += s.SurplusW
	}
	mean := sum / float64(n)
	var sq float64
	for _, s := range history {
		d := s.SurplusW - mean
		sq += d * d
	}
	return sq / float64(n-1), true
}
