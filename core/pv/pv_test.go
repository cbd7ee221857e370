package pv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimator_IsStaleNeverUpdated(t *testing.T) {
	e := NewEstimator(NewData(), 230)
	assert.True(t, e.IsStale(100))
}

func TestEstimator_IsStaleAfterTimeout(t *testing.T) {
	d := NewData()
	d.Apply(1000, 10)
	e := NewEstimator(d, 230)
	assert.False(t, e.IsStale(40))
	assert.True(t, e.IsStale(71))
}

func TestEstimator_AvailableCurrentNominal(t *testing.T) {
	d := NewData()
	d.Apply(2300, 10)
	e := NewEstimator(d, 230)
	assert.InDelta(t, 10.0, e.AvailableCurrentA(10), 1e-9)
}

func TestEstimator_AvailableCurrentStaleIsZero(t *testing.T) {
	d := NewData()
	d.Apply(2300, 0)
	e := NewEstimator(d, 230)
	assert.Equal(t, 0.0, e.AvailableCurrentA(100))
}

func TestEstimator_NegativeSurplusClampedToZero(t *testing.T) {
	d := NewData()
	d.Apply(-500, 10)
	e := NewEstimator(d, 230)
	assert.Equal(t, 0.0, e.AvailableCurrentA(10))
}

func TestEstimator_CloudyFeedUsesConservativeEstimate(t *testing.T) {
	d := NewData()
	// A noisy feed: alternating low/high readings with high variance.
	d.Apply(500, 0)
	d.Apply(4000, 10)
	d.Apply(500, 20)
	d.Apply(4000, 30)
	e := NewEstimator(d, 230)

	assert.True(t, e.IsCloudy())
	// Conservative estimate uses the window minimum, not the latest sample.
	assert.InDelta(t, 500.0/230.0, e.AvailableCurrentA(30), 1e-9)
}

func TestEstimator_StableFeedUsesNominalEstimate(t *testing.T) {
	d := NewData()
	d.Apply(2300, 0)
	d.Apply(2310, 10)
	d.Apply(2290, 20)
	e := NewEstimator(d, 230)

	assert.False(t, e.IsCloudy())
	assert.InDelta(t, 2290.0/230.0, e.AvailableCurrentA(20), 1e-9)
}

func TestData_ApplyEvictsOldSamplesOutsideWindow(t *testing.T) {
	d := NewData()
	d.Apply(100, 0)
	d.Apply(200, 70) // window is 60s, so the first sample should be evicted
	_, _, history := d.snapshot()
	assert.Len(t, history, 1)
	assert.Equal(t, 200.0, history[0].SurplusW)
}

func TestEstimator_ZeroWattsPerAmpIsZero(t *testing.T) {
	d := NewData()
	d.Apply(2300, 10)
	e := NewEstimator(d, 0)
	assert.Equal(t, 0.0, e.AvailableCurrentA(10))
}
