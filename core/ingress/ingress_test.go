package ingress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/pv-load-manager/core/pv"
	"github.com/devskill-org/pv-load-manager/core/station"
)

func TestApplyStation_UpdatesCurrentStateAndConnectivity(t *testing.T) {
	tracker := station.NewTracker([]station.Config{{ID: 1, Name: "garage"}}, 30)

	ApplyStation(tracker, StationReading{
		StationID:        1,
		ActualCurrentA:   12.5,
		StatusRaw:        "Charging",
		VehicleConnected: true,
	}, 10)

	got, ok := tracker.Get(1)
	require.True(t, ok)
	assert.Equal(t, 12.5, got.ActualCurrentA)
	assert.Equal(t, station.Charging, got.State)
	assert.True(t, got.VehicleConnected)
}

func TestApplyStation_UnknownStatusMapsToOffline(t *testing.T) {
	tracker := station.NewTracker([]station.Config{{ID: 1, Name: "garage"}}, 30)

	ApplyStation(tracker, StationReading{StationID: 1, StatusRaw: "garbled", VehicleConnected: true}, 10)

	got, ok := tracker.Get(1)
	require.True(t, ok)
	assert.Equal(t, station.Offline, got.State)
}

func TestApplyPV_RecordsSurplusSample(t *testing.T) {
	data := pv.NewData()
	estimator := pv.NewEstimator(data, 230)

	ApplyPV(data, PVReading{SurplusW: 2300}, 10)

	assert.False(t, estimator.IsStale(10))
	assert.InDelta(t, 10.0, estimator.AvailableCurrentA(10), 1e-9)
}
