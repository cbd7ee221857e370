package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFromStatusString(t *testing.T) {
	cases := map[string]State{
		"Active":        Idle,
		"sleeping":      Idle,
		"Charging":      Charging,
		"disabled":      Paused,
		"Not Connected": NotConnected,
		"ERROR":         Error,
		"garbage":       Offline,
		"":              Offline,
	}
	for raw, want := range cases {
		assert.Equal(t, want, StateFromStatusString(raw), "raw=%q", raw)
	}
}

func TestTracker_NewTrackerStartsOffline(t *testing.T) {
	tr := NewTracker([]Config{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, 30)
	all := tr.All()
	require.Len(t, all, 2)
	for _, s := range all {
		assert.Equal(t, Offline, s.State)
		assert.False(t, s.VehicleConnected)
	}
}

func TestTracker_ApplyStateReadingClearsPausePendingOnLeavingCharging(t *testing.T) {
	tr := NewTracker([]Config{{ID: 1}}, 30)
	tr.ApplyStateReading(1, "charging", 10)
	tr.UpdateAllocationTracking(1, 6, 10, floatPtr(10))

	s, ok := tr.Get(1)
	require.True(t, ok)
	require.NotNil(t, s.PausePendingSince)

	tr.ApplyStateReading(1, "active", 20)
	s, _ = tr.Get(1)
	assert.Nil(t, s.PausePendingSince)
	assert.Equal(t, Idle, s.State)
}

func TestTracker_ApplyLivenessDemotesStaleStation(t *testing.T) {
	tr := NewTracker([]Config{{ID: 1}}, 30)
	tr.ApplyStateReading(1, "charging", 10)
	tr.ApplyLiveness(41) // 31s since last_seen, window is 30
	s, _ := tr.Get(1)
	assert.Equal(t, Offline, s.State)
}

func TestTracker_ApplyLivenessLeavesFreshStationAlone(t *testing.T) {
	tr := NewTracker([]Config{{ID: 1}}, 30)
	tr.ApplyStateReading(1, "charging", 10)
	tr.ApplyLiveness(35) // 25s since last_seen, within window
	s, _ := tr.Get(1)
	assert.Equal(t, Charging, s.State)
}

func TestTracker_ActiveStationsExcludesDisconnected(t *testing.T) {
	tr := NewTracker([]Config{{ID: 1}, {ID: 2}}, 30)
	tr.ApplyStateReading(1, "charging", 10)
	tr.ApplyVehicleConnected(1, true, 10)
	tr.ApplyStateReading(2, "charging", 10)
	// station 2 never gets a connected reading.

	active := tr.ActiveStations()
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].ID)
}

func TestTracker_ActiveStationsExcludesOfflineAndError(t *testing.T) {
	tr := NewTracker([]Config{{ID: 1}, {ID: 2}}, 30)
	tr.ApplyVehicleConnected(1, true, 10)
	tr.ApplyStateReading(1, "error", 10)
	tr.ApplyVehicleConnected(2, true, 10)
	tr.ApplyStateReading(2, "charging", 10)

	active := tr.ActiveStations()
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].ID)
}

func TestTracker_ClearLastSetpointSent(t *testing.T) {
	tr := NewTracker([]Config{{ID: 1}}, 30)
	tr.UpdateLastSetpointSent(1, 6)
	s, _ := tr.Get(1)
	require.NotNil(t, s.LastSetpointSentA)

	tr.ClearLastSetpointSent()
	s, _ = tr.Get(1)
	assert.Nil(t, s.LastSetpointSentA)
}

func floatPtr(v float64) *float64 { return &v }
