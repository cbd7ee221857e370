package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/pv-load-manager/core/allocate"
	"github.com/devskill-org/pv-load-manager/core/clock"
	"github.com/devskill-org/pv-load-manager/core/control"
	"github.com/devskill-org/pv-load-manager/core/pv"
	"github.com/devskill-org/pv-load-manager/core/station"
	"github.com/devskill-org/pv-load-manager/core/store"
)

type nullStore struct{}

func (nullStore) Load() (store.Settings, bool, error) { return store.Settings{}, false, nil }
func (nullStore) Save(store.Settings) error           { return nil }

func newTestHealthServer(t *testing.T) *HealthServer {
	t.Helper()
	ctrl, err := control.New(nullStore{}, allocate.Tunables{HysteresisThresholdA: 2, HysteresisDelayS: 120, RampUpDelayS: 30})
	require.NoError(t, err)

	stations := station.NewTracker([]station.Config{{ID: 1, Name: "garage"}}, 30)
	estimator := pv.NewEstimator(pv.NewData(), 230)
	clk := clock.NewFake(0)

	hs := NewHealthServer(ctrl, stations, estimator, clk, 9999, nil)
	require.NotNil(t, hs)
	return hs
}

func TestNewHealthServer_DisabledWhenPortNonPositive(t *testing.T) {
	ctrl, err := control.New(nullStore{}, allocate.Tunables{})
	require.NoError(t, err)
	stations := station.NewTracker(nil, 30)
	estimator := pv.NewEstimator(pv.NewData(), 230)

	hs := NewHealthServer(ctrl, stations, estimator, clock.NewFake(0), 0, nil)
	assert.Nil(t, hs)
	assert.NotPanics(t, func() { hs.Start() })
}

func TestHealthHandler_ReportsEnabledModeAndStaleness(t *testing.T) {
	hs := newTestHealthServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	hs.healthHandler(rr, req)

	require.Equal(t, 200, rr.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.Enabled)
	assert.Equal(t, "pv_plus_grid", resp.Mode)
	assert.Equal(t, 1, resp.Stations)
	assert.True(t, resp.PVStale)
}

func TestReadinessHandler_NotReadyWhenDisabled(t *testing.T) {
	hs := newTestHealthServer(t)
	require.NoError(t, hs.control.SetEnabled("off"))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ready", nil)
	hs.readinessHandler(rr, req)

	assert.Equal(t, 503, rr.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
}
