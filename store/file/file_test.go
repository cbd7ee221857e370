package file

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/pv-load-manager/core/store"
)

func TestStore_LoadMissingFileReportsNotOK(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "settings.json"))
	settings, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, store.Settings{}, settings)
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "settings.json"))
	want := store.Settings{Mode: "pv_only", Enabled: true, HysteresisThresholdA: 3, HysteresisDelayS: 90, RampUpDelayS: 45}

	require.NoError(t, s.Save(want))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestStore_SaveOverwritesPreviousValue(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, s.Save(store.Settings{Mode: "pv_only"}))
	require.NoError(t, s.Save(store.Settings{Mode: "pv_plus_grid"}))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pv_plus_grid", got.Mode)
}
