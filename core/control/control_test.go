package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/pv-load-manager/core/allocate"
	"github.com/devskill-org/pv-load-manager/core/store"
)

type memStore struct {
	settings store.Settings
	ok       bool
	saves    int
}

func (m *memStore) Load() (store.Settings, bool, error) { return m.settings, m.ok, nil }
func (m *memStore) Save(s store.Settings) error {
	m.settings = s
	m.ok = true
	m.saves++
	return nil
}

func defaultTun() allocate.Tunables {
	return allocate.Tunables{HysteresisThresholdA: 2, HysteresisDelayS: 120, RampUpDelayS: 30}
}

func TestNew_NoPersistedSettingsUsesDefaults(t *testing.T) {
	c, err := New(&memStore{}, defaultTun())
	require.NoError(t, err)
	assert.Equal(t, allocate.PVPlusGrid, c.Mode())
	assert.True(t, c.Enabled())
}

func TestNew_PersistedSettingsOverrideDefaults(t *testing.T) {
	st := &memStore{ok: true, settings: store.Settings{Mode: "pv_only", Enabled: false, HysteresisThresholdA: 5}}
	c, err := New(st, defaultTun())
	require.NoError(t, err)
	assert.Equal(t, allocate.PVOnly, c.Mode())
	assert.False(t, c.Enabled())
	assert.Equal(t, 5.0, c.Tunables().HysteresisThresholdA)
}

func TestSetMode_ValidatesAndPersists(t *testing.T) {
	st := &memStore{}
	c, _ := New(st, defaultTun())

	require.NoError(t, c.SetMode("PV_ONLY"))
	assert.Equal(t, allocate.PVOnly, c.Mode())
	assert.Equal(t, 1, st.saves)

	err := c.SetMode("bogus")
	assert.Error(t, err)
	assert.Equal(t, allocate.PVOnly, c.Mode()) // unchanged on error
}

func TestSetMode_AcceptsOnOffAliases(t *testing.T) {
	st := &memStore{}
	c, _ := New(st, defaultTun())

	require.NoError(t, c.SetMode("off"))
	assert.Equal(t, allocate.PVOnly, c.Mode())

	require.NoError(t, c.SetMode("ON"))
	assert.Equal(t, allocate.PVPlusGrid, c.Mode())

	require.NoError(t, c.SetMode("false"))
	assert.Equal(t, allocate.PVOnly, c.Mode())

	require.NoError(t, c.SetMode("true"))
	assert.Equal(t, allocate.PVPlusGrid, c.Mode())
}

func TestSetEnabled_AcceptsAliases(t *testing.T) {
	st := &memStore{}
	c, _ := New(st, defaultTun())

	require.NoError(t, c.SetEnabled("off"))
	assert.False(t, c.Enabled())
	require.NoError(t, c.SetEnabled("true"))
	assert.True(t, c.Enabled())

	assert.Error(t, c.SetEnabled("maybe"))
}

func TestSetHysteresisThreshold_RejectsOutOfRange(t *testing.T) {
	st := &memStore{}
	c, _ := New(st, defaultTun())

	assert.Error(t, c.SetHysteresisThreshold(-1))
	assert.Error(t, c.SetHysteresisThreshold(21))
	require.NoError(t, c.SetHysteresisThreshold(10))
	assert.Equal(t, 10.0, c.Tunables().HysteresisThresholdA)
}

func TestSetRampUpDelay_RejectsOutOfRange(t *testing.T) {
	st := &memStore{}
	c, _ := New(st, defaultTun())

	assert.Error(t, c.SetRampUpDelay(-1))
	assert.Error(t, c.SetRampUpDelay(301))
	require.NoError(t, c.SetRampUpDelay(60))
	assert.Equal(t, 60.0, c.Tunables().RampUpDelayS)
}
