package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := DefaultConfig()
	c.Stations = []StationEntry{
		{ID: 1, Name: "garage", Address: map[string]string{"host_port": "10.0.0.5:502", "slave_id": "1"}},
	}
	return c
}

func TestValidate_RejectsEmptyStations(t *testing.T) {
	c := validConfig()
	c.Stations = nil
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsDuplicateStationIDs(t *testing.T) {
	c := validConfig()
	c.Stations = append(c.Stations, StationEntry{ID: 1, Name: "dup"})
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsInvalidMode(t *testing.T) {
	c := validConfig()
	c.Mode = "eco"
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsOutOfRangeHysteresisThreshold(t *testing.T) {
	c := validConfig()
	c.HysteresisThresholdA = 25
	assert.Error(t, c.Validate())
}

func TestValidate_AcceptsDefaultConfigPlusStations(t *testing.T) {
	c := validConfig()
	assert.NoError(t, c.Validate())
}

func TestConfig_MarshalUnmarshalRoundTripsMeasurementInterval(t *testing.T) {
	c := validConfig()
	c.MeasurementInterval = 15 * time.Second

	var buf bytes.Buffer
	require.NoError(t, c.SaveConfigToWriter(&buf))

	loaded, err := LoadConfigFromReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, loaded.MeasurementInterval)
	assert.Equal(t, c.Stations[0].ID, loaded.Stations[0].ID)
}

func TestStationConfigs_ConvertsToCoreStationConfig(t *testing.T) {
	c := validConfig()
	sc := c.StationConfigs()
	require.Len(t, sc, 1)
	assert.Equal(t, 1, sc[0].ID)
	assert.Equal(t, "garage", sc[0].Name)
}
