// Package config loads and validates the application configuration: station
// inventory, budget parameters, default tunables, persistence backend
// selection, and ambient settings (logging, dry-run, health port), mirroring
// the JSON-file-with-custom-duration-marshaling convention used throughout
// this codebase.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devskill-org/pv-load-manager/core/station"
)

// StationEntry is one configured station: its identity plus the opaque
// transport address tokens its ingress/dispatch adapters resolve.
type StationEntry struct {
	ID      int               `json:"id"`
	Name    string            `json:"name"`
	Address map[string]string `json:"address"`
}

// Config is the full application configuration.
type Config struct {
	// Station inventory.
	Stations []StationEntry `json:"stations"`

	// Budget.
	TotalCurrentLimitA int `json:"total_current_limit_a"`
	VoltageV           int `json:"voltage_v"`
	Phases             int `json:"phases"`

	// Default tunables, overridden at runtime by core/control and persisted
	// via the settings store thereafter.
	Mode                 string        `json:"mode"`
	HysteresisThresholdA float64       `json:"hysteresis_threshold_a"`
	HysteresisDelayS     float64       `json:"hysteresis_delay_s"`
	RampUpDelayS         float64       `json:"ramp_up_delay_s"`
	MeasurementInterval  time.Duration `json:"measurement_interval"`

	// Ingress/dispatch transport selection: "modbus" or "ws".
	IngressTransport  string `json:"ingress_transport"`
	DispatchTransport string `json:"dispatch_transport"`

	// PV telemetry source address, interpreted by the selected ingress
	// transport the same way a station Address map entry is.
	PVAddress map[string]string `json:"pv_address"`

	// PVSource selects how the modbus ingress transport interprets
	// PVAddress: "generic" (single surplus-power register) or "sigenergy"
	// (a Sigenergy plant's running-info block, surplus derived from
	// photovoltaic and grid-sensor power). Has no effect when
	// IngressTransport is "ws".
	PVSource string `json:"pv_source"`

	// HTTP/websocket operator server.
	ListenAddress string `json:"listen_address"`

	// Latitude/longitude feed the instantaneous (non-forecast) sun-position
	// summary only; they never reach the allocation engine.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Settings persistence backend: "file" or "postgres".
	SettingsStoreKind string `json:"settings_store_kind"`
	SettingsFilePath  string `json:"settings_file_path"`
	PostgresConnStr   string `json:"postgres_conn_string"`

	DryRun          bool   `json:"dry_run"`
	LogLevel        string `json:"log_level"`
	HealthCheckPort int    `json:"health_check_port"`
}

// DefaultConfig returns a configuration with the spec's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Stations:             nil,
		TotalCurrentLimitA:   32,
		VoltageV:             230,
		Phases:               1,
		Mode:                 "pv_only",
		HysteresisThresholdA: 2.0,
		HysteresisDelayS:     120,
		RampUpDelayS:         30,
		MeasurementInterval:  10 * time.Second,
		IngressTransport:     "modbus",
		DispatchTransport:    "modbus",
		PVSource:             "generic",
		ListenAddress:        ":8080",
		Latitude:             56.9496,
		Longitude:            24.1052,
		SettingsStoreKind:    "file",
		SettingsFilePath:     "settings.json",
		DryRun:               false,
		LogLevel:             "info",
		HealthCheckPort:      0,
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a JSON file.
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()
	return c.SaveConfigToWriter(file)
}

// SaveConfigToWriter saves the configuration to an io.Writer.
func (c *Config) SaveConfigToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Stations) == 0 {
		return fmt.Errorf("stations cannot be empty")
	}
	seen := make(map[int]bool, len(c.Stations))
	for _, s := range c.Stations {
		if s.ID == 0 {
			return fmt.Errorf("station %q: id must be nonzero", s.Name)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate station id %d", s.ID)
		}
		seen[s.ID] = true
	}

	if c.TotalCurrentLimitA <= 0 {
		return fmt.Errorf("total_current_limit_a must be positive, got: %d", c.TotalCurrentLimitA)
	}
	if c.VoltageV <= 0 {
		return fmt.Errorf("voltage_v must be positive, got: %d", c.VoltageV)
	}
	if c.Phases <= 0 {
		return fmt.Errorf("phases must be positive, got: %d", c.Phases)
	}

	if c.Mode != "pv_only" && c.Mode != "pv_plus_grid" {
		return fmt.Errorf("invalid mode: %s, must be pv_only or pv_plus_grid", c.Mode)
	}

	if c.HysteresisThresholdA < 0 || c.HysteresisThresholdA > 20 {
		return fmt.Errorf("hysteresis_threshold_a must be between 0 and 20, got: %f", c.HysteresisThresholdA)
	}
	if c.HysteresisDelayS < 0 || c.HysteresisDelayS > 600 {
		return fmt.Errorf("hysteresis_delay_s must be between 0 and 600, got: %f", c.HysteresisDelayS)
	}
	if c.RampUpDelayS < 0 || c.RampUpDelayS > 300 {
		return fmt.Errorf("ramp_up_delay_s must be between 0 and 300, got: %f", c.RampUpDelayS)
	}
	if c.MeasurementInterval <= 0 {
		return fmt.Errorf("measurement_interval must be greater than 0, got: %s", c.MeasurementInterval)
	}

	validTransports := map[string]bool{"modbus": true, "ws": true}
	if !validTransports[c.IngressTransport] {
		return fmt.Errorf("invalid ingress_transport: %s, must be modbus or ws", c.IngressTransport)
	}
	if !validTransports[c.DispatchTransport] {
		return fmt.Errorf("invalid dispatch_transport: %s, must be modbus or ws", c.DispatchTransport)
	}

	validPVSources := map[string]bool{"generic": true, "sigenergy": true}
	if !validPVSources[c.PVSource] {
		return fmt.Errorf("invalid pv_source: %s, must be generic or sigenergy", c.PVSource)
	}

	validStores := map[string]bool{"file": true, "postgres": true}
	if !validStores[c.SettingsStoreKind] {
		return fmt.Errorf("invalid settings_store_kind: %s, must be file or postgres", c.SettingsStoreKind)
	}
	if c.SettingsStoreKind == "file" && c.SettingsFilePath == "" {
		return fmt.Errorf("settings_file_path cannot be empty when settings_store_kind is file")
	}
	if c.SettingsStoreKind == "postgres" && c.PostgresConnStr == "" {
		return fmt.Errorf("postgres_conn_string cannot be empty when settings_store_kind is postgres")
	}

	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s, must be one of: debug, info, warn, error", c.LogLevel)
	}

	if c.HealthCheckPort < 0 || c.HealthCheckPort > 65535 {
		return fmt.Errorf("health_check_port must be between 0 and 65535, got: %d", c.HealthCheckPort)
	}

	return nil
}

// StationConfigs converts the configured station inventory into the
// core/station package's Config type.
func (c *Config) StationConfigs() []station.Config {
	out := make([]station.Config, 0, len(c.Stations))
	for _, s := range c.Stations {
		out = append(out, station.Config{ID: s.ID, Name: s.Name, Address: s.Address})
	}
	return out
}

// MarshalJSON implements custom JSON marshaling to render measurement
// interval as a duration string rather than a nanosecond count.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		MeasurementInterval string `json:"measurement_interval"`
	}{
		Alias:               (*Alias)(c),
		MeasurementInterval: c.MeasurementInterval.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to accept measurement
// interval as a duration string ("10s").
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		MeasurementInterval string `json:"measurement_interval"`
	}{
		Alias: (*Alias)(c),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.MeasurementInterval != "" {
		d, err := time.ParseDuration(aux.MeasurementInterval)
		if err != nil {
			return fmt.Errorf("invalid measurement_interval: %w", err)
		}
		c.MeasurementInterval = d
	}
	return nil
}

// String returns a pretty-printed JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
