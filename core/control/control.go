// Package control owns the operator-adjustable runtime settings: the
// allocation mode, the enabled flag, and the hysteresis/ramp tunables. Every
// setter validates its input, applies it atomically, and persists the result
// before returning, so a crash immediately after a successful call never
// loses the change.
package control

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/devskill-org/pv-load-manager/core/allocate"
	"github.com/devskill-org/pv-load-manager/core/store"
)

const (
	minHysteresisThresholdA = 0.0
	maxHysteresisThresholdA = 20.0
	minRampUpDelayS         = 0.0
	maxRampUpDelayS         = 300.0
	minHysteresisDelayS     = 0.0
	maxHysteresisDelayS     = 600.0
)

// Controller is the single mutable source of truth for runtime settings,
// guarded by a lock and mirrored to a Store on every change.
type Controller struct {
	mu      sync.RWMutex
	mode    allocate.Mode
	enabled bool
	tun     allocate.Tunables
	st      store.Store
}

// New constructs a Controller, preferring persisted settings over defaults
// when the store already has a record.
func New(st store.Store, defaultTunables allocate.Tunables) (*Controller, error) {
	c := &Controller{
		mode:    allocate.PVPlusGrid,
		enabled: true,
		tun:     defaultTunables,
		st:      st,
	}
	saved, ok, err := st.Load()
	if err != nil {
		return nil, fmt.Errorf("control: loading persisted settings: %w", err)
	}
	if ok {
		if m, perr := parseMode(saved.Mode); perr == nil {
			c.mode = m
		}
		c.enabled = saved.Enabled
		c.tun.HysteresisThresholdA = saved.HysteresisThresholdA
		c.tun.HysteresisDelayS = saved.HysteresisDelayS
		c.tun.RampUpDelayS = saved.RampUpDelayS
	}
	return c, nil
}

// Mode returns the current allocation mode.
func (c *Controller) Mode() allocate.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Enabled reports whether the control loop is permitted to charge at all.
func (c *Controller) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Tunables returns a copy of the current hysteresis/ramp tunables.
func (c *Controller) Tunables() allocate.Tunables {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tun
}

// SetMode validates and applies a new allocation mode. Accepts "pv_only" and
// "pv_plus_grid", case-insensitively, plus the "off"/"on" and "false"/"true"
// aliases for the same two values.
func (c *Controller) SetMode(raw string) error {
	m, err := parseMode(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = m
	snap := c.snapshotLocked()
	c.mu.Unlock()
	return c.st.Save(snap)
}

// SetEnabled validates and applies the enabled flag. Accepts "on"/"off",
// "true"/"false", and "1"/"0", case-insensitively.
func (c *Controller) SetEnabled(raw string) error {
	v, err := parseBool(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.enabled = v
	snap := c.snapshotLocked()
	c.mu.Unlock()
	return c.st.Save(snap)
}

// SetHysteresisThreshold validates and applies the hysteresis threshold, in
// amps; values outside [0, 20] are rejected with an error.
func (c *Controller) SetHysteresisThreshold(v float64) error {
	if v < minHysteresisThresholdA || v > maxHysteresisThresholdA {
		return fmt.Errorf("control: hysteresis_threshold_a %v out of range [%v, %v]", v, minHysteresisThresholdA, maxHysteresisThresholdA)
	}
	c.mu.Lock()
	c.tun.HysteresisThresholdA = v
	snap := c.snapshotLocked()
	c.mu.Unlock()
	return c.st.Save(snap)
}

// SetHysteresisDelay validates and applies the pause-pending delay, in
// seconds; values outside [0, 600] are rejected with an error.
func (c *Controller) SetHysteresisDelay(v float64) error {
	if v < minHysteresisDelayS || v > maxHysteresisDelayS {
		return fmt.Errorf("control: hysteresis_delay_s %v out of range [%v, %v]", v, minHysteresisDelayS, maxHysteresisDelayS)
	}
	c.mu.Lock()
	c.tun.HysteresisDelayS = v
	snap := c.snapshotLocked()
	c.mu.Unlock()
	return c.st.Save(snap)
}

// SetRampUpDelay validates and applies the ramp-up delay, in seconds;
// values outside [0, 300] are rejected with an error.
func (c *Controller) SetRampUpDelay(v float64) error {
	if v < minRampUpDelayS || v > maxRampUpDelayS {
		return fmt.Errorf("control: ramp_up_delay_s %v out of range [%v, %v]", v, minRampUpDelayS, maxRampUpDelayS)
	}
	c.mu.Lock()
	c.tun.RampUpDelayS = v
	snap := c.snapshotLocked()
	c.mu.Unlock()
	return c.st.Save(snap)
}

// snapshotLocked builds the persisted Settings record. Caller must hold mu.
func (c *Controller) snapshotLocked() store.Settings {
	return store.Settings{
		Mode:                 c.mode.String(),
		Enabled:              c.enabled,
		HysteresisThresholdA: c.tun.HysteresisThresholdA,
		HysteresisDelayS:     c.tun.HysteresisDelayS,
		RampUpDelayS:         c.tun.RampUpDelayS,
	}
}

func parseMode(raw string) (allocate.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pv_only", "off", "false":
		return allocate.PVOnly, nil
	case "pv_plus_grid", "on", "true":
		return allocate.PVPlusGrid, nil
	default:
		return 0, fmt.Errorf("control: unknown mode %q, want pv_only or pv_plus_grid (or their on/off aliases)", raw)
	}
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		if v, err := strconv.ParseBool(raw); err == nil {
			return v, nil
		}
		return false, fmt.Errorf("control: unknown boolean %q, want on/off", raw)
	}
}
