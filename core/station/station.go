// Package station tracks per-station lifecycle state derived from telemetry:
// liveness (stale/offline) semantics, vehicle-connected/state bookkeeping, and
// the eligible-for-allocation query the allocation engine snapshots each tick.
package station

import (
	"strings"
	"sync"
)

// State is a charging station's lifecycle state, derived from raw telemetry.
type State int

const (
	Offline State = iota
	NotConnected
	Idle
	Charging
	Paused
	Error
)

// String renders the state the way operator-facing output expects it.
func (s State) String() string {
	switch s {
	case Offline:
		return "offline"
	case NotConnected:
		return "not_connected"
	case Idle:
		return "idle"
	case Charging:
		return "charging"
	case Paused:
		return "paused"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// StateFromStatusString maps a raw charger status string to a State,
// case-insensitively, per the exact-match table in the spec.
func StateFromStatusString(raw string) State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "sleeping":
		return Idle
	case "charging":
		return Charging
	case "disabled":
		return Paused
	case "not connected":
		return NotConnected
	case "error":
		return Error
	default:
		return Offline
	}
}

// Config is a station's immutable identity: a stable numeric id, a human
// name, and opaque address tokens used by the dispatch/ingress transports to
// reach it. The core never interprets Address; it is resolved by whichever
// transport adapter owns this station.
type Config struct {
	ID      int
	Name    string
	Address map[string]string
}

// Status is a station's live record, as read by the allocation engine.
type Status struct {
	ID                 int
	ActualCurrentA     float64
	State              State
	VehicleConnected   bool
	LastSeen           float64
	LastSetpointSentA  *int // nil ("none") before first dispatch
	LastAllocationA    float64
	LastRampUpAt       float64
	PausePendingSince  *float64
}

// IsCharging reports whether the station is currently in the Charging state.
func (s Status) IsCharging() bool {
	return s.State == Charging
}

// eligible reports whether s qualifies for this tick's active set, per the
// spec invariant: OFFLINE or disconnected stations never receive allocation.
func (s Status) eligible() bool {
	if !s.VehicleConnected {
		return false
	}
	switch s.State {
	case Idle, Charging, Paused:
		return true
	default:
		return false
	}
}

// Tracker owns the live Status record for every configured station and
// applies the liveness policy that demotes silent stations to Offline.
type Tracker struct {
	mu             sync.RWMutex
	stations       map[int]*Status
	livenessWindow float64 // seconds; must be >= measurement interval
}

// NewTracker creates a Tracker seeded from the given station configs. Every
// station starts Offline/disconnected until telemetry updates it.
func NewTracker(configs []Config, livenessWindow float64) *Tracker {
	t := &Tracker{
		stations:       make(map[int]*Status, len(configs)),
		livenessWindow: livenessWindow,
	}
	for _, c := range configs {
		t.stations[c.ID] = &Status{ID: c.ID, State: Offline}
	}
	return t
}

// Get returns a copy of a station's current status.
func (t *Tracker) Get(id int) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.stations[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// All returns a copy of every tracked station's status, stable order by ID.
func (t *Tracker) All() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Status, 0, len(t.stations))
	for _, s := range t.stations {
		out = append(out, *s)
	}
	sortByID(out)
	return out
}

// ApplyCurrentReading records a successful actual-current reading and bumps
// last-seen. Callers should discard parse failures before calling this.
func (t *Tracker) ApplyCurrentReading(id int, amps float64, now float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stations[id]
	if !ok {
		return
	}
	s.ActualCurrentA = amps
	s.LastSeen = now
}

// ApplyStateReading records a raw status string, mapped to a State, and
// bumps last-seen. Each call overwrites the stored state: a terminal state
// applied earlier in the same tick is replaced by any later reading in that
// tick.
func (t *Tracker) ApplyStateReading(id int, raw string, now float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stations[id]
	if !ok {
		return
	}
	newState := StateFromStatusString(raw)
	if newState != Charging && s.State == Charging {
		s.PausePendingSince = nil
	}
	s.State = newState
	s.LastSeen = now
}

// ApplyVehicleConnected records the vehicle-connected flag and bumps last-seen.
func (t *Tracker) ApplyVehicleConnected(id int, connected bool, now float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stations[id]
	if !ok {
		return
	}
	s.VehicleConnected = connected
	s.LastSeen = now
}

// ApplyPilotReading bumps last-seen bookkeeping only; the core does not
// otherwise consume pilot_current_a.
func (t *Tracker) ApplyPilotReading(id int, now float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stations[id]
	if !ok {
		return
	}
	s.LastSeen = now
}

// ApplyLiveness demotes any station not updated within the liveness window to
// Offline. Called once per tick before the active set is computed.
func (t *Tracker) ApplyLiveness(now float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.stations {
		if s.LastSeen == 0 {
			continue // never seen; already Offline from construction
		}
		if now-s.LastSeen > t.livenessWindow && s.State != Offline {
			s.State = Offline
			s.PausePendingSince = nil
		}
	}
}

// ActiveStations returns the stations eligible for allocation this tick:
// vehicle connected and in Idle, Charging, or Paused.
func (t *Tracker) ActiveStations() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Status, 0, len(t.stations))
	for _, s := range t.stations {
		if s.eligible() {
			out = append(out, *s)
		}
	}
	sortByID(out)
	return out
}

// UpdateAllocationTracking writes back the per-station fields the allocation
// engine owns (last_allocation_a, last_ramp_up_at, pause_pending_since) after
// a tick completes.
func (t *Tracker) UpdateAllocationTracking(id int, lastAllocationA, lastRampUpAt float64, pausePendingSince *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stations[id]
	if !ok {
		return
	}
	s.LastAllocationA = lastAllocationA
	s.LastRampUpAt = lastRampUpAt
	s.PausePendingSince = pausePendingSince
}

// UpdateLastSetpointSent records the last rounded setpoint dispatched to a
// station, for operator-facing summaries and debounce display.
func (t *Tracker) UpdateLastSetpointSent(id int, amps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stations[id]
	if !ok {
		return
	}
	v := amps
	s.LastSetpointSentA = &v
}

// ClearLastSetpointSent clears the recorded last-sent setpoint of every
// station; the loop calls it when charging is disabled. The debounce memory
// itself is kept by dispatch.Debouncer, not here.
func (t *Tracker) ClearLastSetpointSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.stations {
		s.LastSetpointSentA = nil
	}
}

func sortByID(s []Status) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].ID > s[j].ID; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
