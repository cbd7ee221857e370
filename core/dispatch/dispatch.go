// Package dispatch turns an allocation result into the minimal set of
// station commands that need to be sent this tick. A station whose rounded
// setpoint has not changed since the last dispatch is skipped entirely, so a
// quiet system produces no wire traffic.
package dispatch

import (
	"sync"

	"github.com/devskill-org/pv-load-manager/core/allocate"
)

// CommandType distinguishes a normal current setpoint, a pause (held at the
// transport but still under load-manager control), and a release (handing
// the station back to its standalone default, used on shutdown only).
type CommandType int

const (
	SetCurrent CommandType = iota
	Pause
	Release
)

// Command is a single instruction for one station's transport adapter.
type Command struct {
	StationID int
	Type      CommandType
	AmpsA     int
}

// Debouncer tracks the last setpoint it returned for each station and
// suppresses repeats. It holds its own state independent of the station
// tracker so it can be tested without a live Tracker.
type Debouncer struct {
	mu       sync.Mutex
	lastSent map[int]int // amps last returned by Build; station absent == never returned
}

// NewDebouncer returns an empty Debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{lastSent: make(map[int]int)}
}

// Build rounds each station's allocation to the nearest whole amp and
// returns a Command for every station whose rounded value differs from the
// last one it returned. The value is recorded when returned, whether or not
// the caller's transport then delivers it. Order is not significant; callers that need
// deterministic ordering should sort by StationID.
func (d *Debouncer) Build(allocations map[int]float64) []Command {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmds := make([]Command, 0, len(allocations))
	for id, a := range allocations {
		amps := roundToInt(a)
		prev, ok := d.lastSent[id]
		if ok && prev == amps {
			continue
		}
		d.lastSent[id] = amps
		if amps < int(allocate.MinStationCurrent) {
			cmds = append(cmds, Command{StationID: id, Type: Pause, AmpsA: 0})
		} else {
			cmds = append(cmds, Command{StationID: id, Type: SetCurrent, AmpsA: amps})
		}
	}
	return cmds
}

// ReleaseAll forces a Release command for every station named, regardless of
// debounce state, and resets their debounce memory so the next non-zero
// allocation is always re-sent. Used on shutdown only, handing every station
// back to its standalone default.
func (d *Debouncer) ReleaseAll(stationIDs []int) []Command {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmds := make([]Command, 0, len(stationIDs))
	for _, id := range stationIDs {
		delete(d.lastSent, id)
		cmds = append(cmds, Command{StationID: id, Type: Release, AmpsA: 0})
	}
	return cmds
}

// PauseAll forces a Pause command for every station named, regardless of
// debounce state, and resets their debounce memory so the next allocation
// after re-enable is always re-sent. Used on the enabled-to-disabled
// transition; the stations remain under load-manager control.
func (d *Debouncer) PauseAll(stationIDs []int) []Command {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmds := make([]Command, 0, len(stationIDs))
	for _, id := range stationIDs {
		delete(d.lastSent, id)
		cmds = append(cmds, Command{StationID: id, Type: Pause, AmpsA: 0})
	}
	return cmds
}

// Forget clears a single station's debounce memory, so its next allocation
// is dispatched even if numerically unchanged. Used when a station drops
// offline and later returns, in case the transport itself lost the setpoint.
func (d *Debouncer) Forget(stationID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastSent, stationID)
}

func roundToInt(v float64) int {
	if v < 0 {
		return 0
	}
	return int(v + 0.5)
}
