// Package loop runs the control loop: once per measurement interval it
// polls ingress, runs the allocation engine, and dispatches the resulting
// commands, containing any single tick's error so one bad poll never stops
// the loop. Its periodic-task shape mirrors this codebase's scheduler loop.
package loop

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/devskill-org/pv-load-manager/core/allocate"
	"github.com/devskill-org/pv-load-manager/core/clock"
	"github.com/devskill-org/pv-load-manager/core/control"
	"github.com/devskill-org/pv-load-manager/core/dispatch"
	"github.com/devskill-org/pv-load-manager/core/pv"
	"github.com/devskill-org/pv-load-manager/core/station"
)

// PollFunc refreshes station.Tracker and pv.Data from whichever ingress
// transport is configured. It is given the tick's monotonic time so every
// reading it applies is timestamped consistently.
type PollFunc func(now float64) error

// DispatchFunc sends commands to stations over whichever dispatch transport
// is configured. Errors are logged by the loop, end the current tick, and do
// not stop the loop.
type DispatchFunc func(cmds []dispatch.Command) error

// Loop owns the periodic control cycle.
type Loop struct {
	stations   *station.Tracker
	stationIDs []int
	estimator  *pv.Estimator
	controller *control.Controller
	budget     allocate.BudgetConfig
	clk        clock.Clock
	debouncer  *dispatch.Debouncer
	poll       PollFunc
	dispatch   DispatchFunc
	logger     *log.Logger
	interval   time.Duration

	mu         sync.Mutex
	stopCh     chan struct{}
	running    bool
	wasEnabled bool
}

// New constructs a Loop. stationIDs is the full configured station
// inventory, used to issue release commands on shutdown and pause commands on
// disable even to stations not currently in the active set.
func New(
	stations *station.Tracker,
	stationIDs []int,
	estimator *pv.Estimator,
	controller *control.Controller,
	budget allocate.BudgetConfig,
	clk clock.Clock,
	poll PollFunc,
	dispatchFn DispatchFunc,
	interval time.Duration,
	logger *log.Logger,
) *Loop {
	return &Loop{
		stations:   stations,
		stationIDs: stationIDs,
		estimator:  estimator,
		controller: controller,
		budget:     budget,
		clk:        clk,
		debouncer:  dispatch.NewDebouncer(),
		poll:       poll,
		dispatch:   dispatchFn,
		interval:   interval,
		logger:     logger,
		wasEnabled: true,
	}
}

// Run blocks, ticking every interval until ctx is cancelled or Stop is
// called. On exit it releases every station.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	stopCh := l.stopCh
	l.mu.Unlock()

	defer l.shutdown()

	l.logger.Printf("[control-loop] starting, interval=%v", l.interval)
	l.runTickSafely()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.runTickSafely()
		case <-ctx.Done():
			l.logger.Printf("[control-loop] stopping: context cancelled")
			return
		case <-stopCh:
			l.logger.Printf("[control-loop] stopping: stop requested")
			return
		}
	}
}

// Stop requests the loop exit and blocks only as long as it takes to signal
// it; Run's own defer performs the shutdown release.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	close(l.stopCh)
}

// runTickSafely recovers from a panicking poll/dispatch function so a bug in
// one transport adapter degrades to a skipped tick, not a dead loop.
func (l *Loop) runTickSafely() {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Printf("[control-loop] tick panicked, continuing: %v", r)
		}
	}()
	l.tick()
}

func (l *Loop) tick() {
	now := l.clk.Now()

	if !l.controller.Enabled() {
		if l.wasEnabled {
			l.pauseAll()
			l.stations.ClearLastSetpointSent()
			l.wasEnabled = false
		}
		return
	}
	l.wasEnabled = true

	if err := l.poll(now); err != nil {
		l.logger.Printf("[control-loop] poll error, skipping tick: %v", err)
		return
	}

	l.stations.ApplyLiveness(now)
	active := l.stations.ActiveStations()

	inputs := make([]allocate.StationInput, 0, len(active))
	for _, s := range active {
		inputs = append(inputs, allocate.StationInput{
			ID:                s.ID,
			ActualCurrentA:    s.ActualCurrentA,
			State:             s.State,
			LastAllocationA:   s.LastAllocationA,
			LastRampUpAt:      s.LastRampUpAt,
			PausePendingSince: s.PausePendingSince,
		})
	}

	availableA := l.estimator.AvailableCurrentA(now)
	result := allocate.Allocate(inputs, l.controller.Mode(), l.budget, l.controller.Tunables(), availableA, now)

	for id, tr := range result.Tracking {
		l.stations.UpdateAllocationTracking(id, tr.LastAllocationA, tr.LastRampUpAt, tr.PausePendingSince)
	}

	cmds := l.debouncer.Build(result.Allocations)
	if len(cmds) == 0 {
		return
	}
	if err := l.dispatch(cmds); err != nil {
		l.logger.Printf("[control-loop] dispatch error: %v", err)
		return
	}
	for _, c := range cmds {
		if c.Type == dispatch.SetCurrent {
			l.stations.UpdateLastSetpointSent(c.StationID, c.AmpsA)
		}
	}
}

func (l *Loop) releaseAll() {
	cmds := l.debouncer.ReleaseAll(l.stationIDs)
	if len(cmds) == 0 {
		return
	}
	if err := l.dispatch(cmds); err != nil {
		l.logger.Printf("[control-loop] release error: %v", err)
	}
}

// pauseAll is issued once on the enabled-to-disabled transition, keeping
// every station under load-manager control rather than handing it back.
func (l *Loop) pauseAll() {
	cmds := l.debouncer.PauseAll(l.stationIDs)
	if len(cmds) == 0 {
		return
	}
	if err := l.dispatch(cmds); err != nil {
		l.logger.Printf("[control-loop] pause error: %v", err)
	}
}

func (l *Loop) shutdown() {
	l.logger.Printf("[control-loop] releasing all stations on shutdown")
	l.releaseAll()
}
