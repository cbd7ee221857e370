// Package allocate implements the allocation engine: a deterministic,
// six-step pipeline that divides a shared current budget among active
// charging stations once per measurement interval. It is pure over its
// input snapshot — no I/O, no sleeping — so it is run, tested, and reasoned
// about independently of the transports that feed it.
package allocate

import "github.com/devskill-org/pv-load-manager/core/station"

const (
	// MinStationCurrent is the lowest nonzero current a station may be
	// allocated; below it a station is either held at the minimum
	// (hysteresis) or dropped to zero.
	MinStationCurrent = 6.0
	// MaxRampUpStep bounds how much a station's allocation may increase in
	// a single cycle once the ramp delay has elapsed.
	MaxRampUpStep = 4.0
	// ActualTolerance absorbs measurement jitter when deciding whether a
	// station is under-drawing its allocation.
	ActualTolerance = 1.0
	// SlackBuffer is left on top of actual draw when reclaiming unused
	// allocation, so the donor station is not immediately capped.
	SlackBuffer = 0.5
	// OverbookingIterations is how many reclaim passes Step 3 performs.
	OverbookingIterations = 3
	// SafetyMargin is the headroom below the hard limit that Step 6's
	// emergency scale-down protects.
	SafetyMargin = 2.0
	// DefaultTotalCurrentLimit is the fallback aggregate current ceiling.
	DefaultTotalCurrentLimit = 32
	// DefaultVoltage is the fallback single-phase voltage.
	DefaultVoltage = 230
)

// Mode selects how Step 1 computes the tick's budget.
type Mode int

const (
	PVOnly Mode = iota
	PVPlusGrid
)

func (m Mode) String() string {
	if m == PVOnly {
		return "pv_only"
	}
	return "pv_plus_grid"
}

// BudgetConfig is the hard current ceiling and the watts-per-amp conversion
// factor derived from voltage and phase count.
type BudgetConfig struct {
	TotalCurrentLimitA int
	VoltageV           int
	Phases             int
}

// WattsPerAmp returns voltage * phases.
func (b BudgetConfig) WattsPerAmp() float64 {
	return float64(b.VoltageV * b.Phases)
}

// Tunables are the operator-adjustable parameters consulted once per tick as
// a snapshot.
type Tunables struct {
	HysteresisThresholdA float64
	HysteresisDelayS     float64
	RampUpDelayS         float64
	MeasurementIntervalS float64
}

// StationInput is the per-station slice of the tick's snapshot the engine
// needs. It never holds a pointer into a live station record.
type StationInput struct {
	ID                int
	ActualCurrentA    float64
	State             station.State
	LastAllocationA   float64
	LastRampUpAt      float64
	PausePendingSince *float64 // nil == not pending
}

func (s StationInput) isCharging() bool {
	return s.State == station.Charging
}

// Tracking is the updated per-station bookkeeping the engine hands back so
// the caller can write it into the live station record.
type Tracking struct {
	LastAllocationA   float64
	LastRampUpAt      float64
	PausePendingSince *float64
}

// Result is the pipeline's output: a nonneg current per station, the total,
// the mode that produced it, and the tracking state to persist.
type Result struct {
	Allocations     map[int]float64
	TotalAllocatedA float64
	Mode            Mode
	Tracking        map[int]Tracking
}

// Allocate runs the six-step pipeline once for the given snapshot. now must
// be a monotonic clock reading consistent with the LastRampUpAt/
// PausePendingSince values carried in inputs.
func Allocate(inputs []StationInput, mode Mode, budget BudgetConfig, tun Tunables, pvAvailableA float64, now float64) Result {
	tracking := make(map[int]Tracking, len(inputs))
	for _, in := range inputs {
		tracking[in.ID] = Tracking{
			LastAllocationA:   in.LastAllocationA,
			LastRampUpAt:      in.LastRampUpAt,
			PausePendingSince: in.PausePendingSince,
		}
	}

	if len(inputs) == 0 {
		return Result{Allocations: map[int]float64{}, TotalAllocatedA: 0, Mode: mode, Tracking: tracking}
	}

	// --- Step 1: budget ---
	limit := float64(budget.TotalCurrentLimitA)
	var budgetA float64
	switch mode {
	case PVOnly:
		budgetA = pvAvailableA
	default:
		budgetA = limit
	}
	if budgetA < 0 {
		budgetA = 0
	}
	if budgetA > limit {
		budgetA = limit
	}

	// --- Step 2: equal share ---
	share := budgetA / float64(len(inputs))
	alloc := make(map[int]float64, len(inputs))
	byID := make(map[int]StationInput, len(inputs))
	for _, in := range inputs {
		alloc[in.ID] = share
		byID[in.ID] = in
	}

	// --- Step 3: iterative overbooking reclaim ---
	for iter := 0; iter < OverbookingIterations; iter++ {
		var slack float64
		hungry := make([]int, 0, len(inputs))
		slackDonor := make(map[int]bool, len(inputs))

		for _, in := range inputs {
			a := alloc[in.ID]
			if in.ActualCurrentA > 0 && in.ActualCurrentA < a-ActualTolerance {
				unused := a - in.ActualCurrentA - SlackBuffer
				if unused > 0 {
					slack += unused
					alloc[in.ID] = in.ActualCurrentA + SlackBuffer
					slackDonor[in.ID] = true
				}
			}
		}
		for _, in := range inputs {
			if !slackDonor[in.ID] {
				hungry = append(hungry, in.ID)
			}
		}

		if slack > 0 && len(hungry) > 0 {
			bonus := slack / float64(len(hungry))
			for _, id := range hungry {
				alloc[id] += bonus
			}
		}
	}

	// --- Step 4: per-station constraints with pause hysteresis ---
	for _, in := range inputs {
		id := in.ID
		a := alloc[id]
		if a > limit {
			a = limit
		}

		track := tracking[id]

		if a < MinStationCurrent {
			if in.isCharging() {
				if track.PausePendingSince == nil {
					t := now
					track.PausePendingSince = &t
					a = MinStationCurrent
				} else if now-*track.PausePendingSince < tun.HysteresisDelayS {
					a = MinStationCurrent
				} else {
					a = 0
					track.PausePendingSince = nil
				}
			} else {
				a = 0
			}
		} else {
			track.PausePendingSince = nil
			if in.State == station.Paused && a < MinStationCurrent+tun.HysteresisThresholdA {
				a = 0
			}
		}

		alloc[id] = a
		tracking[id] = track
	}

	// --- Step 5: ramp control ---
	for _, in := range inputs {
		id := in.ID
		newAlloc := alloc[id]
		oldAlloc := in.LastAllocationA
		track := tracking[id]

		if newAlloc > oldAlloc && oldAlloc > 0 {
			if now-in.LastRampUpAt < tun.RampUpDelayS {
				newAlloc = oldAlloc
			} else {
				capped := oldAlloc + MaxRampUpStep
				if newAlloc > capped {
					newAlloc = capped
				}
				track.LastRampUpAt = now
			}
		}

		alloc[id] = newAlloc
		tracking[id] = track
	}

	// --- Step 6: emergency scale-down ---
	var totalActual float64
	for _, in := range inputs {
		totalActual += in.ActualCurrentA
	}
	if totalActual > limit-SafetyMargin && totalActual > 0 {
		scale := (limit - SafetyMargin) / totalActual
		for id := range alloc {
			alloc[id] *= scale
		}
	}

	var total float64
	for id, in := range byID {
		_ = in
		track := tracking[id]
		track.LastAllocationA = alloc[id]
		tracking[id] = track
		total += alloc[id]
	}

	return Result{
		Allocations:     alloc,
		TotalAllocatedA: total,
		Mode:            mode,
		Tracking:        tracking,
	}
}
