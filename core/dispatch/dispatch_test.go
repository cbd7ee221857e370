package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_FirstDispatchAlwaysSends(t *testing.T) {
	d := NewDebouncer()
	cmds := d.Build(map[int]float64{1: 6.2})
	require.Len(t, cmds, 1)
	assert.Equal(t, SetCurrent, cmds[0].Type)
	assert.Equal(t, 6, cmds[0].AmpsA)
}

func TestDebouncer_UnchangedRoundedValueSuppressed(t *testing.T) {
	d := NewDebouncer()
	d.Build(map[int]float64{1: 6.2})
	cmds := d.Build(map[int]float64{1: 6.4}) // rounds to the same 6A
	assert.Empty(t, cmds)
}

func TestDebouncer_ChangedValueResends(t *testing.T) {
	d := NewDebouncer()
	d.Build(map[int]float64{1: 6.0})
	cmds := d.Build(map[int]float64{1: 8.0})
	require.Len(t, cmds, 1)
	assert.Equal(t, 8, cmds[0].AmpsA)
}

func TestDebouncer_ZeroAllocationPauses(t *testing.T) {
	d := NewDebouncer()
	d.Build(map[int]float64{1: 6.0})
	cmds := d.Build(map[int]float64{1: 0})
	require.Len(t, cmds, 1)
	assert.Equal(t, Pause, cmds[0].Type)
}

func TestDebouncer_BelowMinimumPauses(t *testing.T) {
	d := NewDebouncer()
	d.Build(map[int]float64{1: 6.0})
	cmds := d.Build(map[int]float64{1: 3.0})
	require.Len(t, cmds, 1)
	assert.Equal(t, Pause, cmds[0].Type)
}

func TestDebouncer_ReleaseAllResetsMemory(t *testing.T) {
	d := NewDebouncer()
	d.Build(map[int]float64{1: 6.0, 2: 8.0})
	released := d.ReleaseAll([]int{1, 2})
	assert.Len(t, released, 2)

	// After release, the same setpoint must be re-dispatched, not suppressed.
	cmds := d.Build(map[int]float64{1: 6.0})
	require.Len(t, cmds, 1)
	assert.Equal(t, 6, cmds[0].AmpsA)
}

func TestDebouncer_ForgetSingleStation(t *testing.T) {
	d := NewDebouncer()
	d.Build(map[int]float64{1: 6.0})
	d.Forget(1)
	cmds := d.Build(map[int]float64{1: 6.0})
	require.Len(t, cmds, 1)
}
