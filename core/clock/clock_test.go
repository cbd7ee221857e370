package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceMovesTimeForward(t *testing.T) {
	c := NewFake(10)
	c.Advance(5)
	assert.Equal(t, 15.0, c.Now())
}

func TestFake_AdvanceIgnoresNegativeDelta(t *testing.T) {
	c := NewFake(10)
	c.Advance(-5)
	assert.Equal(t, 10.0, c.Now())
}

func TestFake_SetPinsAbsoluteTime(t *testing.T) {
	c := NewFake(10)
	c.Set(100)
	assert.Equal(t, 100.0, c.Now())
}

func TestReal_NowIsMonotonicNonNegative(t *testing.T) {
	r := NewReal()
	first := r.Now()
	second := r.Now()
	assert.GreaterOrEqual(t, second, first)
}
