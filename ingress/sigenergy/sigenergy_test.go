package sigenergy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget_UsesDefaultSlaveIDWhenAbsent(t *testing.T) {
	target, err := ParseTarget(map[string]string{"host_port": "10.0.0.9:502"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9:502", target.HostPort)
	assert.Equal(t, byte(247), target.SlaveID)
}

func TestParseTarget_HonorsExplicitSlaveID(t *testing.T) {
	target, err := ParseTarget(map[string]string{"host_port": "10.0.0.9:502", "slave_id": "5"})
	require.NoError(t, err)
	assert.Equal(t, byte(5), target.SlaveID)
}

func TestParseTarget_RejectsMissingHostPort(t *testing.T) {
	_, err := ParseTarget(map[string]string{})
	assert.Error(t, err)
}
