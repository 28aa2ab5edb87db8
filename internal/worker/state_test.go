package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_HappyPath(t *testing.T) {
	m := newMachine()
	require.NoError(t, m.transition(StateDecoding))
	require.NoError(t, m.transition(StateValidating))
	require.NoError(t, m.transition(StateExecuting))
	require.NoError(t, m.transition(StatePublishing))
	require.NoError(t, m.transition(StateIdle))
}

func TestMachine_LogNAKExitFromDecoding(t *testing.T) {
	m := newMachine()
	require.NoError(t, m.transition(StateDecoding))
	require.NoError(t, m.transition(StateIdle))
}

func TestMachine_ExpireExitFromValidating(t *testing.T) {
	m := newMachine()
	require.NoError(t, m.transition(StateDecoding))
	require.NoError(t, m.transition(StateValidating))
	require.NoError(t, m.transition(StatePublishing))
}

func TestMachine_RejectsSkippingStates(t *testing.T) {
	m := newMachine()
	err := m.transition(StateExecuting)
	assert.Error(t, err)
}

func TestMachine_RejectsBackwardsTransition(t *testing.T) {
	m := newMachine()
	require.NoError(t, m.transition(StateDecoding))
	require.NoError(t, m.transition(StateValidating))
	require.NoError(t, m.transition(StateExecuting))
	err := m.transition(StateDecoding)
	assert.Error(t, err)
}
