package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Success(t *testing.T) {
	out, err := Run(context.Background(), "echo hello", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ReturnCode)
	assert.Equal(t, "hello", out.Output)
	assert.False(t, out.EarlyTimeout)
}

func TestRun_NonZeroExit(t *testing.T) {
	// "exit" is a shell builtin, not a standalone executable, so the command
	// line must contain a shell metacharacter to route through /bin/sh -c
	// rather than a direct argv exec of "exit".
	out, err := Run(context.Background(), "exit 2;", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, out.ReturnCode)
}

func TestRun_Timeout(t *testing.T) {
	out, err := Run(context.Background(), "sleep 5", 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, out.EarlyTimeout)
	assert.Equal(t, 2, out.ReturnCode)
}

func TestRun_SpawnFailure(t *testing.T) {
	out, err := Run(context.Background(), "/no/such/binary-at-all", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, out.ReturnCode)
}

func TestRun_AlreadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, "echo hi", time.Second)
	require.Error(t, err)
}

func TestRun_KilledBySignal(t *testing.T) {
	// A process that kills itself with SIGTERM should classify as 128+15.
	out, err := Run(context.Background(), "kill -TERM $$", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 128+15, out.ReturnCode)
}
