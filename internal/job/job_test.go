package job

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/checkworker/internal/envelope"
)

func TestDecodeAndValidate_Host(t *testing.T) {
	m := envelope.Map{
		"type":         "host",
		"host_name":    "web01",
		"command_line": "check_ping -H web01",
		"timeout":      "30",
		"start_time":   "1700000000.5",
	}

	j, err := Decode(m)
	require.NoError(t, err)
	require.NoError(t, j.Validate())

	assert.Equal(t, TypeHost, j.Type)
	assert.Equal(t, 30*time.Second, j.Timeout)
	assert.Equal(t, int64(1700000000), j.StartTime.Unix())
}

func TestValidate_ServiceRequiresDescription(t *testing.T) {
	j := &Job{Type: TypeService, CommandLine: "check_disk", Timeout: time.Second}
	err := j.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	var fieldErr *InvalidFieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "service_description", fieldErr.Field)
}

func TestValidate_RejectsEmptyCommandLine(t *testing.T) {
	j := &Job{Type: TypeHost, CommandLine: "", Timeout: time.Second}
	require.Error(t, j.Validate())
}

func TestValidate_RejectsSubSecondTimeout(t *testing.T) {
	j := &Job{Type: TypeHost, CommandLine: "check_ping", Timeout: 500 * time.Millisecond}
	require.Error(t, j.Validate())
}

func TestValidate_RejectsUnknownType(t *testing.T) {
	j := &Job{Type: "bogus", CommandLine: "x", Timeout: time.Second}
	require.Error(t, j.Validate())
}

func TestDecode_BadTimeout(t *testing.T) {
	_, err := Decode(envelope.Map{"timeout": "not-a-number"})
	require.Error(t, err)
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	j := &Job{StartTime: now.Add(-20 * time.Minute)}
	assert.True(t, j.IsExpired(now, 10*time.Minute))
	assert.False(t, j.IsExpired(now, 30*time.Minute))
}

func TestIsExpired_ZeroStartTimeNeverExpires(t *testing.T) {
	j := &Job{}
	assert.False(t, j.IsExpired(time.Now(), time.Second))
}
