package envelope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_Plaintext(t *testing.T) {
	key := NewKey([]byte("irrelevant-when-unencrypted"))
	m := Map{
		"host_name":    "web01",
		"command_line": "/usr/lib/nagios/plugins/check_ping -H web01",
		"output":       "line one\\nline two with a \\ backslash",
	}

	wire, err := Encode(m, key, false)
	require.NoError(t, err)

	got, err := Decode(wire, key, false)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestRoundTrip_Encrypted(t *testing.T) {
	key := NewKey([]byte("a-passphrase-that-is-not-32-bytes"))
	m := Map{
		"host_name":    "db02",
		"command_line": "check_mysql -H db02",
		"timeout":      "30",
	}

	wire, err := Encode(m, key, true)
	require.NoError(t, err)

	got, err := Decode(wire, key, true)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestNewKey_RawThirtyTwoByteKeyIsUsedVerbatim(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	key := NewKey(raw)
	assert.Equal(t, raw, key[:])
}

func TestDecode_MalformedLine(t *testing.T) {
	key := NewKey([]byte("k"))

	// "no-equals-here" base64 encoded: a valid payload with no '=' separator.
	_, err := Decode([]byte("bm8tZXF1YWxzLWhlcmU="), key, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecode_BadBase64(t *testing.T) {
	key := NewKey([]byte("k"))
	_, err := Decode([]byte("not valid base64!!"), key, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecode_CiphertextNotBlockAligned(t *testing.T) {
	key := NewKey([]byte("k"))
	_, err := Decode([]byte("YWJj"), key, true) // "abc", 3 bytes, not 16-aligned
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecryptionFailed))
}

func TestEmptyMap(t *testing.T) {
	key := NewKey([]byte("k"))
	wire, err := Encode(Map{}, key, false)
	require.NoError(t, err)

	got, err := Decode(wire, key, false)
	require.NoError(t, err)
	assert.Equal(t, Map{}, got)
}
