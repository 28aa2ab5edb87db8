package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	c.applyDefaults()
	assert.Equal(t, 1, c.MinWorker)
	assert.Equal(t, 1, c.MaxWorker)
	assert.Equal(t, 60, c.JobTimeoutSec)
	assert.Equal(t, 600, c.MaxAgeSec)
	assert.Equal(t, "check_results", c.ResultQueue)
	assert.Equal(t, 1000, c.JobsBeforeExit)
	assert.Equal(t, "redis", c.Broker.Backend)
}

func TestValidate_RejectsMinGreaterThanMax(t *testing.T) {
	c := &Config{MinWorker: 5, MaxWorker: 2, JobTimeoutSec: 1, MaxAgeSec: 1, Hosts: true, Servers: []string{"localhost:6379"}}
	require.Error(t, c.Validate())
}

func TestValidate_RequiresCryptKeyWhenEncrypted(t *testing.T) {
	c := &Config{MinWorker: 1, MaxWorker: 1, JobTimeoutSec: 1, MaxAgeSec: 1, Hosts: true, Encryption: true, Servers: []string{"localhost:6379"}}
	require.Error(t, c.Validate())

	c.CryptKey = "secret"
	require.NoError(t, c.Validate())
}

func TestValidate_RequiresAtLeastOneQueue(t *testing.T) {
	c := &Config{MinWorker: 1, MaxWorker: 1, JobTimeoutSec: 1, MaxAgeSec: 1, Servers: []string{"localhost:6379"}}
	require.Error(t, c.Validate())
}

func TestValidate_RequiresAtLeastOneServer(t *testing.T) {
	c := &Config{MinWorker: 1, MaxWorker: 1, JobTimeoutSec: 1, MaxAgeSec: 1, Hosts: true}
	require.Error(t, c.Validate())
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV("a, b ,c"))
	assert.Equal(t, []string{}, splitCSV(""))
}
