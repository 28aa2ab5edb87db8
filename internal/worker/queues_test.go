package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/checkworker/internal/broker"
	"github.com/ocx/checkworker/internal/config"
)

func TestQueues_GroupsBeforeGeneric(t *testing.T) {
	cfg := &config.Config{
		Hosts:         true,
		Services:      true,
		Hostgroups:    []string{"web"},
		Servicegroups: []string{"db"},
	}

	qs := Queues(cfg)
	require.Len(t, qs, 4)

	assert.Equal(t, "hostgroup_web", qs[0].Queue)
	assert.Equal(t, broker.PriorityGroup, qs[0].Priority)
	assert.Equal(t, "servicegroup_db", qs[1].Queue)
	assert.Equal(t, broker.PriorityGroup, qs[1].Priority)
	assert.Equal(t, "host", qs[2].Queue)
	assert.Equal(t, broker.PriorityGeneric, qs[2].Priority)
	assert.Equal(t, "service", qs[3].Queue)
}

func TestQueues_EmptyWhenNothingActive(t *testing.T) {
	cfg := &config.Config{}
	assert.Empty(t, Queues(cfg))
}
