package worker

import (
	"fmt"

	"github.com/ocx/checkworker/internal/broker"
	"github.com/ocx/checkworker/internal/config"
)

// QueueSubscription names one queue this worker pool subscribes to and the
// priority it should be granted.
type QueueSubscription struct {
	Queue    string
	Priority int
}

// Queues derives the ordered subscription list from the option record.
// Per the redesign of spec §6's queue-naming rule, hostgroup/servicegroup
// queues are subscribed before the generic host/service/eventhandler
// queues: a host or service in an active group would otherwise be
// double-dispatched if the generic queue claimed it first.
func Queues(cfg *config.Config) []QueueSubscription {
	var out []QueueSubscription

	for _, hg := range cfg.Hostgroups {
		out = append(out, QueueSubscription{Queue: fmt.Sprintf("hostgroup_%s", hg), Priority: broker.PriorityGroup})
	}
	for _, sg := range cfg.Servicegroups {
		out = append(out, QueueSubscription{Queue: fmt.Sprintf("servicegroup_%s", sg), Priority: broker.PriorityGroup})
	}

	if cfg.Hosts {
		out = append(out, QueueSubscription{Queue: "host", Priority: broker.PriorityGeneric})
	}
	if cfg.Services {
		out = append(out, QueueSubscription{Queue: "service", Priority: broker.PriorityGeneric})
	}
	if cfg.Events {
		out = append(out, QueueSubscription{Queue: "eventhandler", Priority: broker.PriorityGeneric})
	}

	return out
}
