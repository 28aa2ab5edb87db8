// Package broker abstracts the remote job broker referenced throughout this
// module as an external collaborator: connect to a list of servers,
// subscribe to prioritized queues, block for the next message, ack/nack it,
// and submit results. Two real backends are provided — Redis Pub/Sub and
// Google Cloud Pub/Sub — selected by the option record's broker.backend
// field (see internal/config).
package broker

import (
	"context"
	"errors"
)

// ErrUnavailable classifies a broker connection/receive failure, triggering
// the reconnect-with-backoff policy in the worker loop (spec §7).
var ErrUnavailable = errors.New("broker: unavailable")

// Message is a single delivery from a subscribed queue.
type Message struct {
	Queue   string
	Payload []byte

	// Ack/Nack acknowledge or reject this specific delivery.
	Ack  func() error
	Nack func() error
}

// Client is the broker collaborator's contract, matching spec §6:
// connect(servers), subscribe(queue, priority), receive() -> message,
// submit(queue, payload) -> ok|err.
type Client interface {
	// Connect establishes (or re-establishes) a connection to one of the
	// configured servers, trying them in order.
	Connect(ctx context.Context) error

	// Subscribe registers interest in queue at the given priority. Neither
	// backend in this package orders delivery by priority: RedisClient
	// records it for logging, PubSubClient ignores it, and both hand out
	// messages from all subscribed queues in arrival order.
	Subscribe(ctx context.Context, queue string, priority int) error

	// Receive blocks until a message arrives on any subscribed queue, or
	// ctx is done.
	Receive(ctx context.Context) (*Message, error)

	// Submit publishes payload to queue, returning ErrUnavailable (wrapped)
	// on failure so the caller can retry.
	Submit(ctx context.Context, queue string, payload []byte) error

	// Close releases the underlying connection.
	Close() error
}

// Priority levels for subscription ordering. Hostgroup/servicegroup queues
// are subscribed at higher priority than the generic host/service/
// eventhandler queues, per spec §4.4 and the REDESIGN FLAGS note that this
// ordering — implicit in the original's subscription order — should be
// explicit here.
const (
	PriorityGeneric = 0
	PriorityGroup   = 10
)
