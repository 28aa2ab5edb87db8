package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisClient implements Client over Redis Pub/Sub, one channel per queue,
// channel-prefixed the way internal/fabric.RedisEventBus prefixes its
// channels — generalized here from event fan-out to ordered job delivery.
type RedisClient struct {
	servers []string
	prefix  string

	mu      sync.Mutex
	rdb     *redis.Client
	pubsub  *redis.PubSub
	queues  []subscription
	inbox   chan *redis.Message
	started bool
}

type subscription struct {
	queue    string
	priority int
}

// NewRedisClient builds a Redis-backed broker client. servers is the
// ordered list of host:port endpoints from the option record; the first
// reachable one is used.
func NewRedisClient(servers []string, channelPrefix string) *RedisClient {
	if channelPrefix == "" {
		channelPrefix = "checkworker:"
	}
	return &RedisClient{
		servers: servers,
		prefix:  channelPrefix,
		inbox:   make(chan *redis.Message, 64),
	}
}

func (c *RedisClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for _, addr := range c.servers {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			lastErr = err
			_ = rdb.Close()
			slog.Warn("broker(redis): server unreachable, trying next", "addr", addr, "error", err)
			continue
		}
		c.rdb = rdb
		slog.Info("broker(redis): connected", "addr", addr)
		return nil
	}
	return fmt.Errorf("%w: all redis servers unreachable: %v", ErrUnavailable, lastErr)
}

// Subscribe registers a Redis Pub/Sub subscription for queue. Priority is
// recorded for logging only (see sortedQueues below); Receive does not
// prefer higher-priority queues.
func (c *RedisClient) Subscribe(ctx context.Context, queue string, priority int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb == nil {
		return fmt.Errorf("%w: not connected", ErrUnavailable)
	}

	channel := c.prefix + queue
	if c.pubsub == nil {
		c.pubsub = c.rdb.Subscribe(ctx, channel)
		go c.pump()
	} else if err := c.pubsub.Subscribe(ctx, channel); err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", ErrUnavailable, queue, err)
	}

	c.queues = append(c.queues, subscription{queue: queue, priority: priority})
	slog.Debug("broker(redis): subscribed", "queue", queue, "priority", priority, "order", c.sortedQueues())
	return nil
}

// pump forwards raw Redis messages into the inbox channel for Receive to
// consume, decoupling the blocking redis.PubSub.Channel() reader from the
// caller's context-aware Receive loop.
func (c *RedisClient) pump() {
	ch := c.pubsub.Channel()
	for msg := range ch {
		c.inbox <- msg
	}
}

func (c *RedisClient) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			return nil, fmt.Errorf("%w: subscription closed", ErrUnavailable)
		}
		queue := stripPrefix(msg.Channel, c.prefix)
		return &Message{
			Queue:   queue,
			Payload: []byte(msg.Payload),
			Ack:     func() error { return nil },
			Nack:    func() error { return nil },
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *RedisClient) Submit(ctx context.Context, queue string, payload []byte) error {
	c.mu.Lock()
	rdb := c.rdb
	c.mu.Unlock()

	if rdb == nil {
		return fmt.Errorf("%w: not connected", ErrUnavailable)
	}

	channel := c.prefix + queue
	if err := rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrUnavailable, queue, err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.pubsub != nil {
		err = c.pubsub.Close()
	}
	if c.rdb != nil {
		if cerr := c.rdb.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func stripPrefix(channel, prefix string) string {
	if len(channel) > len(prefix) && channel[:len(prefix)] == prefix {
		return channel[len(prefix):]
	}
	return channel
}

// sortedQueues returns the registered subscriptions highest priority first,
// for logging at Connect/Subscribe time. Receive itself relies on Redis's
// own fan-in via the shared inbox channel rather than a custom scheduler —
// fairness beyond "never starve a lower-priority queue by more than one
// job" is implementation-defined within broker semantics, per spec §4.4.
func (c *RedisClient) sortedQueues() []subscription {
	out := make([]subscription, len(c.queues))
	copy(out, c.queues)
	sort.Slice(out, func(i, j int) bool { return out[i].priority > out[j].priority })
	return out
}
