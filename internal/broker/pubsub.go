package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
)

// PubSubClient implements Client over Google Cloud Pub/Sub, one topic per
// queue, created on demand — grounded on internal/events.PubSubEventBus's
// topic-exists-or-create pattern, generalized from CloudEvent fan-out to
// ack/nack'd job delivery.
type PubSubClient struct {
	projectID string

	mu       sync.Mutex
	client   *pubsub.Client
	topics   map[string]*pubsub.Topic
	cancels  []context.CancelFunc
	inbox    chan *Message
}

// NewPubSubClient builds a Cloud Pub/Sub-backed broker client for the given
// GCP project.
func NewPubSubClient(projectID string) *PubSubClient {
	return &PubSubClient{
		projectID: projectID,
		topics:    make(map[string]*pubsub.Topic),
		inbox:     make(chan *Message, 64),
	}
}

func (c *PubSubClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := pubsub.NewClient(ctx, c.projectID)
	if err != nil {
		return fmt.Errorf("%w: pubsub.NewClient: %v", ErrUnavailable, err)
	}
	c.client = client
	slog.Info("broker(pubsub): connected", "project", c.projectID)
	return nil
}

// Subscribe ensures the topic for queue exists and starts a background
// Receive loop on a subscription named "<queue>-worker", forwarding each
// delivery into the shared inbox. priority is accepted for interface
// symmetry with RedisClient; Cloud Pub/Sub has no native priority concept,
// so hostgroup/servicegroup queues simply get their own topic and the same
// fan-in discipline spec §4.4 allows.
func (c *PubSubClient) Subscribe(ctx context.Context, queue string, priority int) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil {
		return fmt.Errorf("%w: not connected", ErrUnavailable)
	}

	topic, err := c.topic(ctx, queue)
	if err != nil {
		return err
	}

	subID := queue + "-worker"
	sub := client.Subscription(subID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("%w: subscription.Exists: %v", ErrUnavailable, err)
	}
	if !exists {
		sub, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic})
		if err != nil {
			return fmt.Errorf("%w: CreateSubscription: %v", ErrUnavailable, err)
		}
		slog.Info("broker(pubsub): created subscription", "queue", queue, "subscription", subID)
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()

	go func() {
		err := sub.Receive(recvCtx, func(_ context.Context, m *pubsub.Message) {
			msg := &Message{
				Queue:   queue,
				Payload: m.Data,
				Ack:     func() error { m.Ack(); return nil },
				Nack:    func() error { m.Nack(); return nil },
			}
			select {
			case c.inbox <- msg:
			case <-recvCtx.Done():
			}
		})
		if err != nil && recvCtx.Err() == nil {
			slog.Warn("broker(pubsub): receive loop ended", "queue", queue, "error", err)
		}
	}()

	return nil
}

func (c *PubSubClient) topic(ctx context.Context, queue string) (*pubsub.Topic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.topics[queue]; ok {
		return t, nil
	}

	topic := c.client.Topic(queue)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: topic.Exists: %v", ErrUnavailable, err)
	}
	if !exists {
		topic, err = c.client.CreateTopic(ctx, queue)
		if err != nil {
			return nil, fmt.Errorf("%w: CreateTopic: %v", ErrUnavailable, err)
		}
	}
	c.topics[queue] = topic
	return topic, nil
}

func (c *PubSubClient) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			return nil, fmt.Errorf("%w: subscription closed", ErrUnavailable)
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *PubSubClient) Submit(ctx context.Context, queue string, payload []byte) error {
	topic, err := c.topic(ctx, queue)
	if err != nil {
		return err
	}

	result := topic.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrUnavailable, queue, err)
	}
	return nil
}

func (c *PubSubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil

	for _, t := range c.topics {
		t.Stop()
	}

	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
