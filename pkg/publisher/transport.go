package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// PublishResult is the pending outcome of a single send. *pubsub.PublishResult
// satisfies it.
type PublishResult interface {
	Ready() <-chan struct{}
	Get(ctx context.Context) (string, error)
}

// Transport is the ordered publish channel a Client owns.
type Transport interface {
	// Publish submits msg and returns immediately.
	Publish(ctx context.Context, msg *pubsub.Message) PublishResult
	// ResumePublish lifts the pause placed on orderingKey after a failed publish.
	ResumePublish(orderingKey string)
	// Shutdown stops accepting sends and starts flushing in-flight ones. It does not block.
	Shutdown()
	// AwaitTermination waits up to timeout for Shutdown to finish. It reports
	// false on timeout and ctx.Err() if ctx is done first.
	AwaitTermination(ctx context.Context, timeout time.Duration) (bool, error)
}

// TransportCreator builds the transport for a topic.
type TransportCreator func(ctx context.Context, id TopicIdentity, logger zerolog.Logger, opts ...option.ClientOption) (Transport, error)

// NewPubSubTransport is the default TransportCreator. The topic has message
// ordering enabled.
var NewPubSubTransport TransportCreator = func(ctx context.Context, id TopicIdentity, logger zerolog.Logger, opts ...option.ClientOption) (Transport, error) {
	client, err := pubsub.NewClient(ctx, id.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(id.Topic)
	topic.EnableMessageOrdering = true

	return &pubsubTransport{
		client:     client,
		topic:      topic,
		logger:     logger,
		terminated: make(chan struct{}),
	}, nil
}

type pubsubTransport struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger zerolog.Logger

	shutdownOnce sync.Once
	terminated   chan struct{}
}

func (t *pubsubTransport) Publish(ctx context.Context, msg *pubsub.Message) PublishResult {
	return t.topic.Publish(ctx, msg)
}

func (t *pubsubTransport) ResumePublish(orderingKey string) {
	t.topic.ResumePublish(orderingKey)
}

func (t *pubsubTransport) Shutdown() {
	t.shutdownOnce.Do(func() {
		go func() {
			defer close(t.terminated)
			// Stop blocks until every outstanding message is published.
			t.topic.Stop()
			if err := t.client.Close(); err != nil {
				t.logger.Warn().Err(err).Msg("error closing Pub/Sub client")
			}
		}()
	})
}

func (t *pubsubTransport) AwaitTermination(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.terminated:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
