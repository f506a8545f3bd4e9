// Package publisher publishes messages to a single Pub/Sub topic with message
// ordering enabled.
//
// Publish hands every message to the transport and returns a future for the
// message ID assigned by the backend. Close flushes the transport on an
// executor, never on the caller's goroutine, and waits at most one minute.
package publisher

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"

	"github.com/zoff-tech/go-pubsub-publisher/pkg/executor"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/future"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/metrics"
)

const terminationTimeout = time.Minute

type state int

const (
	stateOpen state = iota
	stateClosing
	stateClosed
)

// Client publishes to one topic. It is safe for concurrent use.
type Client struct {
	identity TopicIdentity
	logger   zerolog.Logger
	executor executor.Executor
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	mu        sync.RWMutex
	transport Transport
	state     state
	closed    *future.Future[struct{}]
}

// New creates a client for projects/<projectID>/topics/<topic>. A nil creds
// uses the transport's default credentials. If the transport cannot be
// initialized no client is returned and the error matches ErrConflict.
func New(ctx context.Context, projectID, topic string, creds CredentialsProvider, opts ...Option) (*Client, error) {
	identity, err := NewTopicIdentity(projectID, topic)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger.With().Str("component", "publisher").Str("topic", identity.Name()).Logger()

	clientOpts := append([]option.ClientOption{}, o.clientOptions...)
	if creds != nil {
		clientOpts = append(clientOpts, creds.ClientOptions()...)
	}

	transport, err := o.newTransport(ctx, identity, logger, clientOpts...)
	if err != nil {
		logger.Debug().Err(err).Msg("error initializing publisher client")
		return nil, &ClientError{
			Status:  http.StatusConflict,
			Message: "publisher client could not be initialized",
			Err:     err,
		}
	}

	logger.Info().Msg("publisher client initialized")
	return &Client{
		identity:  identity,
		logger:    logger,
		executor:  o.executor,
		metrics:   o.metrics,
		tracer:    o.tracer,
		transport: transport,
	}, nil
}

// Topic returns the identity of the topic the client publishes to.
func (c *Client) Topic() TopicIdentity {
	return c.identity
}

// Publish submits msg and returns a future resolved with the message ID, or
// rejected with an error wrapping ErrPublishFailed and the backend cause.
// Messages sharing an ordering key reach the backend in submission order.
// Once submitted a publish cannot be cancelled; abandoning the future does not
// retract the send.
func (c *Client) Publish(ctx context.Context, msg *pubsub.Message) *future.Future[string] {
	if msg == nil {
		c.metrics.PublishRejected()
		return future.Failed[string](fmt.Errorf("%w: message must not be nil", ErrInvalidArgument))
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != stateOpen || c.transport == nil {
		c.metrics.PublishRejected()
		return future.Failed[string](ErrClientClosed)
	}

	ctx, span := c.tracer.Start(ctx, "Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("pubsub"),
			semconv.MessagingDestinationKindKey.String("topic"),
			semconv.MessagingDestinationKey.String(c.identity.Name()),
			attribute.String("messaging.gcp_pubsub.message.ordering_key", msg.OrderingKey),
		),
	)

	// Carry the trace context in the attributes of a copy, leaving the
	// caller's message untouched. Caller attributes win.
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) > 0 {
		maps.Copy(carrier, msg.Attributes)
		out := *msg
		out.Attributes = carrier
		msg = &out
	}

	promise := future.NewPromise[string]()
	start := time.Now()
	c.metrics.PublishStarted()
	res := c.transport.Publish(ctx, msg)

	go c.complete(res, promise, span, start, msg)

	return promise.Future()
}

// complete waits for the transport outcome and resolves promise with it.
func (c *Client) complete(res PublishResult, promise *future.Promise[string], span trace.Span, start time.Time, msg *pubsub.Message) {
	defer span.End()

	id, err := res.Get(context.Background())
	c.metrics.PublishFinished(err, time.Since(start))
	if err != nil {
		c.logger.Debug().Err(err).Str("ordering_key", msg.OrderingKey).Msg("error publishing message to Pub/Sub")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		promise.Fail(fmt.Errorf("%w: %w", ErrPublishFailed, err))
		return
	}

	span.SetAttributes(
		semconv.MessagingMessageIDKey.String(id),
		attribute.Int("messaging.message_payload_size_bytes", len(msg.Data)),
	)
	promise.Complete(id)
}

// ResumePublish resumes publishing for orderingKey after a failed publish
// paused it.
func (c *Client) ResumePublish(orderingKey string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != stateOpen || c.transport == nil {
		return
	}
	c.transport.ResumePublish(orderingKey)
}

// Close shuts the transport down on the configured executor and waits up to
// one minute for in-flight messages to be flushed. If ctx is cancelled during
// the wait the returned future fails with ErrShutdownInterrupted and ctx.Err();
// cleanup is then best effort. Repeated calls return the first call's future.
//
// Without a usable executor Close fails immediately with
// ErrPreconditionViolation and leaves the client open.
func (c *Client) Close(ctx context.Context) *future.Future[struct{}] {
	c.mu.Lock()
	if c.closed != nil {
		closed := c.closed
		c.mu.Unlock()
		return closed
	}
	if c.executor == nil {
		c.mu.Unlock()
		c.logger.Error().Msg("client closed without an executor for blocking work")
		return future.Failed[struct{}](fmt.Errorf("%w: no executor available for blocking shutdown", ErrPreconditionViolation))
	}

	promise := future.NewPromise[struct{}]()
	transport := c.transport
	c.state = stateClosing
	c.closed = promise.Future()
	c.mu.Unlock()

	err := c.executor.Submit(func() {
		err := c.terminate(ctx, transport)

		c.mu.Lock()
		c.state = stateClosed
		c.transport = nil
		c.mu.Unlock()

		c.metrics.Closed(err)
		if err != nil {
			promise.Fail(err)
			return
		}
		c.logger.Info().Msg("publisher client closed")
		promise.Complete(struct{}{})
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("executor rejected publisher shutdown")
		err = fmt.Errorf("%w: %w", ErrPreconditionViolation, err)

		c.mu.Lock()
		c.state = stateOpen
		c.closed = nil
		c.mu.Unlock()

		promise.Fail(err)
	}
	return promise.Future()
}

func (c *Client) terminate(ctx context.Context, transport Transport) error {
	if transport == nil {
		return nil
	}

	transport.Shutdown()
	terminated, err := transport.AwaitTermination(ctx, terminationTimeout)
	if err != nil {
		c.logger.Warn().Err(err).Msg("resources are not freed properly")
		return fmt.Errorf("%w: %w", ErrShutdownInterrupted, err)
	}
	if !terminated {
		c.logger.Warn().Dur("timeout", terminationTimeout).Msg("transport did not terminate in time")
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, terminationTimeout)
	}
	return nil
}
