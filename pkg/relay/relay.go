// Package relay moves messages from the outbox store to Pub/Sub through the
// ordered publisher client.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-pubsub-publisher/pkg/config"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/future"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/metrics"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/store"
)

// Publisher is the subset of publisher.Client the relay uses.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *future.Future[string]
	ResumePublish(orderingKey string)
}

// Relay publishes pending outbox messages in creation order.
type Relay struct {
	repo         store.Repository
	publisher    Publisher
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	retryBackoff time.Duration
}

// NewRelay creates a Relay. A nil metrics disables instrumentation.
func NewRelay(repo store.Repository, publisher Publisher, cfg config.RelaySettings, logger zerolog.Logger, m *metrics.Metrics) *Relay {
	return &Relay{
		repo:         repo,
		publisher:    publisher,
		logger:       logger.With().Str("component", "relay").Logger(),
		metrics:      m,
		tracer:       otel.Tracer("go-pubsub-publisher/relay"),
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		pollInterval: cfg.PollInterval,
		retryBackoff: cfg.RetryBackoff,
	}
}

type inflight struct {
	msg    store.OutboxMessage
	result *future.Future[string]
	span   trace.Span
}

type batchResult struct {
	published int
	failed    int
}

// ProcessBatch claims one batch, publishes every message and records the
// outcome of each. It returns the number of messages published.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	res, err := r.processBatch(ctx)
	return res.published, err
}

func (r *Relay) processBatch(ctx context.Context) (batchResult, error) {
	var res batchResult
	messages, err := r.repo.FetchPending(ctx, r.batchSize)
	if err != nil {
		return res, fmt.Errorf("failed to fetch pending messages: %w", err)
	}
	r.metrics.RelayBatch(len(messages))
	if len(messages) == 0 {
		return res, nil
	}

	pending := make([]inflight, 0, len(messages))
	for _, msg := range messages {
		msgCtx, span := r.tracer.Start(ctx, "RelayOutboxMessage", trace.WithAttributes(
			attribute.String("outbox.id", msg.ID),
			attribute.String("outbox.ordering_key", msg.OrderingKey),
			attribute.Int("outbox.attempts", msg.Attempts),
		))
		result := r.publisher.Publish(msgCtx, &pubsub.Message{
			Data:        msg.Payload,
			Attributes:  copyAttributes(msg.Attributes),
			OrderingKey: msg.OrderingKey,
		})
		pending = append(pending, inflight{msg: msg, result: result, span: span})
	}

	failedKeys := make(map[string]struct{})
	for _, p := range pending {
		messageID, err := p.result.Await(ctx)
		if err != nil && ctx.Err() != nil {
			p.span.End()
			continue
		}
		if err != nil {
			if p.msg.OrderingKey != "" {
				failedKeys[p.msg.OrderingKey] = struct{}{}
			}
			var paused pubsub.ErrPublishingPaused
			if errors.As(err, &paused) {
				// Rejected locally behind an earlier failure on the same key.
				r.release(ctx, p.msg)
				p.span.End()
				continue
			}
			p.span.RecordError(err)
			p.span.SetStatus(codes.Error, err.Error())
			r.recordFailure(ctx, p.msg, err)
			res.failed++
			p.span.End()
			continue
		}

		p.span.SetAttributes(attribute.String("messaging.message_id", messageID))
		if err := r.repo.MarkPublished(ctx, p.msg.ID, messageID); err != nil {
			r.logger.Error().Err(err).Str("id", p.msg.ID).Str("message_id", messageID).
				Msg("failed to mark message as published")
			p.span.RecordError(err)
		}
		r.metrics.Relayed(metrics.OutcomePublished)
		res.published++
		p.span.End()
	}

	for key := range failedKeys {
		r.publisher.ResumePublish(key)
		r.logger.Debug().Str("ordering_key", key).Msg("resumed ordering key")
	}

	return res, ctx.Err()
}

func (r *Relay) release(ctx context.Context, msg store.OutboxMessage) {
	r.logger.Debug().Str("id", msg.ID).Str("ordering_key", msg.OrderingKey).
		Msg("ordering key paused, message returned to pending")
	if err := r.repo.Release(ctx, msg.ID); err != nil {
		r.logger.Error().Err(err).Str("id", msg.ID).Msg("failed to release message")
	}
	r.metrics.Relayed(metrics.OutcomeDeferred)
}

func (r *Relay) recordFailure(ctx context.Context, msg store.OutboxMessage, cause error) {
	if msg.Attempts+1 >= r.maxAttempts {
		r.logger.Error().Err(cause).Str("id", msg.ID).Int("attempts", msg.Attempts+1).
			Msg("giving up on message")
		if err := r.repo.MarkFailed(ctx, msg.ID); err != nil {
			r.logger.Error().Err(err).Str("id", msg.ID).Msg("failed to mark message as failed")
		}
		r.metrics.Relayed(metrics.OutcomeFailed)
		return
	}

	r.logger.Warn().Err(cause).Str("id", msg.ID).Int("attempts", msg.Attempts+1).
		Msg("publish failed, will retry")
	if err := r.repo.MarkRetry(ctx, msg.ID); err != nil {
		r.logger.Error().Err(err).Str("id", msg.ID).Msg("failed to schedule retry")
	}
	r.metrics.Relayed(metrics.OutcomeRetry)
}

// Run processes batches until ctx is done. A full batch is followed
// immediately by the next one, otherwise the relay waits pollInterval.
// A batch with failed publishes waits retryBackoff before the next fetch.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().Int("batch_size", r.batchSize).Dur("poll_interval", r.pollInterval).
		Dur("retry_backoff", r.retryBackoff).Msg("relay started")
	defer r.logger.Info().Msg("relay stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		res, err := r.processBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error().Err(err).Msg("failed to process batch")
		}

		switch {
		case res.failed > 0 && r.retryBackoff > 0:
			timer.Reset(r.retryBackoff)
		case err == nil && res.published == r.batchSize:
			timer.Reset(0)
		default:
			timer.Reset(r.pollInterval)
		}
	}
}

func copyAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
