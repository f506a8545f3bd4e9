package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
)

const spannerSelectPending = `SELECT id, ordering_key, payload, attributes, attempts, created_at FROM pubsub_outbox
              WHERE (status = @statusPending OR (status = @statusProcessing AND updated_at < @lockExpiration))
              ORDER BY created_at, id
              LIMIT @batchSize`

const spannerClaim = `UPDATE pubsub_outbox SET status = @statusProcessing, updated_at = @now
              WHERE id = @id AND (status = @statusPending OR (status = @statusProcessing AND updated_at < @lockExpiration))`

// SpannerRepository reads the pubsub_outbox table from Cloud Spanner.
type SpannerRepository struct {
	client *spanner.Client
}

func NewSpannerRepository(client *spanner.Client) *SpannerRepository {
	return &SpannerRepository{client: client}
}

// FetchPending reads candidates with a single-use query, then claims each one
// with an update that re-checks the pending condition, so rows taken by a
// concurrent relay in between are dropped from the batch.
func (s *SpannerRepository) FetchPending(ctx context.Context, batchSize int) ([]OutboxMessage, error) {
	ctx, span := tracer.Start(ctx, "FetchPending")
	defer span.End()

	start := time.Now()
	cutoff := time.Now().Add(-lockExpiration)
	candidates, err := s.queryPending(ctx, cutoff, batchSize)
	if err != nil {
		return nil, recordFailure(span, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var messages []OutboxMessage
	_, err = s.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		messages = messages[:0]
		now := time.Now()
		for _, msg := range candidates {
			claimed, err := txn.Update(ctx, spanner.Statement{
				SQL: spannerClaim,
				Params: map[string]interface{}{
					"statusProcessing": string(StatusProcessing),
					"statusPending":    string(StatusPending),
					"lockExpiration":   cutoff,
					"now":              now,
					"id":               msg.ID,
				},
			})
			if err != nil {
				return err
			}
			if claimed == 0 {
				continue
			}
			msg.Status = StatusProcessing
			msg.UpdatedAt = now
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, recordFailure(span, err)
	}

	addDBStatsToSpan(span, "spanner", spannerSelectPending, len(messages), time.Since(start))
	return messages, nil
}

func (s *SpannerRepository) queryPending(ctx context.Context, cutoff time.Time, batchSize int) ([]OutboxMessage, error) {
	iter := s.client.Single().Query(ctx, spanner.Statement{
		SQL: spannerSelectPending,
		Params: map[string]interface{}{
			"statusPending":    string(StatusPending),
			"statusProcessing": string(StatusProcessing),
			"lockExpiration":   cutoff,
			"batchSize":        int64(batchSize),
		},
	})
	defer iter.Stop()

	var messages []OutboxMessage
	for {
		row, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return messages, nil
		}
		if err != nil {
			return nil, err
		}
		msg, err := decodeSpannerRow(row)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
}

func decodeSpannerRow(row *spanner.Row) (OutboxMessage, error) {
	var (
		msg         OutboxMessage
		orderingKey spanner.NullString
		attrs       spanner.NullString
		attempts    int64
	)
	if err := row.Columns(&msg.ID, &orderingKey, &msg.Payload, &attrs, &attempts, &msg.CreatedAt); err != nil {
		return msg, err
	}
	msg.OrderingKey = orderingKey.StringVal
	msg.Attempts = int(attempts)
	if attrs.Valid {
		decoded, err := decodeAttributes([]byte(attrs.StringVal))
		if err != nil {
			return msg, fmt.Errorf("invalid attributes for message %s: %w", msg.ID, err)
		}
		msg.Attributes = decoded
	}
	return msg, nil
}

func (s *SpannerRepository) MarkPublished(ctx context.Context, id, messageID string) error {
	return s.update(ctx, "MarkPublished", spanner.Statement{
		SQL: `UPDATE pubsub_outbox SET status = @status, message_id = @messageID, published_at = @now, updated_at = @now WHERE id = @id`,
		Params: map[string]interface{}{
			"status":    string(StatusPublished),
			"messageID": messageID,
			"now":       time.Now(),
			"id":        id,
		},
	})
}

func (s *SpannerRepository) MarkRetry(ctx context.Context, id string) error {
	return s.markAttempt(ctx, "MarkRetry", id, StatusPending)
}

func (s *SpannerRepository) MarkFailed(ctx context.Context, id string) error {
	return s.markAttempt(ctx, "MarkFailed", id, StatusFailed)
}

func (s *SpannerRepository) Release(ctx context.Context, id string) error {
	return s.update(ctx, "Release", spanner.Statement{
		SQL: `UPDATE pubsub_outbox SET status = @status, updated_at = @now WHERE id = @id`,
		Params: map[string]interface{}{
			"status": string(StatusPending),
			"now":    time.Now(),
			"id":     id,
		},
	})
}

func (s *SpannerRepository) Close(context.Context) error {
	s.client.Close()
	return nil
}

func (s *SpannerRepository) markAttempt(ctx context.Context, spanName, id string, status Status) error {
	return s.update(ctx, spanName, spanner.Statement{
		SQL: `UPDATE pubsub_outbox SET status = @status, attempts = attempts + 1, updated_at = @now WHERE id = @id`,
		Params: map[string]interface{}{
			"status": string(status),
			"now":    time.Now(),
			"id":     id,
		},
	})
}

func (s *SpannerRepository) update(ctx context.Context, spanName string, stmt spanner.Statement) error {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	start := time.Now()
	var affected int64
	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		var err error
		affected, err = txn.Update(ctx, stmt)
		return err
	})
	if err != nil {
		return recordFailure(span, err)
	}
	addDBStatsToSpan(span, "spanner", stmt.SQL, int(affected), time.Since(start))
	return nil
}
