package store

import (
	"context"
)

// Repository defines the outbox operations the relay needs.
type Repository interface {
	// FetchPending claims up to batchSize pending messages, oldest first, and
	// marks them as processing. Processing messages whose claim expired are
	// returned again.
	FetchPending(ctx context.Context, batchSize int) ([]OutboxMessage, error)
	// MarkPublished records the message ID assigned by Pub/Sub.
	MarkPublished(ctx context.Context, id, messageID string) error
	// MarkRetry returns a message to pending and counts the failed attempt.
	MarkRetry(ctx context.Context, id string) error
	// MarkFailed gives up on a message and counts the failed attempt.
	MarkFailed(ctx context.Context, id string) error
	// Release returns a claimed message to pending without counting an
	// attempt, for messages the backend never received.
	Release(ctx context.Context, id string) error
	// Close releases the underlying database handle.
	Close(ctx context.Context) error
}
