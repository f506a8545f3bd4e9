package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	postgresSelectPending = `SELECT id, ordering_key, payload, attributes, attempts, created_at FROM pubsub_outbox
             WHERE (status=$1 OR (status=$2 AND updated_at < $3))
             ORDER BY created_at, id
             FOR UPDATE SKIP LOCKED LIMIT $4`
	postgresClaim         = `UPDATE pubsub_outbox SET status=$1, updated_at=$2 WHERE id = ANY($3)`
	postgresMarkPublished = `UPDATE pubsub_outbox SET status=$1, message_id=$2, published_at=$3, updated_at=$3 WHERE id=$4`
	postgresMarkAttempt   = `UPDATE pubsub_outbox SET status=$1, attempts = attempts + 1, updated_at=$2 WHERE id=$3`
	postgresRelease       = `UPDATE pubsub_outbox SET status=$1, updated_at=$2 WHERE id=$3`
)

// PostgresRepository reads the pubsub_outbox table through database/sql.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (p *PostgresRepository) FetchPending(ctx context.Context, batchSize int) ([]OutboxMessage, error) {
	var messages []OutboxMessage
	err := p.withTransaction(ctx, "FetchPending", postgresSelectPending, func(ctx context.Context, tx *sql.Tx) (int, error) {
		now := time.Now()
		rows, err := tx.QueryContext(ctx, postgresSelectPending,
			StatusPending, StatusProcessing, now.Add(-lockExpiration), batchSize)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			var (
				msg   OutboxMessage
				attrs []byte
			)
			if err := rows.Scan(&msg.ID, &msg.OrderingKey, &msg.Payload, &attrs, &msg.Attempts, &msg.CreatedAt); err != nil {
				return 0, err
			}
			if msg.Attributes, err = decodeAttributes(attrs); err != nil {
				return 0, fmt.Errorf("invalid attributes for message %s: %w", msg.ID, err)
			}
			msg.Status = StatusProcessing
			msg.UpdatedAt = now
			messages = append(messages, msg)
			ids = append(ids, msg.ID)
		}
		if err := rows.Err(); err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, nil
		}

		if _, err := tx.ExecContext(ctx, postgresClaim, StatusProcessing, now, pq.Array(ids)); err != nil {
			return 0, err
		}
		return len(messages), nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (p *PostgresRepository) MarkPublished(ctx context.Context, id, messageID string) error {
	return p.exec(ctx, "MarkPublished", postgresMarkPublished, StatusPublished, messageID, time.Now(), id)
}

func (p *PostgresRepository) MarkRetry(ctx context.Context, id string) error {
	return p.exec(ctx, "MarkRetry", postgresMarkAttempt, StatusPending, time.Now(), id)
}

func (p *PostgresRepository) MarkFailed(ctx context.Context, id string) error {
	return p.exec(ctx, "MarkFailed", postgresMarkAttempt, StatusFailed, time.Now(), id)
}

func (p *PostgresRepository) Release(ctx context.Context, id string) error {
	return p.exec(ctx, "Release", postgresRelease, StatusPending, time.Now(), id)
}

func (p *PostgresRepository) Close(context.Context) error {
	return p.db.Close()
}

func (p *PostgresRepository) exec(ctx context.Context, spanName, statement string, args ...any) error {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	start := time.Now()
	res, err := p.db.ExecContext(ctx, statement, args...)
	if err != nil {
		return recordFailure(span, err)
	}
	affected, _ := res.RowsAffected()
	addDBStatsToSpan(span, "postgresql", statement, int(affected), time.Since(start))
	return nil
}

func (p *PostgresRepository) withTransaction(ctx context.Context, spanName, statement string, fn func(ctx context.Context, tx *sql.Tx) (int, error)) (err error) {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	start := time.Now()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return recordFailure(span, err)
	}
	defer func() {
		if err != nil {
			_ = recordFailure(span, err)
			_ = tx.Rollback()
		}
	}()

	rows, err := fn(ctx, tx)
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	addDBStatsToSpan(span, "postgresql", statement, rows, time.Since(start))
	return nil
}
