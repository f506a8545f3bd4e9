package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository keeps outbox messages as documents keyed by message ID.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoRepository(client *mongo.Client, database, collection string) *MongoRepository {
	if collection == "" {
		collection = tableName
	}
	return &MongoRepository{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}
}

func (m *MongoRepository) FetchPending(ctx context.Context, batchSize int) ([]OutboxMessage, error) {
	ctx, span := tracer.Start(ctx, "FetchPending")
	defer span.End()

	start := time.Now()
	now := time.Now()
	filter := bson.M{
		"$or": []bson.M{
			{"status": StatusPending},
			{"status": StatusProcessing, "updated_at": bson.M{"$lt": now.Add(-lockExpiration)}},
		},
	}
	opts := options.Find().
		SetLimit(int64(batchSize)).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, recordFailure(span, err)
	}
	var messages []OutboxMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, recordFailure(span, err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(messages))
	for i := range messages {
		messages[i].Status = StatusProcessing
		messages[i].UpdatedAt = now
		ids = append(ids, messages[i].ID)
	}
	_, err = m.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"status": StatusProcessing, "updated_at": now}})
	if err != nil {
		return nil, recordFailure(span, err)
	}

	addDBStatsToSpan(span, "mongodb", "find pending", len(messages), time.Since(start))
	return messages, nil
}

func (m *MongoRepository) MarkPublished(ctx context.Context, id, messageID string) error {
	now := time.Now()
	return m.updateOne(ctx, "MarkPublished", id, bson.M{
		"$set": bson.M{
			"status":       StatusPublished,
			"message_id":   messageID,
			"published_at": now,
			"updated_at":   now,
		},
	})
}

func (m *MongoRepository) MarkRetry(ctx context.Context, id string) error {
	return m.updateOne(ctx, "MarkRetry", id, attemptUpdate(StatusPending))
}

func (m *MongoRepository) MarkFailed(ctx context.Context, id string) error {
	return m.updateOne(ctx, "MarkFailed", id, attemptUpdate(StatusFailed))
}

func (m *MongoRepository) Release(ctx context.Context, id string) error {
	return m.updateOne(ctx, "Release", id, bson.M{
		"$set": bson.M{
			"status":     StatusPending,
			"updated_at": time.Now(),
		},
	})
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func attemptUpdate(status Status) bson.M {
	return bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now(),
		},
		"$inc": bson.M{"attempts": 1},
	}
}

func (m *MongoRepository) updateOne(ctx context.Context, spanName, id string, update bson.M) error {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	start := time.Now()
	res, err := m.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return recordFailure(span, err)
	}
	addDBStatsToSpan(span, "mongodb", "update "+spanName, int(res.ModifiedCount), time.Since(start))
	return nil
}
