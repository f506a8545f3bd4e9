package store

import "time"

// Status represents the delivery status of an outbox message.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// OutboxMessage is a row waiting to be published to Pub/Sub. Messages that
// share an OrderingKey are published in CreatedAt order.
type OutboxMessage struct {
	ID          string            `json:"id" bson:"_id"`
	OrderingKey string            `json:"ordering_key" bson:"ordering_key"`
	Payload     []byte            `json:"payload" bson:"payload"`
	Attributes  map[string]string `json:"attributes" bson:"attributes"`
	Status      Status            `json:"status" bson:"status"`
	Attempts    int               `json:"attempts" bson:"attempts"`
	MessageID   string            `json:"message_id,omitempty" bson:"message_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" bson:"updated_at"`
	PublishedAt time.Time         `json:"published_at,omitempty" bson:"published_at,omitempty"`
}

// NewMessage creates a pending OutboxMessage.
func NewMessage(id, orderingKey string, payload []byte, attributes map[string]string) *OutboxMessage {
	now := time.Now()
	return &OutboxMessage{
		ID:          id,
		OrderingKey: orderingKey,
		Payload:     payload,
		Attributes:  attributes,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
