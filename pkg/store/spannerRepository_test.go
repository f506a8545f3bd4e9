package store

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/spanner"
	"cloud.google.com/go/spanner/spannertest"
	"cloud.google.com/go/spanner/spansql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spannerOutboxDDL = `CREATE TABLE pubsub_outbox (
	id STRING(MAX) NOT NULL,
	ordering_key STRING(MAX),
	payload BYTES(MAX) NOT NULL,
	attributes STRING(MAX),
	status STRING(MAX) NOT NULL,
	attempts INT64 NOT NULL,
	message_id STRING(MAX),
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	published_at TIMESTAMP
) PRIMARY KEY (id)`

func setupSpannerTestServer(t *testing.T) *spanner.Client {
	t.Helper()
	server, err := spannertest.NewServer("localhost:0")
	require.NoError(t, err)
	t.Cleanup(server.Close)

	ddl, err := spansql.ParseDDL("", spannerOutboxDDL)
	require.NoError(t, err)
	require.NoError(t, server.UpdateDDL(ddl))

	t.Setenv("SPANNER_EMULATOR_HOST", server.Addr)
	client, err := spanner.NewClient(context.Background(), "projects/p/instances/i/databases/d")
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func insertSpannerRow(t *testing.T, client *spanner.Client, id, key string, status Status, attempts int64, created, updated time.Time) {
	t.Helper()
	_, err := client.Apply(context.Background(), []*spanner.Mutation{
		spanner.Insert("pubsub_outbox",
			[]string{"id", "ordering_key", "payload", "attributes", "status", "attempts", "created_at", "updated_at"},
			[]interface{}{id, key, []byte("payload-" + id), `{"type":"created"}`, string(status), attempts, created, updated}),
	})
	require.NoError(t, err)
}

type spannerRowState struct {
	status    string
	attempts  int64
	messageID spanner.NullString
}

func readSpannerRow(t *testing.T, client *spanner.Client, id string) spannerRowState {
	t.Helper()
	iter := client.Single().Query(context.Background(), spanner.Statement{
		SQL:    `SELECT status, attempts, message_id FROM pubsub_outbox WHERE id = @id`,
		Params: map[string]interface{}{"id": id},
	})
	defer iter.Stop()

	row, err := iter.Next()
	require.NoError(t, err)

	var state spannerRowState
	require.NoError(t, row.Columns(&state.status, &state.attempts, &state.messageID))
	return state
}

func TestSpannerRepository_FetchPending(t *testing.T) {
	client := setupSpannerTestServer(t)
	repo := NewSpannerRepository(client)

	base := time.Now().Add(-time.Hour)
	insertSpannerRow(t, client, "b", "order-1", StatusPending, 0, base.Add(2*time.Second), base)
	insertSpannerRow(t, client, "a", "order-1", StatusPending, 1, base.Add(time.Second), base)
	insertSpannerRow(t, client, "stale", "order-2", StatusProcessing, 0, base.Add(3*time.Second), base)
	insertSpannerRow(t, client, "claimed", "order-3", StatusProcessing, 0, base, time.Now())
	insertSpannerRow(t, client, "done", "order-4", StatusPublished, 0, base, base)

	messages, err := repo.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "a", messages[0].ID)
	assert.Equal(t, "b", messages[1].ID)
	assert.Equal(t, "stale", messages[2].ID)
	assert.Equal(t, "order-1", messages[0].OrderingKey)
	assert.Equal(t, []byte("payload-a"), messages[0].Payload)
	assert.Equal(t, map[string]string{"type": "created"}, messages[0].Attributes)
	assert.Equal(t, 1, messages[0].Attempts)
	assert.Equal(t, StatusProcessing, messages[0].Status)

	for _, id := range []string{"a", "b", "stale"} {
		assert.Equal(t, string(StatusProcessing), readSpannerRow(t, client, id).status)
	}

	again, err := repo.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSpannerRepository_FetchPendingRespectsBatchSize(t *testing.T) {
	client := setupSpannerTestServer(t)
	repo := NewSpannerRepository(client)

	base := time.Now().Add(-time.Minute)
	insertSpannerRow(t, client, "1", "k", StatusPending, 0, base, base)
	insertSpannerRow(t, client, "2", "k", StatusPending, 0, base.Add(time.Second), base)

	messages, err := repo.FetchPending(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "1", messages[0].ID)
	assert.Equal(t, string(StatusPending), readSpannerRow(t, client, "2").status)
}

func TestSpannerRepository_MarkPublished(t *testing.T) {
	client := setupSpannerTestServer(t)
	repo := NewSpannerRepository(client)
	insertSpannerRow(t, client, "1", "k", StatusProcessing, 0, time.Now(), time.Now())

	require.NoError(t, repo.MarkPublished(context.Background(), "1", "server-id-1"))

	state := readSpannerRow(t, client, "1")
	assert.Equal(t, string(StatusPublished), state.status)
	assert.Equal(t, "server-id-1", state.messageID.StringVal)
}

func TestSpannerRepository_MarkRetry(t *testing.T) {
	client := setupSpannerTestServer(t)
	repo := NewSpannerRepository(client)
	insertSpannerRow(t, client, "1", "k", StatusProcessing, 1, time.Now(), time.Now())

	require.NoError(t, repo.MarkRetry(context.Background(), "1"))

	state := readSpannerRow(t, client, "1")
	assert.Equal(t, string(StatusPending), state.status)
	assert.Equal(t, int64(2), state.attempts)
}

func TestSpannerRepository_MarkFailed(t *testing.T) {
	client := setupSpannerTestServer(t)
	repo := NewSpannerRepository(client)
	insertSpannerRow(t, client, "1", "k", StatusProcessing, 4, time.Now(), time.Now())

	require.NoError(t, repo.MarkFailed(context.Background(), "1"))

	state := readSpannerRow(t, client, "1")
	assert.Equal(t, string(StatusFailed), state.status)
	assert.Equal(t, int64(5), state.attempts)
}

func TestSpannerRepository_Release(t *testing.T) {
	client := setupSpannerTestServer(t)
	repo := NewSpannerRepository(client)
	insertSpannerRow(t, client, "1", "k", StatusProcessing, 2, time.Now(), time.Now())

	require.NoError(t, repo.Release(context.Background(), "1"))

	state := readSpannerRow(t, client, "1")
	assert.Equal(t, string(StatusPending), state.status)
	assert.Equal(t, int64(2), state.attempts)
}

var spannerColumns = []string{"id", "ordering_key", "payload", "attributes", "attempts", "created_at"}

func TestDecodeSpannerRow(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	row, err := spanner.NewRow(spannerColumns, []interface{}{
		"1",
		spanner.NullString{StringVal: "order-42", Valid: true},
		[]byte("payload"),
		spanner.NullString{StringVal: `{"type":"created"}`, Valid: true},
		int64(2),
		created,
	})
	require.NoError(t, err)

	msg, err := decodeSpannerRow(row)
	require.NoError(t, err)
	assert.Equal(t, "1", msg.ID)
	assert.Equal(t, "order-42", msg.OrderingKey)
	assert.Equal(t, []byte("payload"), msg.Payload)
	assert.Equal(t, map[string]string{"type": "created"}, msg.Attributes)
	assert.Equal(t, 2, msg.Attempts)
	assert.True(t, created.Equal(msg.CreatedAt))
}

func TestDecodeSpannerRow_NullColumns(t *testing.T) {
	row, err := spanner.NewRow(spannerColumns, []interface{}{
		"1",
		spanner.NullString{},
		[]byte("payload"),
		spanner.NullString{},
		int64(0),
		time.Now(),
	})
	require.NoError(t, err)

	msg, err := decodeSpannerRow(row)
	require.NoError(t, err)
	assert.Empty(t, msg.OrderingKey)
	assert.Nil(t, msg.Attributes)
}

func TestDecodeSpannerRow_InvalidAttributes(t *testing.T) {
	row, err := spanner.NewRow(spannerColumns, []interface{}{
		"1",
		spanner.NullString{},
		[]byte("payload"),
		spanner.NullString{StringVal: "not json", Valid: true},
		int64(0),
		time.Now(),
	})
	require.NoError(t, err)

	_, err = decodeSpannerRow(row)
	assert.ErrorContains(t, err, "invalid attributes for message 1")
}
