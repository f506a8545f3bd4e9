package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAttributes(t *testing.T) {
	decoded, err := decodeAttributes([]byte(`{"type":"created"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"type": "created"}, decoded)

	decoded, err = decodeAttributes(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)

	decoded, err = decodeAttributes([]byte("{}"))
	require.NoError(t, err)
	assert.Nil(t, decoded)

	_, err = decodeAttributes([]byte("[1,2]"))
	assert.Error(t, err)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("1", "order-42", []byte("payload"), map[string]string{"a": "b"})
	assert.Equal(t, StatusPending, msg.Status)
	assert.Equal(t, 0, msg.Attempts)
	assert.Equal(t, msg.CreatedAt, msg.UpdatedAt)
	assert.True(t, msg.PublishedAt.IsZero())
}
