package natsclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, -1, c.maxReconnects)
	assert.Equal(t, 5*time.Second, c.timeout)
}

func TestNewClientOptions(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithName("confstream"),
		WithTimeout(time.Second),
		WithMaxReconnects(3),
		WithReconnectWait(100*time.Millisecond),
		WithCredentials("user", "pass"),
	)
	require.NoError(t, err)

	assert.Equal(t, "confstream", c.clientName)
	assert.Equal(t, time.Second, c.timeout)
	assert.Equal(t, 3, c.maxReconnects)
	assert.Equal(t, 100*time.Millisecond, c.reconnectWait)
	assert.Equal(t, "user", c.username)
}

func TestConnectionStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(99).String())
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.False(t, isAlreadyExistsError(nil))
	assert.False(t, isAlreadyExistsError(assert.AnError))
}

func TestKVErrorHelpers(t *testing.T) {
	assert.False(t, IsKVNotFoundError(nil))
	assert.True(t, IsKVNotFoundError(ErrKVKeyNotFound))
	assert.False(t, IsKVConflictError(nil))
	assert.True(t, IsKVConflictError(ErrKVKeyExists))
	assert.True(t, IsKVConflictError(ErrKVRevisionMismatch))
}
