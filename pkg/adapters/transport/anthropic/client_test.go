package anthropic

import (
	"context"
	"testing"

	"github.com/crewd/crewd/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := NewTransport(Config{APIKey: "test-key", Logger: zap.NewNop()})
	require.NoError(t, err)
	return tr
}

func TestNewTransportRequiresAPIKey(t *testing.T) {
	_, err := NewTransport(Config{Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestCreateServerRejectsForeignModels(t *testing.T) {
	tr := newTestTransport(t)

	_, _, err := tr.CreateServer(context.Background(), ports.ServerConfig{Model: "openai/gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic/")
}

func TestSessionLifecycle(t *testing.T) {
	tr := newTestTransport(t)

	client, server, err := tr.CreateServer(context.Background(), ports.ServerConfig{
		Model: "anthropic/claude-3-5-sonnet-20241022",
	})
	require.NoError(t, err)
	assert.Equal(t, "anthropic://claude-3-5-sonnet-20241022", server.URL())

	sessionID, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)

	// Context injection does not hit the API.
	require.NoError(t, client.PromptNoReply(context.Background(), sessionID, "identity block"))

	// Unknown sessions fail before any API call.
	err = client.PromptNoReply(context.Background(), "missing", "x")
	assert.Error(t, err)
}

func TestClosedHostRejectsCalls(t *testing.T) {
	tr := newTestTransport(t)

	client, server, err := tr.CreateServer(context.Background(), ports.ServerConfig{
		Model: "anthropic/claude-3-5-haiku-20241022",
	})
	require.NoError(t, err)

	sessionID, err := client.CreateSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, server.Close())

	_, err = client.CreateSession(context.Background())
	assert.Error(t, err)
	assert.Error(t, client.PromptNoReply(context.Background(), sessionID, "x"))
}
