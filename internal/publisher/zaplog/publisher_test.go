package zaplog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type savedEvent struct {
	SearchID string `json:"search_id"`
	Position int    `json:"position"`
}

func TestPublishLogsEvent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	pub := New(zap.New(core))

	first, err := pub.Publish(context.Background(), "image.saved", savedEvent{SearchID: "s1", Position: 2})
	require.NoError(t, err)
	second, err := pub.Publish(context.Background(), "search.completed", map[string]int{"found": 3})
	require.NoError(t, err)

	assert.Equal(t, "log-1", first)
	assert.Equal(t, "log-2", second)
	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "notification", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "image.saved", fields["event"])
	assert.Equal(t, "log-1", fields["message_id"])
	assert.Equal(t, savedEvent{SearchID: "s1", Position: 2}, fields["payload"])
}

func TestNilLogger(t *testing.T) {
	t.Parallel()

	pub := New(nil)
	_, err := pub.Publish(context.Background(), "search.completed", nil)
	assert.NoError(t, err)
}
