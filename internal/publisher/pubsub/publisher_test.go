package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	t.Parallel()

	msg, err := newMessage("search.completed", map[string]any{"search_id": "abc", "found": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"search_id":"abc","found":3}`, string(msg.Data))
	assert.Equal(t, "search.completed", msg.Attributes[EventAttribute])

	msg, err = newMessage("", "plain")
	require.NoError(t, err)
	assert.NotContains(t, msg.Attributes, EventAttribute)

	_, err = newMessage("x", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestPublishWithoutPublisher(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "image.saved", struct{}{})
	require.Error(t, err)
	require.NoError(t, New(nil).Close())
}
