package message_broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	broker := NewChannelMessageBroker()
	defer broker.Close()
	ctx := context.Background()

	events, err := broker.Subscribe(ctx, "chat.updates", "")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "chat.updates", "", []byte(`{"hello":"world"}`)))

	select {
	case event := <-events:
		assert.Equal(t, "chat.updates", event.Topic)
		assert.Equal(t, []byte(`{"hello":"world"}`), event.Payload)
		assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestPublishBeforeSubscribeIsBuffered(t *testing.T) {
	broker := NewChannelMessageBroker()
	defer broker.Close()
	ctx := context.Background()

	require.NoError(t, broker.Publish(ctx, "chat.updates", "", []byte("first")))

	events, err := broker.Subscribe(ctx, "chat.updates", "")
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, []byte("first"), event.Payload)
	case <-time.After(time.Second):
		t.Fatal("buffered event was lost")
	}
}

func TestRoutingKeysAreIsolated(t *testing.T) {
	broker := NewChannelMessageBroker()
	defer broker.Close()
	ctx := context.Background()

	conn1, err := broker.Subscribe(ctx, "chat.updates", "conn-1")
	require.NoError(t, err)
	_, err = broker.Subscribe(ctx, "chat.updates", "conn-2")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "chat.updates", "conn-1", []byte("for conn-1")))

	select {
	case event := <-conn1:
		assert.Equal(t, "conn-1", event.RoutingKey)
	case <-time.After(time.Second):
		t.Fatal("event not routed")
	}
}

func TestClosedBrokerRejectsOperations(t *testing.T) {
	broker := NewChannelMessageBroker()
	require.NoError(t, broker.Close())

	assert.Error(t, broker.Publish(context.Background(), "t", "", []byte("x")))
	_, err := broker.Subscribe(context.Background(), "t", "")
	assert.Error(t, err)
	assert.True(t, broker.IsClosed())

	// closing twice is fine
	assert.NoError(t, broker.Close())
}

func TestFullTopicChannelErrors(t *testing.T) {
	broker := NewChannelMessageBroker()
	defer broker.Close()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, broker.Publish(ctx, "t", "", []byte("x")))
	}
	assert.Error(t, broker.Publish(ctx, "t", "", []byte("one too many")))
}
