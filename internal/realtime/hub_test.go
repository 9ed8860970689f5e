package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBroadcastReachesGroupSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())

	sub1 := hub.Subscribe("group-1")
	sub2 := hub.Subscribe("group-1")
	other := hub.Subscribe("group-2")

	delivered := hub.Broadcast("group-1", []byte("snapshot"))
	assert.Equal(t, 2, delivered)

	assert.Equal(t, []byte("snapshot"), <-sub1.Events())
	assert.Equal(t, []byte("snapshot"), <-sub2.Events())

	select {
	case payload := <-other.Events():
		t.Fatalf("subscriber of another group received %q", payload)
	default:
	}
}

func TestHubBroadcastToEmptyGroup(t *testing.T) {
	hub := NewHub(zap.NewNop())
	assert.Equal(t, 0, hub.Broadcast("group-1", []byte("snapshot")))
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())

	slow := hub.Subscribe("group-1")
	require.Equal(t, 1, hub.SubscriberCount("group-1"))

	// Fill the subscriber's queue without draining it
	for i := 0; i < subscriberBuffer; i++ {
		hub.Broadcast("group-1", []byte("snapshot"))
	}

	// The overflowing broadcast drops the subscriber
	delivered := hub.Broadcast("group-1", []byte("snapshot"))
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, hub.SubscriberCount("group-1"))

	// Queued payloads stay readable, then the channel reports closed
	for i := 0; i < subscriberBuffer; i++ {
		<-slow.Events()
	}
	_, ok := <-slow.Events()
	assert.False(t, ok)
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop())

	sub := hub.Subscribe("group-1")
	hub.Unsubscribe(sub)

	assert.Equal(t, 0, hub.SubscriberCount("group-1"))
	assert.Empty(t, hub.ActiveGroups())

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Unsubscribing again must not panic
	hub.Unsubscribe(sub)
}

func TestHubActiveGroups(t *testing.T) {
	hub := NewHub(zap.NewNop())
	assert.Empty(t, hub.ActiveGroups())

	sub1 := hub.Subscribe("group-1")
	hub.Subscribe("group-1")
	hub.Subscribe("group-2")

	assert.ElementsMatch(t, []string{"group-1", "group-2"}, hub.ActiveGroups())

	hub.Unsubscribe(sub1)
	assert.ElementsMatch(t, []string{"group-1", "group-2"}, hub.ActiveGroups())
}
