package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewHub(client), s
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "p1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, hub.Publish(ctx, Event{Type: EventMessage, ProposalID: "p1", ActorID: "u1", NegotiationStatus: "negotiating"}))

	event := receive(t, sub)
	assert.Equal(t, EventMessage, event.Type)
	assert.Equal(t, "u1", event.ActorID)
	assert.Equal(t, "negotiating", event.NegotiationStatus)
	assert.False(t, event.At.IsZero())
}

func TestChannelsAreIsolatedPerProposal(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "p1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, hub.Publish(ctx, Event{Type: EventStatus, ProposalID: "p2"}))
	require.NoError(t, hub.Publish(ctx, Event{Type: EventDeclined, ProposalID: "p1"}))

	event := receive(t, sub)
	assert.Equal(t, "p1", event.ProposalID)
	assert.Equal(t, EventDeclined, event.Type)
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := hub.Subscribe(ctx, "p1")
	require.NoError(t, err)
	defer sub.Close()

	cancel()
	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("expected events channel to close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	hub, _ := newTestHub(t)
	sub, err := hub.Subscribe(context.Background(), "p1")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
	assert.Equal(t, "proposal:p1", hub.Channel("p1"))
}
