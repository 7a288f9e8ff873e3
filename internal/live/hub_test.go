package live

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPublishReachesSubscribedClient(t *testing.T) {
	rdb := setupRedis(t)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(rdb)
	hub.Start(ctx)

	ch := make(chan []byte, 8)
	hub.addClient(ch, "")
	defer hub.removeClient(ch)

	// Give the subscriber a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	pub := NewPublisher(rdb)
	pub.Publish(ctx, Event{
		Type:       EventOpen,
		CampaignID: "camp-1",
		TrackingID: "tid-1",
		Recipient:  "a@example.com",
	})

	select {
	case msg := <-ch:
		var evt Event
		require.NoError(t, json.Unmarshal(msg, &evt))
		assert.Equal(t, EventOpen, evt.Type)
		assert.Equal(t, "camp-1", evt.CampaignID)
		assert.Equal(t, "tid-1", evt.TrackingID)
		assert.False(t, evt.Timestamp.IsZero(), "publisher should stamp the event")
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestDispatchCampaignUpdateScopedToRoom(t *testing.T) {
	hub := NewHub(nil)

	inRoom := make(chan []byte, 2)
	otherRoom := make(chan []byte, 1)
	global := make(chan []byte, 1)
	hub.addClient(inRoom, "camp-1")
	hub.addClient(otherRoom, "camp-2")
	hub.addClient(global, "")

	update, _ := json.Marshal(Event{Type: EventCampaignUpdate, CampaignID: "camp-1"})
	hub.dispatch(update)

	assert.Len(t, inRoom, 1, "room member should receive campaign-update")
	assert.Len(t, otherRoom, 0, "other room should not")
	assert.Len(t, global, 0, "roomless client should not")

	open, _ := json.Marshal(Event{Type: EventOpen, CampaignID: "camp-1"})
	hub.dispatch(open)

	assert.Len(t, inRoom, 2)
	assert.Len(t, otherRoom, 1)
	assert.Len(t, global, 1)
}

func TestDispatchDropsOnSlowClient(t *testing.T) {
	hub := NewHub(nil)

	full := make(chan []byte) // unbuffered, nobody reading
	hub.addClient(full, "")

	msg, _ := json.Marshal(Event{Type: EventProgress})
	done := make(chan struct{})
	go func() {
		hub.dispatch(msg)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on a slow client")
	}
}

func TestDispatchIgnoresMalformedPayload(t *testing.T) {
	hub := NewHub(nil)
	ch := make(chan []byte, 1)
	hub.addClient(ch, "")

	hub.dispatch([]byte("not json"))
	assert.Len(t, ch, 0)
}
