package live

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub bridges the Redis channel to connected SSE clients. Each client may
// name a campaign to additionally receive that campaign's campaign-update
// events; the global event types reach every client. Slow clients drop
// messages rather than stalling the dispatcher.
type Hub struct {
	rdb       *redis.Client
	clients   map[chan []byte]string
	mu        sync.RWMutex
	broadcast chan []byte
}

func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		rdb:       rdb,
		clients:   make(map[chan []byte]string),
		broadcast: make(chan []byte, 256),
	}
}

// Start launches the Redis subscriber and the dispatch loop. Both exit when
// ctx is cancelled.
func (hub *Hub) Start(ctx context.Context) {
	go func() {
		sub := hub.rdb.Subscribe(ctx, Channel)
		defer sub.Close()
		log.Printf("[Hub] Subscribed to Redis channel %q", Channel)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case hub.broadcast <- []byte(msg.Payload):
				default:
					// buffer full — drop
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-hub.broadcast:
				hub.dispatch(msg)
			}
		}
	}()
}

func (hub *Hub) dispatch(msg []byte) {
	var evt Event
	if err := json.Unmarshal(msg, &evt); err != nil {
		log.Printf("[Hub] dropping malformed event: %v", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for ch, room := range hub.clients {
		if evt.Type == EventCampaignUpdate && room != evt.CampaignID {
			continue
		}
		select {
		case ch <- msg:
		default:
			// slow client — drop message
		}
	}
}

func (hub *Hub) addClient(ch chan []byte, room string) {
	hub.mu.Lock()
	hub.clients[ch] = room
	hub.mu.Unlock()
}

func (hub *Hub) removeClient(ch chan []byte) {
	hub.mu.Lock()
	delete(hub.clients, ch)
	hub.mu.Unlock()
}

// ServeSSE streams live events to one client as Server-Sent Events. The
// optional campaignId query parameter joins that campaign's room.
func (hub *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan []byte, 64)
	hub.addClient(ch, r.URL.Query().Get("campaignId"))
	defer hub.removeClient(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			w.Write([]byte("data: "))
			w.Write(msg)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
