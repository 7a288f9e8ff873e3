package live

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel carrying live events.
const Channel = "email_events"

// Publisher pushes events onto the Redis channel. Publishing is
// fire-and-forget: a tracking response never waits on, or fails because
// of, the live channel.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Publish(ctx context.Context, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[Live] ERROR marshal event: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.rdb.Publish(ctx, Channel, body).Err(); err != nil {
			log.Printf("[Live] ERROR publishing %s: %v", evt.Type, err)
		}
	}()
}
