package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// Publisher emite updates em tempo real. Quem altera o estado chama Publish
// explicitamente depois do commit.
type Publisher interface {
	Publish(ctx context.Context, u events.Update) error
}

// RedisBroadcaster publica os updates num canal Redis Pub/Sub consumido pelo odds-service/ws.
type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, u events.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("pubsub: encode %s: %w", u.Type, err)
	}
	if err := b.r.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", b.channel, err)
	}
	return nil
}

// Recorder guarda os updates em memória (testes e execução local sem Redis).
type Recorder struct {
	mu      sync.Mutex
	updates []events.Update
}

func (r *Recorder) Publish(_ context.Context, u events.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *Recorder) Updates() []events.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Update(nil), r.updates...)
}

// OfType filtra os updates pelo tipo.
func (r *Recorder) OfType(t string) []events.Update {
	var out []events.Update
	for _, u := range r.Updates() {
		if u.Type == t {
			out = append(out, u)
		}
	}
	return out
}
