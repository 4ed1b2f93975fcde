package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StartRedisSubscriber inicia uma goroutine que escuta o canal Redis Pub/Sub
// e repassa as atualizações para os clientes inscritos no tópico via Hub
func StartRedisSubscriber(ctx context.Context, log *zap.Logger, r *redis.Client, channel string, hub *Hub) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close() // encerra a inscrição ao finalizar o contexto
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				Forward(log, hub, []byte(msg.Payload))
			}
		}
	}()
}

// Forward decodifica um Update publicado e entrega ao hub.
func Forward(log *zap.Logger, hub *Hub, payload []byte) {
	var upd Update
	if err := json.Unmarshal(payload, &upd); err != nil {
		log.Warn("ws subscriber unmarshal error", zap.Error(err))
		return
	}
	if upd.Topic == "" {
		log.Warn("ws update without topic", zap.String("type", upd.Type))
		return
	}
	hub.Broadcast(upd)
}
