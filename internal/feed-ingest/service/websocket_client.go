package service

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/feed-ingest/archive"
	"github.com/radieske/sports-wager-engine/internal/feed-ingest/provider"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// Publisher envia a mensagem normalizada ao Kafka.
type Publisher interface {
	Publish(ctx context.Context, m events.FeedMessage) error
}

// Archiver guarda a mensagem crua do fornecedor.
type Archiver interface {
	Put(ctx context.Context, key string, raw []byte) error
}

// WSClient consome o feed XML do fornecedor, normaliza cada mensagem e publica no Kafka.
type WSClient struct {
	URL       string      // URL do endpoint WebSocket do fornecedor
	Log       *zap.Logger // Logger estruturado
	Publisher Publisher
	Archive   Archiver // opcional
	Reconnect time.Duration

	OnReceived  func(msgType string) // métricas
	OnPublished func()
	OnError     func(stage string)

	Now func() time.Time
}

// Start inicia o loop de conexão e escuta do WebSocket.
// Em caso de desconexão, tenta reconectar automaticamente com backoff.
func (c *WSClient) Start(ctx context.Context) {
	wait := c.Reconnect
	if wait <= 0 {
		wait = 3 * time.Second
	}
	for {
		if err := c.connectAndListen(ctx); err != nil {
			c.stage("connect")
			c.Log.Warn("connection closed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			c.Log.Info("context canceled, stopping WS client")
			return
		case <-time.After(wait): // Aguarda antes de tentar reconectar
		}
	}
}

// connectAndListen estabelece a conexão WebSocket e processa as mensagens recebidas.
func (c *WSClient) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.Log.Info("connected to provider WS", zap.String("url", c.URL))

	// fecha a conexão no cancelamento para destravar o ReadMessage
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.Handle(ctx, raw)
	}
}

// Handle decodifica, arquiva e publica uma mensagem crua. Mensagens inválidas
// são descartadas com log; a conexão segue.
func (c *WSClient) Handle(ctx context.Context, raw []byte) {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	msg, err := provider.Decode(raw, now)
	if errors.Is(err, provider.ErrUnsupported) {
		c.Log.Debug("provider message ignored", zap.Error(err))
		return
	}
	if err != nil {
		c.stage("decode")
		c.Log.Warn("invalid provider message", zap.Error(err))
		return
	}
	if c.OnReceived != nil {
		c.OnReceived(msg.Type)
	}

	if c.Archive != nil {
		if err := c.Archive.Put(ctx, archive.Key(msg.MatchID, msg.Type, now), raw); err != nil {
			c.stage("archive")
			c.Log.Warn("archive raw message failed", zap.String("match_id", msg.MatchID), zap.Error(err))
		}
	}

	if err := c.Publisher.Publish(ctx, msg); err != nil {
		c.stage("publish")
		c.Log.Error("failed to publish to Kafka", zap.String("match_id", msg.MatchID), zap.Error(err))
		return
	}
	if c.OnPublished != nil {
		c.OnPublished()
	}
}

func (c *WSClient) stage(name string) {
	if c.OnError != nil {
		c.OnError(name)
	}
}
