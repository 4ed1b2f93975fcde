package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado aqui.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher encapsula o writer Kafka e o logger.
type KafkaPublisher struct {
	writer MessageWriter
	log    *zap.Logger
}

// NewKafkaPublisher espera um writer com balancer por hash (shared/kafka.NewWriter).
func NewKafkaPublisher(w MessageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log}
}

// Publish serializa a mensagem normalizada e envia ao tópico de feed.
// A chave é o MatchID: todas as mensagens de uma partida caem na mesma partição, em ordem.
func (p *KafkaPublisher) Publish(ctx context.Context, m events.FeedMessage) error {
	value, err := json.Marshal(m)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(m.MatchID),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish feed message", zap.String("match_id", m.MatchID), zap.Error(err))
		return err
	}

	p.log.Debug("published feed message", zap.String("match_id", m.MatchID), zap.String("type", m.Type))
	return nil
}
