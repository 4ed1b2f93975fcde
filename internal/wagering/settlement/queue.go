package settlement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// KafkaQueue publica jobs no tópico de liquidação com a partida como chave.
type KafkaQueue struct {
	w *kafka.Writer
}

func NewKafkaQueue(w *kafka.Writer) *KafkaQueue {
	return &KafkaQueue{w: w}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, job events.SettlementJob) error {
	key := job.FixtureID
	if key == "" && len(job.SlipIDs) > 0 {
		key = job.SlipIDs[0]
	}
	if err := kafka.WriteJSON(ctx, q.w, key, job); err != nil {
		return fmt.Errorf("settlement: enqueue %s: %w", job.Kind, err)
	}
	return nil
}

// Inline executa o job na hora, sem fila (testes e execução local).
type Inline struct {
	Engine *Engine
}

func (q Inline) Enqueue(ctx context.Context, job events.SettlementJob) error {
	return q.Engine.HandleJob(ctx, job)
}

// KafkaHandler adapta HandleJob ao consumer. Payload inválido não é repetido.
func (e *Engine) KafkaHandler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var job events.SettlementJob
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			e.stage("decode")
			return kafka.Permanent(fmt.Errorf("decode settlement job: %w", err))
		}
		return e.HandleJob(ctx, job)
	}
}
