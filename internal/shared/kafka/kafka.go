package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type (
	Writer  = kafka.Writer
	Reader  = kafka.Reader
	Message = kafka.Message
)

func brokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewWriter usa o balancer por hash da chave: mesma partida, mesma partição, ordem preservada.
func NewWriter(brokers string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokerList(brokers)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewReader sem CommitInterval: o offset só é confirmado via CommitMessages.
func NewReader(brokers string, topic string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokerList(brokers),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// helper pra enviar mensagem simples
func WriteJSON(ctx context.Context, w *kafka.Writer, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode kafka message: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}
	return w.WriteMessages(ctx, msg)
}

// Handler processa uma mensagem. Erros marcados com Permanent vão direto para a DLQ.
type Handler func(ctx context.Context, msg kafka.Message) error

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marca um erro que não adianta repetir (ex.: payload inválido).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

type ConsumerConfig struct {
	Brokers string
	Topic   string
	GroupID string
	Readers int
	// Retries além da primeira tentativa antes de mandar para a DLQ.
	Retries int
	Backoff time.Duration
	DLQ     MessageWriter
}

// MessageWriter é o subconjunto de *kafka.Writer usado para a DLQ.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer roda N readers no mesmo consumer group e confirma o offset
// somente depois que o handler retorna (at-least-once).
type Consumer struct {
	Log     *zap.Logger
	Config  ConsumerConfig
	Handle  Handler
	OnError func(stage string) // métricas por estágio
	// NewReader permite trocar a origem das mensagens nos testes.
	NewReader func() MessageReader
}

// MessageReader é o subconjunto de *kafka.Reader usado pelo consumer.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func (c *Consumer) Run(ctx context.Context) error {
	readers := c.Config.Readers
	if readers <= 0 {
		readers = 1
	}
	newReader := c.NewReader
	if newReader == nil {
		newReader = func() MessageReader {
			return NewReader(c.Config.Brokers, c.Config.Topic, c.Config.GroupID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < readers; i++ {
		r := newReader()
		g.Go(func() error {
			defer r.Close()
			return c.loop(gctx, r)
		})
	}
	return g.Wait()
}

func (c *Consumer) loop(ctx context.Context, r MessageReader) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.stage("read")
			c.Log.Warn("kafka fetch", zap.String("topic", c.Config.Topic), zap.Error(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}

		// o commit é cumulativo por partição: avançar para a próxima mensagem
		// sem resolver esta perderia o offset, então insiste até conseguir
		for {
			err := c.process(ctx, msg)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			c.Log.Error("kafka message not handled, retrying", zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.redeliveryBackoff()):
			}
		}
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.stage("commit")
			c.Log.Warn("kafka commit", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// process tenta o handler com backoff linear; esgotadas as tentativas, manda para a DLQ.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	var err error
	for attempt := 0; attempt <= c.Config.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.Config.Backoff):
			}
		}
		if err = c.Handle(ctx, msg); err == nil {
			return nil
		}
		c.stage("handle")
		var perm permanentError
		if errors.As(err, &perm) {
			break
		}
	}

	if c.Config.DLQ == nil {
		c.Log.Error("dropping message without dlq", zap.String("topic", msg.Topic), zap.Error(err))
		return nil
	}
	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "error", Value: []byte(err.Error())},
			kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)},
		),
		Time: time.Now(),
	}
	if werr := c.Config.DLQ.WriteMessages(ctx, dead); werr != nil {
		c.stage("dlq")
		return fmt.Errorf("dlq write: %w", werr)
	}
	c.Log.Warn("message sent to dlq", zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset), zap.Error(err))
	return nil
}

func (c *Consumer) redeliveryBackoff() time.Duration {
	if c.Config.Backoff > 0 {
		return c.Config.Backoff
	}
	return 500 * time.Millisecond
}

func (c *Consumer) stage(name string) {
	if c.OnError != nil {
		c.OnError(name)
	}
}

// EnsureTopics cria os tópicos via controller do cluster. Usado só em local/dev,
// onde o broker roda com um único nó.
func EnsureTopics(ctx context.Context, log *zap.Logger, brokers string, topics ...string) error {
	list := brokerList(brokers)
	if len(list) == 0 {
		return errors.New("kafka brokers not provided")
	}
	conn, err := kafka.DialContext(ctx, "tcp", list[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	cconn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer cconn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: t, NumPartitions: 3, ReplicationFactor: 1})
	}
	if err := cconn.CreateTopics(configs...); err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create topics: %w", err)
	}
	log.Info("kafka topics ready", zap.Strings("topics", topics))
	return nil
}
