package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	done      chan struct{}
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	if len(f.msgs) == 0 && f.done != nil {
		close(f.done)
		f.done = nil
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumer_RetriesThenCommits(t *testing.T) {
	r := &fakeReader{
		msgs: []kafka.Message{{Offset: 1, Value: []byte("a")}, {Offset: 2, Value: []byte("bad")}},
		done: make(chan struct{}),
	}
	done := r.done
	var mu sync.Mutex
	attempts := map[string]int{}
	var stages []string

	c := &Consumer{
		Log:    zap.NewNop(),
		Config: ConsumerConfig{Topic: "t", Readers: 1, Retries: 2, Backoff: time.Millisecond},
		Handle: func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			defer mu.Unlock()
			attempts[string(m.Value)]++
			if string(m.Value) == "bad" {
				return Permanent(errors.New("invalid payload"))
			}
			if attempts["a"] == 1 {
				return errors.New("db down")
			}
			return nil
		},
		OnError:   func(s string) { mu.Lock(); stages = append(stages, s); mu.Unlock() },
		NewReader: func() MessageReader { return r },
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("messages not committed")
	}
	cancel()
	require.NoError(t, <-errc)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts["a"])
	assert.Equal(t, 1, attempts["bad"])
	assert.Equal(t, []string{"handle", "handle"}, stages)
	assert.Equal(t, []int64{1, 2}, r.committed)
}

func TestBrokerList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokerList(" a:9092, b:9092,,"))
}

// flakyDLQ recusa as primeiras escritas.
type flakyDLQ struct {
	mu       sync.Mutex
	fail     int
	attempts int
	written  []kafka.Message
}

func (d *flakyDLQ) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.fail > 0 {
		d.fail--
		return errors.New("dlq unavailable")
	}
	d.written = append(d.written, msgs...)
	return nil
}

func TestConsumer_FailedDLQWriteHoldsOffset(t *testing.T) {
	r := &fakeReader{
		msgs: []kafka.Message{{Offset: 1, Value: []byte("bad")}, {Offset: 2, Value: []byte("ok")}},
		done: make(chan struct{}),
	}
	done := r.done
	dlq := &flakyDLQ{fail: 1}
	var (
		mu            sync.Mutex
		stages        []string
		committedAtOK []int64
	)

	c := &Consumer{
		Log:    zap.NewNop(),
		Config: ConsumerConfig{Topic: "t", Readers: 1, Backoff: time.Millisecond, DLQ: dlq},
		Handle: func(_ context.Context, m kafka.Message) error {
			if string(m.Value) == "bad" {
				return Permanent(errors.New("invalid payload"))
			}
			r.mu.Lock()
			committedAtOK = append([]int64(nil), r.committed...)
			r.mu.Unlock()
			return nil
		},
		OnError:   func(s string) { mu.Lock(); stages = append(stages, s); mu.Unlock() },
		NewReader: func() MessageReader { return r },
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("messages not committed")
	}
	cancel()
	require.NoError(t, <-errc)

	mu.Lock()
	defer mu.Unlock()
	// a mensagem seguinte só foi lida depois que a anterior foi parar na DLQ
	assert.Equal(t, []int64{1}, committedAtOK)
	assert.Equal(t, []int64{1, 2}, r.committed)
	assert.Equal(t, 2, dlq.attempts)
	require.Len(t, dlq.written, 1)
	assert.Equal(t, "bad", string(dlq.written[0].Value))
	assert.Contains(t, stages, "dlq")
}
