package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/feed-ingest/publisher"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestPublish_KeyedByMatch(t *testing.T) {
	w := &fakeWriter{}
	p := publisher.NewKafkaPublisher(w, zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), events.FeedMessage{Type: events.FeedMatchStop, MatchID: "m1"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "m1", string(w.msgs[0].Key))

	var decoded events.FeedMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, events.FeedMatchStop, decoded.Type)
}

func TestPublish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := publisher.NewKafkaPublisher(w, zap.NewNop())
	assert.Error(t, p.Publish(context.Background(), events.FeedMessage{MatchID: "m1"}))
}
