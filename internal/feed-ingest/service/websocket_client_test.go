package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/feed-ingest/service"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

var now = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	msgs []events.FeedMessage
	err  error
}

func (r *recorder) Publish(_ context.Context, m events.FeedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type archiveStub struct{ keys []string }

func (a *archiveStub) Put(_ context.Context, key string, _ []byte) error {
	a.keys = append(a.keys, key)
	return nil
}

func TestHandle(t *testing.T) {
	pub := &recorder{}
	arc := &archiveStub{}
	var stages []string
	c := &service.WSClient{
		Log: zap.NewNop(), Publisher: pub, Archive: arc,
		Now:     func() time.Time { return now },
		OnError: func(s string) { stages = append(stages, s) },
	}

	c.Handle(context.Background(), []byte(`<bet_stop event_id="m1" product="live"/>`))
	c.Handle(context.Background(), []byte(`<alive/>`))
	c.Handle(context.Background(), []byte(`<<<`))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, events.FeedMatchStop, pub.msgs[0].Type)
	assert.Equal(t, now, pub.msgs[0].ReceivedAt)
	assert.Equal(t, []string{"feed/2026/03/14/m1/1773500400000000000-match_stop.xml"}, arc.keys)
	assert.Equal(t, []string{"decode"}, stages)

	pub.err = errors.New("kafka down")
	c.Handle(context.Background(), []byte(`<bet_stop event_id="m1"/>`))
	assert.Equal(t, []string{"decode", "publish"}, stages)
}

func TestStart_ReadsFromProvider(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`<match_start event_id="m1"/>`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`<bet_stop event_id="m1"/>`))
		// mantém aberta até o cliente sair
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	pub := &recorder{}
	c := &service.WSClient{
		URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Log: zap.NewNop(), Publisher: pub,
		Reconnect: 10 * time.Millisecond,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return pub.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
	assert.Equal(t, events.FeedMatchStart, pub.msgs[0].Type)
}
