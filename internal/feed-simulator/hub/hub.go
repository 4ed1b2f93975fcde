// Package hub mantém os clientes WebSocket do simulador e faz broadcast das
// mensagens do feed para todos eles.
package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Representa uma conexão de cliente WebSocket
type clientConn struct {
	id   string
	conn *websocket.Conn
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*clientConn
	log     *zap.Logger

	connections prometheus.Gauge
	sent        prometheus.Counter
}

// New cria o hub; as métricas são registradas por quem chama.
func New(log *zap.Logger, connections prometheus.Gauge, sent prometheus.Counter) *Hub {
	return &Hub{
		clients:     make(map[string]*clientConn),
		log:         log,
		connections: connections,
		sent:        sent,
	}
}

func (h *Hub) add(c *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.connections.Inc()
	h.log.Info("ws client connected", zap.String("client_id", c.id))
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		h.connections.Dec()
		h.log.Info("ws client disconnected", zap.String("client_id", id))
	}
}

// Len retorna o número de clientes conectados.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast envia a mensagem crua para todos os clientes. Um cliente que falha
// na escrita é fechado e sai do hub quando o loop de leitura perceber.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warn("ws write failed", zap.String("client_id", id), zap.Error(err))
			_ = c.conn.Close()
			continue
		}
		h.sent.Inc()
	}
}

// ServeHTTP faz o upgrade e segura a conexão até o cliente desconectar.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	id := uuid.NewString()
	h.add(&clientConn{id: id, conn: conn})

	go func() {
		defer func() {
			h.remove(id)
			_ = conn.Close()
		}()
		// lê e descarta mensagens do cliente para manter o socket limpo
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
