package apiserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Envelope is the WebSocket fan-out message shape named in spec.md §6.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Envelope type names.
const (
	EventPortfolioUpdate = "portfolio_update"
	EventNewSignal       = "new_signal"
	EventTradeExecuted   = "trade_executed"
	EventRiskAlert       = "risk_alert"
	EventCircuitBreaker  = "circuit_breaker"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans out Envelope broadcasts to every connected WebSocket client,
// grounded on the teacher's PairsWebSocketHandler
// (internal/api/websocket/pairs_ws.go) client-registry + writePump shape.
type Hub struct {
	log     *zap.Logger
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan Envelope
}

// NewHub constructs an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{log: log.Named("apiserver.hub"), clients: make(map[*websocket.Conn]chan Envelope)}
}

// Broadcast pushes an envelope to every connected client's send channel,
// dropping it for any client whose channel is currently full rather than
// blocking the caller (the orchestrator's cycle loop).
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, ch := range h.clients {
		select {
		case ch <- env:
		default:
			h.log.Warn("websocket client send buffer full, dropping envelope", zap.String("type", env.Type))
			_ = conn
		}
	}
}

// HandleConnection upgrades the request and registers the connection until
// it disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	send := make(chan Envelope, 32)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		close(send)
		conn.Close()
	}()

	go h.readPump(conn)
	h.writePump(conn, send)
}

func (h *Hub) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, send <-chan Envelope) {
	for env := range send {
		raw, err := json.Marshal(env)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}
