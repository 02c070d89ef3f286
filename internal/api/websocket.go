package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/swncrew-core/internal/infrastructure/config"
	"github.com/nerrad567/swncrew-core/internal/infrastructure/logging"
	"github.com/nerrad567/swncrew-core/internal/notify"
)

// WebSocket message types and event names.
const (
	WSTypeEvent = "event"

	EventMissionCompleted  = "mission.completed"
	EventMissionClassified = "mission.classified"

	// wsSendBufferSize is the per-client outbound event buffer size.
	wsSendBufferSize = 64
)

// Fallbacks for a zero WebSocketConfig.
const (
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 4096
)

// WSMessage is one event sent to a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// Hub tracks open WebSocket connections so they can be closed on shutdown.
type Hub struct {
	logger  *logging.Logger
	clients map[*websocket.Conn]struct{}
	mu      sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	wsClients.Set(float64(n))
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()

	wsClients.Set(float64(n))
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll closes every connection; each client's pumps then unwind and
// unregister it.
func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.clients {
		conn.Close()
	}
}

// handleCompletedStream streams missions completed after the client connects.
func (s *Server) handleCompletedStream(w http.ResponseWriter, r *http.Request) {
	serveStream(s, w, r, EventMissionCompleted, s.controller.SubscribeCompleted, s.controller.UnsubscribeCompleted)
}

// handleClassifiedStream streams classification results, starting with
// the most recent one if any.
func (s *Server) handleClassifiedStream(w http.ResponseWriter, r *http.Request) {
	serveStream(s, w, r, EventMissionClassified, s.controller.SubscribeClassified, s.controller.UnsubscribeClassified)
}

// serveStream upgrades the connection and subscribes it to a topic until
// either side goes away.
func serveStream[T any](
	s *Server,
	w http.ResponseWriter,
	r *http.Request,
	eventType string,
	subscribe func(context.Context, notify.Subscriber[T]) notify.Subscription,
	unsubscribe func(notify.Subscription),
) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an error response
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	stream := notify.NewStream[T](wsSendBufferSize)
	s.hub.register(conn)
	sub := subscribe(context.Background(), stream)

	go func() {
		readPump(conn, s.wsCfg, s.logger)
		stream.Close()
	}()
	go func() {
		writePump(conn, s.wsCfg, stream, eventType)
		unsubscribe(sub)
		stream.Close()
		s.hub.unregister(conn)
		conn.Close()
	}()
}

func wsTimings(cfg config.WebSocketConfig) (pingInterval, pongWait time.Duration) {
	pingInterval, pongWait = defaultPingInterval, defaultPongTimeout
	if cfg.PingInterval > 0 {
		pingInterval = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pongWait = time.Duration(cfg.PongTimeout) * time.Second
	}
	return pingInterval, pongWait
}

// readPump discards client messages and returns when the connection
// fails or stops answering pings.
func readPump(conn *websocket.Conn, cfg config.WebSocketConfig, logger *logging.Logger) {
	limit := int64(cfg.MaxMessageSize)
	if limit <= 0 {
		limit = defaultMaxMessageSize
	}
	conn.SetReadLimit(limit)

	pingInterval, pongWait := wsTimings(cfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// writePump sends each streamed value as an event and pings the client
// periodically.
func writePump[T any](conn *websocket.Conn, cfg config.WebSocketConfig, stream *notify.Stream[T], eventType string) {
	pingInterval, pongWait := wsTimings(cfg)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case v := <-stream.C():
			data, err := json.Marshal(WSMessage{
				Type:      WSTypeEvent,
				EventType: eventType,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Payload:   v,
			})
			if err != nil {
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-stream.Done():
			//nolint:errcheck // Best-effort close message
			conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
