package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raaihank/snapvault/internal/config"
	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/progress"
	"go.uber.org/zap"
)

// Hub maintains the set of active clients and routes job events to the
// client that started the job.
type Hub struct {
	// Registered clients by ID
	clients map[string]*Client

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed once Run has returned
	done     chan struct{}
	doneOnce sync.Once

	config   config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *logger.Logger

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Statistics
	stats HubStats
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64
	ActiveConnections  int64
	TotalMessages      int64
	DroppedMessages    int64
	LastConnectionTime time.Time
	LastDisconnectTime time.Time
}

// NewHub creates a new WebSocket hub
func NewHub(cfg config.WebSocketConfig, log *logger.Logger) *Hub {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 64
	}
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     cfg,
		logger:     log.WithComponent("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run handles client registration until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket hub")
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// registerClient registers a new client and tells it its ID
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.stats.TotalConnections++
	h.stats.ActiveConnections++
	h.stats.LastConnectionTime = time.Now()

	h.logger.Info("Client connected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int64("active_connections", h.stats.ActiveConnections),
	)

	h.enqueue(client, Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now(),
		Data:      ConnectionEvent{Action: "connected", ClientID: client.ID},
	})
}

// unregisterClient unregisters a client
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.ID]; ok && current == client {
		delete(h.clients, client.ID)
		close(client.Send)
		h.stats.ActiveConnections--
		h.stats.LastDisconnectTime = time.Now()

		h.logger.Info("Client disconnected",
			zap.String("client_id", client.ID),
			zap.Int64("active_connections", h.stats.ActiveConnections),
		)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
	h.stats.ActiveConnections = 0
}

// enqueue must be called with h.mu held. A full client buffer drops the
// event rather than stalling the sender.
func (h *Hub) enqueue(client *Client, event Event) bool {
	select {
	case client.Send <- event:
		h.stats.TotalMessages++
		return true
	default:
		h.stats.DroppedMessages++
		h.logger.Warn("Client send buffer full, dropping event",
			zap.String("client_id", client.ID),
			zap.String("event_type", string(event.Type)),
		)
		return false
	}
}

// SendTo delivers an event to one client. It reports false when the client
// is unknown or its buffer is full.
func (h *Hub) SendTo(clientID string, event Event) bool {
	if clientID == "" {
		return false
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// write lock: enqueue updates stats and must not race unregister
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	return h.enqueue(client, event)
}

// JobSink returns a progress sink that forwards checkpoints of jobID to
// clientID as processing:status events.
func (h *Hub) JobSink(clientID, jobID string) progress.Sink {
	return progress.Func(func(e progress.Event) {
		h.SendTo(clientID, Event{
			Type:  EventTypeStatus,
			JobID: jobID,
			Data:  StatusEvent{Status: e.Message, Progress: e.Percent},
		})
	})
}

// HandleWebSocket upgrades the request and registers the client
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		conn:        conn,
		Send:        make(chan Event, h.config.SendBuffer),
		ConnectedAt: time.Now(),
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.writeTimeout()))
		conn.Close()
		return
	}

	go h.handleClientWrite(client)
	go h.handleClientRead(client)
}

// handleClientWrite pumps queued events and pings to the connection
func (h *Hub) handleClientWrite(client *Client) {
	ticker := time.NewTicker(h.pingInterval())
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout()))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				h.logger.Error("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout()))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientRead reads client messages until the connection drops
func (h *Hub) handleClientRead(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.conn.Close()
	}()

	conn := client.conn
	if h.config.MaxMessageSize > 0 {
		conn.SetReadLimit(h.config.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(h.pongTimeout()))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongTimeout()))
		return nil
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
			}
			return
		}

		if msg.Type == "ping" {
			h.SendTo(client.ID, Event{
				Type: EventTypePong,
				Data: map[string]string{"message": "pong"},
			})
		}
	}
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := h.stats
	stats.ActiveConnections = int64(len(h.clients))
	return stats
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.logger.Warn("Rejected WebSocket origin", zap.String("origin", origin))
	return false
}

func (h *Hub) pingInterval() time.Duration {
	if h.config.PingInterval > 0 {
		return h.config.PingInterval
	}
	return 54 * time.Second
}

func (h *Hub) pongTimeout() time.Duration {
	if h.config.PongTimeout > 0 {
		return h.config.PongTimeout
	}
	return 60 * time.Second
}

func (h *Hub) writeTimeout() time.Duration {
	if h.config.WriteTimeout > 0 {
		return h.config.WriteTimeout
	}
	return 10 * time.Second
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
