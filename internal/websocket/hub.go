// Package websocket pushes request-updated events to connected dashboards.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"exeat/internal/middleware"
	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/pkg/logger"
	"exeat/internal/pkg/worker"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Client represents a single connected WebSocket client
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string
	Role   model.Role
}

type message struct {
	data      []byte
	studentID string
}

// wants reports whether the client may see an event: staff see every
// request, students only their own.
func (c *Client) wants(m message) bool {
	return c.Role.IsStaff() || c.UserID == m.studentID
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex

	pool     *worker.Pool
	upgrader websocket.Upgrader
}

// NewHub initializes a new WS Hub instance. Events are handed to the hub on
// pool; an empty origin list accepts any origin.
func NewHub(pool *worker.Pool, allowedOrigins []string) *Hub {
	h := &Hub{
		broadcast:  make(chan message, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		pool:       pool,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Run starts the core dispatch loop for WebSocket events. It returns when ctx
// is cancelled, closing every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Debug("WebSocket client connected", zap.String("user_id", client.UserID), zap.String("role", string(client.Role)))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				logger.Debug("WebSocket client disconnected", zap.String("user_id", client.UserID))
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg) {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					// Slow consumer: drop it rather than stall everyone.
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues ev for delivery. It never blocks the caller; when the hub
// cannot keep up the event is dropped and clients catch up on their next fetch.
func (h *Hub) Publish(ev model.ExeatEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Failed to encode exeat event", zap.String("exeat_id", ev.ID), zap.Error(err))
		return
	}
	msg := message{data: data, studentID: ev.StudentID}

	if h.pool == nil {
		h.enqueue(context.Background(), msg)
		return
	}
	if err := h.pool.SubmitDetached(func(ctx context.Context) { h.enqueue(ctx, msg) }); err != nil {
		logger.Warn("Exeat event dropped", zap.String("exeat_id", ev.ID), zap.Error(err))
	}
}

func (h *Hub) enqueue(ctx context.Context, msg message) {
	select {
	case h.broadcast <- msg:
	case <-ctx.Done():
	default:
		logger.Warn("Exeat event dropped: hub buffer full")
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Clients only listen; reads keep the connection alive.
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}
	}
}

// Profiles looks up the current profile behind a token subject.
type Profiles interface {
	Resolve(ctx context.Context, userID string) (*model.User, error)
}

// ServeWs handles websocket requests from the peer. The token only names the
// user; the role used for filtering comes from the profile at connect time.
func ServeWs(hub *Hub, c *gin.Context, tokens *middleware.JWT, profiles Profiles) {
	// Browsers cannot set headers on a websocket handshake, so the token
	// travels as a query parameter.
	tokenString := c.Query("token")
	if tokenString == "" {
		tokenString, _ = c.Cookie("access_token")
	}
	if tokenString == "" {
		logger.Debug("WebSocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, err := tokens.Parse(tokenString)
	if err != nil {
		logger.Debug("WebSocket connection rejected: invalid token", zap.Error(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	user, err := profiles.Resolve(c.Request.Context(), claims.Subject)
	if err != nil {
		logger.Debug("WebSocket connection rejected: profile", zap.String("user_id", claims.Subject), zap.Error(err))
		c.AbortWithStatus(apperrors.StatusFor(err))
		return
	}

	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		UserID: user.ID,
		Role:   user.Role,
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
