package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"linkforge-backend/shared/logger"
)

// Session event types pushed to connected clients
const (
	EventConnected            = "connection"
	EventPong                 = "pong"
	EventImpersonationStarted = "impersonation.started"
	EventImpersonationEnded   = "impersonation.ended"
	EventActionBlocked        = "impersonation.action_blocked"
	EventSessionRevoked       = "session.revoked"
)

const writeTimeout = 5 * time.Second

// SessionEvent is the message sent over a session's websocket connections
type SessionEvent struct {
	Type         string    `json:"type"`
	SessionID    string    `json:"session_id"`
	LogID        string    `json:"log_id,omitempty"`
	TargetUserID string    `json:"target_user_id,omitempty"`
	Endpoint     string    `json:"endpoint,omitempty"`
	Message      string    `json:"message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventPublisher delivers session events. Delivery is best effort.
type EventPublisher interface {
	Publish(sessionID string, event SessionEvent)
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements EventPublisher
func (NopPublisher) Publish(string, SessionEvent) {}

type hubClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *hubClient) send(event SessionEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(event)
}

// EventHub fans session events out to the websocket connections opened by
// that session. A session may hold several connections (one per tab).
type EventHub struct {
	clients  map[string]map[*hubClient]struct{} // sessionID -> connections
	mutex    sync.RWMutex
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewEventHub creates a hub accepting browser connections from allowedOrigins.
// Requests without an Origin header are accepted; "*" allows any origin.
func NewEventHub(allowedOrigins []string, log *zap.Logger) *EventHub {
	hub := &EventHub{
		clients: make(map[string]map[*hubClient]struct{}),
		log:     logger.OrNop(log).Named("events"),
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || origin == allowed {
					return true
				}
			}
			hub.log.Warn("websocket connection rejected", zap.String("origin", origin))
			return false
		},
	}
	return hub
}

func (h *EventHub) register(sessionID string, client *hubClient) {
	h.mutex.Lock()
	conns, ok := h.clients[sessionID]
	if !ok {
		conns = make(map[*hubClient]struct{})
		h.clients[sessionID] = conns
	}
	conns[client] = struct{}{}
	total := len(conns)
	h.mutex.Unlock()

	h.log.Info("websocket client connected", zap.String("session_id", sessionID), zap.Int("session_connections", total))

	if err := client.send(SessionEvent{
		Type:      EventConnected,
		SessionID: sessionID,
		Message:   "websocket connection established",
		Timestamp: time.Now().UTC(),
	}); err != nil {
		h.unregister(sessionID, client)
	}
}

func (h *EventHub) unregister(sessionID string, client *hubClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	conns, ok := h.clients[sessionID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, sessionID)
	}
	_ = client.conn.Close()
	h.log.Info("websocket client disconnected", zap.String("session_id", sessionID))
}

// Publish sends event to every connection of the session. Connections that
// fail to receive it are dropped.
func (h *EventHub) Publish(sessionID string, event SessionEvent) {
	h.mutex.RLock()
	targets := make([]*hubClient, 0, len(h.clients[sessionID]))
	for client := range h.clients[sessionID] {
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	if event.SessionID == "" {
		event.SessionID = sessionID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, client := range targets {
		if err := client.send(event); err != nil {
			h.log.Warn("failed to deliver session event",
				zap.String("session_id", sessionID),
				zap.String("type", event.Type),
				zap.Error(err),
			)
			h.unregister(sessionID, client)
		}
	}
}

// ServeSession upgrades the request and streams events for sessionID until
// the client disconnects
func (h *EventHub) ServeSession(c *gin.Context, sessionID string) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.log.Warn("failed to upgrade websocket", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	client := &hubClient{conn: conn}
	h.register(sessionID, client)
	defer h.unregister(sessionID, client)

	for {
		var message map[string]interface{}
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read failed", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}

		if msgType, ok := message["type"].(string); ok && msgType == "ping" {
			if err := client.send(SessionEvent{Type: EventPong, SessionID: sessionID, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		}
	}
}

// ConnectionCount returns the number of open connections for a session
func (h *EventHub) ConnectionCount(sessionID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[sessionID])
}

// SessionCount returns the number of sessions with at least one connection
func (h *EventHub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection
func (h *EventHub) Shutdown(ctx context.Context) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for sessionID, conns := range h.clients {
		for client := range conns {
			client.writeMu.Lock()
			_ = client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				deadline(ctx))
			client.writeMu.Unlock()
			_ = client.conn.Close()
		}
		delete(h.clients, sessionID)
	}
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(time.Second)
}
