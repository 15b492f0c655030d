package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nursdev/lms-notifications/internal/realtime"
	jwtutil "github.com/nursdev/lms-notifications/pkg/jwt"
	"github.com/nursdev/lms-notifications/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ClientFrame is a message sent by a connected client. Action is one of
// "join", "leave" or "chat".
type ClientFrame struct {
	Action string `json:"action"`
	Room   string `json:"room,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
	Text   string `json:"text,omitempty"`
}

// ChatPayload is the chat event body pushed to chat room members.
type ChatPayload struct {
	ChatID   string    `json:"chat_id"`
	SenderID string    `json:"sender_id"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

type socketClient struct {
	conn   *websocket.Conn
	userID string
	send   chan realtime.Event
	done   chan struct{}

	// gorilla/websocket allows one concurrent writer; the write pump and the
	// read loop's error replies share the connection.
	writeMu sync.Mutex
}

func (c *socketClient) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// SocketHandler owns the websocket endpoint and the live connection table.
// It is the push transport for the broadcaster: Push hands an event to the
// connection's outbound queue, and a full queue counts as a dead connection.
type SocketHandler struct {
	Registry    *realtime.Registry
	Broadcaster *realtime.Broadcaster
	JWTSecret   string

	mu      sync.Mutex
	clients map[string]*socketClient
}

func NewSocketHandler(registry *realtime.Registry, jwtSecret string) *SocketHandler {
	return &SocketHandler{
		Registry:  registry,
		JWTSecret: jwtSecret,
		clients:   make(map[string]*socketClient),
	}
}

// Push implements realtime.Pusher.
func (h *SocketHandler) Push(connID string, ev realtime.Event) error {
	h.mu.Lock()
	client, ok := h.clients[connID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("connection %s is gone", connID)
	}

	select {
	case <-client.done:
		return fmt.Errorf("connection %s is gone", connID)
	case client.send <- ev:
		return nil
	default:
		return fmt.Errorf("connection %s send queue full", connID)
	}
}

// GET /ws?token=...
func (h *SocketHandler) ServeWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}
	claims, err := jwtutil.ValidateToken(token, h.JWTSecret)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		logger.Log.Warnf("WebSocket auth failed: %v", err)
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	connID := uuid.NewString()
	client := &socketClient{
		conn:   conn,
		userID: userID,
		send:   make(chan realtime.Event, 32),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[connID] = client
	h.mu.Unlock()

	// Every session starts in its identity and notification rooms; course
	// and chat rooms are joined on request.
	h.Registry.Join(connID, realtime.UserRoom(userID))
	h.Registry.Join(connID, realtime.NotificationsRoom(userID))
	h.Registry.Join(connID, realtime.NotificationsAllRoom)
	if claims.Role != "" {
		h.Registry.Join(connID, realtime.NotificationsRoleRoom(claims.Role))
	}

	logger.Log.Infof("WebSocket connected: user %s connection %s", userID, connID)

	go h.writePump(connID, client)
	h.readPump(connID, client)
}

func (h *SocketHandler) writePump(connID string, client *socketClient) {
	for {
		select {
		case <-client.done:
			return
		case ev := <-client.send:
			if err := client.writeJSON(ev); err != nil {
				logger.Log.Warnf("WebSocket write failed for connection %s: %v", connID, err)
				client.conn.Close()
				return
			}
		}
	}
}

func (h *SocketHandler) readPump(connID string, client *socketClient) {
	defer h.disconnect(connID, client)

	for {
		var frame ClientFrame
		if err := client.conn.ReadJSON(&frame); err != nil {
			logger.Log.Debugf("WebSocket read ended for connection %s: %v", connID, err)
			return
		}

		switch frame.Action {
		case "join":
			if !realtime.JoinableByClient(frame.Room) {
				client.writeJSON(map[string]string{
					"error": "room not joinable",
					"room":  frame.Room,
				})
				continue
			}
			h.Registry.Join(connID, frame.Room)

		case "leave":
			if !realtime.JoinableByClient(frame.Room) {
				continue
			}
			h.Registry.Leave(connID, frame.Room)

		case "chat":
			if frame.ChatID == "" || frame.Text == "" {
				continue
			}
			h.Broadcaster.ChatMessage(frame.ChatID, ChatPayload{
				ChatID:   frame.ChatID,
				SenderID: client.userID,
				Text:     frame.Text,
				SentAt:   time.Now(),
			})

		default:
			client.writeJSON(map[string]string{
				"error": "unknown action",
			})
		}
	}
}

func (h *SocketHandler) disconnect(connID string, client *socketClient) {
	h.Registry.LeaveAll(connID)

	h.mu.Lock()
	delete(h.clients, connID)
	h.mu.Unlock()

	close(client.done)
	client.conn.Close()
	logger.Log.Infof("WebSocket disconnected: user %s connection %s", client.userID, connID)
}
