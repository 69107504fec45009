package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codehive/backend/internal/ratelimit"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	messagesPerSecond = 100
	messageBurst      = 200
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Identity is what the authenticator establishes before any event
// handler ever sees the connection.
type Identity struct {
	UserID   string
	Username string
}

// Authenticator validates a connect-time credential.
type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	connectionID string
	userID       string
	username     string
	rateLimiter  *ratelimit.Limiter
}

// ServeWs authenticates the credential from the query string and, only
// on success, upgrades the connection and registers it with the hub.
func ServeWs(hub *Hub, auth Authenticator, w http.ResponseWriter, r *http.Request) {
	identity, err := auth.Authenticate(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 512),
		connectionID: uuid.NewString(),
		userID:       identity.UserID,
		username:     identity.Username,
		rateLimiter:  ratelimit.NewLimiter(messagesPerSecond, messageBurst),
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// sendEvent queues a private event for this connection. Non-blocking;
// a full buffer drops the event rather than stalling the hub loop.
func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		log.Printf("Failed to encode %s for %s: %v", event, c.connectionID, err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if !c.rateLimiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				log.Printf("Rate limit exceeded for %s (warning #%d)", c.connectionID, rateLimitWarnings)
			}
			if rateLimitWarnings > 1000 {
				log.Printf("Disconnecting %s for excessive rate limit violations", c.connectionID)
				return
			}
			continue
		}

		var envelope Envelope
		if err := json.Unmarshal(message, &envelope); err != nil || envelope.Event == "" {
			log.Printf("Invalid message from %s: %v", c.connectionID, err)
			continue
		}

		c.hub.inbound <- &inboundEvent{
			client: c,
			name:   envelope.Event,
			data:   envelope.Data,
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
