package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/codehive/backend/internal/db"
	"github.com/codehive/backend/internal/presence"
)

// RoomStore is the slice of the database edit propagation needs.
type RoomStore interface {
	GetRoom(roomID string) (*db.Room, error)
	UpdateFileContent(roomID, fileName, content, language string) (bool, error)
}

// ChatService persists chat messages and serves history on join.
type ChatService interface {
	Append(roomID, author, authorID, text string) (db.ChatMessage, error)
	History(roomID string) ([]db.ChatMessage, error)
}

// Hub owns every live connection and runs the single event loop that
// serializes join/leave/edit/chat handling, so subscribers within a
// room observe events in the order the server accepted them.
type Hub struct {
	presence *presence.Store
	rooms    RoomStore
	chats    ChatService

	// Register requests from new connections
	register chan *Client

	// Unregister requests on transport close
	unregister chan *Client

	// Inbound events from connected clients
	inbound chan *inboundEvent

	mu      sync.RWMutex
	clients map[string]*Client // connectionID -> client
}

type inboundEvent struct {
	client *Client
	name   string
	data   json.RawMessage
}

func NewHub(pres *presence.Store, rooms RoomStore, chats ChatService) *Hub {
	return &Hub{
		presence:   pres,
		rooms:      rooms,
		chats:      chats,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *inboundEvent, 256),
		clients:    make(map[string]*Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connectionID] = client
			clientCount := len(h.clients)
			h.mu.Unlock()

			log.Printf("User %s connected (total: %d)", client.username, clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.connectionID]; ok {
				delete(h.clients, client.connectionID)
				close(client.send)
			}
			h.mu.Unlock()

			h.handleDisconnect(client)
			log.Printf("User %s disconnected", client.username)

		case event := <-h.inbound:
			h.dispatch(event)
		}
	}
}

func (h *Hub) dispatch(event *inboundEvent) {
	// The connection may have unregistered while this event sat in the
	// inbound buffer. Its send channel is already closed and its presence
	// entries are gone, so the event is dropped.
	h.mu.RLock()
	_, registered := h.clients[event.client.connectionID]
	h.mu.RUnlock()
	if !registered {
		return
	}

	switch event.name {
	case EventJoinRoom:
		var roomID string
		if err := json.Unmarshal(event.data, &roomID); err != nil {
			log.Printf("Invalid JOIN_ROOM payload from %s: %v", event.client.connectionID, err)
			return
		}
		h.handleJoin(event.client, roomID)

	case EventLeaveRoom:
		var roomID string
		if err := json.Unmarshal(event.data, &roomID); err != nil {
			log.Printf("Invalid LEAVE_ROOM payload from %s: %v", event.client.connectionID, err)
			return
		}
		h.handleLeave(event.client, roomID)

	case EventCodeChange:
		var change CodeChange
		if err := json.Unmarshal(event.data, &change); err != nil {
			log.Printf("Invalid CODE_CHANGE payload from %s: %v", event.client.connectionID, err)
			return
		}
		h.handleCodeChange(event.client, change)

	case EventMessage:
		var input ChatInput
		if err := json.Unmarshal(event.data, &input); err != nil {
			log.Printf("Invalid MESSAGE payload from %s: %v", event.client.connectionID, err)
			return
		}
		h.handleChatMessage(event.client, input)

	default:
		log.Printf("Unknown event %q from %s", event.name, event.client.connectionID)
	}
}

// Broadcast fans the event out to every connection currently present in
// the room, optionally skipping one. Fire-and-forget: a client whose
// send buffer is full misses the event rather than stalling the loop.
func (h *Hub) Broadcast(roomID, event string, payload interface{}, excludeConnID string) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		log.Printf("Failed to encode %s broadcast for room %s: %v", event, roomID, err)
		return
	}

	for _, entry := range h.presence.List(roomID) {
		if entry.ConnectionID == excludeConnID {
			continue
		}
		h.mu.RLock()
		client := h.clients[entry.ConnectionID]
		h.mu.RUnlock()
		if client == nil {
			continue
		}
		select {
		case client.send <- data:
		default:
		}
	}
}

// Counts for the stats endpoint.

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetRoomCount() int {
	return len(h.presence.Rooms())
}

func (h *Hub) GetActiveRooms() map[string]int {
	return h.presence.Rooms()
}
