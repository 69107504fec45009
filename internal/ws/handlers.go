package ws

import (
	"log"

	"github.com/codehive/backend/internal/presence"
)

// Connection lifecycle and event handlers. All of these run on the hub
// loop; a failure handling one event never stops the next.

func (h *Hub) handleJoin(c *Client, roomID string) {
	h.presence.Join(roomID, presence.Entry{
		ID:           c.userID,
		Username:     c.username,
		ConnectionID: c.connectionID,
	})

	// Chat history goes only to the joining connection
	history, err := h.chats.History(roomID)
	if err != nil {
		log.Printf("Chat history fetch failed for room %s: %v", roomID, err)
	} else {
		c.sendEvent(EventChatHistory, history)
	}

	h.Broadcast(roomID, EventUserList, h.presence.List(roomID), "")
	log.Printf("User %s joined room %s", c.username, roomID)
}

func (h *Hub) handleLeave(c *Client, roomID string) {
	h.presence.Leave(roomID, c.connectionID)
	h.Broadcast(roomID, EventUserList, h.presence.List(roomID), "")
	log.Printf("User %s left room %s", c.username, roomID)
}

// handleDisconnect covers connections that drop without an explicit
// leave, possibly while joined to several rooms at once.
func (h *Hub) handleDisconnect(c *Client) {
	for _, roomID := range h.presence.LeaveAll(c.connectionID) {
		h.Broadcast(roomID, EventUserList, h.presence.List(roomID), "")
	}
}

// handleCodeChange persists the edit (last write wins) and fans it out
// to everyone in the room except the editor. A room or file deleted
// out from under the event drops it silently; a failed write is logged
// and the broadcast still goes out.
func (h *Hub) handleCodeChange(c *Client, change CodeChange) {
	room, err := h.rooms.GetRoom(change.RoomID)
	if err != nil {
		log.Printf("Room lookup failed for %s: %v", change.RoomID, err)
	} else if room == nil {
		return
	} else {
		found, err := h.rooms.UpdateFileContent(change.RoomID, change.FileName, change.Content, change.Language)
		if err != nil {
			log.Printf("Code save failed for %s/%s: %v", change.RoomID, change.FileName, err)
		} else if !found {
			return
		}
	}

	h.Broadcast(change.RoomID, EventCodeUpdate, CodeUpdate{
		FileName:  change.FileName,
		Content:   change.Content,
		Language:  change.Language,
		UpdatedBy: c.username,
	}, c.connectionID)
}

// handleChatMessage appends to the room's log and broadcasts the stored
// record to the whole room, sender included: clients render their own
// message from the echo rather than locally.
func (h *Hub) handleChatMessage(c *Client, input ChatInput) {
	msg, err := h.chats.Append(input.RoomID, c.username, c.userID, input.Text)
	if err != nil {
		log.Printf("Chat append failed for room %s: %v", input.RoomID, err)
	}

	h.Broadcast(input.RoomID, EventNewMessage, msg, "")
}
