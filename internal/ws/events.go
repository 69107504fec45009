package ws

import "encoding/json"

// Wire contract. Event names and payload shapes are what deployed
// clients speak; renaming any of them is a breaking change.
const (
	// Inbound (client -> server)
	EventJoinRoom   = "JOIN_ROOM"
	EventLeaveRoom  = "LEAVE_ROOM"
	EventCodeChange = "CODE_CHANGE"
	EventMessage    = "MESSAGE"

	// Outbound (server -> client)
	EventChatHistory = "CHAT_HISTORY"
	EventUserList    = "USER_LIST"
	EventCodeUpdate  = "CODE_UPDATE"
	EventNewMessage  = "NEW_MESSAGE"
)

// Envelope frames every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// CodeChange is the CODE_CHANGE payload.
type CodeChange struct {
	RoomID   string `json:"roomId"`
	FileName string `json:"fileName"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// ChatInput is the MESSAGE payload.
type ChatInput struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// CodeUpdate is the CODE_UPDATE payload fanned out to everyone in the
// room except the editing connection. Language is omitted when the
// editor did not send one.
type CodeUpdate struct {
	FileName  string `json:"fileName"`
	Content   string `json:"content"`
	Language  string `json:"language,omitempty"`
	UpdatedBy string `json:"updatedBy"`
}

func encodeEvent(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
