package chat

import (
	"sync"
	"time"

	"github.com/codehive/backend/internal/db"
)

// Store is the slice of the database the chat service needs.
type Store interface {
	AppendChatMessage(roomID, author, authorID, text string, timestamp time.Time) error
	GetChatMessages(roomID string) ([]db.ChatMessage, error)
}

// Service owns the per-room chat logs: append with server-assigned
// timestamps and ordered history reads. The log for a room is created
// implicitly by its first append.
type Service struct {
	store Store

	mu   sync.Mutex
	last map[string]time.Time // roomID -> last assigned timestamp
}

func New(store Store) *Service {
	return &Service{
		store: store,
		last:  make(map[string]time.Time),
	}
}

// Append stamps and persists a message, returning the stored record.
// The returned message and any later History read are identical; a
// persistence error is returned alongside the message so callers can
// still broadcast it.
func (s *Service) Append(roomID, author, authorID, text string) (db.ChatMessage, error) {
	msg := db.ChatMessage{
		Author:    author,
		AuthorID:  authorID,
		Text:      text,
		Timestamp: s.stamp(roomID),
	}

	err := s.store.AppendChatMessage(roomID, msg.Author, msg.AuthorID, msg.Text, msg.Timestamp)
	return msg, err
}

// History returns the room's messages in append order. Never nil.
func (s *Service) History(roomID string) ([]db.ChatMessage, error) {
	messages, err := s.store.GetChatMessages(roomID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []db.ChatMessage{}
	}
	return messages, nil
}

// stamp assigns a timestamp that never moves backwards within a room,
// so a clock step cannot make the visible history look reordered.
func (s *Service) stamp(roomID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if last, ok := s.last[roomID]; ok && now.Before(last) {
		now = last
	}
	s.last[roomID] = now
	return now
}
