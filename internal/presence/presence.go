package presence

import (
	"sync"
)

// A user's registration in one room, keyed by the connection that made it.
// Two tabs of the same user produce two entries with distinct connection IDs.
type Entry struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
}

// In-memory registry of which connections are joined to which rooms.
// Rebuilt empty on restart; durable state lives elsewhere.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Entry // roomID -> connectionID -> entry
}

func NewStore() *Store {
	return &Store{
		rooms: make(map[string]map[string]Entry),
	}
}

// Join registers the entry in the room. Re-joining with the same
// connection replaces the previous entry rather than duplicating it.
func (s *Store) Join(roomID string, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		room = make(map[string]Entry)
		s.rooms[roomID] = room
	}
	room[entry.ConnectionID] = entry
}

// Leave removes the connection's entry from the room, if present.
func (s *Store) Leave(roomID, connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(room, connectionID)
	if len(room) == 0 {
		delete(s.rooms, roomID)
	}
}

// LeaveAll removes the connection from every room it joined and returns
// the affected room IDs so callers can broadcast fresh presence lists.
func (s *Store) LeaveAll(connectionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected []string
	for roomID, room := range s.rooms {
		if _, ok := room[connectionID]; ok {
			delete(room, connectionID)
			affected = append(affected, roomID)
			if len(room) == 0 {
				delete(s.rooms, roomID)
			}
		}
	}
	return affected
}

// List returns a snapshot of the room's entries. Never nil, so an empty
// room marshals as [] rather than null.
func (s *Store) List(roomID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room := s.rooms[roomID]
	entries := make([]Entry, 0, len(room))
	for _, entry := range room {
		entries = append(entries, entry)
	}
	return entries
}

// Rooms returns the IDs of rooms with at least one present connection.
func (s *Store) Rooms() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(s.rooms))
	for roomID, room := range s.rooms {
		counts[roomID] = len(room)
	}
	return counts
}

// Count returns the total number of registered entries across all rooms.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, room := range s.rooms {
		total += len(room)
	}
	return total
}
