// Package realtime fans board mutations out to the live connections that
// joined the board's room.
package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Hub owns the mapping from board id to the connections in its room. Join,
// Leave and Broadcast are the only ways in.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

// Join reports false when c was already in the room.
func (h *Hub) Join(boardID string, c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[boardID]
	if !ok {
		room = make(map[*Conn]struct{})
		h.rooms[boardID] = room
	}
	if _, ok := room[c]; ok {
		return false
	}
	room[c] = struct{}{}
	return true
}

// Leave reports false when c was not in the room.
func (h *Hub) Leave(boardID string, c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[boardID]
	if !ok {
		return false
	}
	if _, ok := room[c]; !ok {
		return false
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, boardID)
	}
	return true
}

// Broadcast queues v, encoded once, on every connection in the room and
// returns how many accepted it.
func (h *Hub) Broadcast(boardID string, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to encode frame: %w", err)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.rooms[boardID] {
		if c.enqueue(data) {
			delivered++
		}
	}
	return delivered, nil
}

func (h *Hub) leaveAll(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for boardID, room := range h.rooms {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, boardID)
		}
	}
}

// evict empties a room, for a board that no longer exists.
func (h *Hub) evict(boardID string) {
	h.mu.Lock()
	delete(h.rooms, boardID)
	h.mu.Unlock()
}

// evictUser removes the connections of one user from a room.
func (h *Hub) evictUser(boardID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[boardID]
	for c := range room {
		if c.userID == userID {
			delete(room, c)
		}
	}
	if room != nil && len(room) == 0 {
		delete(h.rooms, boardID)
	}
}

func (h *Hub) roomSize(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[boardID])
}
