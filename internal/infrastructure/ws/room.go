package ws

import (
	"sync"

	"github.com/hilthontt/chorus/internal/domain"
)

// WSRoom holds the local subscribers of one room. mu is held for the whole
// fan-out so concurrent broadcasts reach every subscriber in the same order.
type WSRoom struct {
	ID      string
	Clients map[string]*Client

	mu sync.Mutex
}

type RoomManager struct {
	rooms map[string]*WSRoom // room key → WSRoom
	mu    sync.RWMutex
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]*WSRoom),
	}
}

// Join reports whether cl was newly added.
func (rm *RoomManager) Join(roomID string, cl *Client) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, ok := rm.rooms[roomID]
	if !ok {
		room = &WSRoom{ID: roomID, Clients: make(map[string]*Client)}
		rm.rooms[roomID] = room
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if _, exists := room.Clients[cl.ID]; exists {
		return false
	}
	room.Clients[cl.ID] = cl
	return true
}

func (rm *RoomManager) Leave(roomID string, cl *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, ok := rm.rooms[roomID]
	if !ok {
		return
	}

	room.mu.Lock()
	delete(room.Clients, cl.ID)
	empty := len(room.Clients) == 0
	room.mu.Unlock()

	if empty {
		delete(rm.rooms, roomID)
	}
}

// RemoveClient drops cl from every room it joined.
func (rm *RoomManager) RemoveClient(cl *Client) {
	for _, roomID := range cl.rooms.ToSlice() {
		rm.Leave(roomID, cl)
	}
	cl.rooms.Clear()
}

func (rm *RoomManager) Members(roomID string) []string {
	rm.mu.RLock()
	room, ok := rm.rooms[roomID]
	rm.mu.RUnlock()
	if !ok {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	ids := make([]string, 0, len(room.Clients))
	for id := range room.Clients {
		ids = append(ids, id)
	}
	return ids
}

func (rm *RoomManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}

// BroadcastToRoom queues data on every local subscriber of roomID. It never
// blocks on a subscriber; those whose queue is full are returned.
func (rm *RoomManager) BroadcastToRoom(roomID string, data []byte) (delivered int, failed []*domain.TransientDeliveryError) {
	rm.mu.RLock()
	room, ok := rm.rooms[roomID]
	rm.mu.RUnlock()
	if !ok {
		return 0, nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	for _, cl := range room.Clients {
		if err := cl.enqueue(data); err != nil {
			failed = append(failed, &domain.TransientDeliveryError{ConnectionID: cl.ID, Room: roomID, Err: err})
			continue
		}
		delivered++
	}
	return delivered, failed
}
