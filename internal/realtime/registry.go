package realtime

import (
	"sync"

	"github.com/angelmondragon/sharedwishlist/pkg/metrics"
	"github.com/google/uuid"
)

// Registry maps wishlist rooms to the sessions subscribed to them. It performs
// no authorization; joining is routing only.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]map[*Session]struct{}
	sessions map[*Session]map[uuid.UUID]struct{}
	metrics  *metrics.RealtimeMetrics
}

func NewRegistry(m *metrics.RealtimeMetrics) *Registry {
	return &Registry{
		rooms:    make(map[uuid.UUID]map[*Session]struct{}),
		sessions: make(map[*Session]map[uuid.UUID]struct{}),
		metrics:  m,
	}
}

// Add tracks a newly connected session with no subscriptions.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	if _, ok := r.sessions[s]; !ok {
		r.sessions[s] = make(map[uuid.UUID]struct{})
	}
	r.reportLocked()
	r.mu.Unlock()
}

// Join subscribes s to the wishlist room. It returns false when s was already
// subscribed.
func (r *Registry) Join(s *Session, wishlistID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.sessions[s]
	if !ok {
		subs = make(map[uuid.UUID]struct{})
		r.sessions[s] = subs
	}
	if _, joined := subs[wishlistID]; joined {
		return false
	}
	subs[wishlistID] = struct{}{}

	room, ok := r.rooms[wishlistID]
	if !ok {
		room = make(map[*Session]struct{})
		r.rooms[wishlistID] = room
	}
	room[s] = struct{}{}
	r.reportLocked()
	return true
}

// Leave unsubscribes s from the room. It returns false when s was not subscribed.
func (r *Registry) Leave(s *Session, wishlistID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.sessions[s]
	if !ok {
		return false
	}
	if _, joined := subs[wishlistID]; !joined {
		return false
	}
	delete(subs, wishlistID)
	r.dropFromRoomLocked(s, wishlistID)
	r.reportLocked()
	return true
}

// Remove forgets s entirely and returns the rooms it was subscribed to.
func (r *Registry) Remove(s *Session) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.sessions[s]
	if !ok {
		return nil
	}
	left := make([]uuid.UUID, 0, len(subs))
	for wishlistID := range subs {
		r.dropFromRoomLocked(s, wishlistID)
		left = append(left, wishlistID)
	}
	delete(r.sessions, s)
	r.reportLocked()
	return left
}

// MembersOf snapshots the sessions currently in the room.
func (r *Registry) MembersOf(wishlistID uuid.UUID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[wishlistID]
	out := make([]*Session, 0, len(room))
	for s := range room {
		out = append(out, s)
	}
	return out
}

// Subscriptions lists the rooms s is subscribed to.
func (r *Registry) Subscriptions(s *Session) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.sessions[s]
	out := make([]uuid.UUID, 0, len(subs))
	for wishlistID := range subs {
		out = append(out, wishlistID)
	}
	return out
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) dropFromRoomLocked(s *Session, wishlistID uuid.UUID) {
	room, ok := r.rooms[wishlistID]
	if !ok {
		return
	}
	delete(room, s)
	if len(room) == 0 {
		delete(r.rooms, wishlistID)
	}
}

func (r *Registry) reportLocked() {
	r.metrics.SetSessions(len(r.sessions))
	r.metrics.SetRooms(len(r.rooms))
}
