// Package registry deduplicates concurrent room acquisition. All callers
// asking for the same room ID share one pending creation; unrelated IDs
// are never blocked by a slow creation because the registry lock guards
// only the map, never the creation itself.
package registry

import (
	"context"
	"sync"

	"github.com/iits-consulting/workadventure"
	"github.com/iits-consulting/workadventure/internal/world"
)

// CreateFunc builds a room. It runs on the first caller's goroutine, after
// the pending slot is published, so concurrent callers wait on the slot
// instead of racing a second creation.
type CreateFunc func(ctx context.Context, roomID string) (*world.Room, error)

type pending struct {
	done chan struct{}
	room *world.Room
	err  error
}

func (p *pending) wait(ctx context.Context) (*world.Room, error) {
	select {
	case <-p.done:
		return p.room, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Registry maps room IDs to in-flight-or-ready rooms.
type Registry struct {
	create CreateFunc

	mu    sync.Mutex
	rooms map[string]*pending
}

func New(create CreateFunc) *Registry {
	return &Registry{
		create: create,
		rooms:  make(map[string]*pending),
	}
}

// GetOrCreate returns the room for the ID, creating it if absent. Every
// concurrent caller for one ID resolves to the same room instance. A
// failed creation propagates its error to all waiters and clears the slot
// so a later call retries cleanly.
func (r *Registry) GetOrCreate(ctx context.Context, roomID string) (*world.Room, error) {
	r.mu.Lock()
	if slot, ok := r.rooms[roomID]; ok {
		r.mu.Unlock()
		return slot.wait(ctx)
	}
	slot := &pending{done: make(chan struct{})}
	r.rooms[roomID] = slot
	r.mu.Unlock()

	room, err := r.create(ctx, roomID)
	if err != nil {
		r.mu.Lock()
		if r.rooms[roomID] == slot {
			delete(r.rooms, roomID)
		}
		r.mu.Unlock()
		slot.err = err
		close(slot.done)
		return nil, err
	}

	slot.room = room
	close(slot.done)
	return room, nil
}

// Get returns the room for the ID without creating it. A still-pending
// creation is awaited; an ID that was never created yields
// UnknownRoomError, so pure observers cannot spawn rooms.
func (r *Registry) Get(ctx context.Context, roomID string) (*world.Room, error) {
	r.mu.Lock()
	slot, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return nil, &workadventure.UnknownRoomError{RoomID: roomID}
	}
	return slot.wait(ctx)
}

// Evict reclaims the slot of an empty room and reports whether this call
// removed it. The room argument guards the delete: if a fresh creation
// already replaced the entry, the newer entry survives. Callers racing on
// the same instance see true exactly once.
func (r *Registry) Evict(roomID string, room *world.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	select {
	case <-slot.done:
	default:
		// Still creating; never evict a pending slot.
		return false
	}
	if slot.room != room {
		return false
	}
	delete(r.rooms, roomID)
	return true
}

// Count returns the number of ready or in-flight rooms.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
