// Package telemetry tracks room and participant gauges. Everything here is
// fire-and-forget atomics, safe to call from lifecycle paths without ever
// blocking them.
package telemetry

import (
	"sync"
	"sync/atomic"
)

// Gauges counts live rooms and participants, with a per-room breakdown.
type Gauges struct {
	rooms        atomic.Int64
	participants atomic.Int64

	mu      sync.Mutex
	perRoom map[string]int64
}

func NewGauges() *Gauges {
	return &Gauges{perRoom: make(map[string]int64)}
}

func (g *Gauges) RoomOpened() { g.rooms.Add(1) }
func (g *Gauges) RoomClosed() { g.rooms.Add(-1) }

func (g *Gauges) ParticipantJoined(roomID string) {
	g.participants.Add(1)
	g.mu.Lock()
	g.perRoom[roomID]++
	g.mu.Unlock()
}

func (g *Gauges) ParticipantLeft(roomID string) {
	g.participants.Add(-1)
	g.mu.Lock()
	if g.perRoom[roomID]--; g.perRoom[roomID] <= 0 {
		delete(g.perRoom, roomID)
	}
	g.mu.Unlock()
}

// Snapshot is the gauge state exposed on the diagnostics endpoint.
type Snapshot struct {
	Rooms        int64            `json:"rooms"`
	Participants int64            `json:"participants"`
	PerRoom      map[string]int64 `json:"participantsPerRoom"`
}

func (g *Gauges) Snapshot() Snapshot {
	g.mu.Lock()
	perRoom := make(map[string]int64, len(g.perRoom))
	for room, count := range g.perRoom {
		perRoom[room] = count
	}
	g.mu.Unlock()
	return Snapshot{
		Rooms:        g.rooms.Load(),
		Participants: g.participants.Load(),
		PerRoom:      perRoom,
	}
}
