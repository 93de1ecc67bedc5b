package world

import "encoding/json"

// ItemEvent describes a mutation of one room item.
type ItemEvent struct {
	ItemID int
	State  json.RawMessage
}

// EmoteEvent is a room-wide emote broadcast from one participant.
type EmoteEvent struct {
	ActorID int32
	Emote   string
}

// RoomEventSink receives room-wide (non-spatial) broadcasts, one call per
// recipient. Item, variable, and emote events target participants;
// occupancy events target room-level listeners. Variable events reach only
// participants whose tags satisfy the variable's read gate.
//
// Callbacks fire synchronously under the room lock and must not call back
// into the room.
type RoomEventSink interface {
	OnItemEvent(roomID string, ev ItemEvent, listener Transport)
	OnVariableEvent(roomID string, name, value string, listener Transport)
	OnEmoteEvent(roomID string, ev EmoteEvent, listener Transport)
	OnOccupancyEvent(roomID string, count int, listener Transport)
}
