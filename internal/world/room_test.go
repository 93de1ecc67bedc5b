package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/iits-consulting/workadventure"
)

type roomEvent struct {
	kind     string
	name     string
	value    string
	item     ItemEvent
	emote    EmoteEvent
	count    int
	listener Transport
}

type recordingRoomSink struct {
	events []roomEvent
}

func (s *recordingRoomSink) OnItemEvent(roomID string, ev ItemEvent, listener Transport) {
	s.events = append(s.events, roomEvent{kind: "item", item: ev, listener: listener})
}

func (s *recordingRoomSink) OnVariableEvent(roomID string, name, value string, listener Transport) {
	s.events = append(s.events, roomEvent{kind: "variable", name: name, value: value, listener: listener})
}

func (s *recordingRoomSink) OnEmoteEvent(roomID string, ev EmoteEvent, listener Transport) {
	s.events = append(s.events, roomEvent{kind: "emote", emote: ev, listener: listener})
}

func (s *recordingRoomSink) OnOccupancyEvent(roomID string, count int, listener Transport) {
	s.events = append(s.events, roomEvent{kind: "occupancy", count: count, listener: listener})
}

func (s *recordingRoomSink) reset() {
	s.events = s.events[:0]
}

func (s *recordingRoomSink) ofKind(kind string) []roomEvent {
	var matched []roomEvent
	for _, ev := range s.events {
		if ev.kind == kind {
			matched = append(matched, ev)
		}
	}
	return matched
}

func newTestRoom(t *testing.T, cfg RoomConfig, sink RoomEventSink) *Room {
	t.Helper()
	if sink == nil {
		sink = nopRoomSink{}
	}
	source := ConfigSourceFunc(func(context.Context, string) (RoomConfig, error) {
		return cfg, nil
	})
	defaults := RoomConfig{CellSize: 100, MinimumDistance: 5, GroupRadius: 6}
	room, err := CreateRoom(context.Background(), "room", source, defaults, RoomDeps{
		Zone:  nopZoneSink{},
		Group: &recordingGroupSink{},
		Room:  sink,
	})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	return room
}

func TestCreateRoomPropagatesSourceFailure(t *testing.T) {
	source := ConfigSourceFunc(func(context.Context, string) (RoomConfig, error) {
		return RoomConfig{}, fmt.Errorf("map service unreachable")
	})
	_, err := CreateRoom(context.Background(), "room", source, RoomConfig{CellSize: 100, MinimumDistance: 5, GroupRadius: 6}, RoomDeps{
		Zone: nopZoneSink{}, Group: &recordingGroupSink{}, Room: nopRoomSink{},
	})
	var initErr *workadventure.RoomInitializationError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected RoomInitializationError, got %v", err)
	}
	if initErr.RoomID != "room" {
		t.Fatalf("unexpected room ID %q", initErr.RoomID)
	}
}

func TestCreateRoomRejectsInvertedThresholds(t *testing.T) {
	source := ConfigSourceFunc(func(context.Context, string) (RoomConfig, error) {
		return RoomConfig{MinimumDistance: 10, GroupRadius: 8}, nil
	})
	_, err := CreateRoom(context.Background(), "room", source, RoomConfig{CellSize: 100, MinimumDistance: 5, GroupRadius: 6}, RoomDeps{
		Zone: nopZoneSink{}, Group: &recordingGroupSink{}, Room: nopRoomSink{},
	})
	var initErr *workadventure.RoomInitializationError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected RoomInitializationError for radius <= join distance, got %v", err)
	}
}

func TestJoinRejectsAtCapacity(t *testing.T) {
	room := newTestRoom(t, RoomConfig{MaxParticipants: 1}, nil)

	join(t, room, "a", 0, 0)
	p, err := room.Join(&fakeTransport{}, JoinRequest{Name: "b"})

	var capErr *workadventure.CapacityExceededError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityExceededError, got %v", err)
	}
	if capErr.Admitted {
		t.Fatalf("rejecting policy must not admit")
	}
	if p != nil {
		t.Fatalf("rejected join must not return a participant")
	}
	if got := room.ParticipantCount(); got != 1 {
		t.Fatalf("expected 1 participant, got %d", got)
	}
}

func TestJoinAdmitsWithWarningWhenConfigured(t *testing.T) {
	room := newTestRoom(t, RoomConfig{MaxParticipants: 1, AdmitWhenFull: true}, nil)

	join(t, room, "a", 0, 0)
	p, err := room.Join(&fakeTransport{}, JoinRequest{Name: "b"})

	var capErr *workadventure.CapacityExceededError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityExceededError, got %v", err)
	}
	if !capErr.Admitted {
		t.Fatalf("admit-when-full policy must mark the error admitted")
	}
	if p == nil {
		t.Fatalf("admitted join must return the participant")
	}
	if got := room.ParticipantCount(); got != 2 {
		t.Fatalf("expected 2 participants, got %d", got)
	}
}

func TestJoinGeneratesUUIDWhenMissing(t *testing.T) {
	room := newTestRoom(t, RoomConfig{}, nil)
	p, err := room.Join(&fakeTransport{}, JoinRequest{Name: "anon"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.UUID() == "" {
		t.Fatalf("expected a generated UUID")
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	room := newTestRoom(t, RoomConfig{}, nil)
	p := join(t, room, "a", 0, 0)

	if !room.Leave(p) {
		t.Fatalf("first leave must take effect")
	}
	if room.Leave(p) {
		t.Fatalf("second leave must be a no-op")
	}
	if !room.IsEmpty() {
		t.Fatalf("room must be empty after leave")
	}
}

func TestUpdatePositionDropsRedundantAndPostLeave(t *testing.T) {
	room := newTestRoom(t, RoomConfig{}, nil)
	p := join(t, room, "a", 10, 10)

	room.UpdatePosition(p, Position{X: 10, Y: 10})
	if got := p.Position(); got.X != 10 || got.Y != 10 {
		t.Fatalf("unexpected position %+v", got)
	}

	room.Leave(p)
	room.UpdatePosition(p, Position{X: 99, Y: 99})
	if got := p.Position(); got.X != 10 {
		t.Fatalf("update after leave must be dropped, got %+v", got)
	}
}

func TestConcurrentSessionsShareUUID(t *testing.T) {
	room := newTestRoom(t, RoomConfig{}, nil)

	first, err := room.Join(&fakeTransport{}, JoinRequest{UUID: "c0ffee", Name: "tab-1"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	second, err := room.Join(&fakeTransport{}, JoinRequest{UUID: "c0ffee", Name: "tab-2"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if first.ID() == second.ID() {
		t.Fatalf("sessions must get distinct session IDs")
	}

	sessions := room.ParticipantsByUUID("c0ffee")
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions for the UUID, got %d", len(sessions))
	}

	room.Leave(first)
	if got := len(room.ParticipantsByUUID("c0ffee")); got != 1 {
		t.Fatalf("expected 1 session left, got %d", got)
	}
}

func TestSetItemStateBroadcastsAndReplays(t *testing.T) {
	sink := &recordingRoomSink{}
	room := newTestRoom(t, RoomConfig{}, sink)
	join(t, room, "a", 0, 0)
	join(t, room, "b", 50, 50)
	sink.reset()

	state := json.RawMessage(`{"open":true}`)
	room.SetItemState(7, state)

	items := sink.ofKind("item")
	if len(items) != 2 {
		t.Fatalf("expected a broadcast to both participants, got %d", len(items))
	}

	snapshot := room.ItemsSnapshot()
	if string(snapshot[7]) != `{"open":true}` {
		t.Fatalf("expected item state in snapshot, got %s", snapshot[7])
	}
}

func TestSetVariableEnforcesWriteTag(t *testing.T) {
	cfg := RoomConfig{
		Variables: []VariableDefinition{
			{Name: "doorOpen", Default: "false", WritableBy: "admin"},
		},
	}
	room := newTestRoom(t, cfg, nil)
	p := join(t, room, "visitor", 0, 0)

	err := room.SetVariable("doorOpen", "true", p)
	if !errors.Is(err, ErrVariableWriteDenied) {
		t.Fatalf("expected write denial, got %v", err)
	}

	admin, err := room.Join(&fakeTransport{}, JoinRequest{Name: "admin", Tags: []string{"admin"}})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := room.SetVariable("doorOpen", "true", admin); err != nil {
		t.Fatalf("tagged write must succeed, got %v", err)
	}
}

func TestSetVariableRejectsUndefined(t *testing.T) {
	room := newTestRoom(t, RoomConfig{}, nil)
	p := join(t, room, "a", 0, 0)

	err := room.SetVariable("ghost", "1", p)
	if !errors.Is(err, ErrUndefinedVariable) {
		t.Fatalf("expected undefined-variable error, got %v", err)
	}
}

func TestVariableBroadcastHonorsReadTag(t *testing.T) {
	cfg := RoomConfig{
		Variables: []VariableDefinition{
			{Name: "secret", Default: "", ReadableBy: "admin"},
		},
	}
	sink := &recordingRoomSink{}
	room := newTestRoom(t, cfg, sink)

	visitorTransport := &fakeTransport{name: "visitor"}
	if _, err := room.Join(visitorTransport, JoinRequest{Name: "visitor"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	adminTransport := &fakeTransport{name: "admin"}
	admin, err := room.Join(adminTransport, JoinRequest{Name: "admin", Tags: []string{"admin"}})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	sink.reset()

	if err := room.SetVariable("secret", "42", admin); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}

	vars := sink.ofKind("variable")
	if len(vars) != 1 || vars[0].listener != adminTransport {
		t.Fatalf("read-gated variable must reach only tagged participants, got %+v", vars)
	}

	visible := room.VariablesForTags(nil)
	if _, ok := visible["secret"]; ok {
		t.Fatalf("untagged snapshot must not expose the gated variable")
	}
	visible = room.VariablesForTags([]string{"admin"})
	if visible["secret"] != "42" {
		t.Fatalf("tagged snapshot must expose the gated variable, got %+v", visible)
	}
}

func TestOccupancyEventsReachRoomListeners(t *testing.T) {
	sink := &recordingRoomSink{}
	room := newTestRoom(t, RoomConfig{}, sink)

	observer := &fakeTransport{name: "observer"}
	room.AddRoomListener(observer)

	p := join(t, room, "a", 0, 0)
	events := sink.ofKind("occupancy")
	if len(events) != 1 || events[0].count != 1 {
		t.Fatalf("expected occupancy 1, got %+v", events)
	}

	sink.reset()
	room.Leave(p)
	events = sink.ofKind("occupancy")
	if len(events) != 1 || events[0].count != 0 {
		t.Fatalf("expected occupancy 0, got %+v", events)
	}

	sink.reset()
	room.RemoveRoomListener(observer)
	join(t, room, "b", 0, 0)
	if len(sink.ofKind("occupancy")) != 0 {
		t.Fatalf("removed listener must not receive occupancy events")
	}
}

func TestEmoteBroadcastsRoomWide(t *testing.T) {
	sink := &recordingRoomSink{}
	room := newTestRoom(t, RoomConfig{}, sink)
	a := join(t, room, "a", 0, 0)
	join(t, room, "b", 500, 500)
	sink.reset()

	room.EmitEmoteEvent(a, "wave")
	emotes := sink.ofKind("emote")
	if len(emotes) != 2 {
		t.Fatalf("emotes are room-wide, expected 2 deliveries, got %d", len(emotes))
	}
	if emotes[0].emote.ActorID != a.ID() || emotes[0].emote.Emote != "wave" {
		t.Fatalf("unexpected emote payload %+v", emotes[0].emote)
	}
}

func TestVersionIncrements(t *testing.T) {
	room := newTestRoom(t, RoomConfig{}, nil)
	if got := room.Version(); got != 0 {
		t.Fatalf("fresh room version must be 0, got %d", got)
	}
	if got := room.IncrementVersion(); got != 1 {
		t.Fatalf("expected version 1, got %d", got)
	}
	if got := room.IncrementVersion(); got != 2 {
		t.Fatalf("expected version 2, got %d", got)
	}
}
