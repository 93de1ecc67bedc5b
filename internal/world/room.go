package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/iits-consulting/workadventure"
)

var (
	// ErrUndefinedVariable rejects a write to a variable the room
	// definition does not declare.
	ErrUndefinedVariable = errors.New("variable not defined for this room")

	// ErrVariableWriteDenied rejects a write by a participant lacking the
	// variable's write tag.
	ErrVariableWriteDenied = errors.New("participant lacks the variable write tag")
)

// RoomDeps are the listener interfaces a room emits its side effects
// through. The room stays decoupled from the orchestrator's protocol
// concerns; it only ever talks to these capabilities.
type RoomDeps struct {
	Zone  ZoneEventSink
	Group GroupListener
	Room  RoomEventSink
}

// JoinRequest carries the participant identity for a room join.
type JoinRequest struct {
	UUID     string
	Name     string
	Avatar   string
	Tags     []string
	Position Position

	// OnAdmitted, when set, runs under the room lock right after the
	// participant is registered and before any zone or group side effect
	// fires, with snapshots of the item states and the variables visible to
	// it. This is the state-replay hook: whatever it writes to the
	// transport is guaranteed to precede every live event of this join. It
	// must not call back into the room.
	OnAdmitted func(p *Participant, items map[int]json.RawMessage, variables map[string]string)
}

// Room is the single source of truth for one room's live state. Every
// mutating operation is serialized through the room lock, so the zone
// index and the proximity engine always observe a consistent world.
// Different rooms share nothing and run fully in parallel.
type Room struct {
	id  string
	cfg RoomConfig

	mu            sync.Mutex
	nextSessionID int32
	participants  map[int32]*Participant
	byUUID        map[string][]*Participant
	items         map[int]json.RawMessage
	variables     map[string]string
	version       int32
	roomListeners map[Transport]struct{}

	zones     *ZoneIndex
	proximity *proximityEngine
	sink      RoomEventSink
}

// CreateRoom fetches the room definition from the map source and builds a
// ready room. A fetch or parse failure is fatal to this creation attempt
// and retryable by a later call.
func CreateRoom(ctx context.Context, id string, source ConfigSource, defaults RoomConfig, deps RoomDeps) (*Room, error) {
	cfg, err := source.FetchRoomConfig(ctx, id)
	if err != nil {
		return nil, &workadventure.RoomInitializationError{RoomID: id, Err: err}
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = defaults.CellSize
	}
	if cfg.MinimumDistance <= 0 {
		cfg.MinimumDistance = defaults.MinimumDistance
	}
	if cfg.GroupRadius <= 0 {
		cfg.GroupRadius = defaults.GroupRadius
	}
	if cfg.GroupRadius <= cfg.MinimumDistance {
		return nil, &workadventure.RoomInitializationError{
			RoomID: id,
			Err:    fmt.Errorf("group radius %v must exceed minimum distance %v", cfg.GroupRadius, cfg.MinimumDistance),
		}
	}

	room := &Room{
		id:            id,
		cfg:           cfg,
		participants:  make(map[int32]*Participant),
		byUUID:        make(map[string][]*Participant),
		items:         make(map[int]json.RawMessage),
		variables:     make(map[string]string),
		roomListeners: make(map[Transport]struct{}),
		sink:          deps.Room,
	}
	room.zones = NewZoneIndex(cfg.CellSize, deps.Zone)
	room.proximity = newProximityEngine(cfg.MinimumDistance, cfg.GroupRadius, deps.Group, room.zones)

	for _, def := range cfg.Variables {
		room.variables[def.Name] = def.Default
	}
	return room, nil
}

func (r *Room) ID() string         { return r.id }
func (r *Room) Config() RoomConfig { return r.cfg }

// Join allocates a new participant and inserts it into the zone and group
// structures via their entering path. When the room is at capacity the
// result depends on policy: rejection returns a nil participant and a
// CapacityExceededError; admit-with-warning returns both the participant
// and the error so the orchestrator can warn.
func (r *Room) Join(transport Transport, req JoinRequest) (*Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var capacityErr error
	if r.cfg.MaxParticipants > 0 && len(r.participants) >= r.cfg.MaxParticipants {
		err := &workadventure.CapacityExceededError{
			RoomID:   r.id,
			Limit:    r.cfg.MaxParticipants,
			Admitted: r.cfg.AdmitWhenFull,
		}
		if !r.cfg.AdmitWhenFull {
			return nil, err
		}
		capacityErr = err
	}

	participantUUID := req.UUID
	if participantUUID == "" {
		participantUUID = uuid.NewString()
	}

	r.nextSessionID++
	p := &Participant{
		id:        r.nextSessionID,
		uuid:      participantUUID,
		name:      req.Name,
		avatar:    req.Avatar,
		tags:      append([]string(nil), req.Tags...),
		transport: transport,
		pos:       req.Position,
	}
	r.participants[p.id] = p
	r.byUUID[p.uuid] = append(r.byUUID[p.uuid], p)

	if req.OnAdmitted != nil {
		req.OnAdmitted(p, r.itemsSnapshotLocked(), r.variablesForTagsLocked(p.tags))
	}

	r.zones.Enter(p)
	r.proximity.refresh(p, r.candidatesLocked())
	r.broadcastOccupancyLocked()

	return p, capacityErr
}

// Leave removes the participant from its group and zones and drops it from
// the participant maps. Safe to call more than once (concurrent disconnect
// and ban both funnel here); only the first call has any effect, and only
// that call returns true.
func (r *Room) Leave(p *Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.left {
		return false
	}
	p.left = true

	r.proximity.remove(p)
	r.zones.Leave(p)

	delete(r.participants, p.id)
	sessions := r.byUUID[p.uuid]
	for i, session := range sessions {
		if session == p {
			sessions = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
	if len(sessions) == 0 {
		delete(r.byUUID, p.uuid)
	} else {
		r.byUUID[p.uuid] = sessions
	}

	r.broadcastOccupancyLocked()
	return true
}

// UpdatePosition applies a movement, delegating zone and group
// recomputation. Redundant updates with an unchanged position are dropped
// without error.
func (r *Room) UpdatePosition(p *Participant, pos Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.left || p.pos == pos {
		return
	}
	p.pos = pos
	r.zones.Move(p)
	r.proximity.refresh(p, r.candidatesLocked())
}

// SetSilent flips the grouping opt-out. Turning silent while grouped
// forces a group leave; turning loud re-evaluates grouping immediately.
func (r *Room) SetSilent(p *Participant, silent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.left || p.silent == silent {
		return
	}
	p.silent = silent
	r.proximity.refresh(p, r.candidatesLocked())
}

// SetItemState stores the item's new state blob and broadcasts the event
// room-wide. Items are never removed individually.
func (r *Room) SetItemState(itemID int, state json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[itemID] = state
	ev := ItemEvent{ItemID: itemID, State: state}
	for _, p := range r.participants {
		r.sink.OnItemEvent(r.id, ev, p.transport)
	}
}

// SetVariable applies a tag-gated variable write and broadcasts the new
// value to every participant allowed to read it, plus room listeners.
func (r *Room) SetVariable(name, value string, actor *Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.variableDefinition(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUndefinedVariable, name)
	}
	if def.WritableBy != "" && (actor == nil || !actor.HasTag(def.WritableBy)) {
		return fmt.Errorf("%w: %q requires tag %q", ErrVariableWriteDenied, name, def.WritableBy)
	}

	r.variables[name] = value
	for _, p := range r.participants {
		if def.ReadableBy == "" || p.HasTag(def.ReadableBy) {
			r.sink.OnVariableEvent(r.id, name, value, p.transport)
		}
	}
	for listener := range r.roomListeners {
		r.sink.OnVariableEvent(r.id, name, value, listener)
	}
	return nil
}

// EmitEmoteEvent broadcasts an emote room-wide. Emotes are low-frequency
// and not zone-scoped.
func (r *Room) EmitEmoteEvent(actor *Participant, emote string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := EmoteEvent{ActorID: actor.id, Emote: emote}
	for _, p := range r.participants {
		r.sink.OnEmoteEvent(r.id, ev, p.transport)
	}
}

// AddZoneListener subscribes a spatial listener around a focus cell and
// returns the current snapshot of that neighborhood.
func (r *Room) AddZoneListener(listener Transport, focusX, focusY int) []Movable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zones.AddListener(listener, focusX, focusY)
}

// RemoveZoneListener drops one zone subscription; unknown pairs are no-ops.
func (r *Room) RemoveZoneListener(listener Transport, focusX, focusY int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones.RemoveListener(listener, focusX, focusY)
}

// AddRoomListener subscribes a listener to room-wide lifecycle events.
func (r *Room) AddRoomListener(listener Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomListeners[listener] = struct{}{}
}

// RemoveRoomListener unsubscribes; absent listeners are a no-op.
func (r *Room) RemoveRoomListener(listener Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roomListeners, listener)
}

// IncrementVersion bumps the monotonic room version used to invalidate
// stale client caches of the room layout, and returns the new value.
func (r *Room) IncrementVersion() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version++
	return r.version
}

// Version returns the current room version.
func (r *Room) Version() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// IsEmpty reports whether no participants remain; the registry uses it to
// reclaim the room slot.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants) == 0
}

// ParticipantCount returns the current occupancy.
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// Participants returns a snapshot of all current participants.
func (r *Room) Participants() []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	participants := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		participants = append(participants, p)
	}
	return participants
}

// ParticipantBySession looks one participant up by session ID.
func (r *Room) ParticipantBySession(id int32) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	return p, ok
}

// ParticipantsByUUID returns every concurrent session of one stable UUID.
func (r *Room) ParticipantsByUUID(userUUID string) []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := r.byUUID[userUUID]
	out := make([]*Participant, len(sessions))
	copy(out, sessions)
	return out
}

// ItemsSnapshot copies the item map for join replay.
func (r *Room) ItemsSnapshot() map[int]json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.itemsSnapshotLocked()
}

func (r *Room) itemsSnapshotLocked() map[int]json.RawMessage {
	items := make(map[int]json.RawMessage, len(r.items))
	for id, state := range r.items {
		items[id] = state
	}
	return items
}

// VariablesForTags returns the variables visible to a participant carrying
// the given tags, applying each definition's read gate.
func (r *Room) VariablesForTags(tags []string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.variablesForTagsLocked(tags)
}

func (r *Room) variablesForTagsLocked(tags []string) map[string]string {
	hasTag := func(tag string) bool {
		for _, t := range tags {
			if t == tag {
				return true
			}
		}
		return false
	}

	visible := make(map[string]string)
	for _, def := range r.cfg.Variables {
		if def.ReadableBy != "" && !hasTag(def.ReadableBy) {
			continue
		}
		visible[def.Name] = r.variables[def.Name]
	}
	return visible
}

func (r *Room) variableDefinition(name string) (VariableDefinition, bool) {
	for _, def := range r.cfg.Variables {
		if def.Name == name {
			return def, true
		}
	}
	return VariableDefinition{}, false
}

func (r *Room) candidatesLocked() []*Participant {
	candidates := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		candidates = append(candidates, p)
	}
	return candidates
}

func (r *Room) broadcastOccupancyLocked() {
	count := len(r.participants)
	for listener := range r.roomListeners {
		r.sink.OnOccupancyEvent(r.id, count, listener)
	}
}
