// Package session orchestrates the full lifecycle of connected
// participants: room acquisition, join replay, movement backpressure,
// mesh signaling, subscriber fan-out and the administrative surface. It
// owns every wire message; the world layer below it never sees protocol.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/iits-consulting/workadventure"
	"github.com/iits-consulting/workadventure/internal/loadsignal"
	"github.com/iits-consulting/workadventure/internal/mesh"
	"github.com/iits-consulting/workadventure/internal/net/proto"
	"github.com/iits-consulting/workadventure/internal/registry"
	"github.com/iits-consulting/workadventure/internal/telemetry"
	"github.com/iits-consulting/workadventure/internal/token"
	"github.com/iits-consulting/workadventure/internal/world"
	"github.com/iits-consulting/workadventure/logging"
)

// Config tunes the orchestrator's policies.
type Config struct {
	// Defaults fill the gaps of room definitions that omit spatial tuning.
	Defaults world.RoomConfig

	// ShedThreshold is the normalized load at which continuous movement
	// updates start being dropped. Final (non-moving) updates always land.
	ShedThreshold float64

	// BanGraceDelay is how long a banned participant keeps its connection
	// after the ban notice, so the notice can flush.
	BanGraceDelay time.Duration
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Source      world.ConfigSource
	Credentials *mesh.Issuer
	Tokens      *token.Issuer
	Load        loadsignal.Signal
	Gauges      *telemetry.Gauges
	Publisher   logging.Publisher
}

// Orchestrator coordinates rooms, sessions and subscribers.
type Orchestrator struct {
	cfg   Config
	deps  Deps
	rooms *registry.Registry

	shedTotal atomic.Uint64

	// schedule defers the forced leave of a banned participant; tests swap
	// it to run synchronously.
	schedule func(delay time.Duration, fn func())
}

// NewOrchestrator wires an orchestrator. Nil optional collaborators are
// replaced with inert defaults.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	if cfg.Defaults.CellSize <= 0 {
		cfg.Defaults.CellSize = workadventure.DefaultCellSize
	}
	if cfg.Defaults.MinimumDistance <= 0 {
		cfg.Defaults.MinimumDistance = workadventure.DefaultMinimumDistance
	}
	if cfg.Defaults.GroupRadius <= 0 {
		cfg.Defaults.GroupRadius = workadventure.DefaultGroupRadius
	}
	if cfg.ShedThreshold <= 0 {
		cfg.ShedThreshold = workadventure.DefaultShedThreshold
	}
	if cfg.BanGraceDelay <= 0 {
		cfg.BanGraceDelay = workadventure.DefaultBanGraceDelay
	}
	if deps.Credentials == nil {
		deps.Credentials = mesh.NewIssuer("", 0)
	}
	if deps.Load == nil {
		deps.Load = loadsignal.Static(0)
	}
	if deps.Gauges == nil {
		deps.Gauges = telemetry.NewGauges()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}

	o := &Orchestrator{
		cfg:  cfg,
		deps: deps,
		schedule: func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, fn)
		},
	}
	o.rooms = registry.New(o.createRoom)
	return o
}

func (o *Orchestrator) createRoom(ctx context.Context, roomID string) (*world.Room, error) {
	room, err := world.CreateRoom(ctx, roomID, o.deps.Source, o.cfg.Defaults, world.RoomDeps{
		Zone:  o,
		Group: o,
		Room:  o,
	})
	if err != nil {
		o.deps.Publisher.Publish(ctx, logging.Event{
			Type:     "roomCreateFailed",
			Room:     roomID,
			Severity: logging.SeverityError,
			Category: logging.CategoryLifecycle,
			Payload:  err.Error(),
		})
		return nil, err
	}
	o.deps.Gauges.RoomOpened()
	o.deps.Publisher.Publish(ctx, logging.Event{
		Type:     "roomCreated",
		Room:     roomID,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
	})
	return room, nil
}

// JoinParams carries everything needed to place a participant in a room.
type JoinParams struct {
	RoomID   string
	UUID     string
	Name     string
	Avatar   string
	Tags     []string
	Position world.Position
}

// JoinRoom resolves (or creates) the room, admits the participant and
// replays the room state on its transport before any live event can reach
// it. An over-capacity join either fails outright or, when the room policy
// admits with warning, succeeds after pushing the full-world notice.
func (o *Orchestrator) JoinRoom(ctx context.Context, transport world.Transport, params JoinParams) (*Session, error) {
	room, err := o.rooms.GetOrCreate(ctx, params.RoomID)
	if err != nil {
		return nil, err
	}

	p, err := room.Join(transport, world.JoinRequest{
		UUID:     params.UUID,
		Name:     params.Name,
		Avatar:   params.Avatar,
		Tags:     params.Tags,
		Position: params.Position,

		// Replay the room state before any live event of this join can
		// reach the transport.
		OnAdmitted: func(p *world.Participant, items map[int]json.RawMessage, variables map[string]string) {
			o.send(transport, proto.RoomJoinedMessage{
				Ver:       workadventure.ProtocolVersion,
				Type:      proto.TypeRoomJoined,
				UserID:    p.ID(),
				Tags:      p.Tags(),
				Items:     items,
				Variables: variables,
			})
		},
	})
	if err != nil {
		var capacityErr *workadventure.CapacityExceededError
		if !errors.As(err, &capacityErr) || !capacityErr.Admitted {
			o.releaseIfEmpty(room)
			return nil, err
		}
	}

	o.deps.Gauges.ParticipantJoined(room.ID())
	o.deps.Publisher.Publish(ctx, logging.Event{
		Type:     "participantJoined",
		Room:     room.ID(),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Actor:    participantRef(p),
	})

	if err != nil {
		// Admitted over capacity; warn the participant.
		o.send(transport, proto.WorldFullWarningMessage{
			Ver:  workadventure.ProtocolVersion,
			Type: proto.TypeWorldFullWarning,
		})
		o.deps.Publisher.Publish(ctx, logging.Event{
			Type:     "roomOverCapacity",
			Room:     room.ID(),
			Severity: logging.SeverityWarn,
			Category: logging.CategoryLifecycle,
			Actor:    participantRef(p),
		})
	}

	o.broadcastUserList(room)
	return &Session{orch: o, room: room, participant: p}, nil
}

// broadcastUserList pushes the refreshed roster to every participant
// after a membership change.
func (o *Orchestrator) broadcastUserList(room *world.Room) {
	participants := room.Participants()
	users := lo.Map(participants, func(p *world.Participant, _ int) proto.UserListEntry {
		return proto.UserListEntry{UserID: p.ID(), Name: p.Name(), Avatar: p.Avatar()}
	})
	message := proto.UserListMessage{
		Ver:   workadventure.ProtocolVersion,
		Type:  proto.TypeUserList,
		Users: users,
	}
	for _, p := range participants {
		o.send(p.Transport(), message)
	}
}

// leave funnels every departure path: voluntary disconnect, ban
// enforcement, admin eviction. Only the first effective leave per
// participant touches gauges or can close the room.
func (o *Orchestrator) leave(room *world.Room, p *world.Participant) {
	if !room.Leave(p) {
		return
	}
	o.deps.Gauges.ParticipantLeft(room.ID())
	o.deps.Publisher.Publish(context.Background(), logging.Event{
		Type:     "participantLeft",
		Room:     room.ID(),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Actor:    participantRef(p),
	})
	o.broadcastUserList(room)
	o.releaseIfEmpty(room)
}

func (o *Orchestrator) releaseIfEmpty(room *world.Room) {
	if !room.IsEmpty() {
		return
	}
	// Departure paths race here; only the caller whose eviction landed may
	// move the gauge.
	if !o.rooms.Evict(room.ID(), room) {
		return
	}
	o.deps.Gauges.RoomClosed()
	o.deps.Publisher.Publish(context.Background(), logging.Event{
		Type:     "roomClosed",
		Room:     room.ID(),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
	})
}

// --- subscriber surface ------------------------------------------------

// SubscribeZone attaches a spatial listener to the 3×3 neighborhood around
// the given cell and replays the current occupants as a batch. Subscribers
// are pure observers: an unknown room is an error, never a creation.
func (o *Orchestrator) SubscribeZone(ctx context.Context, roomID string, listener world.Transport, zoneX, zoneY int) error {
	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	snapshot := room.AddZoneListener(listener, zoneX, zoneY)
	payloads := lo.Map(snapshot, func(m world.Movable, _ int) proto.ZonePayload {
		var payload proto.ZonePayload
		switch v := m.(type) {
		case *world.Participant:
			payload.UserEntered = &proto.UserEnteredZone{
				UserID:   v.ID(),
				UUID:     v.UUID(),
				Name:     v.Name(),
				Avatar:   v.Avatar(),
				Position: wirePosition(v.Position()),
			}
		case *world.Group:
			payload.GroupUpdate = &proto.GroupUpdateZone{
				GroupID:  v.ID(),
				Position: wirePosition(v.Position()),
				Size:     v.Size(),
			}
		}
		return payload
	})
	o.send(listener, proto.BatchMessage{
		Ver:      workadventure.ProtocolVersion,
		Type:     proto.TypeBatch,
		Payloads: payloads,
	})
	return nil
}

// UnsubscribeZone detaches one listener focus; unknown rooms or focuses
// are no-ops for the caller.
func (o *Orchestrator) UnsubscribeZone(ctx context.Context, roomID string, listener world.Transport, zoneX, zoneY int) error {
	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	room.RemoveZoneListener(listener, zoneX, zoneY)
	return nil
}

// SubscribeRoom attaches a room-wide listener and replays the current
// occupancy. Unlike zone subscribers, room subscribers create the room
// when it is absent, so a watcher can attach before the first join.
func (o *Orchestrator) SubscribeRoom(ctx context.Context, roomID string, listener world.Transport) error {
	room, err := o.rooms.GetOrCreate(ctx, roomID)
	if err != nil {
		return err
	}
	room.AddRoomListener(listener)
	o.send(listener, proto.OccupancyMessage{
		Ver:    workadventure.ProtocolVersion,
		Type:   proto.TypeOccupancy,
		RoomID: room.ID(),
		Count:  room.ParticipantCount(),
	})
	return nil
}

func (o *Orchestrator) UnsubscribeRoom(ctx context.Context, roomID string, listener world.Transport) error {
	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	room.RemoveRoomListener(listener)
	return nil
}

// --- admin surface -----------------------------------------------------

// SendUserMessage pushes an administrative notice to every live session of
// the given stable user ID. A target that already disconnected is a logged
// no-op: admin actions race against departures by nature.
func (o *Orchestrator) SendUserMessage(ctx context.Context, roomID, userUUID, message, kind string) error {
	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	sessions := room.ParticipantsByUUID(userUUID)
	if len(sessions) == 0 {
		o.logAdminMiss(ctx, roomID, userUUID, "adminMessageTargetGone")
		return nil
	}
	for _, p := range sessions {
		o.send(p.Transport(), proto.AdminMessage{
			Ver:     workadventure.ProtocolVersion,
			Type:    proto.TypeAdminMessage,
			Message: message,
			Kind:    kind,
		})
	}
	o.deps.Publisher.Publish(ctx, logging.Event{
		Type:     "adminMessage",
		Room:     roomID,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryAdmin,
		Actor:    logging.EntityRef{ID: userUUID, Kind: logging.EntityKindParticipant},
	})
	return nil
}

// BanUser notifies every live session of the user, then enforces the ban
// after the grace delay: forced leave plus transport termination. The
// delay lets the notice flush before the connection drops.
func (o *Orchestrator) BanUser(ctx context.Context, roomID, userUUID, message string) error {
	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	sessions := room.ParticipantsByUUID(userUUID)
	if len(sessions) == 0 {
		o.logAdminMiss(ctx, roomID, userUUID, "banTargetGone")
		return nil
	}
	for _, p := range sessions {
		o.send(p.Transport(), proto.AdminMessage{
			Ver:     workadventure.ProtocolVersion,
			Type:    proto.TypeAdminMessage,
			Message: message,
			Kind:    "ban",
		})
		o.send(p.Transport(), proto.ErrorMessage{
			Ver:    workadventure.ProtocolVersion,
			Type:   proto.TypeBanned,
			Reason: message,
		})
		banned := p
		o.schedule(o.cfg.BanGraceDelay, func() {
			o.leave(room, banned)
			banned.Transport().End()
		})
	}
	o.deps.Publisher.Publish(ctx, logging.Event{
		Type:     "participantBanned",
		Room:     roomID,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryAdmin,
		Actor:    logging.EntityRef{ID: userUUID, Kind: logging.EntityKindParticipant},
	})
	return nil
}

// BroadcastRoomMessage pushes an administrative notice to every
// participant of the room.
func (o *Orchestrator) BroadcastRoomMessage(ctx context.Context, roomID, message, kind string) error {
	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	for _, p := range room.Participants() {
		o.send(p.Transport(), proto.AdminMessage{
			Ver:     workadventure.ProtocolVersion,
			Type:    proto.TypeAdminMessage,
			Message: message,
			Kind:    kind,
		})
	}
	o.deps.Publisher.Publish(ctx, logging.Event{
		Type:     "roomBroadcast",
		Room:     roomID,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryAdmin,
	})
	return nil
}

// DispatchRoomRefresh bumps the room version and tells every participant
// to re-fetch the room definition.
func (o *Orchestrator) DispatchRoomRefresh(ctx context.Context, roomID string) error {
	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	version := room.IncrementVersion()
	for _, p := range room.Participants() {
		o.send(p.Transport(), proto.RefreshRoomMessage{
			Ver:     workadventure.ProtocolVersion,
			Type:    proto.TypeRefreshRoom,
			RoomID:  room.ID(),
			Version: version,
		})
	}
	o.deps.Publisher.Publish(ctx, logging.Event{
		Type:     "roomRefresh",
		Room:     roomID,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryAdmin,
		Payload:  version,
	})
	return nil
}

// DispatchWorldFullWarning warns every participant of the room that the
// world is near capacity.
func (o *Orchestrator) DispatchWorldFullWarning(ctx context.Context, roomID string) error {
	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	for _, p := range room.Participants() {
		o.send(p.Transport(), proto.WorldFullWarningMessage{
			Ver:  workadventure.ProtocolVersion,
			Type: proto.TypeWorldFullWarning,
		})
	}
	return nil
}

func (o *Orchestrator) logAdminMiss(ctx context.Context, roomID, userUUID string, eventType logging.EventType) {
	o.deps.Publisher.Publish(ctx, logging.Event{
		Type:     eventType,
		Room:     roomID,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryAdmin,
		Actor:    logging.EntityRef{ID: userUUID, Kind: logging.EntityKindParticipant},
	})
}

// --- diagnostics -------------------------------------------------------

// Stats summarizes orchestrator-level counters.
type Stats struct {
	Rooms       int    `json:"rooms"`
	ShedUpdates uint64 `json:"shedUpdates"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Rooms:       o.rooms.Count(),
		ShedUpdates: o.shedTotal.Load(),
	}
}

// Gauges exposes the telemetry gauges for the diagnostics endpoint.
func (o *Orchestrator) Gauges() *telemetry.Gauges {
	return o.deps.Gauges
}
