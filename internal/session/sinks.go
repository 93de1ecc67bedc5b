package session

import (
	"context"
	"strconv"

	"github.com/iits-consulting/workadventure"
	"github.com/iits-consulting/workadventure/internal/net/proto"
	"github.com/iits-consulting/workadventure/internal/world"
	"github.com/iits-consulting/workadventure/logging"
)

// The orchestrator is the sink for everything the world layer emits. All
// callbacks below run synchronously under the owning room's lock; they
// only translate to wire messages and hand them to transports, never call
// back into the room.

func (o *Orchestrator) OnZoneEnter(m world.Movable, from *world.ZoneCoord, listener world.Transport) {
	var payload proto.ZonePayload
	switch v := m.(type) {
	case *world.Participant:
		payload.UserEntered = &proto.UserEnteredZone{
			UserID:   v.ID(),
			UUID:     v.UUID(),
			Name:     v.Name(),
			Avatar:   v.Avatar(),
			Position: wirePosition(v.Position()),
			FromZone: wireZone(from),
		}
	case *world.Group:
		payload.GroupUpdate = &proto.GroupUpdateZone{
			GroupID:  v.ID(),
			Position: wirePosition(v.Position()),
			Size:     v.Size(),
			FromZone: wireZone(from),
		}
	}
	o.send(listener, batch(payload))
}

func (o *Orchestrator) OnZoneMove(m world.Movable, listener world.Transport) {
	var payload proto.ZonePayload
	switch v := m.(type) {
	case *world.Participant:
		payload.UserMoved = &proto.UserMovedZone{
			UserID:   v.ID(),
			Position: wirePosition(v.Position()),
		}
	case *world.Group:
		payload.GroupUpdate = &proto.GroupUpdateZone{
			GroupID:  v.ID(),
			Position: wirePosition(v.Position()),
			Size:     v.Size(),
		}
	}
	o.send(listener, batch(payload))
}

func (o *Orchestrator) OnZoneLeave(m world.Movable, to *world.ZoneCoord, listener world.Transport) {
	var payload proto.ZonePayload
	switch v := m.(type) {
	case *world.Participant:
		payload.UserLeft = &proto.UserLeftZone{UserID: v.ID(), ToZone: wireZone(to)}
	case *world.Group:
		payload.GroupLeft = &proto.GroupLeftZone{GroupID: v.ID(), ToZone: wireZone(to)}
	}
	o.send(listener, batch(payload))
}

// OnGroupJoin signals every existing member pairwise against the joiner.
// Both ends of a link get their message: the established member initiates,
// the joiner answers. Credentials are issued per recipient.
func (o *Orchestrator) OnGroupJoin(p *world.Participant, g *world.Group) {
	for _, member := range g.Members() {
		if member == p {
			continue
		}
		o.send(member.Transport(), o.meshStart(p.ID(), true, member.ID()))
		o.send(p.Transport(), o.meshStart(member.ID(), false, p.ID()))
	}

	o.deps.Publisher.Publish(context.Background(), logging.Event{
		Type:     "groupJoined",
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGrouping,
		Actor:    participantRef(p),
		Targets:  []logging.EntityRef{groupRef(g)},
	})
}

// OnGroupLeave tears the leaver's links down pairwise. Both peers of every
// link receive the stop, so a half-open link cannot linger on one side.
func (o *Orchestrator) OnGroupLeave(p *world.Participant, g *world.Group) {
	for _, member := range g.Members() {
		o.send(member.Transport(), o.meshStop(p.ID()))
		o.send(p.Transport(), o.meshStop(member.ID()))
	}

	o.deps.Publisher.Publish(context.Background(), logging.Event{
		Type:     "groupLeft",
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGrouping,
		Actor:    participantRef(p),
		Targets:  []logging.EntityRef{groupRef(g)},
	})
}

func (o *Orchestrator) OnItemEvent(roomID string, ev world.ItemEvent, listener world.Transport) {
	o.send(listener, proto.ItemEventMessage{
		Ver:    workadventure.ProtocolVersion,
		Type:   proto.TypeItemEvent,
		ItemID: ev.ItemID,
		State:  ev.State,
	})
}

func (o *Orchestrator) OnVariableEvent(roomID string, name, value string, listener world.Transport) {
	o.send(listener, proto.VariableEventMessage{
		Ver:   workadventure.ProtocolVersion,
		Type:  proto.TypeVariableEvent,
		Name:  name,
		Value: value,
	})
}

func (o *Orchestrator) OnEmoteEvent(roomID string, ev world.EmoteEvent, listener world.Transport) {
	o.send(listener, proto.EmoteEventMessage{
		Ver:     workadventure.ProtocolVersion,
		Type:    proto.TypeEmoteEvent,
		ActorID: ev.ActorID,
		Emote:   ev.Emote,
	})
}

func (o *Orchestrator) OnOccupancyEvent(roomID string, count int, listener world.Transport) {
	o.send(listener, proto.OccupancyMessage{
		Ver:    workadventure.ProtocolVersion,
		Type:   proto.TypeOccupancy,
		RoomID: roomID,
		Count:  count,
	})
}

func (o *Orchestrator) meshStart(peerID int32, initiator bool, recipientID int32) proto.MeshStartMessage {
	msg := proto.MeshStartMessage{
		Ver:       workadventure.ProtocolVersion,
		Type:      proto.TypeMeshStart,
		PeerID:    peerID,
		Initiator: initiator,
	}
	if o.deps.Credentials.Enabled() {
		creds := o.deps.Credentials.Issue(recipientID)
		msg.Username = creds.Username
		msg.Password = creds.Password
	}
	return msg
}

func (o *Orchestrator) meshStop(peerID int32) proto.MeshStopMessage {
	return proto.MeshStopMessage{
		Ver:    workadventure.ProtocolVersion,
		Type:   proto.TypeMeshStop,
		PeerID: peerID,
	}
}

// send delivers one message, tolerating dead transports: broadcast loops
// must never abort because one peer is gone.
func (o *Orchestrator) send(listener world.Transport, message any) {
	if listener == nil || !listener.IsWritable() {
		return
	}
	if err := listener.Write(message); err != nil {
		o.deps.Publisher.Publish(context.Background(), logging.Event{
			Type:     "transportWriteFailed",
			Severity: logging.SeverityDebug,
			Category: logging.CategorySystem,
			Payload:  err.Error(),
		})
	}
}

func batch(payload proto.ZonePayload) proto.BatchMessage {
	return proto.BatchMessage{
		Ver:      workadventure.ProtocolVersion,
		Type:     proto.TypeBatch,
		Payloads: []proto.ZonePayload{payload},
	}
}

func wirePosition(pos world.Position) proto.Position {
	return proto.Position{
		X:         pos.X,
		Y:         pos.Y,
		Direction: string(pos.Direction),
		Moving:    pos.Moving,
	}
}

func wireZone(coord *world.ZoneCoord) *proto.Zone {
	if coord == nil {
		return nil
	}
	return &proto.Zone{X: coord.X, Y: coord.Y}
}

func participantRef(p *world.Participant) logging.EntityRef {
	return logging.EntityRef{ID: strconv.FormatInt(int64(p.ID()), 10), Kind: logging.EntityKindParticipant}
}

func groupRef(g *world.Group) logging.EntityRef {
	return logging.EntityRef{ID: strconv.FormatUint(uint64(g.ID()), 10), Kind: logging.EntityKindGroup}
}
