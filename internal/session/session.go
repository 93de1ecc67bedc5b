package session

import (
	"context"

	"github.com/iits-consulting/workadventure"
	"github.com/iits-consulting/workadventure/internal/net/proto"
	"github.com/iits-consulting/workadventure/internal/token"
	"github.com/iits-consulting/workadventure/internal/world"
	"github.com/iits-consulting/workadventure/logging"
)

// Session binds one connected participant to its room. Push traffic (zone
// deltas, mesh signaling, admin notices) flows through the orchestrator's
// sinks; request/response exchanges return through the session methods so
// the transport layer can answer in-line.
type Session struct {
	orch        *Orchestrator
	room        *world.Room
	participant *world.Participant
}

func (s *Session) Room() *world.Room               { return s.room }
func (s *Session) Participant() *world.Participant { return s.participant }

// Move applies one movement update. While the load signal reads at or
// above the shed threshold, updates flagged as still-moving are dropped:
// intermediate positions are disposable, the final resting position is
// not, so a non-moving update always goes through.
func (s *Session) Move(pos world.Position) {
	if pos.Moving && s.orch.deps.Load.CurrentLoad() >= s.orch.cfg.ShedThreshold {
		s.orch.shedTotal.Add(1)
		return
	}
	s.room.UpdatePosition(s.participant, pos)
}

// SetSilent flips the grouping opt-out.
func (s *Session) SetSilent(silent bool) {
	s.room.SetSilent(s.participant, silent)
}

// SetItemState stores an item mutation and broadcasts it room-wide.
func (s *Session) SetItemState(itemID int, state []byte) {
	s.room.SetItemState(itemID, state)
}

// SetVariable applies a tag-gated variable write on behalf of the
// participant.
func (s *Session) SetVariable(name, value string) error {
	return s.room.SetVariable(name, value, s.participant)
}

// Emote broadcasts an emote room-wide.
func (s *Session) Emote(emote string) {
	s.room.EmitEmoteEvent(s.participant, emote)
}

// RelaySignal forwards one signaling blob to another participant of the
// same room, stamped with fresh relay credentials for the receiver. A
// receiver that already left is a logged no-op: signaling races against
// departures by nature.
func (s *Session) RelaySignal(receiverID int32, signal []byte) {
	receiver, ok := s.room.ParticipantBySession(receiverID)
	if !ok {
		s.orch.deps.Publisher.Publish(context.Background(), logging.Event{
			Type:     "signalReceiverGone",
			Room:     s.room.ID(),
			Severity: logging.SeverityDebug,
			Category: logging.CategoryGrouping,
			Actor:    participantRef(s.participant),
		})
		return
	}
	msg := proto.MeshSignalMessage{
		Ver:      workadventure.ProtocolVersion,
		Type:     proto.TypeMeshSignal,
		SenderID: s.participant.ID(),
		Signal:   signal,
	}
	if s.orch.deps.Credentials.Enabled() {
		creds := s.orch.deps.Credentials.Issue(receiver.ID())
		msg.Username = creds.Username
		msg.Password = creds.Password
	}
	s.orch.send(receiver.Transport(), msg)
}

// ConferenceToken signs a token admitting the participant into the named
// conference room. Admin-tagged participants become moderators.
func (s *Session) ConferenceToken(conferenceRoom string) (string, error) {
	if s.orch.deps.Tokens == nil {
		return "", token.ErrNoSecret
	}
	return s.orch.deps.Tokens.ConferenceToken(conferenceRoom, s.participant.HasTag("admin"))
}

// Close removes the participant from the room. Idempotent: the disconnect
// path and ban enforcement may both land here.
func (s *Session) Close() {
	s.orch.leave(s.room, s.participant)
}
