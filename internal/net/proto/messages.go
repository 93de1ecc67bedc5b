// Package proto defines the JSON wire messages exchanged with clients and
// with zone/room subscribers, and validates inbound events. A failed
// validation rejects that single event; it never tears down the
// connection.
package proto

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/iits-consulting/workadventure"
)

// Position mirrors world.Position on the wire.
type Position struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction string  `json:"direction,omitempty" validate:"omitempty,oneof=up down left right"`
	Moving    bool    `json:"moving,omitempty"`
}

// Zone mirrors world.ZoneCoord on the wire.
type Zone struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// --- inbound -----------------------------------------------------------

type JoinPayload struct {
	RoomID   string    `json:"roomId" validate:"required"`
	UUID     string    `json:"uuid,omitempty" validate:"omitempty,uuid"`
	Name     string    `json:"name" validate:"required"`
	Avatar   string    `json:"avatar,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	Position *Position `json:"position" validate:"required"`
}

type MovePayload struct {
	Position *Position `json:"position" validate:"required"`
}

type SilentPayload struct {
	Silent bool `json:"silent"`
}

type ItemPayload struct {
	ItemID int             `json:"itemId" validate:"min=0"`
	State  json.RawMessage `json:"state" validate:"required"`
}

type VariablePayload struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

type EmotePayload struct {
	Emote string `json:"emote" validate:"required"`
}

// SignalPayload relays one WebRTC signaling blob to another participant
// of the same room.
type SignalPayload struct {
	ReceiverID int32           `json:"receiverId" validate:"required"`
	Signal     json.RawMessage `json:"signal" validate:"required"`
}

type ConferenceTokenPayload struct {
	ConferenceRoom string `json:"conferenceRoom" validate:"required"`
	Tag            string `json:"tag,omitempty"`
}

const (
	TypeJoin            = "join"
	TypeMove            = "move"
	TypeSilent          = "silent"
	TypeItem            = "item"
	TypeVariable        = "variable"
	TypeEmote           = "emote"
	TypeSignal          = "signal"
	TypeConferenceToken = "conferenceToken"
)

// ClientMessage is the envelope for participant-originated events. Exactly
// one payload field matching Type must be set.
type ClientMessage struct {
	Ver  int    `json:"ver,omitempty"`
	Type string `json:"type" validate:"required,oneof=join move silent item variable emote signal conferenceToken"`

	Join            *JoinPayload            `json:"join,omitempty"`
	Move            *MovePayload            `json:"move,omitempty"`
	Silent          *SilentPayload          `json:"silent,omitempty"`
	Item            *ItemPayload            `json:"item,omitempty"`
	Variable        *VariablePayload        `json:"variable,omitempty"`
	Emote           *EmotePayload           `json:"emote,omitempty"`
	Signal          *SignalPayload          `json:"signal,omitempty"`
	ConferenceToken *ConferenceTokenPayload `json:"conferenceToken,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the envelope and the payload matching its type.
func Validate(msg ClientMessage) error {
	if err := validate.Struct(msg); err != nil {
		return malformed("type", err)
	}

	var payload any
	switch msg.Type {
	case TypeJoin:
		payload = msg.Join
	case TypeMove:
		payload = msg.Move
	case TypeSilent:
		payload = msg.Silent
	case TypeItem:
		payload = msg.Item
	case TypeVariable:
		payload = msg.Variable
	case TypeEmote:
		payload = msg.Emote
	case TypeSignal:
		payload = msg.Signal
	case TypeConferenceToken:
		payload = msg.ConferenceToken
	}
	if payload == nil || isNilPointer(payload) {
		return malformed(msg.Type, fmt.Errorf("missing %q payload", msg.Type))
	}
	if err := validate.Struct(payload); err != nil {
		return malformed(msg.Type, err)
	}
	return nil
}

func isNilPointer(v any) bool {
	switch p := v.(type) {
	case *JoinPayload:
		return p == nil
	case *MovePayload:
		return p == nil
	case *SilentPayload:
		return p == nil
	case *ItemPayload:
		return p == nil
	case *VariablePayload:
		return p == nil
	case *EmotePayload:
		return p == nil
	case *SignalPayload:
		return p == nil
	case *ConferenceTokenPayload:
		return p == nil
	}
	return false
}

func malformed(field string, err error) error {
	return &workadventure.MalformedMessageError{Field: field, Err: err}
}

// --- outbound to participants ------------------------------------------

type RoomJoinedMessage struct {
	Ver       int                     `json:"ver"`
	Type      string                  `json:"type"`
	UserID    int32                   `json:"userId"`
	Tags      []string                `json:"tags,omitempty"`
	Items     map[int]json.RawMessage `json:"items,omitempty"`
	Variables map[string]string       `json:"variables,omitempty"`
}

type UserListEntry struct {
	UserID int32  `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type UserListMessage struct {
	Ver   int             `json:"ver"`
	Type  string          `json:"type"`
	Users []UserListEntry `json:"users"`
}

type ItemEventMessage struct {
	Ver    int             `json:"ver"`
	Type   string          `json:"type"`
	ItemID int             `json:"itemId"`
	State  json.RawMessage `json:"state"`
}

type VariableEventMessage struct {
	Ver   int    `json:"ver"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type EmoteEventMessage struct {
	Ver     int    `json:"ver"`
	Type    string `json:"type"`
	ActorID int32  `json:"actorId"`
	Emote   string `json:"emote"`
}

// MeshStartMessage instructs a participant to open one mesh link. The
// credentials are ephemeral relay credentials for the receiving peer.
type MeshStartMessage struct {
	Ver       int    `json:"ver"`
	Type      string `json:"type"`
	PeerID    int32  `json:"peerId"`
	Initiator bool   `json:"initiator"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
}

// MeshStopMessage tears one mesh link down. It is sent to both peers so a
// half-open link cannot stall on a one-sided timeout.
type MeshStopMessage struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	PeerID int32  `json:"peerId"`
}

type MeshSignalMessage struct {
	Ver      int             `json:"ver"`
	Type     string          `json:"type"`
	SenderID int32           `json:"senderId"`
	Signal   json.RawMessage `json:"signal"`
	Username string          `json:"username,omitempty"`
	Password string          `json:"password,omitempty"`
}

type ConferenceTokenMessage struct {
	Ver            int    `json:"ver"`
	Type           string `json:"type"`
	ConferenceRoom string `json:"conferenceRoom"`
	Token          string `json:"token"`
}

type AdminMessage struct {
	Ver     int    `json:"ver"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

type RefreshRoomMessage struct {
	Ver     int    `json:"ver"`
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Version int32  `json:"version"`
}

type WorldFullWarningMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
}

type ErrorMessage struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

const (
	TypeRoomJoined       = "roomJoined"
	TypeUserList         = "userList"
	TypeItemEvent        = "itemEvent"
	TypeVariableEvent    = "variableEvent"
	TypeEmoteEvent       = "emoteEvent"
	TypeMeshStart        = "meshStart"
	TypeMeshStop         = "meshStop"
	TypeMeshSignal       = "meshSignal"
	TypeConferenceGrant  = "conferenceTokenGrant"
	TypeAdminMessage     = "adminMessage"
	TypeBanned           = "banned"
	TypeRefreshRoom      = "refreshRoom"
	TypeWorldFullWarning = "worldFullWarning"
	TypeError            = "error"
)

// --- outbound to zone/room subscribers ---------------------------------

type UserEnteredZone struct {
	UserID   int32    `json:"userId"`
	UUID     string   `json:"uuid"`
	Name     string   `json:"name"`
	Avatar   string   `json:"avatar,omitempty"`
	Position Position `json:"position"`
	FromZone *Zone    `json:"fromZone,omitempty"`
}

type UserMovedZone struct {
	UserID   int32    `json:"userId"`
	Position Position `json:"position"`
}

type UserLeftZone struct {
	UserID int32 `json:"userId"`
	ToZone *Zone `json:"toZone,omitempty"`
}

type GroupUpdateZone struct {
	GroupID  uint32   `json:"groupId"`
	Position Position `json:"position"`
	Size     int      `json:"size"`
	FromZone *Zone    `json:"fromZone,omitempty"`
}

type GroupLeftZone struct {
	GroupID uint32 `json:"groupId"`
	ToZone  *Zone  `json:"toZone,omitempty"`
}

// ZonePayload is one delta inside a batch; exactly one field is set.
type ZonePayload struct {
	UserEntered *UserEnteredZone `json:"userEnteredZone,omitempty"`
	UserMoved   *UserMovedZone   `json:"userMovedZone,omitempty"`
	UserLeft    *UserLeftZone    `json:"userLeftZone,omitempty"`
	GroupUpdate *GroupUpdateZone `json:"groupUpdateZone,omitempty"`
	GroupLeft   *GroupLeftZone   `json:"groupLeftZone,omitempty"`
}

type BatchMessage struct {
	Ver      int           `json:"ver"`
	Type     string        `json:"type"`
	Payloads []ZonePayload `json:"payloads"`
}

type OccupancyMessage struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

const (
	TypeBatch     = "batch"
	TypeOccupancy = "occupancy"
)
