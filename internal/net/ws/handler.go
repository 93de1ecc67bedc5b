// Package ws runs the websocket sessions: the participant connection that
// carries the full protocol, and the zone/room subscriber connections
// observers attach to.
package ws

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/iits-consulting/workadventure"
	"github.com/iits-consulting/workadventure/internal/net/proto"
	"github.com/iits-consulting/workadventure/internal/session"
	"github.com/iits-consulting/workadventure/internal/world"
)

type HandlerConfig struct {
	Logger *log.Logger
}

// Handler upgrades connections and drives their read loops against the
// orchestrator.
type Handler struct {
	orch     *session.Orchestrator
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(orch *session.Orchestrator, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		orch:     orch,
		logger:   logger,
		upgrader: upgrader,
	}
}

// HandleParticipant serves one participant connection. The first accepted
// message must be a join; every later message operates on the established
// session. Malformed messages are rejected individually, the connection
// stays open.
func (h *Handler) HandleParticipant(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}
	client := NewClient(conn)

	sess := h.awaitJoin(r, conn, client)
	if sess == nil {
		return
	}
	defer sess.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			client.markDead()
			return
		}

		msg, ok := h.decode(client, payload)
		if !ok {
			continue
		}

		switch msg.Type {
		case proto.TypeJoin:
			h.reject(client, "already joined")
		case proto.TypeMove:
			sess.Move(clientPosition(*msg.Move.Position))
		case proto.TypeSilent:
			sess.SetSilent(msg.Silent.Silent)
		case proto.TypeItem:
			sess.SetItemState(msg.Item.ItemID, msg.Item.State)
		case proto.TypeVariable:
			if err := sess.SetVariable(msg.Variable.Name, msg.Variable.Value); err != nil {
				h.reject(client, err.Error())
			}
		case proto.TypeEmote:
			sess.Emote(msg.Emote.Emote)
		case proto.TypeSignal:
			sess.RelaySignal(msg.Signal.ReceiverID, msg.Signal.Signal)
		case proto.TypeConferenceToken:
			signed, err := sess.ConferenceToken(msg.ConferenceToken.ConferenceRoom)
			if err != nil {
				h.reject(client, err.Error())
				continue
			}
			client.Write(proto.ConferenceTokenMessage{
				Ver:            workadventure.ProtocolVersion,
				Type:           proto.TypeConferenceGrant,
				ConferenceRoom: msg.ConferenceToken.ConferenceRoom,
				Token:          signed,
			})
		}
	}
}

// awaitJoin reads until a valid join arrives and establishes the session.
// A nil return means the connection is gone.
func (h *Handler) awaitJoin(r *nethttp.Request, conn *websocket.Conn, client *Client) *session.Session {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			client.markDead()
			return nil
		}

		msg, ok := h.decode(client, payload)
		if !ok {
			continue
		}
		if msg.Type != proto.TypeJoin {
			h.reject(client, "expected join")
			continue
		}

		join := msg.Join
		pos := clientPosition(*join.Position)
		sess, err := h.orch.JoinRoom(r.Context(), client, session.JoinParams{
			RoomID:   join.RoomID,
			UUID:     join.UUID,
			Name:     join.Name,
			Avatar:   join.Avatar,
			Tags:     join.Tags,
			Position: pos,
		})
		if err != nil {
			h.logger.Printf("join rejected for room %s: %v", join.RoomID, err)
			h.reject(client, err.Error())
			client.End()
			return nil
		}
		return sess
	}
}

func (h *Handler) decode(client *Client, payload []byte) (proto.ClientMessage, bool) {
	var msg proto.ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.logger.Printf("discarding malformed message: %v", err)
		h.reject(client, "malformed message")
		return msg, false
	}
	if err := proto.Validate(msg); err != nil {
		h.logger.Printf("discarding invalid %q message: %v", msg.Type, err)
		h.reject(client, err.Error())
		return msg, false
	}
	return msg, true
}

func (h *Handler) reject(client *Client, reason string) {
	client.Write(proto.ErrorMessage{
		Ver:    workadventure.ProtocolVersion,
		Type:   proto.TypeError,
		Reason: reason,
	})
}

// subscriberMessage drives zone subscriptions after the initial focus.
type subscriberMessage struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// HandleZoneSubscriber serves one zone observer connection. The room and
// initial focus come from the query string; further focuses are managed
// with subscribe/unsubscribe messages. Observers never create rooms.
func (h *Handler) HandleZoneSubscriber(w nethttp.ResponseWriter, r *nethttp.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		nethttp.Error(w, "missing roomId", nethttp.StatusBadRequest)
		return
	}
	x, errX := strconv.Atoi(r.URL.Query().Get("x"))
	y, errY := strconv.Atoi(r.URL.Query().Get("y"))
	if errX != nil || errY != nil {
		nethttp.Error(w, "missing zone coordinates", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for zone subscriber: %v", err)
		return
	}
	client := NewClient(conn)

	if err := h.orch.SubscribeZone(r.Context(), roomID, client, x, y); err != nil {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	focuses := map[[2]int]struct{}{{x, y}: {}}
	defer func() {
		for focus := range focuses {
			h.orch.UnsubscribeZone(r.Context(), roomID, client, focus[0], focus[1])
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			client.markDead()
			return
		}
		var msg subscriberMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Printf("discarding malformed subscriber message: %v", err)
			continue
		}
		switch msg.Type {
		case "subscribe":
			if err := h.orch.SubscribeZone(r.Context(), roomID, client, msg.X, msg.Y); err != nil {
				h.reject(client, err.Error())
				continue
			}
			focuses[[2]int{msg.X, msg.Y}] = struct{}{}
		case "unsubscribe":
			h.orch.UnsubscribeZone(r.Context(), roomID, client, msg.X, msg.Y)
			delete(focuses, [2]int{msg.X, msg.Y})
		default:
			h.logger.Printf("unknown subscriber message type %q", msg.Type)
		}
	}
}

// HandleRoomSubscriber serves one room-wide observer connection.
func (h *Handler) HandleRoomSubscriber(w nethttp.ResponseWriter, r *nethttp.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		nethttp.Error(w, "missing roomId", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for room subscriber: %v", err)
		return
	}
	client := NewClient(conn)

	if err := h.orch.SubscribeRoom(r.Context(), roomID, client); err != nil {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}
	defer h.orch.UnsubscribeRoom(r.Context(), roomID, client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			client.markDead()
			return
		}
	}
}

func clientPosition(pos proto.Position) world.Position {
	direction, ok := world.ParseDirection(pos.Direction)
	if !ok {
		direction = world.DirectionDown
	}
	return world.Position{
		X:         pos.X,
		Y:         pos.Y,
		Direction: direction,
		Moving:    pos.Moving,
	}
}
