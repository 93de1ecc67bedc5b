// Package net mounts the HTTP surface: websocket entry points for
// participants and subscribers, the administrative API, and the health and
// diagnostics endpoints.
package net

import (
	"encoding/json"
	"errors"
	"log"
	nethttp "net/http"
	"time"

	"github.com/iits-consulting/workadventure"
	"github.com/iits-consulting/workadventure/internal/net/ws"
	"github.com/iits-consulting/workadventure/internal/session"
	"github.com/iits-consulting/workadventure/logging"
)

type HTTPHandlerConfig struct {
	// AdminToken gates the /admin endpoints; empty leaves them open, which
	// is only sensible behind a trusted proxy.
	AdminToken string
	Logger     *log.Logger
}

func NewHTTPHandler(orch *session.Orchestrator, wsHandler *ws.Handler, router *logging.Router, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/ws", wsHandler.HandleParticipant)
	mux.HandleFunc("/ws/zone", wsHandler.HandleZoneSubscriber)
	mux.HandleFunc("/ws/room", wsHandler.HandleRoomSubscriber)

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string `json:"status"`
			ServerTime int64  `json:"serverTime"`
			Stats      any    `json:"stats"`
			Gauges     any    `json:"gauges"`
			Logging    any    `json:"logging,omitempty"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Stats:      orch.Stats(),
			Gauges:     orch.Gauges().Snapshot(),
		}
		if router != nil {
			payload.Logging = router.Stats()
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	authorized := func(w nethttp.ResponseWriter, r *nethttp.Request) bool {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return false
		}
		if cfg.AdminToken != "" && r.Header.Get("Authorization") != "Bearer "+cfg.AdminToken {
			httpError(w, "unauthorized", nethttp.StatusUnauthorized)
			return false
		}
		return true
	}

	respond := func(w nethttp.ResponseWriter, err error) {
		if err != nil {
			var unknown *workadventure.UnknownRoomError
			if errors.As(err, &unknown) {
				httpError(w, err.Error(), nethttp.StatusNotFound)
				return
			}
			httpError(w, err.Error(), nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}

	mux.HandleFunc("/admin/message", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !authorized(w, r) {
			return
		}
		var req struct {
			RoomID   string `json:"roomId"`
			UserUUID string `json:"userUuid"`
			Message  string `json:"message"`
			Kind     string `json:"kind"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomID == "" || req.UserUUID == "" {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
			return
		}
		respond(w, orch.SendUserMessage(r.Context(), req.RoomID, req.UserUUID, req.Message, req.Kind))
	})

	mux.HandleFunc("/admin/ban", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !authorized(w, r) {
			return
		}
		var req struct {
			RoomID   string `json:"roomId"`
			UserUUID string `json:"userUuid"`
			Message  string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomID == "" || req.UserUUID == "" {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
			return
		}
		respond(w, orch.BanUser(r.Context(), req.RoomID, req.UserUUID, req.Message))
	})

	mux.HandleFunc("/admin/broadcast", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !authorized(w, r) {
			return
		}
		var req struct {
			RoomID  string `json:"roomId"`
			Message string `json:"message"`
			Kind    string `json:"kind"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomID == "" {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
			return
		}
		respond(w, orch.BroadcastRoomMessage(r.Context(), req.RoomID, req.Message, req.Kind))
	})

	mux.HandleFunc("/admin/refresh", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !authorized(w, r) {
			return
		}
		var req struct {
			RoomID string `json:"roomId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomID == "" {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
			return
		}
		respond(w, orch.DispatchRoomRefresh(r.Context(), req.RoomID))
	})

	mux.HandleFunc("/admin/worldfull", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !authorized(w, r) {
			return
		}
		var req struct {
			RoomID string `json:"roomId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomID == "" {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
			return
		}
		respond(w, orch.DispatchWorldFullWarning(r.Context(), req.RoomID))
	})

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
