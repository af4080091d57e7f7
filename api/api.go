// Package api exposes the HTTP surface: the socket endpoint plus a few
// read-only routes for health checks and operators.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cameroncuttingedge/tictactoe-arena/events"
	"github.com/cameroncuttingedge/tictactoe-arena/room"
	"github.com/cameroncuttingedge/tictactoe-arena/store"
	"github.com/cameroncuttingedge/tictactoe-arena/utils"
	"github.com/cameroncuttingedge/tictactoe-arena/websocket"
)

type Rooms interface {
	Get(roomID string) (room.Snapshot, error)
	Stats() room.Stats
}

type Gateway interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	Stats() websocket.Stats
}

type WriterStats interface {
	Stats() store.WriterStats
}

type Deps struct {
	Rooms   Rooms
	Gateway Gateway
	// Writer is optional; /stats omits persistence counters without it.
	Writer         WriterStats
	AllowedOrigins []string
	Logger         zerolog.Logger
}

type api struct {
	Deps
}

// NewRouter wires every route behind recovery, access logging and CORS.
func NewRouter(deps Deps) http.Handler {
	a := &api{Deps: deps}

	r := mux.NewRouter()
	r.HandleFunc("/ws", deps.Gateway.HandleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", a.statsHandler).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{roomID}", a.roomHandler).Methods(http.MethodGet)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	var h http.Handler = r
	h = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "Token"}),
	)(h)
	h = handlers.LoggingHandler(accessLog{deps.Logger}, h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLog{deps.Logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	return h
}

func (a *api) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	Rooms       room.Stats         `json:"rooms"`
	Connections websocket.Stats    `json:"connections"`
	Persistence *store.WriterStats `json:"persistence,omitempty"`
}

func (a *api) statsHandler(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{
		Rooms:       a.Rooms.Stats(),
		Connections: a.Gateway.Stats(),
	}
	if a.Writer != nil {
		ws := a.Writer.Stats()
		resp.Persistence = &ws
	}
	writeJSON(w, http.StatusOK, resp)
}

// roomHandler returns a room's public state. The join code is never included.
func (a *api) roomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	if !utils.IsUUID(roomID) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	snap, err := a.Rooms.Get(roomID)
	if errors.Is(err, room.ErrRoomNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("roomID", roomID).Msg("Failed to load room")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events.NewRoomState(snap, false))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// accessLog feeds Apache-style lines from handlers.LoggingHandler into zerolog.
type accessLog struct{ logger zerolog.Logger }

func (l accessLog) Write(p []byte) (int, error) {
	n := len(p)
	if n > 0 && p[n-1] == '\n' {
		p = p[:n-1]
	}
	l.logger.Debug().Str("component", "http").Msg(string(p))
	return n, nil
}

type recoveryLog struct{ logger zerolog.Logger }

func (l recoveryLog) Println(v ...any) {
	l.logger.Error().Str("component", "http").Interface("panic", v).Msg("Recovered from panic")
}
