// Package events defines the JSON frames exchanged over the game socket.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/cameroncuttingedge/tictactoe-arena/game"
	"github.com/cameroncuttingedge/tictactoe-arena/room"
)

// Inbound intent types.
const (
	CreateRoom     = "create-room"
	JoinRoom       = "join-room"
	JoinByCode     = "join-by-code"
	MakeMove       = "make-move"
	RequestRematch = "request-rematch"
	LeaveRoom      = "leave-room"
	CloseRoom      = "close-room"
	Ping           = "ping"
)

// Outbound event types.
const (
	RoomCreated      = "room-created"
	RoomJoined       = "room-joined"
	UpdateBoard      = "update-board"
	GameEnded        = "game-ended"
	RematchRequested = "rematch-requested"
	RematchStarted   = "rematch-started"
	PlayerLeft       = "player-left"
	RoomClosed       = "room-closed"
	Ack              = "ack"
	Pong             = "pong"
)

// Envelope wraps every frame in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v. A missing payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Encode builds a frame for an outbound event.
func Encode(eventType, requestID string, payload any) ([]byte, error) {
	env := Envelope{Type: eventType, RequestID: requestID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

type CreateRoomPayload struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"isPrivate"`
}

type JoinRoomPayload struct {
	RoomID      string `json:"roomId"`
	AsSpectator bool   `json:"asSpectator"`
	JoinCode    string `json:"joinCode,omitempty"`
}

type JoinByCodePayload struct {
	JoinCode    string `json:"joinCode"`
	AsSpectator bool   `json:"asSpectator"`
}

type MakeMovePayload struct {
	RoomID string `json:"roomId"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
}

// RoomPayload carries only a room id: request-rematch, leave-room and close-room.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// RoomState is the wire view of a room.
type RoomState struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	IsPrivate   bool         `json:"isPrivate"`
	JoinCode    string       `json:"joinCode,omitempty"`
	Players     []string     `json:"players"`
	Spectators  []string     `json:"spectators"`
	Board       [3][3]string `json:"board"`
	CurrentTurn string       `json:"currentTurn"`
	Status      string       `json:"status"`
	Round       int          `json:"round"`
	Outcome     *GameResult  `json:"outcome,omitempty"`
}

// NewRoomState converts a snapshot. The join code is only included when
// withCode is set, so spectators of a private room never learn it.
func NewRoomState(s room.Snapshot, withCode bool) RoomState {
	st := RoomState{
		ID:          s.ID,
		Name:        s.Name,
		IsPrivate:   s.IsPrivate,
		Players:     s.Players,
		Spectators:  s.Spectators,
		Board:       s.Board.Strings(),
		CurrentTurn: s.CurrentTurn,
		Status:      string(s.Status),
		Round:       s.Round,
	}
	if withCode {
		st.JoinCode = s.JoinCode
	}
	if s.Outcome != nil {
		r := NewGameResult(s.ID, *s.Outcome)
		st.Outcome = &r
	}
	return st
}

type RoomCreatedPayload struct {
	Room RoomState `json:"room"`
}

type RoomJoinedPayload struct {
	Room        RoomState `json:"room"`
	Participant string    `json:"participant"`
	AsSpectator bool      `json:"asSpectator"`
}

type UpdateBoardPayload struct {
	RoomID      string       `json:"roomId"`
	Board       [3][3]string `json:"board"`
	CurrentTurn string       `json:"currentTurn"`
	LastMove    *Move        `json:"lastMove,omitempty"`
}

type Move struct {
	Player string `json:"player"`
	Mark   string `json:"mark"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
}

// GameResult is the game-ended payload. Winner is the winning connection id.
type GameResult struct {
	RoomID     string `json:"roomId"`
	Winner     string `json:"winner,omitempty"`
	WinnerMark string `json:"winnerMark,omitempty"`
	Draw       bool   `json:"draw"`
	Forfeit    bool   `json:"forfeit"`
}

func NewGameResult(roomID string, o room.Outcome) GameResult {
	r := GameResult{RoomID: roomID, Draw: o.Draw(), Forfeit: o.Forfeit}
	if o.Result == game.Win {
		r.Winner = o.WinnerID
		r.WinnerMark = string(o.Winner)
	}
	return r
}

type RematchRequestedPayload struct {
	RoomID           string `json:"roomId"`
	RequestingPlayer string `json:"requestingPlayer"`
}

type RematchStartedPayload struct {
	RoomID      string       `json:"roomId"`
	Board       [3][3]string `json:"board"`
	CurrentTurn string       `json:"currentTurn"`
	Round       int          `json:"round"`
}

type PlayerLeftPayload struct {
	RoomID      string `json:"roomId"`
	Participant string `json:"participant"`
	WasPlayer   bool   `json:"wasPlayer"`
}

type RoomClosedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type AckPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
