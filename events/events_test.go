package events_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameroncuttingedge/tictactoe-arena/events"
	"github.com/cameroncuttingedge/tictactoe-arena/game"
	"github.com/cameroncuttingedge/tictactoe-arena/room"
)

func TestEnvelopeDecode(t *testing.T) {
	raw := `{"type":"make-move","requestId":"r1","payload":{"roomId":"abc","row":2,"col":1}}`

	var env events.Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, events.MakeMove, env.Type)
	assert.Equal(t, "r1", env.RequestID)

	var p events.MakeMovePayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, events.MakeMovePayload{RoomID: "abc", Row: 2, Col: 1}, p)
}

func TestEnvelopeDecode_MissingPayload(t *testing.T) {
	var env events.Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ping"}`), &env))

	p := events.RoomPayload{RoomID: "keep"}
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, "keep", p.RoomID)
}

func TestEnvelopeDecode_BadPayload(t *testing.T) {
	env := events.Envelope{Type: events.MakeMove, Payload: json.RawMessage(`{"row":"two"}`)}
	var p events.MakeMovePayload
	err := env.Decode(&p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "make-move")
}

func TestEncode(t *testing.T) {
	frame, err := events.Encode(events.Ack, "r9", events.AckPayload{Success: false, Message: "room is full"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ack","requestId":"r9","payload":{"success":false,"message":"room is full"}}`, string(frame))

	frame, err = events.Encode(events.Pong, "", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(frame))
}

func TestNewRoomState(t *testing.T) {
	snap := room.Snapshot{
		ID:          "r1",
		Name:        "secret",
		IsPrivate:   true,
		JoinCode:    "ABC234",
		Players:     []string{"p1", "p2"},
		Spectators:  []string{},
		Board:       game.Board{}.Set(0, 0, game.MarkX),
		CurrentTurn: "p2",
		Status:      room.StatusCompleted,
		Round:       3,
		Outcome:     &room.Outcome{Result: game.Win, Winner: game.MarkO, WinnerID: "p2", Forfeit: true},
	}

	st := events.NewRoomState(snap, false)
	assert.Empty(t, st.JoinCode)
	assert.Equal(t, "X", st.Board[0][0])
	assert.Equal(t, "completed", st.Status)
	require.NotNil(t, st.Outcome)
	assert.Equal(t, "p2", st.Outcome.Winner)
	assert.Equal(t, "O", st.Outcome.WinnerMark)
	assert.True(t, st.Outcome.Forfeit)

	assert.Equal(t, "ABC234", events.NewRoomState(snap, true).JoinCode)
}

func TestNewGameResult_Draw(t *testing.T) {
	r := events.NewGameResult("r1", room.Outcome{Result: game.Draw})
	assert.True(t, r.Draw)
	assert.Empty(t, r.Winner)
	assert.Empty(t, r.WinnerMark)
}
