package websocket

import (
	"encoding/json"
	"errors"

	"github.com/cameroncuttingedge/tictactoe-arena/events"
	"github.com/cameroncuttingedge/tictactoe-arena/rematch"
	"github.com/cameroncuttingedge/tictactoe-arena/room"
	"github.com/cameroncuttingedge/tictactoe-arena/store"
)

const internalErrorMessage = "internal error"

var (
	errBadFrame    = errors.New("malformed message")
	errUnknownType = errors.New("unknown message type")
	errMissingRoom = errors.New("roomId is required")
)

// handle decodes one inbound frame and runs its intent. Failures are only
// ever reported to c.
func (gw *Gateway) handle(c *Client, message []byte) {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
		gw.fail(c, "", errBadFrame)
		return
	}

	gw.logger.Debug().Str("connID", c.id).Str("type", env.Type).Str("requestId", env.RequestID).Msg("Intent received")

	var err error
	switch env.Type {
	case events.CreateRoom:
		err = gw.createRoom(c, env)
	case events.JoinRoom:
		err = gw.joinRoom(c, env)
	case events.JoinByCode:
		err = gw.joinByCode(c, env)
	case events.MakeMove:
		err = gw.makeMove(c, env)
	case events.RequestRematch:
		err = gw.requestRematch(c, env)
	case events.LeaveRoom:
		err = gw.leaveRoom(c, env)
	case events.CloseRoom:
		err = gw.closeRoom(c, env)
	case events.Ping:
		gw.send(c, events.Pong, env.RequestID, nil)
		return
	default:
		err = errUnknownType
	}

	if err != nil {
		gw.fail(c, env.RequestID, err)
		return
	}
	gw.send(c, events.Ack, env.RequestID, events.AckPayload{Success: true})
}

// fail acknowledges a failed intent. Domain errors carry their own message;
// anything else is logged and hidden behind a generic one.
func (gw *Gateway) fail(c *Client, requestID string, err error) {
	msg := err.Error()
	if !room.IsClientError(err) && !isProtocolError(err) {
		gw.logger.Error().Err(err).Str("connID", c.id).Str("requestId", requestID).Msg("Intent failed")
		msg = internalErrorMessage
	}
	gw.send(c, events.Ack, requestID, events.AckPayload{Success: false, Message: msg})
}

func isProtocolError(err error) bool {
	var decodeErr *payloadError
	return errors.Is(err, errBadFrame) || errors.Is(err, errUnknownType) ||
		errors.Is(err, errMissingRoom) || errors.As(err, &decodeErr)
}

type payloadError struct{ err error }

func (e *payloadError) Error() string { return "invalid payload: " + e.err.Error() }
func (e *payloadError) Unwrap() error { return e.err }

func decode(env events.Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return &payloadError{err: err}
	}
	return nil
}

func (gw *Gateway) send(c *Client, eventType, requestID string, payload any) {
	frame, err := events.Encode(eventType, requestID, payload)
	if err != nil {
		gw.logger.Error().Err(err).Str("type", eventType).Msg("Failed to encode event")
		return
	}
	c.enqueue(frame)
}

func (gw *Gateway) publish(audience []string, eventType string, payload any) {
	frame, err := events.Encode(eventType, "", payload)
	if err != nil {
		gw.logger.Error().Err(err).Str("type", eventType).Msg("Failed to encode event")
		return
	}
	gw.broadcast(audience, frame)
}

func (gw *Gateway) createRoom(c *Client, env events.Envelope) error {
	var p events.CreateRoomPayload
	if err := decode(env, &p); err != nil {
		return err
	}
	snap, err := gw.rooms.CreateRoom(p.Name, p.IsPrivate, c.id)
	if err != nil {
		return err
	}
	c.track(snap.ID)
	gw.send(c, events.RoomCreated, env.RequestID, events.RoomCreatedPayload{Room: events.NewRoomState(snap, true)})
	gw.sink.SaveRoom(snap)
	return nil
}

func (gw *Gateway) joinRoom(c *Client, env events.Envelope) error {
	var p events.JoinRoomPayload
	if err := decode(env, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return errMissingRoom
	}
	return gw.withRoom(p.RoomID, func() error {
		snap, err := gw.rooms.JoinRoom(p.RoomID, c.id, p.AsSpectator, p.JoinCode)
		if err != nil {
			return err
		}
		gw.joined(c, snap, p.AsSpectator)
		return nil
	})
}

func (gw *Gateway) joinByCode(c *Client, env events.Envelope) error {
	var p events.JoinByCodePayload
	if err := decode(env, &p); err != nil {
		return err
	}
	roomID, ok := gw.rooms.LookupCode(p.JoinCode)
	if !ok {
		return room.ErrInvalidJoinCode
	}
	return gw.withRoom(roomID, func() error {
		snap, err := gw.rooms.JoinByCode(p.JoinCode, c.id, p.AsSpectator)
		if err != nil {
			return err
		}
		gw.joined(c, snap, p.AsSpectator)
		return nil
	})
}

func (gw *Gateway) joined(c *Client, snap room.Snapshot, asSpectator bool) {
	c.track(snap.ID)
	gw.publish(snap.Audience(), events.RoomJoined, events.RoomJoinedPayload{
		Room:        events.NewRoomState(snap, false),
		Participant: c.id,
		AsSpectator: asSpectator,
	})
	gw.sink.SaveRoom(snap)
}

func (gw *Gateway) makeMove(c *Client, env events.Envelope) error {
	var p events.MakeMovePayload
	if err := decode(env, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return errMissingRoom
	}
	return gw.withRoom(p.RoomID, func() error {
		res, err := gw.rooms.MakeMove(p.RoomID, c.id, p.Row, p.Col)
		if err != nil {
			return err
		}
		gw.publish(res.Audience, events.UpdateBoard, events.UpdateBoardPayload{
			RoomID:      res.RoomID,
			Board:       res.Board.Strings(),
			CurrentTurn: res.CurrentTurn,
			LastMove:    &events.Move{Player: res.PlayerID, Mark: string(res.Mark), Row: res.Row, Col: res.Col},
		})
		if res.Outcome != nil {
			gw.gameEnded(res.Room)
		}
		gw.sink.SaveRoom(res.Room)
		return nil
	})
}

// gameEnded announces a finished game and records it.
func (gw *Gateway) gameEnded(snap room.Snapshot) {
	gw.publish(snap.Audience(), events.GameEnded, events.NewGameResult(snap.ID, *snap.Outcome))

	rec, err := store.NewGameRecord(snap, gw.userIDs(snap.Players))
	if err != nil {
		gw.logger.Error().Err(err).Str("roomID", snap.ID).Msg("Cannot build game record")
		return
	}
	gw.sink.RecordGame(rec)
}

func (gw *Gateway) requestRematch(c *Client, env events.Envelope) error {
	var p events.RoomPayload
	if err := decode(env, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return errMissingRoom
	}
	return gw.withRoom(p.RoomID, func() error {
		res, err := gw.rematch.RequestRematch(p.RoomID, c.id)
		if err != nil {
			return err
		}
		gw.rematchOutcome(c, res)
		return nil
	})
}

func (gw *Gateway) rematchOutcome(c *Client, res rematch.Result) {
	audience := res.Room.Audience()
	if !res.Started {
		gw.publish(audience, events.RematchRequested, events.RematchRequestedPayload{
			RoomID:           res.Room.ID,
			RequestingPlayer: c.id,
		})
		return
	}
	gw.publish(audience, events.RematchStarted, events.RematchStartedPayload{
		RoomID:      res.Room.ID,
		Board:       res.Room.Board.Strings(),
		CurrentTurn: res.Room.CurrentTurn,
		Round:       res.Room.Round,
	})
	gw.sink.SaveRoom(res.Room)
}

func (gw *Gateway) leaveRoom(c *Client, env events.Envelope) error {
	var p events.RoomPayload
	if err := decode(env, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return errMissingRoom
	}
	return gw.leave(c, p.RoomID)
}

// leave takes c out of roomID, on request or on disconnect.
func (gw *Gateway) leave(c *Client, roomID string) error {
	return gw.withRoom(roomID, func() error {
		res, err := gw.rooms.Leave(roomID, c.id)
		c.untrack(roomID)
		if err != nil {
			return err
		}
		gw.rematch.Withdraw(roomID, c.id)

		if res.Forfeit {
			gw.gameEnded(res.Room)
		}
		gw.publish(res.Room.Audience(), events.PlayerLeft, events.PlayerLeftPayload{
			RoomID:      roomID,
			Participant: c.id,
			WasPlayer:   res.WasPlayer,
		})

		if res.Destroyed {
			gw.roomGone(res.Room, "abandoned")
			return nil
		}
		gw.sink.SaveRoom(res.Room)
		return nil
	})
}

func (gw *Gateway) closeRoom(c *Client, env events.Envelope) error {
	var p events.RoomPayload
	if err := decode(env, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return errMissingRoom
	}
	return gw.withRoom(p.RoomID, func() error {
		snap, err := gw.rooms.CloseRoom(p.RoomID, c.id)
		if err != nil {
			return err
		}
		gw.roomGone(snap, "closed")
		return nil
	})
}

// roomGone tells whoever is still watching that the room no longer exists.
func (gw *Gateway) roomGone(snap room.Snapshot, reason string) {
	audience := snap.Audience()
	gw.publish(audience, events.RoomClosed, events.RoomClosedPayload{RoomID: snap.ID, Reason: reason})
	for _, id := range audience {
		if member, ok := gw.clients.Get(id); ok {
			member.untrack(snap.ID)
		}
	}
	gw.rematch.Forget(snap.ID)
	gw.sink.DeleteRoom(snap.ID)
}
