package room

import "errors"

// Caller-facing errors. None of them leave a room partially modified.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrInvalidJoinCode    = errors.New("invalid join code")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrCellOccupied       = errors.New("cell already occupied")

	ErrInvalidRoomName    = errors.New("room name must be at least 3 characters")
	ErrInvalidParticipant = errors.New("participant id is required")
	ErrInvalidMove        = errors.New("move is out of bounds")
	ErrGameNotActive      = errors.New("game is not active")
	ErrGameNotStarted     = errors.New("game has not started")
	ErrNotAPlayer         = errors.New("not a player in this room")
	ErrNotInRoom          = errors.New("not in this room")
	ErrAlreadyInRoom      = errors.New("already in this room")
	ErrNotRoomOwner       = errors.New("only the room creator can do that")
	ErrOpponentLeft       = errors.New("opponent has left the room")
)

// IsClientError reports whether err is one of the sentinel errors above,
// as opposed to an unexpected internal failure.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var clientErrors = []error{
	ErrRoomNotFound,
	ErrRoomFull,
	ErrInvalidJoinCode,
	ErrGameAlreadyStarted,
	ErrNotYourTurn,
	ErrCellOccupied,
	ErrInvalidRoomName,
	ErrInvalidParticipant,
	ErrInvalidMove,
	ErrGameNotActive,
	ErrGameNotStarted,
	ErrNotAPlayer,
	ErrNotInRoom,
	ErrAlreadyInRoom,
	ErrNotRoomOwner,
	ErrOpponentLeft,
}
