// Package store mirrors room state and finished games to external storage.
// Nothing in here is on the move path: the gateway feeds a Writer, which
// applies writes in the background.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cameroncuttingedge/tictactoe-arena/room"
)

// Mirror is the persistence collaborator.
type Mirror interface {
	SaveRoom(ctx context.Context, snap room.Snapshot) error
	DeleteRoom(ctx context.Context, roomID string) error
	RecordGame(ctx context.Context, rec GameRecord) error
}

// GameRecord is one finished game. Round identifies the game within its room.
type GameRecord struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	Round    int    `json:"round"`

	PlayerX     string `json:"playerX"`
	PlayerO     string `json:"playerO"`
	PlayerXUser string `json:"playerXUser,omitempty"`
	PlayerOUser string `json:"playerOUser,omitempty"`

	WinnerID   string `json:"winnerId,omitempty"`
	WinnerMark string `json:"winnerMark,omitempty"`
	Draw       bool   `json:"draw"`
	Forfeit    bool   `json:"forfeit"`

	Board      string    `json:"board"`
	FinishedAt time.Time `json:"finishedAt"`
}

// NewGameRecord builds the record for a completed snapshot. users maps
// connection ids to user ids and may be nil.
func NewGameRecord(snap room.Snapshot, users map[string]string) (GameRecord, error) {
	if snap.Status != room.StatusCompleted || snap.Outcome == nil {
		return GameRecord{}, errors.New("room has no finished game")
	}
	rec := GameRecord{
		RoomID:     snap.ID,
		RoomName:   snap.Name,
		Round:      snap.Round,
		Draw:       snap.Outcome.Draw(),
		Forfeit:    snap.Outcome.Forfeit,
		WinnerID:   snap.Outcome.WinnerID,
		WinnerMark: string(snap.Outcome.Winner),
		Board:      snap.Board.String(),
		FinishedAt: snap.UpdatedAt,
	}
	if len(snap.Players) > 0 {
		rec.PlayerX = snap.Players[0]
		rec.PlayerXUser = users[rec.PlayerX]
	}
	if len(snap.Players) > 1 {
		rec.PlayerO = snap.Players[1]
		rec.PlayerOUser = users[rec.PlayerO]
	}
	return rec, nil
}

// Nop discards everything. Used when no backend is configured.
type Nop struct{}

func (Nop) SaveRoom(context.Context, room.Snapshot) error { return nil }
func (Nop) DeleteRoom(context.Context, string) error      { return nil }
func (Nop) RecordGame(context.Context, GameRecord) error  { return nil }

// Multi fans every write out to all mirrors and joins their errors.
type Multi []Mirror

func (m Multi) SaveRoom(ctx context.Context, snap room.Snapshot) error {
	var errs []error
	for _, mirror := range m {
		errs = append(errs, mirror.SaveRoom(ctx, snap))
	}
	return errors.Join(errs...)
}

func (m Multi) DeleteRoom(ctx context.Context, roomID string) error {
	var errs []error
	for _, mirror := range m {
		errs = append(errs, mirror.DeleteRoom(ctx, roomID))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordGame(ctx context.Context, rec GameRecord) error {
	var errs []error
	for _, mirror := range m {
		errs = append(errs, mirror.RecordGame(ctx, rec))
	}
	return errors.Join(errs...)
}
