// Package rematch collects replay consent from both players of a room and
// resets the room once both have agreed.
package rematch

import (
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cameroncuttingedge/tictactoe-arena/room"
	"github.com/cameroncuttingedge/tictactoe-arena/utils"
)

// Rooms is the part of the room registry the coordinator drives.
type Rooms interface {
	Get(roomID string) (room.Snapshot, error)
	ResetForRematch(roomID string) (room.Snapshot, error)
}

// Result of a rematch request. Exactly one of Pending and Started is set.
type Result struct {
	Pending bool
	Started bool
	// Room is the post-reset snapshot when Started, otherwise the room as
	// the request found it.
	Room room.Snapshot
	// Consents lists the players that have asked so far in this cycle.
	Consents []string
}

type consent struct {
	mu      sync.Mutex
	players []string
}

type Coordinator struct {
	rooms  Rooms
	sets   *utils.ShardedMap[*consent]
	logger zerolog.Logger
}

func NewCoordinator(rooms Rooms, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		rooms:  rooms,
		sets:   utils.NewShardedMap[*consent](utils.DefaultShardCount),
		logger: logger,
	}
}

// RequestRematch records requesterID's consent. The second distinct consent
// clears the set and resets the room while the consent lock is still held,
// so a pair of requests triggers exactly one reset.
func (c *Coordinator) RequestRematch(roomID, requesterID string) (Result, error) {
	cs := c.sets.GetOrCreate(roomID, func() *consent { return &consent{} })
	cs.mu.Lock()
	defer cs.mu.Unlock()

	snap, err := c.rooms.Get(roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			c.sets.DeleteIf(roomID, func(v *consent) bool { return v == cs })
		}
		return Result{}, err
	}
	if !snap.IsPlayer(requesterID) {
		return Result{}, room.ErrNotAPlayer
	}
	if len(snap.Players) < room.MaxPlayers {
		return Result{}, room.ErrGameNotStarted
	}
	if len(snap.Departed) > 0 {
		return Result{}, room.ErrOpponentLeft
	}

	if !slices.Contains(cs.players, requesterID) {
		cs.players = append(cs.players, requesterID)
	}

	if len(cs.players) < room.MaxPlayers {
		c.logger.Info().
			Str("roomID", roomID).
			Str("player", requesterID).
			Msg("Rematch requested, waiting for opponent")
		return Result{Pending: true, Room: snap, Consents: slices.Clone(cs.players)}, nil
	}

	consents := cs.players
	cs.players = nil

	reset, err := c.rooms.ResetForRematch(roomID)
	if err != nil {
		// the pair is spent either way; a fresh cycle starts on the next request
		c.logger.Warn().Err(err).Str("roomID", roomID).Msg("Rematch reset failed")
		return Result{}, err
	}

	c.logger.Info().
		Str("roomID", roomID).
		Int("round", reset.Round).
		Msg("Both players agreed, rematch started")
	return Result{Started: true, Room: reset, Consents: consents}, nil
}

// Withdraw drops connID's consent, if any. It reports whether a consent was removed.
func (c *Coordinator) Withdraw(roomID, connID string) bool {
	cs, ok := c.sets.Get(roomID)
	if !ok {
		return false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	n := len(cs.players)
	cs.players = slices.DeleteFunc(cs.players, func(p string) bool { return p == connID })
	if len(cs.players) == n {
		return false
	}
	c.logger.Debug().Str("roomID", roomID).Str("player", connID).Msg("Rematch consent withdrawn")
	return true
}

// Forget drops a room's consent set. Called when the room is destroyed.
func (c *Coordinator) Forget(roomID string) {
	c.sets.Delete(roomID)
}

// Pending returns the players currently waiting on a rematch in roomID.
func (c *Coordinator) Pending(roomID string) []string {
	cs, ok := c.sets.Get(roomID)
	if !ok {
		return nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return slices.Clone(cs.players)
}
