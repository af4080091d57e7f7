// Package room holds the authoritative state of every live game room.
//
// Rooms live in a sharded table and each room carries its own mutex, so all
// operations against one room are serialized while different rooms proceed
// independently. Callers only ever see Snapshots.
package room

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cameroncuttingedge/tictactoe-arena/game"
	"github.com/cameroncuttingedge/tictactoe-arena/joincode"
	"github.com/cameroncuttingedge/tictactoe-arena/utils"
)

const minNameLength = 3

// CodeIssuer is the part of the join code generator the registry needs.
type CodeIssuer interface {
	Generate() string
	Release(code string)
}

type Option func(*Registry)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func WithIDFunc(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

func WithShards(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.shards = n
		}
	}
}

type Registry struct {
	rooms  *utils.ShardedMap[*room]
	codes  *utils.ShardedMap[string] // join code -> room id
	issuer CodeIssuer

	logger zerolog.Logger
	newID  func() string
	now    func() time.Time
	shards int
}

// NewRegistry builds an empty registry. A nil issuer gets a default joincode.Generator.
func NewRegistry(issuer CodeIssuer, opts ...Option) *Registry {
	r := &Registry{
		issuer: issuer,
		logger: zerolog.Nop(),
		newID:  utils.GenerateUUIDString,
		now:    time.Now,
		shards: utils.DefaultShardCount,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.issuer == nil {
		r.issuer = joincode.New()
	}
	r.rooms = utils.NewShardedMap[*room](r.shards)
	r.codes = utils.NewShardedMap[string](r.shards)
	return r
}

// lock looks a room up and returns it locked. The caller must Unlock.
func (r *Registry) lock(roomID string) (*room, error) {
	rm, ok := r.rooms.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	rm.mu.Lock()
	if rm.destroyed {
		rm.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return rm, nil
}

// CreateRoom inserts a new waiting room with the creator as player one.
func (r *Registry) CreateRoom(name string, isPrivate bool, creatorID string) (Snapshot, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < minNameLength {
		return Snapshot{}, ErrInvalidRoomName
	}
	if creatorID == "" {
		return Snapshot{}, ErrInvalidParticipant
	}

	now := r.now()
	rm := &room{
		id:          r.newID(),
		name:        name,
		isPrivate:   isPrivate,
		players:     []string{creatorID},
		departed:    make(map[string]struct{}),
		currentTurn: creatorID,
		status:      StatusWaiting,
		round:       1,
		createdAt:   now,
		updatedAt:   now,
	}
	if isPrivate {
		rm.joinCode = r.reserveCode(rm.id)
	}

	for !r.rooms.SetIfAbsent(rm.id, rm) {
		rm.id = r.newID()
		if isPrivate {
			r.codes.Set(rm.joinCode, rm.id)
		}
	}

	r.logger.Info().
		Str("roomID", rm.id).
		Str("name", name).
		Bool("private", isPrivate).
		Str("creator", creatorID).
		Msg("Room created")

	return rm.snapshot(), nil
}

// reserveCode asks the issuer for a code that no live room holds. The issuer
// trims old codes to bound memory, so it can hand back one still in use here.
func (r *Registry) reserveCode(roomID string) string {
	for {
		code := r.issuer.Generate()
		if r.codes.SetIfAbsent(code, roomID) {
			return code
		}
		r.logger.Warn().Str("code", code).Msg("Join code still held by a live room, retrying")
	}
}

// JoinRoom adds a participant. Spectators are accepted in any state; players
// only while the room is waiting for its second player.
func (r *Registry) JoinRoom(roomID, joinerID string, asSpectator bool, joinCode string) (Snapshot, error) {
	if joinerID == "" {
		return Snapshot{}, ErrInvalidParticipant
	}
	rm, err := r.lock(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rm.mu.Unlock()

	if rm.isPrivate && !codesMatch(rm.joinCode, joinCode) {
		return Snapshot{}, ErrInvalidJoinCode
	}

	if asSpectator {
		if rm.playerIndex(joinerID) >= 0 {
			return Snapshot{}, ErrAlreadyInRoom
		}
		if !rm.isSpectator(joinerID) {
			rm.spectators = append(rm.spectators, joinerID)
			rm.updatedAt = r.now()
		}
		r.logger.Info().Str("roomID", rm.id).Str("spectator", joinerID).Msg("Spectator joined")
		return rm.snapshot(), nil
	}

	switch {
	case rm.playerIndex(joinerID) >= 0:
		return Snapshot{}, ErrAlreadyInRoom
	case len(rm.players) >= MaxPlayers:
		return Snapshot{}, ErrRoomFull
	case rm.status != StatusWaiting:
		return Snapshot{}, ErrGameAlreadyStarted
	}

	rm.spectators = slices.DeleteFunc(rm.spectators, func(s string) bool { return s == joinerID })
	rm.players = append(rm.players, joinerID)
	if len(rm.players) == MaxPlayers {
		rm.status = StatusActive
		rm.currentTurn = rm.players[0]
	}
	rm.updatedAt = r.now()

	r.logger.Info().
		Str("roomID", rm.id).
		Str("player", joinerID).
		Str("status", string(rm.status)).
		Msg("Player joined")

	return rm.snapshot(), nil
}

// JoinByCode resolves a private room from its join code and joins it.
func (r *Registry) JoinByCode(joinCode, joinerID string, asSpectator bool) (Snapshot, error) {
	roomID, ok := r.LookupCode(joinCode)
	if !ok {
		return Snapshot{}, ErrInvalidJoinCode
	}
	snap, err := r.JoinRoom(roomID, joinerID, asSpectator, joinCode)
	if errors.Is(err, ErrRoomNotFound) {
		// destroyed between the lookup and the join
		return Snapshot{}, ErrInvalidJoinCode
	}
	return snap, err
}

// LookupCode returns the id of the live room holding joinCode.
func (r *Registry) LookupCode(joinCode string) (string, bool) {
	return r.codes.Get(normalizeCode(joinCode))
}

// MakeMove places the mover's mark and flips the turn. On a terminal board
// the room is completed and the outcome is returned.
func (r *Registry) MakeMove(roomID, playerID string, row, col int) (MoveResult, error) {
	rm, err := r.lock(roomID)
	if err != nil {
		return MoveResult{}, err
	}
	defer rm.mu.Unlock()

	if rm.status != StatusActive {
		return MoveResult{}, ErrGameNotActive
	}
	idx := rm.playerIndex(playerID)
	if idx < 0 {
		return MoveResult{}, fmt.Errorf("%w: %w", ErrNotYourTurn, ErrNotAPlayer)
	}
	if playerID != rm.currentTurn {
		return MoveResult{}, ErrNotYourTurn
	}
	if !game.InBounds(row, col) {
		return MoveResult{}, ErrInvalidMove
	}
	if rm.board.At(row, col) != game.Empty {
		return MoveResult{}, ErrCellOccupied
	}

	mark := game.MarkFor(idx)
	board := rm.board.Set(row, col, mark)

	rm.board = board
	rm.currentTurn = rm.other(playerID)
	rm.updatedAt = r.now()

	result, winner := game.Evaluate(board)
	if result != game.InProgress {
		rm.status = StatusCompleted
		o := &Outcome{Result: result, Winner: winner}
		if result == game.Win {
			o.WinnerID = rm.playerWith(winner)
		}
		rm.outcome = o

		r.logger.Info().
			Str("roomID", rm.id).
			Str("result", result.String()).
			Str("winner", string(winner)).
			Int("round", rm.round).
			Msg("Game completed")
	} else {
		r.logger.Debug().
			Str("roomID", rm.id).
			Str("player", playerID).
			Int("row", row).
			Int("col", col).
			Str("board", board.String()).
			Msg("Move accepted")
	}

	snap := rm.snapshot()
	return MoveResult{
		RoomID:      rm.id,
		PlayerID:    playerID,
		Row:         row,
		Col:         col,
		Mark:        mark,
		Board:       board,
		CurrentTurn: rm.currentTurn,
		Status:      rm.status,
		Outcome:     snap.Outcome,
		Round:       rm.round,
		Audience:    snap.Audience(),
		Room:        snap,
	}, nil
}

// ResetForRematch clears the board for a new round. The creator always moves first.
func (r *Registry) ResetForRematch(roomID string) (Snapshot, error) {
	rm, err := r.lock(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rm.mu.Unlock()

	if len(rm.players) < MaxPlayers {
		return Snapshot{}, ErrGameNotStarted
	}
	if len(rm.departed) > 0 {
		return Snapshot{}, ErrOpponentLeft
	}

	rm.board = game.Board{}
	rm.currentTurn = rm.players[0]
	rm.status = StatusActive
	rm.outcome = nil
	rm.round++
	rm.updatedAt = r.now()

	r.logger.Info().Str("roomID", rm.id).Int("round", rm.round).Msg("Room reset for rematch")
	return rm.snapshot(), nil
}

// Leave removes a connection from a room. A player walking out of an active
// game forfeits it. The room is destroyed once no connected player remains.
func (r *Registry) Leave(roomID, connID string) (LeaveResult, error) {
	rm, err := r.lock(roomID)
	if err != nil {
		return LeaveResult{}, err
	}
	defer rm.mu.Unlock()

	if rm.isSpectator(connID) {
		rm.spectators = slices.DeleteFunc(rm.spectators, func(s string) bool { return s == connID })
		rm.updatedAt = r.now()
		r.logger.Info().Str("roomID", rm.id).Str("spectator", connID).Msg("Spectator left")
		return LeaveResult{Room: rm.snapshot()}, nil
	}

	idx := rm.playerIndex(connID)
	if idx < 0 {
		return LeaveResult{}, ErrNotInRoom
	}
	if _, gone := rm.departed[connID]; gone {
		return LeaveResult{}, ErrNotInRoom
	}

	res := LeaveResult{WasPlayer: true}
	rm.departed[connID] = struct{}{}
	rm.updatedAt = r.now()

	if rm.status == StatusActive {
		winnerID := rm.other(connID)
		rm.status = StatusCompleted
		rm.outcome = &Outcome{
			Result:   game.Win,
			Winner:   game.MarkFor(rm.playerIndex(winnerID)),
			WinnerID: winnerID,
			Forfeit:  true,
		}
		res.Forfeit = true
		r.logger.Info().Str("roomID", rm.id).Str("player", connID).Str("winner", winnerID).Msg("Game forfeited")
	}

	if rm.connectedPlayers() == 0 {
		r.destroyLocked(rm, "abandoned")
		res.Destroyed = true
	}
	res.Room = rm.snapshot()
	return res, nil
}

// CloseRoom destroys a room on request of its creator.
func (r *Registry) CloseRoom(roomID, requesterID string) (Snapshot, error) {
	rm, err := r.lock(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rm.mu.Unlock()

	if len(rm.players) == 0 || rm.players[0] != requesterID {
		return Snapshot{}, ErrNotRoomOwner
	}
	snap := rm.snapshot()
	r.destroyLocked(rm, "closed")
	return snap, nil
}

// destroyLocked removes rm from the registry and releases its join code.
// rm.mu must be held.
func (r *Registry) destroyLocked(rm *room, reason string) {
	rm.destroyed = true
	r.rooms.DeleteIf(rm.id, func(v *room) bool { return v == rm })
	if rm.joinCode != "" {
		id := rm.id
		r.codes.DeleteIf(rm.joinCode, func(v string) bool { return v == id })
		r.issuer.Release(rm.joinCode)
	}
	r.logger.Info().Str("roomID", rm.id).Str("reason", reason).Msg("Room destroyed")
}

// Get returns a snapshot of a room.
func (r *Registry) Get(roomID string) (Snapshot, error) {
	rm, err := r.lock(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rm.mu.Unlock()
	return rm.snapshot(), nil
}

// IsPlayer reports whether id holds one of the room's player seats.
func (r *Registry) IsPlayer(roomID, id string) (bool, error) {
	rm, err := r.lock(roomID)
	if err != nil {
		return false, err
	}
	defer rm.mu.Unlock()
	return rm.playerIndex(id) >= 0, nil
}

type Stats struct {
	Rooms      int            `json:"rooms"`
	Players    int            `json:"players"`
	Spectators int            `json:"spectators"`
	ByStatus   map[Status]int `json:"byStatus"`
	JoinCodes  int            `json:"joinCodes"`
}

func (r *Registry) Stats() Stats {
	st := Stats{ByStatus: make(map[Status]int)}
	r.rooms.Range(func(_ string, rm *room) bool {
		rm.mu.Lock()
		if !rm.destroyed {
			st.Rooms++
			st.Players += rm.connectedPlayers()
			st.Spectators += len(rm.spectators)
			st.ByStatus[rm.status]++
		}
		rm.mu.Unlock()
		return true
	})
	st.JoinCodes = r.codes.Len()
	return st
}

// Shutdown destroys every room and releases all join codes.
func (r *Registry) Shutdown() {
	n := 0
	r.rooms.Range(func(_ string, rm *room) bool {
		rm.mu.Lock()
		if !rm.destroyed {
			r.destroyLocked(rm, "shutdown")
			n++
		}
		rm.mu.Unlock()
		return true
	})
	r.logger.Info().Int("rooms", n).Msg("Room registry shut down")
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func codesMatch(want, got string) bool {
	return want != "" && want == normalizeCode(got)
}
