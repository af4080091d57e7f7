package room

import (
	"slices"
	"sync"
	"time"

	"github.com/cameroncuttingedge/tictactoe-arena/game"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

const MaxPlayers = 2

// Outcome describes how a game ended. WinnerID is empty for a draw.
type Outcome struct {
	Result   game.Result
	Winner   game.Mark
	WinnerID string
	Forfeit  bool
}

func (o Outcome) Draw() bool { return o.Result == game.Draw }

// Snapshot is a detached copy of a room. Mutating it has no effect on the registry.
type Snapshot struct {
	ID          string
	Name        string
	IsPrivate   bool
	JoinCode    string
	Players     []string
	Spectators  []string
	Departed    []string
	Board       game.Board
	CurrentTurn string
	Status      Status
	Outcome     *Outcome
	Round       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Audience is every connection that should receive the room's broadcasts.
func (s Snapshot) Audience() []string {
	out := make([]string, 0, len(s.Players)+len(s.Spectators))
	for _, p := range s.Players {
		if !slices.Contains(s.Departed, p) {
			out = append(out, p)
		}
	}
	return append(out, s.Spectators...)
}

func (s Snapshot) IsPlayer(id string) bool {
	return slices.Contains(s.Players, id)
}

// MarkOf returns the mark assigned to a player, or game.Empty for anyone else.
func (s Snapshot) MarkOf(id string) game.Mark {
	i := slices.Index(s.Players, id)
	if i < 0 {
		return game.Empty
	}
	return game.MarkFor(i)
}

// MoveResult is returned by a successful MakeMove.
type MoveResult struct {
	RoomID      string
	PlayerID    string
	Row, Col    int
	Mark        game.Mark
	Board       game.Board
	CurrentTurn string
	Status      Status
	Outcome     *Outcome
	Round       int
	Audience    []string
	// Room is the state right after the move.
	Room Snapshot
}

// LeaveResult is returned by Leave.
type LeaveResult struct {
	Room      Snapshot
	WasPlayer bool
	// Forfeit is set when the departure ended an active game.
	Forfeit bool
	// Destroyed is set when no connected player remains and the room was removed.
	Destroyed bool
}

// room is the authoritative record. Every field is guarded by mu and only
// the Registry touches it.
type room struct {
	mu sync.Mutex

	id        string
	name      string
	isPrivate bool
	joinCode  string

	players     []string
	departed    map[string]struct{}
	spectators  []string
	board       game.Board
	currentTurn string
	status      Status
	outcome     *Outcome
	round       int

	createdAt time.Time
	updatedAt time.Time

	// destroyed is set once the room has left the registry; a caller that
	// looked the room up before that must treat it as missing.
	destroyed bool
}

func (r *room) snapshot() Snapshot {
	s := Snapshot{
		ID:          r.id,
		Name:        r.name,
		IsPrivate:   r.isPrivate,
		JoinCode:    r.joinCode,
		Players:     slices.Clone(r.players),
		Spectators:  slices.Clone(r.spectators),
		Board:       r.board,
		CurrentTurn: r.currentTurn,
		Status:      r.status,
		Round:       r.round,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}
	if s.Spectators == nil {
		s.Spectators = []string{}
	}
	for _, p := range r.players {
		if _, gone := r.departed[p]; gone {
			s.Departed = append(s.Departed, p)
		}
	}
	if r.outcome != nil {
		o := *r.outcome
		s.Outcome = &o
	}
	return s
}

func (r *room) playerIndex(id string) int {
	return slices.Index(r.players, id)
}

func (r *room) isSpectator(id string) bool {
	return slices.Contains(r.spectators, id)
}

func (r *room) connectedPlayers() int {
	return len(r.players) - len(r.departed)
}

func (r *room) playerWith(m game.Mark) string {
	for i, p := range r.players {
		if game.MarkFor(i) == m {
			return p
		}
	}
	return ""
}

func (r *room) other(id string) string {
	for _, p := range r.players {
		if p != id {
			return p
		}
	}
	return ""
}
