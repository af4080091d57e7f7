package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/cameroncuttingedge/tictactoe-arena/room"
)

// Postgres keeps the durable history: one row per room ever created and one
// per finished game. Destroyed rooms are closed, not deleted.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("postgres url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(db), nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) SaveRoom(ctx context.Context, snap room.Snapshot) error {
	const q = `INSERT INTO rooms (id, name, is_private, join_code, players, status, round, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			players = EXCLUDED.players,
			status = EXCLUDED.status,
			round = EXCLUDED.round,
			updated_at = EXCLUDED.updated_at`

	_, err := p.db.ExecContext(ctx, q,
		snap.ID, snap.Name, snap.IsPrivate, snap.JoinCode, pq.Array(snap.Players),
		string(snap.Status), snap.Round, snap.CreatedAt, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert room %s: %w", snap.ID, err)
	}
	return nil
}

func (p *Postgres) DeleteRoom(ctx context.Context, roomID string) error {
	const q = `UPDATE rooms SET closed_at = $2 WHERE id = $1 AND closed_at IS NULL`
	if _, err := p.db.ExecContext(ctx, q, roomID, p.now()); err != nil {
		return fmt.Errorf("close room %s: %w", roomID, err)
	}
	return nil
}

// RecordGame inserts a finished game. Replays of the same (room, round) are ignored.
func (p *Postgres) RecordGame(ctx context.Context, rec GameRecord) error {
	const q = `INSERT INTO game_results (
			room_id, round, player_x, player_o, player_x_user, player_o_user,
			winner_id, winner_mark, is_draw, is_forfeit, board, finished_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12)
		ON CONFLICT (room_id, round) DO NOTHING`

	_, err := p.db.ExecContext(ctx, q,
		rec.RoomID, rec.Round, rec.PlayerX, rec.PlayerO, rec.PlayerXUser, rec.PlayerOUser,
		rec.WinnerID, rec.WinnerMark, rec.Draw, rec.Forfeit, rec.Board, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert game %s/%d: %w", rec.RoomID, rec.Round, err)
	}
	return nil
}

// Games returns a room's finished games ordered by round.
func (p *Postgres) Games(ctx context.Context, roomID string) ([]GameRecord, error) {
	const q = `SELECT g.room_id, COALESCE(r.name, ''), g.round, g.player_x, g.player_o,
			COALESCE(g.player_x_user, ''), COALESCE(g.player_o_user, ''),
			COALESCE(g.winner_id, ''), COALESCE(g.winner_mark, ''),
			g.is_draw, g.is_forfeit, g.board, g.finished_at
		FROM game_results g LEFT JOIN rooms r ON r.id = g.room_id
		WHERE g.room_id = $1
		ORDER BY g.round`

	rows, err := p.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("query games %s: %w", roomID, err)
	}
	defer rows.Close()

	var out []GameRecord
	for rows.Next() {
		var rec GameRecord
		if err := rows.Scan(&rec.RoomID, &rec.RoomName, &rec.Round, &rec.PlayerX, &rec.PlayerO,
			&rec.PlayerXUser, &rec.PlayerOUser, &rec.WinnerID, &rec.WinnerMark,
			&rec.Draw, &rec.Forfeit, &rec.Board, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan game %s: %w", roomID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
