package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cameroncuttingedge/tictactoe-arena/room"
)

const activeRoomsKey = "rooms:active"

var ErrNotMirrored = errors.New("room not mirrored")

func roomKey(id string) string  { return "room:" + id }
func gamesKey(id string) string { return "room:" + id + ":games" }

// RoomDoc is the JSON form of a snapshot kept under room:<id>.
type RoomDoc struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	IsPrivate   bool         `json:"isPrivate"`
	JoinCode    string       `json:"joinCode,omitempty"`
	Players     []string     `json:"players"`
	Spectators  []string     `json:"spectators"`
	Departed    []string     `json:"departed,omitempty"`
	Board       [3][3]string `json:"board"`
	CurrentTurn string       `json:"currentTurn"`
	Status      string       `json:"status"`
	Round       int          `json:"round"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func newRoomDoc(s room.Snapshot) RoomDoc {
	return RoomDoc{
		ID:          s.ID,
		Name:        s.Name,
		IsPrivate:   s.IsPrivate,
		JoinCode:    s.JoinCode,
		Players:     s.Players,
		Spectators:  s.Spectators,
		Departed:    s.Departed,
		Board:       s.Board.Strings(),
		CurrentTurn: s.CurrentTurn,
		Status:      string(s.Status),
		Round:       s.Round,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// Redis mirrors live rooms as JSON documents with a TTL, plus a per-room
// list of finished games. It is a read model for dashboards and other
// processes; the registry never reads it back.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (r *Redis) SaveRoom(ctx context.Context, snap room.Snapshot) error {
	data, err := json.Marshal(newRoomDoc(snap))
	if err != nil {
		return fmt.Errorf("marshal room %s: %w", snap.ID, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(snap.ID), data, r.ttl)
		pipe.SAdd(ctx, activeRoomsKey, snap.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save room %s: %w", snap.ID, err)
	}
	return nil
}

// DeleteRoom drops the live document. Game history expires on its own.
func (r *Redis) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKey(roomID))
		pipe.SRem(ctx, activeRoomsKey, roomID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	return nil
}

func (r *Redis) RecordGame(ctx context.Context, rec GameRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal game %s/%d: %w", rec.RoomID, rec.Round, err)
	}
	key := gamesKey(rec.RoomID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record game %s/%d: %w", rec.RoomID, rec.Round, err)
	}
	return nil
}

// LoadRoom returns the mirrored document for roomID.
func (r *Redis) LoadRoom(ctx context.Context, roomID string) (RoomDoc, error) {
	data, err := r.client.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return RoomDoc{}, fmt.Errorf("%w: %s", ErrNotMirrored, roomID)
	}
	if err != nil {
		return RoomDoc{}, fmt.Errorf("load room %s: %w", roomID, err)
	}
	var doc RoomDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return RoomDoc{}, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return doc, nil
}

// Games returns roomID's finished games, oldest first.
func (r *Redis) Games(ctx context.Context, roomID string) ([]GameRecord, error) {
	raw, err := r.client.LRange(ctx, gamesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load games %s: %w", roomID, err)
	}
	out := make([]GameRecord, 0, len(raw))
	for _, item := range raw {
		var rec GameRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode game %s: %w", roomID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ActiveRooms lists ids of rooms currently mirrored.
func (r *Redis) ActiveRooms(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, activeRoomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return ids, nil
}
