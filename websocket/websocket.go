// Package websocket is the real-time gateway: it authenticates sockets,
// turns inbound frames into registry calls and fans results out to every
// connection watching the room.
package websocket

import (
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cameroncuttingedge/tictactoe-arena/auth"
	"github.com/cameroncuttingedge/tictactoe-arena/rematch"
	"github.com/cameroncuttingedge/tictactoe-arena/room"
	"github.com/cameroncuttingedge/tictactoe-arena/store"
	"github.com/cameroncuttingedge/tictactoe-arena/utils"
)

// Rooms is the registry surface the gateway drives.
type Rooms interface {
	CreateRoom(name string, isPrivate bool, creatorID string) (room.Snapshot, error)
	JoinRoom(roomID, joinerID string, asSpectator bool, joinCode string) (room.Snapshot, error)
	JoinByCode(joinCode, joinerID string, asSpectator bool) (room.Snapshot, error)
	LookupCode(joinCode string) (string, bool)
	MakeMove(roomID, playerID string, row, col int) (room.MoveResult, error)
	Leave(roomID, connID string) (room.LeaveResult, error)
	CloseRoom(roomID, requesterID string) (room.Snapshot, error)
	Get(roomID string) (room.Snapshot, error)
}

type Rematcher interface {
	RequestRematch(roomID, requesterID string) (rematch.Result, error)
	Withdraw(roomID, connID string) bool
	Forget(roomID string)
}

type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// Sink receives state to persist. store.Writer implements it without blocking.
type Sink interface {
	SaveRoom(snap room.Snapshot)
	DeleteRoom(roomID string)
	RecordGame(rec store.GameRecord)
}

type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	// AllowedOrigins lists accepted Origin headers; "*" accepts any.
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     256,
		AllowedOrigins: []string{"*"},
	}
}

type Gateway struct {
	rooms    Rooms
	rematch  Rematcher
	verifier Verifier
	sink     Sink
	logger   zerolog.Logger
	opts     Options
	upgrader websocket.Upgrader

	clients *utils.ShardedMap[*Client]
	// roomSeq orders mutation and broadcast per room, so every member sees
	// a room's events in the order the registry applied them.
	roomSeq *utils.ShardedMap[*sync.Mutex]
}

func NewGateway(rooms Rooms, rm Rematcher, verifier Verifier, sink Sink, opts Options, logger zerolog.Logger) *Gateway {
	def := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if sink == nil {
		sink = nopSink{}
	}

	gw := &Gateway{
		rooms:    rooms,
		rematch:  rm,
		verifier: verifier,
		sink:     sink,
		logger:   logger,
		opts:     opts,
		clients:  utils.NewShardedMap[*Client](utils.DefaultShardCount),
		roomSeq:  utils.NewShardedMap[*sync.Mutex](utils.DefaultShardCount),
	}
	gw.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     gw.checkOrigin,
	}
	return gw
}

func (gw *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(gw.opts.AllowedOrigins, "*") || slices.Contains(gw.opts.AllowedOrigins, origin)
}

// HandleWebSocket authenticates the handshake and upgrades the connection.
func (gw *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := gw.verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		gw.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket handshake rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := gw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.logger.Error().Err(err).Str("userID", identity.UserID).Msg("WebSocket upgrade error")
		return
	}

	c := newClient(gw, conn, identity)
	gw.clients.Set(c.id, c)

	gw.logger.Info().
		Str("connID", c.id).
		Str("userID", identity.UserID).
		Str("username", identity.Username).
		Msg("WebSocket connection established")

	go c.writePump()
	go c.readPump()
}

// disconnect runs once per client when its read pump ends. Every room the
// connection belonged to sees it leave, which forfeits any active game.
func (gw *Gateway) disconnect(c *Client) {
	c.close()
	for _, roomID := range c.roomIDs() {
		if err := gw.leave(c, roomID); err != nil && !room.IsClientError(err) {
			gw.logger.Error().Err(err).Str("roomID", roomID).Str("connID", c.id).Msg("Leave on disconnect failed")
		}
	}
	gw.clients.DeleteIf(c.id, func(v *Client) bool { return v == c })

	gw.logger.Info().Str("connID", c.id).Str("userID", c.identity.UserID).Msg("WebSocket connection closed")
}

// withRoom runs fn under the room's ordering lock. The lock is dropped once
// the room is gone.
func (gw *Gateway) withRoom(roomID string, fn func() error) error {
	mu := gw.roomSeq.GetOrCreate(roomID, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	defer mu.Unlock()

	err := fn()
	if _, getErr := gw.rooms.Get(roomID); errors.Is(getErr, room.ErrRoomNotFound) {
		gw.roomSeq.DeleteIf(roomID, func(v *sync.Mutex) bool { return v == mu })
	}
	return err
}

// broadcast queues frame for each connection id in audience.
func (gw *Gateway) broadcast(audience []string, frame []byte) {
	for _, id := range audience {
		if c, ok := gw.clients.Get(id); ok {
			c.enqueue(frame)
		}
	}
}

// userIDs maps connection ids to user ids for the connections still here.
func (gw *Gateway) userIDs(connIDs []string) map[string]string {
	out := make(map[string]string, len(connIDs))
	for _, id := range connIDs {
		if c, ok := gw.clients.Get(id); ok {
			out[id] = c.identity.UserID
		}
	}
	return out
}

type Stats struct {
	Connections int `json:"connections"`
}

func (gw *Gateway) Stats() Stats {
	return Stats{Connections: gw.clients.Len()}
}

// Close drops every connection. Their read pumps then run the usual leave path.
func (gw *Gateway) Close() {
	gw.clients.Range(func(_ string, c *Client) bool {
		_ = c.conn.Close()
		return true
	})
}

type nopSink struct{}

func (nopSink) SaveRoom(room.Snapshot)      {}
func (nopSink) DeleteRoom(string)           {}
func (nopSink) RecordGame(store.GameRecord) {}
