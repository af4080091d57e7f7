package websocket

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cameroncuttingedge/tictactoe-arena/auth"
)

// Client is one authenticated socket. Its id is the participant id used in
// every room it joins.
type Client struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	gw       *Gateway
	send     chan []byte

	mu     sync.Mutex
	closed bool
	rooms  map[string]struct{}
}

func newClient(gw *Gateway, conn *websocket.Conn, identity auth.Identity) *Client {
	return &Client{
		id:       identity.ConnectionID,
		identity: identity,
		conn:     conn,
		gw:       gw,
		send:     make(chan []byte, gw.opts.SendBuffer),
		rooms:    make(map[string]struct{}),
	}
}

// enqueue queues a frame without blocking. A client too slow to keep up with
// its buffer is disconnected rather than allowed to stall the room.
func (c *Client) enqueue(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.gw.logger.Warn().Str("connID", c.id).Msg("Send buffer full, dropping connection")
		c.closed = true
		close(c.send)
	}
}

// close stops further sends; the write pump then closes the socket.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) track(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) untrack(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

func (c *Client) roomIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.rooms))
}

func (c *Client) readPump() {
	defer func() {
		c.gw.disconnect(c)
		_ = c.conn.Close()
	}()

	opts := c.gw.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.gw.logger.Warn().Err(err).Str("connID", c.id).Msg("WebSocket closed unexpectedly")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.gw.handle(c, message)
	}
}

func (c *Client) writePump() {
	opts := c.gw.opts
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.gw.logger.Debug().Err(err).Str("connID", c.id).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
