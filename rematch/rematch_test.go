package rematch_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameroncuttingedge/tictactoe-arena/game"
	"github.com/cameroncuttingedge/tictactoe-arena/rematch"
	"github.com/cameroncuttingedge/tictactoe-arena/room"
)

// countingRooms counts resets that reach the registry.
type countingRooms struct {
	*room.Registry
	resets atomic.Int32
}

func (c *countingRooms) ResetForRematch(roomID string) (room.Snapshot, error) {
	c.resets.Add(1)
	return c.Registry.ResetForRematch(roomID)
}

func setup(t *testing.T) (*rematch.Coordinator, *countingRooms, string) {
	t.Helper()
	reg := room.NewRegistry(nil)
	rooms := &countingRooms{Registry: reg}

	snap, err := reg.CreateRoom("arena", false, "p1")
	require.NoError(t, err)
	_, err = reg.JoinRoom(snap.ID, "p2", false, "")
	require.NoError(t, err)

	for _, m := range []struct {
		p        string
		row, col int
	}{{"p1", 0, 0}, {"p2", 1, 0}, {"p1", 0, 1}, {"p2", 1, 1}, {"p1", 0, 2}} {
		_, err := reg.MakeMove(snap.ID, m.p, m.row, m.col)
		require.NoError(t, err)
	}

	return rematch.NewCoordinator(rooms, zerolog.Nop()), rooms, snap.ID
}

func TestRequestRematch_BothPlayersResetOnce(t *testing.T) {
	c, rooms, roomID := setup(t)

	res, err := c.RequestRematch(roomID, "p2")
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.False(t, res.Started)
	assert.Equal(t, []string{"p2"}, res.Consents)
	assert.Equal(t, []string{"p2"}, c.Pending(roomID))
	assert.Equal(t, int32(0), rooms.resets.Load())

	res, err = c.RequestRematch(roomID, "p1")
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.False(t, res.Pending)
	assert.ElementsMatch(t, []string{"p1", "p2"}, res.Consents)
	assert.Equal(t, int32(1), rooms.resets.Load())

	assert.Equal(t, game.Board{}, res.Room.Board)
	assert.Equal(t, "p1", res.Room.CurrentTurn)
	assert.Equal(t, room.StatusActive, res.Room.Status)
	assert.Equal(t, 2, res.Room.Round)
	assert.Empty(t, c.Pending(roomID))
}

func TestRequestRematch_ThirdRequestStartsFreshCycle(t *testing.T) {
	c, rooms, roomID := setup(t)

	_, err := c.RequestRematch(roomID, "p1")
	require.NoError(t, err)
	_, err = c.RequestRematch(roomID, "p2")
	require.NoError(t, err)

	res, err := c.RequestRematch(roomID, "p1")
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Equal(t, int32(1), rooms.resets.Load())
	assert.Equal(t, []string{"p1"}, c.Pending(roomID))
}

func TestRequestRematch_DuplicateIsIdempotent(t *testing.T) {
	c, rooms, roomID := setup(t)

	for i := 0; i < 3; i++ {
		res, err := c.RequestRematch(roomID, "p1")
		require.NoError(t, err)
		assert.True(t, res.Pending)
	}
	assert.Equal(t, []string{"p1"}, c.Pending(roomID))
	assert.Equal(t, int32(0), rooms.resets.Load())
}

func TestRequestRematch_Rejections(t *testing.T) {
	t.Run("spectator", func(t *testing.T) {
		c, rooms, roomID := setup(t)
		_, err := rooms.JoinRoom(roomID, "s1", true, "")
		require.NoError(t, err)

		_, err = c.RequestRematch(roomID, "s1")
		assert.ErrorIs(t, err, room.ErrNotAPlayer)
		assert.Empty(t, c.Pending(roomID))
	})

	t.Run("unknown room", func(t *testing.T) {
		c, _, _ := setup(t)
		_, err := c.RequestRematch("missing", "p1")
		assert.ErrorIs(t, err, room.ErrRoomNotFound)
		assert.Nil(t, c.Pending("missing"))
	})

	t.Run("waiting room", func(t *testing.T) {
		c, rooms, _ := setup(t)
		snap, err := rooms.CreateRoom("lonely", false, "solo")
		require.NoError(t, err)

		_, err = c.RequestRematch(snap.ID, "solo")
		assert.ErrorIs(t, err, room.ErrGameNotStarted)
	})

	t.Run("opponent left", func(t *testing.T) {
		c, rooms, roomID := setup(t)
		_, err := rooms.Leave(roomID, "p2")
		require.NoError(t, err)

		_, err = c.RequestRematch(roomID, "p1")
		assert.ErrorIs(t, err, room.ErrOpponentLeft)
	})
}

func TestWithdraw(t *testing.T) {
	c, rooms, roomID := setup(t)

	_, err := c.RequestRematch(roomID, "p1")
	require.NoError(t, err)

	assert.False(t, c.Withdraw(roomID, "p2"))
	assert.True(t, c.Withdraw(roomID, "p1"))
	assert.Empty(t, c.Pending(roomID))

	// p1's stale consent no longer counts
	res, err := c.RequestRematch(roomID, "p2")
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Equal(t, int32(0), rooms.resets.Load())
}

func TestForget(t *testing.T) {
	c, _, roomID := setup(t)

	_, err := c.RequestRematch(roomID, "p1")
	require.NoError(t, err)

	c.Forget(roomID)
	assert.Nil(t, c.Pending(roomID))
	assert.False(t, c.Withdraw(roomID, "p1"))
}

func TestRequestRematch_ConcurrentPairsResetOncePerCycle(t *testing.T) {
	c, rooms, roomID := setup(t)

	const cycles = 50
	for i := 0; i < cycles; i++ {
		var wg sync.WaitGroup
		var started atomic.Int32
		for _, p := range []string{"p1", "p2"} {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				res, err := c.RequestRematch(roomID, p)
				if assert.NoError(t, err) && res.Started {
					started.Add(1)
				}
			}(p)
		}
		wg.Wait()
		require.Equal(t, int32(1), started.Load(), "cycle %d", i)
	}

	assert.Equal(t, int32(cycles), rooms.resets.Load())
	snap, err := rooms.Get(roomID)
	require.NoError(t, err)
	assert.Equal(t, cycles+1, snap.Round)
}
