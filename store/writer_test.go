package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameroncuttingedge/tictactoe-arena/room"
	"github.com/cameroncuttingedge/tictactoe-arena/store"
)

// gate blocks SaveRoom until released so the queue can be filled.
type gate struct {
	recorder
	started chan struct{}
	release chan struct{}
}

func (g *gate) SaveRoom(ctx context.Context, snap room.Snapshot) error {
	g.started <- struct{}{}
	<-g.release
	return g.recorder.SaveRoom(ctx, snap)
}

func TestWriter_PreservesOrder(t *testing.T) {
	rec := &recorder{}
	w := store.NewWriter(rec, 16, zerolog.Nop())

	w.SaveRoom(room.Snapshot{ID: "r1"})
	w.RecordGame(store.GameRecord{RoomID: "r1"})
	w.SaveRoom(room.Snapshot{ID: "r2"})
	w.DeleteRoom("r1")

	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, []string{"save:r1", "game:r1", "save:r2", "delete:r1"}, rec.Calls())

	st := w.Stats()
	assert.Equal(t, uint64(4), st.Written)
	assert.Zero(t, st.Dropped)
	assert.Zero(t, st.Failed)
}

func TestWriter_DropsWhenFull(t *testing.T) {
	g := &gate{started: make(chan struct{}, 1), release: make(chan struct{})}
	w := store.NewWriter(g, 1, zerolog.Nop())

	w.SaveRoom(room.Snapshot{ID: "busy"})
	<-g.started // worker is now stuck on the first write

	w.DeleteRoom("queued")
	w.DeleteRoom("dropped")

	assert.Equal(t, uint64(1), w.Stats().Dropped)

	close(g.release)
	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, []string{"save:busy", "delete:queued"}, g.Calls())
}

func TestWriter_CountsFailures(t *testing.T) {
	rec := &recorder{err: errors.New("boom")}
	w := store.NewWriter(rec, 4, zerolog.Nop())

	w.DeleteRoom("r1")
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, uint64(1), w.Stats().Failed)
	assert.Zero(t, w.Stats().Written)
}

func TestWriter_CloseIsIdempotentAndRejectsLateWrites(t *testing.T) {
	rec := &recorder{}
	w := store.NewWriter(rec, 4, zerolog.Nop())

	require.NoError(t, w.Close(context.Background()))
	require.NoError(t, w.Close(context.Background()))

	w.SaveRoom(room.Snapshot{ID: "late"})
	assert.Empty(t, rec.Calls())
	assert.Equal(t, uint64(1), w.Stats().Dropped)
}

func TestWriter_CloseHonoursContext(t *testing.T) {
	g := &gate{started: make(chan struct{}, 1), release: make(chan struct{})}
	w := store.NewWriter(g, 1, zerolog.Nop())
	defer close(g.release)

	w.SaveRoom(room.Snapshot{ID: "stuck"})
	<-g.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
