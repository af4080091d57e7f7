package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cameroncuttingedge/tictactoe-arena/room"
)

const defaultWriteTimeout = 5 * time.Second

type job struct {
	kind   string
	roomID string
	apply  func(ctx context.Context, m Mirror) error
}

// Writer applies mirror writes on a single background goroutine so that the
// order of writes for a room matches the order they were queued. Enqueueing
// never blocks: when the queue is full the write is dropped and logged.
type Writer struct {
	mirror  Mirror
	logger  zerolog.Logger
	timeout time.Duration

	queue chan job
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewWriter(mirror Mirror, queueSize int, logger zerolog.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 1
	}
	w := &Writer{
		mirror:  mirror,
		logger:  logger,
		timeout: defaultWriteTimeout,
		queue:   make(chan job, queueSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) SaveRoom(snap room.Snapshot) {
	w.enqueue(job{kind: "save-room", roomID: snap.ID, apply: func(ctx context.Context, m Mirror) error {
		return m.SaveRoom(ctx, snap)
	}})
}

func (w *Writer) DeleteRoom(roomID string) {
	w.enqueue(job{kind: "delete-room", roomID: roomID, apply: func(ctx context.Context, m Mirror) error {
		return m.DeleteRoom(ctx, roomID)
	}})
}

func (w *Writer) RecordGame(rec GameRecord) {
	w.enqueue(job{kind: "record-game", roomID: rec.RoomID, apply: func(ctx context.Context, m Mirror) error {
		return m.RecordGame(ctx, rec)
	}})
}

func (w *Writer) enqueue(j job) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.queue <- j:
	default:
		w.dropped.Add(1)
		w.logger.Warn().Str("roomID", j.roomID).Str("op", j.kind).Msg("Store queue full, dropping write")
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for j := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := j.apply(ctx, w.mirror)
		cancel()
		if err != nil {
			w.failed.Add(1)
			w.logger.Error().Err(err).Str("roomID", j.roomID).Str("op", j.kind).Msg("Store write failed")
			continue
		}
		w.written.Add(1)
	}
}

// Close stops accepting writes and waits for the queue to drain or ctx to end.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("store writer did not drain"), ctx.Err())
	}
}

type WriterStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
	Queued  int    `json:"queued"`
}

func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
		Queued:  len(w.queue),
	}
}
