package syncsvc

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// =============================================================================
// SyncQueue - coalescing scheduler
// =============================================================================
//
// Any number of RequestSync calls collapse into at most one running cycle
// plus one queued follow-up. A request that arrives while a cycle runs
// causes exactly one more cycle.

var ErrQueueClosed = errors.New("sync queue closed")

// CycleFunc runs one sync cycle.
type CycleFunc func(ctx context.Context)

type SyncQueue struct {
	mu      sync.Mutex
	run     CycleFunc
	pending bool
	active  bool
	closed  bool
	runID   uint64
	loop    *taskHandle
	idle    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

func NewSyncQueue(run CycleFunc, log zerolog.Logger) *SyncQueue {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &SyncQueue{
		run:    run,
		idle:   idle,
		ctx:    ctx,
		cancel: cancel,
		log:    log.With().Str("component", "sync_queue").Logger(),
	}
}

// RequestSync marks a cycle as wanted and wakes the loop if idle. It never
// blocks. Requests after Shutdown are ignored.
func (q *SyncQueue) RequestSync() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.pending = true
	if q.active {
		return
	}
	q.active = true
	q.idle = make(chan struct{})
	q.loop = startTask(q.ctx, nil, q.drain)
}

func (q *SyncQueue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if !q.pending || ctx.Err() != nil {
			q.active = false
			q.loop = nil
			close(q.idle)
			q.mu.Unlock()
			return
		}
		q.pending = false
		q.runID++
		id := q.runID
		q.mu.Unlock()

		q.log.Debug().Uint64("run_id", id).Msg("sync cycle starting")
		q.run(ctx)
	}
}

// IsLoopActive reports whether the loop is scheduled or running.
func (q *SyncQueue) IsLoopActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// RunID is the number of cycles started so far.
func (q *SyncQueue) RunID() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.runID
}

// WaitIdle blocks until no cycle is running or queued.
func (q *SyncQueue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the running cycle, waits for the loop to exit and drops
// its handle. It is safe to call more than once.
func (q *SyncQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.pending = false
	loop := q.loop
	q.loop = nil
	q.mu.Unlock()

	q.cancel()
	if loop == nil {
		return nil
	}
	if err := loop.Wait(ctx); err != nil {
		return err
	}
	q.log.Debug().Msg("sync queue stopped")
	return nil
}
