package syncsvc

import (
	"context"
	"sync"
)

// taskHandle owns one background goroutine. Cancel stops it; Wait blocks
// until it has returned.
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startTask runs fn in a goroutine tracked by wg (which may be nil).
func startTask(parent context.Context, wg *sync.WaitGroup, fn func(ctx context.Context)) *taskHandle {
	ctx, cancel := context.WithCancel(parent)
	h := &taskHandle{cancel: cancel, done: make(chan struct{})}
	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer func() {
			cancel()
			close(h.done)
			if wg != nil {
				wg.Done()
			}
		}()
		fn(ctx)
	}()
	return h
}

func (h *taskHandle) Cancel() { h.cancel() }

func (h *taskHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitGroup waits for wg or gives up when ctx ends.
func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
