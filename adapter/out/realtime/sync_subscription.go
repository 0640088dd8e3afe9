// Package realtime provides push subscribers that feed remote change
// events into the sync engine.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"

	"github.com/goccy/go-json"
)

var ErrNoTables = errors.New("realtime: no tables to subscribe")

// =============================================================================
// subscription - shared lifecycle for every transport
// =============================================================================

// subscription runs one receive loop. The loop reports its terminal error
// once on errs; Close cancels it, waits for it and releases the transport.
type subscription struct {
	cancel    context.CancelFunc
	done      chan struct{}
	errs      chan error
	closeOnce sync.Once
	release   func() error
	closeErr  error
}

func startSubscription(parent context.Context, loop func(ctx context.Context) error, release func() error) *subscription {
	ctx, cancel := context.WithCancel(parent)
	s := &subscription{
		cancel:  cancel,
		done:    make(chan struct{}),
		errs:    make(chan error, 1),
		release: release,
	}

	go func() {
		defer close(s.done)
		defer close(s.errs)
		err := loop(ctx)
		if err != nil && ctx.Err() == nil {
			s.errs <- err
		}
	}()
	return s
}

func (s *subscription) Errors() <-chan error { return s.errs }

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		if s.release != nil {
			s.closeErr = s.release()
		}
	})
	return s.closeErr
}

// =============================================================================
// Event decoding
// =============================================================================

// decodeEvent parses a change frame. The transport may already know the
// table, in which case it fills a missing Table field.
func decodeEvent(data []byte, table string) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode change event: %w", err)
	}
	if ev.Table == "" {
		ev.Table = table
	}
	if ev.Table == "" || ev.Type == "" {
		return ev, fmt.Errorf("change event missing table or type")
	}
	return ev, nil
}

func validateTables(tables []string) error {
	if len(tables) == 0 {
		return ErrNoTables
	}
	for _, t := range tables {
		if _, ok := domain.KindForTable(t); !ok {
			return fmt.Errorf("realtime: unknown table %q", t)
		}
	}
	return nil
}

func watched(tables []string, table string) bool {
	return slices.Contains(tables, table)
}
