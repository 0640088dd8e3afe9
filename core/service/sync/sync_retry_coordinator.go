package syncsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/resilience"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// RetryCoordinator - per-record retry with exponential backoff
// =============================================================================

// SyncFunc re-runs synchronisation after a record has been re-armed.
type SyncFunc func(ctx context.Context)

type RetryCoordinator struct {
	mode       domain.Mode
	maxRetries int
	delay      func(attempt int) time.Duration
	log        zerolog.Logger
}

func NewRetryCoordinator(mode domain.Mode, log zerolog.Logger) *RetryCoordinator {
	return &RetryCoordinator{
		mode:       mode,
		maxRetries: resilience.MaxRetries,
		delay:      resilience.Delay,
		log:        log.With().Str("component", "retry_coordinator").Logger(),
	}
}

// ArmedRetry is a record that has been re-armed for upload and still owes
// its backoff before the follow-up sync.
type ArmedRetry struct {
	Kind    domain.EntityKind
	ID      uuid.UUID
	Attempt int
}

// arm resets rec to pending and bumps its retry count. It reports false,
// leaving rec untouched, when the retry budget is spent.
func (c *RetryCoordinator) arm(rec domain.SyncableRecord) (ArmedRetry, bool) {
	meta := rec.Sync()
	if meta.RetryCount >= c.maxRetries {
		c.log.Debug().
			Str("kind", string(rec.Kind())).
			Str("id", rec.GetID().String()).
			Int("retry_count", meta.RetryCount).
			Msg("retry budget exhausted")
		return ArmedRetry{}, false
	}

	armed := ArmedRetry{Kind: rec.Kind(), ID: rec.GetID(), Attempt: meta.RetryCount}
	meta.RetryCount++
	meta.MarkPending()
	meta.LastSyncError = nil
	meta.FailureFatal = false
	return armed, true
}

// backoff waits out the delay for attempt. It returns false when ctx ends
// first. Non-live modes never wait.
func (c *RetryCoordinator) backoff(ctx context.Context, attempt int) bool {
	if !c.mode.IsLive() {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(c.delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RetryEntity re-arms rec for upload and invokes syncFn once after the
// backoff for its current retry count. It returns false, leaving rec
// untouched, when the retry budget is spent. A context cancelled during the
// backoff also returns false; rec then stays pending for the next cycle.
func (c *RetryCoordinator) RetryEntity(ctx context.Context, rec domain.SyncableRecord, syncFn SyncFunc) bool {
	armed, ok := c.arm(rec)
	if !ok {
		return false
	}
	return c.RunBackoffs(ctx, []ArmedRetry{armed}, syncFn) == 1
}

// RunBackoffs waits out each armed record's backoff in turn and calls syncFn
// after each one. It touches no records, so callers run it outside the
// cycle lock. It returns how many backoffs completed.
func (c *RetryCoordinator) RunBackoffs(ctx context.Context, armed []ArmedRetry, syncFn SyncFunc) int {
	done := 0
	for _, a := range armed {
		if !c.backoff(ctx, a.Attempt) {
			break
		}
		c.log.Info().
			Str("kind", string(a.Kind)).
			Str("id", a.ID.String()).
			Int("retry_count", a.Attempt+1).
			Msg("retrying record")
		syncFn(ctx)
		done++
	}
	return done
}

// RetryFailedEntities retries every failed record of kind, including fatal
// failures. This is the user-triggered path.
func (c *RetryCoordinator) RetryFailedEntities(ctx context.Context, store out.LocalStore, kind domain.EntityKind, syncFn SyncFunc) (int, error) {
	armed, err := c.ArmFailed(ctx, store, kind, true)
	if err != nil {
		return 0, err
	}
	return c.RunBackoffs(ctx, armed, syncFn), nil
}

// RetryRetryableEntities skips records whose last failure was fatal. The
// periodic trigger uses it so permission and data errors wait for the user.
func (c *RetryCoordinator) RetryRetryableEntities(ctx context.Context, store out.LocalStore, kind domain.EntityKind, syncFn SyncFunc) (int, error) {
	armed, err := c.ArmFailed(ctx, store, kind, false)
	if err != nil {
		return 0, err
	}
	return c.RunBackoffs(ctx, armed, syncFn), nil
}

// ArmFailed re-arms the failed records of kind and saves them. It never
// sleeps. includeFatal also re-arms permission and data failures.
func (c *RetryCoordinator) ArmFailed(ctx context.Context, store out.LocalStore, kind domain.EntityKind, includeFatal bool) ([]ArmedRetry, error) {
	var where func(domain.SyncableRecord) bool
	if !includeFatal {
		where = func(rec domain.SyncableRecord) bool { return !rec.Sync().FailureFatal }
	}
	failed, err := store.Fetch(ctx, kind, out.Predicate{
		States: []domain.SyncState{domain.SyncStateFailed},
		Where:  where,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch failed %s records: %w", kind, err)
	}

	var armed []ArmedRetry
	for _, rec := range failed {
		if a, ok := c.arm(rec); ok {
			armed = append(armed, a)
		}
	}

	if len(armed) > 0 {
		if err := store.Save(ctx); err != nil {
			return armed, fmt.Errorf("save retried %s records: %w", kind, err)
		}
	}
	return armed, nil
}
