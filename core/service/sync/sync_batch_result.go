package syncsvc

import (
	"fmt"
	"strings"

	"github.com/ArchieOS-org/Dispatch-sub000/pkg/syncerr"
)

// =============================================================================
// BatchSyncResult
// =============================================================================

// FailedItem pairs an entity with the reason its upload failed.
type FailedItem[T any] struct {
	Entity T
	Err    *syncerr.SyncError
}

// BatchSyncResult is the immutable outcome of one batch upload.
type BatchSyncResult[T any] struct {
	Succeeded []T
	Failed    []FailedItem[T]
}

func SuccessResult[T any](items []T) BatchSyncResult[T] {
	return BatchSyncResult[T]{Succeeded: append([]T(nil), items...)}
}

func SingleFailure[T any](item T, err *syncerr.SyncError) BatchSyncResult[T] {
	return BatchSyncResult[T]{Failed: []FailedItem[T]{{Entity: item, Err: err}}}
}

func EmptyResult[T any]() BatchSyncResult[T] {
	return BatchSyncResult[T]{}
}

func (r BatchSyncResult[T]) SuccessCount() int { return len(r.Succeeded) }
func (r BatchSyncResult[T]) FailureCount() int { return len(r.Failed) }
func (r BatchSyncResult[T]) TotalCount() int   { return len(r.Succeeded) + len(r.Failed) }
func (r BatchSyncResult[T]) IsComplete() bool  { return len(r.Failed) == 0 }
func (r BatchSyncResult[T]) HasFailures() bool { return len(r.Failed) > 0 }

func (r BatchSyncResult[T]) RetryableFailures() []FailedItem[T] {
	return r.partition(true)
}

func (r BatchSyncResult[T]) FatalFailures() []FailedItem[T] {
	return r.partition(false)
}

func (r BatchSyncResult[T]) partition(retryable bool) []FailedItem[T] {
	var out []FailedItem[T]
	for _, f := range r.Failed {
		if f.Err.IsRetryable() == retryable {
			out = append(out, f)
		}
	}
	return out
}

// Summary is a one-line human readable outcome.
func (r BatchSyncResult[T]) Summary() string {
	switch {
	case r.FailureCount() == 0:
		return fmt.Sprintf("All %d synced.", r.SuccessCount())
	case r.SuccessCount() == 0:
		return fmt.Sprintf("All %d failed.", r.FailureCount())
	default:
		return fmt.Sprintf("%d synced, %d failed.", r.SuccessCount(), r.FailureCount())
	}
}

// ErrorSummary groups identical messages in first-seen order.
func (r BatchSyncResult[T]) ErrorSummary() string {
	if len(r.Failed) == 0 {
		return "No errors."
	}

	counts := make(map[string]int)
	var order []string
	for _, f := range r.Failed {
		msg := f.Err.UserFacingMessage()
		if counts[msg] == 0 {
			order = append(order, msg)
		}
		counts[msg]++
	}

	parts := make([]string, 0, len(order))
	for _, msg := range order {
		if n := counts[msg]; n > 1 {
			parts = append(parts, fmt.Sprintf("%s (%dx)", msg, n))
		} else {
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, "; ")
}

// BatchBuilder accumulates results during an upload. Build may be called
// any number of times.
type BatchBuilder[T any] struct {
	succeeded []T
	failed    []FailedItem[T]
}

func NewBatchBuilder[T any]() *BatchBuilder[T] {
	return &BatchBuilder[T]{}
}

func (b *BatchBuilder[T]) AddSuccess(item T) *BatchBuilder[T] {
	b.succeeded = append(b.succeeded, item)
	return b
}

func (b *BatchBuilder[T]) AddSuccesses(items []T) *BatchBuilder[T] {
	b.succeeded = append(b.succeeded, items...)
	return b
}

func (b *BatchBuilder[T]) AddFailure(item T, err *syncerr.SyncError) *BatchBuilder[T] {
	b.failed = append(b.failed, FailedItem[T]{Entity: item, Err: err})
	return b
}

func (b *BatchBuilder[T]) Build() BatchSyncResult[T] {
	return BatchSyncResult[T]{
		Succeeded: append([]T(nil), b.succeeded...),
		Failed:    append([]FailedItem[T](nil), b.failed...),
	}
}
