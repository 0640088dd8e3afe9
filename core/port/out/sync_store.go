package out

import (
	"context"
	"slices"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"

	"github.com/google/uuid"
)

// =============================================================================
// Local Store
// =============================================================================

// Predicate filters records. ID and States are pushed down to the store;
// Where runs in memory on whatever the store returns.
type Predicate struct {
	ID     uuid.UUID // uuid.Nil matches any
	States []domain.SyncState
	Where  func(domain.SyncableRecord) bool
}

// Matches applies the full predicate to rec.
func (p Predicate) Matches(rec domain.SyncableRecord) bool {
	if p.ID != uuid.Nil && rec.GetID() != p.ID {
		return false
	}
	if len(p.States) > 0 && !slices.Contains(p.States, rec.Sync().SyncState) {
		return false
	}
	if p.Where != nil && !p.Where(rec) {
		return false
	}
	return true
}

// ByID matches a single record.
func ByID(id uuid.UUID) Predicate { return Predicate{ID: id} }

// ByStates matches records in any of the given sync states.
func ByStates(states ...domain.SyncState) Predicate { return Predicate{States: states} }

// Dirty matches records with local changes still to upload.
func Dirty() Predicate { return ByStates(domain.SyncStatePending, domain.SyncStateFailed) }

// LocalStore is the on-device persistence context. Records returned by
// Fetch are live: mutations become durable on the next Save.
type LocalStore interface {
	Insert(ctx context.Context, rec domain.SyncableRecord) error
	Save(ctx context.Context) error
	Fetch(ctx context.Context, kind domain.EntityKind, pred Predicate) ([]domain.SyncableRecord, error)
	// FetchByID returns nil, nil when the record does not exist.
	FetchByID(ctx context.Context, kind domain.EntityKind, id uuid.UUID) (domain.SyncableRecord, error)
	Delete(ctx context.Context, rec domain.SyncableRecord) error
	FetchCount(ctx context.Context, kind domain.EntityKind, pred Predicate) (int, error)
}

// SyncMetadataRepository persists the incremental download watermark.
type SyncMetadataRepository interface {
	LastSyncTime(ctx context.Context) (*time.Time, error)
	SetLastSyncTime(ctx context.Context, t time.Time) error
	ResetLastSyncTime(ctx context.Context) error
}
