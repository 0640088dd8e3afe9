// Package syncsvc coordinates two-way synchronisation between the local
// store and the remote backend.
package syncsvc

import (
	"sync"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"

	"github.com/google/uuid"
)

// =============================================================================
// ConflictResolver
// =============================================================================
//
// Tracks which records are currently being uploaded so that a download or
// realtime echo arriving mid-flight does not overwrite local edits.

type ConflictResolver struct {
	mu       sync.RWMutex
	inFlight map[domain.EntityKind]map[uuid.UUID]struct{}
}

func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{inFlight: make(map[domain.EntityKind]map[uuid.UUID]struct{})}
}

// MarkInFlight replaces the in-flight set for kind.
func (r *ConflictResolver) MarkInFlight(kind domain.EntityKind, ids []uuid.UUID) {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	r.mu.Lock()
	r.inFlight[kind] = set
	r.mu.Unlock()
}

func (r *ConflictResolver) IsInFlight(kind domain.EntityKind, id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.inFlight[kind][id]
	return ok
}

func (r *ConflictResolver) ClearInFlight(kind domain.EntityKind) {
	r.mu.Lock()
	delete(r.inFlight, kind)
	r.mu.Unlock()
}

func (r *ConflictResolver) ClearAllInFlight() {
	r.mu.Lock()
	r.inFlight = make(map[domain.EntityKind]map[uuid.UUID]struct{})
	r.mu.Unlock()
}

// InFlightCount is reported in status snapshots.
func (r *ConflictResolver) InFlightCount(kind domain.EntityKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.inFlight[kind])
}

// IsLocalAuthoritative reports whether local state must win over a remote
// payload: the record has unsent edits or is being uploaded right now.
func IsLocalAuthoritative(rec domain.SyncableRecord, inFlight bool) bool {
	return rec.Sync().IsDirty() || inFlight
}

// IsLocalAuthoritative combines the record state with this resolver's view.
func (r *ConflictResolver) IsLocalAuthoritative(rec domain.SyncableRecord) bool {
	return IsLocalAuthoritative(rec, r.IsInFlight(rec.Kind(), rec.GetID()))
}

// Typed helpers, one group per entity kind.

func (r *ConflictResolver) MarkTasksInFlight(ids []uuid.UUID) {
	r.MarkInFlight(domain.KindTask, ids)
}

func (r *ConflictResolver) IsTaskInFlight(id uuid.UUID) bool {
	return r.IsInFlight(domain.KindTask, id)
}

func (r *ConflictResolver) ClearTasksInFlight() {
	r.ClearInFlight(domain.KindTask)
}

func (r *ConflictResolver) MarkActivitiesInFlight(ids []uuid.UUID) {
	r.MarkInFlight(domain.KindActivity, ids)
}

func (r *ConflictResolver) IsActivityInFlight(id uuid.UUID) bool {
	return r.IsInFlight(domain.KindActivity, id)
}

func (r *ConflictResolver) ClearActivitiesInFlight() {
	r.ClearInFlight(domain.KindActivity)
}

func (r *ConflictResolver) MarkListingsInFlight(ids []uuid.UUID) {
	r.MarkInFlight(domain.KindListing, ids)
}

func (r *ConflictResolver) IsListingInFlight(id uuid.UUID) bool {
	return r.IsInFlight(domain.KindListing, id)
}

func (r *ConflictResolver) ClearListingsInFlight() {
	r.ClearInFlight(domain.KindListing)
}

func (r *ConflictResolver) MarkNotesInFlight(ids []uuid.UUID) {
	r.MarkInFlight(domain.KindNote, ids)
}

func (r *ConflictResolver) IsNoteInFlight(id uuid.UUID) bool {
	return r.IsInFlight(domain.KindNote, id)
}

func (r *ConflictResolver) ClearNotesInFlight() {
	r.ClearInFlight(domain.KindNote)
}

func (r *ConflictResolver) MarkUsersInFlight(ids []uuid.UUID) {
	r.MarkInFlight(domain.KindUser, ids)
}

func (r *ConflictResolver) IsUserInFlight(id uuid.UUID) bool {
	return r.IsInFlight(domain.KindUser, id)
}

func (r *ConflictResolver) ClearUsersInFlight() {
	r.ClearInFlight(domain.KindUser)
}

func (r *ConflictResolver) MarkTaskAssigneesInFlight(ids []uuid.UUID) {
	r.MarkInFlight(domain.KindTaskAssignee, ids)
}

func (r *ConflictResolver) IsTaskAssigneeInFlight(id uuid.UUID) bool {
	return r.IsInFlight(domain.KindTaskAssignee, id)
}

func (r *ConflictResolver) ClearTaskAssigneesInFlight() {
	r.ClearInFlight(domain.KindTaskAssignee)
}

func (r *ConflictResolver) MarkActivityAssigneesInFlight(ids []uuid.UUID) {
	r.MarkInFlight(domain.KindActivityAssignee, ids)
}

func (r *ConflictResolver) IsActivityAssigneeInFlight(id uuid.UUID) bool {
	return r.IsInFlight(domain.KindActivityAssignee, id)
}

func (r *ConflictResolver) ClearActivityAssigneesInFlight() {
	r.ClearInFlight(domain.KindActivityAssignee)
}
