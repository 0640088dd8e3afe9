package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Sync State - per-record lifecycle
// =============================================================================

type SyncState string

const (
	SyncStatePending SyncState = "pending" // local edits not yet acknowledged by the server
	SyncStateSynced  SyncState = "synced"
	SyncStateFailed  SyncState = "failed"
)

// ConflictStrategy is carried on every record for callers that want to
// override the default reconciliation. The engine itself only uses the
// local-authoritative rule.
type ConflictStrategy string

const (
	ConflictLastWriteWins ConflictStrategy = "last_write_wins"
	ConflictServerWins    ConflictStrategy = "server_wins"
	ConflictLocalWins     ConflictStrategy = "local_wins"
)

// SyncMetadata is embedded in every syncable record.
//
// Invariant: SyncState == synced implies LastSyncError == nil and RetryCount == 0.
type SyncMetadata struct {
	SyncState        SyncState        `json:"sync_state"`
	SyncedAt         *time.Time       `json:"synced_at,omitempty"`
	LastSyncError    *string          `json:"last_sync_error,omitempty"`
	RetryCount       int              `json:"retry_count"`
	ConflictStrategy ConflictStrategy `json:"conflict_strategy,omitempty"`

	// FailureFatal marks a failure that automatic retry must leave alone.
	FailureFatal bool `json:"failure_fatal,omitempty"`
}

// NewPendingMetadata returns metadata for a record created locally.
func NewPendingMetadata() SyncMetadata {
	return SyncMetadata{SyncState: SyncStatePending, ConflictStrategy: ConflictLastWriteWins}
}

// Sync exposes the metadata through the SyncableRecord interface once embedded.
func (m *SyncMetadata) Sync() *SyncMetadata { return m }

func (m *SyncMetadata) MarkPending() {
	m.SyncState = SyncStatePending
}

func (m *SyncMetadata) MarkSynced(now time.Time) {
	m.SyncState = SyncStateSynced
	m.SyncedAt = &now
	m.LastSyncError = nil
	m.RetryCount = 0
	m.FailureFatal = false
}

func (m *SyncMetadata) MarkFailed(message string) {
	m.SyncState = SyncStateFailed
	m.LastSyncError = &message
}

// IsDirty reports whether the record still has changes to upload.
func (m *SyncMetadata) IsDirty() bool {
	return m.SyncState == SyncStatePending || m.SyncState == SyncStateFailed
}

// SyncableRecord is implemented by every locally persisted entity.
type SyncableRecord interface {
	GetID() uuid.UUID
	Kind() EntityKind
	Sync() *SyncMetadata
	MarkSynced(now time.Time)
	MarkFailed(message string)
}
