// Package local provides on-device persistence for syncable records.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"

	"github.com/google/uuid"
)

// =============================================================================
// MemoryStore - out.LocalStore for tests and preview mode
// =============================================================================

// MemoryStore keeps live record pointers in maps. Save is a no-op because
// every mutation is already visible.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[domain.EntityKind]map[uuid.UUID]domain.SyncableRecord
	order   map[domain.EntityKind][]uuid.UUID
	saves   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[domain.EntityKind]map[uuid.UUID]domain.SyncableRecord),
		order:   make(map[domain.EntityKind][]uuid.UUID),
	}
}

func (s *MemoryStore) Insert(_ context.Context, rec domain.SyncableRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := rec.Kind()
	if s.records[kind] == nil {
		s.records[kind] = make(map[uuid.UUID]domain.SyncableRecord)
	}
	if _, exists := s.records[kind][rec.GetID()]; !exists {
		s.order[kind] = append(s.order[kind], rec.GetID())
	}
	s.records[kind][rec.GetID()] = rec
	return nil
}

func (s *MemoryStore) Save(_ context.Context) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return nil
}

// Saves reports how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Fetch returns matches in insertion order.
func (s *MemoryStore) Fetch(_ context.Context, kind domain.EntityKind, pred out.Predicate) ([]domain.SyncableRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.SyncableRecord
	for _, id := range s.order[kind] {
		rec, ok := s.records[kind][id]
		if !ok {
			continue
		}
		if pred.Matches(rec) {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (s *MemoryStore) FetchByID(_ context.Context, kind domain.EntityKind, id uuid.UUID) (domain.SyncableRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[kind][id], nil
}

func (s *MemoryStore) Delete(_ context.Context, rec domain.SyncableRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := rec.Kind()
	if _, ok := s.records[kind][rec.GetID()]; !ok {
		return nil
	}
	delete(s.records[kind], rec.GetID())
	ids := s.order[kind]
	for i, id := range ids {
		if id == rec.GetID() {
			s.order[kind] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) FetchCount(ctx context.Context, kind domain.EntityKind, pred out.Predicate) (int, error) {
	recs, err := s.Fetch(ctx, kind, pred)
	return len(recs), err
}

// =============================================================================
// MemoryMetadata - out.SyncMetadataRepository without persistence
// =============================================================================

type MemoryMetadata struct {
	mu       sync.Mutex
	lastSync *time.Time
}

func NewMemoryMetadata() *MemoryMetadata {
	return &MemoryMetadata{}
}

func (m *MemoryMetadata) LastSyncTime(context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSync == nil {
		return nil, nil
	}
	t := *m.lastSync
	return &t, nil
}

func (m *MemoryMetadata) SetLastSyncTime(_ context.Context, t time.Time) error {
	m.mu.Lock()
	m.lastSync = &t
	m.mu.Unlock()
	return nil
}

func (m *MemoryMetadata) ResetLastSyncTime(context.Context) error {
	m.mu.Lock()
	m.lastSync = nil
	m.mu.Unlock()
	return nil
}
