package syncsvc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/adapter/out/local"
	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakeRemote is an in-memory RemoteFacade keyed by table and row id.
type fakeRemote struct {
	mu       sync.Mutex
	rows     map[string]map[uuid.UUID]json.RawMessage
	order    map[string][]uuid.UUID
	upserts  int
	batchErr error
	fetchErr error
	rowErr   map[uuid.UUID]error
	onUpsert func(table string, rows []out.Row)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:   make(map[string]map[uuid.UUID]json.RawMessage),
		order:  make(map[string][]uuid.UUID),
		rowErr: make(map[uuid.UUID]error),
	}
}

func (r *fakeRemote) put(table string, id uuid.UUID, dto any) {
	payload, err := json.Marshal(dto)
	if err != nil {
		panic(err)
	}
	r.putRaw(table, id, payload)
}

func (r *fakeRemote) putRaw(table string, id uuid.UUID, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[table] == nil {
		r.rows[table] = make(map[uuid.UUID]json.RawMessage)
	}
	if _, ok := r.rows[table][id]; !ok {
		r.order[table] = append(r.order[table], id)
	}
	r.rows[table][id] = payload
}

func (r *fakeRemote) setBatchErr(err error) {
	r.mu.Lock()
	r.batchErr = err
	r.mu.Unlock()
}

func (r *fakeRemote) setFetchErr(err error) {
	r.mu.Lock()
	r.fetchErr = err
	r.mu.Unlock()
}

func (r *fakeRemote) upsertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}

func (r *fakeRemote) row(table string, id uuid.UUID) (json.RawMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.rows[table][id]
	return raw, ok
}

func (r *fakeRemote) UpsertBatch(_ context.Context, table string, rows []out.Row) ([]out.RowResult, error) {
	if r.onUpsert != nil {
		r.onUpsert(table, rows)
	}

	r.mu.Lock()
	r.upserts++
	batchErr := r.batchErr
	r.mu.Unlock()
	if batchErr != nil {
		return nil, batchErr
	}

	results := make([]out.RowResult, 0, len(rows))
	for _, row := range rows {
		r.mu.Lock()
		err := r.rowErr[row.ID]
		r.mu.Unlock()
		if err == nil {
			r.putRaw(table, row.ID, row.Payload)
		}
		results = append(results, out.RowResult{ID: row.ID, Err: err})
	}
	return results, nil
}

func (r *fakeRemote) DeleteRow(_ context.Context, table string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[table][id]; !ok {
		return errors.New("row not found")
	}
	delete(r.rows[table], id)
	return nil
}

func (r *fakeRemote) FetchChanged(_ context.Context, table string, _ *time.Time) ([]json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	var rows []json.RawMessage
	for _, id := range r.order[table] {
		if raw, ok := r.rows[table][id]; ok {
			rows = append(rows, raw)
		}
	}
	return rows, nil
}

// fakeSubscription lets tests push errors into a live subscription.
type fakeSubscription struct {
	errs      chan error
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errs: make(chan error, 1), closed: make(chan struct{})}
}

func (s *fakeSubscription) Errors() <-chan error { return s.errs }

func (s *fakeSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// fakeSubscriber fails the first failN subscribes, then succeeds.
type fakeSubscriber struct {
	mu      sync.Mutex
	failN   int
	calls   int
	subs    []*fakeSubscription
	onEvent func(domain.ChangeEvent)
}

func (s *fakeSubscriber) Subscribe(_ context.Context, _ []string, onEvent func(domain.ChangeEvent)) (out.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failN {
		return nil, errors.New("subscribe refused")
	}
	sub := newFakeSubscription()
	s.subs = append(s.subs, sub)
	s.onEvent = onEvent
	return sub, nil
}

func (s *fakeSubscriber) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSubscriber) last() *fakeSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}
	return s.subs[len(s.subs)-1]
}

func (s *fakeSubscriber) emit(ev domain.ChangeEvent) {
	s.mu.Lock()
	fn := s.onEvent
	s.mu.Unlock()
	fn(ev)
}

// =============================================================================
// Fixtures
// =============================================================================

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func testDeps(store out.LocalStore, remote out.RemoteFacade) HandlerDeps {
	return HandlerDeps{
		Store:    store,
		Remote:   remote,
		Resolver: NewConflictResolver(),
		Now:      func() time.Time { return fixedNow },
		Log:      zerolog.Nop(),
	}
}

func newStore() *local.MemoryStore { return local.NewMemoryStore() }

func taskDTO(id uuid.UUID, title string) domain.TaskDTO {
	return domain.TaskDTO{
		ID:         id,
		Title:      title,
		Status:     "open",
		Priority:   "high",
		DeclaredBy: uuid.New(),
		CreatedAt:  fixedNow.Add(-time.Hour),
		UpdatedAt:  fixedNow.Add(-time.Hour),
	}
}

func listingDTO(id uuid.UUID) domain.ListingDTO {
	return domain.ListingDTO{
		ID:        id,
		Address:   "12 Harbour St",
		City:      "Toronto",
		Stage:     "live",
		Status:    "active",
		OwnedBy:   uuid.New(),
		CreatedAt: fixedNow.Add(-time.Hour),
		UpdatedAt: fixedNow.Add(-time.Hour),
	}
}

// pendingTask inserts a locally created task awaiting upload.
func pendingTask(store out.LocalStore, title string) *domain.Task {
	t := &domain.Task{
		ID:           uuid.New(),
		Title:        title,
		Status:       domain.TaskStatusOpen,
		Priority:     domain.PriorityMedium,
		CreatedAt:    fixedNow,
		UpdatedAt:    fixedNow,
		SyncMetadata: domain.NewPendingMetadata(),
	}
	if err := store.Insert(context.Background(), t); err != nil {
		panic(err)
	}
	return t
}
