package syncsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/metrics"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/resilience"

	"github.com/go-pkgz/pool"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// Manager - sync orchestrator
// =============================================================================

var (
	ErrCircuitOpen = resilience.ErrCircuitOpen
	ErrUnknownKind = errors.New("unknown entity kind")
)

// Deps are the external collaborators of a Manager.
type Deps struct {
	Store    out.LocalStore
	Remote   out.RemoteFacade
	Metadata out.SyncMetadataRepository // nil keeps the watermark in memory
	// Subscriber is optional; without it the engine polls only.
	Subscriber out.Subscriber
	// Syncers overrides the default per-kind handlers. Order is upload order.
	Syncers []EntitySyncer
	Metrics *metrics.SyncMetrics
	Log     zerolog.Logger
}

type Options struct {
	Mode                domain.Mode
	Breaker             *resilience.CircuitBreakerConfig
	RealtimeMaxAttempts int
	MaxRetries          int // per-record retry budget; 0 uses resilience.MaxRetries
	DownloadWorkers     int
	Now                 func() time.Time
}

type Manager struct {
	mode     domain.Mode
	store    out.LocalStore
	meta     out.SyncMetadataRepository
	resolver *ConflictResolver
	breaker  *resilience.CircuitBreaker
	retry    *RetryCoordinator
	queue    *SyncQueue
	realtime *ChannelLifecycleManager
	syncers  []EntitySyncer
	byKind   map[domain.EntityKind]EntitySyncer
	metrics  *metrics.SyncMetrics
	workers  int
	now      func() time.Time
	log      zerolog.Logger

	// cycleMu serialises cycles, retry arming, realtime applies and status counts.
	cycleMu sync.Mutex
	syncing atomic.Bool

	statusMu  sync.RWMutex
	lastCycle *CycleReport
	counts    map[domain.EntityKind]KindCounts // last counts taken under cycleMu

	lifeMu sync.Mutex
	closed bool
	tasks  sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(deps Deps, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.DefaultCircuitBreakerConfig("sync")
	}
	if opts.Breaker.Now == nil {
		opts.Breaker.Now = opts.Now
	}
	if opts.DownloadWorkers <= 0 {
		opts.DownloadWorkers = 4
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewSyncMetrics()
	}
	if deps.Metadata == nil {
		deps.Metadata = &memoryWatermark{}
	}

	log := deps.Log.With().Str("component", "sync_manager").Str("mode", string(opts.Mode)).Logger()
	resolver := NewConflictResolver()
	syncers := deps.Syncers
	if len(syncers) == 0 {
		syncers = DefaultSyncers(HandlerDeps{
			Store:    deps.Store,
			Remote:   deps.Remote,
			Resolver: resolver,
			Now:      opts.Now,
			Log:      deps.Log,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		mode:     opts.Mode,
		store:    deps.Store,
		meta:     deps.Metadata,
		resolver: resolver,
		breaker:  resilience.NewCircuitBreaker(opts.Breaker),
		retry:    NewRetryCoordinator(opts.Mode, deps.Log),
		syncers:  syncers,
		byKind:   make(map[domain.EntityKind]EntitySyncer, len(syncers)),
		metrics:  deps.Metrics,
		workers:  opts.DownloadWorkers,
		now:      opts.Now,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, s := range syncers {
		m.byKind[s.Kind()] = s
	}
	if opts.MaxRetries > 0 {
		m.retry.maxRetries = opts.MaxRetries
	}

	m.breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		m.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
	})
	m.queue = NewSyncQueue(func(ctx context.Context) {
		if err := m.runCycle(ctx); err != nil && !errors.Is(err, ErrCircuitOpen) {
			m.log.Warn().Err(err).Msg("sync cycle failed")
		}
	}, deps.Log)

	if deps.Subscriber != nil {
		tables := make([]string, 0, len(syncers))
		for _, s := range syncers {
			tables = append(tables, s.Kind().Table())
		}
		m.realtime = NewChannelLifecycleManager(deps.Subscriber, ChannelConfig{
			Tables:      tables,
			Mode:        opts.Mode,
			MaxAttempts: opts.RealtimeMaxAttempts,
		}, m.handleChange, deps.Log)
		m.realtime.OnStateChange(func(from, to domain.ConnectionState) {
			m.log.Info().Str("from", from.String()).Str("to", to.String()).Msg("connection state changed")
		})
	}
	return m
}

// Start opens the realtime channel and queues an initial cycle. A realtime
// failure is logged; it does not stop the engine.
func (m *Manager) Start(ctx context.Context) error {
	if m.realtime != nil {
		if err := m.realtime.Start(ctx); err != nil {
			m.log.Warn().Err(err).Msg("realtime unavailable, polling only")
		}
	}
	m.RequestSync()
	m.log.Info().Int("kinds", len(m.syncers)).Msg("sync engine started")
	return nil
}

// Shutdown stops the queue, realtime channel and any retry scan, and waits
// for them. No cycle runs after it returns.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lifeMu.Lock()
	m.closed = true
	m.lifeMu.Unlock()
	m.cancel()
	var errs []error
	if err := m.queue.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("queue: %w", err))
	}
	if m.realtime != nil {
		if err := m.realtime.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("realtime: %w", err))
		}
	}
	if err := waitGroup(ctx, &m.tasks); err != nil {
		errs = append(errs, fmt.Errorf("retry tasks: %w", err))
	}
	m.resolver.ClearAllInFlight()
	m.log.Info().Msg("sync engine stopped")
	return errors.Join(errs...)
}

// RequestSync asks for a cycle. Bursts coalesce.
func (m *Manager) RequestSync() { m.queue.RequestSync() }

// SyncNow runs one cycle on the caller's goroutine. It returns
// ErrQueueClosed once Shutdown has begun.
func (m *Manager) SyncNow(ctx context.Context) error {
	m.lifeMu.Lock()
	closed := m.closed
	m.lifeMu.Unlock()
	if closed {
		return ErrQueueClosed
	}
	return m.runCycle(ctx)
}

// WaitIdle blocks until no queued cycle is pending or running.
func (m *Manager) WaitIdle(ctx context.Context) error { return m.queue.WaitIdle(ctx) }

func (m *Manager) Breaker() *resilience.CircuitBreaker { return m.breaker }
func (m *Manager) Resolver() *ConflictResolver         { return m.resolver }
func (m *Manager) Metrics() *metrics.SyncMetrics       { return m.metrics }

// =============================================================================
// Cycle
// =============================================================================

// CycleReport describes one finished cycle.
type CycleReport struct {
	StartedAt  time.Time        `json:"started_at"`
	Duration   time.Duration    `json:"duration"`
	Uploads    []UploadReport   `json:"uploads"`
	Downloads  []DownloadReport `json:"downloads"`
	Reconciled int              `json:"reconciled"`
	Error      string           `json:"error,omitempty"`
}

func (m *Manager) runCycle(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	if !m.breaker.ShouldAllowSync() {
		m.metrics.RecordSkip()
		remaining, _ := m.breaker.RemainingCooldown()
		m.log.Debug().Dur("remaining_cooldown", remaining).Msg("sync skipped, circuit open")
		return ErrCircuitOpen
	}

	m.syncing.Store(true)
	defer m.syncing.Store(false)

	started := m.now()
	report := CycleReport{StartedAt: started}

	since, err := m.meta.LastSyncTime(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("read watermark failed, doing full download")
		since = nil
	}

	var cycleErrs []error
	for _, s := range m.syncers {
		up, err := s.Upload(ctx)
		report.Uploads = append(report.Uploads, up)
		m.metrics.RecordUpload(up.Succeeded, up.Failed)
		if err != nil {
			cycleErrs = append(cycleErrs, fmt.Errorf("upload %s: %w", s.Kind(), err))
		}
	}

	downloads, err := m.syncDown(ctx, since)
	report.Downloads = downloads
	if err != nil {
		cycleErrs = append(cycleErrs, err)
	}

	linked, err := m.reconcileLocked(ctx)
	report.Reconciled = linked
	if err != nil {
		cycleErrs = append(cycleErrs, err)
	}

	cycleErr := errors.Join(cycleErrs...)
	switch {
	case ctx.Err() != nil:
		// Cancelled by shutdown; says nothing about the remote.
	case cycleErr != nil:
		m.breaker.RecordFailure()
	default:
		m.breaker.RecordSuccess()
		if err := m.meta.SetLastSyncTime(ctx, started); err != nil {
			m.log.Warn().Err(err).Msg("persist watermark failed")
		}
	}

	report.Duration = m.now().Sub(started)
	if cycleErr != nil {
		report.Error = cycleErr.Error()
	}
	m.metrics.RecordCycle(report.Duration, cycleErr != nil)
	m.refreshCountsLocked(ctx)
	m.statusMu.Lock()
	m.lastCycle = &report
	m.statusMu.Unlock()

	m.log.Info().
		Dur("duration", report.Duration).
		Int("reconciled", linked).
		Bool("failed", cycleErr != nil).
		Msg("sync cycle finished")
	return cycleErr
}

type fetchJob struct {
	index  int
	syncer EntitySyncer
}

type fetchResult struct {
	rows []json.RawMessage
	err  error
}

// fetchWorker implements pool.Worker for remote fetches.
type fetchWorker struct {
	since   *time.Time
	mu      sync.Mutex
	results []fetchResult
}

func (w *fetchWorker) Do(ctx context.Context, job fetchJob) error {
	rows, err := job.syncer.Fetch(ctx, w.since)
	w.mu.Lock()
	w.results[job.index] = fetchResult{rows: rows, err: err}
	w.mu.Unlock()
	return err
}

// syncDown fetches every kind in parallel, then applies the rows
// sequentially in parent-first order.
func (m *Manager) syncDown(ctx context.Context, since *time.Time) ([]DownloadReport, error) {
	if len(m.syncers) == 0 {
		return nil, nil
	}
	worker := &fetchWorker{since: since, results: make([]fetchResult, len(m.syncers))}
	group := pool.New[fetchJob](min(m.workers, len(m.syncers)), worker).WithContinueOnError()
	if err := group.Go(ctx); err != nil {
		return nil, fmt.Errorf("start fetch pool: %w", err)
	}
	for i, s := range m.syncers {
		group.Submit(fetchJob{index: i, syncer: s})
	}
	// Per-job errors are read from results below.
	_ = group.Close(ctx)

	var (
		reports []DownloadReport
		errs    []error
	)
	for i, s := range m.syncers {
		res := worker.results[i]
		if res.err != nil {
			errs = append(errs, fmt.Errorf("fetch %s: %w", s.Kind(), res.err))
			continue
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		rep, err := s.Download(ctx, res.rows)
		reports = append(reports, rep)
		m.metrics.RecordDownload(rep.Applied(), rep.Skipped, rep.Undecodable)
		if err != nil {
			errs = append(errs, fmt.Errorf("apply %s: %w", s.Kind(), err))
		}
	}
	return reports, errors.Join(errs...)
}

// ReconcileRelationships links children whose parent arrived after them.
func (m *Manager) ReconcileRelationships(ctx context.Context) (int, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.reconcileLocked(ctx)
}

func (m *Manager) reconcileLocked(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, s := range m.syncers {
		n, err := s.Reconcile(ctx)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if total > 0 {
		m.log.Debug().Int("linked", total).Msg("relationships reconciled")
	}
	return total, errors.Join(errs...)
}

// =============================================================================
// Realtime
// =============================================================================

// handleChange applies a pushed change. Deletes and full rows apply
// directly; anything else falls back to a normal cycle.
func (m *Manager) handleChange(ev domain.ChangeEvent) {
	m.metrics.RecordRealtimeEvent()
	kind, ok := domain.KindForTable(ev.Table)
	if !ok {
		m.log.Debug().Str("table", ev.Table).Msg("change for unknown table ignored")
		return
	}
	s := m.byKind[kind]
	if s == nil {
		return
	}

	id, idErr := uuid.Parse(ev.ID)
	switch {
	case ev.Type == domain.ChangeDelete && idErr == nil:
		m.applyChange(func(ctx context.Context) error {
			_, err := s.ApplyDeletion(ctx, id)
			return err
		})
	case ev.Type != domain.ChangeDelete && len(ev.Payload) > 0:
		m.applyChange(func(ctx context.Context) error {
			_, err := s.Download(ctx, []json.RawMessage{ev.Payload})
			return err
		})
	default:
		m.RequestSync()
	}
}

func (m *Manager) applyChange(fn func(ctx context.Context) error) {
	if m.ctx.Err() != nil {
		return
	}
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if err := fn(m.ctx); err != nil {
		m.log.Warn().Err(err).Msg("apply realtime change failed, scheduling sync")
		m.RequestSync()
	}
	m.refreshCountsLocked(m.ctx)
}

// ResetRealtime reconnects the realtime channel from scratch.
func (m *Manager) ResetRealtime(ctx context.Context) error {
	if m.realtime == nil {
		return nil
	}
	return m.realtime.ResetAndReconnect(ctx)
}

// ConnectionState reports realtime health. Without a subscriber the engine
// reports connected.
func (m *Manager) ConnectionState() domain.ConnectionState {
	if m.realtime == nil {
		return domain.Connected()
	}
	return m.realtime.State()
}

// =============================================================================
// Retry
// =============================================================================

// RetryFailed re-arms failed records of every kind and asks for a cycle
// per record retried. fatalToo includes permission and data failures.
// Records are re-armed under the cycle lock; the backoff waits run after it
// is released so cycles and realtime applies are not held up.
func (m *Manager) RetryFailed(ctx context.Context, fatalToo bool) (int, error) {
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return 0, ErrQueueClosed
	}
	m.tasks.Add(1)
	m.lifeMu.Unlock()
	defer m.tasks.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	armed, err := m.armFailed(ctx, fatalToo)
	retried := m.retry.RunBackoffs(ctx, armed, func(context.Context) { m.RequestSync() })

	m.metrics.RecordRetried(retried)
	if len(armed) > 0 {
		m.log.Info().
			Int("armed", len(armed)).
			Int("retried", retried).
			Bool("include_fatal", fatalToo).
			Msg("failed records re-armed")
	}
	return retried, err
}

func (m *Manager) armFailed(ctx context.Context, fatalToo bool) ([]ArmedRetry, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	var (
		armed []ArmedRetry
		errs  []error
	)
	for _, s := range m.syncers {
		a, err := m.retry.ArmFailed(ctx, m.store, s.Kind(), fatalToo)
		armed = append(armed, a...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	m.refreshCountsLocked(ctx)
	return armed, errors.Join(errs...)
}

// DeleteRecord deletes a record on the server and locally.
func (m *Manager) DeleteRecord(ctx context.Context, kind domain.EntityKind, id uuid.UUID) error {
	s := m.byKind[kind]
	if s == nil {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	err := s.DeleteRemote(ctx, id)
	m.refreshCountsLocked(ctx)
	return err
}

// =============================================================================
// Status
// =============================================================================

type KindCounts struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	// FatalFailed is the subset of Failed that automatic retry skips.
	FatalFailed int `json:"fatal_failed"`
}

type Status struct {
	Mode         domain.Mode                      `json:"mode"`
	Breaker      resilience.CircuitBreakerStats   `json:"breaker"`
	Connection   string                           `json:"connection"`
	LastSyncTime *time.Time                       `json:"last_sync_time,omitempty"`
	LastCycle    *CycleReport                     `json:"last_cycle,omitempty"`
	RunID        uint64                           `json:"run_id"`
	IsSyncing    bool                             `json:"is_syncing"`
	LoopActive   bool                             `json:"loop_active"`
	Counts       map[domain.EntityKind]KindCounts `json:"counts"`
	CountsCached bool                             `json:"counts_cached,omitempty"`
	Metrics      metrics.SyncStats                `json:"metrics"`
}

// Status reports engine state. Record counts are read under the cycle lock
// when it is free; while a cycle or apply holds it, the counts taken at the
// end of the last locked section are served and CountsCached is set.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	st := Status{
		Mode:       m.mode,
		Breaker:    m.breaker.Stats(),
		Connection: m.ConnectionState().String(),
		RunID:      m.queue.RunID(),
		IsSyncing:  m.syncing.Load(),
		LoopActive: m.queue.IsLoopActive(),
		Metrics:    m.metrics.Snapshot(),
	}

	last, err := m.meta.LastSyncTime(ctx)
	if err != nil {
		return st, fmt.Errorf("read watermark: %w", err)
	}
	st.LastSyncTime = last

	if m.cycleMu.TryLock() {
		counts, err := m.countsLocked(ctx)
		if err == nil {
			m.storeCounts(counts)
		}
		m.cycleMu.Unlock()
		if err != nil {
			return st, err
		}
	} else {
		st.CountsCached = true
	}

	m.statusMu.RLock()
	if m.lastCycle != nil {
		cp := *m.lastCycle
		st.LastCycle = &cp
	}
	st.Counts = make(map[domain.EntityKind]KindCounts, len(m.counts))
	for k, v := range m.counts {
		st.Counts[k] = v
	}
	m.statusMu.RUnlock()
	return st, nil
}

// countsLocked reads per-kind record counts. The caller holds cycleMu.
func (m *Manager) countsLocked(ctx context.Context) (map[domain.EntityKind]KindCounts, error) {
	counts := make(map[domain.EntityKind]KindCounts, len(m.syncers))
	for _, s := range m.syncers {
		kind := s.Kind()
		pending, err := m.store.FetchCount(ctx, kind, out.ByStates(domain.SyncStatePending))
		if err != nil {
			return nil, fmt.Errorf("count pending %s: %w", kind, err)
		}
		failed, err := m.store.FetchCount(ctx, kind, out.ByStates(domain.SyncStateFailed))
		if err != nil {
			return nil, fmt.Errorf("count failed %s: %w", kind, err)
		}
		fatal, err := m.store.FetchCount(ctx, kind, out.Predicate{
			States: []domain.SyncState{domain.SyncStateFailed},
			Where:  func(r domain.SyncableRecord) bool { return r.Sync().FailureFatal },
		})
		if err != nil {
			return nil, fmt.Errorf("count fatal %s: %w", kind, err)
		}
		counts[kind] = KindCounts{Pending: pending, Failed: failed, FatalFailed: fatal}
	}
	return counts, nil
}

// refreshCountsLocked updates the cached counts. The caller holds cycleMu.
func (m *Manager) refreshCountsLocked(ctx context.Context) {
	counts, err := m.countsLocked(context.WithoutCancel(ctx))
	if err != nil {
		m.log.Debug().Err(err).Msg("refresh status counts failed")
		return
	}
	m.storeCounts(counts)
}

func (m *Manager) storeCounts(counts map[domain.EntityKind]KindCounts) {
	m.statusMu.Lock()
	m.counts = counts
	m.statusMu.Unlock()
}

// =============================================================================
// Watermark
// =============================================================================

func (m *Manager) LastSyncTime(ctx context.Context) (*time.Time, error) {
	return m.meta.LastSyncTime(ctx)
}

func (m *Manager) SetLastSyncTime(ctx context.Context, t time.Time) error {
	return m.meta.SetLastSyncTime(ctx, t)
}

// ResetLastSyncTime forces the next cycle to download everything.
func (m *Manager) ResetLastSyncTime(ctx context.Context) error {
	return m.meta.ResetLastSyncTime(ctx)
}

type memoryWatermark struct {
	mu sync.Mutex
	t  *time.Time
}

func (w *memoryWatermark) LastSyncTime(context.Context) (*time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.t == nil {
		return nil, nil
	}
	t := *w.t
	return &t, nil
}

func (w *memoryWatermark) SetLastSyncTime(_ context.Context, t time.Time) error {
	w.mu.Lock()
	w.t = &t
	w.mu.Unlock()
	return nil
}

func (w *memoryWatermark) ResetLastSyncTime(context.Context) error {
	w.mu.Lock()
	w.t = nil
	w.mu.Unlock()
	return nil
}
