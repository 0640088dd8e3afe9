package syncsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/syncerr"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// Entity Handler - upload, download and local apply for one record kind
// =============================================================================

type remoteDTO interface {
	RemoteID() uuid.UUID
	UnknownEnums() []string
}

// entityRecord is a record pointer that converts to and from its DTO.
type entityRecord[D remoteDTO] interface {
	domain.SyncableRecord
	Apply(dto D)
	ToDTO() D
}

// UpsertOutcome describes what Upsert did with an incoming row.
type UpsertOutcome int

const (
	UpsertInserted UpsertOutcome = iota
	UpsertUpdated
	UpsertSkippedLocal
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	case UpsertSkippedLocal:
		return "skipped_local"
	default:
		return "unknown"
	}
}

// EntityConfig binds an EntityHandler to one kind.
type EntityConfig[T entityRecord[D], D remoteDTO] struct {
	Kind   domain.EntityKind
	New    func(dto D) T
	Linker RelationshipLinker
	// OnLocalAuthoritative runs when a remote row is dropped because local
	// edits win. Optional.
	OnLocalAuthoritative func(rec T, dto D)
}

// HandlerDeps are the collaborators every handler shares.
type HandlerDeps struct {
	Store    out.LocalStore
	Remote   out.RemoteFacade
	Resolver *ConflictResolver
	Now      func() time.Time
	Log      zerolog.Logger
}

type EntityHandler[T entityRecord[D], D remoteDTO] struct {
	cfg      EntityConfig[T, D]
	store    out.LocalStore
	remote   out.RemoteFacade
	resolver *ConflictResolver
	now      func() time.Time
	log      zerolog.Logger
}

func NewEntityHandler[T entityRecord[D], D remoteDTO](cfg EntityConfig[T, D], deps HandlerDeps) *EntityHandler[T, D] {
	if cfg.Linker == nil {
		cfg.Linker = NoopLinker{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Resolver == nil {
		deps.Resolver = NewConflictResolver()
	}
	return &EntityHandler[T, D]{
		cfg:      cfg,
		store:    deps.Store,
		remote:   deps.Remote,
		resolver: deps.Resolver,
		now:      deps.Now,
		log: deps.Log.With().
			Str("component", "entity_handler").
			Str("kind", string(cfg.Kind)).
			Logger(),
	}
}

func (h *EntityHandler[T, D]) Kind() domain.EntityKind { return h.cfg.Kind }

func (h *EntityHandler[T, D]) cast(rec domain.SyncableRecord) T {
	typed, ok := rec.(T)
	if !ok {
		panic(fmt.Sprintf("%s handler received %T", h.cfg.Kind, rec))
	}
	return typed
}

func (h *EntityHandler[T, D]) fetch(ctx context.Context, pred out.Predicate) ([]T, error) {
	recs, err := h.store.Fetch(ctx, h.cfg.Kind, pred)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", h.cfg.Kind, err)
	}
	typed := make([]T, 0, len(recs))
	for _, rec := range recs {
		typed = append(typed, h.cast(rec))
	}
	return typed, nil
}

// =============================================================================
// Local apply
// =============================================================================

// Upsert applies one server row to the local store. Records with unsent
// local edits, or that are part of an upload in flight, are left alone.
// The caller saves.
func (h *EntityHandler[T, D]) Upsert(ctx context.Context, dto D) (UpsertOutcome, error) {
	id := dto.RemoteID()
	if unknown := dto.UnknownEnums(); len(unknown) > 0 {
		h.log.Warn().
			Str("id", id.String()).
			Strs("values", unknown).
			Msg("unknown enum values, using defaults")
	}

	existing, err := h.store.FetchByID(ctx, h.cfg.Kind, id)
	if err != nil {
		return 0, fmt.Errorf("fetch %s %s: %w", h.cfg.Kind, id, err)
	}

	if existing == nil {
		rec := h.cfg.New(dto)
		rec.MarkSynced(h.now())
		if err := h.store.Insert(ctx, rec); err != nil {
			return 0, fmt.Errorf("insert %s %s: %w", h.cfg.Kind, id, err)
		}
		if err := h.relink(ctx, rec, LinkKey{}, false); err != nil {
			return 0, err
		}
		return UpsertInserted, nil
	}

	rec := h.cast(existing)
	if h.resolver.IsLocalAuthoritative(rec) {
		if h.cfg.OnLocalAuthoritative != nil {
			h.cfg.OnLocalAuthoritative(rec, dto)
		}
		h.log.Debug().
			Str("id", id.String()).
			Str("sync_state", string(rec.Sync().SyncState)).
			Msg("local copy authoritative, remote row skipped")
		return UpsertSkippedLocal, nil
	}

	oldKey, hadKey := linkKeyOf(rec)
	rec.Apply(dto)
	rec.MarkSynced(h.now())
	if err := h.relink(ctx, rec, oldKey, hadKey); err != nil {
		return 0, err
	}
	return UpsertUpdated, nil
}

// relink moves rec under its current parent, detaching the old link when
// either the parent or the member side of it changed.
func (h *EntityHandler[T, D]) relink(ctx context.Context, rec T, oldKey LinkKey, hadKey bool) error {
	newKey, hasKey := linkKeyOf(rec)
	if hadKey && (!hasKey || oldKey != newKey) {
		if _, err := h.cfg.Linker.Unlink(ctx, rec, oldKey, h.store); err != nil {
			return fmt.Errorf("unlink %s %s: %w", h.cfg.Kind, rec.GetID(), err)
		}
	}
	if hasKey {
		if _, err := h.cfg.Linker.Link(ctx, rec, newKey.Parent, h.store); err != nil {
			return fmt.Errorf("link %s %s: %w", h.cfg.Kind, rec.GetID(), err)
		}
	}
	return nil
}

func parentOf(rec domain.SyncableRecord) (uuid.UUID, bool) {
	p, ok := rec.(parented)
	if !ok {
		return uuid.Nil, false
	}
	return p.ParentID()
}

// Delete removes the local record. It reports false when nothing was there.
func (h *EntityHandler[T, D]) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	existing, err := h.store.FetchByID(ctx, h.cfg.Kind, id)
	if err != nil {
		return false, fmt.Errorf("fetch %s %s: %w", h.cfg.Kind, id, err)
	}
	if existing == nil {
		return false, nil
	}
	rec := h.cast(existing)
	if key, ok := linkKeyOf(rec); ok {
		if _, err := h.cfg.Linker.Unlink(ctx, rec, key, h.store); err != nil {
			return false, fmt.Errorf("unlink %s %s: %w", h.cfg.Kind, id, err)
		}
	}
	if err := h.store.Delete(ctx, rec); err != nil {
		return false, fmt.Errorf("delete %s %s: %w", h.cfg.Kind, id, err)
	}
	return true, nil
}

// ApplyDeletion handles a remote hard delete. A record with unsent local
// edits survives; its next upload recreates the row.
func (h *EntityHandler[T, D]) ApplyDeletion(ctx context.Context, id uuid.UUID) (bool, error) {
	existing, err := h.store.FetchByID(ctx, h.cfg.Kind, id)
	if err != nil {
		return false, fmt.Errorf("fetch %s %s: %w", h.cfg.Kind, id, err)
	}
	if existing == nil {
		return false, nil
	}
	if h.resolver.IsLocalAuthoritative(existing) {
		h.log.Debug().Str("id", id.String()).Msg("remote delete ignored, local edits pending")
		return false, nil
	}
	deleted, err := h.Delete(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	if err := h.store.Save(ctx); err != nil {
		return true, fmt.Errorf("save after delete %s: %w", h.cfg.Kind, err)
	}
	return true, nil
}

// DeleteRemote deletes the row on the server, then locally.
func (h *EntityHandler[T, D]) DeleteRemote(ctx context.Context, id uuid.UUID) error {
	if err := h.remote.DeleteRow(ctx, h.cfg.Kind.Table(), id); err != nil {
		return syncerr.From(err)
	}
	if _, err := h.Delete(ctx, id); err != nil {
		return err
	}
	return h.store.Save(ctx)
}

// =============================================================================
// Upload
// =============================================================================

// SyncUp uploads every pending or failed record. Per-record failures land
// in the result and on the record. A batch-level transport failure marks
// every row failed and is also returned.
func (h *EntityHandler[T, D]) SyncUp(ctx context.Context) (BatchSyncResult[T], error) {
	dirty, err := h.fetch(ctx, out.Dirty())
	if err != nil {
		return EmptyResult[T](), err
	}
	if len(dirty) == 0 {
		return EmptyResult[T](), nil
	}

	ids := make([]uuid.UUID, 0, len(dirty))
	for _, rec := range dirty {
		ids = append(ids, rec.GetID())
	}
	h.resolver.MarkInFlight(h.cfg.Kind, ids)
	defer h.resolver.ClearInFlight(h.cfg.Kind)

	builder := NewBatchBuilder[T]()
	byID := make(map[uuid.UUID]T, len(dirty))
	rows := make([]out.Row, 0, len(dirty))
	for _, rec := range dirty {
		payload, err := json.Marshal(rec.ToDTO())
		if err != nil {
			h.fail(builder, rec, syncerr.EncodingFailed(string(h.cfg.Kind), err))
			continue
		}
		byID[rec.GetID()] = rec
		rows = append(rows, out.Row{ID: rec.GetID(), Payload: payload})
	}

	var batchErr error
	if len(rows) > 0 {
		results, err := h.remote.UpsertBatch(ctx, h.cfg.Kind.Table(), rows)
		if err != nil {
			serr := syncerr.From(err)
			for _, row := range rows {
				h.fail(builder, byID[row.ID], serr)
			}
			batchErr = serr
		} else {
			h.applyRowResults(builder, byID, results)
		}
	}

	if err := h.store.Save(ctx); err != nil {
		return builder.Build(), fmt.Errorf("save after upload %s: %w", h.cfg.Kind, err)
	}

	result := builder.Build()
	ev := h.log.Info()
	if result.HasFailures() {
		ev = h.log.Warn().Str("errors", result.ErrorSummary())
	}
	ev.Int("succeeded", result.SuccessCount()).
		Int("failed", result.FailureCount()).
		Msg(result.Summary())
	return result, batchErr
}

func (h *EntityHandler[T, D]) applyRowResults(builder *BatchBuilder[T], byID map[uuid.UUID]T, results []out.RowResult) {
	seen := make(map[uuid.UUID]bool, len(results))
	for _, res := range results {
		rec, ok := byID[res.ID]
		if !ok || seen[res.ID] {
			continue
		}
		seen[res.ID] = true
		if res.Err != nil {
			h.fail(builder, rec, syncerr.From(res.Err))
			continue
		}
		rec.MarkSynced(h.now())
		builder.AddSuccess(rec)
	}
	// Rows the facade never reported on are treated as lost in transit.
	for id, rec := range byID {
		if !seen[id] {
			h.fail(builder, rec, syncerr.ConnectionLost())
		}
	}
}

func (h *EntityHandler[T, D]) fail(builder *BatchBuilder[T], rec T, serr *syncerr.SyncError) {
	rec.MarkFailed(serr.UserFacingMessage())
	rec.Sync().FailureFatal = !serr.IsRetryable()
	builder.AddFailure(rec, serr)
	h.log.Debug().
		Str("id", rec.GetID().String()).
		Str("error_kind", string(serr.Kind)).
		Bool("retryable", serr.IsRetryable()).
		Msg("record upload failed")
}

// =============================================================================
// Download
// =============================================================================

// DownloadReport counts what happened to a batch of remote rows.
type DownloadReport struct {
	Kind        domain.EntityKind `json:"kind"`
	Inserted    int               `json:"inserted"`
	Updated     int               `json:"updated"`
	Skipped     int               `json:"skipped"`
	Undecodable int               `json:"undecodable"`
}

func (r DownloadReport) Applied() int { return r.Inserted + r.Updated }

// Download decodes and applies rows fetched from the server, then saves.
// A row that fails to decode is logged and skipped.
func (h *EntityHandler[T, D]) Download(ctx context.Context, rows []json.RawMessage) (DownloadReport, error) {
	report := DownloadReport{Kind: h.cfg.Kind}
	for _, raw := range rows {
		var dto D
		if err := json.Unmarshal(raw, &dto); err != nil {
			report.Undecodable++
			h.log.Warn().
				Err(syncerr.DecodingFailed(string(h.cfg.Kind), err)).
				Msg("skipping undecodable row")
			continue
		}
		outcome, err := h.Upsert(ctx, dto)
		if err != nil {
			return report, err
		}
		switch outcome {
		case UpsertInserted:
			report.Inserted++
		case UpsertUpdated:
			report.Updated++
		case UpsertSkippedLocal:
			report.Skipped++
		}
	}
	if report.Applied() > 0 || report.Skipped > 0 {
		if err := h.store.Save(ctx); err != nil {
			return report, fmt.Errorf("save after download %s: %w", h.cfg.Kind, err)
		}
	}
	return report, nil
}

// SyncDown fetches rows changed since the watermark and applies them.
func (h *EntityHandler[T, D]) SyncDown(ctx context.Context, since *time.Time) (DownloadReport, error) {
	rows, err := h.remote.FetchChanged(ctx, h.cfg.Kind.Table(), since)
	if err != nil {
		return DownloadReport{Kind: h.cfg.Kind}, syncerr.From(err)
	}
	return h.Download(ctx, rows)
}

// Reconcile links every record to its parent. Children downloaded before
// their parent are picked up here once the parent exists.
func (h *EntityHandler[T, D]) Reconcile(ctx context.Context) (int, error) {
	recs, err := h.fetch(ctx, out.Predicate{})
	if err != nil {
		return 0, err
	}
	linked := 0
	for _, rec := range recs {
		parent, ok := parentOf(rec)
		if !ok {
			continue
		}
		changed, err := h.cfg.Linker.Link(ctx, rec, parent, h.store)
		if err != nil {
			return linked, fmt.Errorf("reconcile %s %s: %w", h.cfg.Kind, rec.GetID(), err)
		}
		if changed {
			linked++
		}
	}
	if linked > 0 {
		if err := h.store.Save(ctx); err != nil {
			return linked, fmt.Errorf("save after reconcile %s: %w", h.cfg.Kind, err)
		}
	}
	return linked, nil
}

// =============================================================================
// EntitySyncer - kind-erased view used by the manager
// =============================================================================

// UploadReport is the kind-erased summary of a SyncUp.
type UploadReport struct {
	Kind         domain.EntityKind `json:"kind"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	Retryable    int               `json:"retryable"`
	Summary      string            `json:"summary"`
	ErrorSummary string            `json:"error_summary,omitempty"`
}

type EntitySyncer interface {
	Kind() domain.EntityKind
	Upload(ctx context.Context) (UploadReport, error)
	Fetch(ctx context.Context, since *time.Time) ([]json.RawMessage, error)
	Download(ctx context.Context, rows []json.RawMessage) (DownloadReport, error)
	ApplyDeletion(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteRemote(ctx context.Context, id uuid.UUID) error
	Reconcile(ctx context.Context) (int, error)
}

var _ EntitySyncer = (*EntityHandler[*domain.Task, domain.TaskDTO])(nil)

func (h *EntityHandler[T, D]) Upload(ctx context.Context) (UploadReport, error) {
	result, err := h.SyncUp(ctx)
	report := UploadReport{
		Kind:      h.cfg.Kind,
		Succeeded: result.SuccessCount(),
		Failed:    result.FailureCount(),
		Retryable: len(result.RetryableFailures()),
		Summary:   result.Summary(),
	}
	if result.HasFailures() {
		report.ErrorSummary = result.ErrorSummary()
	}
	return report, err
}

// Fetch pulls changed rows without applying them, so the manager can run
// fetches for several kinds in parallel.
func (h *EntityHandler[T, D]) Fetch(ctx context.Context, since *time.Time) ([]json.RawMessage, error) {
	rows, err := h.remote.FetchChanged(ctx, h.cfg.Kind.Table(), since)
	if err != nil {
		return nil, syncerr.From(err)
	}
	return rows, nil
}
