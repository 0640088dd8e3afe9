package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// =============================================================================
// SQLiteStore - out.LocalStore on the device database
// =============================================================================
//
// Records are stored as JSON blobs keyed by (kind, id) with the sync state
// denormalised into its own column for filtering. Loaded records are kept in
// an identity map so repeated fetches hand out the same pointer and Save can
// write every tracked change back in one transaction.

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sync_records (
	kind       TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	sync_state TEXT    NOT NULL,
	body       BLOB    NOT NULL,
	saved_at   INTEGER NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS idx_sync_records_state ON sync_records (kind, sync_state);
CREATE TABLE IF NOT EXISTS sync_metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

type recordRow struct {
	ID   string `db:"id"`
	Body []byte `db:"body"`
}

type SQLiteStore struct {
	db  *sqlx.DB
	log zerolog.Logger

	mu      sync.Mutex
	tracked map[domain.EntityKind]map[uuid.UUID]domain.SyncableRecord
	written map[domain.EntityKind]map[uuid.UUID]string // last persisted body
}

// NewSQLiteStore creates the schema if needed.
func NewSQLiteStore(ctx context.Context, db *sqlx.DB, log zerolog.Logger) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create local schema: %w", err)
	}
	return &SQLiteStore{
		db:      db,
		log:     log.With().Str("component", "sqlite_store").Logger(),
		tracked: make(map[domain.EntityKind]map[uuid.UUID]domain.SyncableRecord),
		written: make(map[domain.EntityKind]map[uuid.UUID]string),
	}, nil
}

func (s *SQLiteStore) track(rec domain.SyncableRecord) domain.SyncableRecord {
	byID := s.tracked[rec.Kind()]
	if byID == nil {
		byID = make(map[uuid.UUID]domain.SyncableRecord)
		s.tracked[rec.Kind()] = byID
	}
	if existing, ok := byID[rec.GetID()]; ok {
		return existing
	}
	byID[rec.GetID()] = rec
	return rec
}

// Insert tracks rec; it is written on the next Save.
func (s *SQLiteStore) Insert(_ context.Context, rec domain.SyncableRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tracked[rec.Kind()] == nil {
		s.tracked[rec.Kind()] = make(map[uuid.UUID]domain.SyncableRecord)
	}
	s.tracked[rec.Kind()][rec.GetID()] = rec
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(ctx)
}

type writtenBody struct {
	kind domain.EntityKind
	id   uuid.UUID
	body string
}

func (s *SQLiteStore) markWritten(kind domain.EntityKind, id uuid.UUID, body string) {
	if s.written[kind] == nil {
		s.written[kind] = make(map[uuid.UUID]string)
	}
	s.written[kind][id] = body
}

func (s *SQLiteStore) flush(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	written := 0
	var pending []writtenBody
	for kind, byID := range s.tracked {
		for id, rec := range byID {
			body, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode %s %s: %w", kind, id, err)
			}
			if s.written[kind][id] == string(body) {
				continue
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO sync_records (kind, id, sync_state, body, saved_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (kind, id) DO UPDATE SET
					sync_state = excluded.sync_state,
					body       = excluded.body,
					saved_at   = excluded.saved_at`,
				string(kind), id.String(), string(rec.Sync().SyncState), body, now)
			if err != nil {
				return fmt.Errorf("save %s %s: %w", kind, id, err)
			}
			pending = append(pending, writtenBody{kind, id, string(body)})
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	for _, w := range pending {
		s.markWritten(w.kind, w.id, w.body)
	}
	if written > 0 {
		s.log.Debug().Int("records", written).Msg("local store saved")
	}
	return nil
}

// Fetch flushes tracked changes first so the SQL filter sees them.
func (s *SQLiteStore) Fetch(ctx context.Context, kind domain.EntityKind, pred out.Predicate) ([]domain.SyncableRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flush(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, body FROM sync_records WHERE kind = ?`
	args := []any{string(kind)}
	if pred.ID != uuid.Nil {
		query += ` AND id = ?`
		args = append(args, pred.ID.String())
	}
	if len(pred.States) > 0 {
		inQuery, inArgs, err := sqlx.In(` AND sync_state IN (?)`, stateStrings(pred.States))
		if err != nil {
			return nil, err
		}
		query += inQuery
		args = append(args, inArgs...)
	}
	query += ` ORDER BY saved_at, id`

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", kind, err)
	}

	result := make([]domain.SyncableRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := s.decode(kind, row)
		if err != nil {
			return nil, err
		}
		if pred.Matches(rec) {
			result = append(result, rec)
		}
	}
	return result, nil
}

func stateStrings(states []domain.SyncState) []string {
	vals := make([]string, len(states))
	for i, st := range states {
		vals[i] = string(st)
	}
	return vals
}

func (s *SQLiteStore) decode(kind domain.EntityKind, row recordRow) (domain.SyncableRecord, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt %s id %q: %w", kind, row.ID, err)
	}
	if existing, ok := s.tracked[kind][id]; ok {
		return existing, nil
	}

	rec, err := domain.NewRecord(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(row.Body, rec); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	s.markWritten(kind, id, string(row.Body))
	return s.track(rec), nil
}

func (s *SQLiteStore) FetchByID(ctx context.Context, kind domain.EntityKind, id uuid.UUID) (domain.SyncableRecord, error) {
	s.mu.Lock()
	if rec, ok := s.tracked[kind][id]; ok {
		s.mu.Unlock()
		return rec, nil
	}
	s.mu.Unlock()

	recs, err := s.Fetch(ctx, kind, out.ByID(id))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (s *SQLiteStore) Delete(ctx context.Context, rec domain.SyncableRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tracked[rec.Kind()], rec.GetID())
	delete(s.written[rec.Kind()], rec.GetID())
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_records WHERE kind = ? AND id = ?`,
		string(rec.Kind()), rec.GetID().String())
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", rec.Kind(), rec.GetID(), err)
	}
	return nil
}

func (s *SQLiteStore) FetchCount(ctx context.Context, kind domain.EntityKind, pred out.Predicate) (int, error) {
	if pred.Where == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.flush(ctx); err != nil {
			return 0, err
		}

		query := `SELECT COUNT(*) FROM sync_records WHERE kind = ?`
		args := []any{string(kind)}
		if pred.ID != uuid.Nil {
			query += ` AND id = ?`
			args = append(args, pred.ID.String())
		}
		if len(pred.States) > 0 {
			inQuery, inArgs, err := sqlx.In(` AND sync_state IN (?)`, stateStrings(pred.States))
			if err != nil {
				return 0, err
			}
			query += inQuery
			args = append(args, inArgs...)
		}

		var n int
		if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
			return 0, fmt.Errorf("count %s: %w", kind, err)
		}
		return n, nil
	}

	recs, err := s.Fetch(ctx, kind, pred)
	return len(recs), err
}

// =============================================================================
// SQLiteMetadata - out.SyncMetadataRepository
// =============================================================================

const lastSyncKey = "last_sync_time"

type SQLiteMetadata struct {
	db *sqlx.DB
}

// NewSQLiteMetadata shares the store's database; NewSQLiteStore must run first.
func NewSQLiteMetadata(db *sqlx.DB) *SQLiteMetadata {
	return &SQLiteMetadata{db: db}
}

func (m *SQLiteMetadata) LastSyncTime(ctx context.Context) (*time.Time, error) {
	var raw string
	err := m.db.GetContext(ctx, &raw, `SELECT value FROM sync_metadata WHERE key = ?`, lastSyncKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last sync time: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("parse last sync time %q: %w", raw, err)
	}
	return &t, nil
}

func (m *SQLiteMetadata) SetLastSyncTime(ctx context.Context, t time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		lastSyncKey, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write last sync time: %w", err)
	}
	return nil
}

func (m *SQLiteMetadata) ResetLastSyncTime(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM sync_metadata WHERE key = ?`, lastSyncKey); err != nil {
		return fmt.Errorf("reset last sync time: %w", err)
	}
	return nil
}
