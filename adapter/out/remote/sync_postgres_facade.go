// Package remote holds RemoteFacade implementations: a direct Postgres
// connection, a PostgREST-style HTTP API and a noop facade for test modes.
package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/syncerr"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const uniqueViolation = "23505"

var ErrUnknownTable = errors.New("unknown remote table")

// =============================================================================
// PostgresFacade
// =============================================================================

// PostgresFacade talks to the backend tables directly. Rows travel as JSON
// and are expanded server side with json_populate_record, so the facade
// needs no per-table column mapping.
type PostgresFacade struct {
	db  queryer
	log zerolog.Logger
}

// queryer is the subset of *sqlx.DB the facade uses.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	PingContext(ctx context.Context) error
}

func NewPostgresFacade(db *sqlx.DB, log zerolog.Logger) *PostgresFacade {
	return &PostgresFacade{
		db:  db,
		log: log.With().Str("component", "postgres_facade").Logger(),
	}
}

// UpsertBatch inserts each row and falls back to UPDATE on a duplicate key.
// SQL errors raised by the server belong to the row; anything else aborts
// the batch as a transport failure.
func (f *PostgresFacade) UpsertBatch(ctx context.Context, table string, rows []out.Row) ([]out.RowResult, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	results := make([]out.RowResult, 0, len(rows))
	for _, row := range rows {
		cols, err := payloadColumns(row.Payload)
		if err != nil {
			results = append(results, out.RowResult{ID: row.ID, Err: syncerr.InvalidData(err.Error())})
			continue
		}
		err = f.upsertRow(ctx, table, row, cols)
		if err != nil && !isServerError(err) {
			return nil, fmt.Errorf("upsert %s %s: %w", table, row.ID, err)
		}
		results = append(results, out.RowResult{ID: row.ID, Err: err})
	}
	return results, nil
}

func (f *PostgresFacade) upsertRow(ctx context.Context, table string, row out.Row, cols []string) error {
	_, err := f.db.ExecContext(ctx, insertSQL(table, cols), string(row.Payload))
	if err == nil {
		return nil
	}
	if sqlState(err) != uniqueViolation {
		return err
	}

	f.log.Debug().Str("table", table).Str("id", row.ID.String()).Msg("duplicate key, updating")
	_, err = f.db.ExecContext(ctx, updateSQL(table, cols), string(row.Payload), row.ID)
	return err
}

func (f *PostgresFacade) DeleteRow(ctx context.Context, table string, id uuid.UUID) error {
	if err := checkTable(table); err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE id = $1", pq.QuoteIdentifier(table))
	if _, err := f.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// FetchChanged returns rows with updated_at after since, oldest first.
func (f *PostgresFacade) FetchChanged(ctx context.Context, table string, since *time.Time) ([]json.RawMessage, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	var texts []string
	if err := f.db.SelectContext(ctx, &texts, fetchSQL(table), since); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}

	rows := make([]json.RawMessage, len(texts))
	for i, s := range texts {
		rows[i] = json.RawMessage(s)
	}
	return rows, nil
}

// Ping reports database reachability for readiness checks.
func (f *PostgresFacade) Ping(ctx context.Context) error {
	return f.db.PingContext(ctx)
}

// =============================================================================
// SQL builders
// =============================================================================

func checkTable(table string) error {
	if _, ok := domain.KindForTable(table); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return nil
}

// payloadColumns returns the sorted top-level keys of a JSON object.
func payloadColumns(payload json.RawMessage) ([]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if len(fields) == 0 {
		return nil, errors.New("payload has no columns")
	}
	cols := make([]string, 0, len(fields))
	for k := range fields {
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols, nil
}

func quoteAll(cols []string, prefix string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = prefix + pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func insertSQL(table string, cols []string) string {
	t := pq.QuoteIdentifier(table)
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM json_populate_record(NULL::%s, $1::json) AS r",
		t, quoteAll(cols, ""), quoteAll(cols, "r."), t,
	)
}

func updateSQL(table string, cols []string) string {
	t := pq.QuoteIdentifier(table)
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "id" {
			continue
		}
		q := pq.QuoteIdentifier(c)
		sets = append(sets, q+" = r."+q)
	}
	return fmt.Sprintf(
		"UPDATE %s AS t SET %s FROM json_populate_record(NULL::%s, $1::json) AS r WHERE t.id = $2",
		t, strings.Join(sets, ", "), t,
	)
}

func fetchSQL(table string) string {
	t := pq.QuoteIdentifier(table)
	return fmt.Sprintf(
		"SELECT row_to_json(t)::text FROM %s AS t WHERE $1::timestamptz IS NULL OR t.updated_at > $1 ORDER BY t.updated_at",
		t,
	)
}

// =============================================================================
// Error inspection
// =============================================================================

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// isServerError reports whether err was produced by the database for this
// statement rather than by the connection.
func isServerError(err error) bool {
	code := sqlState(err)
	return code != "" && !strings.HasPrefix(code, "08")
}
