package remote

import (
	"context"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// NoopFacade accepts every write and never returns rows. Test and preview
// modes use it when no remote is injected.
type NoopFacade struct{}

func NewNoopFacade() NoopFacade { return NoopFacade{} }

func (NoopFacade) UpsertBatch(_ context.Context, _ string, rows []out.Row) ([]out.RowResult, error) {
	results := make([]out.RowResult, len(rows))
	for i, row := range rows {
		results[i] = out.RowResult{ID: row.ID}
	}
	return results, nil
}

func (NoopFacade) DeleteRow(context.Context, string, uuid.UUID) error { return nil }

func (NoopFacade) FetchChanged(context.Context, string, *time.Time) ([]json.RawMessage, error) {
	return nil, nil
}
