package out

import (
	"context"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// =============================================================================
// Remote Facade
// =============================================================================

// Row is one encoded record on its way to the server.
type Row struct {
	ID      uuid.UUID
	Payload json.RawMessage
}

// RowResult reports the outcome of a single row inside a batch.
type RowResult struct {
	ID  uuid.UUID
	Err error
}

// RemoteFacade abstracts the relational backend. UpsertBatch must try an
// INSERT first and fall back to UPDATE on a duplicate key, per row. A
// non-nil error means the whole batch failed in transport.
type RemoteFacade interface {
	UpsertBatch(ctx context.Context, table string, rows []Row) ([]RowResult, error)
	DeleteRow(ctx context.Context, table string, id uuid.UUID) error
	// FetchChanged returns rows updated after since; a nil since means all rows.
	FetchChanged(ctx context.Context, table string, since *time.Time) ([]json.RawMessage, error)
}

// =============================================================================
// Realtime
// =============================================================================

// Subscription is a live push channel for one table.
type Subscription interface {
	// Errors yields delivery failures; the channel closes with the subscription.
	Errors() <-chan error
	Close() error
}

// Subscriber opens push subscriptions against the remote service.
type Subscriber interface {
	Subscribe(ctx context.Context, tables []string, onEvent func(domain.ChangeEvent)) (Subscription, error)
}
