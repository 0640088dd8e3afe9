package local

import (
	"context"
	"testing"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"
	"github.com/ArchieOS-org/Dispatch-sub000/infra/database"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) (*SQLiteStore, *SQLiteMetadata) {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(ctx, db, zerolog.Nop())
	require.NoError(t, err)
	return store, NewSQLiteMetadata(db)
}

func stores(t *testing.T) map[string]out.LocalStore {
	sqlite, _ := newSQLiteStore(t)
	return map[string]out.LocalStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func task(title string, state domain.SyncState) *domain.Task {
	return &domain.Task{
		ID:           uuid.New(),
		Title:        title,
		Status:       domain.TaskStatusOpen,
		SyncMetadata: domain.SyncMetadata{SyncState: state},
	}
}

func TestLocalStore_InsertFetchFilter(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			pending := task("pending", domain.SyncStatePending)
			failed := task("failed", domain.SyncStateFailed)
			synced := task("synced", domain.SyncStateSynced)
			for _, rec := range []*domain.Task{pending, failed, synced} {
				require.NoError(t, store.Insert(ctx, rec))
			}
			require.NoError(t, store.Save(ctx))

			dirty, err := store.Fetch(ctx, domain.KindTask, out.Dirty())
			require.NoError(t, err)
			assert.Len(t, dirty, 2)

			byID, err := store.FetchByID(ctx, domain.KindTask, synced.ID)
			require.NoError(t, err)
			require.NotNil(t, byID)
			assert.Equal(t, "synced", byID.(*domain.Task).Title)

			missing, err := store.FetchByID(ctx, domain.KindTask, uuid.New())
			require.NoError(t, err)
			assert.Nil(t, missing)

			count, err := store.FetchCount(ctx, domain.KindTask, out.ByStates(domain.SyncStateFailed))
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			titled, err := store.Fetch(ctx, domain.KindTask, out.Predicate{Where: func(r domain.SyncableRecord) bool {
				return r.(*domain.Task).Title == "pending"
			}})
			require.NoError(t, err)
			require.Len(t, titled, 1)
			assert.Equal(t, pending.ID, titled[0].GetID())

			others, err := store.Fetch(ctx, domain.KindNote, out.Predicate{})
			require.NoError(t, err)
			assert.Empty(t, others)
		})
	}
}

func TestLocalStore_MutationsVisibleAfterSave(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := task("draft", domain.SyncStatePending)
			require.NoError(t, store.Insert(ctx, rec))
			require.NoError(t, store.Save(ctx))

			fetched, err := store.FetchByID(ctx, domain.KindTask, rec.ID)
			require.NoError(t, err)
			fetched.MarkSynced(time.Now())
			require.NoError(t, store.Save(ctx))

			dirty, err := store.FetchCount(ctx, domain.KindTask, out.Dirty())
			require.NoError(t, err)
			assert.Zero(t, dirty)

			require.NoError(t, store.Delete(ctx, fetched))
			gone, err := store.FetchByID(ctx, domain.KindTask, rec.ID)
			require.NoError(t, err)
			assert.Nil(t, gone)
		})
	}
}

func TestSQLiteStore_IdentityMapAndReload(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLiteStore(ctx, db, zerolog.Nop())
	require.NoError(t, err)

	listing := &domain.Listing{ID: uuid.New(), Address: "12 Main St", Stage: domain.ListingStageLive}
	listing.MarkFailed("Network error: refused")
	listing.RetryCount = 2
	require.NoError(t, store.Insert(ctx, listing))
	require.NoError(t, store.Save(ctx))

	first, err := store.FetchByID(ctx, domain.KindListing, listing.ID)
	require.NoError(t, err)
	assert.Same(t, listing, first)

	// A fresh store over the same database decodes the persisted blob.
	reopened, err := NewSQLiteStore(ctx, db, zerolog.Nop())
	require.NoError(t, err)
	loaded, err := reopened.FetchByID(ctx, domain.KindListing, listing.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	got := loaded.(*domain.Listing)
	assert.Equal(t, "12 Main St", got.Address)
	assert.Equal(t, domain.SyncStateFailed, got.SyncState)
	assert.Equal(t, 2, got.RetryCount)
	require.NotNil(t, got.LastSyncError)
	assert.Equal(t, "Network error: refused", *got.LastSyncError)

	again, err := reopened.Fetch(ctx, domain.KindListing, out.ByID(listing.ID))
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Same(t, loaded, again[0])
}

func TestMetadata_LastSyncTime(t *testing.T) {
	_, sqliteMeta := newSQLiteStore(t)
	repos := map[string]out.SyncMetadataRepository{
		"memory": NewMemoryMetadata(),
		"sqlite": sqliteMeta,
	}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			got, err := repo.LastSyncTime(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)

			want := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
			require.NoError(t, repo.SetLastSyncTime(ctx, want))
			got, err = repo.LastSyncTime(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, want.Equal(*got))

			require.NoError(t, repo.ResetLastSyncTime(ctx))
			got, err = repo.LastSyncTime(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}
