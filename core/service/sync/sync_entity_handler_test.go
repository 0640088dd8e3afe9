package syncsvc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/syncerr"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetchTask(t *testing.T, store out.LocalStore, id uuid.UUID) *domain.Task {
	t.Helper()
	rec, err := store.FetchByID(context.Background(), domain.KindTask, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec.(*domain.Task)
}

func TestUpsert_InsertsNewRecordAsSynced(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	h := NewTaskHandler(testDeps(store, newFakeRemote()))

	id := uuid.New()
	outcome, err := h.Upsert(ctx, taskDTO(id, "Book photographer"))
	require.NoError(t, err)
	assert.Equal(t, UpsertInserted, outcome)

	task := fetchTask(t, store, id)
	assert.Equal(t, "Book photographer", task.Title)
	assert.Equal(t, domain.PriorityHigh, task.Priority)
	assert.Equal(t, domain.SyncStateSynced, task.SyncState)
	require.NotNil(t, task.SyncedAt)
	assert.Equal(t, fixedNow, *task.SyncedAt)
}

func TestUpsert_InFlightRecordUnchangedUntilCleared(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	deps := testDeps(store, newFakeRemote())
	h := NewTaskHandler(deps)

	id := uuid.New()
	_, err := h.Upsert(ctx, taskDTO(id, "Original"))
	require.NoError(t, err)
	task := fetchTask(t, store, id)
	before := *task

	deps.Resolver.MarkTasksInFlight([]uuid.UUID{id})
	outcome, err := h.Upsert(ctx, taskDTO(id, "Echo from server"))
	require.NoError(t, err)
	assert.Equal(t, UpsertSkippedLocal, outcome)
	assert.Equal(t, before, *task)

	deps.Resolver.ClearTasksInFlight()
	outcome, err = h.Upsert(ctx, taskDTO(id, "Echo from server"))
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, outcome)
	assert.Equal(t, "Echo from server", task.Title)
}

func TestUpsert_PendingNoteKeepsLocalContentAndFlagsRemoteChange(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	h := NewNoteHandler(testDeps(store, newFakeRemote()))

	note := &domain.Note{
		ID:           uuid.New(),
		Content:      "local draft",
		CreatedAt:    fixedNow,
		UpdatedAt:    fixedNow,
		SyncMetadata: domain.NewPendingMetadata(),
	}
	require.NoError(t, store.Insert(ctx, note))

	outcome, err := h.Upsert(ctx, domain.NoteDTO{
		ID:        note.ID,
		Content:   "someone else's edit",
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow.Add(1),
	})
	require.NoError(t, err)
	assert.Equal(t, UpsertSkippedLocal, outcome)
	assert.Equal(t, "local draft", note.Content)
	assert.True(t, note.HasRemoteChangeWhilePending)

	note.MarkSynced(fixedNow)
	assert.False(t, note.HasRemoteChangeWhilePending)
}

func TestUpsert_SoftDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	h := NewTaskHandler(testDeps(store, newFakeRemote()))

	id := uuid.New()
	_, err := h.Upsert(ctx, taskDTO(id, "Stage condo"))
	require.NoError(t, err)

	deleter := uuid.New()
	deletedAt := fixedNow
	dto := taskDTO(id, "Stage condo")
	dto.DeletedAt = &deletedAt
	dto.DeletedBy = &deleter
	_, err = h.Upsert(ctx, dto)
	require.NoError(t, err)

	task := fetchTask(t, store, id)
	assert.True(t, task.IsDeleted())
	assert.Equal(t, deleter, *task.DeletedBy)

	restored := taskDTO(id, "Stage condo again")
	_, err = h.Upsert(ctx, restored)
	require.NoError(t, err)
	assert.False(t, task.IsDeleted())
	assert.Nil(t, task.DeletedBy)
	assert.Equal(t, "Stage condo again", task.Title)
}

func TestUpsert_UnknownEnumFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	h := NewTaskHandler(testDeps(store, newFakeRemote()))

	dto := taskDTO(uuid.New(), "Odd row")
	dto.Status = "archived"
	dto.Priority = "p0"
	_, err := h.Upsert(ctx, dto)
	require.NoError(t, err)

	task := fetchTask(t, store, dto.ID)
	assert.Equal(t, domain.TaskStatusOpen, task.Status)
	assert.Equal(t, domain.PriorityMedium, task.Priority)
}

func TestUpsert_LinksAndMovesChildBetweenListings(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	deps := testDeps(store, newFakeRemote())
	listings := NewListingHandler(deps)
	tasks := NewTaskHandler(deps)

	first, second := uuid.New(), uuid.New()
	_, err := listings.Upsert(ctx, listingDTO(first))
	require.NoError(t, err)
	_, err = listings.Upsert(ctx, listingDTO(second))
	require.NoError(t, err)

	taskID := uuid.New()
	dto := taskDTO(taskID, "Measure rooms")
	dto.ListingID = &first
	_, err = tasks.Upsert(ctx, dto)
	require.NoError(t, err)

	l1, _ := store.FetchByID(ctx, domain.KindListing, first)
	l2, _ := store.FetchByID(ctx, domain.KindListing, second)
	assert.Equal(t, []uuid.UUID{taskID}, l1.(*domain.Listing).TaskIDs)

	dto.ListingID = &second
	_, err = tasks.Upsert(ctx, dto)
	require.NoError(t, err)
	assert.Empty(t, l1.(*domain.Listing).TaskIDs)
	assert.Equal(t, []uuid.UUID{taskID}, l2.(*domain.Listing).TaskIDs)
}

func TestReconcile_LinksOrphanOnceParentArrives(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	deps := testDeps(store, newFakeRemote())
	listings := NewListingHandler(deps)
	activities := NewActivityHandler(deps)

	listingID := uuid.New()
	activityID := uuid.New()
	_, err := activities.Upsert(ctx, domain.ActivityDTO{
		ID:        activityID,
		Title:     "Open house",
		Type:      "showing",
		Status:    "open",
		Priority:  "low",
		ListingID: &listingID,
	})
	require.NoError(t, err)

	_, err = listings.Upsert(ctx, listingDTO(listingID))
	require.NoError(t, err)

	linked, err := activities.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, linked)

	rec, _ := store.FetchByID(ctx, domain.KindListing, listingID)
	assert.Equal(t, []uuid.UUID{activityID}, rec.(*domain.Listing).ActivityIDs)

	linked, err = activities.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, linked)
}

func TestAssigneeHandler_MirrorsOntoParentTask(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	deps := testDeps(store, newFakeRemote())
	tasks := NewTaskHandler(deps)
	assignees := NewTaskAssigneeHandler(deps)

	taskID := uuid.New()
	_, err := tasks.Upsert(ctx, taskDTO(taskID, "Pick up keys"))
	require.NoError(t, err)

	userID := uuid.New()
	rowID := uuid.New()
	_, err = assignees.Upsert(ctx, domain.TaskAssigneeDTO{ID: rowID, TaskID: taskID, UserID: userID})
	require.NoError(t, err)

	task := fetchTask(t, store, taskID)
	assert.Equal(t, []uuid.UUID{userID}, task.AssigneeUserIDs)

	deleted, err := assignees.Delete(ctx, rowID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, task.AssigneeUserIDs)
}

func TestAssigneeHandler_RelinksWhenRowChanges(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()

	tests := []struct {
		name       string
		moveTask   bool
		newUser    uuid.UUID
		wantNewRow []uuid.UUID
	}{
		{"task and user change", true, bob, []uuid.UUID{bob}},
		{"user changes on same task", false, bob, []uuid.UUID{bob}},
		{"task changes with same user", true, alice, []uuid.UUID{alice}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore()
			deps := testDeps(store, newFakeRemote())
			tasks := NewTaskHandler(deps)
			assignees := NewTaskAssigneeHandler(deps)

			taskA, taskB := uuid.New(), uuid.New()
			for _, id := range []uuid.UUID{taskA, taskB} {
				_, err := tasks.Upsert(ctx, taskDTO(id, "Stage the unit"))
				require.NoError(t, err)
			}

			rowID := uuid.New()
			_, err := assignees.Upsert(ctx, domain.TaskAssigneeDTO{ID: rowID, TaskID: taskA, UserID: alice})
			require.NoError(t, err)
			require.Equal(t, []uuid.UUID{alice}, fetchTask(t, store, taskA).AssigneeUserIDs)

			target := taskA
			if tt.moveTask {
				target = taskB
			}
			outcome, err := assignees.Upsert(ctx, domain.TaskAssigneeDTO{ID: rowID, TaskID: target, UserID: tt.newUser})
			require.NoError(t, err)
			assert.Equal(t, UpsertUpdated, outcome)

			if tt.moveTask {
				assert.Empty(t, fetchTask(t, store, taskA).AssigneeUserIDs)
			}
			assert.Equal(t, tt.wantNewRow, fetchTask(t, store, target).AssigneeUserIDs)
		})
	}
}

func TestDelete_AbsentRecordIsNotAnError(t *testing.T) {
	h := NewTaskHandler(testDeps(newStore(), newFakeRemote()))
	deleted, err := h.Delete(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestApplyDeletion_KeepsRecordWithLocalEdits(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	h := NewTaskHandler(testDeps(store, newFakeRemote()))

	pending := pendingTask(store, "Unsent")
	deleted, err := h.ApplyDeletion(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	syncedID := uuid.New()
	_, err = h.Upsert(ctx, taskDTO(syncedID, "Synced"))
	require.NoError(t, err)
	deleted, err = h.ApplyDeletion(ctx, syncedID)
	require.NoError(t, err)
	assert.True(t, deleted)

	rec, err := store.FetchByID(ctx, domain.KindTask, syncedID)
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = store.FetchByID(ctx, domain.KindTask, pending.ID)
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestSyncUp_UploadsPendingAndTracksInFlight(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	remote := newFakeRemote()
	deps := testDeps(store, remote)
	h := NewTaskHandler(deps)

	a := pendingTask(store, "Order sign")
	b := pendingTask(store, "Call lender")

	var inFlightDuringCall bool
	remote.onUpsert = func(table string, rows []out.Row) {
		assert.Equal(t, "tasks", table)
		assert.Len(t, rows, 2)
		inFlightDuringCall = deps.Resolver.IsTaskInFlight(a.ID) && deps.Resolver.IsTaskInFlight(b.ID)
	}

	result, err := h.SyncUp(ctx)
	require.NoError(t, err)
	assert.True(t, inFlightDuringCall)
	assert.False(t, deps.Resolver.IsTaskInFlight(a.ID))
	assert.Equal(t, 2, result.SuccessCount())
	assert.True(t, result.IsComplete())
	assert.Equal(t, domain.SyncStateSynced, a.SyncState)
	assert.Equal(t, domain.SyncStateSynced, b.SyncState)

	raw, ok := remote.row("tasks", a.ID)
	require.True(t, ok)
	var dto domain.TaskDTO
	require.NoError(t, json.Unmarshal(raw, &dto))
	assert.Equal(t, "Order sign", dto.Title)

	// Nothing left to upload.
	result, err = h.SyncUp(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.TotalCount())
	assert.Equal(t, 1, remote.upsertCount())
}

func TestSyncUp_RowFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	remote := newFakeRemote()
	h := NewTaskHandler(testDeps(store, remote))

	ok := pendingTask(store, "Fine")
	denied := pendingTask(store, "Denied")
	flaky := pendingTask(store, "Flaky")
	remote.rowErr[denied.ID] = &syncerr.HTTPStatusError{StatusCode: http.StatusForbidden, Table: "tasks"}
	remote.rowErr[flaky.ID] = &syncerr.HTTPStatusError{StatusCode: http.StatusServiceUnavailable, Table: "tasks"}

	result, err := h.SyncUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount())
	assert.Equal(t, 2, result.FailureCount())
	assert.Len(t, result.FatalFailures(), 1)
	assert.Len(t, result.RetryableFailures(), 1)

	assert.Equal(t, domain.SyncStateSynced, ok.SyncState)

	assert.Equal(t, domain.SyncStateFailed, denied.SyncState)
	assert.True(t, denied.FailureFatal)
	require.NotNil(t, denied.LastSyncError)
	assert.Equal(t, "You don't have permission to modify tasks.", *denied.LastSyncError)

	assert.Equal(t, domain.SyncStateFailed, flaky.SyncState)
	assert.False(t, flaky.FailureFatal)
	require.NotNil(t, flaky.LastSyncError)
	assert.Equal(t, "Server error (503). Please try again later.", *flaky.LastSyncError)
}

func TestSyncUp_BatchTransportErrorFailsEveryRow(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	remote := newFakeRemote()
	deps := testDeps(store, remote)
	h := NewTaskHandler(deps)

	a := pendingTask(store, "One")
	b := pendingTask(store, "Two")
	remote.setBatchErr(io.ErrUnexpectedEOF)

	result, err := h.SyncUp(ctx)
	require.Error(t, err)

	var serr *syncerr.SyncError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, syncerr.KindConnectionLost, serr.Kind)
	assert.Equal(t, 2, result.FailureCount())
	assert.Equal(t, "All 2 failed.", result.Summary())
	assert.Equal(t, domain.SyncStateFailed, a.SyncState)
	assert.Equal(t, domain.SyncStateFailed, b.SyncState)
	assert.False(t, deps.Resolver.IsTaskInFlight(a.ID))
}

func TestDownload_SkipsUndecodableRows(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	h := NewTaskHandler(testDeps(store, newFakeRemote()))

	good, err := json.Marshal(taskDTO(uuid.New(), "Good row"))
	require.NoError(t, err)

	report, err := h.Download(ctx, []json.RawMessage{json.RawMessage(`{not json`), good})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Undecodable)

	n, err := store.FetchCount(ctx, domain.KindTask, out.Predicate{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncDown_FetchErrorIsClassified(t *testing.T) {
	remote := newFakeRemote()
	remote.setFetchErr(&syncerr.HTTPStatusError{StatusCode: http.StatusTooManyRequests, Table: "tasks"})
	h := NewTaskHandler(testDeps(newStore(), remote))

	_, err := h.SyncDown(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.RateLimited())
}

// wrongTypeStore hands back a note whatever is asked for.
type wrongTypeStore struct{ out.LocalStore }

func (wrongTypeStore) FetchByID(context.Context, domain.EntityKind, uuid.UUID) (domain.SyncableRecord, error) {
	return &domain.Note{ID: uuid.New()}, nil
}

func TestUpsert_PanicsOnRecordOfWrongType(t *testing.T) {
	h := NewTaskHandler(testDeps(wrongTypeStore{newStore()}, newFakeRemote()))
	assert.Panics(t, func() {
		_, _ = h.Upsert(context.Background(), taskDTO(uuid.New(), "x"))
	})
}
