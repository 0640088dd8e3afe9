package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnums_Fallback(t *testing.T) {
	tests := []struct {
		name   string
		parse  func(string) (string, bool)
		raw    string
		want   string
		wantOK bool
	}{
		{"task status known", wrap(ParseTaskStatus), "in_progress", "in_progress", true},
		{"task status unknown", wrap(ParseTaskStatus), "archived_forever", "open", false},
		{"listing stage unknown", wrap(ParseListingStage), "mystery", "pending", false},
		{"listing status empty", wrap(ParseListingStatus), "", "draft", false},
		{"priority unknown", wrap(ParsePriority), "nope", "medium", false},
		{"activity type unknown", wrap(ParseActivityType), "fax", "other", false},
		{"user type known", wrap(ParseUserType), "admin", "admin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.parse(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func wrap[E ~string](fn func(string) (E, bool)) func(string) (string, bool) {
	return func(raw string) (string, bool) {
		v, ok := fn(raw)
		return string(v), ok
	}
}

func TestSyncMetadata_Transitions(t *testing.T) {
	m := NewPendingMetadata()
	assert.Equal(t, SyncStatePending, m.SyncState)
	assert.True(t, m.IsDirty())

	m.MarkFailed("Network error")
	m.RetryCount = 3
	m.FailureFatal = true
	require.NotNil(t, m.LastSyncError)
	assert.Equal(t, SyncStateFailed, m.SyncState)

	now := time.Now()
	m.MarkSynced(now)
	assert.Equal(t, SyncStateSynced, m.SyncState)
	assert.Nil(t, m.LastSyncError)
	assert.Zero(t, m.RetryCount)
	assert.False(t, m.FailureFatal)
	assert.False(t, m.IsDirty())
	require.NotNil(t, m.SyncedAt)
	assert.True(t, m.SyncedAt.Equal(now))
}

func TestNote_MarkSyncedClearsRemoteFlag(t *testing.T) {
	n := &Note{ID: uuid.New(), SyncMetadata: NewPendingMetadata(), HasRemoteChangeWhilePending: true}

	var rec SyncableRecord = n
	rec.MarkSynced(time.Now())

	assert.False(t, n.HasRemoteChangeWhilePending)
	assert.Equal(t, SyncStateSynced, n.SyncState)
}

func TestTask_ApplySoftDeleteAndResurrect(t *testing.T) {
	id := uuid.New()
	deletedAt := time.Now().UTC()
	deletedBy := uuid.New()

	task := NewTaskFromDTO(TaskDTO{ID: id, Title: "Call seller", Status: "open"})
	assert.False(t, task.IsDeleted())

	task.Apply(TaskDTO{ID: id, Title: "Call seller", Status: "open", DeletedAt: &deletedAt, DeletedBy: &deletedBy})
	assert.True(t, task.IsDeleted())
	require.NotNil(t, task.DeletedBy)
	assert.Equal(t, deletedBy, *task.DeletedBy)

	task.Apply(TaskDTO{ID: id, Title: "Call seller again", Status: "completed"})
	assert.False(t, task.IsDeleted())
	assert.Nil(t, task.DeletedBy)
	assert.Equal(t, "Call seller again", task.Title)
	assert.Equal(t, TaskStatusCompleted, task.Status)
}

func TestListing_LinkChild(t *testing.T) {
	l := &Listing{ID: uuid.New()}
	child := uuid.New()

	assert.True(t, l.LinkChild(KindTask, child))
	assert.False(t, l.LinkChild(KindTask, child))
	assert.True(t, l.LinkChild(KindNote, child))
	assert.False(t, l.LinkChild(KindUser, child))
	assert.Len(t, l.TaskIDs, 1)
	assert.Len(t, l.NoteIDs, 1)
	assert.Empty(t, l.ActivityIDs)
}

func TestDTO_UnknownEnums(t *testing.T) {
	d := ListingDTO{Stage: "teleported", Status: "active"}
	assert.Equal(t, []string{"stage=teleported"}, d.UnknownEnums())

	assert.Empty(t, TaskDTO{Status: "open", Priority: "high"}.UnknownEnums())
}

func TestEntityKind_TableRoundTrip(t *testing.T) {
	for _, kind := range SyncOrder {
		table := kind.Table()
		require.NotEmpty(t, table, kind)
		got, ok := KindForTable(table)
		require.True(t, ok)
		assert.Equal(t, kind, got)

		rec, err := NewRecord(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, rec.Kind())
	}

	_, err := NewRecord("widget")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeProduction, false},
		{"production", ModeProduction, false},
		{"TEST", ModeTest, false},
		{" preview ", ModePreview, false},
		{"staging", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "connected", Connected().String())
	assert.Equal(t, "reconnecting(2/5)", Reconnecting(2, 5).String())
	assert.Equal(t, "degraded", Degraded().String())
}
