package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Task
// =============================================================================

type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	ListingID   *uuid.UUID `json:"listing_id,omitempty"`
	DeclaredBy  uuid.UUID  `json:"declared_by"`
	ClaimedBy   *uuid.UUID `json:"claimed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	DeletedBy   *uuid.UUID `json:"deleted_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Local-only link maintained from task_assignees rows.
	AssigneeUserIDs []uuid.UUID `json:"assignee_user_ids,omitempty"`

	SyncMetadata
}

func (t *Task) GetID() uuid.UUID { return t.ID }
func (t *Task) Kind() EntityKind { return KindTask }
func (t *Task) IsDeleted() bool  { return t.DeletedAt != nil }

// TaskDTO is the row shape of the remote tasks table.
type TaskDTO struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	ListingID   *uuid.UUID `json:"listing_id"`
	DeclaredBy  uuid.UUID  `json:"declared_by"`
	ClaimedBy   *uuid.UUID `json:"claimed_by"`
	CompletedAt *time.Time `json:"completed_at"`
	DeletedAt   *time.Time `json:"deleted_at"`
	DeletedBy   *uuid.UUID `json:"deleted_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (d TaskDTO) RemoteID() uuid.UUID { return d.ID }

// UnknownEnums lists raw enum values that fell back to a default.
func (d TaskDTO) UnknownEnums() []string {
	var out []string
	if _, ok := ParseTaskStatus(d.Status); !ok {
		out = append(out, "status="+d.Status)
	}
	if _, ok := ParsePriority(d.Priority); !ok {
		out = append(out, "priority="+d.Priority)
	}
	return out
}

func NewTaskFromDTO(d TaskDTO) *Task {
	t := &Task{ID: d.ID}
	t.Apply(d)
	return t
}

// Apply overwrites every server-owned field, including soft-delete state.
func (t *Task) Apply(d TaskDTO) {
	t.Title = d.Title
	t.Description = d.Description
	t.Status, _ = ParseTaskStatus(d.Status)
	t.Priority, _ = ParsePriority(d.Priority)
	t.DueDate = d.DueDate
	t.ListingID = d.ListingID
	t.DeclaredBy = d.DeclaredBy
	t.ClaimedBy = d.ClaimedBy
	t.CompletedAt = d.CompletedAt
	t.DeletedAt = d.DeletedAt
	t.DeletedBy = d.DeletedBy
	t.CreatedAt = d.CreatedAt
	t.UpdatedAt = d.UpdatedAt
}

func (t *Task) ToDTO() TaskDTO {
	return TaskDTO{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		ListingID:   t.ListingID,
		DeclaredBy:  t.DeclaredBy,
		ClaimedBy:   t.ClaimedBy,
		CompletedAt: t.CompletedAt,
		DeletedAt:   t.DeletedAt,
		DeletedBy:   t.DeletedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// ParentID returns the owning listing, if any.
func (t *Task) ParentID() (uuid.UUID, bool) {
	if t.ListingID == nil {
		return uuid.Nil, false
	}
	return *t.ListingID, true
}

// AddAssignee links a user through an assignee row.
func (t *Task) AddAssignee(userID uuid.UUID) bool {
	if slices.Contains(t.AssigneeUserIDs, userID) {
		return false
	}
	t.AssigneeUserIDs = append(t.AssigneeUserIDs, userID)
	return true
}

func (t *Task) RemoveAssignee(userID uuid.UUID) bool {
	i := slices.Index(t.AssigneeUserIDs, userID)
	if i < 0 {
		return false
	}
	t.AssigneeUserIDs = slices.Delete(t.AssigneeUserIDs, i, i+1)
	return true
}
