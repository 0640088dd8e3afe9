package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Activity
// =============================================================================

type Activity struct {
	ID              uuid.UUID    `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Type            ActivityType `json:"type"`
	Status          TaskStatus   `json:"status"`
	Priority        Priority     `json:"priority"`
	DueDate         *time.Time   `json:"due_date,omitempty"`
	DurationMinutes int          `json:"duration_minutes"`
	ListingID       *uuid.UUID   `json:"listing_id,omitempty"`
	DeclaredBy      uuid.UUID    `json:"declared_by"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	DeletedAt       *time.Time   `json:"deleted_at,omitempty"`
	DeletedBy       *uuid.UUID   `json:"deleted_by,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	AssigneeUserIDs []uuid.UUID `json:"assignee_user_ids,omitempty"`

	SyncMetadata
}

func (a *Activity) GetID() uuid.UUID { return a.ID }
func (a *Activity) Kind() EntityKind { return KindActivity }
func (a *Activity) IsDeleted() bool  { return a.DeletedAt != nil }

type ActivityDTO struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	Priority        string     `json:"priority"`
	DueDate         *time.Time `json:"due_date"`
	DurationMinutes int        `json:"duration_minutes"`
	ListingID       *uuid.UUID `json:"listing_id"`
	DeclaredBy      uuid.UUID  `json:"declared_by"`
	CompletedAt     *time.Time `json:"completed_at"`
	DeletedAt       *time.Time `json:"deleted_at"`
	DeletedBy       *uuid.UUID `json:"deleted_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (d ActivityDTO) RemoteID() uuid.UUID { return d.ID }

func (d ActivityDTO) UnknownEnums() []string {
	var out []string
	if _, ok := ParseActivityType(d.Type); !ok {
		out = append(out, "type="+d.Type)
	}
	if _, ok := ParseTaskStatus(d.Status); !ok {
		out = append(out, "status="+d.Status)
	}
	if _, ok := ParsePriority(d.Priority); !ok {
		out = append(out, "priority="+d.Priority)
	}
	return out
}

func NewActivityFromDTO(d ActivityDTO) *Activity {
	a := &Activity{ID: d.ID}
	a.Apply(d)
	return a
}

func (a *Activity) Apply(d ActivityDTO) {
	a.Title = d.Title
	a.Description = d.Description
	a.Type, _ = ParseActivityType(d.Type)
	a.Status, _ = ParseTaskStatus(d.Status)
	a.Priority, _ = ParsePriority(d.Priority)
	a.DueDate = d.DueDate
	a.DurationMinutes = d.DurationMinutes
	a.ListingID = d.ListingID
	a.DeclaredBy = d.DeclaredBy
	a.CompletedAt = d.CompletedAt
	a.DeletedAt = d.DeletedAt
	a.DeletedBy = d.DeletedBy
	a.CreatedAt = d.CreatedAt
	a.UpdatedAt = d.UpdatedAt
}

func (a *Activity) ToDTO() ActivityDTO {
	return ActivityDTO{
		ID:              a.ID,
		Title:           a.Title,
		Description:     a.Description,
		Type:            string(a.Type),
		Status:          string(a.Status),
		Priority:        string(a.Priority),
		DueDate:         a.DueDate,
		DurationMinutes: a.DurationMinutes,
		ListingID:       a.ListingID,
		DeclaredBy:      a.DeclaredBy,
		CompletedAt:     a.CompletedAt,
		DeletedAt:       a.DeletedAt,
		DeletedBy:       a.DeletedBy,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func (a *Activity) ParentID() (uuid.UUID, bool) {
	if a.ListingID == nil {
		return uuid.Nil, false
	}
	return *a.ListingID, true
}

// AddAssignee links a user through an assignee row.
func (a *Activity) AddAssignee(userID uuid.UUID) bool {
	if slices.Contains(a.AssigneeUserIDs, userID) {
		return false
	}
	a.AssigneeUserIDs = append(a.AssigneeUserIDs, userID)
	return true
}

func (a *Activity) RemoveAssignee(userID uuid.UUID) bool {
	i := slices.Index(a.AssigneeUserIDs, userID)
	if i < 0 {
		return false
	}
	a.AssigneeUserIDs = slices.Delete(a.AssigneeUserIDs, i, i+1)
	return true
}
