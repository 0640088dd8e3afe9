package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Assignee join rows
// =============================================================================

type TaskAssignee struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	UserID     uuid.UUID `json:"user_id"`
	AssignedBy uuid.UUID `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	SyncMetadata
}

func (a *TaskAssignee) GetID() uuid.UUID            { return a.ID }
func (a *TaskAssignee) Kind() EntityKind            { return KindTaskAssignee }
func (a *TaskAssignee) ParentID() (uuid.UUID, bool) { return a.TaskID, a.TaskID != uuid.Nil }
func (a *TaskAssignee) AssigneeUserID() uuid.UUID   { return a.UserID }

type TaskAssigneeDTO struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	UserID     uuid.UUID `json:"user_id"`
	AssignedBy uuid.UUID `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (d TaskAssigneeDTO) RemoteID() uuid.UUID   { return d.ID }
func (d TaskAssigneeDTO) UnknownEnums() []string { return nil }

func NewTaskAssigneeFromDTO(d TaskAssigneeDTO) *TaskAssignee {
	a := &TaskAssignee{ID: d.ID}
	a.Apply(d)
	return a
}

func (a *TaskAssignee) Apply(d TaskAssigneeDTO) {
	a.TaskID = d.TaskID
	a.UserID = d.UserID
	a.AssignedBy = d.AssignedBy
	a.AssignedAt = d.AssignedAt
	a.UpdatedAt = d.UpdatedAt
}

func (a *TaskAssignee) ToDTO() TaskAssigneeDTO {
	return TaskAssigneeDTO{
		ID:         a.ID,
		TaskID:     a.TaskID,
		UserID:     a.UserID,
		AssignedBy: a.AssignedBy,
		AssignedAt: a.AssignedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

type ActivityAssignee struct {
	ID         uuid.UUID `json:"id"`
	ActivityID uuid.UUID `json:"activity_id"`
	UserID     uuid.UUID `json:"user_id"`
	AssignedBy uuid.UUID `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	SyncMetadata
}

func (a *ActivityAssignee) GetID() uuid.UUID { return a.ID }
func (a *ActivityAssignee) Kind() EntityKind { return KindActivityAssignee }
func (a *ActivityAssignee) ParentID() (uuid.UUID, bool) {
	return a.ActivityID, a.ActivityID != uuid.Nil
}
func (a *ActivityAssignee) AssigneeUserID() uuid.UUID { return a.UserID }

type ActivityAssigneeDTO struct {
	ID         uuid.UUID `json:"id"`
	ActivityID uuid.UUID `json:"activity_id"`
	UserID     uuid.UUID `json:"user_id"`
	AssignedBy uuid.UUID `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (d ActivityAssigneeDTO) RemoteID() uuid.UUID   { return d.ID }
func (d ActivityAssigneeDTO) UnknownEnums() []string { return nil }

func NewActivityAssigneeFromDTO(d ActivityAssigneeDTO) *ActivityAssignee {
	a := &ActivityAssignee{ID: d.ID}
	a.Apply(d)
	return a
}

func (a *ActivityAssignee) Apply(d ActivityAssigneeDTO) {
	a.ActivityID = d.ActivityID
	a.UserID = d.UserID
	a.AssignedBy = d.AssignedBy
	a.AssignedAt = d.AssignedAt
	a.UpdatedAt = d.UpdatedAt
}

func (a *ActivityAssignee) ToDTO() ActivityAssigneeDTO {
	return ActivityAssigneeDTO{
		ID:         a.ID,
		ActivityID: a.ActivityID,
		UserID:     a.UserID,
		AssignedBy: a.AssignedBy,
		AssignedAt: a.AssignedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}
