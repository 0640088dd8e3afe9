package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Note
// =============================================================================

type Note struct {
	ID        uuid.UUID  `json:"id"`
	Content   string     `json:"content"`
	ListingID *uuid.UUID `json:"listing_id,omitempty"`
	CreatedBy uuid.UUID  `json:"created_by"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	EditedBy  *uuid.UUID `json:"edited_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uuid.UUID `json:"deleted_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Set when a remote edit arrived while local edits were still unsent.
	// The UI uses it to warn before the local copy overwrites the server.
	HasRemoteChangeWhilePending bool `json:"has_remote_change_while_pending,omitempty"`

	SyncMetadata
}

func (n *Note) GetID() uuid.UUID { return n.ID }
func (n *Note) Kind() EntityKind { return KindNote }
func (n *Note) IsDeleted() bool  { return n.DeletedAt != nil }

// MarkSynced also clears the remote-change flag; the server now holds our copy.
func (n *Note) MarkSynced(now time.Time) {
	n.SyncMetadata.MarkSynced(now)
	n.HasRemoteChangeWhilePending = false
}

type NoteDTO struct {
	ID        uuid.UUID  `json:"id"`
	Content   string     `json:"content"`
	ListingID *uuid.UUID `json:"listing_id"`
	CreatedBy uuid.UUID  `json:"created_by"`
	EditedAt  *time.Time `json:"edited_at"`
	EditedBy  *uuid.UUID `json:"edited_by"`
	DeletedAt *time.Time `json:"deleted_at"`
	DeletedBy *uuid.UUID `json:"deleted_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (d NoteDTO) RemoteID() uuid.UUID   { return d.ID }
func (d NoteDTO) UnknownEnums() []string { return nil }

func NewNoteFromDTO(d NoteDTO) *Note {
	n := &Note{ID: d.ID}
	n.Apply(d)
	return n
}

func (n *Note) Apply(d NoteDTO) {
	n.Content = d.Content
	n.ListingID = d.ListingID
	n.CreatedBy = d.CreatedBy
	n.EditedAt = d.EditedAt
	n.EditedBy = d.EditedBy
	n.DeletedAt = d.DeletedAt
	n.DeletedBy = d.DeletedBy
	n.CreatedAt = d.CreatedAt
	n.UpdatedAt = d.UpdatedAt
}

func (n *Note) ToDTO() NoteDTO {
	return NoteDTO{
		ID:        n.ID,
		Content:   n.Content,
		ListingID: n.ListingID,
		CreatedBy: n.CreatedBy,
		EditedAt:  n.EditedAt,
		EditedBy:  n.EditedBy,
		DeletedAt: n.DeletedAt,
		DeletedBy: n.DeletedBy,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func (n *Note) ParentID() (uuid.UUID, bool) {
	if n.ListingID == nil {
		return uuid.Nil, false
	}
	return *n.ListingID, true
}
