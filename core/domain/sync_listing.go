package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Listing
// =============================================================================

type Listing struct {
	ID         uuid.UUID     `json:"id"`
	Address    string        `json:"address"`
	City       string        `json:"city"`
	Province   string        `json:"province"`
	PostalCode string        `json:"postal_code"`
	Price      *float64      `json:"price,omitempty"`
	Stage      ListingStage  `json:"stage"`
	Status     ListingStatus `json:"status"`
	OwnedBy    uuid.UUID     `json:"owned_by"`
	DueDate    *time.Time    `json:"due_date,omitempty"`
	DeletedAt  *time.Time    `json:"deleted_at,omitempty"`
	DeletedBy  *uuid.UUID    `json:"deleted_by,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`

	// Local-only child links. The server derives these from foreign keys.
	TaskIDs     []uuid.UUID `json:"task_ids,omitempty"`
	ActivityIDs []uuid.UUID `json:"activity_ids,omitempty"`
	NoteIDs     []uuid.UUID `json:"note_ids,omitempty"`

	SyncMetadata
}

func (l *Listing) GetID() uuid.UUID { return l.ID }
func (l *Listing) Kind() EntityKind { return KindListing }
func (l *Listing) IsDeleted() bool  { return l.DeletedAt != nil }

// LinkChild records a child id under the matching collection. It reports
// whether anything changed.
func (l *Listing) LinkChild(kind EntityKind, id uuid.UUID) bool {
	var ids *[]uuid.UUID
	switch kind {
	case KindTask:
		ids = &l.TaskIDs
	case KindActivity:
		ids = &l.ActivityIDs
	case KindNote:
		ids = &l.NoteIDs
	default:
		return false
	}
	if slices.Contains(*ids, id) {
		return false
	}
	*ids = append(*ids, id)
	return true
}

// UnlinkChild removes a child id. It reports whether anything changed.
func (l *Listing) UnlinkChild(kind EntityKind, id uuid.UUID) bool {
	var ids *[]uuid.UUID
	switch kind {
	case KindTask:
		ids = &l.TaskIDs
	case KindActivity:
		ids = &l.ActivityIDs
	case KindNote:
		ids = &l.NoteIDs
	default:
		return false
	}
	i := slices.Index(*ids, id)
	if i < 0 {
		return false
	}
	*ids = slices.Delete(*ids, i, i+1)
	return true
}

type ListingDTO struct {
	ID         uuid.UUID  `json:"id"`
	Address    string     `json:"address"`
	City       string     `json:"city"`
	Province   string     `json:"province"`
	PostalCode string     `json:"postal_code"`
	Price      *float64   `json:"price"`
	Stage      string     `json:"stage"`
	Status     string     `json:"status"`
	OwnedBy    uuid.UUID  `json:"owned_by"`
	DueDate    *time.Time `json:"due_date"`
	DeletedAt  *time.Time `json:"deleted_at"`
	DeletedBy  *uuid.UUID `json:"deleted_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (d ListingDTO) RemoteID() uuid.UUID { return d.ID }

func (d ListingDTO) UnknownEnums() []string {
	var out []string
	if _, ok := ParseListingStage(d.Stage); !ok {
		out = append(out, "stage="+d.Stage)
	}
	if _, ok := ParseListingStatus(d.Status); !ok {
		out = append(out, "status="+d.Status)
	}
	return out
}

func NewListingFromDTO(d ListingDTO) *Listing {
	l := &Listing{ID: d.ID}
	l.Apply(d)
	return l
}

func (l *Listing) Apply(d ListingDTO) {
	l.Address = d.Address
	l.City = d.City
	l.Province = d.Province
	l.PostalCode = d.PostalCode
	l.Price = d.Price
	l.Stage, _ = ParseListingStage(d.Stage)
	l.Status, _ = ParseListingStatus(d.Status)
	l.OwnedBy = d.OwnedBy
	l.DueDate = d.DueDate
	l.DeletedAt = d.DeletedAt
	l.DeletedBy = d.DeletedBy
	l.CreatedAt = d.CreatedAt
	l.UpdatedAt = d.UpdatedAt
}

func (l *Listing) ToDTO() ListingDTO {
	return ListingDTO{
		ID:         l.ID,
		Address:    l.Address,
		City:       l.City,
		Province:   l.Province,
		PostalCode: l.PostalCode,
		Price:      l.Price,
		Stage:      string(l.Stage),
		Status:     string(l.Status),
		OwnedBy:    l.OwnedBy,
		DueDate:    l.DueDate,
		DeletedAt:  l.DeletedAt,
		DeletedBy:  l.DeletedBy,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}
