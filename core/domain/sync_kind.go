package domain

import "fmt"

// EntityKind identifies a syncable entity type. Each kind maps to exactly
// one remote table.
type EntityKind string

const (
	KindUser             EntityKind = "user"
	KindListing          EntityKind = "listing"
	KindTask             EntityKind = "task"
	KindActivity         EntityKind = "activity"
	KindNote             EntityKind = "note"
	KindTaskAssignee     EntityKind = "task_assignee"
	KindActivityAssignee EntityKind = "activity_assignee"
)

// SyncOrder lists kinds parents-first so foreign keys resolve on both
// upload and download.
var SyncOrder = []EntityKind{
	KindUser,
	KindListing,
	KindTask,
	KindActivity,
	KindNote,
	KindTaskAssignee,
	KindActivityAssignee,
}

var kindTables = map[EntityKind]string{
	KindUser:             "users",
	KindListing:          "listings",
	KindTask:             "tasks",
	KindActivity:         "activities",
	KindNote:             "notes",
	KindTaskAssignee:     "task_assignees",
	KindActivityAssignee: "activity_assignees",
}

// Table returns the remote table name for the kind.
func (k EntityKind) Table() string {
	return kindTables[k]
}

func (k EntityKind) Valid() bool {
	_, ok := kindTables[k]
	return ok
}

// KindForTable resolves a remote table name back to its kind.
func KindForTable(table string) (EntityKind, bool) {
	for k, t := range kindTables {
		if t == table {
			return k, true
		}
	}
	return "", false
}

// NewRecord returns an empty record of the given kind, used when decoding
// persisted blobs.
func NewRecord(kind EntityKind) (SyncableRecord, error) {
	switch kind {
	case KindUser:
		return &User{}, nil
	case KindListing:
		return &Listing{}, nil
	case KindTask:
		return &Task{}, nil
	case KindActivity:
		return &Activity{}, nil
	case KindNote:
		return &Note{}, nil
	case KindTaskAssignee:
		return &TaskAssignee{}, nil
	case KindActivityAssignee:
		return &ActivityAssignee{}, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", string(kind))
	}
}
