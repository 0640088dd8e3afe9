package syncsvc

import (
	"context"
	"fmt"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"

	"github.com/google/uuid"
)

// =============================================================================
// Relationship linkers
// =============================================================================
//
// Linkers keep local-only parent/child collections in step with foreign
// keys. A missing parent is not an error: the manager's reconciliation pass
// links orphans once the parent arrives.

type RelationshipLinker interface {
	// Link attaches child under parentID and reports whether anything changed.
	Link(ctx context.Context, child domain.SyncableRecord, parentID uuid.UUID, store out.LocalStore) (bool, error)
	// Unlink detaches the relationship identified by key. The key is taken
	// before the child's fields change, so it names what was linked.
	Unlink(ctx context.Context, child domain.SyncableRecord, key LinkKey, store out.LocalStore) (bool, error)
}

// LinkKey identifies one mirrored relationship. Member is the id the parent
// stores for join rows (the assigned user); it is zero for plain children.
type LinkKey struct {
	Parent uuid.UUID
	Member uuid.UUID
}

// parented is implemented by records with a foreign key to a parent.
type parented interface {
	ParentID() (uuid.UUID, bool)
}

func linkKeyOf(rec domain.SyncableRecord) (LinkKey, bool) {
	p, ok := rec.(parented)
	if !ok {
		return LinkKey{}, false
	}
	parent, ok := p.ParentID()
	if !ok {
		return LinkKey{}, false
	}
	key := LinkKey{Parent: parent}
	if row, ok := rec.(assigneeRow); ok {
		key.Member = row.AssigneeUserID()
	}
	return key, true
}

// NoopLinker is used by kinds without a parent.
type NoopLinker struct{}

func (NoopLinker) Link(context.Context, domain.SyncableRecord, uuid.UUID, out.LocalStore) (bool, error) {
	return false, nil
}

func (NoopLinker) Unlink(context.Context, domain.SyncableRecord, LinkKey, out.LocalStore) (bool, error) {
	return false, nil
}

// ListingChildLinker attaches tasks, activities and notes to their listing.
type ListingChildLinker struct{}

func (ListingChildLinker) Link(ctx context.Context, child domain.SyncableRecord, parentID uuid.UUID, store out.LocalStore) (bool, error) {
	listing, err := fetchListing(ctx, store, parentID)
	if err != nil || listing == nil {
		return false, err
	}
	return listing.LinkChild(child.Kind(), child.GetID()), nil
}

func (ListingChildLinker) Unlink(ctx context.Context, child domain.SyncableRecord, key LinkKey, store out.LocalStore) (bool, error) {
	listing, err := fetchListing(ctx, store, key.Parent)
	if err != nil || listing == nil {
		return false, err
	}
	return listing.UnlinkChild(child.Kind(), child.GetID()), nil
}

func fetchListing(ctx context.Context, store out.LocalStore, id uuid.UUID) (*domain.Listing, error) {
	rec, err := store.FetchByID(ctx, domain.KindListing, id)
	if err != nil {
		return nil, fmt.Errorf("fetch parent listing %s: %w", id, err)
	}
	if rec == nil {
		return nil, nil
	}
	listing, ok := rec.(*domain.Listing)
	if !ok {
		panic(fmt.Sprintf("store returned %T for listing %s", rec, id))
	}
	return listing, nil
}

// AssigneeLinker mirrors assignee join rows onto the parent task or activity.
type AssigneeLinker struct {
	ParentKind domain.EntityKind
}

type assigneeRow interface {
	AssigneeUserID() uuid.UUID
}

type assignable interface {
	AddAssignee(userID uuid.UUID) bool
	RemoveAssignee(userID uuid.UUID) bool
}

func (l AssigneeLinker) Link(ctx context.Context, child domain.SyncableRecord, parentID uuid.UUID, store out.LocalStore) (bool, error) {
	parent, row, err := l.resolve(ctx, child, parentID, store)
	if err != nil || parent == nil {
		return false, err
	}
	return parent.AddAssignee(row.AssigneeUserID()), nil
}

func (l AssigneeLinker) Unlink(ctx context.Context, child domain.SyncableRecord, key LinkKey, store out.LocalStore) (bool, error) {
	parent, _, err := l.resolve(ctx, child, key.Parent, store)
	if err != nil || parent == nil {
		return false, err
	}
	return parent.RemoveAssignee(key.Member), nil
}

func (l AssigneeLinker) resolve(ctx context.Context, child domain.SyncableRecord, parentID uuid.UUID, store out.LocalStore) (assignable, assigneeRow, error) {
	row, ok := child.(assigneeRow)
	if !ok {
		panic(fmt.Sprintf("AssigneeLinker given %T", child))
	}
	rec, err := store.FetchByID(ctx, l.ParentKind, parentID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch parent %s %s: %w", l.ParentKind, parentID, err)
	}
	if rec == nil {
		return nil, row, nil
	}
	parent, ok := rec.(assignable)
	if !ok {
		panic(fmt.Sprintf("%s %s cannot hold assignees", l.ParentKind, parentID))
	}
	return parent, row, nil
}
