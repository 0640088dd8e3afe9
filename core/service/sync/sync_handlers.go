package syncsvc

import (
	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
)

// =============================================================================
// Per-kind handlers
// =============================================================================

type (
	TaskHandler             = EntityHandler[*domain.Task, domain.TaskDTO]
	ActivityHandler         = EntityHandler[*domain.Activity, domain.ActivityDTO]
	ListingHandler          = EntityHandler[*domain.Listing, domain.ListingDTO]
	NoteHandler             = EntityHandler[*domain.Note, domain.NoteDTO]
	UserHandler             = EntityHandler[*domain.User, domain.UserDTO]
	TaskAssigneeHandler     = EntityHandler[*domain.TaskAssignee, domain.TaskAssigneeDTO]
	ActivityAssigneeHandler = EntityHandler[*domain.ActivityAssignee, domain.ActivityAssigneeDTO]
)

func NewTaskHandler(deps HandlerDeps) *TaskHandler {
	return NewEntityHandler(EntityConfig[*domain.Task, domain.TaskDTO]{
		Kind:   domain.KindTask,
		New:    domain.NewTaskFromDTO,
		Linker: ListingChildLinker{},
	}, deps)
}

func NewActivityHandler(deps HandlerDeps) *ActivityHandler {
	return NewEntityHandler(EntityConfig[*domain.Activity, domain.ActivityDTO]{
		Kind:   domain.KindActivity,
		New:    domain.NewActivityFromDTO,
		Linker: ListingChildLinker{},
	}, deps)
}

func NewListingHandler(deps HandlerDeps) *ListingHandler {
	return NewEntityHandler(EntityConfig[*domain.Listing, domain.ListingDTO]{
		Kind: domain.KindListing,
		New:  domain.NewListingFromDTO,
	}, deps)
}

// NewNoteHandler flags notes whose server copy moved while local edits
// were unsent.
func NewNoteHandler(deps HandlerDeps) *NoteHandler {
	return NewEntityHandler(EntityConfig[*domain.Note, domain.NoteDTO]{
		Kind:   domain.KindNote,
		New:    domain.NewNoteFromDTO,
		Linker: ListingChildLinker{},
		OnLocalAuthoritative: func(n *domain.Note, dto domain.NoteDTO) {
			if n.Content != dto.Content || !dto.UpdatedAt.Equal(n.UpdatedAt) {
				n.HasRemoteChangeWhilePending = true
			}
		},
	}, deps)
}

func NewUserHandler(deps HandlerDeps) *UserHandler {
	return NewEntityHandler(EntityConfig[*domain.User, domain.UserDTO]{
		Kind: domain.KindUser,
		New:  domain.NewUserFromDTO,
	}, deps)
}

func NewTaskAssigneeHandler(deps HandlerDeps) *TaskAssigneeHandler {
	return NewEntityHandler(EntityConfig[*domain.TaskAssignee, domain.TaskAssigneeDTO]{
		Kind:   domain.KindTaskAssignee,
		New:    domain.NewTaskAssigneeFromDTO,
		Linker: AssigneeLinker{ParentKind: domain.KindTask},
	}, deps)
}

func NewActivityAssigneeHandler(deps HandlerDeps) *ActivityAssigneeHandler {
	return NewEntityHandler(EntityConfig[*domain.ActivityAssignee, domain.ActivityAssigneeDTO]{
		Kind:   domain.KindActivityAssignee,
		New:    domain.NewActivityAssigneeFromDTO,
		Linker: AssigneeLinker{ParentKind: domain.KindActivity},
	}, deps)
}

// DefaultSyncers returns one handler per kind in domain.SyncOrder, all
// sharing one resolver.
func DefaultSyncers(deps HandlerDeps) []EntitySyncer {
	if deps.Resolver == nil {
		deps.Resolver = NewConflictResolver()
	}
	return []EntitySyncer{
		NewUserHandler(deps),
		NewListingHandler(deps),
		NewTaskHandler(deps),
		NewActivityHandler(deps),
		NewNoteHandler(deps),
		NewTaskAssigneeHandler(deps),
		NewActivityAssigneeHandler(deps),
	}
}
