package domain

// =============================================================================
// Remote enum values
// =============================================================================
//
// The server may ship values this build does not know yet. Every Parse
// function falls back to a documented default and reports whether the raw
// value was recognised so callers can log the drift.

type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

var taskStatuses = []TaskStatus{TaskStatusOpen, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled}

// ParseTaskStatus falls back to open.
func ParseTaskStatus(raw string) (TaskStatus, bool) {
	return parseEnum(raw, taskStatuses, TaskStatusOpen)
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ParsePriority falls back to medium.
func ParsePriority(raw string) (Priority, bool) {
	return parseEnum(raw, priorities, PriorityMedium)
}

type ActivityType string

const (
	ActivityCall    ActivityType = "call"
	ActivityEmail   ActivityType = "email"
	ActivityMeeting ActivityType = "meeting"
	ActivityShowing ActivityType = "showing"
	ActivityOther   ActivityType = "other"
)

var activityTypes = []ActivityType{ActivityCall, ActivityEmail, ActivityMeeting, ActivityShowing, ActivityOther}

// ParseActivityType falls back to other.
func ParseActivityType(raw string) (ActivityType, bool) {
	return parseEnum(raw, activityTypes, ActivityOther)
}

type ListingStage string

const (
	ListingStagePending   ListingStage = "pending"
	ListingStageWorkingOn ListingStage = "working_on"
	ListingStageLive      ListingStage = "live"
	ListingStageSold      ListingStage = "sold"
	ListingStageReList    ListingStage = "re_list"
	ListingStageDone      ListingStage = "done"
)

var listingStages = []ListingStage{
	ListingStagePending, ListingStageWorkingOn, ListingStageLive,
	ListingStageSold, ListingStageReList, ListingStageDone,
}

// ParseListingStage falls back to pending.
func ParseListingStage(raw string) (ListingStage, bool) {
	return parseEnum(raw, listingStages, ListingStagePending)
}

type ListingStatus string

const (
	ListingStatusDraft    ListingStatus = "draft"
	ListingStatusActive   ListingStatus = "active"
	ListingStatusArchived ListingStatus = "archived"
)

var listingStatuses = []ListingStatus{ListingStatusDraft, ListingStatusActive, ListingStatusArchived}

// ParseListingStatus falls back to draft.
func ParseListingStatus(raw string) (ListingStatus, bool) {
	return parseEnum(raw, listingStatuses, ListingStatusDraft)
}

type UserType string

const (
	UserTypeRealtor   UserType = "realtor"
	UserTypeAdmin     UserType = "admin"
	UserTypeMarketing UserType = "marketing"
	UserTypeExec      UserType = "exec"
	UserTypeOperator  UserType = "operator"
)

var userTypes = []UserType{UserTypeRealtor, UserTypeAdmin, UserTypeMarketing, UserTypeExec, UserTypeOperator}

// ParseUserType falls back to realtor.
func ParseUserType(raw string) (UserType, bool) {
	return parseEnum(raw, userTypes, UserTypeRealtor)
}

func parseEnum[E ~string](raw string, known []E, fallback E) (E, bool) {
	for _, v := range known {
		if string(v) == raw {
			return v, true
		}
	}
	return fallback, false
}
