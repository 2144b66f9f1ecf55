package domain

// Role is one of the fixed district org-chart roles. The set is closed;
// roles are never created or destroyed at runtime.
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleDistrictHead    Role = "district_head"
	RoleDistrictOfficer Role = "district_officer"
	RoleOrgHead         Role = "org_head"
	RoleOrgOfficer      Role = "org_officer"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleDistrictHead, RoleDistrictOfficer, RoleOrgHead, RoleOrgOfficer}
}

func ValidRole(r Role) bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// TaskAction is the fixed action vocabulary gated by role.
type TaskAction string

const (
	ActionCreate       TaskAction = "create"
	ActionUpdate       TaskAction = "update"
	ActionClose        TaskAction = "close"
	ActionReassign     TaskAction = "reassign"
	ActionAccept       TaskAction = "accept"
	ActionSubmitReport TaskAction = "submit_report"
)

func TaskActions() []TaskAction {
	return []TaskAction{ActionCreate, ActionUpdate, ActionClose, ActionReassign, ActionAccept, ActionSubmitReport}
}

func ValidTaskAction(a TaskAction) bool {
	for _, known := range TaskActions() {
		if a == known {
			return true
		}
	}
	return false
}

// TaskStatus applies to both tasks and their per-organization assignments.
// sent_back and not_completed are reserved vocabulary: stored data using them
// round-trips, but no engine operation produces them.
type TaskStatus string

const (
	StatusNew          TaskStatus = "new"
	StatusInProgress   TaskStatus = "in_progress"
	StatusCompleted    TaskStatus = "completed"
	StatusClosed       TaskStatus = "closed"
	StatusSentBack     TaskStatus = "sent_back"
	StatusNotCompleted TaskStatus = "not_completed"
)

func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case StatusNew, StatusInProgress, StatusCompleted, StatusClosed, StatusSentBack, StatusNotCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityUrgentImportant Priority = "urgent_important"
	PriorityImportant       Priority = "important"
	PriorityNotUrgent       Priority = "not_urgent"
	PriorityRoutine         Priority = "routine"
)

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityUrgentImportant, PriorityImportant, PriorityNotUrgent, PriorityRoutine:
		return true
	}
	return false
}

type UserStatus string

const (
	UserPending  UserStatus = "pending"
	UserActive   UserStatus = "active"
	UserBlocked  UserStatus = "blocked"
	UserArchived UserStatus = "archived"
)

// Actor is the authenticated identity an operation runs as, resolved by the
// web layer from a session token.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	OrgID  string `json:"org_id,omitempty"`
}

type User struct {
	ID          string     `json:"id"`
	PNFL        string     `json:"pnfl"`
	FullName    string     `json:"full_name"`
	Role        Role       `json:"role"`
	OrgID       *string    `json:"org_id,omitempty"`
	Status      UserStatus `json:"status" enum:"pending,active,blocked,archived"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	ActivatedAt *string    `json:"activated_at,omitempty" format:"date-time"`
}

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority" enum:"urgent_important,important,not_urgent,routine"`
	Deadline    string     `json:"deadline" format:"date-time"`
	Status      TaskStatus `json:"status" enum:"new,in_progress,completed,closed,sent_back,not_completed"`
	CreatorID   string     `json:"creator_id"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
	ClosedAt    *string    `json:"closed_at,omitempty" format:"date-time"`

	Assignments []Assignment `json:"assignments,omitempty"`
}

// Assignment is the (task, organization) pair that actually moves through the
// lifecycle; the parent task status is derived from its assignments.
type Assignment struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	OrgID       string     `json:"org_id"`
	Status      TaskStatus `json:"status" enum:"new,in_progress,completed,closed,sent_back,not_completed"`
	Deadline    string     `json:"deadline" format:"date-time"`
	AcceptedAt  *string    `json:"accepted_at,omitempty" format:"date-time"`
	CompletedAt *string    `json:"completed_at,omitempty" format:"date-time"`
}

// ExecutionRecord is an immutable per-task log entry written on every
// lifecycle transition.
type ExecutionRecord struct {
	ID          string   `json:"id"`
	TaskID      string   `json:"task_id"`
	ActorID     string   `json:"actor_id"`
	Action      string   `json:"action"`
	Comment     string   `json:"comment,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	TS          string   `json:"ts" format:"date-time"`
}

// TimelineEntry is the per-task activity feed: system transitions plus human
// messages.
type TimelineEntry struct {
	ID      string `json:"id"`
	TaskID  string `json:"task_id"`
	ActorID string `json:"actor_id"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	TS      string `json:"ts" format:"date-time"`
}

// TimelineActorSystem marks system-generated timeline entries.
const TimelineActorSystem = "system"

// AuditEntry is the system-wide administrative log, distinct from the
// per-task timeline.
type AuditEntry struct {
	ID         int64  `json:"id"`
	ActorID    string `json:"actor_id"`
	Action     string `json:"action"`
	Details    string `json:"details,omitempty"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id,omitempty"`
	TS         string `json:"ts" format:"date-time"`
}

type Notification struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	TaskID      *string `json:"task_id,omitempty"`
	OrgID       *string `json:"org_id,omitempty"`
	Read        bool    `json:"read"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}
