// Package engine implements the task lifecycle. Every mutating operation
// opens a single transaction, re-checks its preconditions inside it, applies
// the state change and appends the accompanying journal records, then
// commits. A failed operation leaves no partial writes behind.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ijro/internal/config"
	"ijro/internal/domain"
	"ijro/internal/journal"
	"ijro/internal/rbac"
	"ijro/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Journal journal.Writer
	Auth    rbac.Authority
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Journal: journal.Writer{DB: db},
		Auth:    rbac.New(cfg),
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	Title       string
	Description string
	Priority    domain.Priority
	Deadline    string
	OrgIDs      []string
}

func (e Engine) CreateTask(ctx context.Context, actor domain.Actor, opts TaskCreateOptions) (domain.Task, error) {
	if e.Config == nil {
		return domain.Task{}, errors.New("config not loaded")
	}
	if err := e.Auth.RequireTaskAction(actor.Role, domain.ActionCreate); err != nil {
		return domain.Task{}, err
	}
	if opts.Title == "" {
		return domain.Task{}, Validation("title is required")
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Task{}, Validation("unknown priority %s", opts.Priority)
	}
	if len(opts.OrgIDs) == 0 {
		return domain.Task{}, Validation("at least one organization is required")
	}
	if err := validateDistinct(opts.OrgIDs); err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC()
	deadline := opts.Deadline
	if deadline == "" {
		days, ok := e.Config.DeadlineDays(opts.Priority)
		if !ok {
			return domain.Task{}, Validation("priority %s has no deadline rule", opts.Priority)
		}
		deadline = now.AddDate(0, 0, days).Format(time.RFC3339)
	} else if _, err := time.Parse(time.RFC3339, deadline); err != nil {
		return domain.Task{}, Validation("deadline must be RFC 3339: %v", err)
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	t := domain.Task{
		ID:          id,
		Title:       opts.Title,
		Description: opts.Description,
		Priority:    opts.Priority,
		Deadline:    deadline,
		Status:      domain.StatusNew,
		CreatorID:   actor.UserID,
		CreatedAt:   now.Format(time.RFC3339),
		UpdatedAt:   now.Format(time.RFC3339),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	for _, orgID := range opts.OrgIDs {
		org, err := e.Repo.GetOrganizationTx(ctx, tx, orgID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Task{}, Validation("organization %s not found", orgID)
			}
			return domain.Task{}, err
		}
		if !org.Active {
			return domain.Task{}, Validation("organization %s is deactivated", orgID)
		}
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	for _, orgID := range opts.OrgIDs {
		a := domain.Assignment{
			ID:       uuid.New().String(),
			TaskID:   t.ID,
			OrgID:    orgID,
			Status:   domain.StatusNew,
			Deadline: deadline,
		}
		if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
			return domain.Task{}, fmt.Errorf("insert assignment: %w", err)
		}
		t.Assignments = append(t.Assignments, a)
		if err := e.notifyOrg(ctx, tx, orgID, t, "task_assigned", "New task assigned", t.Title); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Journal.Execution(ctx, tx, t.ID, actor.UserID, string(domain.ActionCreate), "", nil); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Timeline(ctx, tx, t.ID, domain.TimelineActorSystem, "created", fmt.Sprintf("Task created and assigned to %d organization(s)", len(opts.OrgIDs))); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, "task.create", map[string]any{
		"title": t.Title, "priority": string(t.Priority), "orgs": opts.OrgIDs,
	}, "task", t.ID); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// AcceptTask moves the actor's organization assignment from new to
// in_progress. The actor must belong to an assigned organization.
func (e Engine) AcceptTask(ctx context.Context, actor domain.Actor, taskID string) (domain.Task, error) {
	if err := e.Auth.RequireTaskAction(actor.Role, domain.ActionAccept); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Status == domain.StatusClosed {
		return domain.Task{}, InvalidState("task %s is closed", taskID)
	}
	a, err := e.assignmentFor(ctx, tx, taskID, actor)
	if err != nil {
		return domain.Task{}, err
	}
	if a.Status != domain.StatusNew {
		return domain.Task{}, InvalidState("assignment is %s, expected new", a.Status)
	}
	now := e.nowString()
	a.Status = domain.StatusInProgress
	a.AcceptedAt = &now
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return domain.Task{}, err
	}
	if err := e.refreshTaskStatus(ctx, tx, &t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Execution(ctx, tx, t.ID, actor.UserID, string(domain.ActionAccept), "", nil); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Timeline(ctx, tx, t.ID, actor.UserID, "accepted", fmt.Sprintf("Organization %s accepted the task", a.OrgID)); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, "task.accept", map[string]any{"org": a.OrgID}, "task", t.ID); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// SubmitReport marks the actor's organization assignment completed. An
// explicit accept is not required first; reporting on a fresh assignment
// stamps accepted_at as well.
func (e Engine) SubmitReport(ctx context.Context, actor domain.Actor, taskID, comment string, attachments []string) (domain.Task, error) {
	if err := e.Auth.RequireTaskAction(actor.Role, domain.ActionSubmitReport); err != nil {
		return domain.Task{}, err
	}
	if comment == "" {
		return domain.Task{}, Validation("report comment is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Status == domain.StatusClosed {
		return domain.Task{}, InvalidState("task %s is closed", taskID)
	}
	a, err := e.assignmentFor(ctx, tx, taskID, actor)
	if err != nil {
		return domain.Task{}, err
	}
	if a.Status != domain.StatusNew && a.Status != domain.StatusInProgress {
		return domain.Task{}, InvalidState("assignment is %s, expected new or in_progress", a.Status)
	}
	now := e.nowString()
	if a.AcceptedAt == nil {
		a.AcceptedAt = &now
	}
	a.Status = domain.StatusCompleted
	a.CompletedAt = &now
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return domain.Task{}, err
	}
	if err := e.refreshTaskStatus(ctx, tx, &t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Execution(ctx, tx, t.ID, actor.UserID, string(domain.ActionSubmitReport), comment, attachments); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Timeline(ctx, tx, t.ID, actor.UserID, "report_submitted", fmt.Sprintf("Organization %s submitted an execution report", a.OrgID)); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, "task.report", map[string]any{"org": a.OrgID}, "task", t.ID); err != nil {
		return domain.Task{}, err
	}
	heads, err := e.Repo.ListUsersByRoleTx(ctx, tx, domain.RoleDistrictHead)
	if err != nil {
		return domain.Task{}, err
	}
	for _, h := range heads {
		n := domain.Notification{
			UserID:      h.ID,
			Type:        "report_submitted",
			Title:       "Execution report submitted",
			Description: t.Title,
			TaskID:      &t.ID,
			OrgID:       &a.OrgID,
		}
		if err := e.Journal.Notify(ctx, tx, n); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// CloseTask closes a task. Every assignment must already be completed.
func (e Engine) CloseTask(ctx context.Context, actor domain.Actor, taskID, comment string) (domain.Task, error) {
	if err := e.Auth.RequireTaskAction(actor.Role, domain.ActionClose); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Status == domain.StatusClosed {
		return domain.Task{}, InvalidState("task %s is already closed", taskID)
	}
	for _, a := range t.Assignments {
		if a.Status != domain.StatusCompleted {
			return domain.Task{}, InvalidState("organization %s has not completed the task", a.OrgID)
		}
	}
	now := e.nowString()
	t.Status = domain.StatusClosed
	t.ClosedAt = &now
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	for i := range t.Assignments {
		t.Assignments[i].Status = domain.StatusClosed
		if err := e.Repo.UpdateAssignment(ctx, tx, t.Assignments[i]); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Journal.Execution(ctx, tx, t.ID, actor.UserID, string(domain.ActionClose), comment, nil); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Timeline(ctx, tx, t.ID, actor.UserID, "closed", "Task closed"); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, "task.close", nil, "task", t.ID); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ReassignTask adds organizations to an open task.
func (e Engine) ReassignTask(ctx context.Context, actor domain.Actor, taskID string, orgIDs []string) (domain.Task, error) {
	if err := e.Auth.RequireTaskAction(actor.Role, domain.ActionReassign); err != nil {
		return domain.Task{}, err
	}
	if len(orgIDs) == 0 {
		return domain.Task{}, Validation("at least one organization is required")
	}
	if err := validateDistinct(orgIDs); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Status == domain.StatusClosed {
		return domain.Task{}, InvalidState("task %s is closed", taskID)
	}
	for _, orgID := range orgIDs {
		org, err := e.Repo.GetOrganizationTx(ctx, tx, orgID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Task{}, Validation("organization %s not found", orgID)
			}
			return domain.Task{}, err
		}
		if !org.Active {
			return domain.Task{}, Validation("organization %s is deactivated", orgID)
		}
		if _, err := e.Repo.GetAssignmentTx(ctx, tx, taskID, orgID); err == nil {
			return domain.Task{}, Validation("organization %s is already assigned", orgID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, err
		}
	}
	for _, orgID := range orgIDs {
		a := domain.Assignment{
			ID:       uuid.New().String(),
			TaskID:   t.ID,
			OrgID:    orgID,
			Status:   domain.StatusNew,
			Deadline: t.Deadline,
		}
		if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
			return domain.Task{}, err
		}
		if err := e.notifyOrg(ctx, tx, orgID, t, "task_assigned", "New task assigned", t.Title); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.refreshTaskStatus(ctx, tx, &t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Execution(ctx, tx, t.ID, actor.UserID, string(domain.ActionReassign), "", nil); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Timeline(ctx, tx, t.ID, domain.TimelineActorSystem, "reassigned", fmt.Sprintf("Task assigned to %d more organization(s)", len(orgIDs))); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, "task.reassign", map[string]any{"orgs": orgIDs}, "task", t.ID); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// TaskUpdateOptions encapsulates allowed metadata updates. Nil means keep.
type TaskUpdateOptions struct {
	Title       *string
	Description *string
	Priority    *domain.Priority
	Deadline    *string
}

func (e Engine) UpdateTask(ctx context.Context, actor domain.Actor, taskID string, opts TaskUpdateOptions) (domain.Task, error) {
	if err := e.Auth.RequireTaskAction(actor.Role, domain.ActionUpdate); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Status == domain.StatusClosed {
		return domain.Task{}, InvalidState("task %s is closed", taskID)
	}
	changed := map[string]any{}
	if opts.Title != nil {
		if *opts.Title == "" {
			return domain.Task{}, Validation("title cannot be empty")
		}
		t.Title = *opts.Title
		changed["title"] = t.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
		changed["description"] = t.Description
	}
	if opts.Priority != nil {
		if !domain.ValidPriority(*opts.Priority) {
			return domain.Task{}, Validation("unknown priority %s", *opts.Priority)
		}
		t.Priority = *opts.Priority
		changed["priority"] = string(t.Priority)
	}
	if opts.Deadline != nil {
		if _, err := time.Parse(time.RFC3339, *opts.Deadline); err != nil {
			return domain.Task{}, Validation("deadline must be RFC 3339: %v", err)
		}
		t.Deadline = *opts.Deadline
		changed["deadline"] = t.Deadline
	}
	if len(changed) == 0 {
		return domain.Task{}, Validation("nothing to update")
	}
	t.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, "task.update", changed, "task", t.ID); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// AddComment appends a human message to the task timeline. The actor must be
// the creator, a member of an assigned organization, or hold a district-side
// task action.
func (e Engine) AddComment(ctx context.Context, actor domain.Actor, taskID, content string) error {
	if content == "" {
		return Validation("comment content is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if !e.canDiscuss(actor, t) {
		return rbac.Forbidden("user %s may not comment on task %s", actor.UserID, taskID)
	}
	if err := e.Journal.Timeline(ctx, tx, t.ID, actor.UserID, "comment", content); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) canDiscuss(actor domain.Actor, t domain.Task) bool {
	if actor.UserID == t.CreatorID {
		return true
	}
	if e.Auth.CanPerformTaskAction(actor.Role, domain.ActionCreate) ||
		e.Auth.CanPerformTaskAction(actor.Role, domain.ActionClose) {
		return true
	}
	for _, a := range t.Assignments {
		if actor.OrgID != "" && a.OrgID == actor.OrgID {
			return true
		}
	}
	return false
}

// assignmentFor resolves the actor's organization assignment, failing closed
// when the actor has no organization or the organization is not assigned.
func (e Engine) assignmentFor(ctx context.Context, tx *sql.Tx, taskID string, actor domain.Actor) (domain.Assignment, error) {
	if actor.OrgID == "" {
		return domain.Assignment{}, rbac.Forbidden("user %s has no organization", actor.UserID)
	}
	a, err := e.Repo.GetAssignmentTx(ctx, tx, taskID, actor.OrgID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Assignment{}, rbac.Forbidden("organization %s is not assigned to task %s", actor.OrgID, taskID)
	}
	return a, err
}

// refreshTaskStatus recomputes the aggregate task status from its assignment
// set inside the transaction. Closing is never derived here; only CloseTask
// sets closed.
func (e Engine) refreshTaskStatus(ctx context.Context, tx *sql.Tx, t *domain.Task) error {
	assignments, err := e.Repo.ListAssignmentsTx(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	allNew, allCompleted := true, true
	for _, a := range assignments {
		if a.Status != domain.StatusNew {
			allNew = false
		}
		if a.Status != domain.StatusCompleted {
			allCompleted = false
		}
	}
	next := domain.StatusInProgress
	switch {
	case len(assignments) == 0 || allNew:
		next = domain.StatusNew
	case allCompleted:
		next = domain.StatusCompleted
	}
	if next == t.Status {
		return nil
	}
	t.Status = next
	t.UpdatedAt = e.nowString()
	t.Assignments = assignments
	return e.Repo.UpdateTask(ctx, tx, *t)
}

func (e Engine) notifyOrg(ctx context.Context, tx *sql.Tx, orgID string, t domain.Task, typ, title, description string) error {
	users, err := e.Repo.ListActiveOrgUsersTx(ctx, tx, orgID)
	if err != nil {
		return err
	}
	for _, u := range users {
		n := domain.Notification{
			UserID:      u.ID,
			Type:        typ,
			Title:       title,
			Description: description,
			TaskID:      &t.ID,
			OrgID:       &orgID,
		}
		if err := e.Journal.Notify(ctx, tx, n); err != nil {
			return err
		}
	}
	return nil
}

func validateDistinct(ids []string) error {
	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" {
			return Validation("organization id cannot be empty")
		}
		if seen[id] {
			return Validation("organization %s listed twice", id)
		}
		seen[id] = true
	}
	return nil
}
