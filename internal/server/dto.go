package server

import (
	"time"

	"ijro/internal/domain"
)

// Request payloads

type LoginRequest struct {
	PNFL string `json:"pnfl" example:"30101900000017"`
}

type CreateTaskRequest struct {
	ID          *string  `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Priority    string   `json:"priority" enum:"urgent_important,important,not_urgent,routine"`
	Deadline    *string  `json:"deadline,omitempty" format:"date-time"`
	OrgIDs      []string `json:"org_ids"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"urgent_important,important,not_urgent,routine"`
	Deadline    *string `json:"deadline,omitempty" format:"date-time"`
}

type SubmitReportRequest struct {
	Comment     string   `json:"comment"`
	Attachments []string `json:"attachments,omitempty"`
}

type CloseTaskRequest struct {
	Comment *string `json:"comment,omitempty"`
}

type ReassignTaskRequest struct {
	OrgIDs []string `json:"org_ids"`
}

type CommentRequest struct {
	Content string `json:"content"`
}

type CreateUserRequest struct {
	ID       *string `json:"id,omitempty"`
	PNFL     string  `json:"pnfl"`
	FullName string  `json:"full_name"`
	Role     string  `json:"role" enum:"admin,district_head,district_officer,org_head,org_officer"`
	OrgID    *string `json:"org_id,omitempty"`
}

type CreateOrganizationRequest struct {
	ID   *string `json:"id,omitempty"`
	Name string  `json:"name"`
}

type ImportConfigRequest struct {
	YAML string `json:"yaml"`
}

// Response payloads

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type AssignmentResponse struct {
	ID          string  `json:"id"`
	OrgID       string  `json:"org_id"`
	Status      string  `json:"status" enum:"new,in_progress,completed,closed,sent_back,not_completed"`
	Deadline    string  `json:"deadline" format:"date-time"`
	AcceptedAt  *string `json:"accepted_at,omitempty" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

type TaskResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	Priority    string               `json:"priority" enum:"urgent_important,important,not_urgent,routine"`
	Deadline    string               `json:"deadline" format:"date-time"`
	Status      string               `json:"status" enum:"new,in_progress,completed,closed,sent_back,not_completed"`
	Overdue     bool                 `json:"overdue"`
	CreatorID   string               `json:"creator_id"`
	CreatedAt   string               `json:"created_at" format:"date-time"`
	UpdatedAt   string               `json:"updated_at" format:"date-time"`
	ClosedAt    *string              `json:"closed_at,omitempty" format:"date-time"`
	Assignments []AssignmentResponse `json:"assignments"`
}

type UserResponse struct {
	ID          string  `json:"id"`
	PNFL        string  `json:"pnfl"`
	FullName    string  `json:"full_name"`
	Role        string  `json:"role" enum:"admin,district_head,district_officer,org_head,org_officer"`
	OrgID       *string `json:"org_id,omitempty"`
	Status      string  `json:"status" enum:"pending,active,blocked,archived"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	ActivatedAt *string `json:"activated_at,omitempty" format:"date-time"`
}

type OrganizationResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ExecutionRecordResponse struct {
	ID          string   `json:"id"`
	ActorID     string   `json:"actor_id"`
	Action      string   `json:"action"`
	Comment     string   `json:"comment,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	TS          string   `json:"ts" format:"date-time"`
}

type TimelineEntryResponse struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	TS      string `json:"ts" format:"date-time"`
}

type AuditEntryResponse struct {
	ID         int64  `json:"id"`
	ActorID    string `json:"actor_id"`
	Action     string `json:"action"`
	Details    string `json:"details,omitempty"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id,omitempty"`
	TS         string `json:"ts" format:"date-time"`
}

type NotificationResponse struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	TaskID      *string `json:"task_id,omitempty"`
	OrgID       *string `json:"org_id,omitempty"`
	Read        bool    `json:"read"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type WhoAmIResponse struct {
	UserID      string   `json:"user_id"`
	Role        string   `json:"role"`
	OrgID       string   `json:"org_id,omitempty"`
	Permissions []string `json:"permissions"`
	TaskActions []string `json:"task_actions"`
}

// Mapping helpers

func taskResponse(t domain.Task, now time.Time) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Deadline:    t.Deadline,
		Status:      string(t.Status),
		Overdue:     taskOverdue(t, now),
		CreatorID:   t.CreatorID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ClosedAt:    t.ClosedAt,
		Assignments: []AssignmentResponse{},
	}
	for _, a := range t.Assignments {
		resp.Assignments = append(resp.Assignments, AssignmentResponse{
			ID:          a.ID,
			OrgID:       a.OrgID,
			Status:      string(a.Status),
			Deadline:    a.Deadline,
			AcceptedAt:  a.AcceptedAt,
			CompletedAt: a.CompletedAt,
		})
	}
	return resp
}

func taskOverdue(t domain.Task, now time.Time) bool {
	if t.Status == domain.StatusCompleted || t.Status == domain.StatusClosed {
		return false
	}
	deadline, err := time.Parse(time.RFC3339, t.Deadline)
	if err != nil {
		return false
	}
	return now.After(deadline)
}

func mapTasks(items []domain.Task, now time.Time) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t, now))
	}
	return res
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		PNFL:        u.PNFL,
		FullName:    u.FullName,
		Role:        string(u.Role),
		OrgID:       u.OrgID,
		Status:      string(u.Status),
		CreatedAt:   u.CreatedAt,
		ActivatedAt: u.ActivatedAt,
	}
}

func mapUsers(items []domain.User) []UserResponse {
	res := make([]UserResponse, 0, len(items))
	for _, u := range items {
		res = append(res, userResponse(u))
	}
	return res
}

func orgResponse(o domain.Organization) OrganizationResponse {
	return OrganizationResponse{ID: o.ID, Name: o.Name, Active: o.Active, CreatedAt: o.CreatedAt}
}

func mapOrgs(items []domain.Organization) []OrganizationResponse {
	res := make([]OrganizationResponse, 0, len(items))
	for _, o := range items {
		res = append(res, orgResponse(o))
	}
	return res
}

func mapExecutionRecords(items []domain.ExecutionRecord) []ExecutionRecordResponse {
	res := make([]ExecutionRecordResponse, 0, len(items))
	for _, rec := range items {
		res = append(res, ExecutionRecordResponse{
			ID:          rec.ID,
			ActorID:     rec.ActorID,
			Action:      rec.Action,
			Comment:     rec.Comment,
			Attachments: rec.Attachments,
			TS:          rec.TS,
		})
	}
	return res
}

func mapTimeline(items []domain.TimelineEntry) []TimelineEntryResponse {
	res := make([]TimelineEntryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, TimelineEntryResponse{
			ID:      e.ID,
			ActorID: e.ActorID,
			Kind:    e.Kind,
			Content: e.Content,
			TS:      e.TS,
		})
	}
	return res
}

func mapAuditEntries(items []domain.AuditEntry) []AuditEntryResponse {
	res := make([]AuditEntryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, AuditEntryResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			Details:    e.Details,
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			TS:         e.TS,
		})
	}
	return res
}

func mapNotifications(items []domain.Notification) []NotificationResponse {
	res := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		res = append(res, NotificationResponse{
			ID:          n.ID,
			Type:        n.Type,
			Title:       n.Title,
			Description: n.Description,
			TaskID:      n.TaskID,
			OrgID:       n.OrgID,
			Read:        n.Read,
			CreatedAt:   n.CreatedAt,
		})
	}
	return res
}

func nonNilSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
