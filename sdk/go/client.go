package ijrosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Ijro HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Assignment is a per-organization slice of a task.
type Assignment struct {
	ID          string  `json:"id"`
	OrgID       string  `json:"org_id"`
	Status      string  `json:"status"`
	Deadline    string  `json:"deadline"`
	AcceptedAt  *string `json:"accepted_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// Task represents the API task model.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    string       `json:"priority"`
	Deadline    string       `json:"deadline"`
	Status      string       `json:"status"`
	Overdue     bool         `json:"overdue"`
	CreatorID   string       `json:"creator_id"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
	ClosedAt    *string      `json:"closed_at,omitempty"`
	Assignments []Assignment `json:"assignments"`
}

// User represents an account.
type User struct {
	ID       string  `json:"id"`
	PNFL     string  `json:"pnfl"`
	FullName string  `json:"full_name"`
	Role     string  `json:"role"`
	OrgID    *string `json:"org_id,omitempty"`
	Status   string  `json:"status"`
}

// TimelineEntry is one row of a task's activity feed.
type TimelineEntry struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	TS      string `json:"ts"`
}

// LoginResult carries the bearer token and resolved user.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login authenticates by PNFL and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, pnfl string) (LoginResult, error) {
	var resp LoginResult
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"pnfl": pnfl}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// CreateTask creates a task assigned to the given organizations.
func (c *Client) CreateTask(ctx context.Context, title, priority string, orgIDs []string) (Task, error) {
	body := map[string]any{
		"title":    title,
		"priority": priority,
		"org_ids":  orgIDs,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID), nil, &resp)
	return resp, err
}

// ListTasks returns tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string, limit int) ([]Task, error) {
	endpoint := "tasks"
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AcceptTask accepts the task for the caller's organization.
func (c *Client) AcceptTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/accept", nil, &resp)
	return resp, err
}

// SubmitReport completes the caller organization's assignment.
func (c *Client) SubmitReport(ctx context.Context, taskID, comment string, attachments []string) (Task, error) {
	body := map[string]any{
		"comment":     comment,
		"attachments": attachments,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/report", body, &resp)
	return resp, err
}

// CloseTask closes a fully completed task.
func (c *Client) CloseTask(ctx context.Context, taskID, comment string) (Task, error) {
	body := map[string]any{}
	if comment != "" {
		body["comment"] = comment
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/close", body, &resp)
	return resp, err
}

// ReassignTask adds organizations to an open task.
func (c *Client) ReassignTask(ctx context.Context, taskID string, orgIDs []string) (Task, error) {
	body := map[string]any{"org_ids": orgIDs}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/reassign", body, &resp)
	return resp, err
}

// Timeline returns a task's activity feed.
func (c *Client) Timeline(ctx context.Context, taskID string) ([]TimelineEntry, error) {
	var resp []TimelineEntry
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID)+"/timeline", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	fullURL := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
