package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"testing"
	"time"

	"ijro/internal/app"
	"ijro/internal/config"
	"ijro/internal/db"
	"ijro/internal/engine"
	"ijro/internal/migrate"
	"ijro/internal/server"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("dist-1")
	eng := engine.New(conn, cfg)
	if err := app.Bootstrap(context.Background(), eng.Repo, cfg); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	handler, err := server.New(server.Config{
		Engine: eng,
		Auth: server.AuthConfig{
			JWTSecret:             testSecret,
			AllowLegacyUserHeader: true,
			Logger:                log.New(io.Discard, "", 0),
		},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (ts *testServer) doJSON(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func (ts *testServer) login(t *testing.T, pnfl string) string {
	t.Helper()
	status, body := ts.doJSON(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"pnfl": pnfl})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", pnfl, status, body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" {
		t.Fatalf("empty token")
	}
	return resp.Token
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("parse error envelope: %v: %s", err, body)
	}
	return envelope.Error.Code
}

func TestHealthIsOpen(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.doJSON(t, http.MethodGet, "/v1/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("health: status %d: %s", status, body)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.doJSON(t, http.MethodGet, "/v1/tasks", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", status, body)
	}
	if code := errorCode(t, body); code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %s", code)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", resp.StatusCode)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, app.BootstrapAdminPNFL)

	status, body := ts.doJSON(t, http.MethodPost, "/v1/orgs", adminToken, map[string]any{
		"id": "org-road", "name": "Road maintenance department",
	})
	if status != http.StatusCreated {
		t.Fatalf("create org: status %d: %s", status, body)
	}

	orgPNFL := "31111111111111"
	status, body = ts.doJSON(t, http.MethodPost, "/v1/users", adminToken, map[string]any{
		"pnfl": orgPNFL, "full_name": "Road Crew Head", "role": "org_head", "org_id": "org-road",
	})
	if status != http.StatusCreated {
		t.Fatalf("create user: status %d: %s", status, body)
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	if created.Status != "pending" {
		t.Fatalf("expected pending user, got %s", created.Status)
	}

	// first login activates
	orgToken := ts.login(t, orgPNFL)

	status, body = ts.doJSON(t, http.MethodPost, "/v1/tasks", adminToken, map[string]any{
		"title": "Patch potholes on main street", "priority": "important", "org_ids": []string{"org-road"},
	})
	if status != http.StatusCreated {
		t.Fatalf("create task: status %d: %s", status, body)
	}
	var task struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &task); err != nil {
		t.Fatal(err)
	}
	if task.Status != "new" {
		t.Fatalf("expected new task, got %s", task.Status)
	}

	status, body = ts.doJSON(t, http.MethodPost, "/v1/tasks/"+task.ID+"/accept", orgToken, nil)
	if status != http.StatusOK {
		t.Fatalf("accept: status %d: %s", status, body)
	}

	// premature close conflicts
	status, body = ts.doJSON(t, http.MethodPost, "/v1/tasks/"+task.ID+"/close", adminToken, map[string]any{})
	if status != http.StatusConflict {
		t.Fatalf("premature close: expected 409, got %d: %s", status, body)
	}
	if code := errorCode(t, body); code != "invalid_state" {
		t.Fatalf("expected invalid_state code, got %s", code)
	}

	status, body = ts.doJSON(t, http.MethodPost, "/v1/tasks/"+task.ID+"/report", orgToken, map[string]any{
		"comment": "potholes patched", "attachments": []string{"before.jpg", "after.jpg"},
	})
	if status != http.StatusOK {
		t.Fatalf("report: status %d: %s", status, body)
	}
	var reported struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &reported); err != nil {
		t.Fatal(err)
	}
	if reported.Status != "completed" {
		t.Fatalf("expected completed, got %s", reported.Status)
	}

	status, body = ts.doJSON(t, http.MethodPost, "/v1/tasks/"+task.ID+"/close", adminToken, map[string]any{"comment": "verified on site"})
	if status != http.StatusOK {
		t.Fatalf("close: status %d: %s", status, body)
	}
	var closed struct {
		Status   string  `json:"status"`
		ClosedAt *string `json:"closed_at"`
	}
	if err := json.Unmarshal(body, &closed); err != nil {
		t.Fatal(err)
	}
	if closed.Status != "closed" || closed.ClosedAt == nil {
		t.Fatalf("expected closed with timestamp: %s", body)
	}

	status, body = ts.doJSON(t, http.MethodGet, "/v1/tasks/"+task.ID+"/timeline", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("timeline: status %d: %s", status, body)
	}
	var timeline []struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(body, &timeline); err != nil {
		t.Fatal(err)
	}
	kinds := map[string]bool{}
	for _, e := range timeline {
		kinds[e.Kind] = true
	}
	for _, want := range []string{"created", "accepted", "report_submitted", "closed"} {
		if !kinds[want] {
			t.Fatalf("timeline missing %s: %s", want, body)
		}
	}

	// org user sees an unread assignment notification
	status, body = ts.doJSON(t, http.MethodGet, "/v1/notifications/unread-count", orgToken, nil)
	if status != http.StatusOK {
		t.Fatalf("unread-count: status %d: %s", status, body)
	}
	var count struct {
		Unread int `json:"unread"`
	}
	if err := json.Unmarshal(body, &count); err != nil {
		t.Fatal(err)
	}
	if count.Unread == 0 {
		t.Fatalf("expected unread notifications for org user")
	}
}

func TestForbiddenEnvelope(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, app.BootstrapAdminPNFL)

	ts.mustCreateOrg(t, adminToken, "org-a", "Org A")
	orgToken := ts.mustCreateAndLoginUser(t, adminToken, "32222222222222", "org_officer", "org-a")

	status, body := ts.doJSON(t, http.MethodPost, "/v1/tasks", orgToken, map[string]any{
		"title": "not allowed", "priority": "important", "org_ids": []string{"org-a"},
	})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", status, body)
	}
	if code := errorCode(t, body); code != "forbidden" {
		t.Fatalf("expected forbidden code, got %s", code)
	}

	// org user may not read the audit log
	status, body = ts.doJSON(t, http.MethodGet, "/v1/audit", orgToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("audit: expected 403, got %d: %s", status, body)
	}
}

func TestValidationEnvelope(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, app.BootstrapAdminPNFL)

	status, body := ts.doJSON(t, http.MethodPost, "/v1/tasks", adminToken, map[string]any{
		"title": "", "priority": "important", "org_ids": []string{},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", status, body)
	}
	if code := errorCode(t, body); code != "validation_error" {
		t.Fatalf("expected validation_error code, got %s", code)
	}

	status, body = ts.doJSON(t, http.MethodGet, "/v1/tasks/nope", adminToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", status, body)
	}
	if code := errorCode(t, body); code != "not_found" {
		t.Fatalf("expected not_found code, got %s", code)
	}
}

func TestOrgScopedVisibility(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, app.BootstrapAdminPNFL)

	ts.mustCreateOrg(t, adminToken, "org-a", "Org A")
	ts.mustCreateOrg(t, adminToken, "org-b", "Org B")
	tokenA := ts.mustCreateAndLoginUser(t, adminToken, "33333333333333", "org_head", "org-a")

	taskA := ts.mustCreateTask(t, adminToken, "For A", []string{"org-a"})
	taskB := ts.mustCreateTask(t, adminToken, "For B", []string{"org-b"})

	status, body := ts.doJSON(t, http.MethodGet, "/v1/tasks", tokenA, nil)
	if status != http.StatusOK {
		t.Fatalf("list: status %d: %s", status, body)
	}
	var tasks []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != taskA {
		t.Fatalf("org-a user should see only its task: %s", body)
	}

	status, body = ts.doJSON(t, http.MethodGet, "/v1/tasks/"+taskB, tokenA, nil)
	if status != http.StatusForbidden {
		t.Fatalf("cross-org read: expected 403, got %d: %s", status, body)
	}
}

func TestLegacyUserHeader(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/me", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-User-Id", "admin")
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("legacy header: status %d", resp.StatusCode)
	}
	var me struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatal(err)
	}
	if me.UserID != "admin" || me.Role != "admin" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.login(t, app.BootstrapAdminPNFL)

	status, body := ts.doJSON(t, http.MethodGet, "/v1/me", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status %d: %s", status, body)
	}
	var me struct {
		UserID      string   `json:"user_id"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
		TaskActions []string `json:"task_actions"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatal(err)
	}
	if me.Role != "admin" {
		t.Fatalf("expected admin role, got %s", me.Role)
	}
	if len(me.TaskActions) != 6 {
		t.Fatalf("admin should hold every task action, got %v", me.TaskActions)
	}
}

func (ts *testServer) mustCreateOrg(t *testing.T, token, id, name string) {
	t.Helper()
	status, body := ts.doJSON(t, http.MethodPost, "/v1/orgs", token, map[string]any{"id": id, "name": name})
	if status != http.StatusCreated {
		t.Fatalf("create org %s: status %d: %s", id, status, body)
	}
}

func (ts *testServer) mustCreateAndLoginUser(t *testing.T, adminToken, pnfl, role, orgID string) string {
	t.Helper()
	status, body := ts.doJSON(t, http.MethodPost, "/v1/users", adminToken, map[string]any{
		"pnfl": pnfl, "full_name": fmt.Sprintf("User %s", pnfl), "role": role, "org_id": orgID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create user %s: status %d: %s", pnfl, status, body)
	}
	return ts.login(t, pnfl)
}

func (ts *testServer) mustCreateTask(t *testing.T, token, title string, orgIDs []string) string {
	t.Helper()
	status, body := ts.doJSON(t, http.MethodPost, "/v1/tasks", token, map[string]any{
		"title": title, "priority": "important", "org_ids": orgIDs,
	})
	if status != http.StatusCreated {
		t.Fatalf("create task %s: status %d: %s", title, status, body)
	}
	var task struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &task); err != nil {
		t.Fatal(err)
	}
	return task.ID
}
