package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ijro/internal/config"
	"ijro/internal/db"
	"ijro/internal/domain"
	"ijro/internal/engine"
	"ijro/internal/migrate"
	"ijro/internal/rbac"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
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
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng.Journal.Now = eng.Now
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) seedOrg(t *testing.T, id string) {
	t.Helper()
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	o := domain.Organization{ID: id, Name: "Org " + id, Active: true, CreatedAt: "2024-01-01T00:00:00Z"}
	if err := env.Engine.Repo.InsertOrganization(env.Ctx, tx, o); err != nil {
		t.Fatalf("seed org %s: %v", id, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func (env testEnv) seedUser(t *testing.T, id string, role domain.Role, orgID string) domain.Actor {
	t.Helper()
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	activated := "2024-01-01T00:00:00Z"
	u := domain.User{
		ID:          id,
		PNFL:        pnflFor(id),
		FullName:    "User " + id,
		Role:        role,
		Status:      domain.UserActive,
		CreatedAt:   activated,
		ActivatedAt: &activated,
	}
	if orgID != "" {
		u.OrgID = &orgID
	}
	if err := env.Engine.Repo.InsertUser(env.Ctx, tx, u); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return domain.Actor{UserID: id, Role: role, OrgID: orgID}
}

// pnflFor builds a deterministic 14-digit number per user id.
func pnflFor(id string) string {
	sum := 0
	for _, c := range id {
		sum += int(c)
	}
	digits := []byte("30000000000000")
	for i := len(digits) - 1; i > 0 && sum > 0; i-- {
		digits[i] = byte('0' + sum%10)
		sum /= 10
	}
	return string(digits)
}

func (env testEnv) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, query, args...).Scan(&n); err != nil {
		t.Fatalf("count query: %v", err)
	}
	return n
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	env.seedOrg(t, "org-b")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")
	actorA := env.seedUser(t, "ua", domain.RoleOrgHead, "org-a")
	actorB := env.seedUser(t, "ub", domain.RoleOrgOfficer, "org-b")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "Clear irrigation canals",
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-a", "org-b"},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != domain.StatusNew {
		t.Fatalf("expected new, got %s", task.Status)
	}
	if len(task.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(task.Assignments))
	}

	task, err = env.Engine.AcceptTask(env.Ctx, actorA, task.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if task.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress after accept, got %s", task.Status)
	}

	task, err = env.Engine.SubmitReport(env.Ctx, actorA, task.ID, "canals cleared", []string{"photo.jpg"})
	if err != nil {
		t.Fatalf("report A: %v", err)
	}
	if task.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress while org-b pending, got %s", task.Status)
	}

	// close must fail while org-b has not completed
	if _, err := env.Engine.CloseTask(env.Ctx, head, task.ID, ""); err == nil {
		t.Fatalf("expected close to fail with pending assignment")
	}

	task, err = env.Engine.SubmitReport(env.Ctx, actorB, task.ID, "done on our side", nil)
	if err != nil {
		t.Fatalf("report B: %v", err)
	}
	if task.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}

	task, err = env.Engine.CloseTask(env.Ctx, head, task.ID, "verified")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if task.Status != domain.StatusClosed || task.ClosedAt == nil {
		t.Fatalf("expected closed with timestamp, got %s", task.Status)
	}
	for _, a := range task.Assignments {
		if a.Status != domain.StatusClosed {
			t.Fatalf("assignment %s not closed with task: %s", a.OrgID, a.Status)
		}
	}

	// create + accept + report + report + close
	if n := env.countRows(t, `SELECT count(*) FROM execution_records WHERE task_id=?`, task.ID); n != 5 {
		t.Fatalf("expected 5 execution records, got %d", n)
	}
	if n := env.countRows(t, `SELECT count(*) FROM timeline_entries WHERE task_id=?`, task.ID); n != 5 {
		t.Fatalf("expected 5 timeline entries, got %d", n)
	}
	if n := env.countRows(t, `SELECT count(*) FROM audit_log WHERE target_id=?`, task.ID); n != 5 {
		t.Fatalf("expected 5 audit entries, got %d", n)
	}
}

func TestCloseFailureLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")
	env.seedUser(t, "ua", domain.RoleOrgHead, "org-a")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "Unfinished",
		Priority: domain.PriorityRoutine,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	before := env.countRows(t, `SELECT count(*) FROM execution_records WHERE task_id=?`, task.ID)

	_, err = env.Engine.CloseTask(env.Ctx, head, task.ID, "")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusNew || got.ClosedAt != nil {
		t.Fatalf("failed close mutated task: %s", got.Status)
	}
	after := env.countRows(t, `SELECT count(*) FROM execution_records WHERE task_id=?`, task.ID)
	if before != after {
		t.Fatalf("failed close appended records: %d -> %d", before, after)
	}
}

func TestWrongOrgForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	env.seedOrg(t, "org-x")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")
	outsider := env.seedUser(t, "ux", domain.RoleOrgHead, "org-x")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "For org-a only",
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	before := env.countRows(t, `SELECT count(*) FROM execution_records WHERE task_id=?`, task.ID)

	_, err = env.Engine.AcceptTask(env.Ctx, outsider, task.ID)
	var fe rbac.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	_, err = env.Engine.SubmitReport(env.Ctx, outsider, task.ID, "not ours", nil)
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError on report, got %v", err)
	}
	after := env.countRows(t, `SELECT count(*) FROM execution_records WHERE task_id=?`, task.ID)
	if before != after {
		t.Fatalf("forbidden attempt appended records")
	}
}

func TestRoleGates(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")
	orgHead := env.seedUser(t, "ua", domain.RoleOrgHead, "org-a")

	// org_head may not create tasks
	_, err := env.Engine.CreateTask(env.Ctx, orgHead, engine.TaskCreateOptions{
		Title:    "nope",
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-a"},
	})
	var fe rbac.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError for org_head create, got %v", err)
	}

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "real",
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitReport(env.Ctx, orgHead, task.ID, "done", nil); err != nil {
		t.Fatal(err)
	}
	// org_head may not close even a fully completed task
	_, err = env.Engine.CloseTask(env.Ctx, orgHead, task.ID, "")
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError for org_head close, got %v", err)
	}
}

func TestAcceptTwiceInvalid(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")
	actorA := env.seedUser(t, "ua", domain.RoleOrgHead, "org-a")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "once",
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AcceptTask(env.Ctx, actorA, task.ID); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.AcceptTask(env.Ctx, actorA, task.ID)
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError on second accept, got %v", err)
	}
}

func TestReportWithoutAcceptStampsAcceptance(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")
	actorA := env.seedUser(t, "ua", domain.RoleOrgOfficer, "org-a")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "direct report",
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.SubmitReport(env.Ctx, actorA, task.ID, "done immediately", nil)
	if err != nil {
		t.Fatal(err)
	}
	a := task.Assignments[0]
	if a.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", a.Status)
	}
	if a.AcceptedAt == nil || a.CompletedAt == nil {
		t.Fatalf("expected both accepted_at and completed_at stamped")
	}
}

func TestDeadlineDefaultFromPriority(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "urgent",
		Priority: domain.PriorityUrgentImportant,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.Deadline != "2024-01-02T00:00:00Z" {
		t.Fatalf("expected next-day deadline, got %s", task.Deadline)
	}

	explicit := "2024-02-15T00:00:00Z"
	task, err = env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "explicit",
		Priority: domain.PriorityUrgentImportant,
		Deadline: explicit,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.Deadline != explicit {
		t.Fatalf("explicit deadline overridden: %s", task.Deadline)
	}
}

func TestReassignReopensCompletedTask(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	env.seedOrg(t, "org-b")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")
	actorA := env.seedUser(t, "ua", domain.RoleOrgHead, "org-a")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "expandable",
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.SubmitReport(env.Ctx, actorA, task.ID, "our part done", nil)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}

	task, err = env.Engine.ReassignTask(env.Ctx, head, task.ID, []string{"org-b"})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if task.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress after new assignment, got %s", task.Status)
	}
	if len(task.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(task.Assignments))
	}
	if _, err := env.Engine.CloseTask(env.Ctx, head, task.ID, ""); err == nil {
		t.Fatalf("expected close blocked by fresh assignment")
	}

	// duplicate assignment is rejected
	_, err = env.Engine.ReassignTask(env.Ctx, head, task.ID, []string{"org-a"})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for duplicate org, got %v", err)
	}
}

func TestClosedTaskRejectsAllTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	env.seedOrg(t, "org-b")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")
	actorA := env.seedUser(t, "ua", domain.RoleOrgHead, "org-a")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "sealed",
		Priority: domain.PriorityRoutine,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitReport(env.Ctx, actorA, task.ID, "done", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CloseTask(env.Ctx, head, task.ID, ""); err != nil {
		t.Fatal(err)
	}

	var ise engine.InvalidStateError
	if _, err := env.Engine.AcceptTask(env.Ctx, actorA, task.ID); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError on accept, got %v", err)
	}
	if _, err := env.Engine.SubmitReport(env.Ctx, actorA, task.ID, "late", nil); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError on report, got %v", err)
	}
	if _, err := env.Engine.CloseTask(env.Ctx, head, task.ID, ""); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError on double close, got %v", err)
	}
	if _, err := env.Engine.ReassignTask(env.Ctx, head, task.ID, []string{"org-b"}); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError on reassign, got %v", err)
	}
}

func TestReportNotifiesDistrictHeads(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")
	actorA := env.seedUser(t, "ua", domain.RoleOrgHead, "org-a")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "notify",
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitReport(env.Ctx, actorA, task.ID, "report in", nil); err != nil {
		t.Fatal(err)
	}
	items, err := env.Engine.Repo.ListNotifications(env.Ctx, head.UserID, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range items {
		if n.Type == "report_submitted" && n.TaskID != nil && *n.TaskID == task.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected report_submitted notification for district head")
	}
}

func TestAddComment(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	env.seedOrg(t, "org-x")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")
	actorA := env.seedUser(t, "ua", domain.RoleOrgHead, "org-a")
	outsider := env.seedUser(t, "ux", domain.RoleOrgOfficer, "org-x")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "discussion",
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.AddComment(env.Ctx, actorA, task.ID, "when is the site visit?"); err != nil {
		t.Fatalf("assigned org comment: %v", err)
	}
	err = env.Engine.AddComment(env.Ctx, outsider, task.ID, "drive-by")
	var fe rbac.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError for outsider comment, got %v", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, "org-a")
	head := env.seedUser(t, "head", domain.RoleDistrictHead, "")

	var ve engine.ValidationError
	_, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-a"},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty title, got %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "no orgs",
		Priority: domain.PriorityImportant,
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty org list, got %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "bad priority",
		Priority: "whenever",
		OrgIDs:   []string{"org-a"},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown priority, got %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{
		Title:    "ghost org",
		Priority: domain.PriorityImportant,
		OrgIDs:   []string{"org-missing"},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown org, got %v", err)
	}
}
