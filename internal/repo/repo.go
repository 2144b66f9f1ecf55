package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ijro/internal/config"
	"ijro/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,priority,deadline,status,creator_id,created_at,updated_at,closed_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), string(t.Priority), t.Deadline, string(t.Status),
		t.CreatorID, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.ClosedAt))
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, priority=?, deadline=?, status=?, updated_at=?, closed_at=? WHERE id=?`,
		t.Title, nullable(t.Description), string(t.Priority), t.Deadline, string(t.Status),
		t.UpdatedAt, nullableStringPtr(t.ClosedAt), t.ID)
	return err
}

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var description, closedAt sql.NullString
	err := scan(&t.ID, &t.Title, &description, &t.Priority, &t.Deadline, &t.Status, &t.CreatorID, &t.CreatedAt, &t.UpdatedAt, &closedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if closedAt.Valid {
		t.ClosedAt = &closedAt.String
	}
	return t, nil
}

const taskColumns = `id,title,description,priority,deadline,status,creator_id,created_at,updated_at,closed_at`

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, err
	}
	t.Assignments, err = r.ListAssignments(ctx, t.ID)
	return t, err
}

// GetTaskTx reads the task inside the caller's transaction so precondition
// checks see the same snapshot the mutation will.
func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, err
	}
	t.Assignments, err = r.ListAssignmentsTx(ctx, tx, t.ID)
	return t, err
}

type TaskFilters struct {
	Status          domain.TaskStatus
	OrgID           string
	CreatorID       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.CreatorID != "" {
		clauses = append(clauses, "creator_id=?")
		args = append(args, f.CreatorID)
	}
	if f.OrgID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM task_assignments a WHERE a.task_id=tasks.id AND a.org_id=?)")
		args = append(args, f.OrgID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Assignments, err = r.ListAssignments(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_assignments(id,task_id,org_id,status,deadline,accepted_at,completed_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.TaskID, a.OrgID, string(a.Status), a.Deadline, nullableStringPtr(a.AcceptedAt), nullableStringPtr(a.CompletedAt))
	return err
}

func (r Repo) UpdateAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	_, err := tx.ExecContext(ctx, `UPDATE task_assignments SET status=?, deadline=?, accepted_at=?, completed_at=? WHERE id=?`,
		string(a.Status), a.Deadline, nullableStringPtr(a.AcceptedAt), nullableStringPtr(a.CompletedAt), a.ID)
	return err
}

func scanAssignment(scan func(dest ...any) error) (domain.Assignment, error) {
	var a domain.Assignment
	var acceptedAt, completedAt sql.NullString
	err := scan(&a.ID, &a.TaskID, &a.OrgID, &a.Status, &a.Deadline, &acceptedAt, &completedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if acceptedAt.Valid {
		a.AcceptedAt = &acceptedAt.String
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.String
	}
	return a, nil
}

const assignmentColumns = `id,task_id,org_id,status,deadline,accepted_at,completed_at`

func (r Repo) GetAssignment(ctx context.Context, taskID, orgID string) (domain.Assignment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM task_assignments WHERE task_id=? AND org_id=?`, taskID, orgID)
	return scanAssignment(row.Scan)
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, taskID, orgID string) (domain.Assignment, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM task_assignments WHERE task_id=? AND org_id=?`, taskID, orgID)
	return scanAssignment(row.Scan)
}

func (r Repo) ListAssignments(ctx context.Context, taskID string) ([]domain.Assignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM task_assignments WHERE task_id=? ORDER BY org_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func (r Repo) ListAssignmentsTx(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.Assignment, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM task_assignments WHERE task_id=? ORDER BY org_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func collectAssignments(rows *sql.Rows) ([]domain.Assignment, error) {
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) UpsertDistrictConfig(ctx context.Context, districtID string, cfg *config.Config) error {
	return upsertDistrictConfig(ctx, r.DB, nil, districtID, cfg)
}

func (r Repo) UpsertDistrictConfigTx(ctx context.Context, tx *sql.Tx, districtID string, cfg *config.Config) error {
	return upsertDistrictConfig(ctx, nil, tx, districtID, cfg)
}

func upsertDistrictConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, districtID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.District.ID = districtID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := cfg.ToYAML()
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO district_configs(district_id,config_yaml,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(district_id) DO UPDATE SET config_yaml=excluded.config_yaml, updated_at=excluded.updated_at`, districtID, string(payload), now, now)
	return err
}

func (r Repo) GetDistrictConfig(ctx context.Context, districtID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_yaml FROM district_configs WHERE district_id=?`, districtID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return config.FromYAML([]byte(payload))
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
