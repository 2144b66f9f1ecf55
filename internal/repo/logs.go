package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"ijro/internal/domain"
)

func (r Repo) ListExecutionRecords(ctx context.Context, taskID string) ([]domain.ExecutionRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,actor_id,action,comment,attachments_json,ts FROM execution_records WHERE task_id=? ORDER BY ts, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var comment, attachments sql.NullString
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.ActorID, &rec.Action, &comment, &attachments, &rec.TS); err != nil {
			return nil, err
		}
		if comment.Valid {
			rec.Comment = comment.String
		}
		if attachments.Valid && attachments.String != "" {
			if err := json.Unmarshal([]byte(attachments.String), &rec.Attachments); err != nil {
				return nil, err
			}
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (r Repo) ListTimeline(ctx context.Context, taskID string) ([]domain.TimelineEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,actor_id,kind,content,ts FROM timeline_entries WHERE task_id=? ORDER BY ts, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimelineEntry
	for rows.Next() {
		var e domain.TimelineEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.ActorID, &e.Kind, &e.Content, &e.TS); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

type AuditFilters struct {
	ActorID  string
	Action   string
	Limit    int
	BeforeID int64
}

func (r Repo) ListAuditLog(ctx context.Context, f AuditFilters) ([]domain.AuditEntry, error) {
	query := `SELECT id,actor_id,action,details,target_type,target_id,ts FROM audit_log WHERE 1=1`
	var args []any
	if f.ActorID != "" {
		query += " AND actor_id=?"
		args = append(args, f.ActorID)
	}
	if f.Action != "" {
		query += " AND action=?"
		args = append(args, f.Action)
	}
	if f.BeforeID > 0 {
		query += " AND id < ?"
		args = append(args, f.BeforeID)
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuditEntries(rows)
}

// AuditAfter returns entries strictly after the given id in ascending order,
// for the webhook dispatcher's polling cursor.
func (r Repo) AuditAfter(ctx context.Context, afterID int64, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,actor_id,action,details,target_type,target_id,ts FROM audit_log WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuditEntries(rows)
}

func collectAuditEntries(rows *sql.Rows) ([]domain.AuditEntry, error) {
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var details, targetID sql.NullString
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &details, &e.TargetType, &targetID, &e.TS); err != nil {
			return nil, err
		}
		if details.Valid {
			e.Details = details.String
		}
		if targetID.Valid {
			e.TargetID = targetID.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
