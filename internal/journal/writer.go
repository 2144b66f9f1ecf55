// Package journal appends the side-effect records that accompany every
// engine transition: execution records, timeline entries, audit log entries
// and notifications. All writes go through the caller's transaction so a
// failed operation leaves no stray records behind.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ijro/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) now() string {
	if w.Now != nil {
		return w.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Execution appends an immutable task execution record.
func (w Writer) Execution(ctx context.Context, tx *sql.Tx, taskID, actorID, action, comment string, attachments []string) error {
	var attJSON any
	if len(attachments) > 0 {
		data, err := json.Marshal(attachments)
		if err != nil {
			return fmt.Errorf("marshal attachments: %w", err)
		}
		attJSON = string(data)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO execution_records(id,task_id,actor_id,action,comment,attachments_json,ts) VALUES (?,?,?,?,?,?,?)`,
		uuid.New().String(), taskID, actorID, action, nullable(comment), attJSON, w.now())
	return err
}

// Timeline appends an entry to the per-task activity feed. Pass
// domain.TimelineActorSystem as actorID for system-generated entries.
func (w Writer) Timeline(ctx context.Context, tx *sql.Tx, taskID, actorID, kind, content string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO timeline_entries(id,task_id,actor_id,kind,content,ts) VALUES (?,?,?,?,?,?)`,
		uuid.New().String(), taskID, actorID, kind, content, w.now())
	return err
}

// Audit appends a system-wide administrative log entry.
func (w Writer) Audit(ctx context.Context, tx *sql.Tx, actorID, action string, details map[string]any, targetType, targetID string) error {
	var detailsJSON any
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		detailsJSON = string(data)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO audit_log(actor_id,action,details,target_type,target_id,ts) VALUES (?,?,?,?,?,?)`,
		actorID, action, detailsJSON, targetType, nullable(targetID), w.now())
	return err
}

// Notify creates an unread notification for a user.
func (w Writer) Notify(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = w.now()
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,user_id,type,title,description,task_id,org_id,read,created_at) VALUES (?,?,?,?,?,?,?,0,?)`,
		n.ID, n.UserID, n.Type, n.Title, nullable(n.Description), nullableStringPtr(n.TaskID), nullableStringPtr(n.OrgID), n.CreatedAt)
	return err
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
