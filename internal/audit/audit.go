package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/model"
)

const SystemActor = "system"

type Entry struct {
	ActorID    string
	Action     string
	Resource   string
	ResourceID string
	Changes    any
}

// Auditor records one entry per mutating action. Implementations write in
// the caller's transaction when the context carries one.
type Auditor interface {
	Record(ctx context.Context, e Entry) error
}

type Recorder struct {
	db *db.DB
}

func NewRecorder(d *db.DB) *Recorder {
	return &Recorder{db: d}
}

func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if e.ActorID == "" {
		e.ActorID = SystemActor
	}
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	if string(changes) == "null" {
		changes = []byte("{}")
	}
	_, err = r.db.Conn(ctx).Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, resource, resource_id, changes)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ActorID, e.Action, e.Resource, e.ResourceID, changes)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *Recorder) ListForResource(ctx context.Context, resource, resourceID string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT id, actor_id, action, resource, resource_id, changes, created_at
		FROM audit_logs
		WHERE resource = $1 AND resource_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, resource, resourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AuditLog, 0, limit)
	for rows.Next() {
		var l model.AuditLog
		var changes []byte
		if err := rows.Scan(&l.ID, &l.ActorID, &l.Action, &l.Resource, &l.ResourceID, &changes, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Changes = changes
		out = append(out, l)
	}
	return out, rows.Err()
}
