package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger implements audit logging to the audit_logs table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts the event and sets its ID
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.OrgID == "" {
		return fmt.Errorf("audit event %s has no organization", event.Action)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	details := event.Details
	if event.RequestID != "" {
		details = make(map[string]interface{}, len(event.Details)+1)
		for k, v := range event.Details {
			details[k] = v
		}
		details["request_id"] = event.RequestID
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (org_id, actor_id, action, entity_type, entity_id, details, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, $7)
		RETURNING id`
	err = l.db.QueryRowContext(ctx, query,
		event.OrgID, event.ActorID, event.Action, event.EntityType, event.EntityID,
		detailsJSON, event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Close is a no-op; the database handle is owned by the caller
func (l *DBLogger) Close() error {
	return nil
}
