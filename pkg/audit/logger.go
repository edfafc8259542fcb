package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/grc-gateway/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes any buffered events
	Close() error
}

type contextKey string

const auditLoggerKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, auditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(auditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOp()
}

// NoOp returns a logger that discards events
func NoOp() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(context.Context, *Event) error { return nil }
func (noOpLogger) Close() error                      { return nil }

// NewEvent builds an event stamped with the current time and the request id
// carried by ctx
func NewEvent(ctx context.Context, orgID, actorID string, action Action, entityType EntityType, entityID string) *Event {
	return &Event{
		OrgID:      orgID,
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    map[string]interface{}{},
		RequestID:  contextkeys.GetRequestID(ctx),
		CreatedAt:  time.Now().UTC(),
	}
}

// WithDetail sets one detail field and returns the event
func (e *Event) WithDetail(key string, value interface{}) *Event {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}
