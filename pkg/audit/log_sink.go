package audit

import (
	"context"

	"github.com/platinummonkey/grc-gateway/pkg/observability"
)

// LogSink writes audit events to the structured application log
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Log writes one line per event
func (s *LogSink) Log(_ context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit":       true,
		"org_id":      event.OrgID,
		"actor_id":    event.ActorID,
		"action":      string(event.Action),
		"entity_type": string(event.EntityType),
		"entity_id":   event.EntityID,
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	s.logger.WithFields(fields).Info("audit event")
	return nil
}

// Close is a no-op
func (s *LogSink) Close() error {
	return nil
}
