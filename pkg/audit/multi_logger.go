package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/platinummonkey/grc-gateway/pkg/async"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
)

// maxRetainedErrors bounds the secondary errors kept for Errors
const maxRetainedErrors = 100

// MultiLogger logs to multiple audit loggers
type MultiLogger struct {
	loggers []Logger
	async   bool // If true, secondary loggers run in the background
	tasks   *async.Group
	logger  *observability.Logger
	mu      sync.Mutex
	errs    []error
}

// NewMultiLogger creates a logger that writes to every destination. The first
// logger is the primary: its error is returned to the caller.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers, tasks: async.NewGroup(nil, 0)}
}

// SetLogger sets where secondary failures and panics in background loggers
// are reported. Call it before the first Log.
func (m *MultiLogger) SetLogger(logger *observability.Logger) {
	m.logger = logger
	m.tasks = async.NewGroup(logger, 0)
}

// SetAsync makes secondary loggers run in the background
func (m *MultiLogger) SetAsync(enabled bool) {
	m.async = enabled
}

// Log records event in every logger
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	if len(m.loggers) == 0 {
		return nil
	}

	primaryErr := m.loggers[0].Log(ctx, event)
	for _, logger := range m.loggers[1:] {
		if !m.async {
			m.record(logger.Log(ctx, event))
			continue
		}
		l := logger
		m.tasks.Go(ctx, "audit log", func(ctx context.Context) error {
			m.record(l.Log(ctx, event))
			return nil
		})
	}
	return primaryErr
}

// record logs a secondary failure and keeps the most recent ones
func (m *MultiLogger) record(err error) {
	if err == nil {
		return
	}
	if m.logger != nil {
		m.logger.WithError(err).Warn("secondary audit logger failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) == maxRetainedErrors {
		m.errs = append(m.errs[:0], m.errs[1:]...)
	}
	m.errs = append(m.errs, err)
}

// Wait blocks until background logging finishes
func (m *MultiLogger) Wait() {
	m.tasks.Wait()
}

// Errors returns and clears the errors from secondary loggers
func (m *MultiLogger) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := m.errs
	m.errs = nil
	return errs
}

// Close waits for pending events and closes every logger
func (m *MultiLogger) Close() error {
	m.Wait()
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
