package async

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/grc-gateway/pkg/observability"
)

// Group runs background tasks with panic recovery and a per-task timeout,
// and lets the owner wait for every task it started.
type Group struct {
	logger  *observability.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewGroup creates a task group. A non-positive timeout leaves tasks bounded
// only by their parent context.
func NewGroup(logger *observability.Logger, timeout time.Duration) *Group {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Group{logger: logger, timeout: timeout}
}

// Go starts fn in a goroutine. The task context is detached from parent's
// cancellation so work outlives the request that scheduled it, but keeps its
// values. Errors and panics are logged, never propagated.
func (g *Group) Go(parent context.Context, taskName string, fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer observability.RecoverPanic(g.logger, taskName)

		ctx := context.WithoutCancel(parent)
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		if err := fn(ctx); err != nil {
			g.logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// Wait blocks until every started task returns.
func (g *Group) Wait() {
	g.wg.Wait()
}

// WaitContext blocks until every task returns or ctx is done.
func (g *Group) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
