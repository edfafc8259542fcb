// Package async runs fire-and-forget work that must not fail a request:
// secondary audit sinks and object cleanup after a failed upload.
//
//	g := async.NewGroup(logger, 10*time.Second)
//	g.Go(ctx, "audit sink", func(ctx context.Context) error {
//		return sink.Log(ctx, event)
//	})
//	defer g.Wait()
//
// Tasks run detached from the caller's cancellation, with panic recovery and
// an optional timeout. Failures are logged.
package async
