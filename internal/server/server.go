package server

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run starts the job engine's worker pool, the session-sweep loop, and the
// transport mux, and blocks until ctx is canceled or any of them returns an
// error. Engine.Run already starts its own internal lease-reclaim sweeper,
// so this is the full set of background loops the process needs.
func (c *Context) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.Jobs.Run(gctx)
		return nil
	})
	g.Go(func() error {
		c.Sessions.Run(gctx, c.Config.SessionCleanupInterval)
		return nil
	})
	g.Go(func() error {
		return c.Mux.Run(gctx)
	})

	return g.Wait()
}

// Close releases resources Run does not own the lifecycle of (the idempotency
// cache's Redis connection and the database handle), called on shutdown
// after Run returns.
func (c *Context) Close() error {
	if c.Idempotency != nil {
		_ = c.Idempotency.Close()
	}
	return c.Store.Close()
}
