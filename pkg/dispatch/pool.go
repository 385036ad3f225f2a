package dispatch

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Pool runs asynchronous dispatch tasks with bounded concurrency.
// Tasks are fire-and-forget from the inbound request's point of view;
// Shutdown waits for in-flight work.
type Pool struct {
	group *errgroup.Group
	ctx   context.Context
	log   *slog.Logger
}

// NewPool creates a pool of at most size concurrent tasks.
func NewPool(ctx context.Context, size int, log *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = slog.Default()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(size)
	return &Pool{group: g, ctx: gctx, log: log}
}

// Submit queues a task. Task failures are logged, not propagated; one
// failed async delivery must not cancel the others.
func (p *Pool) Submit(name string, task func(ctx context.Context) error) {
	p.group.Go(func() error {
		if err := task(p.ctx); err != nil {
			p.log.Error("async task failed", "task", name, "error", err)
		}
		return nil
	})
}

// Shutdown waits for all submitted tasks to finish.
func (p *Pool) Shutdown() error {
	return p.group.Wait()
}
