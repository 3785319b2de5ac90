// Package background runs supervised fire-and-forget tasks: access
// bookkeeping, post-response extraction, async document processing.
// A task's failure is logged and contained; it never cancels sibling
// tasks and never reaches the request that spawned it.
package background

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// TaskSet owns the background goroutines of one process. Tasks run
// against the set's base context, not the spawning request's, so they
// survive the request and stop on process shutdown.
type TaskSet struct {
	group *errgroup.Group
	ctx   context.Context
}

// NewTaskSet builds a set whose tasks stop when ctx is canceled. limit
// bounds concurrent tasks; zero or negative means a default bound.
func NewTaskSet(ctx context.Context, limit int) *TaskSet {
	if limit <= 0 {
		limit = 16
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	return &TaskSet{group: group, ctx: groupCtx}
}

// Go spawns task without blocking the caller. When the set is already
// running at its limit the task is dropped with a warn log; every task
// submitted here must be safe to lose. Panics and errors are logged
// under name and never propagate.
func (s *TaskSet) Go(name string, task func(ctx context.Context) error) bool {
	started := s.group.TryGo(func() error {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background task panicked", "task", name, "panic", r)
			}
		}()
		if err := task(s.ctx); err != nil && !isShutdown(err) {
			slog.Error("background task failed", "task", name, "error", err)
		}
		return nil
	})
	if !started {
		slog.Warn("background task dropped, set is saturated", "task", name)
	}
	return started
}

// Wait blocks until every running task has finished. Call it during
// shutdown after canceling the set's context.
func (s *TaskSet) Wait() {
	_ = s.group.Wait()
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
