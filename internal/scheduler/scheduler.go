// Package scheduler runs periodic tasks. Each task gets its own goroutine
// and ticker; invocations of one task never overlap because the loop only
// fires again after Run returns.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of periodic work.
type Task interface {
	Name() string
	Run(ctx context.Context)
}

type Scheduler struct {
	log *slog.Logger
	wg  sync.WaitGroup
}

func New(log *slog.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Every runs the task immediately and then on every interval until ctx is
// cancelled. A panic inside a run is logged and does not kill the loop.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, t Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		s.safeRun(ctx, t)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.safeRun(ctx, t)
			}
		}
	}()
}

// Wait blocks until all task loops have exited.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) safeRun(ctx context.Context, t Task) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("scheduled task panicked", "task", t.Name(), "panic", rec)
		}
	}()
	t.Run(ctx)
}
