package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	runs  atomic.Int64
	panic bool
}

func (c *countingTask) Name() string { return "counting" }

func (c *countingTask) Run(ctx context.Context) {
	c.runs.Add(1)
	if c.panic {
		panic("boom")
	}
}

func TestEveryRunsImmediatelyAndPeriodically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(slog.Default())
	task := &countingTask{}
	s.Every(ctx, 10*time.Millisecond, task)

	require.Eventually(t, func() bool { return task.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}

func TestPanicDoesNotKillTheLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(slog.Default())
	task := &countingTask{panic: true}
	s.Every(ctx, 10*time.Millisecond, task)

	require.Eventually(t, func() bool { return task.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}

func TestCancelStopsTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(slog.Default())
	task := &countingTask{}
	s.Every(ctx, 5*time.Millisecond, task)

	require.Eventually(t, func() bool { return task.runs.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()
	s.Wait()

	after := task.runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, task.runs.Load())
}
