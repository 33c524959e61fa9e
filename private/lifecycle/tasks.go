// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package lifecycle

import (
	"context"
	"runtime/pprof"
	"sync"

	"go.uber.org/zap"
)

// Spawner starts background tasks.
//
// Services take a Spawner instead of starting goroutines themselves, so
// tests can run the tasks step by step.
type Spawner interface {
	Go(name string, fn func(ctx context.Context))
}

// Tasks is a Spawner whose tasks share one lifetime.
type Tasks struct {
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewTasks creates a Spawner. Tasks are canceled by Close.
func NewTasks(log *zap.Logger) *Tasks {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tasks{
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go starts fn in a new goroutine. After Close it does nothing.
func (tasks *Tasks) Go(name string, fn func(ctx context.Context)) {
	tasks.mu.Lock()
	defer tasks.mu.Unlock()

	if tasks.closed {
		tasks.log.Debug("task not started after close", zap.String("name", name))
		return
	}

	tasks.wg.Add(1)
	go func() {
		defer tasks.wg.Done()

		ctx := pprof.WithLabels(tasks.ctx, pprof.Labels("name", "tasks:"+name))
		pprof.SetGoroutineLabels(ctx)

		defer mon.Task()(&ctx)(nil)
		fn(ctx)
	}()
}

// Close cancels all tasks and waits for them to return.
func (tasks *Tasks) Close() error {
	tasks.mu.Lock()
	tasks.closed = true
	tasks.mu.Unlock()

	tasks.cancel()
	tasks.wg.Wait()
	return nil
}
