// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package liveness connects the runtime garbage collector to explicit
// bookkeeping. A Reference can be toggled between holding its referent
// strongly and weakly; once a weakly held referent is collected the
// Reference (or a Watcher token) is delivered to a Queue.
package liveness

import (
	"context"
	"sync"

	"github.com/spacemonkeygo/monkit/v3"
)

var mon = monkit.Package()

// Queue collects notifications about collected objects.
//
// Enqueue never blocks; Remove blocks until a notification is available.
type Queue struct {
	mu      sync.Mutex
	pending []any
	signal  chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Enqueue adds a notification token.
func (queue *Queue) Enqueue(token any) {
	queue.mu.Lock()
	queue.pending = append(queue.pending, token)
	queue.mu.Unlock()

	mon.Counter("liveness_enqueued").Inc(1) //mon:locked
	queue.wake()
}

func (queue *Queue) wake() {
	select {
	case queue.signal <- struct{}{}:
	default:
	}
}

// Poll removes the oldest token without blocking.
func (queue *Queue) Poll() (token any, ok bool) {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	if len(queue.pending) == 0 {
		return nil, false
	}
	token = queue.pending[0]
	queue.pending[0] = nil
	queue.pending = queue.pending[1:]
	if len(queue.pending) > 0 {
		queue.wake()
	}
	return token, true
}

// Remove waits for the next token or until ctx is canceled.
func (queue *Queue) Remove(ctx context.Context) (any, error) {
	for {
		if token, ok := queue.Poll(); ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-queue.signal:
		}
	}
}

// Len returns the number of undelivered tokens.
func (queue *Queue) Len() int {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	return len(queue.pending)
}
