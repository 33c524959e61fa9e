// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package export

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storj.io/common/uuid"
	"storj.io/dgc/pkg/dgcid"
)

// RegisterForAck holds objs strongly until id is acknowledged or the ack
// timeout passes, so results referencing them survive until the caller
// leased them.
func (registry *Registry) RegisterForAck(id uuid.UUID, objs ...any) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.acks[id] = pendingAck{
		objs:     objs,
		deadline: registry.nowFn().Add(registry.config.AckTimeout),
	}
}

// UnregisterForAck releases the objects held for id.
func (registry *Registry) UnregisterForAck(id uuid.UUID) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	_, ok := registry.acks[id]
	delete(registry.acks, id)
	return ok
}

// PendingAcks returns the number of unacknowledged results.
func (registry *Registry) PendingAcks() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return len(registry.acks)
}

// Run releases unacknowledged results past their deadline.
func (registry *Registry) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return registry.AckLoop.Run(ctx, func(ctx context.Context) error {
		registry.sweepAcks()
		return nil
	})
}

func (registry *Registry) sweepAcks() {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	now := registry.nowFn()
	for id, pending := range registry.acks {
		if now.Before(pending.deadline) {
			continue
		}
		delete(registry.acks, id)
		mon.Counter("acks_expired").Inc(1) //mon:locked
		registry.log.Debug("ack timed out", zap.Stringer("ack", id), zap.Int("objects", len(pending.objs)))
	}
}

// Close stops the ack sweeper.
func (registry *Registry) Close() error {
	registry.AckLoop.Close()
	return nil
}

// TestingSetNow allows tests to have the registry act as if the current time is whatever they want.
func (registry *Registry) TestingSetNow(nowFn func() time.Time) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.nowFn = nowFn
}

type ackHolderKey struct{}

// ackHolder collects the objects a call result refers to.
type ackHolder struct {
	mu    sync.Mutex
	stubs []dgcid.Stub
	objs  []any
}

func withAckHolder(ctx context.Context, holder *ackHolder) context.Context {
	return context.WithValue(ctx, ackHolderKey{}, holder)
}

// ReturnRef adds stub to the references returned by the call handled with
// ctx and keeps obj alive until the caller acknowledges them. It returns
// false outside of a remote call.
func ReturnRef(ctx context.Context, stub dgcid.Stub, obj any) bool {
	holder, ok := ctx.Value(ackHolderKey{}).(*ackHolder)
	if !ok {
		return false
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	holder.stubs = append(holder.stubs, stub)
	holder.objs = append(holder.objs, obj)
	return true
}

func (holder *ackHolder) take() ([]dgcid.Stub, []any) {
	holder.mu.Lock()
	defer holder.mu.Unlock()
	stubs, objs := holder.stubs, holder.objs
	holder.stubs, holder.objs = nil, nil
	return stubs, objs
}
