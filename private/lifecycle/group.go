// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package lifecycle runs and closes the services of a peer and spawns the
// background tasks those services start lazily.
package lifecycle

import (
	"context"
	"errors"
	"runtime/pprof"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var mon = monkit.Package()

// SlowClose is how long Group.Close waits for an item before logging
// the goroutine stacks.
var SlowClose = 30 * time.Second

// Group runs items concurrently and closes them in reverse order.
type Group struct {
	log   *zap.Logger
	items []Item
}

// Item is a named service in a Group.
type Item struct {
	Name  string
	Run   func(ctx context.Context) error
	Close func() error
}

// NewGroup creates an empty group.
func NewGroup(log *zap.Logger) *Group {
	return &Group{log: log}
}

// Add appends an item to the group.
func (group *Group) Add(item Item) {
	group.items = append(group.items, item)
}

// Run starts every item with a Run function in g.
func (group *Group) Run(ctx context.Context, g *errgroup.Group) {
	defer mon.Task()(&ctx)(nil)

	for _, item := range group.items {
		if item.Run == nil {
			continue
		}
		g.Go(func() error {
			ctx := pprof.WithLabels(ctx, pprof.Labels("name", item.Name))
			pprof.SetGoroutineLabels(ctx)

			err := item.Run(ctx)
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				err = nil
			}
			if err != nil {
				group.log.Error("service failed", zap.String("name", item.Name), zap.Error(err))
			}
			return err
		})
	}
}

// Close closes every item in reverse order of addition.
func (group *Group) Close() error {
	var errlist errs.Group
	for i := len(group.items) - 1; i >= 0; i-- {
		item := group.items[i]
		if item.Close == nil {
			continue
		}
		errlist.Add(group.closeItem(item))
	}
	return errlist.Err()
}

func (group *Group) closeItem(item Item) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		timer := time.NewTimer(SlowClose)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			group.log.Warn("slow close",
				zap.String("name", item.Name),
				zap.ByteString("stacks", labelledStacks(item.Name)))
		}
	}()

	return item.Close()
}
