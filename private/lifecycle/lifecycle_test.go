// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"storj.io/common/testcontext"
)

func TestGroupClosesInReverse(t *testing.T) {
	ctx := testcontext.New(t)

	var order []string
	group := NewGroup(zaptest.NewLogger(t))
	for _, name := range []string{"first", "second", "third"} {
		group.Add(Item{
			Name: name,
			Run: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			Close: func() error {
				order = append(order, name)
				if name == "second" {
					return errors.New("close failed")
				}
				return nil
			},
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	group.Run(gctx, g)
	cancel()
	require.NoError(t, g.Wait())

	err := group.Close()
	require.Error(t, err)
	require.Equal(t, []string{"third", "second", "first"}, order)
}

func TestGroupRunError(t *testing.T) {
	ctx := testcontext.New(t)

	group := NewGroup(zaptest.NewLogger(t))
	group.Add(Item{Name: "closer-only", Close: func() error { return nil }})
	group.Add(Item{Name: "failing", Run: func(ctx context.Context) error {
		return errors.New("boom")
	}})

	g, gctx := errgroup.WithContext(ctx)
	group.Run(gctx, g)
	require.EqualError(t, g.Wait(), "boom")
	require.NoError(t, group.Close())
}

func TestTasks(t *testing.T) {
	tasks := NewTasks(zaptest.NewLogger(t))

	var finished atomic.Int32
	started := make(chan struct{}, 2)
	for range 2 {
		tasks.Go("waiter", func(ctx context.Context) {
			started <- struct{}{}
			<-ctx.Done()
			finished.Add(1)
		})
	}
	<-started
	<-started

	require.NoError(t, tasks.Close())
	require.EqualValues(t, 2, finished.Load())

	tasks.Go("late", func(ctx context.Context) {
		finished.Add(1)
	})
	require.NoError(t, tasks.Close())
	require.EqualValues(t, 2, finished.Load())
}

func TestFilterStacks(t *testing.T) {
	profile := strings.Join([]string{
		"goroutine profile: total 3",
		"1 @ 0x43e1 0x4a1b",
		`# labels: {"name":"tasks:lease-tracker"}`,
		"#\t0x4a1b2c\tstorj.io/dgc/server/authority.(*Authority).track+0x45\t/src/dgc/server/authority/tracker.go:40",
		"#\t0x4a1b90\tstorj.io/dgc/private/lifecycle.(*Tasks).Go.func1+0x99\t/src/dgc/private/lifecycle/tasks.go:58",
		"",
		"2 @ 0x43e1 0x4b00",
		`# labels: {"name":"server"}`,
		"#\t0x4b0011\tstorj.io/dgc/private/server.(*Server).Run+0x10\t/src/dgc/private/server/server.go:150",
		"",
	}, "\n")

	require.Equal(t,
		"1\n\tstorj.io/dgc/server/authority.(*Authority).track:40\n\tstorj.io/dgc/private/lifecycle.(*Tasks).Go.func1:58\n",
		string(filterStacks([]byte(profile), "tasks")))
	require.Equal(t,
		"2\n\tstorj.io/dgc/private/server.(*Server).Run:150\n",
		string(filterStacks([]byte(profile), "server")))
	require.Empty(t, filterStacks([]byte(profile), "export:acks"))
}

func TestLabelledStacks(t *testing.T) {
	ctx := testcontext.New(t)

	tasks := NewTasks(zaptest.NewLogger(t))
	defer ctx.Check(tasks.Close)

	started := make(chan struct{})
	tasks.Go("blocked", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	require.Contains(t, string(labelledStacks("tasks")), "TestLabelledStacks")
	require.Empty(t, labelledStacks("unknown"))
}
