// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package liveness_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/dgc/pkg/liveness"
)

type payload struct {
	name string
	data [256]byte
}

func newPayload(name string) *payload {
	return &payload{name: name}
}

func collected(t *testing.T, queue *liveness.Queue) any {
	var token any
	require.Eventually(t, func() bool {
		runtime.GC()
		var ok bool
		token, ok = queue.Poll()
		return ok
	}, 10*time.Second, 10*time.Millisecond)
	return token
}

func TestQueue(t *testing.T) {
	ctx := testcontext.New(t)

	queue := liveness.NewQueue()
	_, ok := queue.Poll()
	require.False(t, ok)

	queue.Enqueue("a")
	queue.Enqueue("b")
	require.Equal(t, 2, queue.Len())

	token, err := queue.Remove(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", token)

	token, ok = queue.Poll()
	require.True(t, ok)
	require.Equal(t, "b", token)

	done := make(chan any)
	ctx.Go(func() error {
		token, err := queue.Remove(ctx)
		done <- token
		return err
	})
	queue.Enqueue("c")
	require.Equal(t, "c", <-done)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = queue.Remove(canceled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReferenceStrongAndWeak(t *testing.T) {
	queue := liveness.NewQueue()

	obj := newPayload("alpha")
	key := liveness.KeyOf(obj)
	ref := liveness.New(obj, queue)
	require.Equal(t, key, ref.Key())
	require.False(t, ref.IsStrong())

	require.True(t, ref.MakeStrong())
	require.True(t, ref.IsStrong())
	obj = nil

	for range 3 {
		runtime.GC()
	}
	require.Zero(t, queue.Len())
	value := liveness.Value[payload](ref)
	require.NotNil(t, value)
	require.Equal(t, "alpha", value.name)
	value = nil

	ref.MakeWeak()
	require.Same(t, ref, collected(t, queue))
	require.True(t, ref.IsEnqueued())
	require.Nil(t, ref.Get())
	require.False(t, ref.MakeStrong())
	require.False(t, ref.Enqueue())
}

func TestReferenceClear(t *testing.T) {
	queue := liveness.NewQueue()

	obj := newPayload("beta")
	ref := liveness.New(obj, queue)
	require.Same(t, obj, ref.Get())

	ref.Clear()
	require.Nil(t, ref.Get())
	require.False(t, ref.MakeStrong())
	runtime.KeepAlive(obj)
	obj = nil

	for range 3 {
		runtime.GC()
	}
	require.Zero(t, queue.Len())
	require.False(t, ref.IsEnqueued())
}

func TestReferenceWithoutQueue(t *testing.T) {
	obj := newPayload("gamma")
	ref := liveness.New(obj, nil)
	require.True(t, ref.MakeStrong())
	require.False(t, ref.Enqueue())
	ref.Clear()
	runtime.KeepAlive(obj)
}

func TestKeyIdentity(t *testing.T) {
	a, b := newPayload("a"), newPayload("b")
	require.Equal(t, liveness.KeyOf(a), liveness.KeyOf(a))
	require.NotEqual(t, liveness.KeyOf(a), liveness.KeyOf(b))
	require.True(t, liveness.Key{}.IsZero())

	seen := map[liveness.Key]string{liveness.KeyOf(a): "a"}
	require.Equal(t, "a", seen[liveness.KeyOf(a)])
	runtime.KeepAlive(b)
}

func TestWatch(t *testing.T) {
	queue := liveness.NewQueue()

	obj := newPayload("watched")
	liveness.Watch(obj, queue, "token")
	obj = nil

	require.Equal(t, "token", collected(t, queue))
}

func TestWatchStop(t *testing.T) {
	queue := liveness.NewQueue()

	obj := newPayload("stopped")
	watcher := liveness.Watch(obj, queue, "token")
	watcher.Stop()
	obj = nil

	for range 3 {
		runtime.GC()
	}
	require.Zero(t, queue.Len())
}
