// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package liveness

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"
)

// Key is a comparable identity of an object that does not keep it alive.
// Two keys made from the same pointer are equal.
type Key struct {
	p any
}

// KeyOf returns the identity key for ptr.
func KeyOf[T any](ptr *T) Key {
	return Key{p: weak.Make(ptr)}
}

// IsZero returns true for the zero key.
func (key Key) IsZero() bool { return key.p == nil }

// Reference refers to an object either strongly or weakly.
//
// A new Reference is weak. While weak, the referent may be collected; when
// that happens the Reference is delivered to its queue once.
type Reference struct {
	key   Key
	load  func() any
	queue *Queue

	mu      sync.Mutex
	strong  any
	cleared bool
	cleanup runtime.Cleanup

	enqueued atomic.Bool
}

// New returns a weak reference to ptr, reporting collection of ptr to queue.
// queue may be nil.
func New[T any](ptr *T, queue *Queue) *Reference {
	pointer := weak.Make(ptr)
	ref := &Reference{
		key: Key{p: pointer},
		load: func() any {
			if value := pointer.Value(); value != nil {
				return value
			}
			return nil
		},
		queue: queue,
	}
	if queue != nil {
		// the cleanup argument keeps ref alive and, through ref.strong, the
		// referent while the reference is strong.
		ref.cleanup = runtime.AddCleanup(ptr, enqueueReference, ref)
	}
	return ref
}

func enqueueReference(ref *Reference) { ref.Enqueue() }

// Value returns the typed referent of ref or nil.
func Value[T any](ref *Reference) *T {
	value, _ := ref.Get().(*T)
	return value
}

// Key returns the identity key of the referent.
func (ref *Reference) Key() Key { return ref.key }

// Get returns the referent or nil when it was collected or cleared.
func (ref *Reference) Get() any {
	ref.mu.Lock()
	defer ref.mu.Unlock()

	if ref.cleared {
		return nil
	}
	if ref.strong != nil {
		return ref.strong
	}
	return ref.load()
}

// MakeStrong pins the referent. It returns false when the referent is
// already gone.
func (ref *Reference) MakeStrong() bool {
	ref.mu.Lock()
	defer ref.mu.Unlock()

	if ref.cleared {
		return false
	}
	if ref.strong != nil {
		return true
	}
	value := ref.load()
	if value == nil {
		return false
	}
	ref.strong = value
	return true
}

// MakeWeak releases the pin so the referent may be collected.
func (ref *Reference) MakeWeak() {
	ref.mu.Lock()
	defer ref.mu.Unlock()
	ref.strong = nil
}

// IsStrong returns whether the referent is pinned.
func (ref *Reference) IsStrong() bool {
	ref.mu.Lock()
	defer ref.mu.Unlock()
	return ref.strong != nil
}

// Enqueue delivers ref to its queue unless it was already delivered.
func (ref *Reference) Enqueue() bool {
	if ref.queue == nil || !ref.enqueued.CompareAndSwap(false, true) {
		return false
	}
	ref.queue.Enqueue(ref)
	return true
}

// IsEnqueued returns whether ref was delivered to its queue.
func (ref *Reference) IsEnqueued() bool { return ref.enqueued.Load() }

// Clear drops the referent and stops collection tracking.
func (ref *Reference) Clear() {
	ref.mu.Lock()
	defer ref.mu.Unlock()

	ref.cleanup.Stop()
	ref.strong = nil
	ref.cleared = true
}
