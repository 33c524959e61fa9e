// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package liveness

import "runtime"

// Watcher delivers a token to a queue after an object is collected.
type Watcher struct {
	cleanup runtime.Cleanup
}

// Watch arranges for token to be enqueued once ptr is collected. token must
// not refer to ptr, otherwise ptr is never collected.
func Watch[T any](ptr *T, queue *Queue, token any) *Watcher {
	return &Watcher{
		cleanup: runtime.AddCleanup(ptr, queue.Enqueue, token),
	}
}

// Stop cancels the notification.
func (watcher *Watcher) Stop() {
	watcher.cleanup.Stop()
}
