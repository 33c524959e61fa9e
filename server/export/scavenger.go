// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package export

import (
	"context"

	"go.uber.org/zap"

	"storj.io/dgc/pkg/liveness"
)

// startScavenger starts removing collected objects unless that is already
// happening. registry.mu must be held.
func (registry *Registry) startScavenger() {
	if registry.scavenging {
		return
	}
	registry.scavenging = true
	stop := make(chan struct{})
	registry.stopScav = stop

	registry.spawner.Go("scavenger", func(ctx context.Context) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		registry.scavenge(ctx)
	})
}

// maybeStopScavenger stops the scavenger once there are no exported
// non-system objects and no calls in progress. registry.mu must be held.
func (registry *Registry) maybeStopScavenger() {
	if !registry.scavenging || registry.nonSystem > 0 || registry.activeCalls > 0 {
		return
	}
	registry.scavenging = false
	close(registry.stopScav)
	registry.stopScav = nil
}

// scavenge removes the records of collected objects until ctx is canceled.
func (registry *Registry) scavenge(ctx context.Context) {
	registry.log.Debug("scavenger started")
	defer registry.log.Debug("scavenger stopped")

	for {
		token, err := registry.queue.Remove(ctx)
		if err != nil {
			return
		}
		ref, ok := token.(*liveness.Reference)
		if !ok {
			continue
		}

		record := registry.table.Lookup(ref.Key())
		if record == nil || record.Ref != ref {
			continue
		}

		registry.mu.Lock()
		removed := registry.removeLocked(record)
		registry.mu.Unlock()

		if removed {
			mon.Counter("objects_collected").Inc(1)
			registry.log.Debug("collected", zap.Stringer("object", record.ID))
		}
	}
}

// Scavenging returns whether collected objects are being removed.
func (registry *Registry) Scavenging() bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.scavenging
}
