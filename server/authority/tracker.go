// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package authority

import (
	"context"

	"go.uber.org/zap"

	"storj.io/common/sync2"
)

// startTrackerLocked starts the expiration tracker unless it is running.
// authority.mu must be held.
func (authority *Authority) startTrackerLocked() {
	if authority.tracking {
		return
	}
	authority.tracking = true
	authority.spawner.Go("lease-tracker", authority.track)
}

// track releases expired leases until no VM holds a lease.
//
// architecture: Chore
func (authority *Authority) track(ctx context.Context) {
	interval := authority.config.checkInterval()
	authority.log.Debug("lease tracker started", zap.Duration("interval", interval))

	for {
		if !sync2.Sleep(ctx, interval) {
			authority.mu.Lock()
			authority.tracking = false
			authority.mu.Unlock()
			return
		}
		if !authority.expire() {
			authority.log.Debug("lease tracker stopped")
			return
		}
	}
}

// expire releases every expired lease. It returns false, and marks the
// tracker as stopped, when no VM holds a lease anymore.
func (authority *Authority) expire() bool {
	authority.mu.Lock()
	defer authority.mu.Unlock()

	now := authority.nowFn()
	for vmid, held := range authority.vms {
		for id := range held {
			record := authority.table.Get(id)
			if record == nil || record.Expire(vmid, now) {
				delete(held, id)
			}
		}
		if len(held) == 0 {
			authority.log.Debug("vm released", zap.Stringer("vmid", vmid))
			delete(authority.vms, vmid)
		}
	}

	if len(authority.vms) == 0 {
		authority.tracking = false
		return false
	}
	return true
}

// Tracking returns whether the expiration tracker is running.
func (authority *Authority) Tracking() bool {
	authority.mu.Lock()
	defer authority.mu.Unlock()
	return authority.tracking
}
