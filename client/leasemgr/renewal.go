// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package leasemgr

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storj.io/dgc/pkg/dgcid"
)

// renewalInfo is the lease state of a single endpoint.
type renewalInfo struct {
	endpoint dgcid.Endpoint

	mu    sync.Mutex
	renew map[dgcid.ObjectID]*renewEntry
	// clean maps a released object to the generation of its release.
	clean      map[dgcid.ObjectID]uint64
	generation uint64

	renewAt      time.Time
	duration     time.Duration
	failures     int
	failureStart time.Time
	baseRetry    time.Duration
	gaveUp       bool

	cleaning      bool
	cleanFailures int
	wakeClean     chan struct{}
}

// renewEntry counts the live proxies of an object.
type renewEntry struct {
	proxies int
}

func newRenewalInfo(endpoint dgcid.Endpoint, duration time.Duration) *renewalInfo {
	return &renewalInfo{
		endpoint:  endpoint,
		renew:     map[dgcid.ObjectID]*renewEntry{},
		clean:     map[dgcid.ObjectID]uint64{},
		duration:  duration,
		wakeClean: make(chan struct{}, 1),
	}
}

// pending returns whether info has leases to renew.
// info.mu must be held.
func (info *renewalInfo) pending() bool {
	return len(info.renew) > 0 && !info.gaveUp
}

// startRenewalLocked starts the renewal loop or wakes it up so it notices
// new registrations. manager.mu must be held.
func (manager *Manager) startRenewalLocked() {
	if manager.renewing {
		select {
		case manager.wake <- struct{}{}:
		default:
		}
		return
	}
	manager.renewing = true
	manager.spawner.Go("lease-renewal", manager.renewLoop)
}

// renewLoop renews leases until no endpoint has a lease to renew.
//
// architecture: Chore
func (manager *Manager) renewLoop(ctx context.Context) {
	manager.log.Debug("lease renewal started")
	defer manager.log.Debug("lease renewal stopped")

	for {
		next, ok := manager.renewDue(ctx)
		if !ok {
			return
		}
		if ctx.Err() != nil {
			manager.stopRenewing()
			return
		}

		wait := next.Sub(manager.now())
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			manager.stopRenewing()
			return
		case <-manager.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// stopRenewing marks the renewal loop as stopped, so the next registration
// starts it again.
func (manager *Manager) stopRenewing() {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	manager.renewing = false
}

// renewDue makes a dirty call to every endpoint whose renewal is due and
// returns the earliest next renewal. It returns false, and marks the loop
// as stopped, when nothing is left to renew.
func (manager *Manager) renewDue(ctx context.Context) (next time.Time, ok bool) {
	manager.mu.Lock()
	now := manager.nowFn()
	infos := make([]*renewalInfo, 0, len(manager.infos))
	for _, info := range manager.infos {
		infos = append(infos, info)
	}
	manager.mu.Unlock()

	for _, info := range infos {
		if ctx.Err() != nil {
			break
		}
		_ = manager.renewInfo(ctx, info, now, false)
	}

	manager.mu.Lock()
	defer manager.mu.Unlock()

	for _, info := range manager.infos {
		info.mu.Lock()
		if info.pending() && (!ok || info.renewAt.Before(next)) {
			next, ok = info.renewAt, true
		}
		info.mu.Unlock()
	}
	if !ok {
		manager.renewing = false
	}
	return next, ok
}

// Renew makes a dirty call for every object imported from endpoint without
// waiting for the renewal to be due. Results carrying references are leased
// this way before they are acknowledged.
func (manager *Manager) Renew(ctx context.Context, endpoint dgcid.Endpoint) (err error) {
	defer mon.Task()(&ctx)(&err)

	manager.mu.Lock()
	info, ok := manager.infos[endpoint]
	manager.mu.Unlock()
	if !ok {
		return nil
	}
	return manager.renewInfo(ctx, info, manager.now(), true)
}

// renewInfo makes a dirty call for info when its renewal is due at now, or
// regardless of the due time with force.
func (manager *Manager) renewInfo(ctx context.Context, info *renewalInfo, now time.Time, force bool) error {
	info.mu.Lock()
	if !info.pending() || (!force && now.Before(info.renewAt)) {
		info.mu.Unlock()
		return nil
	}
	ids := make([]dgcid.ObjectID, 0, len(info.renew))
	for id := range info.renew {
		ids = append(ids, id)
	}
	seq := manager.nextSeq()
	info.mu.Unlock()

	lease, err := manager.caller.Dirty(ctx, info.endpoint, ids, seq, dgcid.Lease{
		VMID:     manager.vmid,
		Duration: manager.config.LeaseDuration,
	})

	done := manager.now()

	info.mu.Lock()
	defer info.mu.Unlock()

	if err == nil {
		mon.Counter("dirty_succeeded").Inc(1) //mon:locked
		info.failures = 0
		if lease.Duration > 0 {
			info.duration = lease.Duration
		}
		info.renewAt = done.Add(info.duration / 2)
		return nil
	}

	err = ErrRemoteCall.Wrap(err)
	mon.Counter("dirty_failed").Inc(1) //mon:locked
	info.failures++
	if info.failures == 1 {
		info.failureStart = done
		info.baseRetry = info.duration / time.Duration(manager.config.RetryDivisor)
	}
	info.renewAt = info.failureStart.Add(info.baseRetry * time.Duration(2*(info.failures-1)))

	if info.renewAt.After(info.failureStart.Add(info.duration)) {
		info.gaveUp = true
		mon.Counter("renewal_gave_up").Inc(1) //mon:locked
		manager.log.Info("stopped renewing leases",
			zap.Stringer("endpoint", info.endpoint),
			zap.Int("failures", info.failures),
			zap.Error(err))
		return err
	}

	manager.log.Warn("lease renewal failed",
		zap.Stringer("endpoint", info.endpoint),
		zap.Int("failures", info.failures),
		zap.Time("retry", info.renewAt),
		zap.Error(err))
	return err
}
