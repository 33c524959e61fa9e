// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package authority grants and releases the leases remote processes hold on
// exported objects.
package authority

import (
	"context"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/private/lifecycle"
	"storj.io/dgc/server/objtable"
)

var (
	mon = monkit.Package()

	// Error is the error class for the lease authority.
	Error = errs.Class("authority")
)

// Config contains configurable values for the lease authority.
type Config struct {
	LeaseDuration time.Duration `help:"maximum lease granted to a remote process" default:"10m"`
	CheckInterval time.Duration `help:"how often expired leases are released, 0 means half of the lease duration" default:"0s"`
}

// checkInterval returns the effective expiration check interval.
func (config Config) checkInterval() time.Duration {
	if config.CheckInterval > 0 {
		return config.CheckInterval
	}
	return config.LeaseDuration / 2
}

// Authority handles dirty and clean calls for the objects of a table.
//
// Lock order: Authority.mu before the lock of any record.
//
// architecture: Service
type Authority struct {
	log     *zap.Logger
	config  Config
	table   *objtable.Table
	spawner lifecycle.Spawner

	mu       sync.Mutex
	nowFn    func() time.Time
	vms      map[dgcid.VMID]map[dgcid.ObjectID]struct{}
	tracking bool
}

// New creates a lease authority for the records of table.
func New(log *zap.Logger, config Config, table *objtable.Table, spawner lifecycle.Spawner) *Authority {
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = 10 * time.Minute
	}
	return &Authority{
		log:     log,
		config:  config,
		table:   table,
		spawner: spawner,
		nowFn:   time.Now,
		vms:     map[dgcid.VMID]map[dgcid.ObjectID]struct{}{},
	}
}

// Dirty leases ids to the VM of lease and renews every other lease that VM
// holds. A missing VM identity is minted. The returned lease carries the
// granted duration.
func (authority *Authority) Dirty(ctx context.Context, ids []dgcid.ObjectID, seq int64, lease dgcid.Lease) (_ dgcid.Lease, err error) {
	defer mon.Task()(&ctx)(&err)

	vmid := lease.VMID
	if vmid.IsZero() {
		vmid, err = dgcid.NewVMID()
		if err != nil {
			return dgcid.Lease{}, Error.Wrap(err)
		}
		authority.log.Debug("assigned vm identity", zap.Stringer("vmid", vmid))
	}

	duration := min(max(lease.Duration, 0), authority.config.LeaseDuration)
	granted := dgcid.Lease{VMID: vmid, Duration: duration}
	mon.IntVal("lease_duration_ms").Observe(duration.Milliseconds())

	authority.mu.Lock()
	defer authority.mu.Unlock()

	held, known := authority.vms[vmid]
	if !known {
		if len(ids) == 0 {
			return granted, nil
		}
		held = map[dgcid.ObjectID]struct{}{}
		authority.vms[vmid] = held
	}
	for _, id := range ids {
		held[id] = struct{}{}
	}
	authority.startTrackerLocked()

	expiration := authority.nowFn().Add(duration)
	for id := range held {
		record := authority.table.Get(id)
		if record == nil {
			delete(held, id)
			continue
		}
		record.MarkDirty(vmid, seq, expiration)
	}
	if len(held) == 0 {
		delete(authority.vms, vmid)
	}

	mon.Counter("dirty_calls").Inc(1) //mon:locked
	authority.log.Debug("dirty",
		zap.Stringer("vmid", vmid),
		zap.Int64("seq", seq),
		zap.Int("objects", len(ids)),
		zap.Duration("duration", duration))
	return granted, nil
}

// Clean releases the leases vmid holds on ids, or on every object it leased
// when ids is empty. With strong the release is remembered so older dirty
// calls cannot renew the lease.
func (authority *Authority) Clean(ctx context.Context, ids []dgcid.ObjectID, seq int64, vmid dgcid.VMID, strong bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	authority.mu.Lock()
	defer authority.mu.Unlock()

	held, ok := authority.vms[vmid]
	if !ok {
		authority.log.Debug("clean from unknown vm", zap.Stringer("vmid", vmid))
		return nil
	}

	targets := ids
	if len(targets) == 0 {
		targets = make([]dgcid.ObjectID, 0, len(held))
		for id := range held {
			targets = append(targets, id)
		}
	}

	for _, id := range targets {
		record := authority.table.Get(id)
		if record == nil || record.MarkClean(vmid, seq, strong) {
			delete(held, id)
		}
	}
	if len(held) == 0 {
		delete(authority.vms, vmid)
	}

	mon.Counter("clean_calls").Inc(1) //mon:locked
	authority.log.Debug("clean",
		zap.Stringer("vmid", vmid),
		zap.Int64("seq", seq),
		zap.Int("objects", len(targets)),
		zap.Bool("strong", strong))
	return nil
}

// Leases returns the lease expirations of every VM holding id.
func (authority *Authority) Leases(id dgcid.ObjectID) map[dgcid.VMID]time.Time {
	record := authority.table.Get(id)
	if record == nil {
		return nil
	}
	return record.Leases()
}

// Holders returns the objects vmid is tracked for.
func (authority *Authority) Holders(vmid dgcid.VMID) []dgcid.ObjectID {
	authority.mu.Lock()
	defer authority.mu.Unlock()

	held := authority.vms[vmid]
	ids := make([]dgcid.ObjectID, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	return ids
}

// VMs returns the number of VMs holding leases.
func (authority *Authority) VMs() int {
	authority.mu.Lock()
	defer authority.mu.Unlock()
	return len(authority.vms)
}

// TestingSetNow allows tests to have the authority act as if the current time is whatever they want.
func (authority *Authority) TestingSetNow(nowFn func() time.Time) {
	authority.mu.Lock()
	defer authority.mu.Unlock()
	authority.nowFn = nowFn
}
