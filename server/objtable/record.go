// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package objtable

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/pkg/liveness"
	"storj.io/dgc/private/lifecycle"
)

// Unreferenced is implemented by exported objects that want to be told when
// no remote process holds a lease on them anymore.
type Unreferenced interface {
	Unreferenced()
}

// Record is the bookkeeping of a single exported object.
//
// A record keeps, per remote VM, the expiration and sequence number of the
// active lease, and the sequence number of the last strong clean of VMs that
// released the object.
type Record struct {
	ID         dgcid.ObjectID
	Ref        *liveness.Reference
	Stub       dgcid.Stub
	Dispatcher Dispatcher
	System     bool
	Permanent  bool

	log     *zap.Logger
	spawner lifecycle.Spawner

	mu       sync.Mutex
	leases   map[dgcid.VMID]lease
	released map[dgcid.VMID]int64
	calls    int
}

type lease struct {
	expiration time.Time
	seq        int64
}

// Impl returns the implementation object or nil once it is gone.
func (record *Record) Impl() any { return record.Ref.Get() }

// MarkDirty records a lease of vmid until expiration. Messages older than
// the current lease or than a remembered release are ignored. It returns
// false when the message was ignored or the implementation was already
// collected.
func (record *Record) MarkDirty(vmid dgcid.VMID, seq int64, expiration time.Time) bool {
	record.mu.Lock()
	defer record.mu.Unlock()

	if current, ok := record.leases[vmid]; ok && current.seq >= seq {
		mon.Counter("dirty_stale").Inc(1) //mon:locked
		record.log.Debug("stale dirty", zap.Stringer("vmid", vmid), zap.Int64("seq", seq), zap.Int64("current", current.seq))
		return false
	}
	if releasedSeq, ok := record.released[vmid]; ok && releasedSeq > seq {
		mon.Counter("dirty_after_release").Inc(1) //mon:locked
		record.log.Debug("dirty older than release", zap.Stringer("vmid", vmid), zap.Int64("seq", seq), zap.Int64("released", releasedSeq))
		return false
	}

	if !record.Ref.MakeStrong() {
		record.log.Debug("dirty for collected object", zap.Stringer("vmid", vmid))
		return false
	}

	delete(record.released, vmid)
	if record.leases == nil {
		record.leases = map[dgcid.VMID]lease{}
	}
	record.leases[vmid] = lease{expiration: expiration, seq: seq}
	return true
}

// MarkClean removes the lease of vmid. With strong, seq is remembered so
// later arriving dirty messages with a smaller sequence number are ignored.
// It returns false only for a stale message.
func (record *Record) MarkClean(vmid dgcid.VMID, seq int64, strong bool) bool {
	record.mu.Lock()
	defer record.mu.Unlock()

	current, leased := record.leases[vmid]
	if leased && current.seq >= seq {
		mon.Counter("clean_stale").Inc(1) //mon:locked
		record.log.Debug("stale clean", zap.Stringer("vmid", vmid), zap.Int64("seq", seq), zap.Int64("current", current.seq))
		return false
	}

	if leased {
		delete(record.leases, vmid)
		if len(record.leases) == 0 {
			record.unleased()
		}
	}

	if strong {
		if releasedSeq, ok := record.released[vmid]; ok && releasedSeq > seq {
			return true
		}
		if record.released == nil {
			record.released = map[dgcid.VMID]int64{}
		}
		record.released[vmid] = seq
	}
	return true
}

// Expire removes the lease of vmid when it expired before now. It returns
// true when vmid holds no lease afterwards.
func (record *Record) Expire(vmid dgcid.VMID, now time.Time) bool {
	record.mu.Lock()
	defer record.mu.Unlock()

	current, ok := record.leases[vmid]
	if !ok {
		return true
	}
	if now.Before(current.expiration) {
		return false
	}

	mon.Counter("lease_expired").Inc(1) //mon:locked
	record.log.Debug("lease expired", zap.Stringer("vmid", vmid), zap.Time("expiration", current.expiration))

	delete(record.leases, vmid)
	if len(record.leases) == 0 {
		record.unleased()
	}
	return true
}

// unleased demotes the reference and notifies the implementation. It must be
// called with record.mu held, once per transition to zero leases.
func (record *Record) unleased() {
	impl := record.Ref.Get()
	if !record.Permanent {
		record.Ref.MakeWeak()
	}

	notify, ok := impl.(Unreferenced)
	if !ok {
		return
	}
	mon.Counter("unreferenced").Inc(1) //mon:locked
	record.spawner.Go("unreferenced", func(ctx context.Context) {
		notify.Unreferenced()
	})
}

// Leases returns the expiration of every active lease.
func (record *Record) Leases() map[dgcid.VMID]time.Time {
	record.mu.Lock()
	defer record.mu.Unlock()

	leases := make(map[dgcid.VMID]time.Time, len(record.leases))
	for vmid, current := range record.leases {
		leases[vmid] = current.expiration
	}
	return leases
}

// IsLeased returns whether any VM holds a lease.
func (record *Record) IsLeased() bool {
	record.mu.Lock()
	defer record.mu.Unlock()
	return len(record.leases) > 0
}

// Released returns the remembered sequence number of a strong clean by vmid.
func (record *Record) Released(vmid dgcid.VMID) (seq int64, ok bool) {
	record.mu.Lock()
	defer record.mu.Unlock()
	seq, ok = record.released[vmid]
	return seq, ok
}

// StartCall counts an incoming call.
func (record *Record) StartCall() {
	record.mu.Lock()
	record.calls++
	record.mu.Unlock()
}

// EndCall finishes a call counted by StartCall.
func (record *Record) EndCall() {
	record.mu.Lock()
	record.calls--
	record.mu.Unlock()
}

// Calls returns the number of calls in progress.
func (record *Record) Calls() int {
	record.mu.Lock()
	defer record.mu.Unlock()
	return record.calls
}
