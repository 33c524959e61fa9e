// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package leasemgr

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storj.io/dgc/pkg/dgcid"
)

// cleanLoop makes clean calls for the released objects of info until none
// are left.
func (manager *Manager) cleanLoop(ctx context.Context, info *renewalInfo) {
	for {
		more, err := manager.cleanStep(ctx, info)
		if !more {
			return
		}
		if err == nil {
			continue
		}

		timer := time.NewTimer(manager.config.CleanInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			manager.stopCleaning(info)
			return
		case <-info.wakeClean:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// cleanStep makes one clean call. It returns false when nothing is left to
// clean, in which case the clean-caller of info is marked as stopped.
func (manager *Manager) cleanStep(ctx context.Context, info *renewalInfo) (more bool, err error) {
	batch, seq, strong, ok := manager.takeCleanBatch(info)
	if !ok {
		return false, nil
	}
	ids := make([]dgcid.ObjectID, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}

	err = manager.caller.Clean(ctx, info.endpoint, ids, seq, manager.vmid, strong)

	info.mu.Lock()
	defer info.mu.Unlock()

	if err == nil {
		mon.Counter("clean_succeeded").Inc(1) //mon:locked
		info.cleanFailures = 0
		for id, generation := range batch {
			// released again while the call was in progress
			if info.clean[id] == generation {
				delete(info.clean, id)
			}
		}
		return true, nil
	}

	mon.Counter("clean_failed").Inc(1) //mon:locked
	info.cleanFailures++
	// without leases to renew the endpoint is retried until the clean succeeds
	if info.cleanFailures > manager.config.MaxCleanFailures && len(info.renew) > 0 {
		mon.Counter("clean_gave_up").Inc(1) //mon:locked
		manager.log.Info("dropped pending releases",
			zap.Stringer("endpoint", info.endpoint),
			zap.Int("objects", len(info.clean)),
			zap.Int("failures", info.cleanFailures),
			zap.Error(ErrRemoteCall.Wrap(err)))
		info.cleanFailures = 0
		info.clean = map[dgcid.ObjectID]uint64{}
		return true, nil
	}

	manager.log.Warn("clean call failed",
		zap.Stringer("endpoint", info.endpoint),
		zap.Int("failures", info.cleanFailures),
		zap.Error(ErrRemoteCall.Wrap(err)))
	return true, ErrRemoteCall.Wrap(err)
}

// takeCleanBatch snapshots the objects to clean with the generation of
// their release. When there are none it stops the clean-caller and forgets
// info if it has no leases either.
func (manager *Manager) takeCleanBatch(info *renewalInfo) (batch map[dgcid.ObjectID]uint64, seq int64, strong bool, ok bool) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	info.mu.Lock()
	defer info.mu.Unlock()

	if len(info.clean) == 0 {
		info.cleaning = false
		manager.forgetLocked(info)
		return nil, 0, false, false
	}

	batch = make(map[dgcid.ObjectID]uint64, len(info.clean))
	for id, generation := range info.clean {
		batch[id] = generation
	}
	return batch, manager.nextSeq(), info.failures == 0, true
}

// stopCleaning marks the clean-caller of info as stopped.
func (manager *Manager) stopCleaning(info *renewalInfo) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	info.mu.Lock()
	defer info.mu.Unlock()

	info.cleaning = false
	manager.forgetLocked(info)
}

// forgetLocked removes info once it has nothing to renew or clean.
// manager.mu and info.mu must be held.
func (manager *Manager) forgetLocked(info *renewalInfo) {
	if len(info.renew) > 0 || len(info.clean) > 0 || info.cleaning {
		return
	}
	if manager.infos[info.endpoint] == info {
		delete(manager.infos, info.endpoint)
		manager.log.Debug("endpoint released", zap.Stringer("endpoint", info.endpoint))
	}
}
