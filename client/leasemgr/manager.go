// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package leasemgr keeps the leases on remote objects this process refers to
// and releases them once the local proxies are collected.
package leasemgr

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/pkg/liveness"
	"storj.io/dgc/private/lifecycle"
)

var (
	mon = monkit.Package()

	// Error is the error class for the lease manager.
	Error = errs.Class("leasemgr")

	// ErrRemoteCall is the error class for failed dirty and clean calls.
	ErrRemoteCall = errs.Class("remote call")
)

// Config contains configurable values for the lease manager.
type Config struct {
	LeaseDuration    time.Duration `help:"lease duration requested from remote processes" default:"10m"`
	CleanInterval    time.Duration `help:"how long to wait before retrying a failed clean call" default:"3m"`
	MaxCleanFailures int           `help:"consecutive failed clean calls after which pending releases are dropped" default:"4"`
	RetryDivisor     int           `help:"lease duration divided by this is the base delay for retrying a failed renewal" default:"32"`
}

// withDefaults replaces unset values with their defaults.
func (config Config) withDefaults() Config {
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = 10 * time.Minute
	}
	if config.CleanInterval <= 0 {
		config.CleanInterval = 3 * time.Minute
	}
	if config.MaxCleanFailures <= 0 {
		config.MaxCleanFailures = 4
	}
	if config.RetryDivisor <= 0 {
		config.RetryDivisor = 32
	}
	return config
}

// Caller makes dirty and clean calls to the lease authority of an endpoint.
type Caller interface {
	Dirty(ctx context.Context, endpoint dgcid.Endpoint, ids []dgcid.ObjectID, seq int64, lease dgcid.Lease) (dgcid.Lease, error)
	Clean(ctx context.Context, endpoint dgcid.Endpoint, ids []dgcid.ObjectID, seq int64, vmid dgcid.VMID, strong bool) error
}

// Manager renews the leases of imported objects per endpoint.
//
// Lock order: Manager.mu before renewalInfo.mu. No lock is held during a call.
//
// architecture: Service
type Manager struct {
	log     *zap.Logger
	config  Config
	caller  Caller
	spawner lifecycle.Spawner
	vmid    dgcid.VMID
	seq     atomic.Int64
	queue   *liveness.Queue

	mu        sync.Mutex
	nowFn     func() time.Time
	infos     map[dgcid.Endpoint]*renewalInfo
	renewing  bool
	detecting bool
	wake      chan struct{}
}

// New creates a lease manager with a fresh VM identity.
func New(log *zap.Logger, config Config, caller Caller, spawner lifecycle.Spawner) (*Manager, error) {
	vmid, err := dgcid.NewVMID()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	config = config.withDefaults()

	manager := &Manager{
		log:     log.With(zap.Stringer("vmid", vmid)),
		config:  config,
		caller:  caller,
		spawner: spawner,
		vmid:    vmid,
		queue:   liveness.NewQueue(),
		nowFn:   time.Now,
		infos:   map[dgcid.Endpoint]*renewalInfo{},
		wake:    make(chan struct{}, 1),
	}
	manager.seq.Store(math.MinInt64)
	return manager, nil
}

// VMID returns the identity this process holds leases with.
func (manager *Manager) VMID() dgcid.VMID { return manager.vmid }

// nextSeq returns the next sequence number, starting at math.MinInt64.
func (manager *Manager) nextSeq() int64 { return manager.seq.Add(1) - 1 }

func (manager *Manager) now() time.Time {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	return manager.nowFn()
}

// Proxy is the local handle of a remote object. The lease on the object is
// kept while the proxy is reachable.
type Proxy struct {
	stub    dgcid.Stub
	watcher *liveness.Watcher
}

// Stub returns the remote reference of the proxy.
func (proxy *Proxy) Stub() dgcid.Stub { return proxy.stub }

// collected identifies the object of a collected proxy.
type collected struct {
	endpoint dgcid.Endpoint
	id       dgcid.ObjectID
}

// Import returns a proxy for stub and starts renewing its lease.
func (manager *Manager) Import(stub dgcid.Stub) *Proxy {
	proxy := &Proxy{stub: stub}
	manager.RegisterForRenew(proxy)
	return proxy
}

// RegisterForRenew starts renewing the lease of the object of proxy until
// the proxy is collected.
func (manager *Manager) RegisterForRenew(proxy *Proxy) {
	endpoint, id := proxy.stub.Endpoint, proxy.stub.ObjectID

	manager.mu.Lock()
	defer manager.mu.Unlock()

	info, ok := manager.infos[endpoint]
	if !ok {
		info = newRenewalInfo(endpoint, manager.config.LeaseDuration)
		manager.infos[endpoint] = info
	}

	info.mu.Lock()
	entry, ok := info.renew[id]
	if !ok {
		entry = &renewEntry{}
		info.renew[id] = entry
		delete(info.clean, id)

		info.renewAt = manager.nowFn()
		info.gaveUp = false
		info.failures = 0
	}
	entry.proxies++
	info.mu.Unlock()

	proxy.watcher = liveness.Watch(proxy, manager.queue, collected{endpoint: endpoint, id: id})

	manager.startDetectorLocked()
	manager.startRenewalLocked()
}

// unregisterForRenew drops one proxy of id. Once no proxy is left, the
// object is queued for a clean call.
func (manager *Manager) unregisterForRenew(endpoint dgcid.Endpoint, id dgcid.ObjectID) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	info, ok := manager.infos[endpoint]
	if !ok {
		return
	}

	info.mu.Lock()
	defer info.mu.Unlock()

	entry, ok := info.renew[id]
	if !ok {
		return
	}
	entry.proxies--
	if entry.proxies > 0 {
		return
	}

	delete(info.renew, id)
	info.generation++
	info.clean[id] = info.generation
	manager.log.Debug("queued release", zap.Stringer("endpoint", endpoint), zap.Stringer("object", id))

	if info.cleaning {
		select {
		case info.wakeClean <- struct{}{}:
		default:
		}
		return
	}
	info.cleaning = true
	manager.spawner.Go("clean-caller", func(ctx context.Context) {
		manager.cleanLoop(ctx, info)
	})
}

// startDetectorLocked starts watching for collected proxies.
// manager.mu must be held.
func (manager *Manager) startDetectorLocked() {
	if manager.detecting {
		return
	}
	manager.detecting = true
	manager.spawner.Go("collected-detector", manager.detect)
}

// detect turns collected proxies into releases until ctx is canceled.
func (manager *Manager) detect(ctx context.Context) {
	defer func() {
		manager.mu.Lock()
		manager.detecting = false
		manager.mu.Unlock()
	}()

	for {
		token, err := manager.queue.Remove(ctx)
		if err != nil {
			return
		}
		if proxy, ok := token.(collected); ok {
			mon.Counter("proxies_collected").Inc(1)
			manager.unregisterForRenew(proxy.endpoint, proxy.id)
		}
	}
}

// Status describes the leases held at an endpoint.
type Status struct {
	Renew    []dgcid.ObjectID
	Clean    []dgcid.ObjectID
	RenewAt  time.Time
	Failures int
	GaveUp   bool
	Duration time.Duration
}

// Status returns the state of endpoint and whether it is tracked.
func (manager *Manager) Status(endpoint dgcid.Endpoint) (Status, bool) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	info, ok := manager.infos[endpoint]
	if !ok {
		return Status{}, false
	}

	info.mu.Lock()
	defer info.mu.Unlock()

	status := Status{
		RenewAt:  info.renewAt,
		Failures: info.failures,
		GaveUp:   info.gaveUp,
		Duration: info.duration,
	}
	for id := range info.renew {
		status.Renew = append(status.Renew, id)
	}
	for id := range info.clean {
		status.Clean = append(status.Clean, id)
	}
	return status, true
}

// Endpoints returns the endpoints with leases or pending releases.
func (manager *Manager) Endpoints() []dgcid.Endpoint {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	endpoints := make([]dgcid.Endpoint, 0, len(manager.infos))
	for endpoint := range manager.infos {
		endpoints = append(endpoints, endpoint)
	}
	return endpoints
}

// TestingSetNow allows tests to have the manager act as if the current time is whatever they want.
func (manager *Manager) TestingSetNow(nowFn func() time.Time) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	manager.nowFn = nowFn
}
