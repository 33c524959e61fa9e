// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package export makes local objects callable by other processes and drops
// them once they are neither leased nor referenced locally.
package export

import (
	"context"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"
	"storj.io/common/uuid"
	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/pkg/liveness"
	"storj.io/dgc/private/lifecycle"
	"storj.io/dgc/server/objtable"
)

var (
	mon = monkit.Package()

	// Error is the error class for exporting.
	Error = errs.Class("export")

	// ErrDuplicateExport is returned when exporting an object twice.
	ErrDuplicateExport = Error.New("object already exported")

	// ErrNotExported is returned for objects that are not exported.
	ErrNotExported = Error.New("object not exported")
)

// Config contains configurable values for the export registry.
type Config struct {
	AckTimeout       time.Duration `help:"how long objects returned in a call are held while waiting for an acknowledgment" default:"5m"`
	AckSweepInterval time.Duration `help:"how often unacknowledged results are released" default:"1m"`
}

// Options control how an object is exported.
type Options struct {
	// ObjectID is used instead of a random id when set.
	ObjectID dgcid.ObjectID
	// System objects do not keep the scavenger running.
	System bool
	// Permanent objects are never dropped to a weak reference.
	Permanent bool
}

// Registry is the entry point for exporting objects.
//
// architecture: Service
type Registry struct {
	log      *zap.Logger
	config   Config
	endpoint dgcid.Endpoint
	table    *objtable.Table
	queue    *liveness.Queue
	spawner  lifecycle.Spawner
	nowFn    func() time.Time

	AckLoop *sync2.Cycle

	mu          sync.Mutex
	activeCalls int
	nonSystem   int
	scavenging  bool
	stopScav    chan struct{}
	acks        map[uuid.UUID]pendingAck
}

type pendingAck struct {
	objs     []any
	deadline time.Time
}

// NewRegistry creates a registry exporting objects at endpoint into table.
func NewRegistry(log *zap.Logger, config Config, endpoint dgcid.Endpoint, table *objtable.Table, spawner lifecycle.Spawner) *Registry {
	if config.AckTimeout <= 0 {
		config.AckTimeout = 5 * time.Minute
	}
	if config.AckSweepInterval <= 0 {
		config.AckSweepInterval = time.Minute
	}
	return &Registry{
		log:      log,
		config:   config,
		endpoint: endpoint,
		table:    table,
		queue:    liveness.NewQueue(),
		spawner:  spawner,
		nowFn:    time.Now,

		AckLoop: sync2.NewCycle(config.AckSweepInterval),

		acks: map[uuid.UUID]pendingAck{},
	}
}

// Export exports impl so it can be called through the returned stub.
func Export[T any](registry *Registry, impl *T, dispatcher objtable.Dispatcher, opts Options) (dgcid.Stub, error) {
	ref := liveness.New(impl, registry.queue)
	stub, err := registry.export(ref, dispatcher, opts)
	if err != nil {
		ref.Clear()
		return dgcid.Stub{}, err
	}
	return stub, nil
}

// Unexport removes impl from the registry. Unless force is set, it returns
// false without unexporting while calls to impl are in progress.
func Unexport[T any](registry *Registry, impl *T, force bool) (bool, error) {
	return registry.unexport(liveness.KeyOf(impl), force)
}

// IsExported returns whether impl is exported.
func IsExported[T any](registry *Registry, impl *T) bool {
	return registry.table.Lookup(liveness.KeyOf(impl)) != nil
}

// StubOf returns the stub of the exported impl.
func StubOf[T any](registry *Registry, impl *T) (dgcid.Stub, error) {
	record := registry.table.Lookup(liveness.KeyOf(impl))
	if record == nil {
		return dgcid.Stub{}, ErrNotExported
	}
	return record.Stub, nil
}

func (registry *Registry) export(ref *liveness.Reference, dispatcher objtable.Dispatcher, opts Options) (_ dgcid.Stub, err error) {
	id := opts.ObjectID
	if id.IsZero() {
		id, err = dgcid.NewObjectID()
		if err != nil {
			return dgcid.Stub{}, Error.Wrap(err)
		}
	}

	record := &objtable.Record{
		ID:         id,
		Ref:        ref,
		Stub:       dgcid.Stub{ObjectID: id, Endpoint: registry.endpoint},
		Dispatcher: dispatcher,
		System:     opts.System,
		Permanent:  opts.Permanent,
	}
	if opts.Permanent && !ref.MakeStrong() {
		return dgcid.Stub{}, Error.New("exporting collected object")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if err := registry.table.Add(record); err != nil {
		if errs.Is(err, objtable.ErrDuplicate) {
			return dgcid.Stub{}, ErrDuplicateExport
		}
		return dgcid.Stub{}, Error.Wrap(err)
	}

	if !opts.System {
		registry.nonSystem++
		registry.startScavenger()
	}

	mon.Counter("objects_exported").Inc(1)
	registry.log.Debug("exported", zap.Stringer("object", id), zap.Bool("system", opts.System), zap.Bool("permanent", opts.Permanent))
	return record.Stub, nil
}

func (registry *Registry) unexport(key liveness.Key, force bool) (bool, error) {
	record := registry.table.Lookup(key)
	if record == nil {
		return false, ErrNotExported
	}
	if !force && record.Calls() > 0 {
		return false, nil
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if !registry.removeLocked(record) {
		return false, ErrNotExported
	}
	record.Ref.Clear()
	registry.log.Debug("unexported", zap.Stringer("object", record.ID), zap.Bool("force", force))
	return true, nil
}

// removeLocked drops record from the table and updates the counters.
// registry.mu must be held.
func (registry *Registry) removeLocked(record *objtable.Record) bool {
	if !registry.table.Remove(record) {
		return false
	}
	if !record.System {
		registry.nonSystem--
	}
	registry.maybeStopScavenger()
	return true
}

// Dispatch calls method on the exported object id.
func (registry *Registry) Dispatch(ctx context.Context, id dgcid.ObjectID, method string, payload []byte) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	record := registry.table.Get(id)
	if record == nil {
		return nil, ErrNotExported
	}
	impl := record.Impl()
	if impl == nil {
		return nil, ErrNotExported
	}

	registry.startCall(record)
	defer registry.endCall(record)

	return record.Dispatcher.Dispatch(ctx, impl, method, payload)
}

func (registry *Registry) startCall(record *objtable.Record) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.activeCalls++
	record.StartCall()
}

func (registry *Registry) endCall(record *objtable.Record) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.activeCalls--
	record.EndCall()
	registry.maybeStopScavenger()
}

// ActiveCalls returns the number of calls in progress.
func (registry *Registry) ActiveCalls() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.activeCalls
}

// NonSystemObjects returns the number of exported non-system objects.
func (registry *Registry) NonSystemObjects() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.nonSystem
}

// Endpoint returns the endpoint stubs of this registry refer to.
func (registry *Registry) Endpoint() dgcid.Endpoint { return registry.endpoint }

// Table returns the object table of the registry.
func (registry *Registry) Table() *objtable.Table { return registry.table }
