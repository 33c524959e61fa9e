// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package node_test

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/dgc/client/leasemgr"
	"storj.io/dgc/node"
	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/private/server"
	"storj.io/dgc/server/authority"
	"storj.io/dgc/server/export"
	"storj.io/dgc/server/objtable"
)

type counter struct {
	mu    sync.Mutex
	value int

	once         sync.Once
	unreferenced chan struct{}
}

func newCounter() *counter {
	return &counter{unreferenced: make(chan struct{})}
}

func (c *counter) Unreferenced() {
	c.once.Do(func() { close(c.unreferenced) })
}

func (c *counter) isUnreferenced() bool {
	select {
	case <-c.unreferenced:
		return true
	default:
		return false
	}
}

func counterMethods(registry *export.Registry) objtable.Methods {
	methods := objtable.Methods{
		"increment": func(ctx context.Context, impl any, payload []byte) ([]byte, error) {
			c := impl.(*counter)
			c.mu.Lock()
			defer c.mu.Unlock()
			c.value++
			return []byte{byte(c.value)}, nil
		},
	}
	methods["create"] = func(ctx context.Context, impl any, payload []byte) ([]byte, error) {
		created := newCounter()
		stub, err := export.Export(registry, created, methods, export.Options{})
		if err != nil {
			return nil, err
		}
		export.ReturnRef(ctx, stub, created)
		return []byte("created"), nil
	}
	return methods
}

func testConfig() node.Config {
	return node.Config{
		Server: server.Config{Address: "127.0.0.1:0"},
		Export: export.Config{
			AckTimeout:       time.Minute,
			AckSweepInterval: time.Minute,
		},
		Authority: authority.Config{
			LeaseDuration: 2 * time.Second,
			CheckInterval: 100 * time.Millisecond,
		},
		Leases: leasemgr.Config{
			LeaseDuration:    2 * time.Second,
			CleanInterval:    100 * time.Millisecond,
			MaxCleanFailures: 4,
			RetryDivisor:     32,
		},
		DialTimeout: 5 * time.Second,
	}
}

func newPeer(t *testing.T, ctx *testcontext.Context) *node.Peer {
	peer, err := node.New(zaptest.NewLogger(t), testConfig())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	ctx.Go(func() error { return peer.Run(runCtx) })
	t.Cleanup(func() {
		cancel()
		ctx.Check(peer.Close)
	})
	return peer
}

func TestLeaseLifecycle(t *testing.T) {
	ctx := testcontext.New(t)
	a, b := newPeer(t, ctx), newPeer(t, ctx)

	impl := newCounter()
	stub, err := export.Export(a.Export.Registry, impl, counterMethods(a.Export.Registry), export.Options{})
	require.NoError(t, err)
	require.Equal(t, a.Endpoint(), stub.Endpoint)

	vmid := b.Leases.Manager.VMID()
	func() {
		proxy := b.Import(stub)

		payload, refs, err := b.Invoke(ctx, proxy, "increment", nil)
		require.NoError(t, err)
		require.Empty(t, refs)
		require.Equal(t, []byte{1}, payload)

		require.Eventually(t, func() bool {
			_, ok := a.Authority.Service.Leases(stub.ObjectID)[vmid]
			return ok
		}, 10*time.Second, 10*time.Millisecond)
		require.Equal(t, []dgcid.ObjectID{stub.ObjectID}, a.Authority.Service.Holders(vmid))
		require.True(t, a.Objects.Get(stub.ObjectID).Ref.IsStrong())

		runtime.KeepAlive(proxy)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return impl.isUnreferenced()
	}, 10*time.Second, 10*time.Millisecond)

	record := a.Objects.Get(stub.ObjectID)
	require.NotNil(t, record)
	require.False(t, record.IsLeased())
	require.False(t, record.Ref.IsStrong())
	_, released := record.Released(vmid)
	require.True(t, released)

	require.Eventually(t, func() bool {
		return len(b.Leases.Manager.Endpoints()) == 0
	}, 10*time.Second, 10*time.Millisecond)

	runtime.KeepAlive(impl)
}

func TestReturnedReference(t *testing.T) {
	ctx := testcontext.New(t)
	a, b := newPeer(t, ctx), newPeer(t, ctx)

	factory := newCounter()
	stub, err := export.Export(a.Export.Registry, factory, counterMethods(a.Export.Registry), export.Options{Permanent: true})
	require.NoError(t, err)

	payload, refs, err := b.Invoke(ctx, b.Import(stub), "create", nil)
	require.NoError(t, err)
	require.Equal(t, "created", string(payload))
	require.Len(t, refs, 1)
	require.Zero(t, a.Export.Registry.PendingAcks())

	created := refs[0].Stub()
	require.Equal(t, a.Endpoint(), created.Endpoint)
	require.Contains(t, a.Authority.Service.Leases(created.ObjectID), b.Leases.Manager.VMID())

	payload, _, err = b.Invoke(ctx, refs[0], "increment", nil)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, payload)

	runtime.KeepAlive(refs)
}

func TestInvokeNotExported(t *testing.T) {
	ctx := testcontext.New(t)
	a, b := newPeer(t, ctx), newPeer(t, ctx)

	stub := dgcid.Stub{ObjectID: dgcid.ObjectID(testrand.UUID()), Endpoint: a.Endpoint()}
	_, _, err := b.Invoke(ctx, b.Import(stub), "increment", nil)
	require.Error(t, err)
	require.True(t, node.IsNotExported(err))
}

func TestAuthorityExported(t *testing.T) {
	ctx := testcontext.New(t)
	a := newPeer(t, ctx)

	require.Equal(t, dgcid.DGCObjectID, a.Authority.Stub.ObjectID)
	require.True(t, export.IsExported(a.Export.Registry, a.Authority.Service))
	require.Zero(t, a.Export.Registry.NonSystemObjects())
	require.False(t, a.Export.Registry.Scavenging())
}

func TestReturnedReferenceUnreachable(t *testing.T) {
	ctx := testcontext.New(t)
	a, b := newPeer(t, ctx), newPeer(t, ctx)

	unreachable := dgcid.Endpoint{Host: "127.0.0.1", Port: 1, Transport: dgcid.DefaultTransport}
	methods := objtable.Methods{
		"elsewhere": func(ctx context.Context, impl any, payload []byte) ([]byte, error) {
			stub := dgcid.Stub{ObjectID: dgcid.ObjectID(testrand.UUID()), Endpoint: unreachable}
			export.ReturnRef(ctx, stub, impl)
			return []byte("moved"), nil
		},
	}

	impl := newCounter()
	stub, err := export.Export(a.Export.Registry, impl, methods, export.Options{Permanent: true})
	require.NoError(t, err)

	payload, refs, err := b.Invoke(ctx, b.Import(stub), "elsewhere", nil)
	require.NoError(t, err)
	require.Equal(t, "moved", string(payload))
	require.Len(t, refs, 1)
	require.Equal(t, unreachable, refs[0].Stub().Endpoint)
	require.Zero(t, a.Export.Registry.PendingAcks())

	status, ok := b.Leases.Manager.Status(unreachable)
	require.True(t, ok)
	require.Equal(t, []dgcid.ObjectID{refs[0].Stub().ObjectID}, status.Renew)

	runtime.KeepAlive(refs)
	runtime.KeepAlive(impl)
}
