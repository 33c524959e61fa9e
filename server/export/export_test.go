// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package export_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/pkg/dgcpb"
	"storj.io/dgc/pkg/rpc/rpcstatus"
	"storj.io/dgc/private/lifecycle"
	"storj.io/dgc/server/export"
	"storj.io/dgc/server/objtable"
)

type counter struct {
	value int
	data  [128]byte
}

var methods = objtable.Methods{
	"increment": func(ctx context.Context, impl any, payload []byte) ([]byte, error) {
		c := impl.(*counter)
		c.value++
		return []byte{byte(c.value)}, nil
	},
	"share": func(ctx context.Context, impl any, payload []byte) ([]byte, error) {
		stub := dgcid.Stub{ObjectID: dgcid.ObjectID{1}, Endpoint: testEndpoint}
		if !export.ReturnRef(ctx, stub, impl) {
			return nil, nil
		}
		return []byte("held"), nil
	},
}

var testEndpoint = dgcid.Endpoint{Host: "127.0.0.1", Port: 7777, Transport: "tcp"}

func newRegistry(t *testing.T, ctx *testcontext.Context) *export.Registry {
	log := zaptest.NewLogger(t)
	tasks := lifecycle.NewTasks(log)
	t.Cleanup(func() { ctx.Check(tasks.Close) })

	table := objtable.New(log, tasks)
	return export.NewRegistry(log, export.Config{
		AckTimeout:       time.Minute,
		AckSweepInterval: time.Hour,
	}, testEndpoint, table, tasks)
}

func TestExport(t *testing.T) {
	ctx := testcontext.New(t)
	registry := newRegistry(t, ctx)

	impl := &counter{}
	require.False(t, export.IsExported(registry, impl))

	stub, err := export.Export(registry, impl, methods, export.Options{})
	require.NoError(t, err)
	require.Equal(t, testEndpoint, stub.Endpoint)
	require.False(t, stub.ObjectID.IsZero())
	require.True(t, export.IsExported(registry, impl))

	found, err := export.StubOf(registry, impl)
	require.NoError(t, err)
	require.Equal(t, stub, found)

	_, err = export.Export(registry, impl, methods, export.Options{})
	require.ErrorIs(t, err, export.ErrDuplicateExport)

	_, err = export.Export(registry, &counter{}, methods, export.Options{ObjectID: stub.ObjectID})
	require.ErrorIs(t, err, export.ErrDuplicateExport)
	require.Equal(t, 1, registry.NonSystemObjects())

	ok, err := export.Unexport(registry, &counter{}, false)
	require.ErrorIs(t, err, export.ErrNotExported)
	require.False(t, ok)

	_, err = export.StubOf(registry, &counter{})
	require.ErrorIs(t, err, export.ErrNotExported)

	ok, err = export.Unexport(registry, impl, false)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, export.IsExported(registry, impl))
	require.Zero(t, registry.NonSystemObjects())

	_, err = registry.Dispatch(ctx, stub.ObjectID, "increment", nil)
	require.ErrorIs(t, err, export.ErrNotExported)
}

func TestDispatch(t *testing.T) {
	ctx := testcontext.New(t)
	registry := newRegistry(t, ctx)

	impl := &counter{}
	stub, err := export.Export(registry, impl, methods, export.Options{})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		out, err := registry.Dispatch(ctx, stub.ObjectID, "increment", nil)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i)}, out)
	}
	require.Zero(t, registry.ActiveCalls())

	_, err = registry.Dispatch(ctx, stub.ObjectID, "missing", nil)
	require.True(t, objtable.ErrUnknownMethod.Has(err))

	_, err = registry.Dispatch(ctx, dgcid.ObjectID(testrand.UUID()), "increment", nil)
	require.ErrorIs(t, err, export.ErrNotExported)
}

type blocking struct {
	entered chan struct{}
	release chan struct{}
}

var blockingMethods = objtable.Methods{
	"wait": func(ctx context.Context, impl any, payload []byte) ([]byte, error) {
		b := impl.(*blocking)
		close(b.entered)
		<-b.release
		return nil, nil
	},
}

func TestUnexportWithCallsInFlight(t *testing.T) {
	ctx := testcontext.New(t)
	registry := newRegistry(t, ctx)

	impl := &blocking{entered: make(chan struct{}), release: make(chan struct{})}
	stub, err := export.Export(registry, impl, blockingMethods, export.Options{})
	require.NoError(t, err)

	ctx.Go(func() error {
		_, err := registry.Dispatch(ctx, stub.ObjectID, "wait", nil)
		return err
	})
	<-impl.entered
	require.Equal(t, 1, registry.ActiveCalls())

	ok, err := export.Unexport(registry, impl, false)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, export.IsExported(registry, impl))

	ok, err = export.Unexport(registry, impl, true)
	require.NoError(t, err)
	require.True(t, ok)

	// the scavenger keeps running until the call finishes
	require.True(t, registry.Scavenging())
	close(impl.release)
	require.Eventually(t, func() bool { return !registry.Scavenging() }, 5*time.Second, time.Millisecond)
	require.Zero(t, registry.ActiveCalls())
}

func TestScavengerOnlyForNonSystemObjects(t *testing.T) {
	ctx := testcontext.New(t)
	registry := newRegistry(t, ctx)

	system := &counter{}
	_, err := export.Export(registry, system, methods, export.Options{System: true, Permanent: true})
	require.NoError(t, err)
	require.False(t, registry.Scavenging())

	impl := &counter{}
	_, err = export.Export(registry, impl, methods, export.Options{})
	require.NoError(t, err)
	require.True(t, registry.Scavenging())

	_, err = export.Unexport(registry, impl, false)
	require.NoError(t, err)
	require.False(t, registry.Scavenging())
	require.True(t, export.IsExported(registry, system))
}

func exportTemporary(t *testing.T, registry *export.Registry) dgcid.ObjectID {
	stub, err := export.Export(registry, &counter{}, methods, export.Options{})
	require.NoError(t, err)
	return stub.ObjectID
}

func TestScavengerRemovesCollected(t *testing.T) {
	ctx := testcontext.New(t)
	registry := newRegistry(t, ctx)

	id := exportTemporary(t, registry)
	require.NotNil(t, registry.Table().Get(id))

	require.Eventually(t, func() bool {
		runtime.GC()
		return registry.Table().Get(id) == nil
	}, 10*time.Second, 10*time.Millisecond)

	require.Zero(t, registry.NonSystemObjects())
	require.Eventually(t, func() bool { return !registry.Scavenging() }, 5*time.Second, time.Millisecond)
}

func TestPermanentSurvivesCollection(t *testing.T) {
	ctx := testcontext.New(t)
	registry := newRegistry(t, ctx)

	stub, err := export.Export(registry, &counter{}, methods, export.Options{Permanent: true})
	require.NoError(t, err)

	for range 3 {
		runtime.GC()
	}
	out, err := registry.Dispatch(ctx, stub.ObjectID, "increment", nil)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, out)
}

func TestAcks(t *testing.T) {
	ctx := testcontext.New(t)
	registry := newRegistry(t, ctx)

	now := time.Now()
	registry.TestingSetNow(func() time.Time { return now })

	first, second := testrand.UUID(), testrand.UUID()
	registry.RegisterForAck(first, &counter{})
	registry.RegisterForAck(second, &counter{}, &counter{})
	require.Equal(t, 2, registry.PendingAcks())

	require.True(t, registry.UnregisterForAck(first))
	require.False(t, registry.UnregisterForAck(first))

	ctx.Go(func() error { return registry.Run(ctx) })
	defer ctx.Check(registry.Close)

	registry.AckLoop.TriggerWait()
	require.Equal(t, 1, registry.PendingAcks())

	registry.TestingSetNow(func() time.Time { return now.Add(2 * time.Minute) })
	registry.AckLoop.TriggerWait()
	require.Zero(t, registry.PendingAcks())
}

func TestEndpoint(t *testing.T) {
	ctx := testcontext.New(t)
	registry := newRegistry(t, ctx)
	endpoint := export.NewEndpoint(zaptest.NewLogger(t), registry)

	impl := &counter{}
	stub, err := export.Export(registry, impl, methods, export.Options{})
	require.NoError(t, err)

	response, err := endpoint.Invoke(ctx, &dgcpb.InvokeRequest{ObjectID: stub.ObjectID, Method: "increment"})
	require.NoError(t, err)
	require.Equal(t, []byte{1}, response.Payload)
	require.True(t, response.AckID.IsZero())

	response, err = endpoint.Invoke(ctx, &dgcpb.InvokeRequest{ObjectID: stub.ObjectID, Method: "share"})
	require.NoError(t, err)
	require.Equal(t, "held", string(response.Payload))
	require.False(t, response.AckID.IsZero())
	require.Equal(t, []dgcpb.ObjectRef{{ObjectID: dgcid.ObjectID{1}, Endpoint: testEndpoint.String()}}, response.Refs)
	require.Equal(t, 1, registry.PendingAcks())

	_, err = endpoint.Ack(ctx, &dgcpb.AckRequest{AckID: response.AckID})
	require.NoError(t, err)
	require.Zero(t, registry.PendingAcks())

	_, err = endpoint.Invoke(ctx, &dgcpb.InvokeRequest{ObjectID: dgcid.ObjectID(testrand.UUID()), Method: "increment"})
	require.Equal(t, rpcstatus.NotFound, rpcstatus.Code(err))

	_, err = endpoint.Invoke(ctx, &dgcpb.InvokeRequest{ObjectID: stub.ObjectID, Method: "missing"})
	require.Equal(t, rpcstatus.Unimplemented, rpcstatus.Code(err))
}
