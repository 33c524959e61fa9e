// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"encoding/binary"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/private/lifecycle"
	"storj.io/dgc/server/export"
	"storj.io/dgc/server/objtable"
)

func TestCounterMethods(t *testing.T) {
	ctx := testcontext.New(t)
	log := zaptest.NewLogger(t)

	tasks := lifecycle.NewTasks(log)
	defer ctx.Check(tasks.Close)

	endpoint := dgcid.Endpoint{Host: "127.0.0.1", Port: 7777, Transport: dgcid.DefaultTransport}
	registry := export.NewRegistry(log, export.Config{AckTimeout: time.Minute, AckSweepInterval: time.Minute},
		endpoint, objtable.New(log, tasks), tasks)

	f := &factory{log: log}
	stub, err := export.Export(registry, f, counterMethods(log, registry), export.Options{Permanent: true})
	require.NoError(t, err)

	_, err = registry.Dispatch(ctx, stub.ObjectID, "create", nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.created.Load())

	c := &counter{log: log}
	counterStub, err := export.Export(registry, c, counterMethods(log, registry), export.Options{})
	require.NoError(t, err)

	for i := uint64(1); i <= 3; i++ {
		payload, err := registry.Dispatch(ctx, counterStub.ObjectID, "increment", nil)
		require.NoError(t, err)
		require.Equal(t, i, binary.BigEndian.Uint64(payload))
	}
	runtime.KeepAlive(c)

	_, err = registry.Dispatch(ctx, stub.ObjectID, "delete", nil)
	require.True(t, objtable.ErrUnknownMethod.Has(err))
}
