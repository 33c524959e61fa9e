// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"storj.io/dgc/server/export"
	"storj.io/dgc/server/objtable"
)

// counter is the object exported by the demo factory.
type counter struct {
	log *zap.Logger

	mu    sync.Mutex
	value uint64
}

// Unreferenced implements objtable.Unreferenced.
func (c *counter) Unreferenced() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Info("counter unreferenced", zap.Uint64("value", c.value))
}

// factory creates counters for remote callers.
type factory struct {
	log     *zap.Logger
	created atomic.Int64
}

// counterMethods returns the methods of the factory and of the counters it
// creates. Created counters are exported from registry.
func counterMethods(log *zap.Logger, registry *export.Registry) objtable.Methods {
	methods := objtable.Methods{
		"increment": func(ctx context.Context, impl any, payload []byte) ([]byte, error) {
			c := impl.(*counter)
			c.mu.Lock()
			defer c.mu.Unlock()
			c.value++
			return binary.BigEndian.AppendUint64(nil, c.value), nil
		},
	}
	methods["create"] = func(ctx context.Context, impl any, payload []byte) ([]byte, error) {
		f := impl.(*factory)
		total := f.created.Add(1)

		created := &counter{log: f.log.Named("counter")}
		stub, err := export.Export(registry, created, methods, export.Options{})
		if err != nil {
			return nil, err
		}
		export.ReturnRef(ctx, stub, created)

		log.Info("counter created", zap.Stringer("stub", stub), zap.Int64("created", total))
		return nil, nil
	}
	return methods
}
