// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/process"
	"storj.io/common/sync2"
	"storj.io/dgc/node"
	"storj.io/dgc/pkg/dgcid"
)

func cmdHold(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	stub, err := dgcid.ParseStub(args[0])
	if err != nil {
		return err
	}

	peer, err := node.New(log, holdCfg.Config)
	if err != nil {
		return errs.New("failed to create node: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, peer.Close())
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group errgroup.Group
	group.Go(func() error {
		return peer.Run(ctx)
	})
	group.Go(func() error {
		defer cancel()
		return hold(ctx, log, peer, stub)
	})
	return group.Wait()
}

// hold creates a counter through the factory of stub, increments it, keeps
// it for a while and waits until the leases on the endpoint are released.
func hold(ctx context.Context, log *zap.Logger, peer *node.Peer, stub dgcid.Stub) error {
	err := func() error {
		_, refs, err := peer.Invoke(ctx, peer.Import(stub), "create", nil)
		if err != nil {
			return err
		}
		if len(refs) != 1 {
			return errs.New("factory returned %d references", len(refs))
		}
		created := refs[0]

		for range holdCfg.Increments {
			payload, _, err := peer.Invoke(ctx, created, "increment", nil)
			if err != nil {
				return err
			}
			if len(payload) != 8 {
				return errs.New("invalid counter value %x", payload)
			}
			fmt.Printf("%v = %d\n", created.Stub(), binary.BigEndian.Uint64(payload))
		}

		log.Info("holding counter", zap.Stringer("stub", created.Stub()), zap.Duration("duration", holdCfg.Hold))
		if !sync2.Sleep(ctx, holdCfg.Hold) {
			return ctx.Err()
		}
		return nil
	}()
	if err != nil {
		return err
	}

	log.Info("counter dropped, waiting for release", zap.Stringer("endpoint", stub.Endpoint))
	deadline := time.Now().Add(holdCfg.Release)
	for time.Now().Before(deadline) {
		runtime.GC()
		if _, ok := peer.Leases.Manager.Status(stub.Endpoint); !ok {
			log.Info("leases released", zap.Stringer("endpoint", stub.Endpoint))
			return nil
		}
		if !sync2.Sleep(ctx, 100*time.Millisecond) {
			return ctx.Err()
		}
	}
	return errs.New("leases on %v were not released in %v", stub.Endpoint, holdCfg.Release)
}
