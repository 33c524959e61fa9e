// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/process"
	"storj.io/dgc/node"
	"storj.io/dgc/server/export"
)

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	peer, err := node.New(log, runCfg)
	if err != nil {
		return errs.New("failed to create node: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, peer.Close())
	}()

	f := &factory{log: log.Named("factory")}
	stub, err := export.Export(peer.Export.Registry, f, counterMethods(log.Named("factory"), peer.Export.Registry), export.Options{
		Permanent: true,
	})
	if err != nil {
		return errs.New("failed to export factory: %+v", err)
	}

	log.Info("factory exported", zap.Stringer("stub", stub), zap.Stringer("vmid", peer.Leases.Manager.VMID()))
	fmt.Println(stub)

	return peer.Run(ctx)
}
