// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package rpcpeer finds the remote address of the caller of a drpc method.
package rpcpeer

import (
	"context"
	"net"

	"github.com/zeebo/errs"

	"storj.io/drpc/drpcctx"
)

// Error is the class of errors returned by this package.
var Error = errs.Class("rpcpeer")

// Peer represents the remote end of a drpc call.
type Peer struct {
	Addr net.Addr
}

// FromContext returns the peer of the call handled with ctx.
func FromContext(ctx context.Context) (*Peer, error) {
	tr, ok := drpcctx.Transport(ctx)
	if !ok {
		return nil, Error.New("unable to get drpc peer from context")
	}

	conn, ok := tr.(interface {
		RemoteAddr() net.Addr
	})
	if !ok {
		return nil, Error.New("drpc transport does not have required methods")
	}

	return &Peer{Addr: conn.RemoteAddr()}, nil
}
