// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package rpc

import (
	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/pkg/dgcpb"
	"storj.io/drpc"
	"storj.io/drpc/drpcconn"
)

// Conn is a wrapper around a drpc client connection.
type Conn struct {
	endpoint dgcid.Endpoint
	raw      *drpcconn.Conn
}

// Close closes the connection.
func (c *Conn) Close() error { return c.raw.Close() }

// Endpoint returns the dialed endpoint.
func (c *Conn) Endpoint() dgcid.Endpoint { return c.endpoint }

// Raw returns the underlying connection.
func (c *Conn) Raw() drpc.Conn { return c.raw }

// RemoteClient returns a client of the Remote service over the connection.
func (c *Conn) RemoteClient() dgcpb.DRPCRemoteClient {
	return dgcpb.NewDRPCRemoteClient(c.raw)
}
