// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package node wires the export registry, the lease authority and the lease
// manager of a process into a single peer.
package node

import (
	"context"
	"errors"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/dgc/client/leasemgr"
	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/pkg/dgcpb"
	"storj.io/dgc/pkg/rpc"
	"storj.io/dgc/private/lifecycle"
	"storj.io/dgc/private/server"
	"storj.io/dgc/server/authority"
	"storj.io/dgc/server/export"
	"storj.io/dgc/server/objtable"
)

var (
	mon = monkit.Package()

	// Error is the error class for the peer.
	Error = errs.Class("node")
)

// Config is all the configuration parameters for a node.
type Config struct {
	Server    server.Config
	Export    export.Config
	Authority authority.Config
	Leases    leasemgr.Config

	DialTimeout time.Duration `help:"timeout for dialing other nodes" default:"20s"`
}

// Peer is a process exporting and importing remote objects.
type Peer struct {
	Log *zap.Logger

	Servers *lifecycle.Group
	Tasks   *lifecycle.Tasks

	Server  *server.Server
	Objects *objtable.Table

	Export struct {
		Registry *export.Registry
		Endpoint *export.Endpoint
	}

	Authority struct {
		Service *authority.Authority
		Stub    dgcid.Stub
	}

	Leases struct {
		Client  *rpc.Client
		Manager *leasemgr.Manager
	}
}

// New creates a new peer.
func New(log *zap.Logger, config Config) (*Peer, error) {
	peer := &Peer{
		Log:     log,
		Servers: lifecycle.NewGroup(log.Named("servers")),
		Tasks:   lifecycle.NewTasks(log.Named("tasks")),
	}
	peer.Servers.Add(lifecycle.Item{
		Name:  "tasks",
		Close: peer.Tasks.Close,
	})

	var err error

	{ // setup server
		peer.Server, err = server.New(log.Named("server"), config.Server)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup export
		peer.Objects = objtable.New(log.Named("objtable"), peer.Tasks)
		peer.Export.Registry = export.NewRegistry(log.Named("export"), config.Export, peer.Server.Endpoint(), peer.Objects, peer.Tasks)
		peer.Servers.Add(lifecycle.Item{
			Name:  "export:acks",
			Run:   peer.Export.Registry.Run,
			Close: peer.Export.Registry.Close,
		})

		peer.Export.Endpoint = export.NewEndpoint(log.Named("export:endpoint"), peer.Export.Registry)
		if err := dgcpb.DRPCRegisterRemote(peer.Server.DRPC(), peer.Export.Endpoint); err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup authority
		peer.Authority.Service = authority.New(log.Named("authority"), config.Authority, peer.Objects, peer.Tasks)
		peer.Authority.Stub, err = export.Export(peer.Export.Registry, peer.Authority.Service, authority.Methods, export.Options{
			ObjectID:  dgcid.DGCObjectID,
			System:    true,
			Permanent: true,
		})
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup lease manager
		dialer := rpc.NewDefaultDialer()
		dialer.DialTimeout = config.DialTimeout

		peer.Leases.Client = rpc.NewClient(log.Named("rpc"), dialer)
		peer.Leases.Manager, err = leasemgr.New(log.Named("leasemgr"), config.Leases, peer.Leases.Client, peer.Tasks)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	peer.Servers.Add(lifecycle.Item{
		Name:  "server",
		Run:   peer.Server.Run,
		Close: peer.Server.Close,
	})

	return peer, nil
}

// Run runs the peer until it's either closed or it errors.
func (peer *Peer) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	group, ctx := errgroup.WithContext(ctx)
	peer.Servers.Run(ctx, group)
	return group.Wait()
}

// Close closes all the resources.
func (peer *Peer) Close() error {
	return peer.Servers.Close()
}

// Endpoint returns the endpoint stubs of this peer refer to.
func (peer *Peer) Endpoint() dgcid.Endpoint { return peer.Server.Endpoint() }

// Import returns a proxy for a remote object and keeps it leased while the
// proxy is reachable.
func (peer *Peer) Import(stub dgcid.Stub) *leasemgr.Proxy {
	return peer.Leases.Manager.Import(stub)
}

// Invoke calls method on the object of proxy. References returned by the
// call are imported before they are acknowledged.
func (peer *Peer) Invoke(ctx context.Context, proxy *leasemgr.Proxy, method string, payload []byte) (_ []byte, _ []*leasemgr.Proxy, err error) {
	defer mon.Task()(&ctx)(&err)

	response, err := peer.Leases.Client.Invoke(ctx, proxy.Stub(), method, payload)
	if err != nil {
		return nil, nil, err
	}

	proxies := make([]*leasemgr.Proxy, 0, len(response.Refs))
	endpoints := map[dgcid.Endpoint]struct{}{}
	for _, ref := range response.Refs {
		stub, err := ref.Stub()
		if err != nil {
			return nil, nil, Error.Wrap(err)
		}
		proxies = append(proxies, peer.Import(stub))
		endpoints[stub.Endpoint] = struct{}{}
	}

	// the exporting side holds the results only until the ack. A failed
	// renewal is retried by the lease manager.
	for endpoint := range endpoints {
		if err := peer.Leases.Manager.Renew(ctx, endpoint); err != nil {
			peer.Log.Warn("leasing returned references failed", zap.Stringer("endpoint", endpoint), zap.Error(err))
		}
	}

	if !response.AckID.IsZero() {
		if err := peer.Leases.Client.Ack(ctx, proxy.Stub().Endpoint, response.AckID); err != nil {
			// the server releases unacknowledged results after a timeout
			peer.Log.Warn("ack failed", zap.Stringer("endpoint", proxy.Stub().Endpoint), zap.Error(err))
		}
	}
	return response.Payload, proxies, nil
}

// IsNotExported returns whether err reports a call to an object that is
// not exported anymore.
func IsNotExported(err error) bool {
	return rpc.ErrNotExported.Has(err) || errors.Is(err, export.ErrNotExported)
}
