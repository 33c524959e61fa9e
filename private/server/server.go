// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package server serves the drpc endpoints of a node.
package server

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/dgc/pkg/dgcid"
	"storj.io/drpc/drpcmigrate"
	"storj.io/drpc/drpcmux"
	"storj.io/drpc/drpcserver"
)

var (
	mon = monkit.Package()

	// Error is the error class for the server.
	Error = errs.Class("server")
)

// Config holds server specific configuration parameters.
type Config struct {
	Address         string `user:"true" help:"address to listen on" default:":7777"`
	ExternalAddress string `user:"true" help:"address advertised in exported stubs, defaults to the listening address" default:""`
}

// Server serves drpc on a listener.
type Server struct {
	log      *zap.Logger
	listener net.Listener
	endpoint dgcid.Endpoint
	mux      *drpcmux.Mux
	drpc     *drpcserver.Server

	mu   sync.Mutex
	wg   sync.WaitGroup
	once sync.Once
	done chan struct{}
}

// New creates a Server listening on config.Address.
func New(log *zap.Logger, config Config) (*Server, error) {
	listener, err := net.Listen("tcp", config.Address)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	endpoint, err := advertised(listener.Addr(), config.ExternalAddress)
	if err != nil {
		return nil, errs.Combine(err, listener.Close())
	}

	mux := drpcmux.New()
	return &Server{
		log:      log,
		listener: listener,
		endpoint: endpoint,
		mux:      mux,
		drpc:     drpcserver.NewWithOptions(mux, drpcserver.Options{}),
		done:     make(chan struct{}),
	}, nil
}

// advertised returns the endpoint other processes use to reach addr.
func advertised(addr net.Addr, external string) (dgcid.Endpoint, error) {
	if external != "" {
		return dgcid.ParseEndpoint(external)
	}

	host, portString, err := net.SplitHostPort(addr.String())
	if err != nil {
		return dgcid.Endpoint{}, Error.Wrap(err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		return dgcid.Endpoint{}, Error.Wrap(err)
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return dgcid.Endpoint{Host: host, Port: port, Transport: dgcid.DefaultTransport}, nil
}

// Addr returns the server's listener address.
func (p *Server) Addr() net.Addr { return p.listener.Addr() }

// Endpoint returns the endpoint advertised in stubs.
func (p *Server) Endpoint() dgcid.Endpoint { return p.endpoint }

// DRPC returns the server's dRPC mux for registration purposes.
func (p *Server) DRPC() *drpcmux.Mux { return p.mux }

// Close shuts down the server.
func (p *Server) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Close done and wait for any Runs to exit.
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()

	// Run may never have been called; a duplicate close error is expected otherwise.
	_ = p.listener.Close()
	return nil
}

// Run serves until ctx is canceled or the server is closed.
func (p *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return Error.New("server closed")
	default:
		p.wg.Add(1)
		defer p.wg.Done()
	}
	p.mu.Unlock()

	listenMux := drpcmigrate.NewListenMux(p.listener, len(drpcmigrate.DRPCHeader))
	drpcListener := listenMux.Route(drpcmigrate.DRPCHeader)

	// the mux closes the listener when it exits, so it must outlive Serve.
	muxCtx, muxCancel := context.WithCancel(context.Background())
	defer muxCancel()

	var muxGroup errgroup.Group
	muxGroup.Go(func() error {
		return listenMux.Run(muxCtx)
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group errgroup.Group
	group.Go(func() error {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	group.Go(func() error {
		defer cancel()
		return p.drpc.Serve(ctx, drpcListener)
	})

	p.log.Debug("serving", zap.Stringer("address", p.listener.Addr()), zap.Stringer("endpoint", p.endpoint))
	err = group.Wait()

	muxCancel()
	return errs.Combine(err, muxGroup.Wait())
}
