// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package rpc dials the drpc endpoints of other processes and makes the
// calls the lease manager needs.
package rpc

import (
	"context"
	"net"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/dgc/pkg/dgcid"
	"storj.io/drpc/drpcconn"
	"storj.io/drpc/drpcmigrate"
)

var (
	mon = monkit.Package()

	// Error is the error class for dialing and calling remote endpoints.
	Error = errs.Class("rpc")
)

// Dialer holds configuration for dialing.
type Dialer struct {
	// DialTimeout causes all the dials to error if they take longer
	// than it if it is non-zero.
	DialTimeout time.Duration

	// DialLatency sleeps this amount if it is non-zero before every dial.
	// The timeout runs while the sleep is happening.
	DialLatency time.Duration

	// ConnectionOptions controls the options that we pass to drpc connections.
	ConnectionOptions drpcconn.Options
}

// NewDefaultDialer returns a Dialer with default timeouts set.
func NewDefaultDialer() Dialer {
	return Dialer{
		DialTimeout: 20 * time.Second,
	}
}

// DialEndpoint opens a drpc connection to endpoint.
func (d Dialer) DialEndpoint(ctx context.Context, endpoint dgcid.Endpoint) (_ *Conn, err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := d.dialContext(ctx, endpoint)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	// the listener routes on the header bytes
	if _, err := conn.Write([]byte(drpcmigrate.DRPCHeader)); err != nil {
		_ = conn.Close()
		return nil, Error.Wrap(err)
	}

	return &Conn{
		endpoint: endpoint,
		raw:      drpcconn.NewWithOptions(conn, d.ConnectionOptions),
	}, nil
}

// dialContext does a raw dial to the endpoint honoring the timeout and latency.
func (d Dialer) dialContext(ctx context.Context, endpoint dgcid.Endpoint) (net.Conn, error) {
	if d.DialTimeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, d.DialTimeout)
		defer cancel()
	}

	if d.DialLatency > 0 {
		timer := time.NewTimer(d.DialLatency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	network := endpoint.Transport
	if network == "" {
		network = dgcid.DefaultTransport
	}

	conn, err := new(net.Dialer).DialContext(ctx, network, endpoint.Address())
	if err != nil {
		// prefer the context error when the cancel raced with the dial
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return nil, err
		}
	}
	return conn, nil
}
