// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package rpc

import (
	"context"
	"encoding/json"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"
	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/pkg/dgcpb"
	"storj.io/dgc/pkg/rpc/rpcstatus"
)

// ErrNotExported is returned when the remote process does not export the
// called object.
var ErrNotExported = errs.Class("not exported")

// Client invokes methods of remote objects. It dials a connection per call.
type Client struct {
	log    *zap.Logger
	dialer Dialer
}

// NewClient creates a client using dialer.
func NewClient(log *zap.Logger, dialer Dialer) *Client {
	return &Client{log: log, dialer: dialer}
}

// Invoke calls method of the object referenced by stub.
func (client *Client) Invoke(ctx context.Context, stub dgcid.Stub, method string, payload []byte) (_ *dgcpb.InvokeResponse, err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := client.dialer.DialEndpoint(ctx, stub.Endpoint)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, conn.Close()) }()

	response, err := conn.RemoteClient().Invoke(ctx, &dgcpb.InvokeRequest{
		ObjectID: stub.ObjectID,
		Method:   method,
		Payload:  payload,
	})
	if err != nil {
		if rpcstatus.Code(err) == rpcstatus.NotFound {
			return nil, ErrNotExported.Wrap(err)
		}
		return nil, Error.Wrap(err)
	}
	return response, nil
}

// Ack acknowledges a response that carried an ack id.
func (client *Client) Ack(ctx context.Context, endpoint dgcid.Endpoint, ackID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := client.dialer.DialEndpoint(ctx, endpoint)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, conn.Close()) }()

	_, err = conn.RemoteClient().Ack(ctx, &dgcpb.AckRequest{AckID: ackID})
	return Error.Wrap(err)
}

// Dirty asks the lease authority at endpoint for leases on ids.
func (client *Client) Dirty(ctx context.Context, endpoint dgcid.Endpoint, ids []dgcid.ObjectID, seq int64, lease dgcid.Lease) (_ dgcid.Lease, err error) {
	defer mon.Task()(&ctx)(&err)

	var response dgcpb.DirtyResponse
	err = client.call(ctx, endpoint, dgcpb.MethodDirty, &dgcpb.DirtyRequest{
		IDs:   ids,
		Seq:   seq,
		Lease: lease,
	}, &response)
	if err != nil {
		return dgcid.Lease{}, err
	}
	return response.Lease, nil
}

// Clean releases the leases of vmid on ids at endpoint.
func (client *Client) Clean(ctx context.Context, endpoint dgcid.Endpoint, ids []dgcid.ObjectID, seq int64, vmid dgcid.VMID, strong bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	return client.call(ctx, endpoint, dgcpb.MethodClean, &dgcpb.CleanRequest{
		IDs:    ids,
		Seq:    seq,
		VMID:   vmid,
		Strong: strong,
	}, &dgcpb.CleanResponse{})
}

// call invokes method on the lease authority object of endpoint.
func (client *Client) call(ctx context.Context, endpoint dgcid.Endpoint, method string, request, response any) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return Error.Wrap(err)
	}

	result, err := client.Invoke(ctx, dgcid.Stub{ObjectID: dgcid.DGCObjectID, Endpoint: endpoint}, method, payload)
	if err != nil {
		client.log.Debug("lease call failed",
			zap.String("method", method),
			zap.Stringer("endpoint", endpoint),
			zap.Error(err))
		return err
	}
	return Error.Wrap(json.Unmarshal(result.Payload, response))
}
