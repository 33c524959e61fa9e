// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package export

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"storj.io/common/uuid"
	"storj.io/dgc/pkg/dgcpb"
	"storj.io/dgc/pkg/rpc/rpcpeer"
	"storj.io/dgc/pkg/rpc/rpcstatus"
	"storj.io/dgc/server/objtable"
)

// Endpoint serves calls of exported objects over drpc.
//
// architecture: Endpoint
type Endpoint struct {
	log      *zap.Logger
	registry *Registry
}

// NewEndpoint creates the drpc endpoint of registry.
func NewEndpoint(log *zap.Logger, registry *Registry) *Endpoint {
	return &Endpoint{log: log, registry: registry}
}

// Invoke dispatches a call to an exported object.
func (endpoint *Endpoint) Invoke(ctx context.Context, req *dgcpb.InvokeRequest) (_ *dgcpb.InvokeResponse, err error) {
	defer mon.Task()(&ctx)(&err)

	holder := &ackHolder{}
	payload, err := endpoint.registry.Dispatch(withAckHolder(ctx, holder), req.ObjectID, req.Method, req.Payload)
	if err != nil {
		return nil, endpoint.status(ctx, req, err)
	}

	response := &dgcpb.InvokeResponse{Payload: payload}
	if stubs, objs := holder.take(); len(stubs) > 0 {
		id, err := uuid.New()
		if err != nil {
			return nil, rpcstatus.Wrap(rpcstatus.Internal, err)
		}
		endpoint.registry.RegisterForAck(id, objs...)
		response.AckID = id
		for _, stub := range stubs {
			response.Refs = append(response.Refs, dgcpb.RefOf(stub))
		}
	}
	return response, nil
}

// Ack releases the objects held for a previous result.
func (endpoint *Endpoint) Ack(ctx context.Context, req *dgcpb.AckRequest) (_ *dgcpb.AckResponse, err error) {
	defer mon.Task()(&ctx)(&err)

	if !endpoint.registry.UnregisterForAck(req.AckID) {
		endpoint.log.Debug("unknown ack", zap.Stringer("ack", req.AckID))
	}
	return &dgcpb.AckResponse{}, nil
}

func (endpoint *Endpoint) status(ctx context.Context, req *dgcpb.InvokeRequest, err error) error {
	switch {
	case errors.Is(err, ErrNotExported):
		return rpcstatus.Wrap(rpcstatus.NotFound, err)
	case objtable.ErrUnknownMethod.Has(err):
		return rpcstatus.Wrap(rpcstatus.Unimplemented, err)
	case errors.Is(err, context.Canceled):
		return rpcstatus.Wrap(rpcstatus.Canceled, err)
	case rpcstatus.Code(err) != rpcstatus.Unknown:
		return err
	}

	fields := []zap.Field{zap.Stringer("object", req.ObjectID), zap.String("method", req.Method), zap.Error(err)}
	if peer, perr := rpcpeer.FromContext(ctx); perr == nil {
		fields = append(fields, zap.Stringer("peer", peer.Addr))
	}
	endpoint.log.Warn("call failed", fields...)
	return rpcstatus.Wrap(rpcstatus.Internal, err)
}
