// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package authority

import (
	"context"
	"encoding/json"

	"storj.io/dgc/pkg/dgcpb"
	"storj.io/dgc/pkg/rpc/rpcstatus"
	"storj.io/dgc/server/objtable"
)

// Methods dispatches remote dirty and clean calls to an exported Authority.
var Methods = objtable.Methods{
	dgcpb.MethodDirty: func(ctx context.Context, impl any, payload []byte) ([]byte, error) {
		var req dgcpb.DirtyRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, rpcstatus.Wrap(rpcstatus.InvalidArgument, err)
		}
		lease, err := impl.(*Authority).Dirty(ctx, req.IDs, req.Seq, req.Lease)
		if err != nil {
			return nil, err
		}
		return json.Marshal(dgcpb.DirtyResponse{Lease: lease})
	},
	dgcpb.MethodClean: func(ctx context.Context, impl any, payload []byte) ([]byte, error) {
		var req dgcpb.CleanRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, rpcstatus.Wrap(rpcstatus.InvalidArgument, err)
		}
		if err := impl.(*Authority).Clean(ctx, req.IDs, req.Seq, req.VMID, req.Strong); err != nil {
			return nil, err
		}
		return json.Marshal(dgcpb.CleanResponse{})
	},
}
