// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package dgcpb

import (
	"context"
	"encoding/json"

	"storj.io/drpc"
)

// Encoding is the drpc encoding of the dgc messages.
type Encoding struct{}

// Marshal implements drpc.Encoding.
func (Encoding) Marshal(msg drpc.Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Unmarshal implements drpc.Encoding.
func (Encoding) Unmarshal(buf []byte, msg drpc.Message) error {
	return json.Unmarshal(buf, msg)
}

// DRPCRemoteClient is the client of the Remote service.
type DRPCRemoteClient interface {
	DRPCConn() drpc.Conn

	Invoke(ctx context.Context, in *InvokeRequest) (*InvokeResponse, error)
	Ack(ctx context.Context, in *AckRequest) (*AckResponse, error)
}

type drpcRemoteClient struct {
	cc drpc.Conn
}

// NewDRPCRemoteClient returns a Remote client using cc.
func NewDRPCRemoteClient(cc drpc.Conn) DRPCRemoteClient {
	return &drpcRemoteClient{cc}
}

func (c *drpcRemoteClient) DRPCConn() drpc.Conn { return c.cc }

func (c *drpcRemoteClient) Invoke(ctx context.Context, in *InvokeRequest) (*InvokeResponse, error) {
	out := new(InvokeResponse)
	err := c.cc.Invoke(ctx, "/dgc.Remote/Invoke", Encoding{}, in, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *drpcRemoteClient) Ack(ctx context.Context, in *AckRequest) (*AckResponse, error) {
	out := new(AckResponse)
	err := c.cc.Invoke(ctx, "/dgc.Remote/Ack", Encoding{}, in, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DRPCRemoteServer is the server of the Remote service.
type DRPCRemoteServer interface {
	Invoke(context.Context, *InvokeRequest) (*InvokeResponse, error)
	Ack(context.Context, *AckRequest) (*AckResponse, error)
}

// DRPCRemoteDescription describes the Remote service.
type DRPCRemoteDescription struct{}

// NumMethods implements drpc.Description.
func (DRPCRemoteDescription) NumMethods() int { return 2 }

// Method implements drpc.Description.
func (DRPCRemoteDescription) Method(n int) (string, drpc.Encoding, drpc.Receiver, interface{}, bool) {
	switch n {
	case 0:
		return "/dgc.Remote/Invoke", Encoding{},
			func(srv interface{}, ctx context.Context, in1, in2 interface{}) (drpc.Message, error) {
				return srv.(DRPCRemoteServer).
					Invoke(
						ctx,
						in1.(*InvokeRequest),
					)
			}, DRPCRemoteServer.Invoke, true
	case 1:
		return "/dgc.Remote/Ack", Encoding{},
			func(srv interface{}, ctx context.Context, in1, in2 interface{}) (drpc.Message, error) {
				return srv.(DRPCRemoteServer).
					Ack(
						ctx,
						in1.(*AckRequest),
					)
			}, DRPCRemoteServer.Ack, true
	default:
		return "", nil, nil, nil, false
	}
}

// DRPCRegisterRemote registers impl on mux.
func DRPCRegisterRemote(mux drpc.Mux, impl DRPCRemoteServer) error {
	return mux.Register(impl, DRPCRemoteDescription{})
}
