// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package dgcpb contains the messages and the drpc service description used
// between processes that export and import remote objects.
package dgcpb

import (
	"storj.io/common/uuid"
	"storj.io/dgc/pkg/dgcid"
)

// Method names served by the lease authority object.
const (
	MethodDirty = "dirty"
	MethodClean = "clean"
)

// InvokeRequest calls method on the exported object ObjectID.
type InvokeRequest struct {
	ObjectID dgcid.ObjectID `json:"object_id"`
	Method   string         `json:"method"`
	Payload  []byte         `json:"payload,omitempty"`
}

// InvokeResponse is the result of an invocation. When Refs is not empty the
// server holds the referenced objects until AckID is acknowledged.
type InvokeResponse struct {
	Payload []byte      `json:"payload,omitempty"`
	Refs    []ObjectRef `json:"refs,omitempty"`
	AckID   uuid.UUID   `json:"ack_id"`
}

// AckRequest acknowledges that the objects of a response were imported.
type AckRequest struct {
	AckID uuid.UUID `json:"ack_id"`
}

// AckResponse is the reply to AckRequest.
type AckResponse struct{}

// DirtyRequest asks for leases on IDs.
type DirtyRequest struct {
	IDs   []dgcid.ObjectID `json:"ids"`
	Seq   int64            `json:"seq"`
	Lease dgcid.Lease      `json:"lease"`
}

// DirtyResponse carries the granted lease.
type DirtyResponse struct {
	Lease dgcid.Lease `json:"lease"`
}

// CleanRequest releases the leases of VMID on IDs. An empty IDs releases
// every object leased by VMID.
type CleanRequest struct {
	IDs    []dgcid.ObjectID `json:"ids"`
	Seq    int64            `json:"seq"`
	VMID   dgcid.VMID       `json:"vmid"`
	Strong bool             `json:"strong"`
}

// CleanResponse is the reply to CleanRequest.
type CleanResponse struct{}

// ObjectRef is a serialized remote reference, carried in payloads.
type ObjectRef struct {
	ObjectID dgcid.ObjectID `json:"object_id"`
	Endpoint string         `json:"endpoint"`
}

// RefOf converts a stub into its serialized form.
func RefOf(stub dgcid.Stub) ObjectRef {
	return ObjectRef{ObjectID: stub.ObjectID, Endpoint: stub.Endpoint.String()}
}

// Stub converts a serialized reference back into a stub.
func (ref ObjectRef) Stub() (dgcid.Stub, error) {
	endpoint, err := dgcid.ParseEndpoint(ref.Endpoint)
	if err != nil {
		return dgcid.Stub{}, err
	}
	return dgcid.Stub{ObjectID: ref.ObjectID, Endpoint: endpoint}, nil
}
