// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package dgcid defines the identifiers shared by the lease authority on the
// exporting side and the lease manager on the importing side.
package dgcid

import (
	"github.com/zeebo/errs"

	"storj.io/common/uuid"
)

// Error is the error class for identifier parsing.
var Error = errs.Class("dgcid")

// VMID identifies a single running process that holds leases.
type VMID uuid.UUID

// NewVMID mints a new random VM identity.
func NewVMID() (VMID, error) {
	id, err := uuid.New()
	if err != nil {
		return VMID{}, Error.Wrap(err)
	}
	return VMID(id), nil
}

// VMIDFromString parses the canonical form of a VM identity.
func VMIDFromString(s string) (VMID, error) {
	id, err := uuid.FromString(s)
	if err != nil {
		return VMID{}, Error.Wrap(err)
	}
	return VMID(id), nil
}

// IsZero returns true when the identity has not been assigned.
func (id VMID) IsZero() bool { return uuid.UUID(id).IsZero() }

// String returns the canonical form of the identity.
func (id VMID) String() string { return uuid.UUID(id).String() }

// MarshalText implements encoding.TextMarshaler.
func (id VMID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *VMID) UnmarshalText(data []byte) error {
	parsed, err := VMIDFromString(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ObjectID identifies an exported object within its exporting process.
type ObjectID uuid.UUID

// DGCObjectID is the well-known identifier of the lease authority object
// every process exports at startup.
var DGCObjectID = ObjectID{15: 2}

// NewObjectID mints a new random object identifier.
func NewObjectID() (ObjectID, error) {
	id, err := uuid.New()
	if err != nil {
		return ObjectID{}, Error.Wrap(err)
	}
	return ObjectID(id), nil
}

// ObjectIDFromString parses the canonical form of an object identifier.
func ObjectIDFromString(s string) (ObjectID, error) {
	id, err := uuid.FromString(s)
	if err != nil {
		return ObjectID{}, Error.Wrap(err)
	}
	return ObjectID(id), nil
}

// IsZero returns true when the identifier has not been assigned.
func (id ObjectID) IsZero() bool { return uuid.UUID(id).IsZero() }

// String returns the canonical form of the identifier.
func (id ObjectID) String() string { return uuid.UUID(id).String() }

// MarshalText implements encoding.TextMarshaler.
func (id ObjectID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ObjectID) UnmarshalText(data []byte) error {
	parsed, err := ObjectIDFromString(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
