// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package rpcstatus attaches status codes to the errors returned over drpc.
package rpcstatus

import (
	"context"
	"errors"
	"fmt"

	"storj.io/drpc/drpcerr"
)

// StatusCode is the type of status codes for drpc.
type StatusCode uint64

// These constants are all the rpc error codes.
const (
	Unknown StatusCode = iota
	OK
	Canceled
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
	DataLoss
	Unauthenticated
)

// Code returns the status code associated with the error.
func Code(err error) StatusCode {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, context.Canceled):
		return Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return DeadlineExceeded
	default:
		return StatusCode(drpcerr.Code(err))
	}
}

// Error wraps the message with a status code into an error.
func Error(code StatusCode, msg string) error {
	return drpcerr.WithCode(errors.New(msg), uint64(code))
}

// Errorf : Error :: fmt.Sprintf : fmt.Sprint
func Errorf(code StatusCode, format string, a ...interface{}) error {
	return drpcerr.WithCode(fmt.Errorf(format, a...), uint64(code))
}

// Wrap wraps err with the status code.
func Wrap(code StatusCode, err error) error {
	if err == nil {
		return nil
	}
	return drpcerr.WithCode(err, uint64(code))
}
