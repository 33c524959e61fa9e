// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package objtable

import (
	"context"

	"github.com/zeebo/errs"
)

// ErrUnknownMethod is the error class for methods a dispatcher does not serve.
var ErrUnknownMethod = errs.Class("unknown method")

// Dispatcher invokes a method of an exported implementation.
//
// Dispatchers must not keep the implementation alive, the record passes it
// on every call.
type Dispatcher interface {
	Dispatch(ctx context.Context, impl any, method string, payload []byte) ([]byte, error)
}

// Method handles one method of an implementation.
type Method func(ctx context.Context, impl any, payload []byte) ([]byte, error)

// Methods dispatches by method name.
type Methods map[string]Method

// Dispatch implements Dispatcher.
func (methods Methods) Dispatch(ctx context.Context, impl any, method string, payload []byte) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	handler, ok := methods[method]
	if !ok {
		return nil, ErrUnknownMethod.New("%q", method)
	}
	return handler(ctx, impl, payload)
}
