// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package dgcid

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultTransport is the transport used when an endpoint does not name one.
const DefaultTransport = "tcp"

// Endpoint is the listening address of a process exporting objects.
type Endpoint struct {
	Host      string
	Port      int
	Transport string
}

// ParseEndpoint parses "host:port" optionally prefixed with "transport://".
func ParseEndpoint(s string) (Endpoint, error) {
	transport := DefaultTransport
	if i := strings.Index(s, "://"); i >= 0 {
		transport, s = s[:i], s[i+3:]
	}

	host, portString, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, Error.Wrap(err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		return Endpoint{}, Error.New("invalid port %q", portString)
	}
	if port < 0 || port > 65535 {
		return Endpoint{}, Error.New("port out of range: %d", port)
	}

	return Endpoint{Host: host, Port: port, Transport: transport}, nil
}

// Address returns the dialable host:port.
func (endpoint Endpoint) Address() string {
	return net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port))
}

// String returns "transport://host:port".
func (endpoint Endpoint) String() string {
	transport := endpoint.Transport
	if transport == "" {
		transport = DefaultTransport
	}
	return transport + "://" + endpoint.Address()
}

// Stub is a remote reference: an object identifier and the endpoint
// exporting it.
type Stub struct {
	ObjectID ObjectID
	Endpoint Endpoint
}

// ParseStub parses the "objectid@transport://host:port" form produced by String.
func ParseStub(s string) (Stub, error) {
	at := strings.IndexByte(s, '@')
	if at < 0 {
		return Stub{}, Error.New("malformed stub: %q", s)
	}
	id, err := ObjectIDFromString(s[:at])
	if err != nil {
		return Stub{}, err
	}
	endpoint, err := ParseEndpoint(s[at+1:])
	if err != nil {
		return Stub{}, err
	}
	return Stub{ObjectID: id, Endpoint: endpoint}, nil
}

// String returns "objectid@transport://host:port".
func (stub Stub) String() string {
	return stub.ObjectID.String() + "@" + stub.Endpoint.String()
}

// Lease is the grant returned by a dirty call.
type Lease struct {
	VMID     VMID          `json:"vmid"`
	Duration time.Duration `json:"duration"`
}
