// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import "time"

// ResponseHandler receives the outcome of one send. It is invoked exactly
// once per send, from whatever goroutine the connection's I/O loop dispatches
// on, with either a decoded response or an error, never both.
type ResponseHandler func(resp Response, err error)

// SendHandle cancels an in-flight request at the transport layer. Cancel is
// advisory: it releases resources early but does not guarantee suppression of
// a response that is already on the wire, and it never triggers the handler.
type SendHandle interface {
	Cancel()
}

// Conn is one live channel to one host, owned by the connection pool. The
// execution core borrows a Conn for the duration of one send and must not
// assume it stays valid across a host-down event.
//
// Send must not block; UseKeyspace is a blocking round trip and is only
// called off the I/O dispatch path. Address must match the selected host's
// HostnameAndPort so tried-host bookkeeping lines up.
type Conn interface {
	Address() string
	Keyspace() string
	UseKeyspace(keyspace string) error
	Send(req Request, handler ResponseHandler) SendHandle
}

// ConnPool hands out connections per host. Pick returns nil when the pool
// has no usable connection to the host.
type ConnPool interface {
	Pick(host *HostInfo) Conn
}

// ConnConfig is passed through to connection implementations when the pool
// dials new hosts.
type ConnConfig struct {
	ProtoVersion int
	// Timeout is the per-request client-side timeout after which a send
	// completes with ErrTimeoutNoResponse.
	Timeout    time.Duration
	Compressor Compressor
}
