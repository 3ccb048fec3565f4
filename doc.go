// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cqlexec implements the request-execution and retry-orchestration
// core of a CQL wire-protocol client.
//
// For every statement issued by an application the package selects a target
// connection, sends the encoded request, interprets the decoded response,
// classifies failures, consults the configured retry policy and either
// completes the caller's query or transparently re-attempts it, possibly on
// a different host, with a different consistency level, or after re-preparing
// a statement the target host has forgotten.
//
// Connections, the connection pool and the wire codec are collaborators
// supplied by the caller through the Conn, ConnPool and Response interfaces.
// The package never opens sockets itself; it drives the send/response cycle
// of connections it is handed and owns everything between "the application
// asked for rows" and "a final result or error was delivered exactly once".
//
// Basic usage:
//
//	session, err := cqlexec.NewSession(cqlexec.Config{}, pool, policy)
//	if err != nil {
//		// handle error
//	}
//	rs, err := session.Query(`SELECT peer FROM system.peers`).Execute()
package cqlexec
