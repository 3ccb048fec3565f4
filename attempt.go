// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import (
	"bytes"
	"errors"
	"sync"
)

// resultKind is the result shape an attempt was constructed for. Dispatch in
// response handling is a fixed switch over this tag; only the two kinds
// below are ever supported.
type resultKind int

const (
	resultKindRows resultKind = iota
	resultKindPrepared
)

// Orchestrator owns the lifecycle of one logical query: it supplies
// candidate connections, holds the shared per-query state and is the single
// point where the final result or error is delivered. Completion methods
// report whether the call won the completion race; once a query has
// completed every further delivery is refused.
type Orchestrator interface {
	// NextConn returns a connection to a host not present in tried, or a
	// *NoHostAvailableError when no candidate is left.
	NextConn(tried map[string]error) (Conn, error)
	Completed() bool
	CompleteWithError(err error) bool
	// CompleteWithResult delivers the final result. followUp, when non-nil,
	// is scheduled after delivery and must not be run inline.
	CompleteWithResult(rs *ResultSet, followUp func()) bool
	// MarkHostDown reports a connection to host-health tracking.
	MarkHostDown(conn Conn)
	// NoMoreHosts signals that this attempt ran out of candidate hosts. The
	// orchestrator decides whether that fails the query or whether a sibling
	// attempt is still in flight.
	NoMoreHosts(err error, a *Attempt)
	RetryPolicy() RetryPolicy
	Statement() Statement
	State() *QueryState
}

// QueryState is the mutable state shared by every attempt of one logical
// query: the completion flag, the tried-hosts set and the retry counter.
// All mutation funnels through its synchronized accessors.
type QueryState struct {
	mu        sync.Mutex
	completed bool
	tried     map[string]error
	retries   int
}

func NewQueryState() *QueryState {
	return &QueryState{tried: make(map[string]error)}
}

func (s *QueryState) HasCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// TryComplete marks the query completed and reports whether the caller won
// the race. The check and the set are a single atomic step; this is what
// enforces at-most-one-result semantics.
func (s *QueryState) TryComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return false
	}
	s.completed = true
	return true
}

// RecordHost notes that addr was attempted and what happened there. A nil
// error never overwrites a previously recorded failure.
func (s *QueryState) RecordHost(addr string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tried == nil {
		s.tried = make(map[string]error)
	}
	if err == nil {
		if _, ok := s.tried[addr]; ok {
			return
		}
	}
	s.tried[addr] = err
}

// TriedHosts returns a snapshot of the tried-hosts set.
func (s *QueryState) TriedHosts() map[string]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tried := make(map[string]error, len(s.tried))
	for addr, err := range s.tried {
		tried[addr] = err
	}
	return tried
}

func (s *QueryState) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

func (s *QueryState) NextRetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
	return s.retries
}

// Attempt is one in-flight try to satisfy a logical query against one chosen
// connection. An attempt lives until it finalizes the query or hands off to
// a freshly spawned attempt; it is never reused.
type Attempt struct {
	exec    Orchestrator
	session *Session
	req     Request
	kind    resultKind

	mu     sync.Mutex
	conn   Conn
	handle SendHandle
}

// NewAttempt builds an attempt for one request. The result-shape tag is
// fixed here, from the request, and never changes.
func NewAttempt(exec Orchestrator, session *Session, req Request) *Attempt {
	kind := resultKindRows
	if _, ok := req.(*prepareRequest); ok {
		kind = resultKindPrepared
	}
	return &Attempt{exec: exec, session: session, req: req, kind: kind}
}

// Start sends the attempt's request. With useCurrentHost false a fresh
// connection is obtained from the orchestrator, excluding hosts already
// tried; with useCurrentHost true the previously set connection is reused.
// Failures during connection acquisition go through the same classification
// path as post-send failures.
func (a *Attempt) Start(useCurrentHost bool) {
	if useCurrentHost {
		if a.currentConn() == nil {
			// a logic bug in retry handling, not a runtime condition
			a.exec.CompleteWithError(newInternalError("attempt restarted on current host without a connection"))
			return
		}
		a.send()
		return
	}
	conn, err := a.exec.NextConn(a.exec.State().TriedHosts())
	if err != nil {
		a.handleFailure(err)
		return
	}
	a.setConn(conn)
	a.exec.State().RecordHost(conn.Address(), nil)
	a.send()
}

// Cancel cancels the in-flight send at the transport layer. It is a
// best-effort resource-release signal; the completion flag, not Cancel, is
// what guarantees at-most-one result.
func (a *Attempt) Cancel() {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	if handle != nil {
		handle.Cancel()
	}
}

func (a *Attempt) currentConn() Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

func (a *Attempt) setConn(conn Conn) {
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
}

func (a *Attempt) send() {
	conn := a.currentConn()
	handle := conn.Send(a.req, a.handleResponse)
	a.mu.Lock()
	a.handle = handle
	a.mu.Unlock()
}

// handleResponse consumes the single callback of one send. Callbacks
// arriving after the query has completed are no-ops, and no failure inside
// finalization is ever allowed to escape: it becomes a terminal error
// delivered through the orchestrator instead.
func (a *Attempt) handleResponse(resp Response, err error) {
	if a.exec.Completed() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.exec.CompleteWithError(newInternalError("panic while finalizing response: %v", r))
		}
	}()
	if err != nil {
		a.handleFailure(err)
		return
	}
	switch a.kind {
	case resultKindRows:
		rs, followUp, aerr := assembleRowResult(a.session, a.exec.Statement(), a.req, resp, a.exec.State().TriedHosts())
		if aerr != nil {
			a.exec.CompleteWithError(aerr)
			return
		}
		a.exec.CompleteWithResult(rs, followUp)
	case resultKindPrepared:
		prep := a.req.(*prepareRequest)
		rs, aerr := assemblePreparedResult(resp, a.exec.State().TriedHosts(), prep.statement, prep.keyspace)
		if aerr != nil {
			a.exec.CompleteWithError(aerr)
			return
		}
		if conn := a.currentConn(); conn != nil {
			a.session.cachePrepared(conn.Address(), rs.prepared)
		}
		a.exec.CompleteWithResult(rs, nil)
	default:
		a.exec.CompleteWithError(newInternalError("unsupported result kind %d", a.kind))
	}
}

// handleFailure is the single classification path for everything that can go
// wrong around one send: connection acquisition errors, transport failures,
// client timeouts and server-reported errors all end up here.
func (a *Attempt) handleFailure(err error) {
	if a.exec.Completed() {
		return
	}
	if conn := a.currentConn(); conn != nil {
		a.exec.State().RecordHost(conn.Address(), err)
	}

	var unprepared *RequestErrUnprepared
	if errors.As(err, &unprepared) {
		a.recoverUnprepared(unprepared)
		return
	}
	if errors.Is(err, ErrTimeoutNoResponse) {
		a.handleTimeout(err)
		return
	}
	var noHosts *NoHostAvailableError
	if errors.As(err, &noHosts) {
		a.exec.NoMoreHosts(err, a)
		return
	}
	if isTransportError(err) {
		if conn := a.currentConn(); conn != nil {
			a.exec.MarkHostDown(conn)
		}
	}

	d := retryDecision(err, a.exec.RetryPolicy(), a.exec.Statement(), a.exec.State().RetryCount())
	a.apply(d, err)
}

func (a *Attempt) apply(d RetryDecision, cause error) {
	switch d.Type {
	case RetryTypeRetry:
		a.retry(d.Consistency, d.UseCurrentHost)
	case RetryTypeIgnore:
		tried := a.exec.State().TriedHosts()
		if a.kind == resultKindRows {
			a.exec.CompleteWithResult(newEmptyResultSet(tried, consistencyOf(a.req)), nil)
		} else {
			a.exec.CompleteWithResult(&ResultSet{triedHosts: tried}, nil)
		}
	default:
		a.exec.CompleteWithError(cause)
	}
}

// retry spawns the next attempt of the chain; the current attempt is
// terminal afterwards. The chain retry counter is incremented and, for
// consistency-bearing requests, an override level is applied before resend.
func (a *Attempt) retry(cons *Consistency, useCurrentHost bool) {
	if a.exec.Completed() {
		return
	}
	count := a.exec.State().NextRetryCount()
	if cons != nil {
		if cr, ok := a.req.(consistencyRequest); ok {
			cr.setConsistency(*cons)
		}
	}
	a.session.logger.Debug("retrying request",
		newLogField("retry_count", count),
		newLogField("use_current_host", useCurrentHost))

	next := NewAttempt(a.exec, a.session, a.req)
	if useCurrentHost {
		next.setConn(a.currentConn())
	}
	next.Start(useCurrentHost)
}

// handleTimeout handles a client-side operation timeout: the connection is
// reported to host-health, and the request is reissued on a fresh host only
// if retry-on-timeout is enabled or the request is itself a prepare.
func (a *Attempt) handleTimeout(err error) {
	if conn := a.currentConn(); conn != nil {
		a.exec.MarkHostDown(conn)
	}
	if a.session.cfg.RetryOnTimeout || a.kind == resultKindPrepared {
		a.retry(nil, false)
		return
	}
	a.exec.CompleteWithError(err)
}

// recoverUnprepared re-prepares a statement the host has forgotten and then
// resends the original request on the same connection. Only bound statements
// and batches can legally receive an unprepared error.
func (a *Attempt) recoverUnprepared(unprepared *RequestErrUnprepared) {
	ps, err := findPrepared(a.exec.Statement(), unprepared.StatementID)
	if err != nil {
		a.exec.CompleteWithError(err)
		return
	}
	conn := a.currentConn()
	if conn == nil {
		a.exec.CompleteWithError(newInternalError("unprepared response with no current connection"))
		return
	}
	a.session.logger.Debug("re-preparing statement",
		newLogField("host", conn.Address()),
		newLogField("statement", ps.Statement))

	prep := &prepareRequest{protoVersion: a.req.proto(), statement: ps.Statement, keyspace: ps.Keyspace}
	if ps.Keyspace != "" && ps.Keyspace != conn.Keyspace() {
		// UseKeyspace is a blocking round trip; it must not run on the I/O
		// dispatch goroutine that delivered the unprepared error.
		go func() {
			defer func() {
				if r := recover(); r != nil {
					a.exec.CompleteWithError(newInternalError("panic during reprepare: %v", r))
				}
			}()
			if err := conn.UseKeyspace(ps.Keyspace); err != nil {
				a.handleFailure(err)
				return
			}
			a.sendReprepare(conn, prep, ps)
		}()
		return
	}
	a.sendReprepare(conn, prep, ps)
}

func (a *Attempt) sendReprepare(conn Conn, prep *prepareRequest, ps *PreparedStatement) {
	conn.Send(prep, func(resp Response, err error) {
		if a.exec.Completed() {
			return
		}
		if err != nil {
			// reprepare failures re-enter ordinary failure classification
			a.handleFailure(err)
			return
		}
		pr, ok := resp.(*PreparedResponse)
		if !ok {
			a.exec.CompleteWithError(newInternalError("unexpected response type %T to reprepare request", resp))
			return
		}
		a.session.refreshPrepared(conn.Address(), ps, pr)
		a.send()
	})
}

func findPrepared(stmt Statement, id []byte) (*PreparedStatement, error) {
	switch s := stmt.(type) {
	case *BoundStatement:
		if s.prepared != nil && bytes.Equal(s.prepared.ID, id) {
			return s.prepared, nil
		}
	case *Batch:
		for _, e := range s.entries {
			if e.Prepared != nil && bytes.Equal(e.Prepared.ID, id) {
				return e.Prepared, nil
			}
		}
	default:
		return nil, newInternalError("unprepared response for statement type %T", stmt)
	}
	return nil, newInternalError("no prepared statement with id %x in failing statement", id)
}
