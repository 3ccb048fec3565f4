// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// queryExecutor is the built-in orchestrator for one logical query. It owns
// the shared query state, picks hosts through the session's selection policy
// and connection pool, launches the main attempt chain plus any speculative
// ones, and delivers the single final outcome.
type queryExecutor struct {
	session *Session
	pool    ConnPool
	policy  HostSelectionPolicy
	stmt    requestBuilder
	rt      RetryPolicy
	sp      SpeculativeExecutionPolicy

	state    *QueryState
	hostIter NextHost

	selectedMu sync.Mutex
	selected   map[string]SelectedHost

	// attempts that have not yet run out of hosts; guards against one
	// attempt's NoHostAvailable failing the query while a sibling is live
	running int32

	done chan struct{}
	rs   *ResultSet
	err  error
}

func newQueryExecutor(session *Session, stmt requestBuilder) *queryExecutor {
	return &queryExecutor{
		session:  session,
		pool:     session.pool,
		policy:   session.policy,
		stmt:     stmt,
		rt:       retryPolicyOf(stmt, session),
		sp:       speculativePolicyOf(stmt, session),
		state:    NewQueryState(),
		selected: make(map[string]SelectedHost),
		done:     make(chan struct{}),
	}
}

func (e *queryExecutor) executeQuery(ctx context.Context) (*ResultSet, error) {
	hostIter := e.policy.Pick(e.stmt)
	// speculative attempts share the iterator across goroutines
	var mu sync.Mutex
	e.hostIter = func() SelectedHost {
		mu.Lock()
		defer mu.Unlock()
		return hostIter()
	}

	e.launchAttempt()
	if e.sp.Attempts() > 0 {
		go e.speculate(ctx)
	}

	select {
	case <-e.done:
		return e.rs, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *queryExecutor) launchAttempt() {
	atomic.AddInt32(&e.running, 1)
	a := NewAttempt(e, e.session, e.stmt.request(e.session.proto()))
	go a.Start(false)
}

// speculate launches extra attempts on a timer, in addition to the main one.
// SimpleSpeculativeExecution{NumAttempts: 2} therefore results in up to three
// executions in flight.
func (e *queryExecutor) speculate(ctx context.Context) {
	ticker := time.NewTicker(e.sp.Delay())
	defer ticker.Stop()

	for i := 0; i < e.sp.Attempts(); i++ {
		select {
		case <-ticker.C:
			e.launchAttempt()
		case <-e.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *queryExecutor) NextConn(tried map[string]error) (Conn, error) {
	for {
		selected := e.hostIter()
		if selected == nil {
			return nil, &NoHostAvailableError{Errors: tried}
		}
		host := selected.Info()
		if host == nil || !host.IsUp() {
			continue
		}
		if _, dup := tried[host.HostnameAndPort()]; dup {
			continue
		}
		conn := e.pool.Pick(host)
		if conn == nil {
			continue
		}
		e.selectedMu.Lock()
		e.selected[conn.Address()] = selected
		e.selectedMu.Unlock()
		return conn, nil
	}
}

func (e *queryExecutor) Completed() bool {
	return e.state.HasCompleted()
}

func (e *queryExecutor) CompleteWithError(err error) bool {
	if !e.state.TryComplete() {
		return false
	}
	e.err = err
	e.markSelected()
	close(e.done)
	return true
}

func (e *queryExecutor) CompleteWithResult(rs *ResultSet, followUp func()) bool {
	if !e.state.TryComplete() {
		return false
	}
	e.rs = rs
	e.markSelected()
	close(e.done)
	if followUp != nil {
		go followUp()
	}
	return true
}

// markSelected feeds each selected host's outcome back to the selection
// policy once the query settles.
func (e *queryExecutor) markSelected() {
	tried := e.state.TriedHosts()
	e.selectedMu.Lock()
	defer e.selectedMu.Unlock()
	for addr, selected := range e.selected {
		selected.Mark(tried[addr])
	}
	e.selected = map[string]SelectedHost{}
}

func (e *queryExecutor) MarkHostDown(conn Conn) {
	addr := conn.Address()
	e.selectedMu.Lock()
	selected := e.selected[addr]
	delete(e.selected, addr)
	e.selectedMu.Unlock()
	if selected == nil {
		return
	}
	err := e.state.TriedHosts()[addr]
	if err == nil {
		err = ErrConnectionClosed
	}
	selected.Mark(err)
	e.session.logger.Warning("host reported unhealthy",
		newLogField("host", addr),
		newLogField("error", err))
}

func (e *queryExecutor) NoMoreHosts(err error, _ *Attempt) {
	if atomic.AddInt32(&e.running, -1) > 0 {
		// a sibling speculative attempt may still win
		return
	}
	e.CompleteWithError(err)
}

func (e *queryExecutor) RetryPolicy() RetryPolicy {
	return e.rt
}

func (e *queryExecutor) Statement() Statement {
	return e.stmt
}

func (e *queryExecutor) State() *QueryState {
	return e.state
}

func retryPolicyOf(stmt Statement, s *Session) RetryPolicy {
	switch q := stmt.(type) {
	case *Query:
		if q.rt != nil {
			return q.rt
		}
	case *BoundStatement:
		if q.rt != nil {
			return q.rt
		}
	case *Batch:
		if q.rt != nil {
			return q.rt
		}
	}
	if s.cfg.RetryPolicy != nil {
		return s.cfg.RetryPolicy
	}
	return DefaultRetryPolicy{}
}

// speculativePolicyOf forces non-idempotent statements to NonSpeculative
// regardless of any configured policy.
func speculativePolicyOf(stmt Statement, s *Session) SpeculativeExecutionPolicy {
	if !stmt.IsIdempotent() {
		return NonSpeculativeExecution{}
	}
	switch q := stmt.(type) {
	case *Query:
		if q.sp != nil {
			return q.sp
		}
	case *BoundStatement:
		if q.sp != nil {
			return q.sp
		}
	}
	if s.cfg.SpeculativeExecutionPolicy != nil {
		return s.cfg.SpeculativeExecutionPolicy
	}
	return NonSpeculativeExecution{}
}
