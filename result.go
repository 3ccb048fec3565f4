// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import (
	"context"
	"errors"
	"sync"
)

// ResultSet is the caller-visible outcome of one logical query: either a row
// set or, for prepare operations, a prepared statement descriptor. It always
// carries the accumulated tried-host diagnostics and, for consistency-bearing
// requests, the consistency level actually achieved.
type ResultSet struct {
	columns             []ColumnInfo
	rows                [][][]byte
	pageState           []byte
	triedHosts          map[string]error
	achievedConsistency Consistency
	traceID             []byte
	prepared            *PreparedStatement
	next                *nextPage
}

func (r *ResultSet) Columns() []ColumnInfo {
	return r.columns
}

// Rows returns the raw row values of this page.
func (r *ResultSet) Rows() [][][]byte {
	return r.rows
}

// PageState returns the paging token of this page, usable to resume
// iteration in a later query.
func (r *ResultSet) PageState() []byte {
	return r.pageState
}

// TriedHosts maps each host attempted for this query to the error observed
// there; hosts that answered map to nil.
func (r *ResultSet) TriedHosts() map[string]error {
	return r.triedHosts
}

// AchievedConsistency is the consistency level the request was finally
// executed at, after any policy-driven downgrades.
func (r *ResultSet) AchievedConsistency() Consistency {
	return r.achievedConsistency
}

// TraceID returns the server-side execution trace identifier, if tracing was
// requested.
func (r *ResultSet) TraceID() []byte {
	return r.traceID
}

// Prepared returns the prepared statement descriptor for prepare operations,
// nil otherwise.
func (r *ResultSet) Prepared() *PreparedStatement {
	return r.prepared
}

// HasMorePages reports whether the server indicated another page.
func (r *ResultSet) HasMorePages() bool {
	return r.next != nil
}

// NextPage fetches the next result page by running a brand-new query that
// resumes from this page's token. It blocks the caller for at most the
// session's PageAbortTimeout. After the session is closed it returns an
// empty row set. Calling it repeatedly returns the same page.
func (r *ResultSet) NextPage() (*ResultSet, error) {
	if r.next == nil {
		return nil, nil
	}
	return r.next.fetch()
}

func newEmptyResultSet(tried map[string]error, cons Consistency) *ResultSet {
	return &ResultSet{triedHosts: tried, achievedConsistency: cons}
}

// nextPage lazily runs the continuation query for auto-paging. The nested
// query is only constructed and executed on first use.
type nextPage struct {
	session *Session
	stmt    requestBuilder

	once sync.Once
	rs   *ResultSet
	err  error
}

func (n *nextPage) fetch() (*ResultSet, error) {
	n.once.Do(func() {
		if n.session == nil || n.session.Closed() {
			n.rs = newEmptyResultSet(nil, n.stmt.GetConsistency())
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), n.session.cfg.PageAbortTimeout)
		defer cancel()
		rs, err := n.session.executeStatement(ctx, n.stmt)
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrPageTimeout
		}
		n.rs, n.err = rs, err
	})
	return n.rs, n.err
}

func consistencyOf(req Request) Consistency {
	if cr, ok := req.(consistencyRequest); ok {
		return cr.consistency()
	}
	return Any
}

func pagingEnabled(stmt Statement) bool {
	switch s := stmt.(type) {
	case *Query:
		return s.pageSize > 0
	case *BoundStatement:
		return s.pageSize > 0
	default:
		return false
	}
}

// assembleRowResult turns a decoded response into the caller-visible row
// result. The returned follow-up, when non-nil, must be scheduled by the
// orchestrator after delivering the result; it is used for the
// schema-agreement wait so the I/O callback is never blocked by it.
func assembleRowResult(sess *Session, stmt Statement, req Request, resp Response, tried map[string]error) (*ResultSet, func(), error) {
	cons := consistencyOf(req)
	switch x := resp.(type) {
	case *RowsResponse:
		rs := &ResultSet{
			columns:             x.Columns,
			rows:                x.Rows,
			pageState:           x.PagingState,
			triedHosts:          tried,
			achievedConsistency: cons,
			traceID:             x.TraceID,
		}
		if len(x.PagingState) > 0 && pagingEnabled(stmt) {
			if next := withPageState(stmt, x.PagingState); next != nil {
				rs.next = &nextPage{session: sess, stmt: next}
			}
		}
		return rs, nil, nil
	case *VoidResponse:
		rs := newEmptyResultSet(tried, cons)
		rs.traceID = x.TraceID
		return rs, nil, nil
	case *KeyspaceResponse:
		sess.setKeyspace(x.Keyspace)
		return newEmptyResultSet(tried, cons), nil, nil
	case *SchemaChangeResponse:
		rs := newEmptyResultSet(tried, cons)
		rs.traceID = x.TraceID
		return rs, sess.schemaAgreementFollowUp(), nil
	default:
		return nil, nil, newInternalError("unexpected response type %T for row-producing request", resp)
	}
}

// assemblePreparedResult validates and converts the response to a prepare
// request. Only a prepared descriptor is a legal response shape here.
func assemblePreparedResult(resp Response, tried map[string]error, statement, keyspace string) (*ResultSet, error) {
	x, ok := resp.(*PreparedResponse)
	if !ok {
		return nil, newInternalError("unexpected response type %T for prepare request", resp)
	}
	ks := x.Keyspace
	if ks == "" {
		ks = keyspace
	}
	return &ResultSet{
		triedHosts: tried,
		prepared: &PreparedStatement{
			ID:            x.ID,
			Statement:     statement,
			Keyspace:      ks,
			BoundColumns:  x.BoundColumns,
			ResultColumns: x.ResultColumns,
		},
	}, nil
}
