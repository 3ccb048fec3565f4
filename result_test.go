// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAssembleRowResultRows(t *testing.T) {
	sess := newBareSession(t, Config{})
	q := sess.Query("SELECT a FROM t").PageSize(10)
	req := q.request(protoVersion4)
	tried := map[string]error{"10.0.0.1:9042": nil}

	resp := &RowsResponse{
		Columns:     []ColumnInfo{{Keyspace: "ks", Table: "t", Name: "a"}},
		Rows:        [][][]byte{{[]byte("v1")}, {[]byte("v2")}},
		PagingState: []byte("token"),
		TraceID:     []byte("trace"),
	}
	rs, followUp, err := assembleRowResult(sess, q, req, resp, tried)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if followUp != nil {
		t.Fatal("row result produced a follow-up action")
	}
	if len(rs.Rows()) != 2 || len(rs.Columns()) != 1 {
		t.Fatalf("rows/columns = %d/%d, want 2/1", len(rs.Rows()), len(rs.Columns()))
	}
	if string(rs.PageState()) != "token" || string(rs.TraceID()) != "trace" {
		t.Fatalf("page state %q trace %q, want token/trace", rs.PageState(), rs.TraceID())
	}
	if rs.AchievedConsistency() != Quorum {
		t.Fatalf("achieved consistency = %v, want %v", rs.AchievedConsistency(), Quorum)
	}
	if !rs.HasMorePages() {
		t.Fatal("paging state present but HasMorePages is false")
	}
}

func TestAssembleRowResultPagingDisabled(t *testing.T) {
	sess := newBareSession(t, Config{})
	q := sess.Query("SELECT a FROM t").PageSize(0)
	req := q.request(protoVersion4)

	resp := &RowsResponse{PagingState: []byte("token")}
	rs, _, err := assembleRowResult(sess, q, req, resp, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs.HasMorePages() {
		t.Fatal("paging disabled but HasMorePages is true")
	}
	if rs, err := rs.NextPage(); rs != nil || err != nil {
		t.Fatalf("NextPage = %v, %v; want nil, nil", rs, err)
	}
}

func TestAssembleRowResultVoid(t *testing.T) {
	sess := newBareSession(t, Config{})
	q := sess.Query("INSERT INTO t (a) VALUES (1)")
	req := q.request(protoVersion4)

	rs, followUp, err := assembleRowResult(sess, q, req, &VoidResponse{TraceID: []byte("trace")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if followUp != nil {
		t.Fatal("void result produced a follow-up action")
	}
	if len(rs.Rows()) != 0 || string(rs.TraceID()) != "trace" {
		t.Fatalf("rows = %v trace = %q, want empty/trace", rs.Rows(), rs.TraceID())
	}
}

func TestAssembleRowResultSetKeyspace(t *testing.T) {
	sess := newBareSession(t, Config{Keyspace: "old"})
	q := sess.Query("USE new_ks")
	req := q.request(protoVersion4)

	rs, _, err := assembleRowResult(sess, q, req, &KeyspaceResponse{Keyspace: "new_ks"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rs.Rows()) != 0 {
		t.Fatalf("rows = %v, want empty", rs.Rows())
	}
	if got := sess.Keyspace(); got != "new_ks" {
		t.Fatalf("session keyspace = %q, want new_ks", got)
	}
}

type fakeSchemaWaiter struct {
	called chan struct{}
	err    error
}

func (w *fakeSchemaWaiter) WaitSchemaAgreement(ctx context.Context) error {
	select {
	case w.called <- struct{}{}:
	default:
	}
	return w.err
}

func TestAssembleRowResultSchemaChange(t *testing.T) {
	waiter := &fakeSchemaWaiter{called: make(chan struct{}, 1)}
	sess := newBareSession(t, Config{SchemaWaiter: waiter})
	q := sess.Query("CREATE TABLE t (a int PRIMARY KEY)")
	req := q.request(protoVersion4)

	resp := &SchemaChangeResponse{Change: "CREATED", Target: "TABLE", Keyspace: "ks", Object: "t"}
	rs, followUp, err := assembleRowResult(sess, q, req, resp, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rs.Rows()) != 0 {
		t.Fatalf("rows = %v, want empty", rs.Rows())
	}
	if followUp == nil {
		t.Fatal("schema change with a waiter configured must produce a follow-up")
	}
	followUp()
	select {
	case <-waiter.called:
	case <-time.After(time.Second):
		t.Fatal("schema waiter was not invoked")
	}
}

func TestAssembleRowResultSchemaChangeWithoutWaiter(t *testing.T) {
	sess := newBareSession(t, Config{})
	q := sess.Query("CREATE TABLE t (a int PRIMARY KEY)")
	req := q.request(protoVersion4)

	_, followUp, err := assembleRowResult(sess, q, req, &SchemaChangeResponse{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if followUp != nil {
		t.Fatal("no waiter configured, follow-up must be nil")
	}
}

func TestAssembleRowResultRejectsPrepared(t *testing.T) {
	sess := newBareSession(t, Config{})
	q := sess.Query("SELECT a FROM t")
	req := q.request(protoVersion4)

	_, _, err := assembleRowResult(sess, q, req, &PreparedResponse{ID: []byte{1}}, nil)
	var internal *DriverInternalError
	if !errors.As(err, &internal) {
		t.Fatalf("error = %v, want internal driver error", err)
	}
}

func TestAssemblePreparedResult(t *testing.T) {
	resp := &PreparedResponse{
		ID:           []byte{0xca, 0xfe},
		BoundColumns: []ColumnInfo{{Keyspace: "ks", Table: "t", Name: "id"}},
		Keyspace:     "ks",
	}
	rs, err := assemblePreparedResult(resp, nil, "SELECT a FROM t WHERE id = ?", "fallback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ps := rs.Prepared()
	if ps == nil {
		t.Fatal("no prepared descriptor in result")
	}
	if string(ps.ID) != "\xca\xfe" || ps.Keyspace != "ks" || ps.Statement != "SELECT a FROM t WHERE id = ?" {
		t.Fatalf("descriptor = %+v", ps)
	}
	if len(ps.BoundColumns) != 1 {
		t.Fatalf("bound columns = %v, want one", ps.BoundColumns)
	}
}

func TestAssemblePreparedResultKeyspaceFallback(t *testing.T) {
	rs, err := assemblePreparedResult(&PreparedResponse{ID: []byte{1}}, nil, "SELECT 1", "fallback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rs.Prepared().Keyspace; got != "fallback" {
		t.Fatalf("keyspace = %q, want fallback", got)
	}
}

func TestAssemblePreparedResultRejectsRows(t *testing.T) {
	_, err := assemblePreparedResult(&RowsResponse{}, nil, "SELECT 1", "")
	var internal *DriverInternalError
	if !errors.As(err, &internal) {
		t.Fatalf("error = %v, want internal driver error", err)
	}
}

func TestConsistencyOf(t *testing.T) {
	q := &queryRequest{cons: LocalQuorum}
	if got := consistencyOf(q); got != LocalQuorum {
		t.Fatalf("consistencyOf(query) = %v, want %v", got, LocalQuorum)
	}
	p := &prepareRequest{}
	if got := consistencyOf(p); got != Any {
		t.Fatalf("consistencyOf(prepare) = %v, want %v", got, Any)
	}
}

func TestWithPageState(t *testing.T) {
	q := &Query{stmt: "SELECT a FROM t", pageSize: 10}
	next := withPageState(q, []byte("token"))
	if next == nil {
		t.Fatal("query should support paging continuation")
	}
	nq, ok := next.(*Query)
	if !ok {
		t.Fatalf("continuation is %T, want *Query", next)
	}
	if string(nq.pageState) != "token" {
		t.Fatalf("continuation page state = %q, want token", nq.pageState)
	}
	if q.pageState != nil {
		t.Fatalf("original statement mutated: page state = %q", q.pageState)
	}

	if next := withPageState(&Batch{}, []byte("token")); next != nil {
		t.Fatalf("batch continuation = %v, want nil", next)
	}
}
