// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import "context"

// Statement is the originating description of a logical query: a simple
// query, a bound prepared statement or a batch. Retry policies receive the
// Statement that produced the failing request.
type Statement interface {
	GetConsistency() Consistency
	Keyspace() string
	IsIdempotent() bool
}

// PreparedStatement is the descriptor of a parsed query template cached by
// the server under ID. Servers may forget the id under operational
// conditions, in which case execution re-prepares from Statement.
type PreparedStatement struct {
	ID            []byte
	Statement     string
	Keyspace      string
	BoundColumns  []ColumnInfo
	ResultColumns []ColumnInfo
}

// Bind produces an executable statement carrying values for the prepared
// template. Values are pre-encoded by the caller's codec.
func (p *PreparedStatement) Bind(values ...[]byte) *BoundStatement {
	return &BoundStatement{prepared: p, values: values, cons: Quorum}
}

// Query is a CQL statement executed from its text.
type Query struct {
	stmt       string
	values     [][]byte
	cons       Consistency
	pageSize   int
	pageState  []byte
	idempotent bool
	trace      bool
	session    *Session
	context    context.Context
	rt         RetryPolicy
	sp         SpeculativeExecutionPolicy
}

// Bind attaches pre-encoded positional values to the query.
func (q *Query) Bind(values ...[]byte) *Query {
	q.values = values
	return q
}

// Consistency sets the consistency level for this query.
func (q *Query) Consistency(c Consistency) *Query {
	q.cons = c
	return q
}

func (q *Query) GetConsistency() Consistency {
	return q.cons
}

// PageSize tells the server to return results in pages of size n. A value
// <= 0 disables paging.
func (q *Query) PageSize(n int) *Query {
	q.pageSize = n
	return q
}

// PageState resumes iteration from a previously returned paging token.
func (q *Query) PageState(state []byte) *Query {
	q.pageState = state
	return q
}

// Idempotent marks the query as safe to run more than once, which enables
// speculative execution.
func (q *Query) Idempotent(idempotent bool) *Query {
	q.idempotent = idempotent
	return q
}

func (q *Query) IsIdempotent() bool {
	return q.idempotent
}

// Trace requests an execution trace identifier with the result.
func (q *Query) Trace(enabled bool) *Query {
	q.trace = enabled
	return q
}

// RetryPolicy overrides the session retry policy for this query.
func (q *Query) RetryPolicy(rt RetryPolicy) *Query {
	q.rt = rt
	return q
}

// SpeculativeExecutionPolicy overrides the session policy for this query.
// It only takes effect on idempotent queries.
func (q *Query) SpeculativeExecutionPolicy(sp SpeculativeExecutionPolicy) *Query {
	q.sp = sp
	return q
}

// WithContext bounds the query's overall execution.
func (q *Query) WithContext(ctx context.Context) *Query {
	q.context = ctx
	return q
}

func (q *Query) Keyspace() string {
	if q.session == nil {
		return ""
	}
	return q.session.Keyspace()
}

// Execute runs the query and returns the assembled result.
func (q *Query) Execute() (*ResultSet, error) {
	return q.session.executeStatement(q.ctx(), q)
}

// Exec runs the query and discards the rows.
func (q *Query) Exec() error {
	_, err := q.Execute()
	return err
}

func (q *Query) ctx() context.Context {
	if q.context != nil {
		return q.context
	}
	return context.Background()
}

func (q *Query) request(proto int) Request {
	return &queryRequest{
		protoVersion: proto,
		statement:    q.stmt,
		values:       q.values,
		cons:         q.cons,
		pageSize:     q.pageSize,
		pageState:    q.pageState,
		trace:        q.trace,
	}
}

// BoundStatement executes a prepared statement with bound values.
type BoundStatement struct {
	prepared   *PreparedStatement
	values     [][]byte
	cons       Consistency
	pageSize   int
	pageState  []byte
	idempotent bool
	trace      bool
	session    *Session
	context    context.Context
	rt         RetryPolicy
	sp         SpeculativeExecutionPolicy
}

func (b *BoundStatement) Prepared() *PreparedStatement {
	return b.prepared
}

func (b *BoundStatement) Consistency(c Consistency) *BoundStatement {
	b.cons = c
	return b
}

func (b *BoundStatement) GetConsistency() Consistency {
	return b.cons
}

func (b *BoundStatement) PageSize(n int) *BoundStatement {
	b.pageSize = n
	return b
}

func (b *BoundStatement) PageState(state []byte) *BoundStatement {
	b.pageState = state
	return b
}

func (b *BoundStatement) Idempotent(idempotent bool) *BoundStatement {
	b.idempotent = idempotent
	return b
}

func (b *BoundStatement) IsIdempotent() bool {
	return b.idempotent
}

func (b *BoundStatement) Trace(enabled bool) *BoundStatement {
	b.trace = enabled
	return b
}

func (b *BoundStatement) RetryPolicy(rt RetryPolicy) *BoundStatement {
	b.rt = rt
	return b
}

func (b *BoundStatement) WithContext(ctx context.Context) *BoundStatement {
	b.context = ctx
	return b
}

func (b *BoundStatement) Keyspace() string {
	if b.prepared != nil {
		return b.prepared.Keyspace
	}
	return ""
}

func (b *BoundStatement) Execute() (*ResultSet, error) {
	return b.session.executeStatement(b.ctx(), b)
}

func (b *BoundStatement) Exec() error {
	_, err := b.Execute()
	return err
}

func (b *BoundStatement) ctx() context.Context {
	if b.context != nil {
		return b.context
	}
	return context.Background()
}

func (b *BoundStatement) request(proto int) Request {
	return &executeRequest{
		protoVersion: proto,
		preparedID:   b.prepared.ID,
		values:       b.values,
		cons:         b.cons,
		pageSize:     b.pageSize,
		pageState:    b.pageState,
		trace:        b.trace,
	}
}

type BatchType byte

const (
	LoggedBatch   BatchType = 0
	UnloggedBatch BatchType = 1
	CounterBatch  BatchType = 2
)

// Batch groups statements executed as one unit. Entries may reference
// prepared statements, which makes the batch subject to re-prepare recovery.
type Batch struct {
	Type       BatchType
	entries    []BatchEntry
	cons       Consistency
	idempotent bool
	session    *Session
	context    context.Context
	rt         RetryPolicy
}

type BatchEntry struct {
	Statement string
	Prepared  *PreparedStatement
	Values    [][]byte
}

// Query appends a plain statement to the batch.
func (b *Batch) Query(stmt string, values ...[]byte) *Batch {
	b.entries = append(b.entries, BatchEntry{Statement: stmt, Values: values})
	return b
}

// Bind appends a prepared statement with bound values to the batch.
func (b *Batch) Bind(prepared *PreparedStatement, values ...[]byte) *Batch {
	b.entries = append(b.entries, BatchEntry{Prepared: prepared, Values: values})
	return b
}

func (b *Batch) Entries() []BatchEntry {
	return b.entries
}

func (b *Batch) Consistency(c Consistency) *Batch {
	b.cons = c
	return b
}

func (b *Batch) GetConsistency() Consistency {
	return b.cons
}

func (b *Batch) Idempotent(idempotent bool) *Batch {
	b.idempotent = idempotent
	return b
}

func (b *Batch) IsIdempotent() bool {
	return b.idempotent
}

func (b *Batch) RetryPolicy(rt RetryPolicy) *Batch {
	b.rt = rt
	return b
}

func (b *Batch) WithContext(ctx context.Context) *Batch {
	b.context = ctx
	return b
}

func (b *Batch) Keyspace() string {
	for _, e := range b.entries {
		if e.Prepared != nil && e.Prepared.Keyspace != "" {
			return e.Prepared.Keyspace
		}
	}
	return ""
}

func (b *Batch) ctx() context.Context {
	if b.context != nil {
		return b.context
	}
	return context.Background()
}

func (b *Batch) request(proto int) Request {
	entries := make([]batchRequestEntry, len(b.entries))
	for i, e := range b.entries {
		entries[i] = batchRequestEntry{statement: e.Statement, values: e.Values}
		if e.Prepared != nil {
			entries[i].preparedID = e.Prepared.ID
			entries[i].statement = e.Prepared.Statement
		}
	}
	return &batchRequest{
		protoVersion: proto,
		typ:          b.Type,
		entries:      entries,
		cons:         b.cons,
	}
}

// prepareStatement drives Session.Prepare through the same execution core as
// row-producing statements.
type prepareStatement struct {
	statement string
	keyspace  string
}

func (p *prepareStatement) GetConsistency() Consistency { return One }
func (p *prepareStatement) Keyspace() string            { return p.keyspace }
func (p *prepareStatement) IsIdempotent() bool          { return true }

func (p *prepareStatement) request(proto int) Request {
	return &prepareRequest{protoVersion: proto, statement: p.statement, keyspace: p.keyspace}
}

// requestBuilder is satisfied by every statement able to produce its wire
// request. Each attempt chain gets its own Request value.
type requestBuilder interface {
	Statement
	request(proto int) Request
}

// withPageState derives a copy of a pageable statement that resumes from the
// given paging token. Statements without paging support return nil.
func withPageState(stmt Statement, pageState []byte) requestBuilder {
	switch s := stmt.(type) {
	case *Query:
		next := *s
		next.pageState = pageState
		return &next
	case *BoundStatement:
		next := *s
		next.pageState = pageState
		return &next
	default:
		return nil
	}
}
