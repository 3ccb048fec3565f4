// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

// Default native protocol version used when Config.ProtoVersion is zero.
const protoVersion4 = 4

// ColumnInfo describes one column of a row or of a prepared statement's
// bound variables. Values travel as raw bytes; type decoding is the wire
// codec's concern.
type ColumnInfo struct {
	Keyspace string
	Table    string
	Name     string
}

// Request is the codec-side description of one client operation. A Request
// is immutable once sent, except that its consistency level and paging state
// may be adjusted between attempts of the same chain.
type Request interface {
	proto() int
}

// consistencyRequest is satisfied by every consistency-bearing request.
type consistencyRequest interface {
	Request
	consistency() Consistency
	setConsistency(Consistency)
}

type queryRequest struct {
	protoVersion int
	statement    string
	values       [][]byte
	cons         Consistency
	pageSize     int
	pageState    []byte
	trace        bool
}

func (r *queryRequest) proto() int               { return r.protoVersion }
func (r *queryRequest) consistency() Consistency { return r.cons }
func (r *queryRequest) setConsistency(c Consistency) {
	r.cons = c
}

type executeRequest struct {
	protoVersion int
	preparedID   []byte
	values       [][]byte
	cons         Consistency
	pageSize     int
	pageState    []byte
	trace        bool
}

func (r *executeRequest) proto() int               { return r.protoVersion }
func (r *executeRequest) consistency() Consistency { return r.cons }
func (r *executeRequest) setConsistency(c Consistency) {
	r.cons = c
}

type prepareRequest struct {
	protoVersion int
	statement    string
	keyspace     string
}

func (r *prepareRequest) proto() int { return r.protoVersion }

type batchRequest struct {
	protoVersion int
	typ          BatchType
	entries      []batchRequestEntry
	cons         Consistency
}

type batchRequestEntry struct {
	statement  string
	preparedID []byte
	values     [][]byte
}

func (r *batchRequest) proto() int               { return r.protoVersion }
func (r *batchRequest) consistency() Consistency { return r.cons }
func (r *batchRequest) setConsistency(c Consistency) {
	r.cons = c
}

// Response is one decoded server reply. The set of response kinds is closed:
// rows, void, set-keyspace, schema-change and prepared are the only shapes
// the execution core will ever accept. Server errors arrive as error values
// on the send callback instead.
type Response interface {
	isResponse()
}

// RowsResponse carries the payload of a RESULT/Rows reply.
type RowsResponse struct {
	Columns     []ColumnInfo
	Rows        [][][]byte
	PagingState []byte
	TraceID     []byte
}

func (*RowsResponse) isResponse() {}

// VoidResponse is the empty RESULT reply of writes and DDL without payload.
type VoidResponse struct {
	TraceID []byte
}

func (*VoidResponse) isResponse() {}

// KeyspaceResponse signals that the statement switched the active keyspace.
type KeyspaceResponse struct {
	Keyspace string
}

func (*KeyspaceResponse) isResponse() {}

// SchemaChangeResponse signals that the statement altered the schema. The
// caller's result is delivered immediately; schema agreement is awaited as a
// follow-up action.
type SchemaChangeResponse struct {
	Change   string
	Target   string
	Keyspace string
	Object   string
	TraceID  []byte
}

func (*SchemaChangeResponse) isResponse() {}

// PreparedResponse is the descriptor returned for a PREPARE request.
type PreparedResponse struct {
	ID            []byte
	BoundColumns  []ColumnInfo
	ResultColumns []ColumnInfo
	Keyspace      string
}

func (*PreparedResponse) isResponse() {}
