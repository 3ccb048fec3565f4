// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

// SchemaWaiter polls cluster metadata until all hosts agree on the schema
// version. It is consulted as a follow-up after schema-changing statements.
type SchemaWaiter interface {
	WaitSchemaAgreement(ctx context.Context) error
}

// Config carries session-wide defaults. The zero value is usable; every
// field has a sensible default applied by NewSession.
type Config struct {
	// Consistency is the default consistency level for statements that do
	// not set their own. Defaults to Quorum.
	Consistency Consistency

	// PageSize is the default result page size; <= 0 disables paging.
	PageSize int

	// ProtoVersion is the native protocol version requests are built for.
	// Defaults to 4.
	ProtoVersion int

	// RetryPolicy decides about server-reported consistency anomalies.
	// Defaults to DefaultRetryPolicy.
	RetryPolicy RetryPolicy

	// SpeculativeExecutionPolicy applies to idempotent statements that do
	// not set their own. Defaults to NonSpeculativeExecution.
	SpeculativeExecutionPolicy SpeculativeExecutionPolicy

	// RetryOnTimeout reissues a request on a fresh host after a client-side
	// timeout. Prepare requests are always reissued.
	RetryOnTimeout bool

	// PageAbortTimeout bounds the blocking wait of an auto-paging
	// continuation. Defaults to 10 seconds.
	PageAbortTimeout time.Duration

	// Timeout is the per-request client-side timeout handed to connection
	// implementations. Defaults to 600ms.
	Timeout time.Duration

	// MaxPreparedStmts caps the prepared statement cache. Defaults to 1000.
	MaxPreparedStmts int

	// MaxWaitSchemaAgreement bounds the schema-agreement wait scheduled
	// after schema changes. Defaults to 60 seconds.
	MaxWaitSchemaAgreement time.Duration

	// SchemaWaiter, when set, is polled after schema-changing statements.
	SchemaWaiter SchemaWaiter

	// Compressor is handed to connection implementations via ConnConfig.
	Compressor Compressor

	// Keyspace is the keyspace the session starts in.
	Keyspace string

	Logger         StdLogger
	AdvancedLogger AdvancedLogger
	LogLevel       LogLevel
}

// Session is the entry point for executing statements. It owns session-wide
// defaults, the prepared statement cache and the active keyspace; actual
// connections come from the supplied pool.
type Session struct {
	cfg      Config
	pool     ConnPool
	policy   HostSelectionPolicy
	logger   internalLogger
	prepared *preparedLRU

	mu       sync.RWMutex
	keyspace string
	closed   bool
}

// NewSession wraps a connection pool and a host selection policy. The
// session performs no I/O of its own until a statement is executed.
func NewSession(cfg Config, pool ConnPool, policy HostSelectionPolicy) (*Session, error) {
	if pool == nil {
		return nil, errors.New("cqlexec: a connection pool is required")
	}
	if policy == nil {
		policy = RoundRobinHostPolicy()
	}
	if cfg.Consistency == Any {
		cfg.Consistency = Quorum
	}
	if cfg.ProtoVersion == 0 {
		cfg.ProtoVersion = protoVersion4
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 5000
	}
	if cfg.PageAbortTimeout <= 0 {
		cfg.PageAbortTimeout = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 600 * time.Millisecond
	}
	if cfg.MaxWaitSchemaAgreement <= 0 {
		cfg.MaxWaitSchemaAgreement = 60 * time.Second
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = DefaultRetryPolicy{}
	}

	return &Session{
		cfg:      cfg,
		pool:     pool,
		policy:   policy,
		logger:   newInternalLogger(&cfg),
		prepared: newPreparedLRU(cfg.MaxPreparedStmts),
		keyspace: cfg.Keyspace,
	}, nil
}

// Query builds a new query with the session defaults applied.
func (s *Session) Query(stmt string) *Query {
	return &Query{
		stmt:     stmt,
		cons:     s.cfg.Consistency,
		pageSize: s.cfg.PageSize,
		session:  s,
	}
}

// Batch builds a new batch with the session defaults applied.
func (s *Session) Batch(typ BatchType) *Batch {
	return &Batch{
		Type:    typ,
		cons:    s.cfg.Consistency,
		session: s,
	}
}

// Bind builds an executable statement for a prepared descriptor, with the
// session defaults applied.
func (s *Session) Bind(ps *PreparedStatement, values ...[]byte) *BoundStatement {
	return &BoundStatement{
		prepared: ps,
		values:   values,
		cons:     s.cfg.Consistency,
		pageSize: s.cfg.PageSize,
		session:  s,
	}
}

// Prepare registers a statement with the cluster and returns its descriptor.
// The descriptor is cached so re-prepare recovery and later executions can
// reuse it.
func (s *Session) Prepare(stmt string) (*PreparedStatement, error) {
	return s.PrepareContext(context.Background(), stmt)
}

func (s *Session) PrepareContext(ctx context.Context, stmt string) (*PreparedStatement, error) {
	rs, err := s.executeStatement(ctx, &prepareStatement{statement: stmt, keyspace: s.Keyspace()})
	if err != nil {
		return nil, err
	}
	if rs.Prepared() == nil {
		return nil, newInternalError("prepare completed without a descriptor")
	}
	return rs.Prepared(), nil
}

// ExecuteBatch runs a batch built with Session.Batch.
func (s *Session) ExecuteBatch(b *Batch) (*ResultSet, error) {
	return s.executeStatement(b.ctx(), b)
}

func (s *Session) executeStatement(ctx context.Context, stmt requestBuilder) (*ResultSet, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	return newQueryExecutor(s, stmt).executeQuery(ctx)
}

// Keyspace returns the session's active keyspace. It follows set-keyspace
// responses observed during execution.
func (s *Session) Keyspace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keyspace
}

func (s *Session) setKeyspace(keyspace string) {
	s.mu.Lock()
	changed := s.keyspace != keyspace
	s.keyspace = keyspace
	s.mu.Unlock()
	if changed {
		s.logger.Info("active keyspace changed", newLogField("keyspace", keyspace))
	}
}

// Close tears down the session. Statements and paging continuations issued
// afterwards do not perform I/O.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.prepared.clear()
}

func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) proto() int {
	return s.cfg.ProtoVersion
}

// ConnConfig is what connection pool implementations should hand to newly
// dialed connections.
func (s *Session) ConnConfig() ConnConfig {
	return ConnConfig{
		ProtoVersion: s.cfg.ProtoVersion,
		Timeout:      s.cfg.Timeout,
		Compressor:   s.cfg.Compressor,
	}
}

func (s *Session) cachePrepared(addr string, ps *PreparedStatement) {
	if ps == nil {
		return
	}
	s.prepared.add(s.prepared.keyFor(addr, ps.Keyspace, ps.Statement), ps)
}

// refreshPrepared re-caches a descriptor after re-prepare recovery. The
// statement id is deterministic server-side, so a changed id indicates a
// schema drift worth surfacing in logs.
func (s *Session) refreshPrepared(addr string, ps *PreparedStatement, resp *PreparedResponse) {
	if !bytes.Equal(resp.ID, ps.ID) {
		s.logger.Warning("reprepared statement returned a different id",
			newLogField("host", addr),
			newLogField("statement", ps.Statement))
	}
	s.cachePrepared(addr, ps)
}

func (s *Session) schemaAgreementFollowUp() func() {
	if s.cfg.SchemaWaiter == nil {
		return nil
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MaxWaitSchemaAgreement)
		defer cancel()
		if err := s.cfg.SchemaWaiter.WaitSchemaAgreement(ctx); err != nil {
			s.logger.Warning("schema agreement wait failed", newLogField("error", err))
		}
	}
}
