// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeHandle counts transport-level cancellations.
type fakeHandle struct {
	cancels int32
}

func (h *fakeHandle) Cancel() {
	atomic.AddInt32(&h.cancels, 1)
}

func (h *fakeHandle) cancelCount() int {
	return int(atomic.LoadInt32(&h.cancels))
}

// fakeConn scripts the outcomes of one connection. Every send consumes the
// next scripted step and dispatches its outcome to the handler before Send
// returns; with no step left the request stays in flight forever.
type fakeConn struct {
	addr   string
	handle fakeHandle

	mu             sync.Mutex
	keyspace       string
	useKeyspaceErr error
	script         []func(req Request) (Response, error)
	sent           []Request
	handlers       []ResponseHandler
	events         []string
}

func newFakeConn(addr, keyspace string) *fakeConn {
	return &fakeConn{addr: addr, keyspace: keyspace}
}

// respond appends scripted steps, one per future send.
func (c *fakeConn) respond(steps ...func(req Request) (Response, error)) *fakeConn {
	c.mu.Lock()
	c.script = append(c.script, steps...)
	c.mu.Unlock()
	return c
}

// reply is a scripted step with a fixed outcome.
func reply(resp Response, err error) func(Request) (Response, error) {
	return func(Request) (Response, error) { return resp, err }
}

func (c *fakeConn) Address() string {
	return c.addr
}

func (c *fakeConn) Keyspace() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyspace
}

func (c *fakeConn) UseKeyspace(keyspace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "use:"+keyspace)
	if c.useKeyspaceErr != nil {
		return c.useKeyspaceErr
	}
	c.keyspace = keyspace
	return nil
}

func (c *fakeConn) Send(req Request, handler ResponseHandler) SendHandle {
	c.mu.Lock()
	c.sent = append(c.sent, req)
	c.handlers = append(c.handlers, handler)
	c.events = append(c.events, "send:"+reqKind(req))
	var step func(Request) (Response, error)
	if len(c.script) > 0 {
		step = c.script[0]
		c.script = c.script[1:]
	}
	c.mu.Unlock()
	if step != nil {
		resp, err := step(req)
		handler(resp, err)
	}
	return &c.handle
}

func (c *fakeConn) sentRequests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.sent...)
}

func (c *fakeConn) sentHandlers() []ResponseHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ResponseHandler(nil), c.handlers...)
}

func (c *fakeConn) eventLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func reqKind(req Request) string {
	switch req.(type) {
	case *queryRequest:
		return "query"
	case *executeRequest:
		return "execute"
	case *prepareRequest:
		return "prepare"
	case *batchRequest:
		return "batch"
	default:
		return "unknown"
	}
}

// fakeOrchestrator drives attempts directly: connections come from a fixed
// queue and every delivery is recorded. It enforces the same at-most-one
// completion semantics as the real executor.
type fakeOrchestrator struct {
	state  *QueryState
	policy RetryPolicy
	stmt   Statement

	mu          sync.Mutex
	queue       []Conn
	markedDown  []string
	noMoreHosts []error
	rs          *ResultSet
	err         error
	followUp    func()
	completions int

	done chan struct{}
}

func newFakeOrchestrator(stmt Statement, policy RetryPolicy, conns ...*fakeConn) *fakeOrchestrator {
	o := &fakeOrchestrator{
		state:  NewQueryState(),
		policy: policy,
		stmt:   stmt,
		done:   make(chan struct{}),
	}
	for _, c := range conns {
		o.queue = append(o.queue, c)
	}
	return o
}

func (o *fakeOrchestrator) NextConn(tried map[string]error) (Conn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.queue) > 0 {
		conn := o.queue[0]
		o.queue = o.queue[1:]
		if _, dup := tried[conn.Address()]; dup {
			continue
		}
		return conn, nil
	}
	return nil, &NoHostAvailableError{Errors: tried}
}

func (o *fakeOrchestrator) Completed() bool {
	return o.state.HasCompleted()
}

func (o *fakeOrchestrator) CompleteWithError(err error) bool {
	if !o.state.TryComplete() {
		return false
	}
	o.mu.Lock()
	o.err = err
	o.completions++
	o.mu.Unlock()
	close(o.done)
	return true
}

func (o *fakeOrchestrator) CompleteWithResult(rs *ResultSet, followUp func()) bool {
	if !o.state.TryComplete() {
		return false
	}
	o.mu.Lock()
	o.rs = rs
	o.followUp = followUp
	o.completions++
	o.mu.Unlock()
	close(o.done)
	return true
}

func (o *fakeOrchestrator) MarkHostDown(conn Conn) {
	o.mu.Lock()
	o.markedDown = append(o.markedDown, conn.Address())
	o.mu.Unlock()
}

func (o *fakeOrchestrator) NoMoreHosts(err error, _ *Attempt) {
	o.mu.Lock()
	o.noMoreHosts = append(o.noMoreHosts, err)
	o.mu.Unlock()
	o.CompleteWithError(err)
}

func (o *fakeOrchestrator) RetryPolicy() RetryPolicy {
	if o.policy == nil {
		return DefaultRetryPolicy{}
	}
	return o.policy
}

func (o *fakeOrchestrator) Statement() Statement {
	return o.stmt
}

func (o *fakeOrchestrator) State() *QueryState {
	return o.state
}

func (o *fakeOrchestrator) await(t *testing.T) {
	t.Helper()
	select {
	case <-o.done:
	case <-time.After(2 * time.Second):
		t.Fatal("query did not complete")
	}
}

func (o *fakeOrchestrator) outcome() (*ResultSet, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rs, o.err
}

func (o *fakeOrchestrator) downHosts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.markedDown...)
}

func (o *fakeOrchestrator) completionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completions
}

// scriptedRetryPolicy returns fixed decisions and counts the delegations.
type scriptedRetryPolicy struct {
	read        RetryDecision
	write       RetryDecision
	unavailable RetryDecision

	mu               sync.Mutex
	readCalls        int
	writeCalls       int
	unavailableCalls int
}

func (p *scriptedRetryPolicy) OnReadTimeout(_ Statement, _ Consistency, _, _ int, _ bool, _ int) RetryDecision {
	p.mu.Lock()
	p.readCalls++
	p.mu.Unlock()
	return p.read
}

func (p *scriptedRetryPolicy) OnWriteTimeout(_ Statement, _ Consistency, _ string, _, _ int, _ int) RetryDecision {
	p.mu.Lock()
	p.writeCalls++
	p.mu.Unlock()
	return p.write
}

func (p *scriptedRetryPolicy) OnUnavailable(_ Statement, _ Consistency, _, _ int, _ int) RetryDecision {
	p.mu.Lock()
	p.unavailableCalls++
	p.mu.Unlock()
	return p.unavailable
}

// recordingLogger captures structured log messages.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...LogField)   { l.record(msg) }
func (l *recordingLogger) Warning(msg string, _ ...LogField) { l.record(msg) }
func (l *recordingLogger) Info(msg string, _ ...LogField)    { l.record(msg) }
func (l *recordingLogger) Debug(msg string, _ ...LogField)   { l.record(msg) }

func (l *recordingLogger) contains(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m == msg {
			return true
		}
	}
	return false
}

type nopPool struct{}

func (nopPool) Pick(*HostInfo) Conn { return nil }

// newBareSession builds a session whose pool never produces connections; it
// only supplies configuration to attempts driven by a fakeOrchestrator.
func newBareSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	sess, err := NewSession(cfg, nopPool{}, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

type fakePool struct {
	mu    sync.Mutex
	conns map[string]Conn
}

func newFakePool(conns ...*fakeConn) *fakePool {
	p := &fakePool{conns: make(map[string]Conn)}
	for _, c := range conns {
		p.conns[c.addr] = c
	}
	return p
}

func (p *fakePool) Pick(host *HostInfo) Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[host.HostnameAndPort()]
}

func hostForAddr(t *testing.T, id, addr string) *HostInfo {
	t.Helper()
	hostStr, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("bad host address %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("bad port in %q: %v", addr, err)
	}
	return NewHostInfo(id, net.ParseIP(hostStr), port)
}

// newTestSession wires fake connections into a full session: one host per
// connection, registered with a fresh round robin policy.
func newTestSession(t *testing.T, cfg Config, conns ...*fakeConn) *Session {
	t.Helper()
	policy := RoundRobinHostPolicy()
	sess, err := NewSession(cfg, newFakePool(conns...), policy)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	for i, conn := range conns {
		policy.AddHost(hostForAddr(t, strconv.Itoa(i), conn.addr))
	}
	return sess
}
