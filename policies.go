// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import (
	"sync"
	"sync/atomic"
	"time"
)

// Server-reported write types, as carried by write-timeout errors.
const (
	WriteTypeSimple        = "SIMPLE"
	WriteTypeBatch         = "BATCH"
	WriteTypeUnloggedBatch = "UNLOGGED_BATCH"
	WriteTypeCounter       = "COUNTER"
	WriteTypeBatchLog      = "BATCH_LOG"
)

type RetryType uint16

const (
	// RetryTypeRethrow finalizes the query with the error as-is.
	RetryTypeRethrow RetryType = iota
	// RetryTypeIgnore finalizes the query with an empty result.
	RetryTypeIgnore
	// RetryTypeRetry re-attempts the request.
	RetryTypeRetry
)

// RetryDecision is the verdict of a retry policy for one classified failure.
// Consistency, when non-nil, replaces the request's consistency level on the
// next attempt. UseCurrentHost asks for the retry to reuse the connection
// that produced the failure instead of selecting a fresh host.
type RetryDecision struct {
	Type           RetryType
	Consistency    *Consistency
	UseCurrentHost bool
}

func NewRethrowDecision() RetryDecision {
	return RetryDecision{Type: RetryTypeRethrow}
}

func NewIgnoreDecision() RetryDecision {
	return RetryDecision{Type: RetryTypeIgnore}
}

func NewRetryDecision(cons *Consistency, useCurrentHost bool) RetryDecision {
	return RetryDecision{Type: RetryTypeRetry, Consistency: cons, UseCurrentHost: useCurrentHost}
}

// RetryPolicy decides what to do about server-reported consistency
// anomalies. retryCount is the number of retries already performed for the
// logical query, so policies can bound themselves.
type RetryPolicy interface {
	OnReadTimeout(stmt Statement, cons Consistency, requiredAcks, receivedAcks int, dataRetrieved bool, retryCount int) RetryDecision
	OnWriteTimeout(stmt Statement, cons Consistency, writeType string, requiredAcks, receivedAcks int, retryCount int) RetryDecision
	OnUnavailable(stmt Statement, cons Consistency, requiredReplicas, aliveReplicas int, retryCount int) RetryDecision
}

// retryDecision classifies a failure into a retry decision. Transport-level
// connectivity failures and the overloaded/bootstrapping/truncate server
// errors always retry on a new host without touching consistency; read
// timeouts, write timeouts and unavailable errors are delegated to the
// policy; everything else is rethrown. Side effects such as host-suspect
// marking, unprepared recovery and client-timeout handling happen in the
// attempt before this table is consulted.
func retryDecision(err error, policy RetryPolicy, stmt Statement, retryCount int) RetryDecision {
	switch e := err.(type) {
	case *RequestErrReadTimeout:
		return policy.OnReadTimeout(stmt, e.Consistency, e.BlockFor, e.Received, e.DataPresent != 0, retryCount)
	case *RequestErrWriteTimeout:
		return policy.OnWriteTimeout(stmt, e.Consistency, e.WriteType, e.BlockFor, e.Received, retryCount)
	case *RequestErrUnavailable:
		return policy.OnUnavailable(stmt, e.Consistency, e.Required, e.Alive, retryCount)
	}
	if re, ok := err.(RequestError); ok {
		switch re.Code() {
		case ErrCodeOverloaded, ErrCodeBootstrapping, ErrCodeTruncate:
			return NewRetryDecision(nil, false)
		}
		return NewRethrowDecision()
	}
	if isTransportError(err) {
		return NewRetryDecision(nil, false)
	}
	return NewRethrowDecision()
}

// DefaultRetryPolicy retries at most once and only when the retry has a
// reasonable chance of succeeding: reads where enough replicas acknowledged
// but the data was not retrieved, batch-log writes, and unavailable errors
// (on a different host).
type DefaultRetryPolicy struct{}

func (DefaultRetryPolicy) OnReadTimeout(_ Statement, _ Consistency, requiredAcks, receivedAcks int, dataRetrieved bool, retryCount int) RetryDecision {
	if retryCount != 0 {
		return NewRethrowDecision()
	}
	if receivedAcks >= requiredAcks && !dataRetrieved {
		return NewRetryDecision(nil, true)
	}
	return NewRethrowDecision()
}

func (DefaultRetryPolicy) OnWriteTimeout(_ Statement, _ Consistency, writeType string, _, _ int, retryCount int) RetryDecision {
	if retryCount == 0 && writeType == WriteTypeBatchLog {
		return NewRetryDecision(nil, true)
	}
	return NewRethrowDecision()
}

func (DefaultRetryPolicy) OnUnavailable(_ Statement, _ Consistency, _, _ int, retryCount int) RetryDecision {
	if retryCount == 0 {
		return NewRetryDecision(nil, false)
	}
	return NewRethrowDecision()
}

// FallthroughRetryPolicy never retries; every delegated failure is rethrown
// to the caller.
type FallthroughRetryPolicy struct{}

func (FallthroughRetryPolicy) OnReadTimeout(_ Statement, _ Consistency, _, _ int, _ bool, _ int) RetryDecision {
	return NewRethrowDecision()
}

func (FallthroughRetryPolicy) OnWriteTimeout(_ Statement, _ Consistency, _ string, _, _ int, _ int) RetryDecision {
	return NewRethrowDecision()
}

func (FallthroughRetryPolicy) OnUnavailable(_ Statement, _ Consistency, _, _ int, _ int) RetryDecision {
	return NewRethrowDecision()
}

// DowngradingConsistencyRetryPolicy retries once with the strongest
// consistency level the reported number of live or acknowledging replicas
// can still satisfy. Use only when reading or writing at a reduced
// consistency is acceptable to the application.
type DowngradingConsistencyRetryPolicy struct{}

func maxLikelyToWork(replicas int) (Consistency, bool) {
	switch {
	case replicas >= 3:
		return Three, true
	case replicas == 2:
		return Two, true
	case replicas == 1:
		return One, true
	default:
		return One, false
	}
}

func (DowngradingConsistencyRetryPolicy) OnReadTimeout(_ Statement, _ Consistency, requiredAcks, receivedAcks int, dataRetrieved bool, retryCount int) RetryDecision {
	if retryCount != 0 {
		return NewRethrowDecision()
	}
	if receivedAcks >= requiredAcks {
		if dataRetrieved {
			return NewRethrowDecision()
		}
		return NewRetryDecision(nil, true)
	}
	cons, ok := maxLikelyToWork(receivedAcks)
	if !ok {
		return NewRethrowDecision()
	}
	return NewRetryDecision(&cons, true)
}

func (DowngradingConsistencyRetryPolicy) OnWriteTimeout(_ Statement, _ Consistency, writeType string, _, receivedAcks int, retryCount int) RetryDecision {
	if retryCount != 0 {
		return NewRethrowDecision()
	}
	switch writeType {
	case WriteTypeSimple, WriteTypeBatch:
		// the write reached at least one replica, treat it as done
		if receivedAcks > 0 {
			return NewIgnoreDecision()
		}
		return NewRethrowDecision()
	case WriteTypeUnloggedBatch:
		cons, ok := maxLikelyToWork(receivedAcks)
		if !ok {
			return NewRethrowDecision()
		}
		return NewRetryDecision(&cons, true)
	case WriteTypeBatchLog:
		return NewRetryDecision(nil, true)
	default:
		return NewRethrowDecision()
	}
}

func (DowngradingConsistencyRetryPolicy) OnUnavailable(_ Statement, _ Consistency, _, aliveReplicas int, retryCount int) RetryDecision {
	if retryCount != 0 {
		return NewRethrowDecision()
	}
	cons, ok := maxLikelyToWork(aliveReplicas)
	if !ok {
		return NewRethrowDecision()
	}
	return NewRetryDecision(&cons, true)
}

// SelectedHost is one candidate produced by a host selection policy. Mark
// feeds the outcome of the attempt back to the policy.
type SelectedHost interface {
	Info() *HostInfo
	Mark(err error)
}

// NextHost yields candidate hosts for a query; nil means no more candidates.
type NextHost func() SelectedHost

// HostSelectionPolicy chooses the order in which hosts are tried.
type HostSelectionPolicy interface {
	AddHost(host *HostInfo)
	RemoveHost(host *HostInfo)
	HostUp(host *HostInfo)
	HostDown(host *HostInfo)
	Pick(stmt Statement) NextHost
}

// RoundRobinHostPolicy cycles through the known hosts in order, starting at
// a different offset for every query.
func RoundRobinHostPolicy() HostSelectionPolicy {
	return &roundRobinHostPolicy{}
}

type roundRobinHostPolicy struct {
	mu    sync.RWMutex
	hosts []*HostInfo
	pos   uint32
}

func (r *roundRobinHostPolicy) AddHost(host *HostInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.hosts {
		if h.HostID() == host.HostID() {
			return
		}
	}
	r.hosts = append(r.hosts, host)
}

func (r *roundRobinHostPolicy) RemoveHost(host *HostInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.hosts {
		if h.HostID() == host.HostID() {
			r.hosts = append(r.hosts[:i], r.hosts[i+1:]...)
			return
		}
	}
}

func (r *roundRobinHostPolicy) HostUp(host *HostInfo) {
	r.AddHost(host)
}

func (r *roundRobinHostPolicy) HostDown(host *HostInfo) {
	host.setState(nodeDown)
}

func (r *roundRobinHostPolicy) Pick(_ Statement) NextHost {
	r.mu.RLock()
	hosts := make([]*HostInfo, len(r.hosts))
	copy(hosts, r.hosts)
	r.mu.RUnlock()

	offset := atomic.AddUint32(&r.pos, 1) - 1
	var i int
	return func() SelectedHost {
		if i >= len(hosts) {
			return nil
		}
		host := hosts[int(offset+uint32(i))%len(hosts)]
		i++
		return (*selectedRoundRobinHost)(host)
	}
}

type selectedRoundRobinHost HostInfo

func (h *selectedRoundRobinHost) Info() *HostInfo {
	return (*HostInfo)(h)
}

func (h *selectedRoundRobinHost) Mark(_ error) {}

// SpeculativeExecutionPolicy controls how many extra attempts are launched
// for an idempotent query that has not completed yet, and how far apart.
type SpeculativeExecutionPolicy interface {
	Attempts() int
	Delay() time.Duration
}

type NonSpeculativeExecution struct{}

func (NonSpeculativeExecution) Attempts() int        { return 0 }
func (NonSpeculativeExecution) Delay() time.Duration { return 1 }

// SimpleSpeculativeExecution launches NumAttempts additional executions,
// TimeoutDelay apart, on top of the main one.
type SimpleSpeculativeExecution struct {
	NumAttempts  int
	TimeoutDelay time.Duration
}

func (sp *SimpleSpeculativeExecution) Attempts() int        { return sp.NumAttempts }
func (sp *SimpleSpeculativeExecution) Delay() time.Duration { return sp.TimeoutDelay }
