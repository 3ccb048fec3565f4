// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import (
	"github.com/cqlexec/cqlexec/internal/lru"
)

const defaultMaxPreparedStmts = 1000

// preparedLRU caches prepared statement descriptors per host and keyspace.
// Re-prepare recovery refreshes entries here so later executions pick up the
// renewed descriptor without another round trip.
type preparedLRU struct {
	lru *lru.Cache
}

func newPreparedLRU(maxEntries int) *preparedLRU {
	if maxEntries <= 0 {
		maxEntries = defaultMaxPreparedStmts
	}
	return &preparedLRU{lru: lru.New(maxEntries)}
}

func (p *preparedLRU) add(key string, ps *PreparedStatement) {
	p.lru.Add(key, ps)
}

func (p *preparedLRU) get(key string) (*PreparedStatement, bool) {
	v, ok := p.lru.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*PreparedStatement), true
}

func (p *preparedLRU) remove(key string) bool {
	return p.lru.Remove(key)
}

func (p *preparedLRU) clear() {
	for p.lru.Len() > 0 {
		p.lru.RemoveOldest()
	}
}

func (p *preparedLRU) keyFor(addr, keyspace, statement string) string {
	return addr + keyspace + statement
}
