// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hostpool provides a host selection policy backed by the
// hailocab/go-hostpool library, which spreads queries across hosts and
// steers away from unresponsive ones based on marked outcomes.
package hostpool

import (
	"sync"

	"github.com/hailocab/go-hostpool"

	"github.com/cqlexec/cqlexec"
)

// HostPoolHostPolicy wraps a go-hostpool pool as a HostSelectionPolicy.
// Create the pool with an empty host list; it is populated through AddHost.
//
//	policy := hostpool.HostPoolHostPolicy(hp.New(nil))
//
//	// or epsilon-greedy selection weighted by response outcomes
//	policy := hostpool.HostPoolHostPolicy(
//	    hp.NewEpsilonGreedy(nil, 0, &hp.LinearEpsilonValueCalculator{}),
//	)
func HostPoolHostPolicy(pool hostpool.HostPool) cqlexec.HostSelectionPolicy {
	return &hostPoolHostPolicy{hostMap: map[string]*cqlexec.HostInfo{}, hp: pool}
}

type hostPoolHostPolicy struct {
	hp      hostpool.HostPool
	mu      sync.RWMutex
	hostMap map[string]*cqlexec.HostInfo
}

// SetHosts replaces the policy's host set wholesale, preserving ordering.
func (r *hostPoolHostPolicy) SetHosts(hosts []*cqlexec.HostInfo) {
	peers := make([]string, len(hosts))
	hostMap := make(map[string]*cqlexec.HostInfo, len(hosts))

	for i, host := range hosts {
		addr := host.HostnameAndPort()
		peers[i] = addr
		hostMap[addr] = host
	}

	r.mu.Lock()
	r.hp.SetHosts(peers)
	r.hostMap = hostMap
	r.mu.Unlock()
}

func (r *hostPoolHostPolicy) AddHost(host *cqlexec.HostInfo) {
	addr := host.HostnameAndPort()

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.hostMap[addr]; ok && h != nil {
		return
	}
	r.hostMap[addr] = host
	hosts := make([]string, 0, len(r.hostMap))
	for a := range r.hostMap {
		hosts = append(hosts, a)
	}

	r.hp.SetHosts(hosts)
}

func (r *hostPoolHostPolicy) RemoveHost(host *cqlexec.HostInfo) {
	addr := host.HostnameAndPort()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hostMap[addr]; !ok {
		return
	}

	delete(r.hostMap, addr)
	hosts := make([]string, 0, len(r.hostMap))
	for a := range r.hostMap {
		hosts = append(hosts, a)
	}

	r.hp.SetHosts(hosts)
}

func (r *hostPoolHostPolicy) HostUp(host *cqlexec.HostInfo) {
	r.AddHost(host)
}

func (r *hostPoolHostPolicy) HostDown(host *cqlexec.HostInfo) {
	r.RemoveHost(host)
}

func (r *hostPoolHostPolicy) Pick(_ cqlexec.Statement) cqlexec.NextHost {
	return func() cqlexec.SelectedHost {
		r.mu.RLock()
		defer r.mu.RUnlock()

		if len(r.hostMap) == 0 {
			return nil
		}

		hostR := r.hp.Get()
		host, ok := r.hostMap[hostR.Host()]
		if !ok {
			return nil
		}

		return selectedHostPoolHost{
			policy: r,
			info:   host,
			hostR:  hostR,
		}
	}
}

// selectedHostPoolHost feeds attempt outcomes back into the host pool.
type selectedHostPoolHost struct {
	policy *hostPoolHostPolicy
	info   *cqlexec.HostInfo
	hostR  hostpool.HostPoolResponse
}

func (host selectedHostPoolHost) Info() *cqlexec.HostInfo {
	return host.info
}

func (host selectedHostPoolHost) Mark(err error) {
	addr := host.info.HostnameAndPort()

	host.policy.mu.RLock()
	defer host.policy.mu.RUnlock()

	if _, ok := host.policy.hostMap[addr]; !ok {
		// host was removed between pick and mark
		return
	}

	host.hostR.Mark(err)
}
