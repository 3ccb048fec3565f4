// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import (
	"fmt"
	"net"
	"strconv"
	"sync"
)

type nodeState int32

const (
	nodeUp nodeState = iota
	nodeDown
)

// HostInfo identifies one node of the cluster as seen by host selection and
// health tracking.
type HostInfo struct {
	mu             sync.RWMutex
	hostID         string
	connectAddress net.IP
	port           int
	state          nodeState
}

func NewHostInfo(hostID string, addr net.IP, port int) *HostInfo {
	return &HostInfo{hostID: hostID, connectAddress: addr, port: port, state: nodeUp}
}

func (h *HostInfo) HostID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hostID
}

func (h *HostInfo) ConnectAddress() net.IP {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connectAddress
}

func (h *HostInfo) Port() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.port
}

// HostnameAndPort is the canonical address key used for tried-host
// bookkeeping; Conn.Address must return the same form.
func (h *HostInfo) HostnameAndPort() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return net.JoinHostPort(h.connectAddress.String(), strconv.Itoa(h.port))
}

func (h *HostInfo) IsUp() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state == nodeUp
}

func (h *HostInfo) setState(s nodeState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *HostInfo) String() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fmt.Sprintf("[HostInfo hostID=%q connectAddress=%q port=%d]", h.hostID, h.connectAddress, h.port)
}
