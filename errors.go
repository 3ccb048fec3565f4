// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
)

// Server error codes as defined by the native protocol.
const (
	ErrCodeServer        = 0x0000
	ErrCodeProtocol      = 0x000A
	ErrCodeCredentials   = 0x0100
	ErrCodeUnavailable   = 0x1000
	ErrCodeOverloaded    = 0x1001
	ErrCodeBootstrapping = 0x1002
	ErrCodeTruncate      = 0x1003
	ErrCodeWriteTimeout  = 0x1100
	ErrCodeReadTimeout   = 0x1200
	ErrCodeSyntax        = 0x2000
	ErrCodeUnauthorized  = 0x2100
	ErrCodeInvalid       = 0x2200
	ErrCodeConfig        = 0x2300
	ErrCodeAlreadyExists = 0x2400
	ErrCodeUnprepared    = 0x2500
)

var (
	// ErrTimeoutNoResponse is reported by a connection when no response was
	// received from the server within the configured request timeout.
	ErrTimeoutNoResponse = errors.New("cqlexec: no response received from server within timeout period")

	// ErrConnectionClosed is reported by a connection when the channel to the
	// host was lost while a request was in flight.
	ErrConnectionClosed = errors.New("cqlexec: connection closed")

	// ErrSessionClosed is returned for operations issued after Session.Close.
	ErrSessionClosed = errors.New("cqlexec: session has been closed")

	// ErrPageTimeout is returned when fetching the next result page did not
	// finish within Config.PageAbortTimeout.
	ErrPageTimeout = errors.New("cqlexec: timed out fetching next page")
)

// RequestError is implemented by all server-reported errors.
type RequestError interface {
	Code() int
	Message() string
	Error() string
}

type errorFrame struct {
	code    int
	message string
}

func (e errorFrame) Code() int {
	return e.code
}

func (e errorFrame) Message() string {
	return e.message
}

func (e errorFrame) Error() string {
	return e.message
}

// NewServerError builds the typed error value for a server ERROR response.
// Codes without a dedicated type come back as a plain code+message error.
func NewServerError(code int, message string) RequestError {
	return errorFrame{code: code, message: message}
}

// RequestErrUnavailable is reported when the coordinator knew upfront that
// not enough replicas were alive to satisfy the requested consistency.
type RequestErrUnavailable struct {
	errorFrame
	Consistency Consistency
	Required    int
	Alive       int
}

func NewErrUnavailable(message string, cons Consistency, required, alive int) *RequestErrUnavailable {
	return &RequestErrUnavailable{
		errorFrame:  errorFrame{code: ErrCodeUnavailable, message: message},
		Consistency: cons,
		Required:    required,
		Alive:       alive,
	}
}

func (e *RequestErrUnavailable) String() string {
	return fmt.Sprintf("[request_error_unavailable consistency=%s required=%d alive=%d]",
		e.Consistency, e.Required, e.Alive)
}

// RequestErrWriteTimeout is reported when the coordinator timed out waiting
// for replica acknowledgements during a write.
type RequestErrWriteTimeout struct {
	errorFrame
	Consistency Consistency
	Received    int
	BlockFor    int
	WriteType   string
}

func NewErrWriteTimeout(message string, cons Consistency, received, blockFor int, writeType string) *RequestErrWriteTimeout {
	return &RequestErrWriteTimeout{
		errorFrame:  errorFrame{code: ErrCodeWriteTimeout, message: message},
		Consistency: cons,
		Received:    received,
		BlockFor:    blockFor,
		WriteType:   writeType,
	}
}

// RequestErrReadTimeout is reported when the coordinator timed out waiting
// for replica responses during a read. DataPresent is non-zero when the data
// replica answered but not enough acknowledgements arrived.
type RequestErrReadTimeout struct {
	errorFrame
	Consistency Consistency
	Received    int
	BlockFor    int
	DataPresent byte
}

func NewErrReadTimeout(message string, cons Consistency, received, blockFor int, dataPresent byte) *RequestErrReadTimeout {
	return &RequestErrReadTimeout{
		errorFrame:  errorFrame{code: ErrCodeReadTimeout, message: message},
		Consistency: cons,
		Received:    received,
		BlockFor:    blockFor,
		DataPresent: dataPresent,
	}
}

// RequestErrUnprepared is reported by a host that no longer recognizes a
// previously prepared statement id.
type RequestErrUnprepared struct {
	errorFrame
	StatementID []byte
}

func NewErrUnprepared(message string, statementID []byte) *RequestErrUnprepared {
	id := make([]byte, len(statementID))
	copy(id, statementID)
	return &RequestErrUnprepared{
		errorFrame:  errorFrame{code: ErrCodeUnprepared, message: message},
		StatementID: id,
	}
}

// NoHostAvailableError is returned when every candidate host has been tried
// or excluded. Errors maps each attempted host address to the failure
// observed there.
type NoHostAvailableError struct {
	Errors map[string]error
}

func (e *NoHostAvailableError) Error() string {
	if len(e.Errors) == 0 {
		return "cqlexec: no hosts available to execute the query"
	}
	addrs := make([]string, 0, len(e.Errors))
	for addr := range e.Errors {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	var sb strings.Builder
	sb.WriteString("cqlexec: no hosts available to execute the query, tried:")
	for _, addr := range addrs {
		fmt.Fprintf(&sb, " %s(%v)", addr, e.Errors[addr])
	}
	return sb.String()
}

// DriverInternalError signals a defect in the driver or in a collaborator
// rather than a transient runtime condition. It is never retried.
type DriverInternalError struct {
	msg string
}

func newInternalError(format string, args ...interface{}) *DriverInternalError {
	return &DriverInternalError{msg: fmt.Sprintf(format, args...)}
}

func (e *DriverInternalError) Error() string {
	return "cqlexec: internal driver error: " + e.msg
}

// isTransportError reports whether err represents a transport-level
// connectivity failure as opposed to a server-reported or client-side error.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		// read deadline expiry surfaces separately as ErrTimeoutNoResponse
		return !nerr.Timeout()
	}
	var operr *net.OpError
	return errors.As(err, &operr)
}
