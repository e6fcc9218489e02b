// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-echo.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrTransportClosed = errors.New("transport is closed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotSupported    = errors.New("operation not supported")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeBind
	ErrCodeConnect
	ErrCodeTransient
	ErrCodePeerClosed
	ErrCodeFatalTransport
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeBind:
		return "bind"
	case ErrCodeConnect:
		return "connect"
	case ErrCodeTransient:
		return "transient"
	case ErrCodePeerClosed:
		return "peer-closed"
	case ErrCodeFatalTransport:
		return "fatal-transport"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is matching. Any *Error with the same code matches.
var (
	ErrBind           = &Error{Code: ErrCodeBind, Message: "bind failed"}
	ErrConnect        = &Error{Code: ErrCodeConnect, Message: "connect failed"}
	ErrWouldBlock     = &Error{Code: ErrCodeTransient, Message: "operation would block"}
	ErrPeerClosed     = &Error{Code: ErrCodePeerClosed, Message: "peer closed"}
	ErrFatalTransport = &Error{Code: ErrCodeFatalTransport, Message: "fatal transport error"}
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Wrap attaches the cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// BindError reports that the listening endpoint could not be acquired.
func BindError(ep Endpoint, err error) *Error {
	return NewError(ErrCodeBind, "bind failed").WithContext("endpoint", ep.String()).Wrap(err)
}

// ConnectError reports that the client could not reach the server.
func ConnectError(ep Endpoint, err error) *Error {
	return NewError(ErrCodeConnect, "connect failed").WithContext("endpoint", ep.String()).Wrap(err)
}

// FatalTransportError wraps an unexpected I/O failure on one connection.
func FatalTransportError(op string, err error) *Error {
	return NewError(ErrCodeFatalTransport, op+" failed").Wrap(err)
}

// CodeOf extracts the ErrorCode carried by err, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
