// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"errors"
)

// Errors returned by the courier package.
var (
	ErrNotInitialized  = errors.New("courier: session is not initialized")
	ErrSessionFinished = errors.New("courier: session finished")
	ErrAborted         = errors.New("courier: request aborted")
	ErrTimeout         = errors.New("courier: request timed out")
	ErrNotConnected    = errors.New("courier: not connected")
	ErrTLSRequired     = errors.New("courier: server does not offer TLS")
	ErrPlainWithoutTLS = errors.New("courier: refusing to send a password over an insecure stream")
	ErrUnexpectedID    = errors.New("courier: response has an unexpected id")
	ErrConnected       = errors.New("courier: client already has a session")
)

// ErrorKind identifies why a session failed.
// Applications should switch on the kind rather than the error text.
type ErrorKind uint8

// A list of session error kinds.
const (
	UnknownError ErrorKind = iota
	AuthenticationFailed
	CompressionFailed
	ServerVerificationFailed
	NoSupportedAuthMechanisms
	UnexpectedElement
	ResourceBindFailed
	SessionStartFailed
	TLSError
	ClientCertificateError
	XMLError
	ConnectionReadError
	ConnectionWriteError

	// ConnectionError is reported when no connection to the server could be
	// established.
	ConnectionError

	// StreamError is reported when the server sent a stream error.
	StreamError
)

func (k ErrorKind) String() string {
	switch k {
	case AuthenticationFailed:
		return "authentication failed"
	case CompressionFailed:
		return "compression failed"
	case ServerVerificationFailed:
		return "server verification failed"
	case NoSupportedAuthMechanisms:
		return "no supported authentication mechanisms"
	case UnexpectedElement:
		return "unexpected element"
	case ResourceBindFailed:
		return "resource binding failed"
	case SessionStartFailed:
		return "session start failed"
	case TLSError:
		return "tls error"
	case ClientCertificateError:
		return "invalid client certificate"
	case XMLError:
		return "malformed xml"
	case ConnectionReadError:
		return "connection read error"
	case ConnectionWriteError:
		return "connection write error"
	case ConnectionError:
		return "connection error"
	case StreamError:
		return "stream error"
	}
	return "unknown error"
}

// Error satisfies the error interface so that a kind can be used as the target
// of errors.Is.
func (k ErrorKind) Error() string {
	return "courier: " + k.String()
}

// Error is the error a session or client reports when it fails.
type Error struct {
	Kind ErrorKind

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the ErrorKind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

func newError(kind ErrorKind, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: kind, Err: err}
}
