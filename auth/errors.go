// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package auth

import "fmt"

// Code classifies an authentication failure (spec.md §4.3, §4.4).
type Code int

const (
	// Failure is a generic SASL or legacy-auth failure.
	Failure Code = iota
	// NoMechanisms indicates the peer offered no mechanism the registry
	// recognises at all.
	NoMechanisms
	// NotSupported indicates the registry recognised offered mechanisms
	// but policy (plain-over-clear-channel) rejected every one.
	NotSupported
	// ConnReset indicates the underlying connection was torn down mid
	// negotiation.
	ConnReset
	// Stream indicates a <stream:error/> arrived during negotiation.
	Stream
	// Resource indicates resource binding failed.
	Resource
	// NotAuthorized maps a legacy jabber:iq:auth not-authorized error.
	NotAuthorized
	// ResourceConflict maps a legacy jabber:iq:auth conflict error.
	ResourceConflict
	// NoCredentials indicates the caller supplied no password for a
	// mechanism that requires one.
	NoCredentials
	// InvalidReply indicates the peer violated the SASL wire protocol
	// (unexpected element, data after success with none expected).
	InvalidReply
)

func (c Code) String() string {
	switch c {
	case Failure:
		return "failure"
	case NoMechanisms:
		return "no-mechanisms"
	case NotSupported:
		return "not-supported"
	case ConnReset:
		return "conn-reset"
	case Stream:
		return "stream"
	case Resource:
		return "resource"
	case NotAuthorized:
		return "not-authorized"
	case ResourceConflict:
		return "resource-conflict"
	case NoCredentials:
		return "no-credentials"
	case InvalidReply:
		return "invalid-reply"
	default:
		return "unknown"
	}
}

// Error is an authentication failure classified by Code (spec.md §7).
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code, so callers
// can write errors.Is(err, auth.ErrNotAuthorized) without caring about the
// wrapped detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for use with errors.Is.
var (
	ErrNoMechanisms     = &Error{Code: NoMechanisms}
	ErrNotSupported     = &Error{Code: NotSupported}
	ErrConnReset        = &Error{Code: ConnReset}
	ErrStream           = &Error{Code: Stream}
	ErrResource         = &Error{Code: Resource}
	ErrNotAuthorized    = &Error{Code: NotAuthorized}
	ErrResourceConflict = &Error{Code: ResourceConflict}
	ErrNoCredentials    = &Error{Code: NoCredentials}
	ErrInvalidReply     = &Error{Code: InvalidReply}
)
