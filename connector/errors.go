// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package connector

import "fmt"

// Code enumerates the connector's recoverable bring-up failures (spec.md
// §4.5).
type Code int

const (
	Unknown Code = iota
	InProgress
	BadJid
	NonXmppV1Server
	BadFeatures
	TlsUnavailable
	TlsRefused
	TlsSessionFailed
	BindUnavailable
	BindFailed
	BindInvalid
	BindDenied
	BindConflict
	BindRejected
	SessionFailed
	SessionDenied
	SessionConflict
	SessionRejected
	Insecure
	RegistrationFailed
	RegistrationUnavailable
	RegistrationUnsupported
	RegistrationEmpty
	RegistrationConflict
	RegistrationRejected
	UnregisterFailed
	UnregisterDenied
)

var codeNames = map[Code]string{
	Unknown:                 "unknown",
	InProgress:              "in-progress",
	BadJid:                  "bad-jid",
	NonXmppV1Server:         "non-xmpp-v1-server",
	BadFeatures:             "bad-features",
	TlsUnavailable:          "tls-unavailable",
	TlsRefused:              "tls-refused",
	TlsSessionFailed:        "tls-session-failed",
	BindUnavailable:         "bind-unavailable",
	BindFailed:              "bind-failed",
	BindInvalid:             "bind-invalid",
	BindDenied:              "bind-denied",
	BindConflict:            "bind-conflict",
	BindRejected:            "bind-rejected",
	SessionFailed:           "session-failed",
	SessionDenied:           "session-denied",
	SessionConflict:         "session-conflict",
	SessionRejected:         "session-rejected",
	Insecure:                "insecure",
	RegistrationFailed:      "registration-failed",
	RegistrationUnavailable: "registration-unavailable",
	RegistrationUnsupported: "registration-unsupported",
	RegistrationEmpty:       "registration-empty",
	RegistrationConflict:    "registration-conflict",
	RegistrationRejected:    "registration-rejected",
	UnregisterFailed:        "unregister-failed",
	UnregisterDenied:        "unregister-denied",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// Error is a connector bring-up failure classified by Code (spec.md §7).
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connector: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("connector: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newErr(code Code, err error) error { return &Error{Code: code, Err: err} }
