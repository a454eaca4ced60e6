// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package porter

import "errors"

// Errors returned by Porter's operations (spec.md §4.6, §7).
var (
	// ErrNotStarted indicates an operation was attempted before Start.
	ErrNotStarted = errors.New("porter: not started")
	// ErrClosing indicates Send/SendAsync/SendIQAsync was called after
	// Close but before the peer's stream close arrived.
	ErrClosing = errors.New("porter: closing")
	// ErrClosed indicates an operation was attempted after the porter
	// reached the Closed state.
	ErrClosed = errors.New("porter: closed")
	// ErrNotIQ indicates AcknowledgeIQ/SendIQError/SendIQGerror was
	// handed a stanza that is not an IQ.
	ErrNotIQ = errors.New("porter: stanza is not an iq")
	// ErrForciblyClosed indicates ForceClose tore down the connection
	// while the operation was outstanding.
	ErrForciblyClosed = errors.New("porter: forcibly closed")
	// ErrCancelled indicates the caller's context was cancelled before
	// the operation completed.
	ErrCancelled = errors.New("porter: operation cancelled")
)
