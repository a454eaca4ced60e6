// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package porter implements the stanza multiplexer described in spec.md
// §4.6: a priority-ordered handler table, a pending-IQ correlation table,
// a serialised send queue on top of a framed XML connection, and the
// close-state machine that governs both.
package porter // import "strata.im/xmpp/porter"
