// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package session implements the thin façade described in spec.md §4.7: it
// owns a porter bound to the framed connection a connector.Dialer hands
// off, and exposes the contact factory, the bound JID, and start().
package session // import "strata.im/xmpp/session"
