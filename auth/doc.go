// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package auth implements the authentication registry, SASL negotiation
// pump, and legacy jabber:iq:auth driver described in spec.md §4.3 and
// §4.4.
package auth // import "strata.im/xmpp/auth"
