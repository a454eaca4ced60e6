// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package jid implements the XMPP address format described in RFC 7622.
//
// A JID is a triple of (localpart, domainpart, resourcepart). The
// domainpart is required; the localpart and resourcepart are optional. A
// JID with no resourcepart is called a "bare" JID; one with a resourcepart
// is a "full" JID.
package jid // import "strata.im/xmpp/jid"
