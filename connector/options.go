// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package connector

import (
	"crypto/tls"
	"net"

	"strata.im/xmpp/auth"
	"strata.im/xmpp/tlscert"
)

// Dialer holds the configuration named in spec.md §4.5. The zero value
// dials a plaintext-then-STARTTLS connection with no legacy fallback and
// no plain-auth concessions, mirroring the teacher's zero-value-safe
// Dialer convention.
type Dialer struct {
	net.Dialer

	// Server and Port override SRV discovery (xmpp-server, xmpp-port).
	// If either is set, SRV lookup is skipped entirely.
	Server string
	Port   string

	// PlaintextAuthAllowed permits plain SASL mechanisms over an
	// unencrypted channel.
	PlaintextAuthAllowed bool
	// EncryptedPlainAuthOK permits plain SASL mechanisms once the
	// channel is encrypted.
	EncryptedPlainAuthOK bool
	// TLSRequired aborts bring-up if STARTTLS cannot be negotiated.
	TLSRequired bool
	// Legacy allows a pre-1.0, featureless server to authenticate via
	// jabber:iq:auth (spec.md §4.4).
	Legacy bool
	// OldSSL dials straight into a TLS handshake instead of negotiating
	// STARTTLS (spec.md §4.2).
	OldSSL bool
	// AuthInsecureOK allows registration/unregistration over an
	// unencrypted channel.
	AuthInsecureOK bool

	// Resource is a preferred resource hint; the server may override it.
	Resource string
	// Email is used only for XEP-0077 registration.
	Email string

	// TLSConfig is used as the base *tls.Config for both legacy SSL and
	// STARTTLS; ServerName is filled in automatically if empty.
	TLSConfig *tls.Config
	// VerifyLevel selects the tlscert.Level applied to the peer
	// certificate chain.
	VerifyLevel tlscert.Level
	// ExtraIdentities are accepted as additional valid peer names
	// alongside the connection domain (spec.md §4.2).
	ExtraIdentities []string

	// Mechanisms is the auth registry consulted for SASL (spec.md §4.3).
	Mechanisms *auth.Registry
	// Register, if set, requests XEP-0077 registration instead of
	// authenticating with an existing account.
	Register bool
	// Unregister, if set, requests XEP-0077 account deletion after
	// authenticating.
	Unregister bool

	// OnConnectionEstablished, if set, is called with the raw TCP
	// connection immediately after TCP connect and before any XMPP bytes
	// flow, so the application can tune socket options such as
	// TCP_NODELAY (spec.md §6 "connection-established").
	OnConnectionEstablished OnConnectionEstablished

	// seeOtherHostLimit bounds the see-other-host retry count (spec.md
	// §4.5); zero means the default of 5.
	seeOtherHostLimit int
}

func (d *Dialer) seeOtherHostMax() int {
	if d.seeOtherHostLimit > 0 {
		return d.seeOtherHostLimit
	}
	return 5
}
