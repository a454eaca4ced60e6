// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides the namespace constants used throughout the module.
package ns // import "strata.im/xmpp/internal/ns"

// Namespaces used by the connection and session core (RFC 6120/6121,
// XEP-0077, XEP-0078).
const (
	Client       = "jabber:client"
	Server       = "jabber:server"
	Stream       = "http://etherx.jabber.org/streams"
	XML          = "http://www.w3.org/XML/1998/namespace"
	Stanza       = "urn:ietf:params:xml:ns:xmpp-stanzas"
	StreamErrors = "urn:ietf:params:xml:ns:xmpp-streams"
	StartTLS     = "urn:ietf:params:xml:ns:xmpp-tls"
	SASL         = "urn:ietf:params:xml:ns:xmpp-sasl"
	Bind         = "urn:ietf:params:xml:ns:xmpp-bind"
	Session      = "urn:ietf:params:xml:ns:xmpp-session"
	IQAuth       = "http://jabber.org/features/iq-auth"
	IQAuthLegacy = "jabber:iq:auth"
	IQRegister   = "jabber:iq:register"
)
