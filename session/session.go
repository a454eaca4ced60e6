// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package session

import (
	"strata.im/xmpp/connector"
	"strata.im/xmpp/jid"
	"strata.im/xmpp/porter"
	"strata.im/xmpp/xmlconn"
)

// Session owns a porter bound to an already-open framed connection (spec.md
// §4.7). It is constructed after a connector.Dialer completes bring-up; it
// never dials, negotiates TLS, or authenticates itself.
type Session struct {
	localJID jid.JID
	porter   *porter.Porter
	contacts *ContactFactory
}

// New wraps an already-negotiated connection as a Session bound to full
// (spec.md §4.7 "constructed after the connector completes"). The caller
// must not use conn directly once it has been handed to the session; the
// resulting porter takes exclusive ownership (spec.md §4.6 Ownership).
func New(conn *xmlconn.Conn, full jid.JID) *Session {
	s := &Session{
		localJID: full,
		porter:   porter.New(conn, full),
	}
	s.contacts = newContactFactory(s)
	return s
}

// FromResult is a convenience constructor wrapping the framed connection
// and bound JID a successful connector.Dialer.Connect/Register returns.
func FromResult(res *connector.Result) *Session {
	return New(res.Conn, res.JID)
}

// Porter returns the session's porter (spec.md §4.7 "get_porter").
func (s *Session) Porter() *porter.Porter { return s.porter }

// ContactFactory returns the session's contact factory (spec.md §4.7
// "get_contact_factory").
func (s *Session) ContactFactory() *ContactFactory { return s.contacts }

// JID returns the bound JID this session is authenticated as (spec.md §4.7
// "get_jid").
func (s *Session) JID() jid.JID { return s.localJID }

// Start begins the porter's receive and send-queue loops (spec.md §4.7
// "start()", which delegates to the porter).
func (s *Session) Start() { s.porter.Start() }
