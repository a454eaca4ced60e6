// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package session

import (
	"sync"

	"strata.im/xmpp/jid"
	"strata.im/xmpp/stanza"
)

// ContactFactory caches one Contact per bare JID (spec.md §4.7's
// "contact factory (external collaborator)"). Full roster/presence
// tracking is out of scope (spec.md §1 Non-goals); this is the minimal
// collaborator needed for get_contact_factory() to return something a
// caller can build on, not a roster implementation.
type ContactFactory struct {
	session *Session

	mu       sync.Mutex
	contacts map[string]*Contact
}

func newContactFactory(s *Session) *ContactFactory {
	return &ContactFactory{session: s, contacts: make(map[string]*Contact)}
}

// Contact returns the cached Contact for j's bare address, creating one if
// this is the first time it has been requested.
func (f *ContactFactory) Contact(j jid.JID) *Contact {
	bare := j.Bare()
	key := bare.String()

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.contacts[key]; ok {
		return c
	}
	c := &Contact{jid: bare, session: f.session}
	f.contacts[key] = c
	return c
}

// Contact is a single correspondent addressed by bare JID. It is a thin
// convenience wrapper around the session's porter, not a roster entry:
// subscription state, presence, and groups are out of scope (spec.md §1).
type Contact struct {
	jid     jid.JID
	session *Session
}

// JID returns the contact's bare address.
func (c *Contact) JID() jid.JID { return c.jid }

// SendMessage sends a chat message to the contact without waiting for the
// write to complete (porter.Send).
func (c *Contact) SendMessage(body string) error {
	msg := stanza.NewMessage("", stanza.Chat, "", c.jid.String(), c.session.JID().String())
	msg.Node.WithChild(stanza.NewNode("", "body").WithText(body))
	return c.session.Porter().Send(msg)
}
