// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package stanza

import "strata.im/xmpp/internal/ns"

// NewMessage builds a <message/> Stanza of the given sub-kind.
func NewMessage(space string, sub SubKind, id, to, from string, payload ...*Node) Stanza {
	if space == "" {
		space = ns.Client
	}
	n := NewNode(space, "message")
	if sub != "" {
		n.WithAttr("type", string(sub))
	}
	if id != "" {
		n.WithAttr("id", id)
	}
	if to != "" {
		n.WithAttr("to", to)
	}
	if from != "" {
		n.WithAttr("from", from)
	}
	for _, p := range payload {
		n.WithChild(p)
	}
	return FromNode(n)
}

// NewPresence builds a <presence/> Stanza of the given sub-kind.
func NewPresence(space string, sub SubKind, id, to, from string, payload ...*Node) Stanza {
	if space == "" {
		space = ns.Client
	}
	n := NewNode(space, "presence")
	if sub != "" {
		n.WithAttr("type", string(sub))
	}
	if id != "" {
		n.WithAttr("id", id)
	}
	if to != "" {
		n.WithAttr("to", to)
	}
	if from != "" {
		n.WithAttr("from", from)
	}
	for _, p := range payload {
		n.WithChild(p)
	}
	return FromNode(n)
}
