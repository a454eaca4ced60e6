// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package stanza

import "strata.im/xmpp/internal/ns"

// NewIQ builds an <iq/> Stanza of the given sub-kind (Get/Set/Result/ErrorT)
// with the given id, optional to/from, and payload children.
func NewIQ(space string, sub SubKind, id string, to, from string, payload ...*Node) Stanza {
	if space == "" {
		space = ns.Client
	}
	n := NewNode(space, "iq").WithAttr("type", string(sub)).WithAttr("id", id)
	if to != "" {
		n.WithAttr("to", to)
	}
	if from != "" {
		n.WithAttr("from", from)
	}
	for _, p := range payload {
		n.WithChild(p)
	}
	s := FromNode(n)
	return s
}

// Reply builds a result or error reply to an IQ get/set, swapping From/To
// and copying the id, per RFC 6120 §8.2.3.
func (s Stanza) Reply(result bool, payload ...*Node) Stanza {
	sub := Result
	if !result {
		sub = ErrorT
	}
	to, from := "", ""
	if s.HasFrom {
		to = s.From.String()
	}
	if s.HasTo {
		from = s.To.String()
	}
	return NewIQ(s.Node.Name.Space, sub, s.ID, to, from, payload...)
}

// ErrorReply builds an IQ error reply carrying e as the <error/> child.
func (s Stanza) ErrorReply(e Error) Stanza {
	return s.Reply(false, e.toNode())
}
