// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package porter

import (
	"strata.im/xmpp/jid"
	"strata.im/xmpp/stanza"
)

// Priority orders handler dispatch (spec.md §4.6): handlers are tried
// highest priority first, and equal-priority handlers fire in
// registration order. The three named levels mirror the only values the
// connection core itself uses, but the type admits any value.
type Priority uint32

// Named priority levels (spec.md §4.6).
const (
	Min    Priority = 0
	Normal Priority = ^Priority(0) / 2
	Max    Priority = ^Priority(0)
)

// Result is a handler's verdict on a dispatched stanza.
type Result bool

// Handled and Declined are the two values a HandlerFunc may return.
const (
	Declined Result = false
	Handled  Result = true
)

// HandlerFunc is invoked for a stanza whose filters match (spec.md §4.6).
// Returning Handled stops dispatch for that stanza; returning Declined
// lets the next matching handler run.
type HandlerFunc func(p *Porter, s stanza.Stanza) Result

// fromKind distinguishes the three From filter shapes of spec.md §4.6.
type fromKind int

const (
	fromAnyone fromKind = iota
	fromServerOnly
	fromJID
)

// From filters an inbound stanza by its "from" address.
type From struct {
	kind fromKind
	jid  jid.JID
}

// AnyOne matches unconditionally.
func AnyOne() From { return From{kind: fromAnyone} }

// ServerOnly matches stanzas with no "from" attribute, or one equal to
// the domain of the local user (i.e. stanzas from the local server).
func ServerOnly() From { return From{kind: fromServerOnly} }

// FromJID matches stanzas whose "from" normalises to j. If j is a bare
// JID, any full JID extending it also matches (spec.md §3, §4.6).
func FromJID(j jid.JID) From { return From{kind: fromJID, jid: j} }

func (f From) matches(local jid.JID, s stanza.Stanza) bool {
	switch f.kind {
	case fromAnyone:
		return true
	case fromServerOnly:
		if !s.HasFrom {
			return true
		}
		domain, err := jid.New("", local.Domainpart(), "")
		return err == nil && s.From.Equal(domain)
	case fromJID:
		if !s.HasFrom {
			return false
		}
		return f.jid.Contains(s.From)
	}
	return false
}

// handlerEntry is the owned record behind a registered id (spec.md §3
// "Handler entry").
type handlerEntry struct {
	id       uint64
	seq      uint64
	kind     stanza.Kind
	subKind  *stanza.SubKind
	from     From
	priority Priority
	callback HandlerFunc
	pattern  *stanza.Node
}

// matches applies the full filter chain of spec.md §4.6: kind, sub-kind,
// from, and finally pattern. pattern, if set, is matched root-to-root
// against s.Node (wocky's wocky_stanza_build_va convention: the pattern is
// itself a stanza template, not a bare child fragment), so it must share
// s.Node's root element name to ever match.
func (h *handlerEntry) matches(local jid.JID, s stanza.Stanza) bool {
	if h.kind != stanza.Any && h.kind != s.Kind {
		return false
	}
	if h.subKind != nil && *h.subKind != s.SubKind {
		return false
	}
	if !h.from.matches(local, s) {
		return false
	}
	if h.pattern != nil && !s.Node.Matches(h.pattern) {
		return false
	}
	return true
}
