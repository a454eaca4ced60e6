// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package porter

import (
	"strata.im/xmpp/jid"
	"strata.im/xmpp/stanza"
)

// pendingEntry is the owned record behind one in-flight send_iq_async
// (spec.md §3 "Pending IQ entry"). It is keyed by id in Porter.pending;
// remote is carried alongside so a reply's "from" can be checked against
// the §3 JID-aliasing rule before the entry is considered matched.
type pendingEntry struct {
	id     string
	remote jid.JID
	hasTo  bool
	result chan pendingResult
}

type pendingResult struct {
	stanza stanza.Stanza
	err    error
}

// matchesFrom reports whether a reply's "from" corresponds to this
// pending entry's recorded remote, per spec.md §3/§4.6: equal outright,
// or the recorded remote is bare and the reply's from is a full JID
// extending it.
func (p *pendingEntry) matchesFrom(s stanza.Stanza) bool {
	if !p.hasTo {
		// No "to" was set on the original request; any replying peer is
		// accepted, matching the teacher's permissive default for
		// anonymous/server-directed IQs.
		return true
	}
	if !s.HasFrom {
		return false
	}
	return p.remote.Contains(s.From)
}
