// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package xmlconn implements the framed XML connection described in
// spec.md §4.1: a bidirectional byte stream wrapped so that the six
// operations (send/recv open, send/recv stanza, send/force close) and
// the whitespace-ping/reset helpers are exposed as the stream's only
// interface, with at most one send and one recv allowed in flight at a
// time.
package xmlconn // import "strata.im/xmpp/xmlconn"
