// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package stanza implements the XMPP stanza data model: a tree of XML
// nodes with a typed root (message, presence, iq, stream feature, and the
// handful of other top-level elements the connection core consumes) plus
// the stanza-error and stream-error taxonomies extracted from an
// <error/>/<stream:error/> child.
package stanza // import "strata.im/xmpp/stanza"
