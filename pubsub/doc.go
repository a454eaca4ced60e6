// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package pubsub demonstrates a porter-backed XEP-0060 publish-subscribe
// client: a service with local node handles that receives event
// notifications through the porter's handler contract. It does not publish
// items, subscribe to nodes, or send IQ requests of its own, and is not a
// complete implementation of the extension (spec.md §1 Non-goals exclude
// full XEP support); its job is to exercise
// porter.RegisterHandlerFromAnyone against a realistic caller.
package pubsub // import "strata.im/xmpp/pubsub"

// NS is the XEP-0060 pubsub namespace.
const NS = `http://jabber.org/protocol/pubsub`

// NSEvent is the namespace used for pubsub event notifications delivered
// inside <message/> stanzas.
const NSEvent = NS + "#event"
