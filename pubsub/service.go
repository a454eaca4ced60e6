// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package pubsub

import (
	"sync"

	"strata.im/xmpp/jid"
	"strata.im/xmpp/porter"
	"strata.im/xmpp/stanza"
)

// EventHandler is called for each pubsub event notification delivered to a
// node this Service has subscribed to.
type EventHandler func(node string, item *stanza.Node)

// Service is a pubsub service addressed by its JID, reached through a
// porter (wocky_pubsub_service_new takes a WockySession and builds its own
// porter reference; here the caller already owns one).
type Service struct {
	addr   jid.JID
	porter *porter.Porter

	mu    sync.Mutex
	nodes map[string]*Node
	onMsg EventHandler
}

// NewService wraps addr, registering the handlers needed to receive event
// notifications pushed by the service (wocky_pubsub_service_new).
func NewService(p *porter.Porter, addr jid.JID, onEvent EventHandler) *Service {
	s := &Service{addr: addr, porter: p, nodes: make(map[string]*Node), onMsg: onEvent}

	p.RegisterHandlerFromAnyone(stanza.Message, nil, porter.Normal, s.handleEvent, nil)
	p.RegisterHandlerFromAnyone(stanza.IQ, subKindPtr(stanza.Set), porter.Normal, s.handleUnsolicitedIQ, nil)
	return s
}

func subKindPtr(k stanza.SubKind) *stanza.SubKind { return &k }

// Node is a local handle for one named node of a Service. It records the
// node's name and service only and has no methods of its own.
type Node struct {
	name    string
	service *Service
}

// EnsureNode returns the cached Node for name, creating the local handle if
// this is the first time it's been requested (wocky_pubsub_service_ensure_node).
// It does not contact the service, and Node offers no way to publish to
// or subscribe to the node.
func (s *Service) EnsureNode(name string) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[name]; ok {
		return n
	}
	n := &Node{name: name, service: s}
	s.nodes[name] = n
	return n
}

// LookupNode returns the cached Node for name, or nil if EnsureNode has
// never been called for it (wocky_pubsub_service_lookup_node).
func (s *Service) LookupNode(name string) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes[name]
}

// handleEvent matches inbound <message/> stanzas carrying a pubsub#event
// payload and dispatches each contained item to onMsg.
func (s *Service) handleEvent(_ *porter.Porter, st stanza.Stanza) porter.Result {
	event := st.Node.Child(NSEvent, "event")
	if event == nil {
		return porter.Declined
	}
	items := event.Child(NSEvent, "items")
	if items == nil {
		return porter.Declined
	}
	nodeName, _ := items.GetAttr("node")
	if s.onMsg == nil {
		return porter.Handled
	}
	for _, item := range items.Children {
		if item.Name.Local != "item" {
			continue
		}
		s.onMsg(nodeName, item)
	}
	return porter.Handled
}

// handleUnsolicitedIQ absorbs legacy server-initiated <iq type='set'/>
// configuration-change notifications some deployments still send outside
// the message-based event flow, rather than letting them fall through
// unacknowledged.
func (s *Service) handleUnsolicitedIQ(p *porter.Porter, st stanza.Stanza) porter.Result {
	if st.Node.Child(NS, "pubsub") == nil {
		return porter.Declined
	}
	if st.HasFrom && !s.addr.Equal(st.From) {
		return porter.Declined
	}
	reply := stanza.Stanza{
		Kind:    stanza.IQ,
		SubKind: stanza.Result,
		ID:      st.ID,
		To:      st.From,
		HasTo:   st.HasFrom,
		Node:    stanza.NewNode("", "iq"),
	}
	reply.Node.WithAttr("type", string(stanza.Result)).WithAttr("id", st.ID)
	if st.HasFrom {
		reply.Node.WithAttr("to", st.From.String())
	}
	_ = p.Send(reply)
	return porter.Handled
}
