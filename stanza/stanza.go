// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"strata.im/xmpp/internal/ns"
	"strata.im/xmpp/jid"
)

// Kind identifies the root element of a stanza (spec.md §3). It is derived
// once, at parse time, from the root element's (localname, namespace).
type Kind int

// The stanza kinds the connection core needs to recognise.
const (
	Unknown Kind = iota
	Message
	Presence
	IQ
	StreamFeatures
	Auth
	Challenge
	Response
	Success
	Failure
	StreamError
	StartTLS
	Proceed
)

func (k Kind) String() string {
	switch k {
	case Message:
		return "message"
	case Presence:
		return "presence"
	case IQ:
		return "iq"
	case StreamFeatures:
		return "stream:features"
	case Auth:
		return "auth"
	case Challenge:
		return "challenge"
	case Response:
		return "response"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case StreamError:
		return "stream:error"
	case StartTLS:
		return "starttls"
	case Proceed:
		return "proceed"
	default:
		return "unknown"
	}
}

// Any matches any Kind in a porter handler filter.
const Any Kind = -1

// SubKind is the stanza's "type" attribute, interpreted according to a
// kind-specific table (spec.md §3).
type SubKind string

// AnySubKind is the empty SubKind. Porter handler filters match any
// sub-kind only when given a nil *SubKind; a filter pointing at AnySubKind
// matches only stanzas whose type is empty.
const AnySubKind SubKind = ""

// IQ sub-kinds.
const (
	Get    SubKind = "get"
	Set    SubKind = "set"
	Result SubKind = "result"
	ErrorT SubKind = "error"
)

// Message sub-kinds.
const (
	Chat      SubKind = "chat"
	Normal    SubKind = "normal"
	Headline  SubKind = "headline"
	Groupchat SubKind = "groupchat"
	MsgError  SubKind = "error"
)

// Presence sub-kinds. The empty SubKind means "available".
const (
	Available   SubKind = ""
	Unavailable SubKind = "unavailable"
	Subscribe   SubKind = "subscribe"
	Subscribed  SubKind = "subscribed"
	Unsubscribe SubKind = "unsubscribe"
	PresError   SubKind = "error"
)

// kindTable maps (namespace, localname) to Kind for root-element lookup.
var kindTable = map[xml.Name]Kind{
	{Space: ns.Client, Local: "message"}:              Message,
	{Space: ns.Server, Local: "message"}:               Message,
	{Space: ns.Client, Local: "presence"}:              Presence,
	{Space: ns.Server, Local: "presence"}:               Presence,
	{Space: ns.Client, Local: "iq"}:                    IQ,
	{Space: ns.Server, Local: "iq"}:                     IQ,
	{Space: ns.Stream, Local: "features"}:               StreamFeatures,
	{Space: ns.Stream, Local: "error"}:                  StreamError,
	{Space: ns.SASL, Local: "auth"}:                     Auth,
	{Space: ns.SASL, Local: "challenge"}:                Challenge,
	{Space: ns.SASL, Local: "response"}:                 Response,
	{Space: ns.SASL, Local: "success"}:                  Success,
	{Space: ns.SASL, Local: "failure"}:                  Failure,
	{Space: ns.StartTLS, Local: "starttls"}:             StartTLS,
	{Space: ns.StartTLS, Local: "proceed"}:              Proceed,
	{Space: ns.StartTLS, Local: "failure"}:              Failure,
}

// Stanza is a parsed top-level stream element: its derived Kind/SubKind,
// optional From/To/ID, and the full element tree in Node.
type Stanza struct {
	Kind    Kind
	SubKind SubKind
	From    jid.JID
	HasFrom bool
	To      jid.JID
	HasTo   bool
	ID      string
	Node    *Node
}

// FromNode derives a Stanza from a parsed Node, resolving Kind from the
// node's (namespace, localname) and SubKind from its "type" attribute per
// the kind-specific table (spec.md §3).
func FromNode(n *Node) Stanza {
	s := Stanza{Node: n, Kind: kindTable[n.Name]}
	if typ, ok := n.GetAttr("type"); ok {
		s.SubKind = SubKind(typ)
	}
	if id, ok := n.GetAttr("id"); ok {
		s.ID = id
	}
	if from, ok := n.GetAttr("from"); ok {
		if j, err := jid.Parse(from); err == nil {
			s.From, s.HasFrom = j, true
		}
	}
	if to, ok := n.GetAttr("to"); ok {
		if j, err := jid.Parse(to); err == nil {
			s.To, s.HasTo = j, true
		}
	}
	return s
}

// DecodeStanza reads one top-level stanza from d, starting at start, and returns
// its parsed Stanza form.
func DecodeStanza(d *xml.Decoder, start xml.StartElement) (Stanza, error) {
	n, err := Decode(d, start)
	if err != nil {
		return Stanza{}, err
	}
	return FromNode(n), nil
}

// Error returns the parsed stanza Error carried in the stanza's <error/>
// child, if any.
func (s Stanza) Error() (Error, bool) {
	child := s.Node.Child("", "error")
	if child == nil {
		return Error{}, false
	}
	return errorFromNode(child), true
}
