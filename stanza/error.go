// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package stanza

import (
	"strings"

	"golang.org/x/text/language"

	"strata.im/xmpp/internal/ns"
	"strata.im/xmpp/jid"
)

// ErrorType is the "type" attribute of a stanza <error/> (spec.md §3).
type ErrorType string

// The five error types defined in RFC 6120 §8.3.2.
const (
	ErrAuth     ErrorType = "auth"
	ErrCancel   ErrorType = "cancel"
	ErrContinue ErrorType = "continue"
	ErrModify   ErrorType = "modify"
	ErrWait     ErrorType = "wait"
)

// Condition is one of the core stanza-error conditions from RFC 6120
// §8.3.3.
type Condition string

// Core stanza error conditions.
const (
	BadRequest            Condition = "bad-request"
	ConflictCond          Condition = "conflict"
	FeatureNotImplemented Condition = "feature-not-implemented"
	Forbidden             Condition = "forbidden"
	Gone                  Condition = "gone"
	InternalServerError   Condition = "internal-server-error"
	ItemNotFound          Condition = "item-not-found"
	JIDMalformed          Condition = "jid-malformed"
	NotAcceptable         Condition = "not-acceptable"
	NotAllowed            Condition = "not-allowed"
	NotAuthorized         Condition = "not-authorized"
	PolicyViolation       Condition = "policy-violation"
	RecipientUnavailable  Condition = "recipient-unavailable"
	RedirectCond          Condition = "redirect"
	RegistrationRequired  Condition = "registration-required"
	RemoteServerNotFound  Condition = "remote-server-not-found"
	RemoteServerTimeout   Condition = "remote-server-timeout"
	ResourceConstraint    Condition = "resource-constraint"
	ServiceUnavailable    Condition = "service-unavailable"
	SubscriptionRequired  Condition = "subscription-required"
	UndefinedCondition    Condition = "undefined-condition"
	UnexpectedRequest     Condition = "unexpected-request"
)

// Error is a stanza-level error extracted from an <error/> child (spec.md
// §3): a type, a core condition, and an optional namespace-qualified
// specialised sub-error plus human readable text.
type Error struct {
	Type      ErrorType
	Condition Condition
	By        jid.JID
	HasBy     bool
	Text      string
	Lang      string

	// Specialised is the first child of <error/> outside the core
	// condition namespace, e.g. a XEP-defined application-specific
	// condition.
	Specialised *Node
}

func (e Error) Error() string {
	if e.Text != "" {
		return e.Text
	}
	return string(e.Condition)
}

// LangTag parses e.Lang as a BCP 47 language tag for the error's <text/>
// child, e.g. for selecting a localized rendering. It returns the
// undetermined tag if Lang is empty or malformed.
func (e Error) LangTag() language.Tag {
	if e.Lang == "" {
		return language.Und
	}
	tag, err := language.Parse(e.Lang)
	if err != nil {
		return language.Und
	}
	return tag
}

func errorFromNode(n *Node) Error {
	e := Error{}
	if t, ok := n.GetAttr("type"); ok {
		e.Type = ErrorType(t)
	}
	if by, ok := n.GetAttr("by"); ok {
		if j, err := jid.Parse(by); err == nil {
			e.By, e.HasBy = j, true
		}
	}
	for _, c := range n.Children {
		switch {
		case c.Name.Space == ns.Stanza && c.Name.Local == "text":
			e.Text = c.Text
			if lang, ok := c.GetAttr("lang"); ok {
				e.Lang = lang
			}
		case c.Name.Space == ns.Stanza:
			if cond := Condition(c.Name.Local); knownConditions[cond] {
				e.Condition = cond
			} else {
				e.Condition = UndefinedCondition
			}
		default:
			if e.Specialised == nil {
				e.Specialised = c
			}
		}
	}
	return e
}

// toNode renders e as the <error/> child node to attach to a reply stanza.
func (e Error) toNode() *Node {
	n := NewNode("", "error")
	if e.Type == "" {
		e.Type = ErrCancel
	}
	n.WithAttr("type", string(e.Type))
	if e.HasBy {
		n.WithAttr("by", e.By.String())
	}
	n.WithChild(NewNode(ns.Stanza, string(e.Condition)))
	if e.Text != "" {
		text := NewNode(ns.Stanza, "text").WithText(e.Text)
		if e.Lang != "" {
			text.WithAttr("lang", e.Lang)
		}
		n.WithChild(text)
	}
	if e.Specialised != nil {
		n.WithChild(e.Specialised)
	}
	return n
}

// StreamError is the separate taxonomy (spec.md §3) extracted from a
// <stream:error/>.
type StreamError struct {
	Condition   string
	Text        string
	SeeOtherHost string
	HasSeeOtherHost bool
}

func (e StreamError) Error() string {
	if e.Text != "" {
		return e.Text
	}
	return e.Condition
}

// StreamErrorFromNode extracts a StreamError from a parsed <stream:error/>
// node.
func StreamErrorFromNode(n *Node) StreamError {
	se := StreamError{}
	for _, c := range n.Children {
		switch {
		case c.Name.Local == "text" && c.Name.Space == ns.StreamErrors:
			se.Text = c.Text
		case c.Name.Local == "see-other-host":
			se.SeeOtherHost = strings.TrimSpace(c.Text)
			se.HasSeeOtherHost = se.SeeOtherHost != ""
		default:
			if se.Condition == "" {
				se.Condition = c.Name.Local
			}
		}
	}
	return se
}

// knownConditions is the RFC 6120 §8.3.3 core condition set; errorFromNode
// uses it to tell a core condition from a malformed/unrecognised element
// that happens to share the core conditions' namespace.
var knownConditions = map[Condition]bool{
	BadRequest: true, ConflictCond: true, FeatureNotImplemented: true,
	Forbidden: true, Gone: true, InternalServerError: true, ItemNotFound: true,
	JIDMalformed: true, NotAcceptable: true, NotAllowed: true, NotAuthorized: true,
	PolicyViolation: true, RecipientUnavailable: true, RedirectCond: true,
	RegistrationRequired: true, RemoteServerNotFound: true, RemoteServerTimeout: true,
	ResourceConstraint: true, ServiceUnavailable: true, SubscriptionRequired: true,
	UndefinedCondition: true, UnexpectedRequest: true,
}
