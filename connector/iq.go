// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package connector

import (
	"context"
	"errors"

	"strata.im/xmpp/internal/ns"
	"strata.im/xmpp/jid"
	"strata.im/xmpp/stanza"
	"strata.im/xmpp/xmlconn"
)

// recvMatchingIQ reads stanzas until it finds an IQ result/error whose id
// equals want, aborting on any stream error (spec.md §4.5 "any other
// stream error aborts the connect operation"). The connector owns the
// connection exclusively during bring-up, so no unrelated traffic is
// expected.
func recvMatchingIQ(ctx context.Context, conn *xmlconn.Conn, want string) (stanza.Stanza, error) {
	for {
		s, err := conn.RecvStanza(ctx)
		if err != nil {
			return stanza.Stanza{}, newErr(Unknown, err)
		}
		if s.Kind == stanza.StreamError {
			return stanza.Stanza{}, newErr(Unknown, streamErrErr(s))
		}
		if s.Kind == stanza.IQ && s.ID == want {
			return s, nil
		}
	}
}

// bindResource drives the resource-binding step of spec.md §4.5: request
// either the caller's preferred resource or a server-generated one, and
// return the fully bound JID the server assigns.
func (d *Dialer) bindResource(ctx context.Context, conn *xmlconn.Conn, origin jid.JID) (jid.JID, error) {
	id := conn.NewID()
	bind := stanza.NewNode(ns.Bind, "bind")
	if d.Resource != "" {
		bind.WithChild(stanza.NewNode("", "resource").WithText(d.Resource))
	}
	iq := stanza.NewIQ(ns.Client, stanza.Set, id, "", "", bind)
	if err := conn.SendStanza(ctx, iq); err != nil {
		return jid.JID{}, newErr(Unknown, err)
	}

	result, err := recvMatchingIQ(ctx, conn, id)
	if err != nil {
		return jid.JID{}, err
	}
	if e, ok := result.Error(); ok {
		return jid.JID{}, bindErrToCode(e)
	}

	bound := result.Node.Child(ns.Bind, "bind")
	if bound == nil {
		return jid.JID{}, newErr(BindFailed, errors.New("connector: bind result missing bind element"))
	}
	if jidNode := bound.Child("", "jid"); jidNode != nil {
		if j, err := jid.Parse(jidNode.Text); err == nil {
			return j, nil
		}
		return jid.JID{}, newErr(BindInvalid, errors.New("connector: server returned an unparsable bound jid"))
	}
	if full, err := origin.WithResource(d.Resource); err == nil {
		return full, nil
	}
	return jid.JID{}, newErr(BindFailed, errors.New("connector: bind result carried neither a jid nor a usable resource"))
}

func bindErrToCode(e stanza.Error) error {
	switch e.Condition {
	case stanza.ConflictCond:
		return newErr(BindConflict, errors.New(e.Error()))
	case stanza.BadRequest, stanza.NotAcceptable, stanza.JIDMalformed:
		return newErr(BindInvalid, errors.New(e.Error()))
	case stanza.Forbidden, stanza.NotAllowed:
		return newErr(BindDenied, errors.New(e.Error()))
	default:
		return newErr(BindRejected, errors.New(e.Error()))
	}
}

// startSession sends the legacy session-establishment IQ advertised by
// <session/> in stream features (RFC 3921, kept optional per RFC 6121;
// spec.md §4.5 "session_setup?").
func (d *Dialer) startSession(ctx context.Context, conn *xmlconn.Conn) error {
	id := conn.NewID()
	iq := stanza.NewIQ(ns.Client, stanza.Set, id, "", "", stanza.NewNode(ns.Session, "session"))
	if err := conn.SendStanza(ctx, iq); err != nil {
		return newErr(Unknown, err)
	}
	reply, err := recvMatchingIQ(ctx, conn, id)
	if err != nil {
		return err
	}
	if e, ok := reply.Error(); ok {
		switch e.Condition {
		case stanza.ConflictCond:
			return newErr(SessionConflict, errors.New(e.Error()))
		case stanza.Forbidden, stanza.NotAllowed:
			return newErr(SessionDenied, errors.New(e.Error()))
		default:
			return newErr(SessionFailed, errors.New(e.Error()))
		}
	}
	return nil
}

// registrationFields the probe step recognises by name and handles
// specially; anything else discovered in the probe's <query/> is
// resubmitted as an empty field, per wocky-connector.c's xep0077_register
// (spec.md §6 "XEP-0077 registration... the empty-fields probe").
var registrationFields = map[string]bool{
	"username": true, "password": true, "email": true,
	"instructions": true, "registered": true, "x": true,
}

// register drives XEP-0077 in-band registration (spec.md §4.5, §6): probe
// the server for the fields it requires, then submit username, password,
// the optional email (only if the server asked for one), and an empty
// placeholder for any other field the probe listed.
func (d *Dialer) register(ctx context.Context, conn *xmlconn.Conn, origin jid.JID, password string) error {
	probeID := conn.NewID()
	probe := stanza.NewIQ(ns.Client, stanza.Get, probeID, "", "", stanza.NewNode(ns.IQRegister, "query"))
	if err := conn.SendStanza(ctx, probe); err != nil {
		return newErr(Unknown, err)
	}
	probeResult, err := recvMatchingIQ(ctx, conn, probeID)
	if err != nil {
		return err
	}
	if e, ok := probeResult.Error(); ok {
		return registrationErrToCode(e)
	}

	query := probeResult.Node.Child(ns.IQRegister, "query")
	if query == nil {
		return newErr(RegistrationFailed, errors.New("connector: registration probe result missing query element"))
	}
	if query.Child("", "registered") != nil {
		// Already registered under this JID; nothing left to submit.
		return nil
	}

	fields := stanza.NewNode(ns.IQRegister, "query").
		WithChild(stanza.NewNode("", "username").WithText(origin.Localpart())).
		WithChild(stanza.NewNode("", "password").WithText(password))
	if d.Email != "" && query.Child("", "email") != nil {
		fields.WithChild(stanza.NewNode("", "email").WithText(d.Email))
	}
	for _, c := range query.Children {
		if c.Name.Space != "" || registrationFields[c.Name.Local] {
			continue
		}
		fields.WithChild(stanza.NewNode("", c.Name.Local))
	}

	setID := conn.NewID()
	set := stanza.NewIQ(ns.Client, stanza.Set, setID, "", "", fields)
	if err := conn.SendStanza(ctx, set); err != nil {
		return newErr(Unknown, err)
	}
	setResult, err := recvMatchingIQ(ctx, conn, setID)
	if err != nil {
		return err
	}
	if e, ok := setResult.Error(); ok {
		return registrationErrToCode(e)
	}
	return nil
}

// unregister requests XEP-0077 account removal for the already
// authenticated origin.
func (d *Dialer) unregister(ctx context.Context, conn *xmlconn.Conn, origin jid.JID) error {
	id := conn.NewID()
	iq := stanza.NewIQ(ns.Client, stanza.Set, id, "", "",
		stanza.NewNode(ns.IQRegister, "query").WithChild(stanza.NewNode("", "remove")))
	if err := conn.SendStanza(ctx, iq); err != nil {
		return newErr(Unknown, err)
	}
	reply, err := recvMatchingIQ(ctx, conn, id)
	if err != nil {
		return err
	}
	if e, ok := reply.Error(); ok {
		switch e.Condition {
		case stanza.Forbidden, stanza.NotAllowed, stanza.NotAuthorized:
			return newErr(UnregisterDenied, errors.New(e.Error()))
		default:
			return newErr(UnregisterFailed, errors.New(e.Error()))
		}
	}
	return nil
}

func registrationErrToCode(e stanza.Error) error {
	switch e.Condition {
	case stanza.ConflictCond:
		return newErr(RegistrationConflict, errors.New(e.Error()))
	case stanza.NotAcceptable, stanza.BadRequest:
		return newErr(RegistrationEmpty, errors.New(e.Error()))
	case stanza.Forbidden, stanza.NotAllowed:
		return newErr(RegistrationRejected, errors.New(e.Error()))
	case stanza.FeatureNotImplemented, stanza.ServiceUnavailable:
		return newErr(RegistrationUnsupported, errors.New(e.Error()))
	default:
		return newErr(RegistrationFailed, errors.New(e.Error()))
	}
}
