// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package auth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"

	"strata.im/xmpp/internal/ns"
	"strata.im/xmpp/stanza"
	"strata.im/xmpp/xmlconn"
)

// Mechanism names the legacy driver picks between once it has probed the
// server's jabber:iq:auth fields (spec.md §4.4).
const (
	JabberPassword = "JABBER-PASSWORD"
	JabberDigest   = "JABBER-DIGEST"
)

// NewLegacyRegistry returns a Registry holding the two legacy
// jabber:iq:auth sub-mechanisms, preferring the digest form (it never
// sends the password in the clear, unlike JabberPassword).
//
// streamID is the id attribute from the stream header RecvOpen returned;
// it is required to compute the digest form.
func NewLegacyRegistry(username, password, resource, streamID string) *Registry {
	return NewRegistry(
		Mechanism{
			Name:    JabberDigest,
			IsPlain: false,
			InitialResponse: func(ctx context.Context) ([]byte, error) {
				sum := sha1.Sum([]byte(streamID + password))
				return []byte(hex.EncodeToString(sum[:])), nil
			},
		},
		Mechanism{
			Name:    JabberPassword,
			IsPlain: true,
			InitialResponse: func(ctx context.Context) ([]byte, error) {
				return []byte(password), nil
			},
		},
	)
}

// Legacy runs the jabber:iq:auth driver of spec.md §4.4 to completion: it
// probes the server for which fields it accepts, delegates to reg to pick
// between JabberPassword and JabberDigest, and submits the chosen field in
// an IQ set.
func Legacy(ctx context.Context, conn *xmlconn.Conn, reg *Registry, username, resource string) error {
	probeID := conn.NewID()
	probe := stanza.NewIQ(ns.Client, stanza.Get, probeID, "", "",
		stanza.NewNode(ns.IQAuthLegacy, "query").
			WithChild(stanza.NewNode("", "username").WithText(username)))
	if err := conn.SendStanza(ctx, probe); err != nil {
		return &Error{Code: ConnReset, Err: err}
	}

	result, err := recvMatchingIQ(ctx, conn, probeID)
	if err != nil {
		return err
	}
	if errNode, ok := result.Error(); ok {
		return legacyIQErrorToAuthError(errNode)
	}

	query := result.Node.Child(ns.IQAuthLegacy, "query")
	if query == nil {
		return &Error{Code: Failure, Err: errors.New("jabber:iq:auth probe result missing query element")}
	}
	var offered []string
	if query.Child("", "digest") != nil {
		offered = append(offered, JabberDigest)
	}
	if query.Child("", "password") != nil {
		offered = append(offered, JabberPassword)
	}
	if len(offered) == 0 {
		return &Error{Code: Failure, Err: errors.New("server offered neither password nor digest jabber:iq:auth")}
	}

	mech, err := reg.Select(offered, true /* clear channel is this driver's whole point */, false, false)
	if err != nil {
		return err
	}
	field, err := mech.InitialResponse(ctx)
	if err != nil {
		return &Error{Code: Failure, Err: err}
	}

	setID := conn.NewID()
	fieldNode := stanza.NewNode("", "password")
	if mech.Name == JabberDigest {
		fieldNode = stanza.NewNode("", "digest")
	}
	fieldNode.WithText(string(field))

	set := stanza.NewIQ(ns.Client, stanza.Set, setID, "", "",
		stanza.NewNode(ns.IQAuthLegacy, "query").
			WithChild(stanza.NewNode("", "username").WithText(username)).
			WithChild(fieldNode).
			WithChild(stanza.NewNode("", "resource").WithText(resource)))
	if err := conn.SendStanza(ctx, set); err != nil {
		return &Error{Code: ConnReset, Err: err}
	}

	reply, err := recvMatchingIQ(ctx, conn, setID)
	if err != nil {
		return err
	}
	if errNode, ok := reply.Error(); ok {
		return legacyIQErrorToAuthError(errNode)
	}
	return nil
}

// recvMatchingIQ reads stanzas until it finds an IQ result/error whose id
// equals want. The connector owns the connection exclusively during
// bring-up, so no unrelated traffic is expected, but any stream error
// still aborts the driver (spec.md §4.5 "any other stream error aborts
// the connect operation").
func recvMatchingIQ(ctx context.Context, conn *xmlconn.Conn, want string) (stanza.Stanza, error) {
	for {
		s, err := conn.RecvStanza(ctx)
		if err != nil {
			return stanza.Stanza{}, &Error{Code: ConnReset, Err: err}
		}
		if s.Kind == stanza.StreamError {
			return stanza.Stanza{}, &Error{Code: Stream, Err: errors.New(stanza.StreamErrorFromNode(s.Node).Error())}
		}
		if s.Kind == stanza.IQ && s.ID == want {
			return s, nil
		}
	}
}

// legacyIQErrorToAuthError maps a jabber:iq:auth error reply's condition to
// an auth Code (spec.md §4.4).
func legacyIQErrorToAuthError(e stanza.Error) error {
	switch e.Condition {
	case stanza.NotAuthorized:
		return &Error{Code: NotAuthorized, Err: errors.New(e.Error())}
	case stanza.ConflictCond:
		return &Error{Code: ResourceConflict, Err: errors.New(e.Error())}
	case stanza.NotAcceptable, stanza.BadRequest:
		return &Error{Code: NoCredentials, Err: errors.New(e.Error())}
	default:
		return &Error{Code: Failure, Err: errors.New(e.Error())}
	}
}
