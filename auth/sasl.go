// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package auth

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"

	"mellium.im/sasl"

	"strata.im/xmpp/internal/ns"
	"strata.im/xmpp/stanza"
	"strata.im/xmpp/xmlconn"
)

// MellumMechanism wraps one of mellium.im/sasl's client mechanisms
// (sasl.Plain, sasl.ScramSha1, sasl.ScramSha256, and their channel-bound
// "Plus" variants) as a Mechanism, driving it through a single
// sasl.Negotiator for the lifetime of the exchange (spec.md §4.3).
//
// identity is passed as the SASL authzid; it is usually left empty so the
// negotiator authenticates as username itself. connState, if non-nil,
// supplies the channel-binding data the "Plus" mechanisms require.
func MellumMechanism(m sasl.Mechanism, identity, username, password string, connState *tls.ConnectionState) Mechanism {
	opts := []sasl.Option{
		sasl.Authz(identity),
		sasl.Credentials(username, password),
	}
	if connState != nil {
		opts = append(opts, sasl.ConnState(*connState))
	}
	negotiator := sasl.NewClient(m, opts...)

	return Mechanism{
		Name:    m.Name,
		IsPlain: m.Name == "PLAIN",
		InitialResponse: func(ctx context.Context) ([]byte, error) {
			_, resp, err := negotiator.Step(nil)
			return resp, err
		},
		ResponseToChallenge: func(ctx context.Context, challenge []byte) ([]byte, error) {
			_, resp, err := negotiator.Step(challenge)
			return resp, err
		},
	}
}

// encodeInitial base64-encodes an initial response for transmission,
// following RFC 6120 §6.4.2: a zero-length initial response is sent as a
// single "=" rather than an empty element.
func encodeInitial(resp []byte) string {
	if len(resp) == 0 {
		return "="
	}
	return base64.StdEncoding.EncodeToString(resp)
}

func decodeBody(n *stanza.Node) ([]byte, error) {
	if n.Text == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(n.Text)
}

// Negotiate drives the SASL pump of spec.md §4.3 to completion: it selects
// a mechanism from reg given the peer-offered list and channel policy,
// sends the initial <auth/>, and handles challenge/response until success
// or failure. On success the caller must call conn.Reset and reopen the
// stream (spec.md §4.3); Negotiate itself only returns once <success/> (or
// a failure) has been seen, leaving the reset to the connector so that it
// can choose the right new transport.
func Negotiate(ctx context.Context, conn *xmlconn.Conn, reg *Registry, offered []string, clearChannelAllowed, encrypted, encryptedPlainOK bool) error {
	mech, err := reg.Select(offered, clearChannelAllowed, encrypted, encryptedPlainOK)
	if err != nil {
		return err
	}

	initial, err := mech.InitialResponse(ctx)
	if err != nil {
		return &Error{Code: Failure, Err: err}
	}
	auth := stanza.FromNode(stanza.NewNode(ns.SASL, "auth").
		WithAttr("mechanism", mech.Name).
		WithText(encodeInitial(initial)))
	if err := conn.SendStanza(ctx, auth); err != nil {
		return &Error{Code: ConnReset, Err: err}
	}

	for {
		s, err := conn.RecvStanza(ctx)
		if err != nil {
			return &Error{Code: ConnReset, Err: err}
		}
		switch s.Kind {
		case stanza.Challenge:
			data, err := decodeBody(s.Node)
			if err != nil {
				return &Error{Code: InvalidReply, Err: err}
			}
			resp, err := mech.ResponseToChallenge(ctx, data)
			if err != nil {
				return &Error{Code: Failure, Err: err}
			}
			reply := stanza.FromNode(stanza.NewNode(ns.SASL, "response").WithText(encodeInitial(resp)))
			if err := conn.SendStanza(ctx, reply); err != nil {
				return &Error{Code: ConnReset, Err: err}
			}
		case stanza.Success:
			data, err := decodeBody(s.Node)
			if err != nil {
				return &Error{Code: InvalidReply, Err: err}
			}
			if len(data) > 0 {
				if mech.SuccessFinalCheck == nil {
					return &Error{Code: InvalidReply, Err: errors.New("success carried data but mechanism has no final check")}
				}
				if err := mech.SuccessFinalCheck(ctx, data); err != nil {
					return &Error{Code: Failure, Err: err}
				}
			}
			return nil
		case stanza.Failure:
			return classifyFailure(s.Node)
		case stanza.StreamError:
			return &Error{Code: Stream, Err: fmt.Errorf("%s", stanza.StreamErrorFromNode(s.Node).Error())}
		default:
			return &Error{Code: InvalidReply, Err: fmt.Errorf("unexpected element %v during SASL negotiation", s.Node.Name)}
		}
	}
}

// failureConditions maps a <failure/> child element name to an auth Code
// (spec.md §4.3). Conditions not listed here map to the generic Failure.
var failureConditions = map[string]Code{
	"not-authorized":  NotAuthorized,
	"temporary-auth-failure": Failure,
	"invalid-mechanism": NotSupported,
	"mechanism-too-weak": NotSupported,
}

func classifyFailure(n *stanza.Node) error {
	if len(n.Children) == 0 {
		return &Error{Code: Failure, Err: errors.New("SASL failure with no condition")}
	}
	cond := n.Children[0].Name.Local
	code, ok := failureConditions[cond]
	if !ok {
		code = Failure
	}
	return &Error{Code: code, Err: fmt.Errorf("SASL failure: %s", cond)}
}
