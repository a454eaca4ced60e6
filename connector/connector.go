// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package connector implements the bring-up state machine of spec.md §4.5:
// TCP connect with SRV fallback, legacy-SSL or STARTTLS, SASL or legacy
// authentication, resource bind, session establishment, and XEP-0077
// registration/unregistration.
package connector // import "strata.im/xmpp/connector"

import (
	"context"
	"net"

	"strata.im/xmpp/auth"
	"strata.im/xmpp/internal/ns"
	"strata.im/xmpp/jid"
	"strata.im/xmpp/stanza"
	"strata.im/xmpp/xmlconn"
)

// Result is what a successful Connect/Register returns (spec.md §4.5):
// the live framed connection, now owned by the caller (typically handed
// to a session), the fully bound JID, and the server-assigned stream id.
type Result struct {
	Conn     *xmlconn.Conn
	JID      jid.JID
	StreamID string
}

// OnConnectionEstablished, if set, is called with the raw TCP connection
// immediately after connect and before any XMPP byte flows, so the
// application can tune socket options such as TCP_NODELAY (spec.md §6).
type OnConnectionEstablished func(net.Conn)

// features is the parsed form of one <stream:features/> element.
type features struct {
	startTLS         bool
	startTLSRequired bool
	mechanisms       []string
	canBind          bool
	sessionOffered   bool
	sessionOptional  bool
	legacyAuth       bool
}

func parseFeatures(n *stanza.Node) features {
	var f features
	if tls := n.Child(ns.StartTLS, "starttls"); tls != nil {
		f.startTLS = true
		f.startTLSRequired = tls.Child("", "required") != nil
	}
	if mechs := n.Child(ns.SASL, "mechanisms"); mechs != nil {
		for _, m := range mechs.Children {
			if m.Name.Local == "mechanism" {
				f.mechanisms = append(f.mechanisms, m.Text)
			}
		}
	}
	if n.Child(ns.Bind, "bind") != nil {
		f.canBind = true
	}
	if sess := n.Child(ns.Session, "session"); sess != nil {
		f.sessionOffered = true
		f.sessionOptional = sess.Child("", "optional") != nil
	}
	if n.Child(ns.IQAuth, "auth") != nil {
		f.legacyAuth = true
	}
	return f
}

// attempt is the mutable state threaded through one bring-up pass; it is
// reset in full on every see-other-host redirect (spec.md §4.5).
type attempt struct {
	host      string
	encrypted bool
	authed    bool
	streamID  string
}

// Connect runs the bring-up graph of spec.md §4.5 and returns the bound
// session, authenticating as origin with password. If d.Register is set it
// registers the account instead, as Register does; otherwise, if
// d.Unregister is set, it deletes the account after authenticating.
func (d *Dialer) Connect(ctx context.Context, origin jid.JID, password string) (*Result, error) {
	mode := modeConnect
	switch {
	case d.Register:
		mode = modeRegister
	case d.Unregister:
		mode = modeUnregister
	}
	return d.bringUp(ctx, origin, password, mode)
}

// Register runs bring-up but performs XEP-0077 registration instead of
// authenticating against an existing account.
func (d *Dialer) Register(ctx context.Context, origin jid.JID, password string) (*Result, error) {
	return d.bringUp(ctx, origin, password, modeRegister)
}

// Unregister authenticates as origin and then requests XEP-0077 account
// deletion.
func (d *Dialer) Unregister(ctx context.Context, origin jid.JID, password string) error {
	_, err := d.bringUp(ctx, origin, password, modeUnregister)
	return err
}

type bringUpMode int

const (
	modeConnect bringUpMode = iota
	modeRegister
	modeUnregister
)

func (d *Dialer) bringUp(ctx context.Context, origin jid.JID, password string, mode bringUpMode) (*Result, error) {
	if origin.Domainpart() == "" {
		return nil, newErr(BadJid, nil)
	}

	a := &attempt{host: origin.Domainpart()}
	for redirect := 0; ; redirect++ {
		res, seeOtherHost, err := d.bringUpOnce(ctx, origin, password, mode, a)
		if err == nil {
			return res, nil
		}
		if seeOtherHost == "" {
			return nil, err
		}
		if redirect >= d.seeOtherHostMax() {
			return nil, err
		}
		host, _, splitErr := net.SplitHostPort(seeOtherHost)
		if splitErr != nil {
			host = seeOtherHost
		}
		a = &attempt{host: host}
	}
}

// bringUpOnce performs a single bring-up pass against a.host. If the
// server redirects via see-other-host, it returns the redirect target as
// the second result alongside the error, so the caller can retry with
// reset state (spec.md §4.5).
func (d *Dialer) bringUpOnce(ctx context.Context, origin jid.JID, password string, mode bringUpMode, a *attempt) (*Result, string, error) {
	netConn, err := d.dialHost(ctx, a.host)
	if err != nil {
		return nil, "", newErr(Unknown, err)
	}
	if d.OnConnectionEstablished != nil {
		d.OnConnectionEstablished(netConn)
	}

	conn := xmlconn.New(netConn)
	if d.OldSSL {
		tlsConn, verr := d.handshakeTLS(netConn, origin.Domainpart())
		if verr != nil {
			netConn.Close()
			return nil, "", verr
		}
		conn = xmlconn.New(tlsConn)
		a.encrypted = true
	}

	header, err := d.openStream(ctx, conn, origin.Domainpart())
	if err != nil {
		conn.ForceClose()
		return nil, "", err
	}
	a.streamID = header.ID

	if header.Version == "" {
		if !d.Legacy {
			conn.ForceClose()
			return nil, "", newErr(NonXmppV1Server, nil)
		}
		result, err := d.finishLegacy(ctx, conn, origin, password, mode, a)
		if err != nil {
			conn.ForceClose()
			return nil, "", err
		}
		return result, "", nil
	}

	result, seeOtherHost, err := d.negotiate(ctx, conn, origin, password, mode, a)
	if err != nil {
		conn.ForceClose()
		return nil, seeOtherHost, err
	}
	return result, "", nil
}

// openStream sends the opening header and reads back the peer's, per
// spec.md §4.1/§4.5.
func (d *Dialer) openStream(ctx context.Context, conn *xmlconn.Conn, domain string) (xmlconn.StreamHeader, error) {
	if err := conn.SendOpen(ctx, domain, "", "1.0", "", ""); err != nil {
		return xmlconn.StreamHeader{}, newErr(Unknown, err)
	}
	h, err := conn.RecvOpen(ctx)
	if err != nil {
		return xmlconn.StreamHeader{}, newErr(Unknown, err)
	}
	return h, nil
}

// finishLegacy drives a pre-1.0, featureless server straight to
// jabber:iq:auth (spec.md §4.5 "version<1.0 → [legacy_auth]"). It runs no
// session-establishment step; the bound JID is origin with d.Resource.
func (d *Dialer) finishLegacy(ctx context.Context, conn *xmlconn.Conn, origin jid.JID, password string, mode bringUpMode, a *attempt) (*Result, error) {
	reg := auth.NewLegacyRegistry(origin.Localpart(), password, d.Resource, a.streamID)
	if err := auth.Legacy(ctx, conn, reg, origin.Localpart(), d.Resource); err != nil {
		return nil, newErr(Unknown, err)
	}
	a.authed = true
	if mode == modeUnregister {
		if err := d.unregister(ctx, conn, origin); err != nil {
			return nil, err
		}
	}
	bound, err := origin.WithResource(d.Resource)
	if err != nil {
		return nil, newErr(Unknown, err)
	}
	return &Result{Conn: conn, JID: bound, StreamID: a.streamID}, nil
}

// negotiate drives the post-1.0 half of the graph (spec.md §4.5): reads
// <stream:features/> and branches on STARTTLS, SASL/registration, bind,
// and session.
func (d *Dialer) negotiate(ctx context.Context, conn *xmlconn.Conn, origin jid.JID, password string, mode bringUpMode, a *attempt) (*Result, string, error) {
	s, err := conn.RecvStanza(ctx)
	if err != nil {
		return nil, "", newErr(Unknown, err)
	}
	if s.Kind == stanza.StreamError {
		return nil, seeOtherHostOf(s), newErr(Unknown, streamErrErr(s))
	}
	if s.Kind != stanza.StreamFeatures {
		return nil, "", newErr(BadFeatures, nil)
	}
	f := parseFeatures(s.Node)

	if !a.encrypted && f.startTLS && !d.OldSSL {
		if err := d.startTLS(ctx, conn, origin.Domainpart()); err != nil {
			return nil, "", err
		}
		a.encrypted = true
		header, err := d.openStream(ctx, conn, origin.Domainpart())
		if err != nil {
			return nil, "", err
		}
		a.streamID = header.ID
		return d.negotiate(ctx, conn, origin, password, mode, a)
	}
	if !a.encrypted && d.TLSRequired {
		return nil, "", newErr(TlsUnavailable, nil)
	}

	if !a.encrypted && !d.AuthInsecureOK && (mode == modeRegister || mode == modeUnregister) {
		return nil, "", newErr(Insecure, nil)
	}

	switch mode {
	case modeRegister:
		if err := d.register(ctx, conn, origin, password); err != nil {
			return nil, "", err
		}
		a.authed = true
	default:
		if !a.authed {
			if err := d.authenticate(ctx, conn, origin, password, f, a); err != nil {
				return nil, "", err
			}
			a.authed = true
			// authenticate reset the stream onto a fresh SASL layer, so
			// the bind/session features it advertises supersede the
			// pre-auth set read above.
			s2, err := conn.RecvStanza(ctx)
			if err != nil {
				return nil, "", newErr(Unknown, err)
			}
			if s2.Kind == stanza.StreamError {
				return nil, seeOtherHostOf(s2), newErr(Unknown, streamErrErr(s2))
			}
			if s2.Kind != stanza.StreamFeatures {
				return nil, "", newErr(BadFeatures, nil)
			}
			f = parseFeatures(s2.Node)
		}
		if mode == modeUnregister {
			if err := d.unregister(ctx, conn, origin); err != nil {
				return nil, "", err
			}
			return &Result{Conn: conn, JID: origin, StreamID: a.streamID}, "", nil
		}
	}

	bound, err := d.bindResource(ctx, conn, origin)
	if err != nil {
		return nil, "", err
	}
	if f.sessionOffered && !f.sessionOptional {
		if err := d.startSession(ctx, conn); err != nil {
			return nil, "", err
		}
	}
	return &Result{Conn: conn, JID: bound, StreamID: a.streamID}, "", nil
}

func (d *Dialer) authenticate(ctx context.Context, conn *xmlconn.Conn, origin jid.JID, password string, f features, a *attempt) error {
	if len(f.mechanisms) == 0 {
		if f.legacyAuth && d.Legacy {
			return d.legacyAuthOnOpenStream(ctx, conn, origin, password, a)
		}
		return newErr(BadFeatures, nil)
	}
	reg := d.Mechanisms
	if reg == nil {
		reg = auth.NewRegistry()
	}
	err := auth.Negotiate(ctx, conn, reg, f.mechanisms, d.PlaintextAuthAllowed, a.encrypted, d.EncryptedPlainAuthOK)
	if err != nil {
		if isAuthCode(err, auth.NotSupported) && f.legacyAuth && d.Legacy {
			return d.legacyAuthOnOpenStream(ctx, conn, origin, password, a)
		}
		return newErr(Unknown, err)
	}
	conn.Reset(nil)
	header, serr := d.openStream(ctx, conn, origin.Domainpart())
	if serr != nil {
		return serr
	}
	a.streamID = header.ID
	return nil
}

// legacyAuthOnOpenStream runs jabber:iq:auth over the already-open stream
// (the fallback path when SASL offered no usable mechanism, spec.md §8
// "if legacy auth is also advertised and enabled, legacy path runs
// instead").
func (d *Dialer) legacyAuthOnOpenStream(ctx context.Context, conn *xmlconn.Conn, origin jid.JID, password string, a *attempt) error {
	reg := auth.NewLegacyRegistry(origin.Localpart(), password, d.Resource, a.streamID)
	if err := auth.Legacy(ctx, conn, reg, origin.Localpart(), d.Resource); err != nil {
		return newErr(Unknown, err)
	}
	return nil
}

func isAuthCode(err error, code auth.Code) bool {
	ae, ok := err.(*auth.Error)
	return ok && ae.Code == code
}

func seeOtherHostOf(s stanza.Stanza) string {
	se := stanza.StreamErrorFromNode(s.Node)
	if se.HasSeeOtherHost {
		return se.SeeOtherHost
	}
	return ""
}

func streamErrErr(s stanza.Stanza) error {
	return stanza.StreamErrorFromNode(s.Node)
}
