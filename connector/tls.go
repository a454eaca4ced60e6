// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package connector

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	"strata.im/xmpp/internal/ns"
	"strata.im/xmpp/stanza"
	"strata.im/xmpp/tlscert"
	"strata.im/xmpp/xmlconn"
)

// startTLS drives the STARTTLS branch of spec.md §4.5: announce
// <starttls/>, wait for <proceed/>, then hand the raw connection off to
// handshakeTLS and reset conn onto the encrypted channel (spec.md §4.1
// Reset, used here exactly as after SASL success but with a replacement
// byte stream rather than the same one).
func (d *Dialer) startTLS(ctx context.Context, conn *xmlconn.Conn, domain string) error {
	req := stanza.FromNode(stanza.NewNode(ns.StartTLS, "starttls"))
	if err := conn.SendStanza(ctx, req); err != nil {
		return newErr(Unknown, err)
	}

	s, err := conn.RecvStanza(ctx)
	if err != nil {
		return newErr(Unknown, err)
	}
	switch s.Kind {
	case stanza.Proceed:
	case stanza.Failure:
		return newErr(TlsRefused, nil)
	case stanza.StreamError:
		return newErr(Unknown, streamErrErr(s))
	default:
		return newErr(BadFeatures, errors.New("connector: unexpected reply to starttls"))
	}

	netConn, ok := conn.Underlying().(net.Conn)
	if !ok {
		return newErr(TlsUnavailable, errors.New("connector: underlying connection does not support TLS"))
	}
	tlsConn, verr := d.handshakeTLS(netConn, domain)
	if verr != nil {
		return verr
	}
	conn.Reset(tlsConn)
	return nil
}

// handshakeTLS performs the client handshake and applies the tlscert
// verification policy (spec.md §4.2): used both for legacy SSL-on-connect
// and for the post-STARTTLS upgrade.
func (d *Dialer) handshakeTLS(netConn net.Conn, domain string) (net.Conn, error) {
	cfg := d.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = domain
	}
	// Certificate verification is done ourselves via tlscert.Verify so
	// that the Lenient/Normal/Strict policy applies instead of the
	// standard library's all-or-nothing check.
	cfg.InsecureSkipVerify = true

	tlsConn := tls.Client(netConn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, newErr(TlsSessionFailed, err)
	}

	state := tlsConn.ConnectionState()
	if err := tlscert.Verify(state.PeerCertificates, cfg.ServerName, d.ExtraIdentities, d.VerifyLevel, cfg.RootCAs); err != nil {
		tlsConn.Close()
		return nil, newErr(TlsSessionFailed, err)
	}
	return tlsConn, nil
}
