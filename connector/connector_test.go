// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package connector_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"strata.im/xmpp/auth"
	"strata.im/xmpp/connector"
	"strata.im/xmpp/internal/ns"
	"strata.im/xmpp/jid"
	"strata.im/xmpp/stanza"
	"strata.im/xmpp/xmlconn"
)

// listen starts a one-shot TCP server on localhost and returns the
// dialable host/port plus the accepted *xmlconn.Conn once a client
// connects, handing full control of the exchange to fn.
func listen(t *testing.T, fn func(conn *xmlconn.Conn)) (host, port string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	go func() {
		defer ln.Close()
		c, err := ln.Accept()
		if err != nil {
			return
		}
		fn(xmlconn.New(c))
	}()
	host, port, err = net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	return host, port
}

// TestConnectSASLBindRoundTrip exercises the full post-1.0 bring-up graph
// against a server that offers X-TEST SASL, then a minimal bind-only
// feature set on the post-auth stream (spec.md §4.5 "can_bind →
// bind_resource → session_setup?", with no <session/> offered).
func TestConnectSASLBindRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host, port := listen(t, func(conn *xmlconn.Conn) {
		if _, err := conn.RecvOpen(ctx); err != nil {
			t.Errorf("server RecvOpen(1): %v", err)
			return
		}
		if err := conn.SendOpen(ctx, "", "example.com", "1.0", "", "stream-1"); err != nil {
			t.Errorf("server SendOpen(1): %v", err)
			return
		}
		features := stanza.FromNode(stanza.NewNode(ns.Stream, "features").
			WithChild(stanza.NewNode(ns.SASL, "mechanisms").
				WithChild(stanza.NewNode(ns.SASL, "mechanism").WithText("X-TEST"))))
		if err := conn.SendStanza(ctx, features); err != nil {
			t.Errorf("server SendStanza(features): %v", err)
			return
		}

		authReq, err := conn.RecvStanza(ctx)
		if err != nil {
			t.Errorf("server RecvStanza(auth): %v", err)
			return
		}
		if authReq.Kind != stanza.Auth {
			t.Errorf("Kind = %v, want Auth", authReq.Kind)
			return
		}
		success := stanza.FromNode(stanza.NewNode(ns.SASL, "success"))
		if err := conn.SendStanza(ctx, success); err != nil {
			t.Errorf("server SendStanza(success): %v", err)
			return
		}

		conn.Reset(nil)
		if _, err := conn.RecvOpen(ctx); err != nil {
			t.Errorf("server RecvOpen(2): %v", err)
			return
		}
		if err := conn.SendOpen(ctx, "", "example.com", "1.0", "", "stream-2"); err != nil {
			t.Errorf("server SendOpen(2): %v", err)
			return
		}
		bindOnly := stanza.FromNode(stanza.NewNode(ns.Stream, "features").
			WithChild(stanza.NewNode(ns.Bind, "bind")))
		if err := conn.SendStanza(ctx, bindOnly); err != nil {
			t.Errorf("server SendStanza(bind-only features): %v", err)
			return
		}

		bindReq, err := conn.RecvStanza(ctx)
		if err != nil {
			t.Errorf("server RecvStanza(bind): %v", err)
			return
		}
		if bindReq.Kind != stanza.IQ || bindReq.SubKind != stanza.Set {
			t.Errorf("bind request = %+v, want IQ set", bindReq)
			return
		}
		result := bindReq.Reply(true,
			stanza.NewNode(ns.Bind, "bind").
				WithChild(stanza.NewNode("", "jid").WithText("juliet@example.com/Balcony")))
		if err := conn.SendStanza(ctx, result); err != nil {
			t.Errorf("server SendStanza(bind result): %v", err)
			return
		}
	})

	portN, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("Atoi(port): %v", err)
	}
	d := &connector.Dialer{
		Server:               host,
		Port:                 strconv.Itoa(portN),
		PlaintextAuthAllowed: true,
		Mechanisms:           auth.NewRegistry(auth.TestMechanism("juliet")),
	}
	origin, err := jid.Parse("juliet@example.com")
	if err != nil {
		t.Fatalf("jid.Parse: %v", err)
	}

	var establishedConn net.Conn
	d.OnConnectionEstablished = func(c net.Conn) { establishedConn = c }

	res, err := d.Connect(ctx, origin, "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if res.StreamID != "stream-2" {
		t.Errorf("StreamID = %q, want stream-2", res.StreamID)
	}
	want, _ := jid.Parse("juliet@example.com/Balcony")
	if !res.JID.Equal(want) {
		t.Errorf("JID = %v, want %v", res.JID, want)
	}
	if establishedConn == nil {
		t.Error("OnConnectionEstablished was never called")
	}
}

// TestConnectBadJidRejectedBeforeDialing asserts bring-up never attempts
// to connect when the origin carries no domain (spec.md §4.5 BadJid).
func TestConnectBadJidRejectedBeforeDialing(t *testing.T) {
	d := &connector.Dialer{}
	_, err := d.Connect(context.Background(), jid.JID{}, "secret")
	cerr, ok := err.(*connector.Error)
	if !ok {
		t.Fatalf("Connect: got %T(%v), want *connector.Error", err, err)
	}
	if cerr.Code != connector.BadJid {
		t.Errorf("Code = %v, want BadJid", cerr.Code)
	}
}
