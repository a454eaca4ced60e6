// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package session_test

import (
	"context"
	"net"
	"testing"
	"time"

	"strata.im/xmpp/jid"
	"strata.im/xmpp/porter"
	"strata.im/xmpp/session"
	"strata.im/xmpp/stanza"
	"strata.im/xmpp/xmlconn"
)

func harness(t *testing.T) (*session.Session, *xmlconn.Conn) {
	t.Helper()
	a, b := net.Pipe()
	clientConn := xmlconn.New(a)
	serverConn := xmlconn.New(b)
	ctx := context.Background()

	go clientConn.SendOpen(ctx, "example.com", "", "1.0", "", "")
	if _, err := serverConn.RecvOpen(ctx); err != nil {
		t.Fatalf("server RecvOpen: %v", err)
	}
	go serverConn.SendOpen(ctx, "", "example.com", "1.0", "", "s1")
	if _, err := clientConn.RecvOpen(ctx); err != nil {
		t.Fatalf("client RecvOpen: %v", err)
	}

	full, err := jid.Parse("juliet@example.com/Balcony")
	if err != nil {
		t.Fatalf("jid.Parse: %v", err)
	}
	s := session.New(clientConn, full)
	return s, serverConn
}

func TestSessionExposesJIDAndPorter(t *testing.T) {
	s, _ := harness(t)
	want, _ := jid.Parse("juliet@example.com/Balcony")
	if !s.JID().Equal(want) {
		t.Errorf("JID() = %v, want %v", s.JID(), want)
	}
	if s.Porter() == nil {
		t.Fatal("Porter() = nil")
	}
}

func TestSessionStartDeliversToRegisteredHandler(t *testing.T) {
	s, server := harness(t)
	s.Start()
	ctx := context.Background()

	got := make(chan stanza.Stanza, 1)
	chat := stanza.Chat
	s.Porter().RegisterHandlerFromAnyone(stanza.Message, &chat, porter.Normal, func(_ *porter.Porter, st stanza.Stanza) porter.Result {
		got <- st
		return porter.Handled
	}, nil)

	msg := stanza.NewMessage("", stanza.Chat, "", "juliet@example.com/Balcony", "romeo@example.com/Orchard")
	if err := server.SendStanza(ctx, msg); err != nil {
		t.Fatalf("SendStanza: %v", err)
	}
	select {
	case st := <-got:
		if st.Kind != stanza.Message {
			t.Errorf("Kind = %v, want Message", st.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never fired")
	}
}

func TestContactFactoryCachesByBareJID(t *testing.T) {
	s, server := harness(t)
	s.Start()
	ctx := context.Background()

	full, _ := jid.Parse("romeo@example.com/Orchard")
	bare, _ := jid.Parse("romeo@example.com")
	c1 := s.ContactFactory().Contact(full)
	c2 := s.ContactFactory().Contact(bare)
	if c1 != c2 {
		t.Error("Contact(full) and Contact(bare) returned different *Contact values")
	}
	if !c1.JID().Equal(bare) {
		t.Errorf("JID() = %v, want %v", c1.JID(), bare)
	}

	if err := c1.SendMessage("wherefore art thou"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	got, err := server.RecvStanza(ctx)
	if err != nil {
		t.Fatalf("RecvStanza: %v", err)
	}
	if got.Kind != stanza.Message || got.SubKind != stanza.Chat {
		t.Fatalf("got = %+v, want a chat message", got)
	}
	if !got.To.Equal(bare) {
		t.Errorf("To = %v, want %v", got.To, bare)
	}
}
