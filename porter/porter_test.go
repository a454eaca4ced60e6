// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package porter_test

import (
	"context"
	"net"
	"testing"
	"time"

	"strata.im/xmpp/jid"
	"strata.im/xmpp/porter"
	"strata.im/xmpp/stanza"
	"strata.im/xmpp/xmlconn"
)

// harness wires a client Porter to a raw server-side Conn over an in-memory
// pipe, with both stream headers already exchanged, mirroring spec.md §8's
// end-to-end scenarios.
func harness(t *testing.T) (*porter.Porter, *xmlconn.Conn, jid.JID) {
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

	local, err := jid.Parse("juliet@example.com/Balcony")
	if err != nil {
		t.Fatalf("jid.Parse: %v", err)
	}
	p := porter.New(clientConn, local)
	p.Start()
	return p, serverConn, local
}

// Scenario C — IQ correlation (spec.md §8).
func TestSendIQAsyncCorrelatesReply(t *testing.T) {
	p, server, _ := harness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := stanza.NewIQ("", stanza.Get, "x1", "room@conference.example.com", "", stanza.NewNode("", "query"))
	req.ID = "x1"

	replyErr := make(chan error, 1)
	var gotIQ stanza.Stanza
	go func() {
		var err error
		gotIQ, err = p.SendIQAsync(ctx, req)
		replyErr <- err
	}()

	got, err := server.RecvStanza(ctx)
	if err != nil {
		t.Fatalf("server RecvStanza: %v", err)
	}
	if got.Kind != stanza.IQ || got.ID == "" {
		t.Fatalf("unexpected request stanza: %+v", got)
	}

	reply := stanza.NewIQ("", stanza.Result, got.ID, "", "room@conference.example.com/occupant", stanza.NewNode("", "query"))
	if err := server.SendStanza(ctx, reply); err != nil {
		t.Fatalf("server SendStanza: %v", err)
	}

	if err := <-replyErr; err != nil {
		t.Fatalf("SendIQAsync: %v", err)
	}
	if gotIQ.Kind != stanza.IQ || gotIQ.SubKind != stanza.Result {
		t.Errorf("reply = %+v", gotIQ)
	}
}

// Scenario E — priority dispatch (spec.md §8): a higher/earlier handler
// that declines lets a lower-priority-but-still-matching handler claim the
// stanza; a non-matching pattern never invokes the callback at all.
func TestPriorityDispatch(t *testing.T) {
	p, server, _ := harness(t)
	ctx := context.Background()

	var hiCalls, loCalls int
	// Patterns are full stanza templates matched root-to-root (spec.md
	// §4.6, wocky_stanza_build_va's convention), so each one must be
	// rooted at "message" with the filtered-for "body" child nested under
	// it, not a bare child fragment.
	declinePattern := stanza.NewNode("", "message").WithChild(stanza.NewNode("", "body").WithText("please sign out"))
	anyPattern := stanza.NewNode("", "message").WithChild(stanza.NewNode("", "body"))

	chat := stanza.Chat
	p.RegisterHandlerFromAnyone(stanza.Message, &chat, porter.Normal, func(pp *porter.Porter, s stanza.Stanza) porter.Result {
		hiCalls++
		return porter.Declined
	}, declinePattern)
	p.RegisterHandlerFromAnyone(stanza.Message, &chat, porter.Normal, func(pp *porter.Porter, s stanza.Stanza) porter.Result {
		loCalls++
		return porter.Handled
	}, anyPattern)

	msg := stanza.NewMessage("", stanza.Chat, "", "juliet@example.com/Balcony", "romeo@example.com/Orchard")
	msg.Node.WithChild(stanza.NewNode("", "body").WithText("please sign out"))
	if err := server.SendStanza(ctx, msg); err != nil {
		t.Fatalf("SendStanza: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if hiCalls != 1 || loCalls != 1 {
		t.Fatalf("hiCalls=%d loCalls=%d, want 1,1", hiCalls, loCalls)
	}

	msg2 := stanza.NewMessage("", stanza.Chat, "", "juliet@example.com/Balcony", "romeo@example.com/Orchard")
	msg2.Node.WithChild(stanza.NewNode("", "body").WithText("hello"))
	if err := server.SendStanza(ctx, msg2); err != nil {
		t.Fatalf("SendStanza: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if hiCalls != 1 || loCalls != 2 {
		t.Fatalf("hiCalls=%d loCalls=%d, want 1,2", hiCalls, loCalls)
	}
}

// Scenario F — force close (spec.md §8): Close blocks on a server that
// never replies; ForceClose unblocks it with ErrForciblyClosed and also
// fails any pending SendIQAsync.
func TestForceCloseUnblocksCloseAndPendingIQ(t *testing.T) {
	p, _, _ := harness(t)
	ctx := context.Background()

	iqErrCh := make(chan error, 1)
	go func() {
		_, err := p.SendIQAsync(ctx, stanza.NewIQ("", stanza.Get, "", "example.com", "", stanza.NewNode("", "ping")))
		iqErrCh <- err
	}()

	closeErrCh := make(chan error, 1)
	go func() {
		closeErrCh <- p.Close(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := p.ForceClose(); err != nil {
		t.Fatalf("ForceClose: %v", err)
	}

	select {
	case err := <-closeErrCh:
		if err != porter.ErrForciblyClosed {
			t.Errorf("Close error = %v, want ErrForciblyClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock")
	}

	select {
	case err := <-iqErrCh:
		if err != porter.ErrForciblyClosed {
			t.Errorf("SendIQAsync error = %v, want ErrForciblyClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendIQAsync did not unblock")
	}

	if err := p.ForceClose(); err != nil {
		t.Errorf("second ForceClose: %v", err)
	}
}

// Unclaimed IQ get/set gets a synthesised service-unavailable reply.
func TestUnhandledIQGetsServiceUnavailable(t *testing.T) {
	p, server, _ := harness(t)
	ctx := context.Background()
	_ = p

	iq := stanza.NewIQ("", stanza.Get, "q1", "juliet@example.com/Balcony", "romeo@example.com/Orchard", stanza.NewNode("urn:xmpp:ping", "ping"))
	if err := server.SendStanza(ctx, iq); err != nil {
		t.Fatalf("SendStanza: %v", err)
	}

	reply, err := server.RecvStanza(ctx)
	if err != nil {
		t.Fatalf("RecvStanza: %v", err)
	}
	if reply.Kind != stanza.IQ || reply.SubKind != stanza.ErrorT {
		t.Fatalf("reply = %+v, want an iq error", reply)
	}
	se, ok := reply.Error()
	if !ok || se.Condition != stanza.ServiceUnavailable {
		t.Errorf("error = %+v, want service-unavailable", se)
	}
}

// ServerOnly from-filter matches only the bare domain or an absent from.
func TestServerOnlyFilter(t *testing.T) {
	p, server, _ := harness(t)
	ctx := context.Background()

	matched := make(chan stanza.Stanza, 2)
	p.RegisterHandlerFrom(stanza.IQ, nil, porter.ServerOnly(), porter.Normal, func(pp *porter.Porter, s stanza.Stanza) porter.Result {
		matched <- s
		return porter.Handled
	}, nil)

	fromServer := stanza.NewIQ("", stanza.Set, "s1", "juliet@example.com/Balcony", "example.com", stanza.NewNode("", "x"))
	if err := server.SendStanza(ctx, fromServer); err != nil {
		t.Fatalf("SendStanza: %v", err)
	}
	select {
	case <-matched:
	case <-time.After(time.Second):
		t.Fatal("ServerOnly handler did not fire for server-origin stanza")
	}

	fromOther := stanza.NewIQ("", stanza.Set, "s2", "juliet@example.com/Balcony", "mallory@evil.example/Res", stanza.NewNode("", "x"))
	if err := server.SendStanza(ctx, fromOther); err != nil {
		t.Fatalf("SendStanza: %v", err)
	}
	reply, err := server.RecvStanza(ctx)
	if err != nil {
		t.Fatalf("RecvStanza: %v", err)
	}
	if reply.SubKind != stanza.ErrorT {
		t.Errorf("expected fallback error reply for non-server from, got %+v", reply)
	}
}
