// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package xmlconn_test

import (
	"context"
	"net"
	"testing"
	"time"

	"strata.im/xmpp/stanza"
	"strata.im/xmpp/xmlconn"
)

func pipe() (*xmlconn.Conn, *xmlconn.Conn) {
	a, b := net.Pipe()
	return xmlconn.New(a), xmlconn.New(b)
}

func TestSendRecvOpen(t *testing.T) {
	client, server := pipe()
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.SendOpen(ctx, "example.com", "", "1.0", "en", "")
	}()

	h, err := server.RecvOpen(ctx)
	if err != nil {
		t.Fatalf("RecvOpen: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("SendOpen: %v", err)
	}
	if h.To != "example.com" || h.Version != "1.0" {
		t.Errorf("got header %+v", h)
	}
}

func TestSendRecvStanzaRoundTrip(t *testing.T) {
	client, server := pipe()
	ctx := context.Background()

	go client.SendOpen(ctx, "example.com", "", "1.0", "", "")
	if _, err := server.RecvOpen(ctx); err != nil {
		t.Fatalf("RecvOpen: %v", err)
	}
	go server.SendOpen(ctx, "", "example.com", "1.0", "", "stream1")
	if _, err := client.RecvOpen(ctx); err != nil {
		t.Fatalf("RecvOpen: %v", err)
	}

	msg := stanza.NewMessage("", stanza.Chat, "", "juliet@example.com", "romeo@example.com")
	msg.Node.WithChild(stanza.NewNode("", "body").WithText("hello"))

	sendErr := make(chan error, 1)
	go func() { sendErr <- client.SendStanza(ctx, msg) }()

	got, err := server.RecvStanza(ctx)
	if err != nil {
		t.Fatalf("RecvStanza: %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("SendStanza: %v", err)
	}
	if got.Kind != stanza.Message {
		t.Errorf("Kind = %v, want Message", got.Kind)
	}
	if body := got.Node.Child("", "body"); body == nil || body.Text != "hello" {
		t.Errorf("body = %+v", body)
	}
}

func TestSecondConcurrentSendFailsPending(t *testing.T) {
	client, _ := pipe()
	ctx := context.Background()
	go client.SendOpen(ctx, "example.com", "", "1.0", "", "")
	time.Sleep(10 * time.Millisecond)

	msg := stanza.NewMessage("", stanza.Chat, "", "", "")
	blockDone := make(chan struct{})
	go func() {
		_ = client.SendStanza(ctx, msg)
		close(blockDone)
	}()
	time.Sleep(10 * time.Millisecond)
	if err := client.SendStanza(ctx, msg); err != xmlconn.ErrPending {
		t.Errorf("second concurrent send: got %v, want ErrPending", err)
	}
	client.ForceClose()
	<-blockDone
}

func TestForceCloseUnblocksPending(t *testing.T) {
	client, _ := pipe()
	ctx := context.Background()
	go client.SendOpen(ctx, "example.com", "", "1.0", "", "")
	time.Sleep(10 * time.Millisecond)

	if err := client.ForceClose(); err != nil {
		t.Fatalf("ForceClose: %v", err)
	}
	if err := client.SendClose(ctx); err != xmlconn.ErrForciblyClosed {
		t.Errorf("SendClose after ForceClose: got %v, want ErrForciblyClosed", err)
	}
}

func TestNewIDUnique(t *testing.T) {
	c, _ := pipe()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := c.NewID()
		if seen[id] {
			t.Fatalf("NewID produced a duplicate: %s", id)
		}
		seen[id] = true
	}
}
