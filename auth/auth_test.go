// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package auth_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"testing"

	"strata.im/xmpp/auth"
	"strata.im/xmpp/internal/ns"
	"strata.im/xmpp/stanza"
	"strata.im/xmpp/xmlconn"
)

func pipe() (*xmlconn.Conn, *xmlconn.Conn) {
	a, b := net.Pipe()
	return xmlconn.New(a), xmlconn.New(b)
}

func TestRegistrySelectPrefersRegistryOrder(t *testing.T) {
	reg := auth.NewRegistry(
		auth.Mechanism{Name: "SCRAM-SHA-256"},
		auth.Mechanism{Name: "PLAIN", IsPlain: true},
	)
	m, err := reg.Select([]string{"PLAIN", "SCRAM-SHA-256"}, false, false, false)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if m.Name != "SCRAM-SHA-256" {
		t.Errorf("Select = %q, want SCRAM-SHA-256 (registry order wins)", m.Name)
	}
}

func TestRegistrySelectDropsPlainWithoutClearChannel(t *testing.T) {
	reg := auth.NewRegistry(auth.Mechanism{Name: "PLAIN", IsPlain: true})
	_, err := reg.Select([]string{"PLAIN"}, false, false, false)
	if !errors.Is(err, auth.ErrNotSupported) {
		t.Fatalf("Select = %v, want ErrNotSupported", err)
	}
}

func TestRegistrySelectAllowsPlainOverEncryptedWhenOK(t *testing.T) {
	reg := auth.NewRegistry(auth.Mechanism{Name: "PLAIN", IsPlain: true})
	m, err := reg.Select([]string{"PLAIN"}, false, true, true)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if m.Name != "PLAIN" {
		t.Errorf("Select = %q, want PLAIN", m.Name)
	}
}

func TestRegistrySelectNoMechanisms(t *testing.T) {
	reg := auth.NewRegistry(auth.Mechanism{Name: "SCRAM-SHA-256"})
	_, err := reg.Select([]string{"PLAIN"}, true, false, false)
	if !errors.Is(err, auth.ErrNoMechanisms) {
		t.Fatalf("Select = %v, want ErrNoMechanisms", err)
	}
}

func TestNegotiateTestMechanismSuccess(t *testing.T) {
	client, server := pipe()
	ctx := context.Background()
	reg := auth.NewRegistry(auth.TestMechanism("juliet"))

	done := make(chan error, 1)
	go func() {
		done <- auth.Negotiate(ctx, client, reg, []string{"X-TEST"}, true, false, false)
	}()

	s, err := server.RecvStanza(ctx)
	if err != nil {
		t.Fatalf("RecvStanza(auth): %v", err)
	}
	if s.Kind != stanza.Auth {
		t.Fatalf("Kind = %v, want Auth", s.Kind)
	}
	mech, _ := s.Node.GetAttr("mechanism")
	if mech != "X-TEST" {
		t.Errorf("mechanism = %q, want X-TEST", mech)
	}
	got, _ := base64.StdEncoding.DecodeString(s.Node.Text)
	if string(got) != "juliet" {
		t.Errorf("initial response = %q, want juliet", got)
	}

	success := stanza.FromNode(stanza.NewNode(ns.SASL, "success"))
	if err := server.SendStanza(ctx, success); err != nil {
		t.Fatalf("SendStanza(success): %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
}

func TestNegotiateFailureMapsNotAuthorized(t *testing.T) {
	client, server := pipe()
	ctx := context.Background()
	reg := auth.NewRegistry(auth.TestMechanism("juliet"))

	done := make(chan error, 1)
	go func() {
		done <- auth.Negotiate(ctx, client, reg, []string{"X-TEST"}, true, false, false)
	}()

	if _, err := server.RecvStanza(ctx); err != nil {
		t.Fatalf("RecvStanza(auth): %v", err)
	}
	failure := stanza.FromNode(stanza.NewNode(ns.SASL, "failure").
		WithChild(stanza.NewNode(ns.SASL, "not-authorized")))
	if err := server.SendStanza(ctx, failure); err != nil {
		t.Fatalf("SendStanza(failure): %v", err)
	}

	err := <-done
	if !errors.Is(err, auth.ErrNotAuthorized) {
		t.Fatalf("Negotiate = %v, want ErrNotAuthorized", err)
	}
}

func TestLegacyDigestRoundTrip(t *testing.T) {
	client, server := pipe()
	ctx := context.Background()
	reg := auth.NewLegacyRegistry("juliet", "s3cr3t", "balcony", "stream-1")

	done := make(chan error, 1)
	go func() {
		done <- auth.Legacy(ctx, client, reg, "juliet", "balcony")
	}()

	probe, err := server.RecvStanza(ctx)
	if err != nil {
		t.Fatalf("RecvStanza(probe): %v", err)
	}
	if probe.Kind != stanza.IQ || probe.SubKind != stanza.Get {
		t.Fatalf("probe = %+v, want IQ get", probe)
	}

	result := probe.Reply(true,
		stanza.NewNode(ns.IQAuthLegacy, "query").
			WithChild(stanza.NewNode("", "username")).
			WithChild(stanza.NewNode("", "digest")).
			WithChild(stanza.NewNode("", "resource")))
	if err := server.SendStanza(ctx, result); err != nil {
		t.Fatalf("SendStanza(probe result): %v", err)
	}

	set, err := server.RecvStanza(ctx)
	if err != nil {
		t.Fatalf("RecvStanza(set): %v", err)
	}
	if set.Kind != stanza.IQ || set.SubKind != stanza.Set {
		t.Fatalf("set = %+v, want IQ set", set)
	}
	query := set.Node.Child(ns.IQAuthLegacy, "query")
	if query == nil || query.Child("", "digest") == nil {
		t.Fatalf("set query = %+v, want digest field", query)
	}

	if err := server.SendStanza(ctx, set.Reply(true)); err != nil {
		t.Fatalf("SendStanza(set result): %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Legacy: %v", err)
	}
}
