// Copyright 2017 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func selfSigned(t *testing.T, cn string, dnsNames []string, notBefore, notAfter time.Time) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     dnsNames,
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert
}

func TestMatchesHostnameWildcard(t *testing.T) {
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"example.com", "example.com", true},
		{"example.com", "other.com", false},
		{"*.example.com", "muc.example.com", true},
		{"*.example.com", "example.com", false},
		{"*.example.com", "a.b.example.com", false},
		{"a.*.example.com", "a.b.example.com", false}, // wildcard not in leading label
		{"*.*.example.com", "a.b.example.com", false}, // more than one wildcard
	}
	for _, tt := range tests {
		if got := matchesHostname(tt.pattern, tt.name); got != tt.want {
			t.Errorf("matchesHostname(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestVerifyNameMismatch(t *testing.T) {
	now := time.Now()
	cert := selfSigned(t, "example.com", []string{"example.com"}, now.Add(-time.Hour), now.Add(time.Hour))
	roots := x509.NewCertPool()
	roots.AddCert(cert)

	err := Verify([]*x509.Certificate{cert}, "evil.example.com", nil, Strict, roots)
	cerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("Verify: got %T(%v), want *Error", err, err)
	}
	if cerr.Status != NameMismatch {
		t.Errorf("Status = %v, want NameMismatch", cerr.Status)
	}
}

func TestVerifyExpiredNeverDowngraded(t *testing.T) {
	now := time.Now()
	cert := selfSigned(t, "example.com", []string{"example.com"}, now.Add(-2*time.Hour), now.Add(-time.Hour))
	roots := x509.NewCertPool()
	roots.AddCert(cert)

	for _, level := range []Level{Strict, Normal, Lenient} {
		err := Verify([]*x509.Certificate{cert}, "example.com", nil, level, roots)
		cerr, ok := err.(*Error)
		if !ok {
			t.Fatalf("level %v: got %T(%v), want *Error", level, err, err)
		}
		if cerr.Status != Expired {
			t.Errorf("level %v: Status = %v, want Expired", level, cerr.Status)
		}
	}
}

func TestVerifyUnknownAuthorityDowngradedOnlyAtLenient(t *testing.T) {
	now := time.Now()
	cert := selfSigned(t, "example.com", []string{"example.com"}, now.Add(-time.Hour), now.Add(time.Hour))
	// Empty pool: the self-signed cert's issuer is never trusted.
	roots := x509.NewCertPool()

	if err := Verify([]*x509.Certificate{cert}, "example.com", nil, Strict, roots); err == nil {
		t.Fatalf("Strict: Verify succeeded, want SignerUnknown error")
	} else if cerr := err.(*Error); cerr.Status != SignerUnknown {
		t.Errorf("Strict: Status = %v, want SignerUnknown", cerr.Status)
	}

	if err := Verify([]*x509.Certificate{cert}, "example.com", nil, Lenient, roots); err != nil {
		t.Errorf("Lenient: Verify = %v, want nil (unknown signer accepted)", err)
	}
}

func TestVerifyExtraIdentities(t *testing.T) {
	now := time.Now()
	cert := selfSigned(t, "example.com", []string{"example.com"}, now.Add(-time.Hour), now.Add(time.Hour))
	roots := x509.NewCertPool()
	roots.AddCert(cert)

	if err := Verify([]*x509.Certificate{cert}, "muc.example.com", []string{"muc.example.com"}, Strict, roots); err != nil {
		t.Errorf("Verify with extra identity = %v, want nil", err)
	}
}
