// Copyright 2017 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package tlscert

import (
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Level selects how strictly a certificate chain is checked (spec.md §4.2).
type Level int

const (
	// Strict rejects any chain defect.
	Strict Level = iota
	// Normal rejects expiry, revocation, and name mismatch. It accepts no
	// other chain defect either, so it behaves exactly as Strict.
	Normal
	// Lenient additionally accepts unknown-signer and "invalid" errors,
	// but never downgrades internal errors, known revocation, or
	// anomalies that look like denial-of-service.
	Lenient
)

// Status is one outcome of certificate verification (spec.md §4.2).
type Status int

// The verification outcomes spec.md §4.2 maps onto the core error
// taxonomy.
const (
	OK Status = iota
	NameMismatch
	Revoked
	NotActive
	Expired
	SignerUnknown
	SignerUnauthorised
	Insecure
	Invalid
	MaybeDos
	InternalError
	UnknownError
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case NameMismatch:
		return "name-mismatch"
	case Revoked:
		return "revoked"
	case NotActive:
		return "not-active"
	case Expired:
		return "expired"
	case SignerUnknown:
		return "signer-unknown"
	case SignerUnauthorised:
		return "signer-unauthorised"
	case Insecure:
		return "insecure"
	case Invalid:
		return "invalid"
	case MaybeDos:
		return "maybe-dos"
	case InternalError:
		return "internal-error"
	default:
		return "unknown-error"
	}
}

// Error wraps a verification failure with its classified Status.
type Error struct {
	Status Status
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tlscert: %s: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("tlscert: %s", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// neverDowngraded are the statuses spec.md §4.2 says Lenient mode must
// never accept, even though it relaxes SignerUnknown and Invalid.
var neverDowngraded = map[Status]bool{
	InternalError: true,
	Revoked:       true,
	MaybeDos:      true,
	Expired:       true,
	NotActive:     true,
	SignerUnauthorised: true,
}

// downgradableAtLenient are statuses Lenient mode accepts as success.
var downgradableAtLenient = map[Status]bool{
	SignerUnknown: true,
	Invalid:       true,
}

// Verify checks chain (leaf-first, as returned by
// tls.ConnectionState.PeerCertificates) against roots, matching peername
// (and any extraIdentities the caller trusts out of band, e.g. from a
// prior XMPP session) at the given verification Level. A nil roots pool
// uses the system trust store.
//
// Note: the standard library's crypto/x509 does not perform revocation
// checking (no CRL/OCSP), so this function never itself produces Revoked,
// NotActive, or MaybeDos — those Status values exist so that a caller
// composing its own revocation checker in front of Verify can report them
// through the same taxonomy.
func Verify(chain []*x509.Certificate, peername string, extraIdentities []string, level Level, roots *x509.CertPool) error {
	if len(chain) == 0 {
		return &Error{Status: Invalid, Err: errors.New("no certificate presented")}
	}
	leaf := chain[0]

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   time.Now(),
	}

	_, chainErr := leaf.Verify(opts)
	if chainErr != nil {
		status := classify(chainErr)
		if !accepts(status, level) {
			return &Error{Status: status, Err: chainErr}
		}
	}

	if peername != "" && !matchesName(leaf, peername, extraIdentities) {
		return &Error{Status: NameMismatch, Err: fmt.Errorf("certificate does not match %q", peername)}
	}
	return nil
}

func accepts(status Status, level Level) bool {
	if status == OK {
		return true
	}
	if neverDowngraded[status] {
		return false
	}
	switch level {
	case Strict:
		return false
	case Normal:
		return false
	case Lenient:
		return downgradableAtLenient[status]
	default:
		return false
	}
}

func classify(err error) Status {
	var invalid x509.CertificateInvalidError
	var unknownAuth x509.UnknownAuthorityError
	var sysRoots x509.SystemRootsError
	var hostErr x509.HostnameError

	switch {
	case errors.As(err, &invalid):
		switch invalid.Reason {
		case x509.Expired:
			return Expired
		case x509.CANotAuthorizedForThisName, x509.CANotAuthorizedForExtKeyUsage:
			return SignerUnauthorised
		case x509.NotAuthorizedToSign:
			return SignerUnauthorised
		default:
			return Invalid
		}
	case errors.As(err, &unknownAuth):
		return SignerUnknown
	case errors.As(err, &sysRoots):
		return InternalError
	case errors.As(err, &hostErr):
		return NameMismatch
	default:
		return UnknownError
	}
}

// matchesName reports whether any of leaf's SAN DNS names, its subject
// common name (used only when there are no SAN DNS names, matching common
// client behaviour), or an entry in extraIdentities matches name. A single
// leading "*." wildcard label is accepted; wildcards anywhere else in a
// candidate name are rejected outright (spec.md §4.2).
func matchesName(leaf *x509.Certificate, name string, extraIdentities []string) bool {
	candidates := leaf.DNSNames
	if len(candidates) == 0 && leaf.Subject.CommonName != "" {
		candidates = []string{leaf.Subject.CommonName}
	}
	for _, c := range candidates {
		if matchesHostname(c, name) {
			return true
		}
	}
	for _, extra := range extraIdentities {
		if strings.EqualFold(extra, name) {
			return true
		}
	}
	return false
}

func matchesHostname(pattern, name string) bool {
	pattern = strings.ToLower(pattern)
	name = strings.ToLower(name)

	if !strings.Contains(pattern, "*") {
		return pattern == name
	}
	if !strings.HasPrefix(pattern, "*.") || strings.Count(pattern, "*") != 1 {
		// Wildcards anywhere but a single leading label are rejected.
		return false
	}
	patternLabels := strings.Split(pattern, ".")
	nameLabels := strings.Split(name, ".")
	if len(patternLabels) != len(nameLabels) {
		return false
	}
	for i := 1; i < len(patternLabels); i++ {
		if patternLabels[i] != nameLabels[i] {
			return false
		}
	}
	return nameLabels[0] != ""
}
