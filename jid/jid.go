// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package jid

import (
	"encoding/xml"
	"errors"
	"net"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/precis"
)

// JID is an XMPP address: [localpart@]domainpart[/resourcepart].
//
// The zero value is not a valid JID; construct one with Parse or New. A
// JID's fields are unexported so that a constructed value is always in
// normalised form.
type JID struct {
	localpart    string
	domainpart   string
	resourcepart string
}

// New constructs a JID from its parts. domainpart is required; localpart
// and resourcepart may be empty.
func New(localpart, domainpart, resourcepart string) (JID, error) {
	if !utf8.ValidString(localpart) || !utf8.ValidString(resourcepart) {
		return JID{}, errors.New("jid: contains invalid UTF-8")
	}
	if err := checkForbidden(localpart); err != nil {
		return JID{}, err
	}

	domain, err := idna.ToUnicode(domainpart)
	if err != nil {
		return JID{}, err
	}
	domain = strings.TrimSuffix(domain, ".")
	if err := checkDomain(domain); err != nil {
		return JID{}, err
	}

	local := localpart
	if local != "" {
		local, err = precis.UsernameCaseMapped.String(local)
		if err != nil {
			return JID{}, err
		}
	}

	return JID{localpart: local, domainpart: domain, resourcepart: resourcepart}, nil
}

// Parse splits s into its component parts and constructs a JID, following
// RFC 7622 §3.1's "match separators before transforming" rule: the
// domainpart is found first by trimming from the first '/' to the end, then
// from the start to the first '@'.
func Parse(s string) (JID, error) {
	localpart, domainpart, resourcepart, err := SplitString(s)
	if err != nil {
		return JID{}, err
	}
	return New(localpart, domainpart, resourcepart)
}

// SplitString splits s into its localpart, domainpart, and resourcepart. It
// does not normalise or validate beyond rejecting an empty part where the
// corresponding separator is present.
func SplitString(s string) (localpart, domainpart, resourcepart string, err error) {
	parts := strings.SplitAfterN(s, "/", 2)
	if strings.HasSuffix(parts[0], "/") {
		if len(parts) == 2 && parts[1] != "" {
			resourcepart = parts[1]
		} else {
			return "", "", "", errors.New("jid: resourcepart must not be empty")
		}
	}
	noResource := strings.TrimSuffix(parts[0], "/")

	atParts := strings.SplitAfterN(noResource, "@", 2)
	if atParts[0] == "@" {
		return "", "", "", errors.New("jid: localpart must not be empty")
	}
	switch len(atParts) {
	case 1:
		domainpart = atParts[0]
	case 2:
		domainpart = atParts[1]
		localpart = strings.TrimSuffix(atParts[0], "@")
	}
	return localpart, domainpart, resourcepart, nil
}

func checkForbidden(localpart string) error {
	if len(localpart) > 1023 {
		return errors.New("jid: localpart must be smaller than 1024 bytes")
	}
	// RFC 7622 §3.3.1 forbids these even though the base PRECIS profile
	// would otherwise allow some of them.
	if strings.ContainsAny(localpart, "\"&'/:<>@") {
		return errors.New("jid: localpart contains forbidden characters")
	}
	return nil
}

func checkDomain(domainpart string) error {
	l := len(domainpart)
	if l < 1 || l > 1023 {
		return errors.New("jid: domainpart must be between 1 and 1023 bytes")
	}
	if l > 2 && strings.HasPrefix(domainpart, "[") && strings.HasSuffix(domainpart, "]") {
		if ip := net.ParseIP(domainpart[1 : l-1]); ip == nil || ip.To4() != nil {
			return errors.New("jid: domainpart is not a valid IPv6 literal")
		}
	}
	return nil
}

// Localpart returns the localpart, or the empty string if there is none.
func (j JID) Localpart() string { return j.localpart }

// Domainpart returns the domainpart.
func (j JID) Domainpart() string { return j.domainpart }

// Resourcepart returns the resourcepart, or the empty string if this is a
// bare JID.
func (j JID) Resourcepart() string { return j.resourcepart }

// Bare returns a copy of j with the resourcepart removed.
func (j JID) Bare() JID {
	j.resourcepart = ""
	return j
}

// WithResource returns a copy of j with the resourcepart replaced.
func (j JID) WithResource(resourcepart string) (JID, error) {
	if resourcepart != "" && !utf8.ValidString(resourcepart) {
		return JID{}, errors.New("jid: resourcepart contains invalid UTF-8")
	}
	j.resourcepart = resourcepart
	return j, nil
}

// IsZero reports whether j is the zero value (no domainpart).
func (j JID) IsZero() bool { return j.domainpart == "" }

// IsBare reports whether j has no resourcepart.
func (j JID) IsBare() bool { return j.resourcepart == "" }

// IsFull reports whether j has a resourcepart.
func (j JID) IsFull() bool { return j.resourcepart != "" }

// String returns the canonical string form of j.
func (j JID) String() string {
	var b strings.Builder
	if j.localpart != "" {
		b.WriteString(j.localpart)
		b.WriteByte('@')
	}
	b.WriteString(j.domainpart)
	if j.resourcepart != "" {
		b.WriteByte('/')
		b.WriteString(j.resourcepart)
	}
	return b.String()
}

// Equal reports whether j and other refer to the same address: localpart
// and domainpart are compared case-insensitively, resourcepart
// case-sensitively.
func (j JID) Equal(other JID) bool {
	return strings.EqualFold(j.localpart, other.localpart) &&
		strings.EqualFold(j.domainpart, other.domainpart) &&
		j.resourcepart == other.resourcepart
}

// Contains reports whether j equals other or is the bare form of other
// (i.e. j is a bare JID and other is a full JID sharing the same bare
// address). This is the JID-aliasing relation used for matching porter
// handler "from" filters and pending-IQ replies against a bare sender
// (spec.md §3, §4.6).
func (j JID) Contains(other JID) bool {
	if j.Equal(other) {
		return true
	}
	if !j.IsBare() {
		return false
	}
	return strings.EqualFold(j.localpart, other.localpart) &&
		strings.EqualFold(j.domainpart, other.domainpart)
}

// MarshalXMLAttr implements xml.MarshalerAttr.
func (j JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr implements xml.UnmarshalerAttr.
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}
