// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package auth

import "context"

// TestMechanism returns a trivial custom mechanism named "X-TEST" that
// authenticates as username with no further negotiation, matching the
// single-shot test mechanisms XMPP test servers commonly offer alongside
// PLAIN and the SCRAM family (spec.md §4.3 names it as an example
// registry entry).
func TestMechanism(username string) Mechanism {
	return Mechanism{
		Name:    "X-TEST",
		IsPlain: true,
		InitialResponse: func(ctx context.Context) ([]byte, error) {
			return []byte(username), nil
		},
	}
}
