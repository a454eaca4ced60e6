// Copyright 2017 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package tlscert implements the TLS verification hook described in
// spec.md §4.2: a peer-name and certificate-chain check parameterised by
// a verification Level (Strict/Normal/Lenient), mapping outcomes onto the
// error taxonomy the connector surfaces to callers.
package tlscert // import "strata.im/xmpp/tlscert"
