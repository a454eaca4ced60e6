// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package auth

import (
	"context"
	"errors"
)

// Mechanism is one authentication mechanism handler (spec.md §4.3): a wire
// name, a declaration of whether it transmits credentials recoverably, and
// the three hooks the SASL pump drives it with.
type Mechanism struct {
	Name    string
	IsPlain bool

	// InitialResponse returns the bytes to send in the initial <auth/>
	// element, before any challenge has been seen. May return nil.
	InitialResponse func(ctx context.Context) ([]byte, error)

	// ResponseToChallenge computes the reply to a <challenge/>'s decoded
	// payload.
	ResponseToChallenge func(ctx context.Context, challenge []byte) ([]byte, error)

	// SuccessFinalCheck validates any payload carried on <success/>. It is
	// only invoked when <success/> carries data; mechanisms that never
	// produce such data may leave it nil.
	SuccessFinalCheck func(ctx context.Context, data []byte) error
}

// Registry holds the mechanisms a client is willing to use, in preference
// order (spec.md §4.3).
type Registry struct {
	mechs []Mechanism
}

// NewRegistry returns a Registry preferring mechs in the given order.
func NewRegistry(mechs ...Mechanism) *Registry {
	return &Registry{mechs: append([]Mechanism(nil), mechs...)}
}

// Add appends a mechanism to the end of the registry's preference order.
func (r *Registry) Add(m Mechanism) {
	r.mechs = append(r.mechs, m)
}

// Select implements the selection algorithm of spec.md §4.3: filter to
// mechanisms the registry supports and the peer offered, drop plain
// mechanisms unless permitted by clearChannelAllowed or (encrypted &&
// encryptedPlainOK), and return the first survivor in registry preference
// order.
func (r *Registry) Select(offered []string, clearChannelAllowed, encrypted, encryptedPlainOK bool) (Mechanism, error) {
	offeredSet := make(map[string]bool, len(offered))
	for _, name := range offered {
		offeredSet[name] = true
	}

	sawAny := false
	for _, m := range r.mechs {
		if !offeredSet[m.Name] {
			continue
		}
		sawAny = true
		if m.IsPlain && !(clearChannelAllowed || (encrypted && encryptedPlainOK)) {
			continue
		}
		return m, nil
	}
	if !sawAny {
		return Mechanism{}, &Error{Code: NoMechanisms, Err: errors.New("no registered mechanism was offered by the peer")}
	}
	return Mechanism{}, &Error{Code: NotSupported, Err: errors.New("every offered mechanism was rejected by the plain-auth policy")}
}
