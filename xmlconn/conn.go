// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package xmlconn

import (
	"context"
	"crypto/rand"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"strata.im/xmpp/internal/ns"
	"strata.im/xmpp/stanza"
)

// state tracks where Conn sits in the send/recv-open/close lifecycle
// described in spec.md §4.1. Send-side and recv-side state are tracked
// independently because, per the STARTTLS dance, a caller issues
// send_open/recv_open as two independent operations.
type state int32

const (
	stateInit state = iota
	stateOpen
	stateClosing
	stateClosed
)

// StreamHeader is the parsed form of an opening <stream:stream> tag
// (spec.md §4.1 recv_open, §6).
type StreamHeader struct {
	To      string
	From    string
	Version string
	Lang    string
	ID      string
}

// Conn is a framed XML connection wrapping a byte stream (spec.md §4.1).
// All exported methods are safe to call from different goroutines, and only
// one send and one recv operation run at a time. SendStanza and RecvStanza
// return ErrPending if another operation in the same direction is in
// flight; SendOpen, RecvOpen, SendClose and SendWhitespacePing wait for it
// to finish instead.
type Conn struct {
	rw io.ReadWriteCloser

	sendState int32 // atomic state
	recvState int32 // atomic state

	sendLock sync.Mutex // serialises writes (send_stanza/send_open/send_close/ping)
	recvLock sync.Mutex

	dec *xml.Decoder

	forced  int32 // atomic bool: ForceClose has torn the stream down
	closeMu sync.Mutex

	idCounter uint64
}

// New wraps rw in a framed XML connection. rw is exclusively owned by the
// returned Conn from this point on (spec.md §5).
func New(rw io.ReadWriteCloser) *Conn {
	c := &Conn{rw: rw}
	c.dec = xml.NewDecoder(rw)
	return c
}

// NewID returns a process-unique short string suitable for use as an IQ id
// (spec.md §4.1). This is the only identifier stream this library
// guarantees uniqueness for — the server-assigned stream id from RecvOpen
// is not (spec.md §9).
func (c *Conn) NewID() string {
	n := atomic.AddUint64(&c.idCounter, 1)
	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("strata-%x-%d", b, n)
}

func (c *Conn) isForced() bool { return atomic.LoadInt32(&c.forced) == 1 }

// SendOpen writes the opening stream header (spec.md §4.1 send_open).
func (c *Conn) SendOpen(ctx context.Context, to, from, version, lang, id string) error {
	if !atomic.CompareAndSwapInt32(&c.sendState, int32(stateInit), int32(stateOpen)) {
		return ErrIsOpen
	}
	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	if c.isForced() {
		return ErrForciblyClosed
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>`)
	fmt.Fprintf(&b, `<stream:stream xmlns='%s' xmlns:stream='%s'`, ns.Client, ns.Stream)
	if to != "" {
		fmt.Fprintf(&b, ` to='%s'`, xmlEscapeAttr(to))
	}
	if from != "" {
		fmt.Fprintf(&b, ` from='%s'`, xmlEscapeAttr(from))
	}
	if version != "" {
		fmt.Fprintf(&b, ` version='%s'`, xmlEscapeAttr(version))
	}
	if lang != "" {
		fmt.Fprintf(&b, ` xml:lang='%s'`, xmlEscapeAttr(lang))
	}
	if id != "" {
		fmt.Fprintf(&b, ` id='%s'`, xmlEscapeAttr(id))
	}
	b.WriteString(">")
	_, err := io.WriteString(c.rw, b.String())
	return err
}

// RecvOpen reads the peer's opening stream header (spec.md §4.1 recv_open).
func (c *Conn) RecvOpen(ctx context.Context) (StreamHeader, error) {
	if !atomic.CompareAndSwapInt32(&c.recvState, int32(stateInit), int32(stateOpen)) {
		return StreamHeader{}, ErrIsOpen
	}
	c.recvLock.Lock()
	defer c.recvLock.Unlock()
	if c.isForced() {
		return StreamHeader{}, ErrForciblyClosed
	}

	for {
		tok, err := c.dec.Token()
		if err != nil {
			if err == io.EOF {
				return StreamHeader{}, ErrEOS
			}
			return StreamHeader{}, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "stream" || start.Name.Space != ns.Stream {
			return StreamHeader{}, fmt.Errorf("xmlconn: unexpected opening element %v", start.Name)
		}
		var h StreamHeader
		for _, a := range start.Attr {
			switch a.Name.Local {
			case "to":
				h.To = a.Value
			case "from":
				h.From = a.Value
			case "version":
				h.Version = a.Value
			case "lang":
				if a.Name.Space == "xml" {
					h.Lang = a.Value
				}
			case "id":
				h.ID = a.Value
			}
		}
		return h, nil
	}
}

// SendStanza serialises and writes one stanza (spec.md §4.1 send_stanza).
// It is only valid between SendOpen's completion and SendClose/ForceClose.
func (c *Conn) SendStanza(ctx context.Context, s stanza.Stanza) error {
	if state(atomic.LoadInt32(&c.sendState)) == stateInit {
		return ErrNotOpen
	}
	if !c.sendLock.TryLock() {
		return ErrPending
	}
	defer c.sendLock.Unlock()
	switch state(atomic.LoadInt32(&c.sendState)) {
	case stateClosed:
		return ErrIsClosed
	}
	if c.isForced() {
		return ErrForciblyClosed
	}
	e := xml.NewEncoder(c.rw)
	if err := s.Node.Encode(e); err != nil {
		return err
	}
	return e.Flush()
}

// RecvStanza reads bytes until a complete stanza is available (spec.md
// §4.1 recv_stanza). It is only valid between RecvOpen's completion and the
// peer's close.
func (c *Conn) RecvStanza(ctx context.Context) (stanza.Stanza, error) {
	if state(atomic.LoadInt32(&c.recvState)) == stateInit {
		return stanza.Stanza{}, ErrNotOpen
	}
	if !c.recvLock.TryLock() {
		return stanza.Stanza{}, ErrPending
	}
	defer c.recvLock.Unlock()
	switch state(atomic.LoadInt32(&c.recvState)) {
	case stateClosed:
		return stanza.Stanza{}, ErrIsClosed
	}
	if c.isForced() {
		return stanza.Stanza{}, ErrForciblyClosed
	}

	for {
		tok, err := c.dec.Token()
		if err != nil {
			if err == io.EOF {
				return stanza.Stanza{}, ErrEOS
			}
			return stanza.Stanza{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == ns.Stream && t.Name.Local == "error" {
				n, err := stanza.Decode(c.dec, t)
				if err != nil {
					return stanza.Stanza{}, err
				}
				s := stanza.FromNode(n)
				return s, nil
			}
			return stanza.DecodeStanza(c.dec, t)
		case xml.EndElement:
			if t.Name.Space == ns.Stream && t.Name.Local == "stream" {
				atomic.StoreInt32(&c.recvState, int32(stateClosed))
				return stanza.Stanza{}, ErrClosed
			}
		}
	}
}

// SendClose writes the closing stream tag (spec.md §4.1 send_close).
func (c *Conn) SendClose(ctx context.Context) error {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	if c.isForced() {
		return ErrForciblyClosed
	}
	if state(atomic.LoadInt32(&c.sendState)) == stateClosed {
		return ErrIsClosed
	}
	atomic.StoreInt32(&c.sendState, int32(stateClosed))
	_, err := io.WriteString(c.rw, "</stream:stream>")
	return err
}

// ForceClose closes the underlying byte stream unconditionally (spec.md
// §4.1 force_close). Operations started after ForceClose fail with
// ErrForciblyClosed; an operation already blocked on the byte stream
// returns whatever error the closed stream reports.
func (c *Conn) ForceClose() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	atomic.StoreInt32(&c.forced, 1)
	atomic.StoreInt32(&c.sendState, int32(stateClosed))
	atomic.StoreInt32(&c.recvState, int32(stateClosed))
	return c.rw.Close()
}

// SendWhitespacePing writes a single U+0020 byte as a keepalive (spec.md
// §4.1, §6 "byte-for-byte identity").
func (c *Conn) SendWhitespacePing(ctx context.Context) error {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	if c.isForced() {
		return ErrForciblyClosed
	}
	_, err := c.rw.Write([]byte{' '})
	return err
}

// Reset returns the connection to its initial (pre-open) state without
// tearing down the byte stream. If newRW is non-nil the underlying stream
// is replaced (used after STARTTLS, spec.md §4.1/§4.2); otherwise the
// existing stream is kept but the decoder is recreated (used after SASL
// success, spec.md §4.3, to restart the XMPP stream on the same TLS
// session).
func (c *Conn) Reset(newRW io.ReadWriteCloser) {
	c.sendLock.Lock()
	c.recvLock.Lock()
	defer c.sendLock.Unlock()
	defer c.recvLock.Unlock()

	if newRW != nil {
		c.rw = newRW
	}
	c.dec = xml.NewDecoder(c.rw)
	atomic.StoreInt32(&c.sendState, int32(stateInit))
	atomic.StoreInt32(&c.recvState, int32(stateInit))
}

// Underlying returns the current byte stream, e.g. for wrapping in TLS or
// inspecting *tls.Conn.ConnectionState.
func (c *Conn) Underlying() io.ReadWriteCloser { return c.rw }

func xmlEscapeAttr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(stringWriter{&b}, []byte(s))
	return b.String()
}

type stringWriter struct{ b *strings.Builder }

func (w stringWriter) Write(p []byte) (int, error) { return w.b.Write(p) }
