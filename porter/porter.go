// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package porter

import (
	"context"
	"sync"

	"strata.im/xmpp/jid"
	"strata.im/xmpp/stanza"
	"strata.im/xmpp/xmlconn"
)

// closeState tracks the close lifecycle of spec.md §4.6: Open → Closing
// (Close called) → AwaitingPeerClose (send_close written) → Closed (peer
// close received). ForceClose drops any state straight to Closed.
type closeState int

const (
	stateOpen closeState = iota
	stateClosing
	stateAwaitingPeerClose
	stateClosed
)

// sendItem is one entry in the porter's FIFO send queue (spec.md §4.6
// "Send queue"). A nil Stanza means a whitespace ping; the close item is
// distinguished by isClose.
type sendItem struct {
	stanza   *stanza.Stanza
	isClose  bool
	done     chan error
}

// Porter is the stanza multiplexer of spec.md §4.6: it owns a live framed
// XML connection, a priority-ordered handler table, a pending-IQ
// correlation table, and a serialised send queue.
type Porter struct {
	conn     *xmlconn.Conn
	localJID jid.JID

	mu            sync.Mutex
	started       bool
	handlers      []*handlerEntry
	nextHandlerID uint64
	nextSeq       uint64
	pending       map[string]*pendingEntry
	state         closeState
	closeErr      error
	closeWaiters  []chan error
	subs          []chan Event

	sendCh   chan sendItem
	loopDone chan struct{}
}

// New returns a Porter multiplexing stanzas over conn on behalf of
// localJID (used to evaluate ServerOnly filters, spec.md §4.6). The
// porter does not start reading until Start is called (spec.md §4.6).
func New(conn *xmlconn.Conn, localJID jid.JID) *Porter {
	return &Porter{
		conn:     conn,
		localJID: localJID,
		pending:  make(map[string]*pendingEntry),
		sendCh:   make(chan sendItem, 64),
		loopDone: make(chan struct{}),
	}
}

// Start begins the perpetual receive loop and the send-queue writer
// (spec.md §4.6 "start()"). It returns immediately; the loops run until
// the connection closes.
func (p *Porter) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.sendLoop()
	go p.recvLoop()
}

// --- send queue -------------------------------------------------------

func (p *Porter) sendLoop() {
	for item := range p.sendCh {
		var err error
		if item.isClose {
			err = p.conn.SendClose(context.Background())
			p.mu.Lock()
			if err != nil {
				p.finishClosedLocked(err)
			} else if p.state == stateClosing {
				p.state = stateAwaitingPeerClose
			}
			p.mu.Unlock()
		} else if item.stanza == nil {
			p.emit(Event{Kind: EventSending, Stanza: nil})
			err = p.conn.SendWhitespacePing(context.Background())
		} else {
			p.emit(Event{Kind: EventSending, Stanza: item.stanza})
			err = p.conn.SendStanza(context.Background(), *item.stanza)
		}
		if item.done != nil {
			item.done <- err
		}
	}
}

// enqueue places item on the send queue, failing fast per the close
// state machine of spec.md §4.6: Closing rejects new stanzas (the close
// item itself is exempt), Closed rejects everything.
func (p *Porter) enqueue(item sendItem, allowDuringClosing bool) error {
	p.mu.Lock()
	switch p.state {
	case stateClosed:
		p.mu.Unlock()
		return ErrClosed
	case stateClosing, stateAwaitingPeerClose:
		if !allowDuringClosing {
			p.mu.Unlock()
			return ErrClosing
		}
	}
	p.mu.Unlock()
	p.sendCh <- item
	return nil
}

// Send enqueues s for writing without waiting for the write to complete
// (spec.md §4.6 "send(stanza)").
func (p *Porter) Send(s stanza.Stanza) error {
	return p.enqueue(sendItem{stanza: &s}, false)
}

// SendAsync enqueues s and blocks until it has been written, or ctx is
// cancelled, or the porter closes first (spec.md §4.6 "send_async").
func (p *Porter) SendAsync(ctx context.Context, s stanza.Stanza) error {
	done := make(chan error, 1)
	if err := p.enqueue(sendItem{stanza: &s, done: done}, false); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrCancelled
	}
}

// SendWhitespacePing enqueues a single space-byte keepalive (spec.md
// §4.1 send_whitespace_ping, §4.6 "sending(nil)").
func (p *Porter) SendWhitespacePing(ctx context.Context) error {
	done := make(chan error, 1)
	if err := p.enqueue(sendItem{done: done}, false); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrCancelled
	}
}

// --- IQ send + correlation ---------------------------------------------

// SendIQAsync records a pending-IQ entry keyed on a freshly minted id
// (spec.md §4.6 "send_iq_async"), sends the request, and blocks until the
// matching reply arrives, ctx is cancelled, or the connection closes.
func (p *Porter) SendIQAsync(ctx context.Context, iq stanza.Stanza) (stanza.Stanza, error) {
	if iq.Kind != stanza.IQ {
		return stanza.Stanza{}, ErrNotIQ
	}
	id := p.conn.NewID()
	iq.ID = id
	iq.Node.SetAttr("id", id)

	entry := &pendingEntry{id: id, remote: iq.To, hasTo: iq.HasTo, result: make(chan pendingResult, 1)}
	p.mu.Lock()
	if p.state == stateClosed {
		p.mu.Unlock()
		return stanza.Stanza{}, ErrClosed
	}
	p.pending[id] = entry
	p.mu.Unlock()

	// The write itself runs in the background: if the connection is torn
	// down mid-write, finishClosedLocked (called from the send loop or
	// from ForceClose) is the authoritative resolution of entry.result,
	// not the raw write error, so a concurrent ForceClose always reports
	// ErrForciblyClosed rather than a transport-level write failure.
	go func() {
		if err := p.SendAsync(ctx, iq); err != nil {
			p.mu.Lock()
			if _, ok := p.pending[id]; ok {
				delete(p.pending, id)
				entry.result <- pendingResult{err: err}
			}
			p.mu.Unlock()
		}
	}()

	select {
	case res := <-entry.result:
		return res.stanza, res.err
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return stanza.Stanza{}, ErrCancelled
	}
}

// AcknowledgeIQ replies to iq with type="result" and the given payload
// (spec.md §4.6 "acknowledge_iq").
func (p *Porter) AcknowledgeIQ(iq stanza.Stanza, payload ...*stanza.Node) error {
	if iq.Kind != stanza.IQ {
		return ErrNotIQ
	}
	return p.Send(iq.Reply(true, payload...))
}

// SendIQError replies to iq with type="error" carrying condition and an
// optional human-readable text (spec.md §4.6 "send_iq_error").
func (p *Porter) SendIQError(iq stanza.Stanza, condition stanza.Condition, text string) error {
	if iq.Kind != stanza.IQ {
		return ErrNotIQ
	}
	return p.Send(iq.ErrorReply(stanza.Error{Type: stanza.ErrCancel, Condition: condition, Text: text}))
}

// SendIQGerror replies to iq with an error derived from err (spec.md
// §4.6 "send_iq_gerror"). A stanza.Error value is used as-is; any other error
// is wrapped as an internal-server-error carrying err's message.
func (p *Porter) SendIQGerror(iq stanza.Stanza, err error) error {
	if iq.Kind != stanza.IQ {
		return ErrNotIQ
	}
	if se, ok := err.(stanza.Error); ok {
		return p.Send(iq.ErrorReply(se))
	}
	return p.Send(iq.ErrorReply(stanza.Error{
		Type:      stanza.ErrCancel,
		Condition: stanza.InternalServerError,
		Text:      err.Error(),
	}))
}

// --- handler registration ----------------------------------------------

// RegisterHandlerFrom registers a handler matching stanzas with the given
// kind, sub-kind (nil matches any), from filter, priority, and optional
// pattern (spec.md §4.6 "register_handler_from"). pattern, when non-nil, is
// a full stanza template matched root-to-root against the incoming
// stanza's own root element (mirroring wocky_stanza_build_va's contract):
// build it with the same root element name the filtered Kind resolves to
// (e.g. stanza.NewNode("", "message").WithChild(stanza.NewNode("",
// "body")...)), not a bare child fragment. It returns an id usable with
// UnregisterHandler.
func (p *Porter) RegisterHandlerFrom(kind stanza.Kind, subKind *stanza.SubKind, from From, priority Priority, cb HandlerFunc, pattern *stanza.Node) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextHandlerID++
	p.nextSeq++
	h := &handlerEntry{
		id: p.nextHandlerID, seq: p.nextSeq,
		kind: kind, subKind: subKind, from: from,
		priority: priority, callback: cb, pattern: pattern,
	}
	p.handlers = append(p.handlers, h)
	sortHandlers(p.handlers)
	return h.id
}

// RegisterHandlerFromAnyone is RegisterHandlerFrom with from set to
// AnyOne() (spec.md §4.6 "register_handler_from_anyone").
func (p *Porter) RegisterHandlerFromAnyone(kind stanza.Kind, subKind *stanza.SubKind, priority Priority, cb HandlerFunc, pattern *stanza.Node) uint64 {
	return p.RegisterHandlerFrom(kind, subKind, AnyOne(), priority, cb, pattern)
}

// UnregisterHandler removes a previously registered handler by id
// (spec.md §4.6 "unregister_handler").
func (p *Porter) UnregisterHandler(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, h := range p.handlers {
		if h.id == id {
			p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
			return
		}
	}
}

// sortHandlers orders by (priority desc, insertion order), per spec.md
// §4.6 "Priorities".
func sortHandlers(hs []*handlerEntry) {
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0; j-- {
			a, b := hs[j-1], hs[j]
			if a.priority < b.priority || (a.priority == b.priority && a.seq > b.seq) {
				hs[j-1], hs[j] = hs[j], hs[j-1]
				continue
			}
			break
		}
	}
}

// --- close lifecycle -----------------------------------------------------

// Close begins the close handshake: it writes the closing stream tag and
// blocks until the peer's stream close arrives (spec.md §4.6 "close_async"
// + "close_finish"). Concurrent Send/SendAsync/SendIQAsync calls made
// after Close begins fail with ErrClosing.
func (p *Porter) Close(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case stateClosed:
		p.mu.Unlock()
		return ErrClosed
	case stateClosing, stateAwaitingPeerClose:
		p.mu.Unlock()
		return ErrClosing
	}
	p.state = stateClosing
	wait := make(chan error, 1)
	p.closeWaiters = append(p.closeWaiters, wait)
	p.mu.Unlock()

	p.emit(Event{Kind: EventClosing})
	done := make(chan error, 1)
	if err := p.enqueue(sendItem{isClose: true, done: done}, true); err != nil {
		return err
	}
	<-done // the write outcome itself; the authoritative result arrives on wait

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ErrCancelled
	}
}

// ForceClose tears down the underlying transport unconditionally (spec.md
// §4.6 "force_close_async"). Any outstanding Close call fails with
// ErrForciblyClosed, as does every pending SendIQAsync.
func (p *Porter) ForceClose() error {
	p.mu.Lock()
	if p.state == stateClosed {
		p.mu.Unlock()
		return nil
	}
	p.finishClosedLocked(ErrForciblyClosed)
	p.mu.Unlock()
	return p.conn.ForceClose()
}

// finishClosedLocked transitions to Closed and resolves every outstanding
// close waiter and pending IQ, translating raw to the appropriate error
// for each: a clean peer close (xmlconn.ErrClosed) resolves Close with a
// nil error (success) but still fails pending IQs with ErrClosed, since
// from their point of view the stream ended before a reply arrived
// (spec.md §4.6 "IQ correlation"). Must be called with p.mu held.
func (p *Porter) finishClosedLocked(raw error) {
	p.state = stateClosed
	closeErr, pendingErr := raw, raw
	switch raw {
	case xmlconn.ErrClosed:
		closeErr, pendingErr = nil, ErrClosed
	case ErrForciblyClosed:
		closeErr, pendingErr = ErrForciblyClosed, ErrForciblyClosed
	}
	for _, w := range p.closeWaiters {
		w <- closeErr
	}
	p.closeWaiters = nil
	for id, entry := range p.pending {
		entry.result <- pendingResult{err: pendingErr}
		delete(p.pending, id)
	}
}

// --- receive loop --------------------------------------------------------

func (p *Porter) recvLoop() {
	defer close(p.loopDone)
	for {
		s, err := p.conn.RecvStanza(context.Background())
		if err != nil {
			p.handleRecvError(err)
			return
		}
		p.dispatch(s)
	}
}

func (p *Porter) handleRecvError(err error) {
	p.mu.Lock()
	if p.state == stateClosed {
		p.mu.Unlock()
		return
	}
	switch err {
	case xmlconn.ErrClosed:
		p.finishClosedLocked(xmlconn.ErrClosed)
		p.mu.Unlock()
		p.emit(Event{Kind: EventRemoteClosed})
	default:
		p.finishClosedLocked(err)
		p.mu.Unlock()
	}
}

// dispatch implements the inbound algorithm of spec.md §4.6.
func (p *Porter) dispatch(s stanza.Stanza) {
	if s.Kind == stanza.StreamError {
		se := stanza.StreamErrorFromNode(s.Node)
		p.emit(Event{Kind: EventRemoteError, Condition: se.Condition, Text: se.Text})
		p.mu.Lock()
		p.finishClosedLocked(se)
		p.mu.Unlock()
		return
	}

	if s.Kind == stanza.IQ && (s.SubKind == stanza.Result || s.SubKind == stanza.ErrorT) {
		p.mu.Lock()
		entry, ok := p.pending[s.ID]
		if ok && entry.matchesFrom(s) {
			delete(p.pending, s.ID)
			p.mu.Unlock()
			entry.result <- pendingResult{stanza: s}
			return
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	handlers := make([]*handlerEntry, len(p.handlers))
	copy(handlers, p.handlers)
	local := p.localJID
	p.mu.Unlock()

	for _, h := range handlers {
		if !h.matches(local, s) {
			continue
		}
		if h.callback(p, s) == Handled {
			return
		}
	}

	if s.Kind == stanza.IQ && (s.SubKind == stanza.Get || s.SubKind == stanza.Set) {
		_ = p.Send(s.ErrorReply(stanza.Error{
			Type:      stanza.ErrCancel,
			Condition: stanza.ServiceUnavailable,
		}))
	}
}
