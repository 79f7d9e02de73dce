// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"

	"mellium.im/courier/codec"
	"mellium.im/courier/compress"
	"mellium.im/courier/internal/ns"
	internalstream "mellium.im/courier/internal/stream"
	"mellium.im/courier/jid"
	"mellium.im/courier/stack"
	"mellium.im/courier/stanza"
	"mellium.im/courier/stream"
	"mellium.im/courier/x509"
	"mellium.im/courier/xmlnode"
)

var errFinishRequested = errors.New("courier: finish requested")

// SessionState is the negotiation state of a session.
type SessionState int32

// A list of session states in the order a successful session goes through
// them.
const (
	// Connecting is the state of a session that has not been started.
	Connecting SessionState = iota
	Negotiating
	Authenticating
	BindingResource
	Establishing

	// Initialized sessions can send and receive stanzas.
	Initialized

	// Finishing sessions have closed their stream and are waiting for the
	// server to close its own.
	Finishing

	// Finished and Failed are terminal.
	// The connection has been closed.
	Finished
	Failed
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Negotiating:
		return "negotiating"
	case Authenticating:
		return "authenticating"
	case BindingResource:
		return "binding resource"
	case Establishing:
		return "establishing"
	case Initialized:
		return "initialized"
	case Finishing:
		return "finishing"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// SessionHandlers are the callbacks of a Session.
// Unless otherwise noted they are called from the session goroutine, one at a
// time, and must not block.
type SessionHandlers struct {
	// StateChanged is called after every state transition.
	StateChanged func(SessionState)

	// NeedCredentials is called when the session needs a password.
	// Authentication is suspended until SendCredentials is called.
	NeedCredentials func()

	// Stanza is called for every stanza received once the session is
	// initialized.
	Stanza func(stanza.Stanza)

	// StanzaAcked is called when the server acknowledges a stanza sent while
	// stream management was enabled.
	StanzaAcked func(stanza.Stanza)

	// Finished is called last, with a nil error after a clean finish or an
	// *Error if the session failed.
	Finished func(error)

	// DataRead is called from the goroutine reading the connection with the
	// decoded data read from it.
	DataRead func([]byte)

	// DataWritten is called from the goroutine writing to the connection with
	// the data written before it is encoded.
	// It must not send anything on the session.
	DataWritten func([]byte)
}

type readOp struct {
	// header resets the decoder and reads a new stream header.
	header bool
}

type readResult struct {
	info stream.Info
	el   *xmlnode.Element
	err  error
}

// A Session negotiates and serves a client stream over a connection that it
// owns.
type Session struct {
	opts     Options
	registry *codec.Registry
	handlers SessionHandlers
	log      logging.LeveledLogger
	local    jid.JID

	stk   *stack.Stack
	state atomic.Int32

	// Only touched by the session goroutine.
	info   stream.Info
	secure bool

	jidMu sync.Mutex
	jid   jid.JID

	// wmu keeps stanzas and their ack requests together and guards sm.
	wmu sync.Mutex
	sm  smState

	readReq   chan readOp
	reads     chan readResult
	creds     chan string
	finishReq chan struct{}
	writeErr  chan error
	done      chan struct{}
	startOnce sync.Once
	err       error
}

// NewSession creates a session that will negotiate a stream for local over
// conn.
// The session owns conn from now on and closes it when it ends.
// Negotiation does not begin until Start is called.
func NewSession(conn net.Conn, local jid.JID, opts Options, h SessionHandlers) (*Session, error) {
	opts = opts.withDefaults()
	if err := registerCore(opts.Registry); err != nil {
		return nil, err
	}
	s := &Session{
		opts:      opts,
		registry:  opts.Registry,
		handlers:  h,
		log:       opts.LoggerFactory.NewLogger("session"),
		local:     local,
		readReq:   make(chan readOp, 1),
		reads:     make(chan readResult),
		creds:     make(chan string, 1),
		finishReq: make(chan struct{}, 1),
		writeErr:  make(chan error, 1),
		done:      make(chan struct{}),
	}
	s.stk = stack.New(conn, stack.Config{
		OnRead:        h.DataRead,
		OnWrite:       h.DataWritten,
		LoggerFactory: opts.LoggerFactory,
	})
	return s, nil
}

// Start begins negotiation on a new goroutine.
// If ctx is canceled before the session is initialized the session fails;
// afterwards it has no effect.
// Calling Start more than once has no effect.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.readLoop()
		go s.run(ctx)
	})
}

// State returns the current state of the session.
// It is safe for concurrent use by multiple goroutines.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// LocalAddr returns the address the session is negotiated for.
// Once a resource is bound it is the full address assigned by the server.
func (s *Session) LocalAddr() jid.JID {
	s.jidMu.Lock()
	defer s.jidMu.Unlock()
	if s.jid.IsZero() {
		return s.local
	}
	return s.jid
}

func (s *Session) setJID(j jid.JID) {
	s.jidMu.Lock()
	defer s.jidMu.Unlock()
	s.jid = j
}

// Done is closed when the session has ended and released its connection.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the session failed with after Done is closed.
// It is nil after a clean finish.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// PeerCertificates returns the certificate chain presented by the server if
// TLS was negotiated.
func (s *Session) PeerCertificates() []*x509.Certificate {
	if l, ok := s.stk.Layer(stack.Security).(*TLSLayer); ok {
		return l.PeerCertificates()
	}
	return nil
}

// Stack returns the layer stack of the session.
func (s *Session) Stack() *stack.Stack {
	return s.stk
}

// SendCredentials answers a NeedCredentials call.
// Only the first answer to each request is used.
// SendCredentials is safe for concurrent use by multiple goroutines.
func (s *Session) SendCredentials(password string) {
	select {
	case s.creds <- password:
	default:
	}
}

// Finish closes the stream gracefully.
// The session waits for the server to close its stream for FinishTimeout
// before closing the connection.
// If the session is still negotiating it is ended immediately.
// Finish does not block and is safe for concurrent use by multiple
// goroutines.
func (s *Session) Finish() {
	select {
	case s.finishReq <- struct{}{}:
	default:
	}
}

// Send transmits a stanza.
// If the session is not initialized the stanza is dropped and
// ErrNotInitialized is returned; Send never waits for negotiation to finish.
// Send is safe for concurrent use by multiple goroutines.
func (s *Session) Send(st stanza.Stanza) error {
	if state := s.State(); state != Initialized {
		s.log.Warnf("not sending %s stanza while session is %s", st.Kind(), state)
		return ErrNotInitialized
	}
	el, err := stanza.Marshal(s.registry, st)
	if err != nil {
		return err
	}
	data := el.Serialize(ns.Client)

	s.wmu.Lock()
	defer s.wmu.Unlock()
	// The state may have changed to Finishing while we were waiting for the
	// lock, in which case the end of the stream has been written.
	if state := s.State(); state != Initialized {
		s.log.Warnf("not sending %s stanza while session is %s", st.Kind(), state)
		return ErrNotInitialized
	}
	if err = s.writeLocked(data); err != nil {
		s.reportWriteError(err)
		return err
	}
	if s.sm.enabled {
		s.sm.unacked = append(s.sm.unacked, st)
		if err = s.writeLocked(xmlnode.New(ns.SM, "r").Serialize(ns.Client)); err != nil {
			s.reportWriteError(err)
			return err
		}
	}
	return nil
}

func (s *Session) reportWriteError(err error) {
	select {
	case s.writeErr <- err:
	default:
	}
}

func (s *Session) writeElement(el *xmlnode.Element) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.writeLocked(el.Serialize(ns.Client))
}

// writeLocked must be called with wmu held.
func (s *Session) writeLocked(data string) error {
	if _, err := io.WriteString(s.stk, data); err != nil {
		return newError(ConnectionWriteError, err)
	}
	return nil
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
	s.log.Debugf("session %s", state)
	if s.handlers.StateChanged != nil {
		s.handlers.StateChanged(state)
	}
}

// readLoop performs the blocking reads requested by the session goroutine.
// Reads only happen on request so that layers can be added and the stream
// restarted at exact element boundaries.
func (s *Session) readLoop() {
	var d *xml.Decoder
	for {
		var op readOp
		select {
		case op = <-s.readReq:
		case <-s.done:
			return
		}
		var r readResult
		if op.header || d == nil {
			d = xml.NewDecoder(s.stk)
			r.info, r.err = internalstream.Expect(context.Background(), d)
		} else {
			r.el, r.err = internalstream.Next(d)
		}
		select {
		case s.reads <- r:
		case <-s.done:
			return
		}
	}
}

// read asks the reader for the next stream header or element and waits for
// it.
func (s *Session) read(ctx context.Context, op readOp) (readResult, error) {
	s.readReq <- op
	select {
	case r := <-s.reads:
		if r.err != nil {
			return r, readError(r.err)
		}
		return r, nil
	case err := <-s.writeErr:
		return readResult{}, newError(ConnectionWriteError, err)
	case <-s.finishReq:
		return readResult{}, errFinishRequested
	case <-ctx.Done():
		return readResult{}, newError(ConnectionError, ctx.Err())
	}
}

// next returns the next element during negotiation.
func (s *Session) next(ctx context.Context) (*xmlnode.Element, error) {
	r, err := s.read(ctx, readOp{})
	return r.el, err
}

// readError converts an error from the reader into a session error.
func readError(err error) error {
	var remote internalstream.RemoteError
	var se stream.Error
	var syntax *xml.SyntaxError
	switch {
	case errors.As(err, &remote):
		return newError(StreamError, remote.Err)
	case errors.Is(err, internalstream.ErrUnexpectedRestart),
		errors.As(err, &syntax),
		errors.As(err, &se):
		return newError(XMLError, err)
	}
	return newError(ConnectionReadError, err)
}

// restart opens a new stream and returns the features the server offers on
// it.
func (s *Session) restart(ctx context.Context) (Features, error) {
	from := jid.JID{}
	if s.secure {
		from = s.local
	}
	s.wmu.Lock()
	err := internalstream.Send(s.stk, s.local, from, s.opts.Lang)
	s.wmu.Unlock()
	if err != nil {
		return Features{}, newError(ConnectionWriteError, err)
	}

	r, err := s.read(ctx, readOp{header: true})
	if err != nil {
		return Features{}, err
	}
	s.info = r.info
	s.log.Tracef("stream %s opened by %s", s.info.ID, s.info.From)

	el, err := s.next(ctx)
	if err != nil {
		return Features{}, err
	}
	f, err := ParseFeatures(el)
	if err != nil {
		return f, newError(UnexpectedElement, err)
	}
	return f, nil
}

func (s *Session) run(ctx context.Context) {
	err := s.negotiate(ctx)
	if err == nil {
		err = s.serve()
	}
	s.teardown(err)
}

// negotiate drives the stream from Negotiating to just before Initialized.
func (s *Session) negotiate(ctx context.Context) error {
	s.setState(Negotiating)
	var compressed, authenticated bool
	for {
		f, err := s.restart(ctx)
		if err != nil {
			return err
		}

		if !s.secure {
			switch {
			case f.StartTLS && s.opts.UseTLS != NeverUseTLS:
				if err = s.startTLS(ctx); err != nil {
					return err
				}
				s.secure = true
				continue
			case s.opts.UseTLS == RequireTLS:
				return newError(TLSError, ErrTLSRequired)
			}
		}

		if !compressed && s.opts.UseStreamCompression && len(f.Compression) > 0 {
			if m, ok := compress.Select(f.Compression, compress.ZLIB); ok {
				if err = s.compress(ctx, m); err != nil {
					return err
				}
				compressed = true
				continue
			}
		}

		if !authenticated {
			if len(f.Mechanisms) == 0 {
				return newError(NoSupportedAuthMechanisms, nil)
			}
			s.setState(Authenticating)
			if err = s.authenticate(ctx, f.Mechanisms); err != nil {
				return err
			}
			authenticated = true
			continue
		}

		if !f.Bind {
			return newError(ResourceBindFailed, errors.New("courier: server does not offer resource binding"))
		}
		s.setState(BindingResource)
		if err = s.bind(ctx); err != nil {
			return err
		}

		s.setState(Establishing)
		if f.Session {
			if err = s.establish(ctx); err != nil {
				return err
			}
		}
		if f.StreamManagement && s.opts.UseAcks {
			if err = s.enableSM(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// compress asks the server to compress the stream with m and adds the
// compression layer.
func (s *Session) compress(ctx context.Context, m compress.Method) error {
	if err := s.writeElement(compress.Request(m)); err != nil {
		return err
	}
	el, err := s.next(ctx)
	if err != nil {
		return err
	}
	switch el.Name {
	case compress.Compressed:
		if err = s.stk.AddLayer(ctx, m); err != nil {
			return newError(CompressionFailed, err)
		}
		s.log.Debugf("stream compressed with %s", m.Name)
		return nil
	case compress.Failure:
		return newError(CompressionFailed, errors.New("courier: server refused to compress the stream"))
	}
	return newError(UnexpectedElement, errUnexpected(el))
}

// serve dispatches elements once the session is initialized until the stream
// ends.
func (s *Session) serve() error {
	if s.opts.WhitespacePingInterval > 0 {
		err := s.stk.AddLayer(context.Background(), KeepaliveLayer{
			Interval: s.opts.WhitespacePingInterval,
			Timers:   s.opts.Timers,
		})
		if err != nil {
			return newError(ConnectionWriteError, err)
		}
	}
	s.setState(Initialized)

	var timeout chan struct{}
	var timer Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	s.readReq <- readOp{}
	for {
		select {
		case r := <-s.reads:
			if r.err != nil {
				if r.err == io.EOF || s.State() == Finishing {
					s.log.Debugf("stream closed by server: %v", r.err)
					return nil
				}
				return readError(r.err)
			}
			if err := s.handleElement(r.el); err != nil {
				return err
			}
			s.readReq <- readOp{}
		case err := <-s.writeErr:
			if s.State() == Finishing {
				return nil
			}
			return newError(ConnectionWriteError, err)
		case <-s.finishReq:
			if s.State() == Finishing {
				continue
			}
			s.wmu.Lock()
			s.state.Store(int32(Finishing))
			err := s.writeLocked(`</stream:stream>`)
			s.wmu.Unlock()
			s.setState(Finishing)
			if err != nil {
				return nil
			}
			timeout = make(chan struct{})
			c := timeout
			timer = s.opts.Timers.AfterFunc(s.opts.FinishTimeout, func() { close(c) })
		case <-timeout:
			s.log.Warn("server did not close the stream in time")
			return nil
		}
	}
}

// handleElement handles an element received on an initialized stream.
func (s *Session) handleElement(el *xmlnode.Element) error {
	if ok, err := s.handleSM(el); ok {
		return err
	}
	if !stanza.Is(el.Name) {
		return newError(UnexpectedElement, errUnexpected(el))
	}
	if s.sm.enabled {
		s.sm.inbound++
	}
	st, err := stanza.Unmarshal(s.registry, el, s.opts.Policy)
	if err != nil {
		s.log.Warnf("dropping stanza that could not be decoded: %v", err)
		return nil
	}
	if s.handlers.Stanza != nil {
		s.handlers.Stanza(st)
	}
	return nil
}

// teardown releases the stack and reports the end of the session.
// It runs exactly once, at the end of the session goroutine.
func (s *Session) teardown(err error) {
	if errors.Is(err, errFinishRequested) {
		err = nil
	}
	if errors.Is(err, XMLError) {
		se := stream.NotWellFormed
		errors.As(err, &se)
		// Tell the server why we are leaving.
		s.wmu.Lock()
		if s.writeLocked(se.Element().Serialize(ns.Client)) == nil {
			_ = s.writeLocked(`</stream:stream>`)
		}
		s.wmu.Unlock()
	}
	if cerr := s.stk.Close(); cerr != nil {
		s.log.Tracef("closing connection: %v", cerr)
	}

	state := Finished
	if err != nil {
		err = newError(UnknownError, err)
		state = Failed
		s.log.Warnf("session failed: %v", err)
	}
	s.err = err
	s.wmu.Lock()
	s.state.Store(int32(state))
	s.wmu.Unlock()
	close(s.done)
	s.setState(state)
	if s.handlers.Finished != nil {
		s.handlers.Finished(err)
	}
}
