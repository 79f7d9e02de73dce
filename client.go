// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/logging"

	"mellium.im/courier/codec"
	"mellium.im/courier/dial"
	"mellium.im/courier/jid"
	"mellium.im/courier/ping"
	"mellium.im/courier/stanza"
	"mellium.im/courier/x509"
)

// ErrConnectInProgress is returned by Connect when a connection attempt is
// already in flight.
var ErrConnectInProgress = dial.ErrConnectInProgress

// Handlers are the callbacks of a Client.
// Any of them may be nil.
// Stanza, Message, Presence, IQ and StanzaAcked are called one at a time from
// the goroutine of the current session and must not block; the others may be
// called from any goroutine.
type Handlers struct {
	// AvailableChanged is called with true when a session is initialized and
	// with false when that session ends.
	AvailableChanged func(bool)

	// Connected is called when a session is initialized.
	Connected func()

	// Stanza is called for every stanza received, before the kind specific
	// handler.
	Stanza   func(stanza.Stanza)
	Message  func(stanza.Message)
	Presence func(stanza.Presence)
	IQ       func(stanza.IQ)

	// Error is called when connecting fails or a session ends with an error.
	Error func(*Error)

	DataRead    func([]byte)
	DataWritten func([]byte)

	// NeedCredentials is called when the server asks for a password and none
	// was given to NewClient.
	// The application answers with SendCredentials.
	NeedCredentials func()

	StanzaAcked func(stanza.Stanza)
}

// Client connects an address to its server and keeps at most one session
// alive at a time.
type Client struct {
	local    jid.JID
	password string
	opts     Options
	h        Handlers
	log      logging.LeveledLogger

	connector *dial.Connector
	router    *IQRouter

	mu        sync.Mutex
	attempt   uint64
	session   *Session
	available *Session
}

// NewClient creates a client for local.
// If password is not empty it is used whenever the server asks for
// credentials, otherwise the NeedCredentials handler is called.
func NewClient(local jid.JID, password string, opts Options, h Handlers) (*Client, error) {
	opts = opts.withDefaults()
	if err := registerCore(opts.Registry); err != nil {
		return nil, err
	}
	if err := ping.Register(opts.Registry); err != nil && !errors.Is(err, codec.ErrDuplicate) {
		return nil, err
	}
	c := &Client{
		local:    local,
		password: password,
		opts:     opts,
		h:        h,
		log:      opts.LoggerFactory.NewLogger("client"),
		connector: &dial.Connector{
			Resolver:      opts.Resolver,
			Dialer:        opts.Dialer,
			Timeout:       opts.ConnectTimeout,
			LoggerFactory: opts.LoggerFactory,
		},
	}
	c.router = NewIQRouter(c, opts)
	c.router.AddHandler(IQHandlerFunc(func(r *IQRouter, iq stanza.IQ) bool {
		if !ping.Is(iq) {
			return false
		}
		if err := r.Reply(iq.Result()); err != nil {
			c.log.Debugf("answering ping from %s: %v", iq.From, err)
		}
		return true
	}))
	return c, nil
}

// Connect starts connecting to the server of the client's domain.
// It returns once the attempt has started; success is reported by the
// Connected handler and failure by the Error handler.
//
// Ctx only carries values: canceling it after Connect returns has no effect.
// Dialing and then the negotiation of the session are each bounded by
// Options.ConnectTimeout, and Disconnect stops the attempt at any point.
func (c *Client) Connect(ctx context.Context) error {
	return c.connect(ctx, dial.Target{Domain: c.local.Domainpart()})
}

// ConnectTo is like Connect but it connects to host, which may contain a
// port, instead of looking up the client's domain.
func (c *Client) ConnectTo(ctx context.Context, host string) error {
	return c.connect(ctx, dial.Target{Host: host})
}

func (c *Client) connect(ctx context.Context, target dial.Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return ErrConnected
	}
	// The lock is held until the attempt is recorded so that the result can
	// not be checked against a stale attempt.
	id, err := c.connector.Start(ctx, target, func(res dial.Result) {
		c.connected(ctx, res)
	})
	if err != nil {
		return err
	}
	c.attempt = id
	return nil
}

// connected is called by the connector with the result of an attempt.
func (c *Client) connected(ctx context.Context, res dial.Result) {
	c.mu.Lock()
	if res.Attempt != c.attempt {
		c.mu.Unlock()
		if res.Conn != nil {
			c.log.Warnf("closing connection to %s from a stale attempt", res.Endpoint)
			/* #nosec */
			res.Conn.Close()
		}
		return
	}
	c.attempt = 0
	if res.Err != nil {
		c.mu.Unlock()
		c.log.Warnf("connecting failed: %v", res.Err)
		c.reportError(newError(ConnectionError, res.Err))
		return
	}
	c.log.Debugf("connected to %s", res.Endpoint)

	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	var sess *Session
	sess, err := NewSession(res.Conn, c.local, c.opts, SessionHandlers{
		StateChanged: func(state SessionState) {
			if state == Initialized {
				cancel()
			}
			c.stateChanged(sess, state)
		},
		NeedCredentials: func() {
			if c.password != "" {
				sess.SendCredentials(c.password)
				return
			}
			if c.h.NeedCredentials != nil {
				c.h.NeedCredentials()
			}
		},
		Stanza: func(st stanza.Stanza) {
			c.dispatch(sess, st)
		},
		StanzaAcked: c.h.StanzaAcked,
		Finished: func(err error) {
			cancel()
			c.finished(sess, err)
		},
		DataRead:    c.h.DataRead,
		DataWritten: c.h.DataWritten,
	})
	if err != nil {
		cancel()
		c.mu.Unlock()
		/* #nosec */
		res.Conn.Close()
		c.reportError(newError(UnknownError, err))
		return
	}
	c.session = sess
	c.mu.Unlock()
	sess.Start(ctx)
}

func (c *Client) current(sess *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session == sess
}

func (c *Client) stateChanged(sess *Session, state SessionState) {
	if state != Initialized {
		return
	}
	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	c.available = sess
	c.mu.Unlock()

	if c.h.AvailableChanged != nil {
		c.h.AvailableChanged(true)
	}
	if c.h.Connected != nil {
		c.h.Connected()
	}
}

func (c *Client) dispatch(sess *Session, st stanza.Stanza) {
	// Stanzas still being read by a session the application has disconnected
	// are dropped.
	if !c.current(sess) {
		return
	}
	if c.h.Stanza != nil {
		c.h.Stanza(st)
	}
	switch v := st.(type) {
	case stanza.Message:
		if c.h.Message != nil {
			c.h.Message(v)
		}
	case stanza.Presence:
		if c.h.Presence != nil {
			c.h.Presence(v)
		}
	case stanza.IQ:
		if c.h.IQ != nil {
			c.h.IQ(v)
		}
		c.router.HandleIQ(v)
	}
}

func (c *Client) finished(sess *Session, err error) {
	c.mu.Lock()
	if c.session == sess {
		c.session = nil
	}
	wasAvailable := c.available == sess
	if wasAvailable {
		c.available = nil
	}
	c.mu.Unlock()

	c.router.Abort()
	if wasAvailable && c.h.AvailableChanged != nil {
		c.h.AvailableChanged(false)
	}
	var e *Error
	if errors.As(err, &e) {
		c.reportError(e)
	}
}

func (c *Client) reportError(e *Error) {
	if c.h.Error != nil {
		c.h.Error(e)
	}
}

// Disconnect abandons a connection attempt in flight and finishes the
// current session.
// Outstanding requests are aborted and no stanza handlers are called for the
// session once Disconnect returns, other than those already running.
func (c *Client) Disconnect() {
	c.connector.Abandon()
	c.mu.Lock()
	c.attempt = 0
	sess := c.session
	c.session = nil
	c.mu.Unlock()

	if sess != nil {
		sess.Finish()
	}
	c.router.Abort()
}

// Send transmits a stanza on the current session.
// It returns ErrNotConnected if there is no session and ErrNotInitialized if
// the session is still negotiating.
func (c *Client) Send(st stanza.Stanza) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}
	return sess.Send(st)
}

// SendIQ sends a request and waits for the response.
// See IQRouter.Request.
func (c *Client) SendIQ(ctx context.Context, iq stanza.IQ) (stanza.IQ, error) {
	return c.router.Request(ctx, iq)
}

// SendRequest sends a request and calls f with its outcome.
// See IQRouter.Send.
func (c *Client) SendRequest(iq stanza.IQ, timeout time.Duration, f ResponseFunc) (string, error) {
	return c.router.Send(iq, timeout, f)
}

// IQRouter returns the router used to correlate requests and answer incoming
// requests.
func (c *Client) IQRouter() *IQRouter {
	return c.router
}

// SendCredentials answers a NeedCredentials call.
func (c *Client) SendCredentials(password string) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		sess.SendCredentials(password)
	}
}

// IsAvailable reports whether the client has an initialized session.
func (c *Client) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available != nil && c.available == c.session
}

// State returns the state of the current session.
// Without a session it is Connecting while an attempt is in flight and
// Finished otherwise.
func (c *Client) State() SessionState {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		return sess.State()
	}
	if c.connector.InProgress() {
		return Connecting
	}
	return Finished
}

// JID returns the address of the client, including the resource bound by the
// server once a session is initialized.
func (c *Client) JID() jid.JID {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		return sess.LocalAddr()
	}
	return c.local
}

// StreamManagementEnabled reports whether the current session has stream
// management enabled.
func (c *Client) StreamManagementEnabled() bool {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	return sess != nil && sess.StreamManagementEnabled()
}

// PeerCertificates returns the certificate chain of the server of the current
// session, if TLS was negotiated.
func (c *Client) PeerCertificates() []*x509.Certificate {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.PeerCertificates()
}
