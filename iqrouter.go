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

	"mellium.im/courier/jid"
	"mellium.im/courier/stanza"
)

var errNotRequest = errors.New("courier: IQ is not a get or set request")

// Sender transmits stanzas.
// It is satisfied by *Session and *Client.
type Sender interface {
	Send(stanza.Stanza) error
}

// ResponseFunc receives the outcome of a request.
// If the response was an error IQ, err is the stanza.Error it carried.
// If the request timed out or was aborted, resp is the zero IQ and err is
// ErrTimeout or ErrAborted.
type ResponseFunc func(resp stanza.IQ, err error)

// IQHandler answers IQ requests.
type IQHandler interface {
	// HandleIQ reports whether it handled iq.
	// Handlers that handle a request must reply to it using r.
	HandleIQ(r *IQRouter, iq stanza.IQ) bool
}

// IQHandlerFunc is an adapter to allow the use of ordinary functions as IQ
// handlers.
// If f is a function with the appropriate signature, IQHandlerFunc(f) is an
// IQHandler that calls f.
type IQHandlerFunc func(r *IQRouter, iq stanza.IQ) bool

// HandleIQ calls f(r, iq).
func (f IQHandlerFunc) HandleIQ(r *IQRouter, iq stanza.IQ) bool {
	return f(r, iq)
}

type pendingIQ struct {
	to    jid.JID
	f     ResponseFunc
	timer Timer
}

// IQRouter correlates IQ requests with their responses and dispatches
// incoming requests to handlers.
//
// Every request sent through the router is resolved exactly once: by its
// response, by its timeout, or by Abort.
// Response functions are called without any lock held, possibly from a timer
// goroutine.
type IQRouter struct {
	sender  Sender
	ids     IDGenerator
	timers  TimerFactory
	timeout time.Duration
	log     logging.LeveledLogger

	mu       sync.Mutex
	pending  map[string]*pendingIQ
	handlers []IQHandler
}

// NewIQRouter creates a router that sends stanzas with sender.
// The IDGenerator, Timers, RequestTimeout and LoggerFactory options are used.
func NewIQRouter(sender Sender, opts Options) *IQRouter {
	opts = opts.withDefaults()
	return &IQRouter{
		sender:  sender,
		ids:     opts.IDGenerator,
		timers:  opts.Timers,
		timeout: opts.RequestTimeout,
		log:     opts.LoggerFactory.NewLogger("iqrouter"),
		pending: make(map[string]*pendingIQ),
	}
}

// AddHandler adds a handler for incoming requests.
// Handlers are tried in the order they were added.
func (r *IQRouter) AddHandler(h IQHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Send transmits a get or set IQ with a newly generated id and calls f once
// with its outcome.
// Any id already set on iq is replaced.
// If timeout is zero the router's default timeout is used.
//
// If the IQ cannot be sent, the error is returned and f is never called.
// Send is safe for concurrent use by multiple goroutines.
func (r *IQRouter) Send(iq stanza.IQ, timeout time.Duration, f ResponseFunc) (string, error) {
	if !iq.IsRequest() {
		return "", errNotRequest
	}
	if timeout <= 0 {
		timeout = r.timeout
	}

	p := &pendingIQ{to: iq.To, f: f}
	r.mu.Lock()
	var id string
	for {
		id = r.ids.NewID()
		if _, ok := r.pending[id]; !ok {
			break
		}
		r.log.Debugf("regenerating id %s which is already in use", id)
	}
	r.pending[id] = p
	p.timer = r.timers.AfterFunc(timeout, func() {
		if r.remove(id, p) {
			r.log.Debugf("request %s timed out", id)
			p.f(stanza.IQ{}, ErrTimeout)
		}
	})
	r.mu.Unlock()

	iq.ID = id
	if err := r.sender.Send(iq); err != nil {
		r.remove(id, p)
		return "", err
	}
	return id, nil
}

// Request is like Send but it blocks until the response is received or ctx
// is done.
// If the response is an error IQ, the stanza.Error it carried is returned
// along with the response.
func (r *IQRouter) Request(ctx context.Context, iq stanza.IQ) (stanza.IQ, error) {
	type result struct {
		iq  stanza.IQ
		err error
	}
	c := make(chan result, 1)
	id, err := r.Send(iq, 0, func(resp stanza.IQ, err error) {
		c <- result{iq: resp, err: err}
	})
	if err != nil {
		return stanza.IQ{}, err
	}
	select {
	case res := <-c:
		return res.iq, res.err
	case <-ctx.Done():
		r.mu.Lock()
		p := r.pending[id]
		r.mu.Unlock()
		if p != nil {
			r.remove(id, p)
		}
		return stanza.IQ{}, ctx.Err()
	}
}

// Reply sends a response to a request.
func (r *IQRouter) Reply(resp stanza.IQ) error {
	return r.sender.Send(resp)
}

// remove deletes the entry for id if it is still p.
// It reports whether the entry was removed.
func (r *IQRouter) remove(id string, p *pendingIQ) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[id] != p {
		return false
	}
	delete(r.pending, id)
	if p.timer != nil {
		p.timer.Stop()
	}
	return true
}

// HandleIQ processes an incoming IQ.
//
// Results and errors resolve the matching pending request; responses that
// match no pending request are ignored.
// Requests are passed to the handlers and answered with
// feature-not-implemented if none of them handles it.
func (r *IQRouter) HandleIQ(iq stanza.IQ) {
	if iq.IsRequest() {
		r.mu.Lock()
		handlers := r.handlers
		r.mu.Unlock()
		for _, h := range handlers {
			if h.HandleIQ(r, iq) {
				return
			}
		}
		err := r.Reply(iq.Error(stanza.Error{
			Type:      stanza.Cancel,
			Condition: stanza.FeatureNotImplemented,
		}))
		if err != nil {
			r.log.Warnf("replying to unhandled request %s: %v", iq.ID, err)
		}
		return
	}

	r.mu.Lock()
	p, ok := r.pending[iq.ID]
	if ok && !p.to.IsZero() && !iq.From.IsZero() && !iq.From.Equal(p.to) {
		ok = false
	}
	r.mu.Unlock()
	if !ok || !r.remove(iq.ID, p) {
		r.log.Debugf("ignoring %s response %q with no pending request", iq.Type, iq.ID)
		return
	}

	var err error
	if iq.Type == stanza.ErrorIQ {
		se, found := iq.StanzaError()
		if !found {
			se = stanza.Error{Type: stanza.Cancel, Condition: stanza.UndefinedCondition}
		}
		err = se
	}
	p.f(iq, err)
}

// Pending returns the number of outstanding requests.
func (r *IQRouter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Abort resolves every outstanding request with ErrAborted.
func (r *IQRouter) Abort() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]*pendingIQ)
	r.mu.Unlock()

	for id, p := range pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		r.log.Debugf("aborting request %s", id)
		p.f(stanza.IQ{}, ErrAborted)
	}
}
