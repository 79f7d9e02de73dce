// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package dial discovers and connects to XMPP client endpoints.
//
// A Connector runs at most one connection attempt at a time.
// Each attempt is tagged with an identity and a connection produced by an
// attempt that was abandoned in the meantime is closed instead of being
// delivered.
package dial // import "mellium.im/courier/dial"

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"mellium.im/courier/internal/discover"
)

// DefaultTimeout bounds a whole connection attempt, measured from the call to
// Start.
const DefaultTimeout = 60 * time.Second

// Errors returned by the Connector.
var (
	ErrConnectInProgress = errors.New("dial: a connection attempt is already in progress")
	ErrNoTarget          = errors.New("dial: no domain or host to connect to")
)

// Resolver looks up SRV and address records.
// It is satisfied by *net.Resolver.
type Resolver = discover.Resolver

// Endpoint is a single candidate address.
type Endpoint = discover.Endpoint

// DNSResolver is a Resolver that queries a single DNS server directly.
type DNSResolver = discover.DNSResolver

// ContextDialer opens transport connections.
// It is satisfied by *net.Dialer.
type ContextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Target names what to connect to.
type Target struct {
	// Domain is looked up using SRV records, falling back to its address
	// records.
	Domain string

	// Host bypasses SRV lookup if set. It may contain a port.
	Host string
}

func (t Target) String() string {
	if t.Host != "" {
		return t.Host
	}
	return t.Domain
}

// Result is the outcome of a connection attempt.
type Result struct {
	// Attempt is the identity returned by Start.
	Attempt  uint64
	Conn     net.Conn
	Endpoint Endpoint
	Err      error
}

// Connector turns a domain into a live transport connection.
// The zero value is ready to use.
type Connector struct {
	// Resolver is used to find candidate endpoints.
	// If nil, net.DefaultResolver is used.
	Resolver Resolver

	// Dialer opens the connection to each candidate.
	// If nil, a zero net.Dialer is used.
	Dialer ContextDialer

	// Timeout bounds the whole attempt. If zero, DefaultTimeout is used.
	Timeout time.Duration

	// LoggerFactory creates the "connector" logger.
	// If nil, logging.NewDefaultLoggerFactory is used.
	LoggerFactory logging.LoggerFactory

	mu       sync.Mutex
	log      logging.LeveledLogger
	attempt  uint64
	inFlight bool
	cancel   context.CancelFunc
}

func (c *Connector) logger() logging.LeveledLogger {
	if c.log == nil {
		f := c.LoggerFactory
		if f == nil {
			f = logging.NewDefaultLoggerFactory()
		}
		c.log = f.NewLogger("connector")
	}
	return c.log
}

func (c *Connector) resolver() Resolver {
	if c.Resolver == nil {
		return net.DefaultResolver
	}
	return c.Resolver
}

// Candidates returns the ordered endpoints for target without connecting.
func (c *Connector) Candidates(ctx context.Context, target Target) ([]Endpoint, error) {
	return candidates(ctx, c.resolver(), target)
}

func candidates(ctx context.Context, r Resolver, target Target) ([]Endpoint, error) {
	switch {
	case target.Host != "":
		return discover.HostCandidates(ctx, r, target.Host)
	case target.Domain != "":
		return discover.Candidates(ctx, r, target.Domain)
	}
	return nil, ErrNoTarget
}

// InProgress reports whether an attempt is currently in flight.
func (c *Connector) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Start begins a connection attempt and returns its identity.
// Done is called exactly once from another goroutine with the result, unless
// the attempt is abandoned first, in which case it is never called.
//
// Starting a second attempt while one is in flight returns
// ErrConnectInProgress; callers must call Abandon first.
func (c *Connector) Start(ctx context.Context, target Target, done func(Result)) (uint64, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return 0, ErrConnectInProgress
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	c.attempt++
	id := c.attempt
	c.inFlight = true
	c.cancel = cancel
	log := c.logger()
	r := c.resolver()
	d := c.Dialer
	if d == nil {
		d = &net.Dialer{}
	}
	c.mu.Unlock()

	log.Debugf("attempt %d: connecting to %s", id, target)
	go func() {
		res := run(ctx, log, r, d, id, target)
		c.finish(log, res, done)
	}()
	return id, nil
}

// Abandon invalidates the attempt in flight, if any.
// A connection it produces later is closed.
func (c *Connector) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inFlight {
		return
	}
	c.logger().Debugf("attempt %d: abandoned", c.attempt)
	c.inFlight = false
	c.attempt++
	c.cancel()
}

// Connect is a synchronous form of Start.
func (c *Connector) Connect(ctx context.Context, target Target) (net.Conn, Endpoint, error) {
	results := make(chan Result, 1)
	_, err := c.Start(ctx, target, func(r Result) {
		results <- r
	})
	if err != nil {
		return nil, Endpoint{}, err
	}
	select {
	case r := <-results:
		return r.Conn, r.Endpoint, r.Err
	case <-ctx.Done():
		c.Abandon()
		return nil, Endpoint{}, ctx.Err()
	}
}

func run(ctx context.Context, log logging.LeveledLogger, r Resolver, d ContextDialer, id uint64, target Target) Result {
	res := Result{Attempt: id}
	eps, err := candidates(ctx, r, target)
	if err != nil {
		res.Err = fmt.Errorf("dial: resolving %s: %w", target, err)
		return res
	}
	var lastErr error
	for _, ep := range eps {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		conn, err := d.DialContext(ctx, "tcp", ep.Addr)
		if err != nil {
			log.Debugf("attempt %d: candidate %s failed: %v", id, ep, err)
			lastErr = err
			continue
		}
		res.Conn = conn
		res.Endpoint = ep
		return res
	}
	res.Err = fmt.Errorf("dial: connecting to %s: %w", target, lastErr)
	return res
}

func (c *Connector) finish(log logging.LeveledLogger, res Result, done func(Result)) {
	c.mu.Lock()
	if !c.inFlight || c.attempt != res.Attempt {
		c.mu.Unlock()
		if res.Conn != nil {
			log.Warnf("attempt %d: closing connection to %s from abandoned attempt", res.Attempt, res.Endpoint)
			/* #nosec */
			res.Conn.Close()
		}
		return
	}
	c.inFlight = false
	c.cancel()
	c.mu.Unlock()

	if done != nil {
		done(res)
	}
}
