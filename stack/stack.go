// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stack implements an ordered pipeline of stream layers between a
// transport connection and the XML stream.
//
// Layers are added above the current top at any time and are never removed.
// Data read from the transport passes through every layer from the bottom up
// and data written passes through them from the top down.
//
// A Stack implements io.ByteReader so that an XML decoder reading from it does
// not buffer data of its own.
// When a layer is added, bytes that were already pulled out of the old top but
// not yet consumed are fed to the new layer before anything else, which allows
// a security or compression layer to start at an exact byte offset.
package stack // import "mellium.im/courier/stack"

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/pion/logging"
)

// ErrClosed is returned when adding a layer to a closed stack.
var ErrClosed = errors.New("stack: use of closed stack")

// Capability tags a layer so that it can be found again later.
type Capability uint8

// A list of layer capabilities.
const (
	Custom Capability = iota
	Security
	Compression
	Keepalive
)

func (c Capability) String() string {
	switch c {
	case Security:
		return "security"
	case Compression:
		return "compression"
	case Keepalive:
		return "keepalive"
	}
	return "custom"
}

// Layer is a bidirectional transform.
//
// Wrap is called once when the layer is added.
// Below is a connection backed by the layer beneath it, and the returned
// connection is what the layers above see.
// Closing below is a no-op; the stack closes the transport itself.
type Layer interface {
	Capability() Capability
	Wrap(ctx context.Context, below net.Conn) (net.Conn, error)
}

// Config configures a Stack.
type Config struct {
	// OnRead and OnWrite observe the decoded data at the top of the stack.
	// OnRead sees data once it is consumed, so bytes that are handed to a new
	// layer undecoded are never reported as read.
	OnRead  func([]byte)
	OnWrite func([]byte)

	// LoggerFactory creates the "stack" logger.
	// If nil, logging.NewDefaultLoggerFactory is used.
	LoggerFactory logging.LoggerFactory
}

type entry struct {
	layer Layer
	conn  net.Conn
}

// Stack is a pipeline of layers over a transport.
// Reads and AddLayer must come from a single goroutine; writes may be
// concurrent.
type Stack struct {
	transport net.Conn
	cfg       Config
	log       logging.LeveledLogger

	wmu    sync.Mutex
	top    net.Conn
	r      *bufio.Reader
	layers []entry
	closed bool

	// seen holds consumed bytes not yet passed to OnRead.
	seen []byte

	closeOnce sync.Once
	closeErr  error
}

// New creates a stack with only the transport.
func New(transport net.Conn, cfg Config) *Stack {
	f := cfg.LoggerFactory
	if f == nil {
		f = logging.NewDefaultLoggerFactory()
	}
	s := &Stack{
		transport: transport,
		cfg:       cfg,
		log:       f.NewLogger("stack"),
		top:       transport,
	}
	s.r = bufio.NewReader(transport)
	return s
}

// Transport returns the connection at the bottom of the stack.
func (s *Stack) Transport() net.Conn {
	return s.transport
}

// AddLayer wraps the current top of the stack in l.
// Bytes that were buffered from the old top are read by l first.
func (s *Stack) AddLayer(ctx context.Context, l Layer) error {
	s.report()
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return ErrClosed
	}

	pending, err := s.r.Peek(s.r.Buffered())
	if err != nil {
		return err
	}
	below := &belowConn{
		Conn: s.transport,
		r:    io.MultiReader(bytes.NewReader(append([]byte(nil), pending...)), s.top),
		w:    s.top,
	}
	s.log.Debugf("adding %s layer above %d layers with %d bytes pending", l.Capability(), len(s.layers), len(pending))
	conn, err := l.Wrap(ctx, below)
	if err != nil {
		return err
	}
	s.layers = append(s.layers, entry{layer: l, conn: conn})
	s.top = conn
	s.r = bufio.NewReader(conn)
	return nil
}

// Layer returns the first layer, searching from the bottom, with the given
// capability or nil if there is none.
func (s *Stack) Layer(c Capability) Layer {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for _, e := range s.layers {
		if e.layer.Capability() == c {
			return e.layer
		}
	}
	return nil
}

// Len returns the number of layers above the transport.
func (s *Stack) Len() int {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return len(s.layers)
}

// Read reads decoded data from the top of the stack.
func (s *Stack) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.consumed(p[:n]...)
	return n, err
}

// ReadByte reads a single decoded byte from the top of the stack.
func (s *Stack) ReadByte() (byte, error) {
	b, err := s.r.ReadByte()
	if err == nil {
		s.consumed(b)
	}
	return b, err
}

// consumed records data read from the top of the stack and reports it once
// the read buffer is drained.
func (s *Stack) consumed(p ...byte) {
	if s.cfg.OnRead == nil || len(p) == 0 {
		return
	}
	s.seen = append(s.seen, p...)
	if s.r.Buffered() == 0 {
		s.report()
	}
}

func (s *Stack) report() {
	if len(s.seen) == 0 || s.cfg.OnRead == nil {
		return
	}
	p := s.seen
	s.seen = nil
	s.cfg.OnRead(p)
}

// Write writes p through every layer to the transport.
// Writes are never interleaved.
func (s *Stack) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n, err := s.top.Write(p)
	if s.cfg.OnWrite != nil && n > 0 {
		s.cfg.OnWrite(p[:n])
	}
	return n, err
}

// Close closes the transport and then every layer from the top down.
// Calling Close more than once is a no-op.
func (s *Stack) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.transport.Close()

		s.wmu.Lock()
		defer s.wmu.Unlock()
		s.closed = true
		for i := len(s.layers) - 1; i >= 0; i-- {
			if err := s.layers[i].conn.Close(); err != nil {
				s.log.Tracef("closing %s layer: %v", s.layers[i].layer.Capability(), err)
			}
		}
	})
	return s.closeErr
}

// belowConn is the view of the stack that a layer wraps.
// Addresses and deadlines are those of the transport.
type belowConn struct {
	net.Conn
	r io.Reader
	w io.Writer
}

func (c *belowConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *belowConn) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *belowConn) Close() error {
	return nil
}
