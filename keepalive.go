// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"context"
	"net"
	"sync"
	"time"

	"mellium.im/courier/stack"
)

// KeepaliveLayer writes a single space whenever nothing has been written for
// an interval.
// Whitespace between top level elements is ignored by the server, so this
// keeps idle connections open through NATs and proxies.
type KeepaliveLayer struct {
	Interval time.Duration
	Timers   TimerFactory
}

// Capability satisfies stack.Layer.
func (KeepaliveLayer) Capability() stack.Capability {
	return stack.Keepalive
}

// Wrap satisfies stack.Layer.
func (l KeepaliveLayer) Wrap(_ context.Context, below net.Conn) (net.Conn, error) {
	timers := l.Timers
	if timers == nil {
		timers = SystemTimers
	}
	c := &keepaliveConn{Conn: below, interval: l.Interval, timers: timers}
	c.mu.Lock()
	c.arm()
	c.mu.Unlock()
	return c, nil
}

type keepaliveConn struct {
	net.Conn
	interval time.Duration
	timers   TimerFactory

	mu     sync.Mutex
	timer  Timer
	closed bool
}

// arm must be called with mu held.
func (c *keepaliveConn) arm() {
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.closed || c.interval <= 0 {
		return
	}
	c.timer = c.timers.AfterFunc(c.interval, c.ping)
}

func (c *keepaliveConn) ping() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, err := c.Conn.Write([]byte{' '}); err != nil {
		return
	}
	c.arm()
}

func (c *keepaliveConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.Conn.Write(p)
	c.arm()
	return n, err
}

func (c *keepaliveConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	return c.Conn.Close()
}
