// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stack_test

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/courier/stack"
)

// xorLayer is a trivial transform used to tell encoded bytes from decoded
// ones.
type xorLayer struct {
	key byte
	cap stack.Capability
}

func (l xorLayer) Capability() stack.Capability { return l.cap }

func (l xorLayer) Wrap(_ context.Context, below net.Conn) (net.Conn, error) {
	return &xorConn{Conn: below, key: l.key}, nil
}

type xorConn struct {
	net.Conn
	key byte
}

func xor(p []byte, key byte) []byte {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b ^ key
	}
	return out
}

func (c *xorConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	copy(p, xor(p[:n], c.key))
	return n, err
}

func (c *xorConn) Write(p []byte) (int, error) {
	_, err := c.Conn.Write(xor(p, c.key))
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

type failLayer struct{}

var errWrap = errors.New("wrap failed")

func (failLayer) Capability() stack.Capability { return stack.Security }

func (failLayer) Wrap(context.Context, net.Conn) (net.Conn, error) { return nil, errWrap }

func TestAddLayerDrainsBufferedBytes(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()

	local, remote := net.Pipe()
	s := stack.New(local, stack.Config{})
	defer s.Close()

	// The plaintext element and the first bytes meant for the new layer arrive
	// in a single chunk.
	go func() {
		_, _ = remote.Write(append([]byte("<a/>"), xor([]byte("XYZ"), 0x20)...))
	}()
	for _, want := range []byte("<a/>") {
		b, err := s.ReadByte()
		require.NoError(t, err)
		require.Equal(t, want, b)
	}

	require.NoError(t, s.AddLayer(context.Background(), xorLayer{key: 0x20, cap: stack.Compression}))

	buf := make([]byte, 3)
	_, err := io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "XYZ", string(buf))

	got := make(chan []byte)
	go func() {
		p := make([]byte, 2)
		_, _ = io.ReadFull(remote, p)
		got <- p
	}()
	_, err = s.Write([]byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, xor([]byte("hi"), 0x20), <-got)
}

func TestLayersApplyInOrder(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()

	local, remote := net.Pipe()
	s := stack.New(local, stack.Config{})
	defer s.Close()

	require.NoError(t, s.AddLayer(context.Background(), xorLayer{key: 0x01, cap: stack.Security}))
	require.NoError(t, s.AddLayer(context.Background(), xorLayer{key: 0x10, cap: stack.Compression}))
	assert.Equal(t, 2, s.Len())

	go func() {
		_, _ = remote.Write(xor(xor([]byte("ok"), 0x10), 0x01))
	}()
	buf := make([]byte, 2)
	_, err := io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf))
}

func TestLayerLookup(t *testing.T) {
	local, _ := net.Pipe()
	s := stack.New(local, stack.Config{})
	defer s.Close()

	sec := xorLayer{key: 1, cap: stack.Security}
	comp := xorLayer{key: 2, cap: stack.Compression}
	comp2 := xorLayer{key: 3, cap: stack.Compression}
	for _, l := range []stack.Layer{sec, comp, comp2} {
		require.NoError(t, s.AddLayer(context.Background(), l))
	}
	assert.Equal(t, sec, s.Layer(stack.Security))
	assert.Equal(t, comp, s.Layer(stack.Compression))
	assert.Nil(t, s.Layer(stack.Keepalive))
}

func TestAddLayerError(t *testing.T) {
	local, _ := net.Pipe()
	s := stack.New(local, stack.Config{})
	defer s.Close()

	assert.ErrorIs(t, s.AddLayer(context.Background(), failLayer{}), errWrap)
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Layer(stack.Security))
}

type countingConn struct {
	net.Conn
	closes int32
}

func (c *countingConn) Close() error {
	atomic.AddInt32(&c.closes, 1)
	return c.Conn.Close()
}

func TestCloseOnce(t *testing.T) {
	local, _ := net.Pipe()
	conn := &countingConn{Conn: local}
	s := stack.New(conn, stack.Config{})
	require.NoError(t, s.AddLayer(context.Background(), xorLayer{cap: stack.Security}))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&conn.closes))

	_, err := s.Write([]byte("late"))
	assert.ErrorIs(t, err, stack.ErrClosed)
	assert.ErrorIs(t, s.AddLayer(context.Background(), xorLayer{}), stack.ErrClosed)
}

func TestObservers(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()

	var read, written []byte
	local, remote := net.Pipe()
	s := stack.New(local, stack.Config{
		OnRead:  func(p []byte) { read = append(read, p...) },
		OnWrite: func(p []byte) { written = append(written, p...) },
	})
	defer s.Close()

	go func() {
		_, _ = remote.Write([]byte("in"))
		_, _ = io.ReadFull(remote, make([]byte, 3))
	}()
	buf := make([]byte, 2)
	_, err := io.ReadFull(s, buf)
	require.NoError(t, err)
	_, err = s.Write([]byte("out"))
	require.NoError(t, err)

	assert.Equal(t, "in", string(read))
	assert.Equal(t, "out", string(written))
}

func TestObserverSkipsRefedBytes(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()

	var read []byte
	local, remote := net.Pipe()
	s := stack.New(local, stack.Config{
		OnRead: func(p []byte) { read = append(read, p...) },
	})
	defer s.Close()

	encoded := xor([]byte("XYZ"), 0x20)
	go func() {
		_, _ = remote.Write(append([]byte("<a/>"), encoded...))
	}()
	for range "<a/>" {
		_, err := s.ReadByte()
		require.NoError(t, err)
	}
	require.NoError(t, s.AddLayer(context.Background(), xorLayer{key: 0x20, cap: stack.Security}))
	assert.Equal(t, "<a/>", string(read))

	buf := make([]byte, 3)
	_, err := io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "<a/>XYZ", string(read))
	assert.NotContains(t, string(read), string(encoded))
}

func TestCapabilityString(t *testing.T) {
	for c, want := range map[stack.Capability]string{
		stack.Custom:      "custom",
		stack.Security:    "security",
		stack.Compression: "compression",
		stack.Keepalive:   "keepalive",
	} {
		assert.Equal(t, want, c.String())
	}
}
