// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/courier/ping"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xtime"
)

type fakeSender struct {
	sent  []stanza.Stanza
	iqs   []stanza.IQ
	iqErr error
}

func (f *fakeSender) Send(st stanza.Stanza) error {
	f.sent = append(f.sent, st)
	return nil
}

func (f *fakeSender) SendIQ(_ context.Context, iq stanza.IQ) (stanza.IQ, error) {
	f.iqs = append(f.iqs, iq)
	if f.iqErr != nil {
		return stanza.IQ{}, f.iqErr
	}
	return iq.Result(), nil
}

func TestConsoleMessage(t *testing.T) {
	for i, tc := range [...]struct {
		line string
		to   string
		body string
	}{
		0: {line: "msg juliet@example.com hi", to: "juliet@example.com", body: "hi"},
		1: {line: "  msg   juliet@example.com/balcony  wherefore  art thou ", to: "juliet@example.com/balcony", body: "wherefore  art thou"},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			f := &fakeSender{}
			c := &console{client: f, out: &bytes.Buffer{}}
			require.NoError(t, c.exec(context.Background(), tc.line))
			require.Len(t, f.sent, 1)
			msg, ok := f.sent[0].(stanza.Message)
			require.True(t, ok)
			assert.Equal(t, stanza.ChatMessage, msg.Type)
			assert.Equal(t, tc.to, msg.To.String())
			assert.Equal(t, tc.body, msg.Body())
		})
	}
}

func TestConsolePing(t *testing.T) {
	f := &fakeSender{}
	out := &bytes.Buffer{}
	c := &console{client: f, out: out}
	require.NoError(t, c.exec(context.Background(), "ping example.net"))
	require.Len(t, f.iqs, 1)
	assert.True(t, ping.Is(f.iqs[0]))
	assert.Contains(t, out.String(), "pong from example.net")

	f.iqErr = errors.New("timed out")
	assert.ErrorIs(t, c.exec(context.Background(), "ping example.net"), f.iqErr)
}

func TestConsoleTime(t *testing.T) {
	f := &fakeSender{}
	c := &console{client: f, out: &bytes.Buffer{}}
	assert.ErrorIs(t, c.exec(context.Background(), "time example.net"), xtime.ErrNoTime)
	require.Len(t, f.iqs, 1)
	assert.Equal(t, xtime.Request{}, f.iqs[0].Payload(xtime.Time{}.XMLName()))
}

func TestConsoleRaw(t *testing.T) {
	out := &bytes.Buffer{}
	c := &console{client: &fakeSender{}, out: out}
	written := c.rawData(">>")

	written([]byte("<r/>"))
	assert.Empty(t, out.String())

	require.NoError(t, c.exec(context.Background(), "raw"))
	out.Reset()
	written([]byte("<r/>"))
	assert.Equal(t, ">> <r/>\n", out.String())

	require.NoError(t, c.exec(context.Background(), "raw"))
	out.Reset()
	written([]byte("<r/>"))
	assert.Empty(t, out.String())
}

func TestConsoleErrors(t *testing.T) {
	for i, line := range [...]string{
		0: "msg juliet@example.com",
		1: "msg @example.com hi",
		2: "ping",
		3: "ping a b",
		4: "dance",
		5: "time",
		6: "time example.net",
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			f := &fakeSender{}
			c := &console{client: f, out: &bytes.Buffer{}}
			err := c.exec(context.Background(), line)
			assert.Error(t, err)
			assert.NotErrorIs(t, err, errQuit)
			assert.Empty(t, f.sent)
		})
	}
}

func TestConsoleQuit(t *testing.T) {
	c := &console{client: &fakeSender{}, out: &bytes.Buffer{}}
	assert.ErrorIs(t, c.exec(context.Background(), "quit"), errQuit)
	assert.NoError(t, c.exec(context.Background(), "   "))
}
