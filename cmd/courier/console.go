// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"mellium.im/courier/jid"
	"mellium.im/courier/ping"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xtime"
)

const consoleHelp = `commands:
  msg <jid> <text>  send a chat message
  ping <jid>        ping an entity and print the round trip time
  time <jid>        ask an entity for its local time
  raw               toggle printing of the raw XML stream
  quit              disconnect and exit`

var errQuit = errors.New("quit")

// sender is the part of the client used by the console.
type sender interface {
	Send(stanza.Stanza) error
	SendIQ(context.Context, stanza.IQ) (stanza.IQ, error)
}

// console runs the interactive commands of the connect command.
type console struct {
	client         sender
	out            io.Writer
	raw            atomic.Bool
	requestTimeout time.Duration
}

func (c *console) timeout() time.Duration {
	if c.requestTimeout == 0 {
		return 30 * time.Second
	}
	return c.requestTimeout
}

// rawData returns a handler printing the stream in one direction when raw
// output is on.
func (c *console) rawData(prefix string) func([]byte) {
	return func(p []byte) {
		if c.raw.Load() {
			fmt.Fprintf(c.out, "%s %s\n", prefix, p)
		}
	}
}

// exec runs a single command line.
// It returns errQuit when the console should exit.
func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		fmt.Fprintln(c.out, consoleHelp)
	case "raw":
		on := !c.raw.Load()
		c.raw.Store(on)
		fmt.Fprintf(c.out, "raw output %s\n", map[bool]string{true: "on", false: "off"}[on])
	case "msg":
		if len(args) < 2 {
			return errors.New("usage: msg <jid> <text>")
		}
		to, err := jid.Parse(args[0])
		if err != nil {
			return err
		}
		// Keep the spacing of the message as typed.
		text := strings.TrimSpace(strings.TrimSpace(line)[len(cmd):])
		text = strings.TrimSpace(text[len(args[0]):])
		return c.client.Send(stanza.NewMessage(to, stanza.ChatMessage, text))
	case "ping":
		if len(args) != 1 {
			return errors.New("usage: ping <jid>")
		}
		to, err := jid.Parse(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, c.timeout())
		defer cancel()
		start := time.Now()
		if _, err := c.client.SendIQ(ctx, ping.IQ(to)); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "pong from %s in %s\n", to, time.Since(start).Round(time.Millisecond))
	case "time":
		if len(args) != 1 {
			return errors.New("usage: time <jid>")
		}
		to, err := jid.Parse(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, c.timeout())
		defer cancel()
		t, err := xtime.Get(ctx, c.client, to)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "time at %s is %s\n", to, t.Format(time.RFC1123Z))
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

// run reads commands until quit, EOF or ctx is done.
func (c *console) run(ctx context.Context, rl *readline.Instance) {
	fmt.Fprintln(c.out, consoleHelp)
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return
		}
		switch err := c.exec(ctx, line); {
		case errors.Is(err, errQuit):
			return
		case err != nil:
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}
