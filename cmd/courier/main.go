// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The courier command is a small XMPP client for trying out servers.
//
// Usage:
//
//	courier [--config file] connect [options]
//	courier lookup <domain>
//	courier certs <file>
//
// The connect command reads settings from a YAML file such as:
//
//	jid: me@example.net/laptop
//	tls: required
//	ids: uuid
//	ping_interval: 60s
//
// and opens an interactive console.
// The password may be given in the file, with the COURIER_PASSWORD environment
// variable, or typed when connecting.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"mellium.im/courier"
	"mellium.im/courier/codec"
	"mellium.im/courier/delay"
	"mellium.im/courier/dial"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xtime"
)

func main() {
	app := &cli.App{
		Name:  "courier",
		Usage: "Connect to XMPP servers and inspect their setup",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load settings from YAML `FILE`",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log debug output",
			},
		},
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			connectCommand(),
			lookupCommand(),
			certsCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg := exitCoder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitCoder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

var dnsServerFlag = &cli.StringFlag{
	Name:  "dns-server",
	Usage: "Query the DNS server at `HOST:PORT` instead of the system resolver",
}

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Log in and open an interactive console",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "jid", Aliases: []string{"j"}, Usage: "Log in as `JID`"},
			&cli.StringFlag{Name: "password", EnvVars: []string{"COURIER_PASSWORD"}, Usage: "Password"},
			&cli.StringFlag{Name: "host", Usage: "Connect to `HOST[:PORT]` instead of looking up the domain"},
			dnsServerFlag,
			&cli.StringFlag{Name: "tls", Usage: "TLS policy: when-available, never or required"},
			&cli.StringFlag{Name: "ca-file", Usage: "Trust the certificates in PEM `FILE`"},
			&cli.BoolFlag{Name: "allow-plain", Usage: "Allow PLAIN authentication without TLS"},
			&cli.BoolFlag{Name: "compression", Usage: "Use stream compression if offered"},
			&cli.StringFlag{Name: "ids", Usage: "Request identifier format: random or uuid"},
			&cli.DurationFlag{Name: "ping-interval", Usage: "Send whitespace pings when idle for `DURATION`"},
		},
		Action: connectAction,
	}
}

func connectAction(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	cfg.overlay(c)
	addr, opts, err := cfg.options()
	if err != nil {
		return cli.Exit(err, 2)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "courier> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	logger := newZap(rl.Stderr(), c.Bool("verbose"))
	/* #nosec */
	defer logger.Sync()
	opts.LoggerFactory = zapFactory{log: logger}
	opts.Registry = codec.NewRegistry()
	for _, register := range []func(*codec.Registry) error{delay.Register, xtime.Register} {
		if err := register(opts.Registry); err != nil {
			return err
		}
	}

	password := cfg.Password
	if password == "" {
		p, err := rl.ReadPassword("password: ")
		if err != nil {
			return err
		}
		password = string(p)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	con := &console{out: rl.Stdout()}
	var client *courier.Client
	client, err = courier.NewClient(addr, password, opts, courier.Handlers{
		Connected: func() {
			fmt.Fprintf(con.out, "connected as %s\n", client.JID())
		},
		AvailableChanged: func(available bool) {
			if !available {
				fmt.Fprintln(con.out, "disconnected")
			}
		},
		Message: func(m stanza.Message) {
			body := m.Body()
			if body == "" {
				return
			}
			if d, ok := delay.Of(m); ok {
				fmt.Fprintf(con.out, "[%s] %s: %s\n", d.Time.Local().Format(time.Stamp), m.From, body)
				return
			}
			fmt.Fprintf(con.out, "%s: %s\n", m.From, body)
		},
		Error: func(e *courier.Error) {
			logger.Error("session ended", zap.Stringer("kind", e.Kind), zap.Error(e))
		},
		DataRead:    con.rawData("<<"),
		DataWritten: con.rawData(">>"),
	})
	if err != nil {
		return err
	}
	con.client = client
	client.IQRouter().AddHandler(xtime.Handler{})
	defer client.Disconnect()

	if cfg.Host != "" {
		err = client.ConnectTo(ctx, cfg.Host)
	} else {
		err = client.Connect(ctx)
	}
	if err != nil {
		return err
	}
	con.run(ctx, rl)
	return nil
}

func lookupCommand() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "List the endpoints a client would try for a domain",
		ArgsUsage: "<domain>",
		Flags:     []cli.Flag{dnsServerFlag},
		Action: func(c *cli.Context) error {
			domain := c.Args().First()
			if domain == "" {
				return cli.Exit("usage: courier lookup <domain>", 2)
			}
			connector := &dial.Connector{
				LoggerFactory: zapFactory{log: newZap(c.App.ErrWriter, c.Bool("verbose"))},
			}
			if server := c.String("dns-server"); server != "" {
				connector.Resolver = &dial.DNSResolver{Server: server}
			}
			ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
			defer cancel()
			eps, err := connector.Candidates(ctx, dial.Target{Domain: domain})
			if err != nil {
				return cli.Exit(err, 1)
			}
			for i, ep := range eps {
				fmt.Fprintf(c.App.Writer, "%d: %s\n", i, ep)
			}
			return nil
		},
	}
}
