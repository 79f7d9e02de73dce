// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"mellium.im/courier"
	"mellium.im/courier/dial"
	"mellium.im/courier/jid"
)

// Config is the file format read by the connect and lookup commands.
// Flags given on the command line take precedence over the file.
type Config struct {
	JID      string `yaml:"jid"`
	Password string `yaml:"password"`

	// Host is connected to directly instead of looking up the domain.
	Host      string `yaml:"host"`
	DNSServer string `yaml:"dns_server"`

	TLS        string `yaml:"tls"`
	CAFile     string `yaml:"ca_file"`
	AllowPlain bool   `yaml:"allow_plain"`

	// Unset values keep the library defaults.
	Compression *bool `yaml:"compression"`
	Acks        *bool `yaml:"acks"`
	Resumption  bool  `yaml:"resumption"`

	// IDs selects the request identifier format: random (the default) or
	// uuid.
	IDs string `yaml:"ids"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	Lang           string        `yaml:"lang"`
}

// loadConfig reads the YAML file at path.
// An empty path yields an empty config.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return cfg, nil
}

// overlay replaces the values of cfg with the flags that were set.
func (cfg *Config) overlay(c *cli.Context) {
	if c.IsSet("jid") {
		cfg.JID = c.String("jid")
	}
	if c.IsSet("password") {
		cfg.Password = c.String("password")
	}
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("dns-server") {
		cfg.DNSServer = c.String("dns-server")
	}
	if c.IsSet("tls") {
		cfg.TLS = c.String("tls")
	}
	if c.IsSet("ca-file") {
		cfg.CAFile = c.String("ca-file")
	}
	if c.IsSet("allow-plain") {
		cfg.AllowPlain = c.Bool("allow-plain")
	}
	if c.IsSet("compression") {
		v := c.Bool("compression")
		cfg.Compression = &v
	}
	if c.IsSet("ids") {
		cfg.IDs = c.String("ids")
	}
	if c.IsSet("ping-interval") {
		cfg.PingInterval = c.Duration("ping-interval")
	}
}

func parseUseTLS(s string) (courier.UseTLS, error) {
	for _, u := range []courier.UseTLS{courier.UseTLSWhenAvailable, courier.NeverUseTLS, courier.RequireTLS} {
		if s == u.String() {
			return u, nil
		}
	}
	return 0, fmt.Errorf("unknown tls policy %q", s)
}

func parseIDs(s string) (courier.IDGenerator, error) {
	switch s {
	case "", "random":
		return courier.RandomIDs, nil
	case "uuid":
		return courier.UUIDs, nil
	}
	return nil, fmt.Errorf("unknown identifier format %q", s)
}

// options converts the config into client options.
func (cfg Config) options() (jid.JID, courier.Options, error) {
	opts := courier.DefaultOptions()
	if cfg.JID == "" {
		return jid.JID{}, opts, errors.New("no address configured")
	}
	addr, err := jid.Parse(cfg.JID)
	if err != nil {
		return jid.JID{}, opts, fmt.Errorf("bad address %q: %w", cfg.JID, err)
	}

	if cfg.TLS != "" {
		opts.UseTLS, err = parseUseTLS(cfg.TLS)
		if err != nil {
			return addr, opts, err
		}
	}
	if opts.IDGenerator, err = parseIDs(cfg.IDs); err != nil {
		return addr, opts, err
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return addr, opts, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return addr, opts, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		opts.TLSConfig = &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
	}
	if cfg.DNSServer != "" {
		opts.Resolver = &dial.DNSResolver{Server: cfg.DNSServer}
	}
	opts.AllowPlainWithoutTLS = cfg.AllowPlain
	if cfg.Compression != nil {
		opts.UseStreamCompression = *cfg.Compression
	}
	if cfg.Acks != nil {
		opts.UseAcks = *cfg.Acks
	}
	opts.UseStreamResumption = cfg.Resumption
	if cfg.ConnectTimeout > 0 {
		opts.ConnectTimeout = cfg.ConnectTimeout
	}
	opts.WhitespacePingInterval = cfg.PingInterval
	opts.Lang = cfg.Lang
	return addr, opts, nil
}
