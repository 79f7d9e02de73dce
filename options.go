// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"crypto/tls"
	"time"

	"github.com/pion/logging"
	"mellium.im/sasl"

	"mellium.im/courier/codec"
	"mellium.im/courier/dial"
	"mellium.im/courier/internal/attr"
	"mellium.im/courier/stanza"
)

// Process wide defaults.
const (
	DefaultConnectTimeout = dial.DefaultTimeout
	DefaultFinishTimeout  = 5 * time.Second
	DefaultRequestTimeout = 60 * time.Second
)

// UseTLS controls whether STARTTLS is negotiated.
type UseTLS uint8

// A list of TLS policies.
const (
	// UseTLSWhenAvailable negotiates TLS if the server offers it.
	UseTLSWhenAvailable UseTLS = iota

	// NeverUseTLS never negotiates TLS.
	NeverUseTLS

	// RequireTLS fails the session if the server does not offer TLS.
	RequireTLS
)

func (u UseTLS) String() string {
	switch u {
	case NeverUseTLS:
		return "never"
	case RequireTLS:
		return "required"
	}
	return "when-available"
}

// IDGenerator creates identifiers for stanzas.
type IDGenerator interface {
	NewID() string
}

// Identifier generators that can be used as Options.IDGenerator.
var (
	// RandomIDs creates random hex identifiers. It is the default.
	RandomIDs IDGenerator = attr.RandomGenerator

	// UUIDs creates random (version 4) UUIDs.
	UUIDs IDGenerator = attr.UUIDGenerator
)

// Options configures a Session or Client.
// Options should be created with DefaultOptions and then modified since the
// zero value disables compression and stream management.
type Options struct {
	// UseStreamCompression enables zlib stream compression when the server
	// offers it.
	UseStreamCompression bool

	// UseTLS is the STARTTLS policy.
	UseTLS UseTLS

	// UseStreamResumption asks the server to allow the stream to be resumed.
	// It has no effect unless UseAcks is also set.
	UseStreamResumption bool

	// UseAcks enables stream management acknowledgements when the server
	// offers them.
	UseAcks bool

	// AllowPlainWithoutTLS permits the PLAIN mechanism over an unencrypted
	// stream.
	AllowPlainWithoutTLS bool

	// ConnectTimeout bounds the connection attempt as a whole. A Client
	// also bounds the negotiation of the session with it.
	ConnectTimeout time.Duration

	// FinishTimeout is how long a finishing session waits for the server to
	// close its stream.
	FinishTimeout time.Duration

	// RequestTimeout is the timeout of IQ requests that do not set their own.
	RequestTimeout time.Duration

	// WhitespacePingInterval enables a keepalive layer that writes a space
	// whenever nothing was written for the interval.
	// Zero disables it.
	WhitespacePingInterval time.Duration

	// TLSConfig is used for STARTTLS.
	// Certificates configured here are offered to the server and, if the server
	// supports it, used to authenticate with SASL EXTERNAL.
	// ServerName defaults to the domain of the session.
	TLSConfig *tls.Config

	// Verifier decides whether the server certificate chain is trusted.
	// If nil, the chain is verified against TLSConfig.RootCAs (or the system
	// pool) and the XMPP identities of the domain.
	Verifier Verifier

	// Mechanisms lists the SASL mechanisms to use in order of preference.
	Mechanisms []sasl.Mechanism

	// Lang is the default language of the stream.
	Lang string

	// Resolver and Dialer are used by the connector.
	Resolver dial.Resolver
	Dialer   dial.ContextDialer

	// IDGenerator creates stanza identifiers.
	IDGenerator IDGenerator

	// Timers schedules every delayed call made by the session.
	Timers TimerFactory

	// Registry holds the payload codecs used to convert stanzas.
	// Codecs required for negotiation are added to it.
	Registry *codec.Registry

	// Policy controls what happens to payloads that could not be parsed.
	Policy stanza.Policy

	// LoggerFactory creates the loggers of every component.
	LoggerFactory logging.LoggerFactory
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		UseStreamCompression: true,
		UseTLS:               UseTLSWhenAvailable,
		UseAcks:              true,
		ConnectTimeout:       DefaultConnectTimeout,
		FinishTimeout:        DefaultFinishTimeout,
		RequestTimeout:       DefaultRequestTimeout,
		Mechanisms:           DefaultMechanisms(),
	}
}

// DefaultMechanisms returns the SASL mechanisms used if none are configured,
// strongest first.
func DefaultMechanisms() []sasl.Mechanism {
	return []sasl.Mechanism{
		sasl.ScramSha256Plus,
		sasl.ScramSha1Plus,
		sasl.ScramSha256,
		sasl.ScramSha1,
		sasl.Plain,
	}
}

// withDefaults fills in the fields that must not be empty.
func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.FinishTimeout <= 0 {
		o.FinishTimeout = DefaultFinishTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if len(o.Mechanisms) == 0 {
		o.Mechanisms = DefaultMechanisms()
	}
	if o.IDGenerator == nil {
		o.IDGenerator = RandomIDs
	}
	if o.Timers == nil {
		o.Timers = SystemTimers
	}
	if o.Registry == nil {
		o.Registry = codec.NewRegistry()
	}
	if o.LoggerFactory == nil {
		o.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return o
}
