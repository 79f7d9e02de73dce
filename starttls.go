// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"context"
	"crypto/tls"
	cryptox509 "crypto/x509"
	"errors"
	"net"

	"mellium.im/courier/internal/ns"
	"mellium.im/courier/stack"
	"mellium.im/courier/x509"
	"mellium.im/courier/xmlnode"
)

var (
	errNoClientCertificate = errors.New("courier: client certificate has no certificate data")
	errNoPrivateKey        = errors.New("courier: client certificate has no private key")
)

// Verifier decides whether a server certificate chain identifies domain.
type Verifier interface {
	Verify(chain []*x509.Certificate, domain string) error
}

// VerifierFunc is an adapter to allow the use of ordinary functions as
// Verifiers.
type VerifierFunc func(chain []*x509.Certificate, domain string) error

// Verify calls f(chain, domain).
func (f VerifierFunc) Verify(chain []*x509.Certificate, domain string) error {
	return f(chain, domain)
}

// RootVerifier returns a Verifier that checks chains against roots and the
// XMPP identities of the domain.
// If roots is nil the system pool is used.
func RootVerifier(roots *cryptox509.CertPool) Verifier {
	return VerifierFunc(func(chain []*x509.Certificate, domain string) error {
		return x509.Verify(chain, domain, x509.VerifyOptions{Roots: roots})
	})
}

// TLSLayer is the security layer created by STARTTLS.
// The handshake happens when the layer is added to a stack; the certificates
// are verified separately by the session so that a failed verification can be
// told apart from a failed handshake.
type TLSLayer struct {
	cfg  *tls.Config
	conn *tls.Conn
}

// NewTLSLayer returns a client side TLS layer.
// The configuration must not be modified after it is passed to NewTLSLayer.
func NewTLSLayer(cfg *tls.Config) *TLSLayer {
	return &TLSLayer{cfg: cfg}
}

// Capability satisfies stack.Layer.
func (*TLSLayer) Capability() stack.Capability {
	return stack.Security
}

// Wrap performs the TLS handshake over below.
func (l *TLSLayer) Wrap(ctx context.Context, below net.Conn) (net.Conn, error) {
	conn := tls.Client(below, l.cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	l.conn = conn
	return conn, nil
}

// ConnectionState returns the state of the TLS connection.
// It is only meaningful once the layer has been added to a stack.
func (l *TLSLayer) ConnectionState() tls.ConnectionState {
	if l.conn == nil {
		return tls.ConnectionState{}
	}
	return l.conn.ConnectionState()
}

// PeerCertificates returns the chain presented by the server, leaf first.
func (l *TLSLayer) PeerCertificates() []*x509.Certificate {
	chain, _ := x509.FromCertificates(l.ConnectionState().PeerCertificates)
	return chain
}

// hasClientCertificate reports whether cfg offers a certificate to the server.
func hasClientCertificate(cfg *tls.Config) bool {
	return cfg != nil && (len(cfg.Certificates) > 0 || cfg.GetClientCertificate != nil)
}

// checkClientCertificates makes sure that every configured client certificate
// can be used before the handshake starts.
func checkClientCertificates(cfg *tls.Config) error {
	if cfg == nil {
		return nil
	}
	for _, crt := range cfg.Certificates {
		if len(crt.Certificate) == 0 {
			return errNoClientCertificate
		}
		if crt.PrivateKey == nil {
			return errNoPrivateKey
		}
		if crt.Leaf != nil {
			continue
		}
		if _, err := cryptox509.ParseCertificate(crt.Certificate[0]); err != nil {
			return err
		}
	}
	return nil
}

// tlsConfig returns the configuration used for the handshake with domain.
// Chain verification is disabled in crypto/tls because the session verifies
// the chain itself, including the XMPP specific identities that crypto/tls
// does not understand.
func tlsConfig(cfg *tls.Config, domain string) *tls.Config {
	if cfg == nil {
		cfg = &tls.Config{}
	}
	cfg = cfg.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = domain
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	/* #nosec */
	cfg.InsecureSkipVerify = true
	return cfg
}

var startTLSRequest = xmlnode.New(ns.StartTLS, "starttls")

// startTLS asks the server to start TLS and adds the security layer.
func (s *Session) startTLS(ctx context.Context) error {
	if err := checkClientCertificates(s.opts.TLSConfig); err != nil {
		return newError(ClientCertificateError, err)
	}
	if err := s.writeElement(startTLSRequest); err != nil {
		return err
	}
	el, err := s.next(ctx)
	if err != nil {
		return err
	}
	switch {
	case el.Name.Space != ns.StartTLS:
		return newError(UnexpectedElement, errUnexpected(el))
	case el.Name.Local == "failure":
		return newError(TLSError, errors.New("courier: server refused to start TLS"))
	case el.Name.Local != "proceed":
		return newError(UnexpectedElement, errUnexpected(el))
	}

	domain := s.local.Domainpart()
	layer := NewTLSLayer(tlsConfig(s.opts.TLSConfig, domain))
	if err := s.stk.AddLayer(ctx, layer); err != nil {
		return newError(TLSError, err)
	}

	verifier := s.opts.Verifier
	if verifier == nil {
		var roots *cryptox509.CertPool
		if s.opts.TLSConfig != nil {
			roots = s.opts.TLSConfig.RootCAs
		}
		verifier = RootVerifier(roots)
	}
	if err := verifier.Verify(layer.PeerCertificates(), domain); err != nil {
		return newError(ServerVerificationFailed, err)
	}
	s.log.Debugf("TLS established with %s", domain)
	return nil
}
