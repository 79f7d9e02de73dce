// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package x509

import (
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Errors returned by verification.
var (
	ErrEmptyChain     = errors.New("x509: no certificates in chain")
	ErrDomainMismatch = errors.New("x509: certificate is not valid for domain")
)

// VerifyDomain checks that the certificate identifies the XMPP service at
// domain.
// The domain matches if it is one of the certificate's XMPP addresses, if the
// certificate carries the SRVName _xmpp-client.domain, or if crypto/x509
// accepts it as a DNS name (including wildcards).
func (c *Certificate) VerifyDomain(domain string) error {
	domain = strings.TrimSuffix(domain, ".")
	for _, addr := range c.XMPPAddresses {
		if strings.EqualFold(addr, domain) {
			return nil
		}
	}
	srv := "_xmpp-client." + domain
	for _, name := range c.SRVNames {
		if strings.EqualFold(name, srv) {
			return nil
		}
	}
	if err := c.Certificate.VerifyHostname(domain); err == nil {
		return nil
	}
	return fmt.Errorf("%w %q", ErrDomainMismatch, domain)
}

// VerifyOptions contains parameters for Verify.
type VerifyOptions struct {
	// Roots is the set of trusted root certificates.
	// If nil the system pool is used.
	Roots *x509.CertPool

	// CurrentTime is used to check the validity period of all certificates in
	// the chain.
	// If zero, the current time is used.
	CurrentTime time.Time
}

// Verify checks that chain[0] was issued, through the remaining certificates
// in the chain, by one of the trusted roots and that it identifies domain.
func Verify(chain []*Certificate, domain string, opts VerifyOptions) error {
	if len(chain) == 0 {
		return ErrEmptyChain
	}
	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(&c.Certificate)
	}
	_, err := chain[0].Certificate.Verify(x509.VerifyOptions{
		Roots:         opts.Roots,
		Intermediates: intermediates,
		CurrentTime:   opts.CurrentTime,
	})
	if err != nil {
		return err
	}
	return chain[0].VerifyDomain(domain)
}
