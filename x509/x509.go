// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package x509 parses X.509 certificate chains and verifies that they identify
// an XMPP service.
//
// In addition to the DNS names understood by crypto/x509, certificates issued
// to XMPP services may carry the XMPP specific subject alternative names
// id-on-xmppAddr and SRVName (RFC 6120 §13.7.1.4, RFC 4985).
package x509 // import "mellium.im/courier/x509"

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
)

var (
	oidExtensionSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidXMPPAddr                = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 8, 5}
	oidSRVName                 = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 8, 7}
)

// Certificate represents an X.509 certificate with additional fields for XMPP
// use.
type Certificate struct {
	x509.Certificate

	SRVNames      []string
	XMPPAddresses []string
}

// FromCertificate parses the Subject Alternative Name from the provided
// x509.Certificate and creates a new Certificate with the extra fields
// populated.
func FromCertificate(crt *x509.Certificate) (*Certificate, error) {
	srvNames, xmppAddrs, err := parseSANExtensions(crt.Extensions)
	return &Certificate{
		Certificate:   *crt,
		SRVNames:      srvNames,
		XMPPAddresses: xmppAddrs,
	}, err
}

// FromCertificates converts each certificate in a chain such as the peer
// certificates of a TLS connection.
func FromCertificates(crts []*x509.Certificate) ([]*Certificate, error) {
	chain := make([]*Certificate, 0, len(crts))
	for _, crt := range crts {
		c, err := FromCertificate(crt)
		if err != nil {
			return chain, err
		}
		chain = append(chain, c)
	}
	return chain, nil
}

// ParseCertificate parses a single certificate from the given ASN.1 DER data.
func ParseCertificate(asn1Data []byte) (*Certificate, error) {
	crt, err := x509.ParseCertificate(asn1Data)
	if err != nil {
		return nil, err
	}
	return FromCertificate(crt)
}

func parseSANExtensions(extensions []pkix.Extension) (srvNames, xmppAddrs []string, err error) {
	for _, ext := range extensions {
		if !ext.Id.Equal(oidExtensionSubjectAltName) {
			continue
		}

		newNames, newXMPPAddrs, err := parseSANExtension(ext.Value)
		if err != nil {
			return srvNames, xmppAddrs, err
		}
		srvNames = append(srvNames, newNames...)
		xmppAddrs = append(xmppAddrs, newXMPPAddrs...)
	}

	return srvNames, xmppAddrs, nil
}

func parseSANExtension(value []byte) (srvNames, xmppAddresses []string, err error) {
	// RFC 5280, 4.2.1.6
	//
	// GeneralNames ::= SEQUENCE SIZE (1..MAX) OF GeneralName
	//
	// GeneralName ::= CHOICE {
	//      otherName                       [0]     OtherName,
	//      …
	//
	// OtherName ::= SEQUENCE {
	//      type-id    OBJECT IDENTIFIER,
	//      value      [0] EXPLICIT ANY DEFINED BY type-id }
	var seq asn1.RawValue
	rest, err := asn1.Unmarshal(value, &seq)
	switch {
	case err != nil:
		return nil, nil, err
	case len(rest) != 0:
		return nil, nil, errors.New("x509: trailing data after X.509 extension")
	case !seq.IsCompound || seq.Tag != asn1.TagSequence || seq.Class != asn1.ClassUniversal:
		return nil, nil, asn1.StructuralError{Msg: "bad SAN sequence"}
	}

	rest = seq.Bytes
	for len(rest) > 0 {
		var v asn1.RawValue
		rest, err = asn1.Unmarshal(rest, &v)
		if err != nil {
			return srvNames, xmppAddresses, err
		}
		if v.Class != asn1.ClassContextSpecific || v.Tag != 0 {
			continue
		}
		oid, val, err := parseOtherName(v.Bytes)
		if err != nil {
			return srvNames, xmppAddresses, err
		}
		switch {
		case oid.Equal(oidXMPPAddr) && val.Tag == asn1.TagUTF8String:
			xmppAddresses = append(xmppAddresses, string(val.Bytes))
		case oid.Equal(oidSRVName) && val.Tag == asn1.TagIA5String:
			srvNames = append(srvNames, string(val.Bytes))
		}
	}
	return srvNames, xmppAddresses, nil
}

func parseOtherName(b []byte) (asn1.ObjectIdentifier, asn1.RawValue, error) {
	var oid asn1.ObjectIdentifier
	var explicit, val asn1.RawValue
	rest, err := asn1.Unmarshal(b, &oid)
	if err != nil {
		return oid, val, err
	}
	if _, err = asn1.Unmarshal(rest, &explicit); err != nil {
		return oid, val, err
	}
	if explicit.Class != asn1.ClassContextSpecific || explicit.Tag != 0 || !explicit.IsCompound {
		return oid, val, asn1.StructuralError{Msg: "bad otherName value"}
	}
	_, err = asn1.Unmarshal(explicit.Bytes, &val)
	return oid, val, err
}
