// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package x509_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptox509 "crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"math/big"
	"strconv"
	"testing"
	"time"

	"mellium.im/courier/x509"
)

var (
	oidSAN      = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidXMPPAddr = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 8, 5}
	oidSRVName  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 8, 7}
)

func otherName(t *testing.T, oid asn1.ObjectIdentifier, tag int, value string) asn1.RawValue {
	t.Helper()
	oidBytes, err := asn1.Marshal(oid)
	if err != nil {
		t.Fatal(err)
	}
	val, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassUniversal, Tag: tag, Bytes: []byte(value)})
	if err != nil {
		t.Fatal(err)
	}
	explicit, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: val})
	if err != nil {
		t.Fatal(err)
	}
	return asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        0,
		IsCompound: true,
		Bytes:      append(oidBytes, explicit...),
	}
}

type certInfo struct {
	dns       []string
	xmppAddrs []string
	srvNames  []string
}

type issuer struct {
	crt *cryptox509.Certificate
	key *ecdsa.PrivateKey
}

var serial int64

func newCert(t *testing.T, parent *issuer, info certInfo) ([]byte, *issuer) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	serial++
	tmpl := &cryptox509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "courier test " + strconv.FormatInt(serial, 10)},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	if parent == nil {
		tmpl.IsCA = true
		tmpl.BasicConstraintsValid = true
		tmpl.KeyUsage = cryptox509.KeyUsageCertSign | cryptox509.KeyUsageDigitalSignature
	} else {
		tmpl.KeyUsage = cryptox509.KeyUsageDigitalSignature
		tmpl.ExtKeyUsage = []cryptox509.ExtKeyUsage{cryptox509.ExtKeyUsageServerAuth}
	}

	var names []asn1.RawValue
	for _, name := range info.dns {
		names = append(names, asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 2, Bytes: []byte(name)})
	}
	for _, addr := range info.xmppAddrs {
		names = append(names, otherName(t, oidXMPPAddr, asn1.TagUTF8String, addr))
	}
	for _, name := range info.srvNames {
		names = append(names, otherName(t, oidSRVName, asn1.TagIA5String, name))
	}
	if len(names) > 0 {
		san, err := asn1.Marshal(names)
		if err != nil {
			t.Fatal(err)
		}
		tmpl.ExtraExtensions = []pkix.Extension{{Id: oidSAN, Value: san}}
	}

	signer := &issuer{crt: tmpl, key: key}
	if parent != nil {
		signer = parent
	}
	der, err := cryptox509.CreateCertificate(rand.Reader, tmpl, signer.crt, &key.PublicKey, signer.key)
	if err != nil {
		t.Fatal(err)
	}
	crt, err := cryptox509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return der, &issuer{crt: crt, key: key}
}

func pemBlock(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func concat(blocks ...[]byte) []byte {
	var out []byte
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

func TestParseChain(t *testing.T) {
	rootDER, root := newCert(t, nil, certInfo{})
	interDER, _ := newCert(t, root, certInfo{})
	leafDER, _ := newCert(t, root, certInfo{dns: []string{"example.net"}})
	malformed := pemBlock([]byte("this is not a certificate"))
	key := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1, 2, 3}})

	for i, tc := range [...]struct {
		in   []byte
		want [][]byte
	}{
		0: {in: pemBlock(leafDER), want: [][]byte{leafDER}},
		1: {in: concat(pemBlock(leafDER), pemBlock(interDER), pemBlock(rootDER)), want: [][]byte{leafDER, interDER, rootDER}},
		2: {in: leafDER, want: [][]byte{leafDER}},
		3: {in: malformed},
		4: {in: concat(pemBlock(leafDER), malformed, pemBlock(rootDER)), want: [][]byte{leafDER}},
		5: {in: concat(pemBlock(leafDER), key, pemBlock(rootDER)), want: [][]byte{leafDER, rootDER}},
		6: {in: []byte("garbage")},
		7: {in: nil},
		8: {in: []byte(exampleOrgPEM)},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			chain := x509.ParseChain(tc.in)
			if i == 8 {
				if len(chain) != 1 || len(chain[0].XMPPAddresses) != 2 {
					t.Fatalf("wrong chain parsed from stored certificate: %v", chain)
				}
				return
			}
			if len(chain) != len(tc.want) {
				t.Fatalf("wrong chain length: want=%d, got=%d", len(tc.want), len(chain))
			}
			for j, der := range tc.want {
				if string(chain[j].Raw) != string(der) {
					t.Errorf("certificate %d out of order", j)
				}
			}
		})
	}
}

func TestParseChainOversize(t *testing.T) {
	leafDER, _ := newCert(t, nil, certInfo{})
	in := pemBlock(leafDER)
	restore := x509.SetMaxChainInput(uint64(len(in) - 1))
	defer restore()
	if chain := x509.ParseChain(in); len(chain) != 0 {
		t.Errorf("expected oversized input to produce an empty chain, got %d certificates", len(chain))
	}
}

func TestVerifyDomain(t *testing.T) {
	_, root := newCert(t, nil, certInfo{})
	for i, tc := range [...]struct {
		info   certInfo
		domain string
		ok     bool
	}{
		0: {info: certInfo{dns: []string{"example.net"}}, domain: "example.net", ok: true},
		1: {info: certInfo{dns: []string{"*.example.net"}}, domain: "chat.example.net", ok: true},
		2: {info: certInfo{xmppAddrs: []string{"example.net"}}, domain: "example.net", ok: true},
		3: {info: certInfo{srvNames: []string{"_xmpp-client.example.net"}}, domain: "example.net", ok: true},
		4: {info: certInfo{srvNames: []string{"_xmpp-server.example.net"}}, domain: "example.net", ok: false},
		5: {info: certInfo{dns: []string{"example.org"}, xmppAddrs: []string{"example.org"}}, domain: "example.net", ok: false},
		6: {info: certInfo{xmppAddrs: []string{"Example.NET"}}, domain: "example.net.", ok: true},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			der, _ := newCert(t, root, tc.info)
			crt, err := x509.ParseCertificate(der)
			if err != nil {
				t.Fatal(err)
			}
			err = crt.VerifyDomain(tc.domain)
			switch {
			case tc.ok && err != nil:
				t.Errorf("unexpected error: %v", err)
			case !tc.ok && !errors.Is(err, x509.ErrDomainMismatch):
				t.Errorf("expected domain mismatch, got %v", err)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	rootDER, root := newCert(t, nil, certInfo{})
	leafDER, _ := newCert(t, root, certInfo{xmppAddrs: []string{"example.net"}})
	_, other := newCert(t, nil, certInfo{})

	chain := x509.ParseChain(concat(pemBlock(leafDER), pemBlock(rootDER)))
	if len(chain) != 2 {
		t.Fatalf("wrong chain length: %d", len(chain))
	}

	roots := cryptox509.NewCertPool()
	roots.AddCert(root.crt)
	if err := x509.Verify(chain, "example.net", x509.VerifyOptions{Roots: roots}); err != nil {
		t.Errorf("unexpected error verifying chain: %v", err)
	}
	if err := x509.Verify(chain, "example.org", x509.VerifyOptions{Roots: roots}); !errors.Is(err, x509.ErrDomainMismatch) {
		t.Errorf("expected domain mismatch, got %v", err)
	}

	untrusted := cryptox509.NewCertPool()
	untrusted.AddCert(other.crt)
	if err := x509.Verify(chain, "example.net", x509.VerifyOptions{Roots: untrusted}); err == nil {
		t.Error("expected error verifying chain against the wrong root")
	}
	if err := x509.Verify(nil, "example.net", x509.VerifyOptions{Roots: roots}); err != x509.ErrEmptyChain {
		t.Errorf("wrong error for empty chain: %v", err)
	}
}
