// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package x509

import (
	"bytes"
	"encoding/pem"
	"math"
)

// maxChainInput is the largest input ParseChain will look at.
var maxChainInput uint64 = math.MaxInt32

const pemCertificate = "CERTIFICATE"

// ParseChain parses a certificate chain.
//
// The input is either a single DER encoded certificate or any number of
// concatenated PEM blocks.
// Blocks are read in order and every block of type CERTIFICATE is appended to
// the chain, so the leaf is expected first followed by its issuers.
// Blocks of other types (such as private keys) are skipped.
//
// ParseChain never returns a partially parsed certificate: if a block fails to
// parse, the certificates that preceded it are returned and the rest of the
// input is ignored.
// A malformed single certificate or oversized input therefore results in an
// empty chain.
func ParseChain(data []byte) []*Certificate {
	if uint64(len(data)) > maxChainInput {
		return nil
	}

	block, rest := pem.Decode(data)
	if block == nil {
		// Not PEM; try a single DER certificate.
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		crt, err := ParseCertificate(data)
		if err != nil {
			return nil
		}
		return []*Certificate{crt}
	}

	var chain []*Certificate
	for block != nil {
		if block.Type == pemCertificate {
			crt, err := ParseCertificate(block.Bytes)
			if err != nil {
				return chain
			}
			chain = append(chain, crt)
		}
		block, rest = pem.Decode(rest)
	}
	return chain
}
