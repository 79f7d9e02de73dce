// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package x509

// SetMaxChainInput lowers the input limit of ParseChain so that the oversize
// path can be tested without allocating gigabytes.
func SetMaxChainInput(n uint64) (restore func()) {
	old := maxChainInput
	maxChainInput = n
	return func() { maxChainInput = old }
}
