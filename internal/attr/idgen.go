// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package attr generates the identifiers carried in stanza id attributes.
package attr // import "mellium.im/courier/internal/attr"

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// IDLen is the standard length of stanza identifiers in bytes.
const IDLen = 16

// IDGenerator produces identifiers for request stanzas.
// Implementations must be safe for concurrent use.
type IDGenerator interface {
	NewID() string
}

// IDGeneratorFunc adapts a function to the IDGenerator interface.
type IDGeneratorFunc func() string

// NewID calls f.
func (f IDGeneratorFunc) NewID() string {
	return f()
}

var (
	// RandomGenerator returns hex identifiers of length IDLen.
	RandomGenerator IDGenerator = IDGeneratorFunc(RandomID)

	// UUIDGenerator returns random (version 4) UUIDs.
	UUIDGenerator IDGenerator = IDGeneratorFunc(func() string {
		return uuid.NewString()
	})
)

// RandomID generates a new random identifier of length IDLen. If the OS's
// entropy pool isn't initialized, or we can't generate random numbers for some
// other reason, panic.
func RandomID() string {
	return randomID(IDLen, rand.Reader)
}

// RandomLen is like RandomID but the length is configurable.
func RandomLen(n int) string {
	return randomID(n, rand.Reader)
}

func randomID(n int, r io.Reader) string {
	b := make([]byte, (n/2)+(n&1))
	switch n, err := r.Read(b); {
	case err != nil:
		panic(err)
	case n != len(b):
		panic("Could not read enough randomness")
	}

	return fmt.Sprintf("%x", b)[:n]
}
