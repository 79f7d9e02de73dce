// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"mellium.im/courier"
)

func TestErrorKindsDistinct(t *testing.T) {
	seen := make(map[string]courier.ErrorKind)
	for k := courier.UnknownError; k <= courier.StreamError; k++ {
		s := k.String()
		if other, ok := seen[s]; ok {
			t.Errorf("kinds %d and %d share the name %q", other, k, s)
		}
		seen[s] = k
	}
}

func TestError(t *testing.T) {
	err := error(&courier.Error{Kind: courier.ConnectionReadError, Err: io.ErrUnexpectedEOF})
	assert.Equal(t, "courier: connection read error: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, courier.ConnectionReadError)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, courier.ConnectionWriteError)

	var e *courier.Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, courier.ConnectionReadError, e.Kind)

	bare := &courier.Error{Kind: courier.NoSupportedAuthMechanisms}
	assert.Equal(t, "courier: no supported authentication mechanisms", bare.Error())
}
