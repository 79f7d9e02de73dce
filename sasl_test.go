// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/sasl"
)

func TestSelectMechanism(t *testing.T) {
	for i, tc := range [...]struct {
		offered    []string
		secure     bool
		allowPlain bool
		want       string
	}{
		0: {offered: []string{"PLAIN", "SCRAM-SHA-1", "SCRAM-SHA-256"}, want: "SCRAM-SHA-256"},
		1: {offered: []string{"SCRAM-SHA-1-PLUS", "SCRAM-SHA-1"}, want: "SCRAM-SHA-1"},
		2: {offered: []string{"SCRAM-SHA-1-PLUS", "SCRAM-SHA-1"}, secure: true, want: "SCRAM-SHA-1-PLUS"},
		3: {offered: []string{"PLAIN"}},
		4: {offered: []string{"PLAIN"}, allowPlain: true, want: "PLAIN"},
		5: {offered: []string{"PLAIN"}, secure: true, want: "PLAIN"},
		6: {offered: []string{"X-OAUTH2", "DIGEST-MD5"}},
		7: {},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			m, ok := selectMechanism(DefaultMechanisms(), tc.offered, tc.secure, tc.allowPlain)
			if tc.want == "" {
				assert.False(t, ok, "selected %s", m.Name)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, m.Name)
		})
	}
}

func TestSASLEncoding(t *testing.T) {
	assert.Equal(t, "=", encodeSASL(nil))
	assert.Equal(t, "AGZvbwBiYXI=", encodeSASL([]byte("\x00foo\x00bar")))

	for i, tc := range [...]struct {
		in  string
		out []byte
		err bool
	}{
		0: {in: "=", out: nil},
		1: {in: "", out: nil},
		2: {in: " AGZvbwBiYXI=\n", out: []byte("\x00foo\x00bar")},
		3: {in: "not base64!", err: true},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			b, err := decodeSASL(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.out, b)
		})
	}
}

func TestExternal(t *testing.T) {
	c := sasl.NewClient(External, sasl.Credentials(func() ([]byte, []byte, []byte) {
		return nil, nil, []byte("me@example.net")
	}))
	more, resp, err := c.Step(nil)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, []byte("me@example.net"), resp)
}
