// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/courier"
	"mellium.im/courier/xmlnode"
)

func TestParseFeatures(t *testing.T) {
	for i, tc := range [...]struct {
		in      string
		out     courier.Features
		unknown int
		err     bool
	}{
		0: {
			in:  `<features xmlns='http://etherx.jabber.org/streams'/>`,
			out: courier.Features{},
		},
		1: {
			in: `<stream:features xmlns:stream='http://etherx.jabber.org/streams'>
				<starttls xmlns='urn:ietf:params:xml:ns:xmpp-tls'><required/></starttls>
				<mechanisms xmlns='urn:ietf:params:xml:ns:xmpp-sasl'>
					<mechanism>SCRAM-SHA-1</mechanism><mechanism>PLAIN</mechanism>
				</mechanisms>
			</stream:features>`,
			out: courier.Features{
				StartTLS:         true,
				StartTLSRequired: true,
				Mechanisms:       []string{"SCRAM-SHA-1", "PLAIN"},
			},
		},
		2: {
			in: `<features xmlns='http://etherx.jabber.org/streams'>
				<compression xmlns='http://jabber.org/features/compress'><method>zlib</method><method>lzw</method></compression>
				<bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'/>
				<session xmlns='urn:ietf:params:xml:ns:xmpp-session'/>
				<sm xmlns='urn:xmpp:sm:3'/>
				<ver xmlns='urn:xmpp:features:rosterver'/>
			</features>`,
			out: courier.Features{
				Compression:      []string{"zlib", "lzw"},
				Bind:             true,
				Session:          true,
				StreamManagement: true,
			},
			unknown: 1,
		},
		3: {
			in: `<features xmlns='http://etherx.jabber.org/streams'>
				<session xmlns='urn:ietf:params:xml:ns:xmpp-session'><optional/></session>
			</features>`,
			out: courier.Features{},
		},
		4: {
			in:  `<message xmlns='jabber:client'/>`,
			err: true,
		},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			el, err := xmlnode.Parse(tc.in)
			require.NoError(t, err)
			f, err := courier.ParseFeatures(el)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, f.Unknown, tc.unknown)
			f.Unknown = nil
			assert.Equal(t, tc.out, f)
		})
	}
}
