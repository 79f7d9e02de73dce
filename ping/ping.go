// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ping implements XEP-0199: XMPP Ping.
package ping // import "mellium.im/courier/ping"

import (
	"encoding/xml"

	"mellium.im/courier/codec"
	"mellium.im/courier/jid"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xmlnode"
)

// NS is the XML namespace used by XMPP pings. It is provided as a convenience.
const NS = `urn:xmpp:ping`

var pingName = xml.Name{Space: NS, Local: "ping"}

// Ping is the payload of a ping request.
type Ping struct{}

// XMLName satisfies the codec.Payload interface.
func (Ping) XMLName() xml.Name { return pingName }

// IQ returns a ping request addressed to to.
func IQ(to jid.JID) stanza.IQ {
	return stanza.IQ{
		Header: stanza.Header{
			To:       to,
			Payloads: []codec.Payload{Ping{}},
		},
		Type: stanza.GetIQ,
	}
}

// Is reports whether iq is a ping request.
func Is(iq stanza.IQ) bool {
	return iq.Type == stanza.GetIQ && iq.Payload(pingName) != nil
}

// Register adds the ping codec to r.
func Register(r *codec.Registry) error {
	return r.Register(codec.Codec{
		Name: pingName,
		Parse: func(*xmlnode.Element) (codec.Payload, error) {
			return Ping{}, nil
		},
		Serialize: func(codec.Payload) (*xmlnode.Element, error) {
			return xmlnode.New(NS, "ping"), nil
		},
	})
}
