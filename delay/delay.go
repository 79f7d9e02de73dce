// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package delay implements delayed delivery of stanzas.
package delay // import "mellium.im/courier/delay"

import (
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"mellium.im/courier/codec"
	"mellium.im/courier/jid"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xmlnode"
	"mellium.im/courier/xtime"
)

// NS is the namespace used by this package.
const NS = "urn:xmpp:delay"

var delayName = xml.Name{Space: NS, Local: "delay"}

// Delay is a type that can be added to stanzas to indicate that they have been
// delivered with a delay.
type Delay struct {
	From   jid.JID
	Time   time.Time
	Reason string
}

// XMLName satisfies the codec.Payload interface.
func (Delay) XMLName() xml.Name { return delayName }

// Element converts the delay into an element tree.
func (d Delay) Element() *xmlnode.Element {
	el := xmlnode.New(NS, "delay").SetAttr("stamp", xtime.FormatDateTime(d.Time))
	if !d.From.Equal(jid.JID{}) {
		el.SetAttr("from", d.From.String())
	}
	if d.Reason != "" {
		el.AddText(d.Reason)
	}
	return el
}

func parse(el *xmlnode.Element) (codec.Payload, error) {
	d := Delay{Reason: el.Text()}
	stamp, ok := el.Attribute("stamp")
	if !ok {
		return nil, errors.New("delay: missing stamp")
	}
	var err error
	d.Time, err = xtime.ParseDateTime(stamp)
	if err != nil {
		return nil, fmt.Errorf("delay: bad stamp: %w", err)
	}
	if from, ok := el.Attribute("from"); ok {
		d.From, err = jid.Parse(from)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds the delay codec to r.
func Register(r *codec.Registry) error {
	return r.Register(codec.Codec{
		Name:  delayName,
		Parse: parse,
		Serialize: func(p codec.Payload) (*xmlnode.Element, error) {
			d, ok := p.(Delay)
			if !ok {
				return nil, codec.ErrNoCodec
			}
			return d.Element(), nil
		},
	})
}

// Of returns the delay carried by a stanza, if any.
func Of(st stanza.Stanza) (Delay, bool) {
	d, ok := st.Head().Payload(delayName).(Delay)
	return d, ok
}

// Stanza returns a copy of h with d added to its payloads.
// An existing delay is kept since it records the first hop that delayed the
// stanza.
func Stanza(h stanza.Header, d Delay) stanza.Header {
	if _, ok := h.Payload(delayName).(Delay); ok {
		return h
	}
	payloads := make([]codec.Payload, 0, len(h.Payloads)+1)
	payloads = append(payloads, h.Payloads...)
	h.Payloads = append(payloads, d)
	return h
}
