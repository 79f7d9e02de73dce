// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xtime implements time related XMPP functionality.
//
// In particular, this package implements XEP-0202: Entity Time and XEP-0082:
// XMPP Date and Time Profiles.
package xtime // import "mellium.im/courier/xtime"

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"mellium.im/courier"
	"mellium.im/courier/codec"
	"mellium.im/courier/jid"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xmlnode"
)

const (
	// NS is the XML namespace used by XMPP entity time requests.
	// It is provided as a convenience.
	NS = "urn:xmpp:time"

	// LegacyDateTime implements the legacy profile mentioned in XEP-0082.
	//
	// Unless you are implementing an older XEP that specifically calls for this
	// format, time.RFC3339 should be used instead.
	LegacyDateTime = "20060102T15:04:05"
)

const tzd = "Z07:00"

var (
	timeName = xml.Name{Space: NS, Local: "time"}
	tzoName  = xml.Name{Space: NS, Local: "tzo"}
	utcName  = xml.Name{Space: NS, Local: "utc"}
)

// ErrNoTime is returned by Get if the response did not carry a time.
var ErrNoTime = errors.New("xtime: response did not contain a time")

// Time is like a time.Time but it can be sent as an XEP-0202 time payload.
type Time time.Time

// XMLName satisfies the codec.Payload interface.
func (Time) XMLName() xml.Name { return timeName }

// Element converts the time into an element tree.
func (t Time) Element() *xmlnode.Element {
	tt := time.Time(t)
	return xmlnode.New(NS, "time").
		AddChild(xmlnode.New(NS, "tzo").AddText(tt.Format(tzd))).
		AddChild(xmlnode.New(NS, "utc").AddText(tt.UTC().Format(time.RFC3339)))
}

// Request is the empty payload asking an entity for its time.
type Request struct{}

// XMLName satisfies the codec.Payload interface.
func (Request) XMLName() xml.Name { return timeName }

// ParseDateTime parses an XEP-0082 DateTime, with or without fractional
// seconds, falling back to the legacy profile which is always in UTC.
func ParseDateTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	if legacy, lerr := time.Parse(LegacyDateTime, s); lerr == nil {
		return legacy, nil
	}
	return time.Time{}, err
}

// FormatDateTime formats t using the XEP-0082 DateTime profile in UTC.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parse(el *xmlnode.Element) (codec.Payload, error) {
	tzo := el.Child(tzoName)
	utc := el.Child(utcName)
	if tzo == nil && utc == nil {
		return Request{}, nil
	}
	if tzo == nil || utc == nil {
		return nil, errors.New("xtime: time must contain both tzo and utc")
	}
	zone, err := time.Parse(tzd, tzo.Text())
	if err != nil {
		return nil, fmt.Errorf("xtime: bad timezone offset: %w", err)
	}
	utcTime, err := time.Parse(time.RFC3339Nano, utc.Text())
	if err != nil {
		return nil, fmt.Errorf("xtime: bad utc time: %w", err)
	}
	return Time(utcTime.In(zone.Location())), nil
}

// Register adds the entity time codec to r.
func Register(r *codec.Registry) error {
	return r.Register(codec.Codec{
		Name:  timeName,
		Parse: parse,
		Serialize: func(p codec.Payload) (*xmlnode.Element, error) {
			switch t := p.(type) {
			case Time:
				return t.Element(), nil
			case Request:
				return xmlnode.New(NS, "time"), nil
			}
			return nil, codec.ErrNoCodec
		},
	})
}

// Requester sends a request and waits for its response.
// It is satisfied by *courier.Client.
type Requester interface {
	SendIQ(ctx context.Context, iq stanza.IQ) (stanza.IQ, error)
}

// Get asks to for its time.
// The codec must be registered in the registry used to parse the response.
func Get(ctx context.Context, r Requester, to jid.JID) (time.Time, error) {
	resp, err := r.SendIQ(ctx, stanza.IQ{
		Header: stanza.Header{
			To:       to,
			Payloads: []codec.Payload{Request{}},
		},
		Type: stanza.GetIQ,
	})
	if err != nil {
		return time.Time{}, err
	}
	t, ok := resp.Payload(timeName).(Time)
	if !ok {
		return time.Time{}, ErrNoTime
	}
	return time.Time(t), nil
}

// Handler responds to requests for our time.
// If TimeFunc is nil, time.Now is used.
type Handler struct {
	TimeFunc func() time.Time
}

// HandleIQ responds to entity time requests.
func (h Handler) HandleIQ(r *courier.IQRouter, iq stanza.IQ) bool {
	if iq.Type != stanza.GetIQ || iq.Payload(timeName) == nil {
		return false
	}
	now := time.Now
	if h.TimeFunc != nil {
		now = h.TimeFunc
	}
	/* #nosec */
	r.Reply(iq.Result(Time(now())))
	return true
}
