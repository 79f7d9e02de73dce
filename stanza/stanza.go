// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"mellium.im/courier/codec"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/jid"
)

// Is tests whether name is a valid stanza based on name and space.
func Is(name xml.Name) bool {
	return (name.Local == "iq" || name.Local == "message" || name.Local == "presence") &&
		(name.Space == ns.Client || name.Space == ns.Server)
}

// Kind identifies which of the three stanza variants a Stanza is.
type Kind uint8

// A list of stanza kinds.
const (
	KindIQ Kind = iota
	KindMessage
	KindPresence
)

// String returns the local name of stanzas of kind k.
func (k Kind) String() string {
	switch k {
	case KindIQ:
		return "iq"
	case KindMessage:
		return "message"
	case KindPresence:
		return "presence"
	}
	return "unknown"
}

// Stanza is one of IQ, Message, or Presence.
type Stanza interface {
	Kind() Kind
	Head() Header
	isStanza()
}

// Header holds the attributes and payloads shared by all stanza kinds.
// Stanzas are values; a Header's payload list must not be modified once the
// stanza has been handed to another component.
type Header struct {
	ID       string
	From     jid.JID
	To       jid.JID
	Lang     string
	Payloads []codec.Payload
}

// Payload returns the first payload with the given element name or nil.
func (h Header) Payload(name xml.Name) codec.Payload {
	for _, p := range h.Payloads {
		if p.XMLName() == name {
			return p
		}
	}
	return nil
}

// StanzaError returns the stanza error carried by the stanza, if any.
func (h Header) StanzaError() (Error, bool) {
	for _, p := range h.Payloads {
		switch e := p.(type) {
		case Error:
			return e, true
		case *Error:
			return *e, true
		}
	}
	return Error{}, false
}

func (h Header) attrs() []xml.Attr {
	attr := make([]xml.Attr, 0, 5)
	if h.ID != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: h.ID})
	}
	if !h.To.IsZero() {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "to"}, Value: h.To.String()})
	}
	if !h.From.IsZero() {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "from"}, Value: h.From.String()})
	}
	if h.Lang != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: h.Lang})
	}
	return attr
}
