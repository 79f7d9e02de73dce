// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"errors"
	"fmt"

	"mellium.im/courier/codec"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/xmlnode"
)

// Errors returned when converting stanzas.
var (
	ErrNotStanza   = errors.New("stanza: element is not a stanza")
	ErrInvalidType = errors.New("stanza: invalid type attribute")
)

// Policy controls what happens to payloads that could not be converted to a
// typed payload while unmarshaling.
type Policy uint8

const (
	// KeepUnknown keeps unrecognized and malformed payloads as *codec.Unknown.
	KeepUnknown Policy = iota

	// DropUnknown removes unrecognized and malformed payloads from the stanza.
	DropUnknown
)

// Marshal converts s into an element tree using r to serialize its payloads.
// The stanza is serialized in the jabber:client namespace, which is the
// default namespace of a client stream, so the root carries no namespace
// declaration when written with Serialize(ns.Client).
func Marshal(r *codec.Registry, s Stanza) (*xmlnode.Element, error) {
	h := s.Head()
	el := &xmlnode.Element{
		Name: xml.Name{Space: ns.Client, Local: s.Kind().String()},
		Attr: h.attrs(),
	}
	var typ string
	switch st := s.(type) {
	case IQ:
		if !st.Type.valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidType, st.Type)
		}
		typ = string(st.Type)
	case Message:
		typ = string(st.Type)
	case Presence:
		typ = string(st.Type)
	}
	if typ != "" {
		el.SetAttr("type", typ)
	}
	for _, p := range h.Payloads {
		child, err := r.Serialize(p)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	return el, nil
}

// Unmarshal converts an element tree into a stanza using r to parse its
// payloads.
// Payloads that fail to parse never cause Unmarshal to fail; they are kept or
// dropped according to policy.
func Unmarshal(r *codec.Registry, el *xmlnode.Element, policy Policy) (Stanza, error) {
	if !Is(el.Name) {
		return nil, fmt.Errorf("%w: {%s}%s", ErrNotStanza, el.Name.Space, el.Name.Local)
	}

	h := Header{}
	var typ string
	for _, a := range el.Attr {
		var err error
		switch {
		case a.Name.Space == ns.XML && a.Name.Local == "lang":
			h.Lang = a.Value
		case a.Name.Space != "":
		case a.Name.Local == "id":
			h.ID = a.Value
		case a.Name.Local == "to":
			err = h.To.UnmarshalXMLAttr(a)
		case a.Name.Local == "from":
			err = h.From.UnmarshalXMLAttr(a)
		case a.Name.Local == "type":
			typ = a.Value
		}
		if err != nil {
			return nil, fmt.Errorf("stanza: invalid %s attribute: %w", a.Name.Local, err)
		}
	}

	for _, child := range el.Elements() {
		p, err := r.Parse(child)
		if _, unknown := p.(*codec.Unknown); (unknown || err != nil) && policy == DropUnknown {
			continue
		}
		h.Payloads = append(h.Payloads, p)
	}

	switch el.Name.Local {
	case "iq":
		t := IQType(typ)
		if !t.valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidType, typ)
		}
		return IQ{Header: h, Type: t}, nil
	case "message":
		return Message{Header: h, Type: MessageType(typ)}, nil
	}
	return Presence{Header: h, Type: PresenceType(typ)}, nil
}
