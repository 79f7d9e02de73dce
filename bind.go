// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"mellium.im/courier/codec"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/jid"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xmlnode"
)

var (
	bindName    = xml.Name{Space: ns.Bind, Local: "bind"}
	sessionName = xml.Name{Space: ns.Session, Local: "session"}
)

// Bind is the payload of a resource binding request or result.
// A request with an empty Resource asks the server to pick one.
type Bind struct {
	Resource string
	JID      jid.JID
}

// XMLName satisfies the codec.Payload interface.
func (Bind) XMLName() xml.Name { return bindName }

// SessionRequest is the payload of a legacy session establishment request
// (RFC 3921 §3).
type SessionRequest struct{}

// XMLName satisfies the codec.Payload interface.
func (SessionRequest) XMLName() xml.Name { return sessionName }

var bindCodec = codec.Codec{
	Name: bindName,
	Parse: func(el *xmlnode.Element) (codec.Payload, error) {
		var b Bind
		if r := el.Child(xml.Name{Space: ns.Bind, Local: "resource"}); r != nil {
			b.Resource = r.Text()
		}
		if j := el.Child(xml.Name{Space: ns.Bind, Local: "jid"}); j != nil {
			var err error
			b.JID, err = jid.Parse(j.Text())
			if err != nil {
				return nil, err
			}
		}
		return b, nil
	},
	Serialize: func(p codec.Payload) (*xmlnode.Element, error) {
		b := p.(Bind)
		el := xmlnode.New(ns.Bind, "bind")
		if b.Resource != "" {
			el.AddChild(xmlnode.New(ns.Bind, "resource").AddText(b.Resource))
		}
		if !b.JID.IsZero() {
			el.AddChild(xmlnode.New(ns.Bind, "jid").AddText(b.JID.String()))
		}
		return el, nil
	},
}

var sessionCodec = codec.Codec{
	Name: sessionName,
	Parse: func(*xmlnode.Element) (codec.Payload, error) {
		return SessionRequest{}, nil
	},
	Serialize: func(codec.Payload) (*xmlnode.Element, error) {
		return xmlnode.New(ns.Session, "session"), nil
	},
}

// registerCore adds the codecs the session needs to r.
// Codecs that are already registered are left alone.
func registerCore(r *codec.Registry) error {
	for _, register := range []func(*codec.Registry) error{
		stanza.Register,
		func(r *codec.Registry) error { return r.Register(bindCodec) },
		func(r *codec.Registry) error { return r.Register(sessionCodec) },
	} {
		if err := register(r); err != nil && !errors.Is(err, codec.ErrDuplicate) {
			return err
		}
	}
	return nil
}

// request sends an IQ during negotiation and waits for its response.
// Negotiation is strictly sequential so the response must be the next element.
func (s *Session) request(ctx context.Context, iq stanza.IQ) (stanza.IQ, error) {
	iq.ID = s.opts.IDGenerator.NewID()
	el, err := stanza.Marshal(s.registry, iq)
	if err != nil {
		return stanza.IQ{}, err
	}
	if err = s.writeElement(el); err != nil {
		return stanza.IQ{}, err
	}
	el, err = s.next(ctx)
	if err != nil {
		return stanza.IQ{}, err
	}
	if el.Name.Local != "iq" {
		return stanza.IQ{}, newError(UnexpectedElement, errUnexpected(el))
	}
	st, err := stanza.Unmarshal(s.registry, el, stanza.KeepUnknown)
	if err != nil {
		return stanza.IQ{}, newError(UnexpectedElement, err)
	}
	resp := st.(stanza.IQ)
	if resp.ID != iq.ID || resp.IsRequest() {
		return stanza.IQ{}, newError(UnexpectedElement, fmt.Errorf("%w: %q", ErrUnexpectedID, resp.ID))
	}
	return resp, nil
}

// bind requests the resource of the local address, or lets the server choose
// one if it has none.
func (s *Session) bind(ctx context.Context) error {
	resp, err := s.request(ctx, stanza.IQ{
		Header: stanza.Header{
			Payloads: []codec.Payload{Bind{Resource: s.local.Resourcepart()}},
		},
		Type: stanza.SetIQ,
	})
	var e *Error
	switch {
	case errors.As(err, &e):
		return err
	case err != nil:
		return newError(ResourceBindFailed, err)
	}
	if se, ok := resp.StanzaError(); ok || resp.Type == stanza.ErrorIQ {
		return newError(ResourceBindFailed, se)
	}
	b, ok := resp.Payload(bindName).(Bind)
	if !ok || b.JID.IsZero() {
		return newError(ResourceBindFailed, errors.New("courier: bind result has no address"))
	}
	s.setJID(b.JID)
	s.log.Debugf("bound resource %s", b.JID)
	return nil
}

// establish performs legacy session establishment.
func (s *Session) establish(ctx context.Context) error {
	resp, err := s.request(ctx, stanza.IQ{
		Header: stanza.Header{
			To:       s.local.Domain(),
			Payloads: []codec.Payload{SessionRequest{}},
		},
		Type: stanza.SetIQ,
	})
	var e *Error
	switch {
	case errors.As(err, &e):
		return err
	case err != nil:
		return newError(SessionStartFailed, err)
	}
	if resp.Type == stanza.ErrorIQ {
		se, _ := resp.StanzaError()
		return newError(SessionStartFailed, se)
	}
	return nil
}
