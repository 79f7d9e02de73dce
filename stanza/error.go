// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"errors"
	"sort"

	"mellium.im/courier/codec"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/jid"
	"mellium.im/courier/xmlnode"
)

// ErrorType is the type of an stanza error payloads.
// It should normally be one of the constants defined in this package.
type ErrorType string

const (
	// Cancel indicates that the error cannot be remedied and the operation should
	// not be retried.
	Cancel ErrorType = "cancel"

	// Auth indicates that an operation should be retried after providing
	// credentials.
	Auth ErrorType = "auth"

	// Continue indicates that the operation can proceed (the condition was only a
	// warning).
	Continue ErrorType = "continue"

	// Modify indicates that the operation can be retried after changing the data
	// sent.
	Modify ErrorType = "modify"

	// Wait is indicates that an error is temporary and may be retried.
	Wait ErrorType = "wait"
)

// Condition represents a more specific stanza error condition that can be
// encapsulated by an <error/> element.
type Condition string

// A list of stanza error conditions defined in RFC 6120 §8.3.3
const (
	BadRequest            Condition = "bad-request"
	Conflict              Condition = "conflict"
	FeatureNotImplemented Condition = "feature-not-implemented"
	Forbidden             Condition = "forbidden"
	Gone                  Condition = "gone"
	InternalServerError   Condition = "internal-server-error"
	ItemNotFound          Condition = "item-not-found"
	JIDMalformed          Condition = "jid-malformed"
	NotAcceptable         Condition = "not-acceptable"
	NotAllowed            Condition = "not-allowed"
	NotAuthorized         Condition = "not-authorized"
	PolicyViolation       Condition = "policy-violation"
	RecipientUnavailable  Condition = "recipient-unavailable"
	Redirect              Condition = "redirect"
	RegistrationRequired  Condition = "registration-required"
	RemoteServerNotFound  Condition = "remote-server-not-found"
	RemoteServerTimeout   Condition = "remote-server-timeout"
	ResourceConstraint    Condition = "resource-constraint"
	ServiceUnavailable    Condition = "service-unavailable"
	SubscriptionRequired  Condition = "subscription-required"
	UndefinedCondition    Condition = "undefined-condition"
	UnexpectedRequest     Condition = "unexpected-request"
)

var errorName = xml.Name{Space: ns.Client, Local: "error"}

// Error is a stanza level error.
// It is both a Go error and a payload that can be carried by an error stanza.
type Error struct {
	By        jid.JID
	Type      ErrorType
	Condition Condition
	Text      map[string]string
}

// Error satisfies the error interface by returning the condition.
func (se Error) Error() string {
	return string(se.Condition)
}

// XMLName satisfies the codec.Payload interface.
func (Error) XMLName() xml.Name {
	return errorName
}

// Element converts the error into an element tree.
// Text in multiple languages is written in language tag order.
func (se Error) Element() *xmlnode.Element {
	el := xmlnode.New(ns.Client, "error")
	if se.Type != "" {
		el.SetAttr("type", string(se.Type))
	}
	if !se.By.IsZero() {
		el.SetAttr("by", se.By.String())
	}
	el.AddChild(xmlnode.New(ns.Stanza, string(se.Condition)))

	langs := make([]string, 0, len(se.Text))
	for lang, data := range se.Text {
		if data != "" {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	for _, lang := range langs {
		text := xmlnode.New(ns.Stanza, "text")
		// xml:lang attribute is optional, don't include it if it's empty.
		if lang != "" {
			text.Attr = append(text.Attr, xml.Attr{
				Name:  xml.Name{Space: ns.XML, Local: "lang"},
				Value: lang,
			})
		}
		el.AddChild(text.AddText(se.Text[lang]))
	}
	return el
}

func parseError(el *xmlnode.Element) (Error, error) {
	se := Error{}
	if typ, ok := el.Attribute("type"); ok {
		se.Type = ErrorType(typ)
	}
	if by, ok := el.Attribute("by"); ok && by != "" {
		j, err := jid.Parse(by)
		if err != nil {
			return se, err
		}
		se.By = j
	}
	for _, child := range el.Elements() {
		if child.Name.Space != ns.Stanza {
			continue
		}
		if child.Name.Local != "text" {
			se.Condition = Condition(child.Name.Local)
			continue
		}
		data := child.Text()
		if data == "" {
			continue
		}
		var lang string
		for _, a := range child.Attr {
			if a.Name.Space == ns.XML && a.Name.Local == "lang" {
				lang = a.Value
			}
		}
		if se.Text == nil {
			se.Text = make(map[string]string)
		}
		se.Text[lang] = data
	}
	if se.Condition == "" {
		return se, errors.New("stanza: error is missing a defined condition")
	}
	return se, nil
}

var errorCodec = codec.Codec{
	Name: errorName,
	Parse: func(el *xmlnode.Element) (codec.Payload, error) {
		return parseError(el)
	},
	Serialize: func(p codec.Payload) (*xmlnode.Element, error) {
		switch e := p.(type) {
		case Error:
			return e.Element(), nil
		case *Error:
			return e.Element(), nil
		}
		return nil, codec.ErrNoCodec
	},
}

// Register adds the codecs for payloads defined in this package (message
// bodies and stanza errors) to r.
func Register(r *codec.Registry) error {
	for _, c := range []codec.Codec{bodyCodec, errorCodec} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
