// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package saslerr provides error conditions for the XMPP profile of SASL as
// defined by RFC 6120 §6.5.
package saslerr // import "mellium.im/courier/internal/saslerr"

import (
	"encoding/xml"

	"golang.org/x/text/language"

	"mellium.im/courier/internal/ns"
	"mellium.im/courier/xmlnode"
)

// Condition represents a SASL error condition that can be encapsulated by a
// <failure/> element.
type Condition string

// Standard SASL error conditions.
const (
	None                 Condition = ""
	Aborted              Condition = "aborted"
	AccountDisabled      Condition = "account-disabled"
	CredentialsExpired   Condition = "credentials-expired"
	EncryptionRequired   Condition = "encryption-required"
	IncorrectEncoding    Condition = "incorrect-encoding"
	InvalidAuthzID       Condition = "invalid-authzid"
	InvalidMechanism     Condition = "invalid-mechanism"
	MalformedRequest     Condition = "malformed-request"
	MechanismTooWeak     Condition = "mechanism-too-weak"
	NotAuthorized        Condition = "not-authorized"
	TemporaryAuthFailure Condition = "temporary-auth-failure"
)

func (c Condition) String() string {
	return string(c)
}

var failureName = xml.Name{Space: ns.SASL, Local: "failure"}

// Failure represents a SASL error received in a <failure/> element.
type Failure struct {
	Condition Condition
	Lang      language.Tag
	Text      string
}

// Error satisfies the error interface for a Failure. It returns the text string
// if set, or the condition otherwise.
func (f Failure) Error() string {
	if f.Text != "" {
		return f.Text
	}
	return string(f.Condition)
}

// Element returns the <failure/> element for f.
func (f Failure) Element() *xmlnode.Element {
	el := xmlnode.New(ns.SASL, "failure")
	if f.Condition != None {
		el.AddChild(xmlnode.New(ns.SASL, string(f.Condition)))
	}
	if f.Text != "" {
		text := xmlnode.New(ns.SASL, "text").AddText(f.Text)
		text.Attr = append(text.Attr, xml.Attr{
			Name:  xml.Name{Space: ns.XML, Local: "lang"},
			Value: f.Lang.String(),
		})
		el.AddChild(text)
	}
	return el
}

// Parse converts a <failure/> element into a Failure.
// If the element carries text in several languages, the text with an xml:lang
// attribute that most closely matches lang is selected.
// A zero lang prefers text marked "und", behavior is undefined otherwise (it
// will pick the tag that most closely matches "und", whatever that means).
func Parse(el *xmlnode.Element, lang language.Tag) Failure {
	f := Failure{Lang: lang}
	if el == nil || el.Name != failureName {
		return f
	}

	var tags []language.Tag
	data := make(map[language.Tag]string)
	for _, child := range el.Elements() {
		if child.Name.Space != ns.SASL {
			continue
		}
		if child.Name.Local != "text" {
			f.Condition = Condition(child.Name.Local)
			continue
		}
		tag, ok := textLang(child)
		if !ok {
			continue
		}
		tags = append(tags, tag)
		data[tag] = child.Text()
	}
	if len(tags) == 0 {
		return f
	}
	_, idx, _ := language.NewMatcher(tags).Match(lang)
	f.Lang = tags[idx]
	f.Text = data[f.Lang]
	return f
}

// textLang returns the language of a text element, or und if it has none.
// Tags that cannot be parsed are reported as not ok.
func textLang(el *xmlnode.Element) (language.Tag, bool) {
	for _, a := range el.Attr {
		if a.Name.Space == ns.XML && a.Name.Local == "lang" {
			tag, err := language.Parse(a.Value)
			return tag, err == nil
		}
	}
	return language.Und, true
}
