// Copyright 2015 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream

import (
	"encoding/xml"
	"errors"
	"net"

	"mellium.im/courier/internal/ns"
	"mellium.im/courier/xmlnode"
)

// A list of stream errors defined in RFC 6120 §4.9.3
var (
	// BadFormat is used when the entity has sent XML that cannot be processed.
	BadFormat = Error{Err: "bad-format"}

	// BadNamespacePrefix is sent when an entity has sent a namespace prefix that
	// is unsupported, or has sent no namespace prefix, on an element that needs
	// such a prefix.
	BadNamespacePrefix = Error{Err: "bad-namespace-prefix"}

	// Conflict is sent when the server is closing the existing stream because a
	// new stream has been initiated that conflicts with it.
	Conflict = Error{Err: "conflict"}

	// ConnectionTimeout results when one party believes that the other has
	// permanently lost the ability to communicate over the stream.
	ConnectionTimeout = Error{Err: "connection-timeout"}

	// HostGone is sent when the 'to' address of the stream header is no longer
	// serviced by the receiving entity.
	HostGone = Error{Err: "host-gone"}

	// HostUnknown is sent when the 'to' address of the stream header is not
	// serviced by the receiving entity.
	HostUnknown = Error{Err: "host-unknown"}

	ImproperAddressing  = Error{Err: "improper-addressing"}
	InternalServerError = Error{Err: "internal-server-error"}
	InvalidFrom         = Error{Err: "invalid-from"}
	InvalidNamespace    = Error{Err: "invalid-namespace"}
	InvalidXML          = Error{Err: "invalid-xml"}

	// NotAuthorized may be sent when the entity has attempted to send data before
	// the stream has been authenticated.
	NotAuthorized = Error{Err: "not-authorized"}

	NotWellFormed          = Error{Err: "not-well-formed"}
	PolicyViolation        = Error{Err: "policy-violation"}
	RemoteConnectionFailed = Error{Err: "remote-connection-failed"}

	// Reset is sent when the server is closing the stream because it has new
	// security critical features to offer or because its keys have changed.
	Reset = Error{Err: "reset"}

	ResourceConstraint = Error{Err: "resource-constraint"}

	// RestrictedXML may be sent when the entity has attempted to send a comment,
	// processing instruction, DTD subset, or XML entity reference.
	RestrictedXML = Error{Err: "restricted-xml"}

	// SeeOtherHost carries the address that the initiating entity should
	// connect to instead in its Text field.
	SeeOtherHost = Error{Err: "see-other-host"}

	SystemShutdown        = Error{Err: "system-shutdown"}
	UndefinedCondition    = Error{Err: "undefined-condition"}
	UnsupportedEncoding   = Error{Err: "unsupported-encoding"}
	UnsupportedFeature    = Error{Err: "unsupported-feature"}
	UnsupportedStanzaType = Error{Err: "unsupported-stanza-type"}
	UnsupportedVersion    = Error{Err: "unsupported-version"}
)

var errorName = xml.Name{Space: NS, Local: "error"}

// SeeOtherHostError returns a new see-other-host error with the given network
// address as the host. If the address appears to be a raw IPv6 address (eg.
// "::1"), the error wraps it in brackets ("[::1]").
func SeeOtherHostError(addr net.Addr) Error {
	cdata := addr.String()
	if ip := net.ParseIP(cdata); ip != nil && ip.To4() == nil {
		cdata = "[" + cdata + "]"
	}
	e := SeeOtherHost
	e.Content = cdata
	return e
}

// Error represents an unrecoverable stream-level error.
type Error struct {
	// Err is the defined condition.
	Err string

	// Content is character data carried inside the condition element, such as
	// the address of a see-other-host error.
	Content string

	// Text is an optional human readable description and Lang its language.
	Text string
	Lang string
}

// Error satisfies the builtin error interface and returns the name of the
// condition. For instance, given the error:
//
//	<stream:error>
//	  <restricted-xml xmlns="urn:ietf:params:xml:ns:xmpp-streams"/>
//	</stream:error>
//
// Error() would return "restricted-xml".
func (s Error) Error() string {
	if s.Text != "" {
		return s.Err + ": " + s.Text
	}
	return s.Err
}

// Is reports whether target is a stream error with the same condition.
func (s Error) Is(target error) bool {
	var se Error
	if !errors.As(target, &se) {
		return false
	}
	return se.Err == s.Err
}

// Element returns the <stream:error/> element for the error.
func (s Error) Element() *xmlnode.Element {
	cond := xmlnode.New(ErrorNS, s.Err)
	if s.Content != "" {
		cond.AddText(s.Content)
	}
	el := xmlnode.New(NS, "error").AddChild(cond)
	if s.Text != "" {
		text := xmlnode.New(ErrorNS, "text").AddText(s.Text)
		if s.Lang != "" {
			text.Attr = append(text.Attr, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: s.Lang})
		}
		el.AddChild(text)
	}
	return el
}

// Parse returns the stream error represented by el.
// Unknown conditions are kept; an error without a condition is reported as
// undefined-condition.
func Parse(el *xmlnode.Element) Error {
	e := UndefinedCondition
	if el.Name != errorName {
		return e
	}
	for _, child := range el.Elements() {
		if child.Name.Space != ErrorNS {
			continue
		}
		if child.Name.Local == "text" {
			e.Text = child.Text()
			for _, a := range child.Attr {
				if a.Name.Space == ns.XML && a.Name.Local == "lang" {
					e.Lang = a.Value
				}
			}
			continue
		}
		e.Err = child.Name.Local
		e.Content = child.Text()
	}
	return e
}
