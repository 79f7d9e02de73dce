// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"encoding/xml"
	"fmt"

	"mellium.im/courier/compress"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/stream"
	"mellium.im/courier/xmlnode"
)

var featuresName = xml.Name{Space: stream.NS, Local: "features"}

// Features are the stream features offered by a server after a stream
// (re)start.
type Features struct {
	StartTLS         bool
	StartTLSRequired bool
	Mechanisms       []string
	Compression      []string
	Bind             bool

	// Session is set if the server requires legacy session establishment.
	Session bool

	StreamManagement bool

	// Unknown holds the features that are not understood.
	Unknown []*xmlnode.Element
}

// ParseFeatures reads the features list sent by the server.
func ParseFeatures(el *xmlnode.Element) (Features, error) {
	var f Features
	if el.Name != featuresName {
		return f, fmt.Errorf("courier: expected stream features, got {%s}%s", el.Name.Space, el.Name.Local)
	}
	for _, child := range el.Elements() {
		switch child.Name {
		case xml.Name{Space: ns.StartTLS, Local: "starttls"}:
			f.StartTLS = true
			f.StartTLSRequired = child.Child(xml.Name{Space: ns.StartTLS, Local: "required"}) != nil
		case xml.Name{Space: ns.SASL, Local: "mechanisms"}:
			for _, m := range child.Elements() {
				if m.Name.Local == "mechanism" {
					f.Mechanisms = append(f.Mechanisms, m.Text())
				}
			}
		case xml.Name{Space: compress.NSFeatures, Local: "compression"}:
			f.Compression = compress.Methods(child)
		case xml.Name{Space: ns.Bind, Local: "bind"}:
			f.Bind = true
		case xml.Name{Space: ns.Session, Local: "session"}:
			f.Session = child.Child(xml.Name{Space: ns.Session, Local: "optional"}) == nil
		case xml.Name{Space: ns.SM, Local: "sm"}:
			f.StreamManagement = true
		default:
			f.Unknown = append(f.Unknown, child)
		}
	}
	return f, nil
}

// errUnexpected describes an element that was not expected at this point of
// the negotiation.
func errUnexpected(el *xmlnode.Element) error {
	return fmt.Errorf("courier: unexpected element {%s}%s", el.Name.Space, el.Name.Local)
}
