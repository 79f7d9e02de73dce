// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package disco implements the info query of XEP-0030: Service Discovery.
package disco // import "mellium.im/courier/disco"

import (
	"encoding/xml"
	"errors"

	"mellium.im/courier/codec"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/jid"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xmlnode"
)

// NSInfo is the namespace of service discovery info queries.
const NSInfo = `http://jabber.org/protocol/disco#info`

var queryName = xml.Name{Space: NSInfo, Local: "query"}

// Identity is the type and category of a node on the network.
type Identity struct {
	Category string
	Type     string
	Name     string
	Lang     string
}

// InfoQuery is a request for, or the response describing, the identities and
// features of an entity.
type InfoQuery struct {
	Node       string
	Identities []Identity
	Features   []string
}

// XMLName satisfies the codec.Payload interface.
func (InfoQuery) XMLName() xml.Name { return queryName }

// HasFeature reports whether the entity advertised the feature var.
func (q InfoQuery) HasFeature(v string) bool {
	for _, f := range q.Features {
		if f == v {
			return true
		}
	}
	return false
}

// Element converts the query into an element tree.
func (q InfoQuery) Element() *xmlnode.Element {
	el := xmlnode.New(NSInfo, "query")
	if q.Node != "" {
		el.SetAttr("node", q.Node)
	}
	for _, ident := range q.Identities {
		child := xmlnode.New(NSInfo, "identity").
			SetAttr("category", ident.Category).
			SetAttr("type", ident.Type)
		if ident.Name != "" {
			child.SetAttr("name", ident.Name)
		}
		if ident.Lang != "" {
			child.Attr = append(child.Attr, xml.Attr{
				Name:  xml.Name{Space: ns.XML, Local: "lang"},
				Value: ident.Lang,
			})
		}
		el.AddChild(child)
	}
	for _, f := range q.Features {
		el.AddChild(xmlnode.New(NSInfo, "feature").SetAttr("var", f))
	}
	return el
}

func parseInfo(el *xmlnode.Element) (codec.Payload, error) {
	q := InfoQuery{}
	q.Node, _ = el.Attribute("node")
	for _, child := range el.Elements() {
		switch child.Name.Local {
		case "identity":
			ident := Identity{}
			ident.Category, _ = child.Attribute("category")
			ident.Type, _ = child.Attribute("type")
			ident.Name, _ = child.Attribute("name")
			for _, a := range child.Attr {
				if a.Name.Space == ns.XML && a.Name.Local == "lang" {
					ident.Lang = a.Value
				}
			}
			if ident.Category == "" || ident.Type == "" {
				return nil, errors.New("disco: identity missing category or type")
			}
			q.Identities = append(q.Identities, ident)
		case "feature":
			v, ok := child.Attribute("var")
			if !ok || v == "" {
				return nil, errors.New("disco: feature missing var")
			}
			q.Features = append(q.Features, v)
		}
	}
	return q, nil
}

// Register adds the info query codec to r.
func Register(r *codec.Registry) error {
	return r.Register(codec.Codec{
		Name:  queryName,
		Parse: parseInfo,
		Serialize: func(p codec.Payload) (*xmlnode.Element, error) {
			q, ok := p.(InfoQuery)
			if !ok {
				return nil, codec.ErrNoCodec
			}
			return q.Element(), nil
		},
	})
}

// GetInfo returns an IQ requesting the identities and features of to.
func GetInfo(to jid.JID, node string) stanza.IQ {
	return stanza.IQ{
		Header: stanza.Header{
			To:       to,
			Payloads: []codec.Payload{InfoQuery{Node: node}},
		},
		Type: stanza.GetIQ,
	}
}
