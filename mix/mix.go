// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package mix implements the channel management payloads of XEP-0369: Mediated
// Information eXchange (MIX).
package mix // import "mellium.im/courier/mix"

import (
	"encoding/xml"
	"errors"

	"mellium.im/courier/codec"
	"mellium.im/courier/form"
	"mellium.im/courier/jid"
	"mellium.im/courier/xmlnode"
)

// NS is the namespace used by MIX channel payloads.
const NS = "urn:xmpp:mix:1"

// Nodes that a participant can subscribe to when joining a channel.
const (
	NodeMessages     = "urn:xmpp:mix:nodes:messages"
	NodePresence     = "urn:xmpp:mix:nodes:presence"
	NodeParticipants = "urn:xmpp:mix:nodes:participants"
	NodeConfig       = "urn:xmpp:mix:nodes:config"
	NodeInfo         = "urn:xmpp:mix:nodes:info"
)

var (
	joinName    = xml.Name{Space: NS, Local: "join"}
	leaveName   = xml.Name{Space: NS, Local: "leave"}
	createName  = xml.Name{Space: NS, Local: "create"}
	destroyName = xml.Name{Space: NS, Local: "destroy"}
)

// Join is a request to join a channel, or the server's response to one.
// Channel is set when a client sends the request through its own server, JID
// is set by the channel to the participant's proxy JID.
type Join struct {
	Channel       jid.JID
	JID           jid.JID
	Subscriptions []string
	Form          *form.Data
}

// XMLName satisfies the codec.Payload interface.
func (Join) XMLName() xml.Name { return joinName }

// Element converts the join payload into an element tree.
func (j Join) Element() *xmlnode.Element {
	el := xmlnode.New(NS, "join")
	if !j.Channel.IsZero() {
		el.SetAttr("channel", j.Channel.String())
	}
	if !j.JID.IsZero() {
		el.SetAttr("jid", j.JID.String())
	}
	for _, node := range j.Subscriptions {
		el.AddChild(xmlnode.New(NS, "subscribe").SetAttr("node", node))
	}
	if j.Form != nil {
		el.AddChild(j.Form.Element())
	}
	return el
}

// Leave is a request to leave a channel.
type Leave struct {
	Channel jid.JID
}

// XMLName satisfies the codec.Payload interface.
func (Leave) XMLName() xml.Name { return leaveName }

// Element converts the leave payload into an element tree.
func (l Leave) Element() *xmlnode.Element {
	el := xmlnode.New(NS, "leave")
	if !l.Channel.IsZero() {
		el.SetAttr("channel", l.Channel.String())
	}
	return el
}

// Create is a request to create a channel.
// If Channel is empty the service picks a name for the new channel.
type Create struct {
	Channel string
	Form    *form.Data
}

// XMLName satisfies the codec.Payload interface.
func (Create) XMLName() xml.Name { return createName }

// Element converts the create payload into an element tree.
func (c Create) Element() *xmlnode.Element {
	el := xmlnode.New(NS, "create")
	if c.Channel != "" {
		el.SetAttr("channel", c.Channel)
	}
	if c.Form != nil {
		el.AddChild(c.Form.Element())
	}
	return el
}

// Destroy is a request to destroy a channel.
type Destroy struct {
	Channel string
}

// XMLName satisfies the codec.Payload interface.
func (Destroy) XMLName() xml.Name { return destroyName }

// Element converts the destroy payload into an element tree.
func (d Destroy) Element() *xmlnode.Element {
	return xmlnode.New(NS, "destroy").SetAttr("channel", d.Channel)
}

func parseJIDAttr(el *xmlnode.Element, name string) (jid.JID, error) {
	v, ok := el.Attribute(name)
	if !ok {
		return jid.JID{}, nil
	}
	return jid.Parse(v)
}

func parseForm(el *xmlnode.Element) (*form.Data, error) {
	x := el.Child(xml.Name{Space: form.NS, Local: "x"})
	if x == nil {
		return nil, nil
	}
	return form.Parse(x)
}

func parseJoin(el *xmlnode.Element) (codec.Payload, error) {
	var j Join
	var err error
	if j.Channel, err = parseJIDAttr(el, "channel"); err != nil {
		return nil, err
	}
	if j.JID, err = parseJIDAttr(el, "jid"); err != nil {
		return nil, err
	}
	for _, child := range el.Elements() {
		if child.Name != (xml.Name{Space: NS, Local: "subscribe"}) {
			continue
		}
		node, ok := child.Attribute("node")
		if !ok || node == "" {
			return nil, errors.New("mix: subscribe element missing node")
		}
		j.Subscriptions = append(j.Subscriptions, node)
	}
	if j.Form, err = parseForm(el); err != nil {
		return nil, err
	}
	return j, nil
}

func parseLeave(el *xmlnode.Element) (codec.Payload, error) {
	channel, err := parseJIDAttr(el, "channel")
	if err != nil {
		return nil, err
	}
	return Leave{Channel: channel}, nil
}

func parseCreate(el *xmlnode.Element) (codec.Payload, error) {
	c := Create{}
	c.Channel, _ = el.Attribute("channel")
	var err error
	if c.Form, err = parseForm(el); err != nil {
		return nil, err
	}
	return c, nil
}

func parseDestroy(el *xmlnode.Element) (codec.Payload, error) {
	channel, ok := el.Attribute("channel")
	if !ok || channel == "" {
		return nil, errors.New("mix: destroy element missing channel")
	}
	return Destroy{Channel: channel}, nil
}

type elementer interface {
	Element() *xmlnode.Element
}

func serialize(p codec.Payload) (*xmlnode.Element, error) {
	e, ok := p.(elementer)
	if !ok {
		return nil, codec.ErrNoCodec
	}
	return e.Element(), nil
}

// Register adds the codecs for the MIX channel payloads to r.
func Register(r *codec.Registry) error {
	for _, c := range []codec.Codec{
		{Name: joinName, Parse: parseJoin, Serialize: serialize},
		{Name: leaveName, Parse: parseLeave, Serialize: serialize},
		{Name: createName, Parse: parseCreate, Serialize: serialize},
		{Name: destroyName, Parse: parseDestroy, Serialize: serialize},
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
