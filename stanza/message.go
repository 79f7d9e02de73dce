// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"mellium.im/courier/codec"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/jid"
	"mellium.im/courier/xmlnode"
)

// Message is an XMPP stanza that contains a payload for direct one-to-one
// communication with another network entity. It is often used for sending chat
// messages to an individual or group chat server, or for notifications and
// alerts that don't require a response.
type Message struct {
	Header
	Type MessageType
}

// MessageType is the type of a message stanza.
// It should normally be one of the constants defined in this package.
type MessageType string

const (
	// NormalMessage is a standalone message that is sent outside the context of
	// a one-to-one conversation or groupchat, and to which it is expected that
	// the recipient will reply.
	NormalMessage MessageType = "normal"

	// ChatMessage represents a message sent in the context of a one-to-one chat
	// session.
	ChatMessage MessageType = "chat"

	// ErrorMessage is generated by an entity that experiences an error when
	// processing a message received from another entity.
	ErrorMessage MessageType = "error"

	// GroupChatMessage is sent in the context of a multi-user chat environment.
	GroupChatMessage MessageType = "groupchat"

	// HeadlineMessage is used to provide an alert, a notification, or other
	// transient information to which no reply is expected.
	HeadlineMessage MessageType = "headline"
)

// NewMessage returns a message of type typ with a single body.
func NewMessage(to jid.JID, typ MessageType, body string) Message {
	return Message{
		Header: Header{
			To:       to,
			Payloads: []codec.Payload{Body{Text: body}},
		},
		Type: typ,
	}
}

// Kind satisfies the Stanza interface.
func (Message) Kind() Kind { return KindMessage }

// Head satisfies the Stanza interface.
func (m Message) Head() Header { return m.Header }

func (Message) isStanza() {}

// Body returns the text of the first body payload.
func (m Message) Body() string {
	if b, ok := m.Payload(bodyName).(Body); ok {
		return b.Text
	}
	return ""
}

var bodyName = xml.Name{Space: ns.Client, Local: "body"}

// Body is the human readable text of a message.
type Body struct {
	Text string
}

// XMLName satisfies the codec.Payload interface.
func (Body) XMLName() xml.Name { return bodyName }

var bodyCodec = codec.Codec{
	Name: bodyName,
	Parse: func(el *xmlnode.Element) (codec.Payload, error) {
		return Body{Text: el.Text()}, nil
	},
	Serialize: func(p codec.Payload) (*xmlnode.Element, error) {
		return xmlnode.New(ns.Client, "body").AddText(p.(Body).Text), nil
	},
}
