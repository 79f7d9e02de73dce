// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"mellium.im/courier/jid"
)

// Presence broadcasts or directs the availability of an entity and manages
// presence subscriptions.
type Presence struct {
	Header
	Type PresenceType
}

// PresenceType is the type attribute of a presence.
// The empty type means the sender is available.
type PresenceType string

// Presence types.
const (
	AvailablePresence    PresenceType = ""
	ErrorPresence        PresenceType = "error"
	ProbePresence        PresenceType = "probe"
	SubscribePresence    PresenceType = "subscribe"
	SubscribedPresence   PresenceType = "subscribed"
	UnavailablePresence  PresenceType = "unavailable"
	UnsubscribePresence  PresenceType = "unsubscribe"
	UnsubscribedPresence PresenceType = "unsubscribed"
)

// NewPresence returns a presence of type typ addressed to to.
// A zero to broadcasts the presence to the sender's subscribers.
func NewPresence(to jid.JID, typ PresenceType) Presence {
	return Presence{Header: Header{To: to}, Type: typ}
}

// Available reports whether the presence announces that its sender can be
// reached.
func (p Presence) Available() bool {
	return p.Type == AvailablePresence
}

// Kind satisfies the Stanza interface.
func (Presence) Kind() Kind { return KindPresence }

// Head satisfies the Stanza interface.
func (p Presence) Head() Header { return p.Header }

func (Presence) isStanza() {}
