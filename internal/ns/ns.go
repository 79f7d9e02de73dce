// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides namespace constants that are used by the courier package
// and other internal packages.
package ns // import "mellium.im/courier/internal/ns"

// List of commonly used namespaces.
const (
	Bind     = "urn:ietf:params:xml:ns:xmpp-bind"
	Client   = "jabber:client"
	Server   = "jabber:server"
	SASL     = "urn:ietf:params:xml:ns:xmpp-sasl"
	Session  = "urn:ietf:params:xml:ns:xmpp-session"
	StartTLS = "urn:ietf:params:xml:ns:xmpp-tls"
	Stanza   = "urn:ietf:params:xml:ns:xmpp-stanzas"
	Stream   = "http://etherx.jabber.org/streams"
	Streams  = "urn:ietf:params:xml:ns:xmpp-streams"
	SM       = "urn:xmpp:sm:3"
	XML      = "http://www.w3.org/XML/1998/namespace"

	// Compression features and protocol (XEP-0138).
	CompressFeature  = "http://jabber.org/features/compress"
	CompressProtocol = "http://jabber.org/protocol/compress"
)
