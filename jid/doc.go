// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package jid implements XMPP addresses (historically called "Jabber ID's" or
// "JID's") as described in RFC 7622.
//
// A JID is an immutable value. All normalization, including case folding of
// the domainpart, happens when the JID is constructed so that two JIDs which
// refer to the same entity compare equal.
package jid // import "mellium.im/courier/jid"
