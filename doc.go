// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package courier is the client core of an XMPP library.
//
// It establishes a transport connection, negotiates a secure, optionally
// compressed and authenticated stream with a server, binds a resource and then
// exchanges stanzas over the stream.
//
// # Sessions
//
// A Session negotiates and serves a single stream over an established
// connection.
// Negotiation proceeds through the states Negotiating, Authenticating,
// BindingResource and Establishing until the session is Initialized.
// Stanzas may only be sent while the session is Initialized; any other attempt
// is rejected without touching the connection.
//
// Each session is driven by a single goroutine.
// All handlers are called from that goroutine in the order the server sent the
// data that triggered them, and no handler is called after the session has
// reported that it finished.
//
// # Requests
//
// IQ stanzas are correlated with their responses by an IQRouter.
// Every request is eventually resolved: by its response, by a timeout, or with
// ErrAborted when the session ends.
//
// # Clients
//
// Most users will want a Client, which ties a connector, a session and an
// IQRouter together and reports events through a Handlers value.
package courier // import "mellium.im/courier"
