// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package ping_test

import (
	"testing"

	"mellium.im/courier/codec"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/jid"
	"mellium.im/courier/ping"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xmlnode"
)

func TestEncode(t *testing.T) {
	r := codec.NewRegistry()
	if err := ping.Register(r); err != nil {
		t.Fatal(err)
	}
	iq := ping.IQ(jid.MustParse("feste@example.net/siJo4eeT"))
	iq.ID = "123"
	el, err := stanza.Marshal(r, iq)
	if err != nil {
		t.Fatal(err)
	}
	const want = `<iq id="123" to="feste@example.net/siJo4eeT" type="get"><ping xmlns="urn:xmpp:ping"/></iq>`
	if s := el.Serialize(ns.Client); s != want {
		t.Errorf("wrong output:\nwant=%s,\n got=%s", want, s)
	}
}

func TestIs(t *testing.T) {
	r := codec.NewRegistry()
	if err := ping.Register(r); err != nil {
		t.Fatal(err)
	}
	el, err := xmlnode.Parse(`<iq xmlns="jabber:client" id="p" type="get"><ping xmlns="urn:xmpp:ping"/></iq>`)
	if err != nil {
		t.Fatal(err)
	}
	s, err := stanza.Unmarshal(r, el, stanza.KeepUnknown)
	if err != nil {
		t.Fatal(err)
	}
	iq := s.(stanza.IQ)
	if !ping.Is(iq) {
		t.Error("expected IQ to be recognized as a ping")
	}
	if ping.Is(iq.Result()) {
		t.Error("ping result should not be recognized as a ping request")
	}
}
