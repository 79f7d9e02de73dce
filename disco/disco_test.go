// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package disco_test

import (
	"testing"

	"mellium.im/courier/codec"
	"mellium.im/courier/disco"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/jid"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xmlnode"
)

const infoXML = `<query node="http://example.net/client#caps" xmlns="http://jabber.org/protocol/disco#info">` +
	`<identity category="client" name="Courier" type="pc" xml:lang="en"/>` +
	`<feature var="http://jabber.org/protocol/disco#info"/>` +
	`<feature var="urn:xmpp:ping"/>` +
	`</query>`

func TestInfoRoundTrip(t *testing.T) {
	r := codec.NewRegistry()
	if err := disco.Register(r); err != nil {
		t.Fatal(err)
	}
	el, err := xmlnode.Parse(infoXML)
	if err != nil {
		t.Fatal(err)
	}
	p, err := r.Parse(el)
	if err != nil {
		t.Fatal(err)
	}
	q, ok := p.(disco.InfoQuery)
	if !ok {
		t.Fatalf("wrong payload type: %T", p)
	}
	if !q.HasFeature("urn:xmpp:ping") {
		t.Error("expected ping feature to be advertised")
	}
	if q.HasFeature("urn:example:missing") {
		t.Error("unexpected feature reported")
	}
	if len(q.Identities) != 1 || q.Identities[0].Lang != "en" {
		t.Errorf("wrong identities: %+v", q.Identities)
	}
	out, err := r.Serialize(q)
	if err != nil {
		t.Fatal(err)
	}
	if s := out.String(); s != infoXML {
		t.Errorf("round trip changed output:\nwant=%s,\n got=%s", infoXML, s)
	}
}

func TestGetInfo(t *testing.T) {
	r := codec.NewRegistry()
	if err := disco.Register(r); err != nil {
		t.Fatal(err)
	}
	iq := disco.GetInfo(jid.MustParse("example.net"), "")
	iq.ID = "info1"
	el, err := stanza.Marshal(r, iq)
	if err != nil {
		t.Fatal(err)
	}
	const want = `<iq id="info1" to="example.net" type="get"><query xmlns="http://jabber.org/protocol/disco#info"/></iq>`
	if s := el.Serialize(ns.Client); s != want {
		t.Errorf("wrong output:\nwant=%s,\n got=%s", want, s)
	}
}

func TestInvalidInfo(t *testing.T) {
	r := codec.NewRegistry()
	if err := disco.Register(r); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{
		`<query xmlns="http://jabber.org/protocol/disco#info"><feature/></query>`,
		`<query xmlns="http://jabber.org/protocol/disco#info"><identity type="pc"/></query>`,
	} {
		el, err := xmlnode.Parse(s)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.Parse(el); err == nil {
			t.Errorf("expected error parsing %s", s)
		}
	}
}
