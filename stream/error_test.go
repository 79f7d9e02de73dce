// Copyright 2015 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream_test

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"testing"

	"mellium.im/courier/stream"
	"mellium.im/courier/xmlnode"
)

var _ error = stream.Error{}

var seeOtherHostTests = [...]struct {
	addr net.Addr
	xml  string
}{
	0: {&net.IPAddr{IP: net.ParseIP("::1")}, `<error xmlns="http://etherx.jabber.org/streams"><see-other-host xmlns="urn:ietf:params:xml:ns:xmpp-streams">[::1]</see-other-host></error>`},
	1: {&net.IPAddr{IP: net.ParseIP("127.0.0.1")}, `<error xmlns="http://etherx.jabber.org/streams"><see-other-host xmlns="urn:ietf:params:xml:ns:xmpp-streams">127.0.0.1</see-other-host></error>`},
}

func TestSeeOtherHost(t *testing.T) {
	for i, tc := range seeOtherHostTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if s := stream.SeeOtherHostError(tc.addr).Element().String(); s != tc.xml {
				t.Errorf("bad output:\nwant=`%s`,\n got=`%s`", tc.xml, s)
			}
		})
	}
}

var parseTests = [...]struct {
	xml string
	se  stream.Error
}{
	0: {
		xml: `<stream:error xmlns:stream="http://etherx.jabber.org/streams"><restricted-xml xmlns="urn:ietf:params:xml:ns:xmpp-streams"/></stream:error>`,
		se:  stream.RestrictedXML,
	},
	1: {
		xml: `<stream:error xmlns:stream="http://etherx.jabber.org/streams"><conflict xmlns="urn:ietf:params:xml:ns:xmpp-streams"/><text xmlns="urn:ietf:params:xml:ns:xmpp-streams" xml:lang="en">Replaced by new connection</text></stream:error>`,
		se:  stream.Error{Err: "conflict", Text: "Replaced by new connection", Lang: "en"},
	},
	2: {
		xml: `<stream:error xmlns:stream="http://etherx.jabber.org/streams"><app-specific xmlns="urn:example"/></stream:error>`,
		se:  stream.UndefinedCondition,
	},
	3: {
		xml: `<stream:error xmlns:stream="http://etherx.jabber.org/streams"><see-other-host xmlns="urn:ietf:params:xml:ns:xmpp-streams">[2001:db8::1]:5222</see-other-host></stream:error>`,
		se:  stream.Error{Err: "see-other-host", Content: "[2001:db8::1]:5222"},
	},
}

func TestParse(t *testing.T) {
	for i, tc := range parseTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			el, err := xmlnode.Parse(tc.xml)
			if err != nil {
				t.Fatal(err)
			}
			if se := stream.Parse(el); se != tc.se {
				t.Errorf("wrong error: want=%#v, got=%#v", tc.se, se)
			}
		})
	}
}

func TestElementRoundTrip(t *testing.T) {
	se := stream.Error{Err: "system-shutdown", Text: "Going down for maintenance", Lang: "en"}
	const want = `<error xmlns="http://etherx.jabber.org/streams"><system-shutdown xmlns="urn:ietf:params:xml:ns:xmpp-streams"/><text xml:lang="en" xmlns="urn:ietf:params:xml:ns:xmpp-streams">Going down for maintenance</text></error>`
	if s := se.Element().String(); s != want {
		t.Fatalf("bad output:\nwant=`%s`,\n got=`%s`", want, s)
	}
	el, err := xmlnode.Parse(want)
	if err != nil {
		t.Fatal(err)
	}
	if got := stream.Parse(el); got != se {
		t.Errorf("round trip changed error: want=%#v, got=%#v", se, got)
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("reading: %w", stream.Error{Err: "conflict", Text: "bye"})
	if !errors.Is(err, stream.Conflict) {
		t.Error("expected wrapped conflict to match conflict")
	}
	if errors.Is(err, stream.Reset) {
		t.Error("did not expect conflict to match reset")
	}
	if e := (stream.Error{Err: "conflict", Text: "bye"}).Error(); e != "conflict: bye" {
		t.Errorf("wrong error string: %q", e)
	}
}
