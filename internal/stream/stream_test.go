// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream_test

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"mellium.im/courier/internal/stream"
	"mellium.im/courier/jid"
	publicstream "mellium.im/courier/stream"
)

const header = `<stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams"`

func TestSend(t *testing.T) {
	for i, tc := range [...]struct {
		to, from jid.JID
		lang     string
		out      string
	}{
		0: {
			to:  jid.MustParse("example.net"),
			out: stream.XMLHeader + `<stream:stream to='example.net' version='1.0' xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`,
		},
		1: {
			to:   jid.MustParse("juliet@example.com/balcony"),
			from: jid.MustParse("juliet@example.com/balcony"),
			lang: "en",
			out:  stream.XMLHeader + `<stream:stream to='example.com' version='1.0' from='juliet@example.com' xml:lang='en' xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`,
		},
		2: {
			to:   jid.MustParse("example.net"),
			lang: `a'b`,
			out:  stream.XMLHeader + `<stream:stream to='example.net' version='1.0' xml:lang='a&#39;b' xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`,
		},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			var buf bytes.Buffer
			if err := stream.Send(&buf, tc.to, tc.from, tc.lang); err != nil {
				t.Fatal(err)
			}
			if s := buf.String(); s != tc.out {
				t.Errorf("wrong header:\nwant=%s,\n got=%s", tc.out, s)
			}
		})
	}
}

func TestClose(t *testing.T) {
	var buf bytes.Buffer
	if err := stream.Close(&buf); err != nil {
		t.Fatal(err)
	}
	if s := buf.String(); s != `</stream:stream>` {
		t.Errorf("wrong output: %q", s)
	}
}

var expectTests = [...]struct {
	in  string
	id  string
	err error
}{
	0: {in: xml.Header + header + ` id='abc' version='1.0' from='example.net'>`, id: "abc"},
	1: {in: "\n" + header + ` id='abc' version='1.0'>`, id: "abc"},
	2: {in: header + ` version='1.0'>`, err: publicstream.BadFormat},
	3: {in: header + ` id='abc' version='2.0'>`, err: publicstream.UnsupportedVersion},
	4: {in: `<stream:stream xmlns:stream="urn:wrong" id='abc' version='1.0'>`, err: publicstream.InvalidNamespace},
	5: {in: `<features/>`, err: publicstream.BadFormat},
	6: {in: `<?php?>`, err: publicstream.RestrictedXML},
	7: {
		in:  `<stream:error xmlns:stream="http://etherx.jabber.org/streams"><host-unknown xmlns="urn:ietf:params:xml:ns:xmpp-streams"/></stream:error>`,
		err: publicstream.HostUnknown,
	},
	8:  {in: `text`, err: publicstream.BadFormat},
	9:  {in: ``, err: io.EOF},
	10: {in: header + ` id='abc' from='@bad' version='1.0'>`, err: publicstream.ImproperAddressing},
}

func TestExpect(t *testing.T) {
	for i, tc := range expectTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			info, err := stream.Expect(context.Background(), xml.NewDecoder(strings.NewReader(tc.in)))
			if !errors.Is(err, tc.err) && err != tc.err {
				t.Fatalf("wrong error: want=%v, got=%v", tc.err, err)
			}
			if info.ID != tc.id {
				t.Errorf("wrong stream ID: want=%q, got=%q", tc.id, info.ID)
			}
		})
	}
}

func TestExpectCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := stream.Expect(ctx, xml.NewDecoder(strings.NewReader(header+` id='a' version='1.0'>`)))
	if err != context.Canceled {
		t.Errorf("wrong error: %v", err)
	}
}

func TestNext(t *testing.T) {
	const in = header + ` id='abc' version='1.0'>` +
		` <stream:features><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/></stream:features>` + "\n" +
		`<message to="a@example.net"><body>hi</body></message>` +
		`</stream:stream>`
	d := xml.NewDecoder(strings.NewReader(in))
	if _, err := stream.Expect(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	el, err := stream.Next(d)
	if err != nil {
		t.Fatal(err)
	}
	if el.Name != (xml.Name{Space: publicstream.NS, Local: "features"}) {
		t.Errorf("wrong first element: %v", el.Name)
	}
	el, err = stream.Next(d)
	if err != nil {
		t.Fatal(err)
	}
	if el.Name.Local != "message" || el.Name.Space != "jabber:client" {
		t.Errorf("wrong second element: %v", el.Name)
	}
	if _, err = stream.Next(d); err != io.EOF {
		t.Errorf("expected EOF at end of stream, got %v", err)
	}
}

func TestNextErrors(t *testing.T) {
	for i, tc := range [...]struct {
		in  string
		err error
	}{
		0: {in: `<stream:error><conflict xmlns="urn:ietf:params:xml:ns:xmpp-streams"/></stream:error>`, err: publicstream.Conflict},
		1: {in: `<stream:stream>`, err: stream.ErrUnexpectedRestart},
		2: {in: `not whitespace`, err: publicstream.BadFormat},
		3: {in: `<!-- comment -->`, err: publicstream.RestrictedXML},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			d := xml.NewDecoder(strings.NewReader(header + ` id='abc' version='1.0'>` + tc.in))
			if _, err := stream.Expect(context.Background(), d); err != nil {
				t.Fatal(err)
			}
			_, err := stream.Next(d)
			if !errors.Is(err, tc.err) {
				t.Errorf("wrong error: want=%v, got=%v", tc.err, err)
			}
		})
	}
}
