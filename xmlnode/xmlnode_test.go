// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmlnode_test

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
	"testing"

	"mellium.im/xmlstream"

	"mellium.im/courier/internal/ns"
	"mellium.im/courier/xmlnode"
)

var _ xmlstream.WriterTo = (*xmlnode.Element)(nil)

func TestSerialize(t *testing.T) {
	for i, tc := range [...]struct {
		el  *xmlnode.Element
		out string
	}{
		0: {
			el:  xmlnode.New("", "foo"),
			out: `<foo/>`,
		},
		1: {
			el:  xmlnode.New("", "foo").AddText(""),
			out: `<foo></foo>`,
		},
		2: {
			el:  xmlnode.New("urn:example", "foo").SetAttr("zed", "1").SetAttr("alpha", "2"),
			out: `<foo alpha="2" xmlns="urn:example" zed="1"/>`,
		},
		3: {
			el:  xmlnode.New("", "foo").SetAttr("a", `<&'">`),
			out: `<foo a="&lt;&amp;&apos;&quot;&gt;"/>`,
		},
		4: {
			el:  xmlnode.New("", "foo").AddText(`a<b & c>'d"`),
			out: `<foo>a&lt;b &amp; c&gt;'d"</foo>`,
		},
		5: {
			el: xmlnode.New("urn:a", "outer").
				AddChild(xmlnode.New("urn:a", "same")).
				AddChild(xmlnode.New("urn:b", "other")),
			out: `<outer xmlns="urn:a"><same/><other xmlns="urn:b"/></outer>`,
		},
		6: {
			el: func() *xmlnode.Element {
				e := xmlnode.New("", "body")
				e.Attr = append(e.Attr, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: "en"})
				return e.AddText("hi")
			}(),
			out: `<body xml:lang="en">hi</body>`,
		},
		7: {
			el:  xmlnode.New("", "foo").SetAttr("a", "1").SetAttr("a", "2"),
			out: `<foo a="2"/>`,
		},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if s := tc.el.String(); s != tc.out {
				t.Errorf("wrong output:\nwant=%s,\n got=%s", tc.out, s)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	for i, tc := range [...]string{
		0: `<foo/>`,
		1: `<foo xmlns="urn:example"><bar a="1" b="2"/><baz>text</baz></foo>`,
		2: `<x type="submit" xmlns="jabber:x:data"><field type="hidden" var="FORM_TYPE"><value>urn:example</value></field></x>`,
		3: `<a xmlns="urn:a"><b xmlns="urn:b"><c/></b></a>`,
		4: `<foo attr="&lt;&amp;&quot;"/>`,
		5: `<foo>&amp;</foo>`,
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			el, err := xmlnode.Parse(tc)
			if err != nil {
				t.Fatalf("unexpected error parsing: %v", err)
			}
			if s := el.String(); s != tc {
				t.Errorf("round trip changed output:\nwant=%s,\n got=%s", tc, s)
			}
			again, err := xmlnode.Parse(el.String())
			if err != nil {
				t.Fatalf("unexpected error re-parsing: %v", err)
			}
			if !el.Equal(again) {
				t.Errorf("re-parsed tree not equal to original")
			}
		})
	}
}

func TestEqualIgnoresAttrOrder(t *testing.T) {
	a := xmlnode.New("", "foo").SetAttr("a", "1").SetAttr("b", "2")
	b := xmlnode.New("", "foo").SetAttr("b", "2").SetAttr("a", "1")
	if !a.Equal(b) {
		t.Error("expected elements with reordered attributes to be equal")
	}
	b.SetAttr("b", "3")
	if a.Equal(b) {
		t.Error("expected elements with different attribute values to differ")
	}
}

func TestAccessors(t *testing.T) {
	el, err := xmlnode.Parse(`<iq xmlns="jabber:client" id="1"><query xmlns="urn:q">a<b/>c</query></iq>`)
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := el.Attribute("id"); !ok || id != "1" {
		t.Errorf("wrong id attribute: %q, %t", id, ok)
	}
	if _, ok := el.Attribute("xmlns"); ok {
		t.Errorf("namespace declarations should not be kept as attributes")
	}
	q := el.Child(xml.Name{Space: "urn:q", Local: "query"})
	if q == nil {
		t.Fatal("query child not found")
	}
	if el.Child(xml.Name{Space: "urn:wrong", Local: "query"}) != nil {
		t.Error("child lookup should respect namespace")
	}
	if el.Child(xml.Name{Local: "query"}) != q {
		t.Error("child lookup with empty namespace should match any namespace")
	}
	if txt := q.Text(); txt != "ac" {
		t.Errorf("wrong text: want=ac, got=%s", txt)
	}
	if n := len(q.Elements()); n != 1 {
		t.Errorf("wrong number of child elements: want=1, got=%d", n)
	}
}

func TestTokenReader(t *testing.T) {
	el := xmlnode.New("urn:example", "foo").SetAttr("a", "1").
		AddChild(xmlnode.New("urn:example", "bar").AddText("baz"))
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	if _, err := el.WriteXML(e); err != nil {
		t.Fatal(err)
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	d := xml.NewDecoder(&buf)
	tok, err := d.Token()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := xmlnode.Decode(d, tok.(xml.StartElement))
	if err != nil {
		t.Fatal(err)
	}
	if !el.Equal(decoded) {
		t.Errorf("decoded tree differs: want=%s, got=%s", el, decoded)
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, err := xmlnode.Parse(`<foo><bar>`); err == nil {
		t.Error("expected error decoding truncated element")
	}
	if _, err := xmlnode.Parse(``); err == nil {
		t.Error("expected error decoding empty input")
	}
}

func TestDecodeStopsAtEnd(t *testing.T) {
	d := xml.NewDecoder(strings.NewReader(`<a xmlns="urn:example"><b><c/>text</b><b/></a><next/>`))
	tok, err := d.Token()
	if err != nil {
		t.Fatal(err)
	}
	el, err := xmlnode.Decode(d, tok.(xml.StartElement))
	if err != nil {
		t.Fatal(err)
	}
	const want = `<a xmlns="urn:example"><b><c/>text</b><b/></a>`
	if s := el.Serialize(""); s != want {
		t.Errorf("wrong element:\nwant=%s,\n got=%s", want, s)
	}
	tok, err = d.Token()
	if err != nil {
		t.Fatal(err)
	}
	if start, ok := tok.(xml.StartElement); !ok || start.Name.Local != "next" {
		t.Errorf("decoder not left after the element, next token is %#v", tok)
	}
}
