// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmlnode implements a small XML element tree with a deterministic
// serializer.
//
// Payload codecs build and inspect trees from this package instead of working
// on raw token streams.
// Serialization is exact: attributes (including any namespace declaration)
// are written in name order, attribute values always escape the five markup
// characters, and an element without children is written in its self-closing
// form while an element with any child, even empty text, is written as an
// explicit open/close pair.
package xmlnode // import "mellium.im/courier/xmlnode"

import (
	"encoding/xml"
	"errors"
	"io"
	"sort"
	"strings"

	"mellium.im/xmlstream"

	"mellium.im/courier/internal/ns"
)

// Node is a member of an element's child list.
// It is either an *Element or Text.
type Node interface {
	isNode()
}

// Text is character data inside an element.
type Text string

func (Text) isNode() {}

// Element is an XML element with an ordered attribute and child list.
type Element struct {
	Name     xml.Name
	Attr     []xml.Attr
	Children []Node
}

func (*Element) isNode() {}

// New returns an element with the given qualified name.
func New(space, local string) *Element {
	return &Element{Name: xml.Name{Space: space, Local: local}}
}

// SetAttr sets the unqualified attribute local to value, replacing any existing
// value. It returns the element to allow chaining.
func (e *Element) SetAttr(local, value string) *Element {
	for i, a := range e.Attr {
		if a.Name.Space == "" && a.Name.Local == local {
			e.Attr[i].Value = value
			return e
		}
	}
	e.Attr = append(e.Attr, xml.Attr{Name: xml.Name{Local: local}, Value: value})
	return e
}

// Attribute returns the value of the unqualified attribute local and whether it
// was present.
func (e *Element) Attribute(local string) (string, bool) {
	for _, a := range e.Attr {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// AddChild appends n to the element's children.
func (e *Element) AddChild(n Node) *Element {
	e.Children = append(e.Children, n)
	return e
}

// AddText appends character data to the element's children.
func (e *Element) AddText(s string) *Element {
	return e.AddChild(Text(s))
}

// Elements returns the child elements, skipping character data.
func (e *Element) Elements() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok {
			out = append(out, el)
		}
	}
	return out
}

// Child returns the first child element with the given name or nil.
// An empty namespace matches any namespace.
func (e *Element) Child(name xml.Name) *Element {
	for _, c := range e.Children {
		el, ok := c.(*Element)
		if !ok || el.Name.Local != name.Local {
			continue
		}
		if name.Space == "" || name.Space == el.Name.Space {
			return el
		}
	}
	return nil
}

// Text returns the concatenated character data of the direct children.
func (e *Element) Text() string {
	var b strings.Builder
	for _, c := range e.Children {
		if t, ok := c.(Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// Equal reports whether the two trees have the same names, attributes (in any
// order), and children.
func (e *Element) Equal(o *Element) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Name != o.Name || len(e.Attr) != len(o.Attr) || len(e.Children) != len(o.Children) {
		return false
	}
	for _, a := range e.Attr {
		found := false
		for _, b := range o.Attr {
			if a == b {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, c := range e.Children {
		switch c := c.(type) {
		case Text:
			t, ok := o.Children[i].(Text)
			if !ok || t != c {
				return false
			}
		case *Element:
			el, ok := o.Children[i].(*Element)
			if !ok || !c.Equal(el) {
				return false
			}
		}
	}
	return true
}

// String serializes the element as a top level element.
func (e *Element) String() string {
	return e.Serialize("")
}

// Serialize writes the element as if it were a child of an element in the
// namespace parentNS. A namespace declaration is only written when the
// element's namespace differs from its parent's.
func (e *Element) Serialize(parentNS string) string {
	var b strings.Builder
	e.serialize(&b, parentNS)
	return b.String()
}

type attrPair struct {
	name, value string
}

func attrName(n xml.Name) string {
	switch n.Space {
	case "":
		return n.Local
	case ns.XML, "xml":
		return "xml:" + n.Local
	case "xmlns":
		return "xmlns:" + n.Local
	}
	return n.Local
}

func (e *Element) serialize(b *strings.Builder, parentNS string) {
	attrs := make([]attrPair, 0, len(e.Attr)+1)
	for _, a := range e.Attr {
		if a.Name.Space == "" && a.Name.Local == "xmlns" {
			continue
		}
		attrs = append(attrs, attrPair{name: attrName(a.Name), value: a.Value})
	}
	if e.Name.Space != parentNS {
		attrs = append(attrs, attrPair{name: "xmlns", value: e.Name.Space})
	}
	sort.SliceStable(attrs, func(i, j int) bool {
		return attrs[i].name < attrs[j].name
	})

	b.WriteByte('<')
	b.WriteString(e.Name.Local)
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(a.name)
		b.WriteString(`="`)
		b.WriteString(attrEscaper.Replace(a.value))
		b.WriteByte('"')
	}
	if len(e.Children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	for _, c := range e.Children {
		switch c := c.(type) {
		case Text:
			b.WriteString(textEscaper.Replace(string(c)))
		case *Element:
			c.serialize(b, e.Name.Space)
		}
	}
	b.WriteString("</")
	b.WriteString(e.Name.Local)
	b.WriteByte('>')
}

var (
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"'", "&apos;",
		`"`, "&quot;",
	)
	textEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
)

// TokenReader returns a stream of tokens encoding the element.
func (e *Element) TokenReader() xml.TokenReader {
	inner := make([]xml.TokenReader, 0, len(e.Children))
	for _, c := range e.Children {
		switch c := c.(type) {
		case Text:
			inner = append(inner, xmlstream.Token(xml.CharData(c)))
		case *Element:
			inner = append(inner, c.TokenReader())
		}
	}
	attr := make([]xml.Attr, len(e.Attr))
	copy(attr, e.Attr)
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{Name: e.Name, Attr: attr},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
func (e *Element) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, e.TokenReader())
}

// Decode reads the rest of the element started by start from r and returns it
// as a tree.
// Namespace declarations are dropped from the attribute list since they are
// carried by the element names.
func Decode(r xml.TokenReader, start xml.StartElement) (*Element, error) {
	return decodeInner(xmlstream.Inner(unexpectedEOF{r}), start)
}

// decodeInner builds the element started by start from inner, which yields
// its children and stops after consuming the matching end element.
func decodeInner(inner xml.TokenReader, start xml.StartElement) (*Element, error) {
	el := fromStart(start)
	for {
		tok, err := inner.Token()
		switch {
		case err == io.EOF:
			return el, nil
		case err != nil:
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeInner(xmlstream.Inner(inner), t)
			if err != nil {
				return nil, err
			}
			el.AddChild(child)
		case xml.CharData:
			el.AddChild(Text(t))
		}
	}
}

// unexpectedEOF reports the end of the underlying stream as
// io.ErrUnexpectedEOF so that it cannot be mistaken for the end of the
// element being decoded.
type unexpectedEOF struct {
	r xml.TokenReader
}

func (u unexpectedEOF) Token() (xml.Token, error) {
	tok, err := u.r.Token()
	if err == io.EOF {
		if tok != nil {
			return tok, nil
		}
		return nil, io.ErrUnexpectedEOF
	}
	return tok, err
}

// Parse decodes the first element found in s.
func Parse(s string) (*Element, error) {
	d := xml.NewDecoder(strings.NewReader(s))
	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return nil, errors.New("xmlnode: no element found")
			}
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return Decode(d, start)
		}
	}
}

func fromStart(start xml.StartElement) *Element {
	el := &Element{Name: start.Name}
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		el.Attr = append(el.Attr, a)
	}
	return el
}
