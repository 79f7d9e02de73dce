// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package form implements sending and submitting data forms.
//
// Data forms are described in XEP-0004: Data Forms.
package form // import "mellium.im/courier/form"

import (
	"encoding/xml"
	"errors"

	"mellium.im/courier/codec"
	"mellium.im/courier/xmlnode"
)

// NS is the data forms namespace.
const NS = "jabber:x:data"

var formName = xml.Name{Space: NS, Local: "x"}

// Type is the type of a data form.
type Type string

// A list of form types.
const (
	TypeForm   Type = "form"
	TypeSubmit Type = "submit"
	TypeCancel Type = "cancel"
	TypeResult Type = "result"
)

// FieldType is the type of a form field.
// The empty type is written without a type attribute and is treated as
// text-single by receivers.
type FieldType string

// A list of field types.
const (
	FieldUnspecified FieldType = ""
	FieldBoolean     FieldType = "boolean"
	FieldFixed       FieldType = "fixed"
	FieldHidden      FieldType = "hidden"
	FieldJIDMulti    FieldType = "jid-multi"
	FieldJIDSingle   FieldType = "jid-single"
	FieldListMulti   FieldType = "list-multi"
	FieldListSingle  FieldType = "list-single"
	FieldTextMulti   FieldType = "text-multi"
	FieldTextPrivate FieldType = "text-private"
	FieldTextSingle  FieldType = "text-single"
)

// Option is one of the choices of a list field.
type Option struct {
	Label string
	Value string
}

// Field is a single form field.
type Field struct {
	Var      string
	Type     FieldType
	Label    string
	Desc     string
	Required bool
	Values   []string
	Options  []Option
}

// Data represents a data form.
type Data struct {
	Type         Type
	Title        string
	Instructions []string
	Fields       []Field
}

// XMLName satisfies the codec.Payload interface.
func (*Data) XMLName() xml.Name {
	return formName
}

// FormType returns the value of the hidden FORM_TYPE field if present.
func (d *Data) FormType() string {
	for _, f := range d.Fields {
		if f.Var == "FORM_TYPE" && len(f.Values) > 0 {
			return f.Values[0]
		}
	}
	return ""
}

// Get returns the first value of the field named v and whether the field
// exists.
func (d *Data) Get(v string) (string, bool) {
	for _, f := range d.Fields {
		if f.Var != v {
			continue
		}
		if len(f.Values) == 0 {
			return "", true
		}
		return f.Values[0], true
	}
	return "", false
}

// Element converts the form into an element tree.
func (d *Data) Element() *xmlnode.Element {
	typ := d.Type
	if typ == "" {
		typ = TypeForm
	}
	el := xmlnode.New(NS, "x").SetAttr("type", string(typ))
	if d.Title != "" {
		el.AddChild(xmlnode.New(NS, "title").AddText(d.Title))
	}
	for _, inst := range d.Instructions {
		el.AddChild(xmlnode.New(NS, "instructions").AddText(inst))
	}
	for _, f := range d.Fields {
		el.AddChild(f.element())
	}
	return el
}

func (f Field) element() *xmlnode.Element {
	el := xmlnode.New(NS, "field")
	if f.Type != FieldUnspecified {
		el.SetAttr("type", string(f.Type))
	}
	if f.Var != "" {
		el.SetAttr("var", f.Var)
	}
	if f.Label != "" {
		el.SetAttr("label", f.Label)
	}
	if f.Desc != "" {
		el.AddChild(xmlnode.New(NS, "desc").AddText(f.Desc))
	}
	if f.Required {
		el.AddChild(xmlnode.New(NS, "required"))
	}
	for _, v := range f.Values {
		el.AddChild(xmlnode.New(NS, "value").AddText(v))
	}
	for _, o := range f.Options {
		opt := xmlnode.New(NS, "option")
		if o.Label != "" {
			opt.SetAttr("label", o.Label)
		}
		el.AddChild(opt.AddChild(xmlnode.New(NS, "value").AddText(o.Value)))
	}
	return el
}

// Parse converts an element tree into a form.
func Parse(el *xmlnode.Element) (*Data, error) {
	if el.Name != formName {
		return nil, errors.New("form: element is not a data form")
	}
	typ, _ := el.Attribute("type")
	d := &Data{Type: Type(typ)}
	switch d.Type {
	case TypeForm, TypeSubmit, TypeCancel, TypeResult:
	default:
		return nil, errors.New("form: invalid form type")
	}
	for _, child := range el.Elements() {
		switch child.Name.Local {
		case "title":
			d.Title = child.Text()
		case "instructions":
			d.Instructions = append(d.Instructions, child.Text())
		case "field":
			d.Fields = append(d.Fields, parseField(child))
		}
	}
	return d, nil
}

func parseField(el *xmlnode.Element) Field {
	f := Field{}
	if typ, ok := el.Attribute("type"); ok {
		f.Type = FieldType(typ)
	}
	f.Var, _ = el.Attribute("var")
	f.Label, _ = el.Attribute("label")
	for _, child := range el.Elements() {
		switch child.Name.Local {
		case "desc":
			f.Desc = child.Text()
		case "required":
			f.Required = true
		case "value":
			f.Values = append(f.Values, child.Text())
		case "option":
			o := Option{}
			o.Label, _ = child.Attribute("label")
			if v := child.Child(xml.Name{Local: "value"}); v != nil {
				o.Value = v.Text()
			}
			f.Options = append(f.Options, o)
		}
	}
	return f
}

// Codec converts data forms to and from element trees.
var Codec = codec.Codec{
	Name: formName,
	Parse: func(el *xmlnode.Element) (codec.Payload, error) {
		return Parse(el)
	},
	Serialize: func(p codec.Payload) (*xmlnode.Element, error) {
		d, ok := p.(*Data)
		if !ok {
			return nil, codec.ErrNoCodec
		}
		return d.Element(), nil
	},
}

// Register adds the data form codec to r.
func Register(r *codec.Registry) error {
	return r.Register(Codec)
}
