// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package codec_test

import (
	"encoding/xml"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/courier/codec"
	"mellium.im/courier/xmlnode"
)

var noteName = xml.Name{Space: "urn:example:note", Local: "note"}

type note struct {
	Text string
}

func (note) XMLName() xml.Name { return noteName }

var noteCodec = codec.Codec{
	Name: noteName,
	Parse: func(el *xmlnode.Element) (codec.Payload, error) {
		if len(el.Elements()) > 0 {
			return nil, errors.New("note must only contain text")
		}
		return note{Text: el.Text()}, nil
	},
	Serialize: func(p codec.Payload) (*xmlnode.Element, error) {
		return xmlnode.New(noteName.Space, noteName.Local).AddText(p.(note).Text), nil
	},
}

func TestRegisterDuplicate(t *testing.T) {
	r := codec.NewRegistry()
	require.NoError(t, r.Register(noteCodec))
	err := r.Register(noteCodec)
	assert.True(t, errors.Is(err, codec.ErrDuplicate), "want ErrDuplicate, got %v", err)
	assert.Equal(t, []xml.Name{noteName}, r.Names())
}

func TestRegisterEmptyName(t *testing.T) {
	var r codec.Registry
	assert.Equal(t, codec.ErrInvalidName, r.Register(codec.Codec{}))
}

func TestParseKnown(t *testing.T) {
	r := codec.NewRegistry()
	require.NoError(t, r.Register(noteCodec))
	el, err := xmlnode.Parse(`<note xmlns="urn:example:note">hello</note>`)
	require.NoError(t, err)

	p, err := r.Parse(el)
	require.NoError(t, err)
	assert.Equal(t, note{Text: "hello"}, p)

	out, err := r.Serialize(p)
	require.NoError(t, err)
	assert.Equal(t, `<note xmlns="urn:example:note">hello</note>`, out.String())
}

func TestParseUnknown(t *testing.T) {
	r := codec.NewRegistry()
	el, err := xmlnode.Parse(`<thing xmlns="urn:example:other" a="b"/>`)
	require.NoError(t, err)

	p, err := r.Parse(el)
	require.NoError(t, err)
	u, ok := p.(*codec.Unknown)
	require.True(t, ok, "want *codec.Unknown, got %T", p)
	assert.Nil(t, u.Err)
	assert.Equal(t, el.Name, u.XMLName())

	out, err := r.Serialize(u)
	require.NoError(t, err)
	assert.Equal(t, `<thing a="b" xmlns="urn:example:other"/>`, out.String())
}

func TestParseMalformed(t *testing.T) {
	r := codec.NewRegistry()
	require.NoError(t, r.Register(noteCodec))
	el, err := xmlnode.Parse(`<note xmlns="urn:example:note"><bad/></note>`)
	require.NoError(t, err)

	p, err := r.Parse(el)
	var perr *codec.ParseError
	require.True(t, errors.As(err, &perr), "want *codec.ParseError, got %v", err)
	assert.Equal(t, noteName, perr.Name)
	u, ok := p.(*codec.Unknown)
	require.True(t, ok, "want *codec.Unknown, got %T", p)
	assert.Equal(t, err, u.Err)
}

func TestSerializeUnregistered(t *testing.T) {
	r := codec.NewRegistry()
	_, err := r.Serialize(note{Text: "x"})
	assert.True(t, errors.Is(err, codec.ErrNoCodec), "want ErrNoCodec, got %v", err)
}
