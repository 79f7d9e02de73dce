// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stream contains internal stream parsing and handling behavior.
package stream // import "mellium.im/courier/internal/stream"

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"mellium.im/courier/internal/ns"
	"mellium.im/courier/jid"
	"mellium.im/courier/stream"
	"mellium.im/courier/xmlnode"
)

// XMLHeader is an XML header like the one in encoding/xml but without a
// newline at the end.
const XMLHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// ErrUnexpectedRestart is returned by Next when the remote entity opens a new
// stream without being asked to.
var ErrUnexpectedRestart = errors.New("stream: unexpected stream restart")

// RemoteError is a stream error that was sent by the remote entity, as opposed
// to one detected locally while parsing its stream.
type RemoteError struct {
	Err stream.Error
}

func (e RemoteError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying stream error.
func (e RemoteError) Unwrap() error {
	return e.Err
}

// Send writes an XML header followed by a client stream start element to w.
// We don't use an xml.Encoder because Go's standard library xml package does
// not handle the namespaced stream:stream element well, and printing
// guarantees well-formedness in this case.
func Send(w io.Writer, to, from jid.JID, lang string) error {
	b := bufio.NewWriter(w)
	fmt.Fprintf(b, XMLHeader+`<stream:stream to='%s' version='%s'`, to.Domainpart(), stream.DefaultVersion)
	if !from.IsZero() {
		fmt.Fprintf(b, ` from='%s'`, from.Bare())
	}
	if lang != "" {
		b.WriteString(` xml:lang='`)
		if err := xml.EscapeText(b, []byte(lang)); err != nil {
			return err
		}
		b.WriteString(`'`)
	}
	fmt.Fprintf(b, ` xmlns='%s' xmlns:stream='%s'>`, ns.Client, stream.NS)
	return b.Flush()
}

// Close writes the end of the stream to w.
func Close(w io.Writer) error {
	_, err := io.WriteString(w, `</stream:stream>`)
	return err
}

// Expect reads tokens from d until it finds the server's stream start element.
// An XML declaration is skipped.
// A stream error sent in place of the header is returned as a RemoteError.
// On any error the returned Info is empty.
func Expect(ctx context.Context, d xml.TokenReader) (stream.Info, error) {
	info, err := expect(ctx, d)
	if err != nil {
		return stream.Info{}, err
	}
	return info, nil
}

func expect(ctx context.Context, d xml.TokenReader) (stream.Info, error) {
	var info stream.Info
	for {
		if err := ctx.Err(); err != nil {
			return info, err
		}
		t, err := d.Token()
		if err != nil {
			return info, err
		}
		switch tok := t.(type) {
		case xml.ProcInst:
			if tok.Target != "xml" {
				return info, stream.RestrictedXML
			}
		case xml.CharData:
			if !isWhitespace(tok) {
				return info, stream.BadFormat
			}
		case xml.StartElement:
			switch {
			case tok.Name.Local == "error" && tok.Name.Space == stream.NS:
				el, err := xmlnode.Decode(d, tok)
				if err != nil {
					return info, err
				}
				return info, RemoteError{Err: stream.Parse(el)}
			case tok.Name.Local != "stream":
				return info, stream.BadFormat
			case tok.Name.Space != stream.NS:
				return info, stream.InvalidNamespace
			}
			if err := info.FromStartElement(tok); err != nil {
				return info, err
			}
			if info.Version != stream.DefaultVersion {
				return info, stream.UnsupportedVersion
			}
			// The initiating entity requires a stream ID.
			if info.ID == "" {
				return info, stream.BadFormat
			}
			return info, nil
		case xml.EndElement:
			return info, stream.NotWellFormed
		default:
			return info, stream.RestrictedXML
		}
	}
}

// Next returns the next top level element of an established stream.
// Whitespace between elements is skipped.
// It returns io.EOF when the stream is closed, and a RemoteError when the
// remote entity sends a stream error.
func Next(d xml.TokenReader) (*xmlnode.Element, error) {
	for {
		t, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch tok := t.(type) {
		case xml.CharData:
			if !isWhitespace(tok) {
				return nil, stream.BadFormat
			}
		case xml.StartElement:
			if tok.Name.Space == stream.NS {
				switch tok.Name.Local {
				case "error":
					el, err := xmlnode.Decode(d, tok)
					if err != nil {
						return nil, err
					}
					return nil, RemoteError{Err: stream.Parse(el)}
				case "stream":
					return nil, ErrUnexpectedRestart
				}
			}
			return xmlnode.Decode(d, tok)
		case xml.EndElement:
			if tok.Name.Space == stream.NS && tok.Name.Local == "stream" {
				return nil, io.EOF
			}
			return nil, stream.BadFormat
		default:
			return nil, stream.RestrictedXML
		}
	}
}

func isWhitespace(b []byte) bool {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}
