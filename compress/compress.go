// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package compress implements the stream layer used by XEP-0138: Stream
// Compression.
//
// Be advised: stream compression has many of the same security considerations
// as TLS compression (see RFC3749 §6) and may be difficult to implement safely
// without special expertise.
package compress // import "mellium.im/courier/compress"

import (
	"context"
	"encoding/xml"
	"io"
	"net"

	"mellium.im/courier/internal/ns"
	"mellium.im/courier/stack"
	"mellium.im/courier/xmlnode"
)

// Namespaces used by stream compression.
const (
	NSFeatures = ns.CompressFeature
	NSProtocol = ns.CompressProtocol
)

// Method is a stream compression method and the stream layer that applies it.
// Custom methods may be defined, but generally speaking the only supported
// methods will be those with names defined in the "Stream Compression Methods
// Registry" maintained by the XSF Editor:
// https://xmpp.org/registrar/compress.html
type Method struct {
	Name    string
	Wrapper func(io.ReadWriter) (io.ReadWriter, error)
}

// Capability satisfies stack.Layer.
func (Method) Capability() stack.Capability {
	return stack.Compression
}

// Wrap satisfies stack.Layer.
func (m Method) Wrap(_ context.Context, below net.Conn) (net.Conn, error) {
	rw, err := m.Wrapper(below)
	if err != nil {
		return nil, err
	}
	return &conn{Conn: below, rw: rw}, nil
}

type conn struct {
	net.Conn
	rw io.ReadWriter
}

func (c *conn) Read(p []byte) (int, error)  { return c.rw.Read(p) }
func (c *conn) Write(p []byte) (int, error) { return c.rw.Write(p) }

func (c *conn) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Methods returns the methods listed in a compression stream feature.
func Methods(feature *xmlnode.Element) []string {
	var names []string
	for _, m := range feature.Elements() {
		if m.Name.Local == "method" {
			names = append(names, m.Text())
		}
	}
	return names
}

// Select returns the first supported method that the server offered.
func Select(offered []string, supported ...Method) (Method, bool) {
	for _, m := range supported {
		for _, name := range offered {
			if name == m.Name {
				return m, true
			}
		}
	}
	return Method{}, false
}

// Request returns the element that asks the server to enable method m.
func Request(m Method) *xmlnode.Element {
	return xmlnode.New(NSProtocol, "compress").AddChild(
		xmlnode.New(NSProtocol, "method").AddText(m.Name),
	)
}

// Response names returned by the server after a request.
var (
	Compressed = xml.Name{Space: NSProtocol, Local: "compressed"}
	Failure    = xml.Name{Space: NSProtocol, Local: "failure"}
)
