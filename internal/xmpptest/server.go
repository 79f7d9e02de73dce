// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmpptest provides a scripted XMPP server for testing clients.
//
// A Server performs one step of negotiation per method call so that tests
// can drive a client through exactly the exchange they want to check, and
// deviate from it wherever they need a failure.
package xmpptest // import "mellium.im/courier/internal/xmpptest"

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"

	"mellium.im/courier/compress"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/internal/saslerr"
	internalstream "mellium.im/courier/internal/stream"
	"mellium.im/courier/jid"
	"mellium.im/courier/stream"
	"mellium.im/courier/xmlnode"
)

// Errors returned by the server when the client does not behave as scripted.
var (
	ErrUnexpected = errors.New("xmpptest: unexpected element")
	ErrBadAuth    = errors.New("xmpptest: bad credentials")
)

// Pipe returns both ends of a loopback TCP connection.
// Unlike net.Pipe, writes do not wait for the other end to read them.
func Pipe() (client, server net.Conn, err error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, err
	}
	/* #nosec */
	defer l.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		c, err := l.Accept()
		accepted <- result{conn: c, err: err}
	}()
	client, err = net.Dial("tcp", l.Addr().String())
	if err != nil {
		return nil, nil, err
	}
	r := <-accepted
	if r.err != nil {
		/* #nosec */
		client.Close()
		return nil, nil, r.err
	}
	return client, r.conn, nil
}

// byteReader reads a byte at a time so that the decoder never consumes
// anything past the element it was asked for.
type byteReader struct {
	io.Reader
}

func (r byteReader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r.Reader, b[:])
	return b[0], err
}

// Server is the server end of a client connection.
type Server struct {
	Domain string

	conn    net.Conn
	d       *xml.Decoder
	streams int
}

// NewServer returns a server for domain that talks over conn.
func NewServer(conn net.Conn, domain string) *Server {
	return &Server{Domain: domain, conn: conn}
}

// Conn returns the connection currently used, including any TLS or
// compression wrapped around the original one.
func (s *Server) Conn() net.Conn {
	return s.conn
}

// Close ends the stream and closes the connection.
func (s *Server) Close() error {
	/* #nosec */
	internalstream.Close(s.conn)
	return s.conn.Close()
}

// ReadHeader reads the stream header sent by the client.
func (s *Server) ReadHeader() (stream.Info, error) {
	var info stream.Info
	s.d = xml.NewDecoder(byteReader{s.conn})
	for {
		tok, err := s.d.Token()
		if err != nil {
			return info, err
		}
		switch t := tok.(type) {
		case xml.ProcInst, xml.CharData:
		case xml.StartElement:
			if t.Name != (xml.Name{Space: stream.NS, Local: "stream"}) {
				return info, fmt.Errorf("%w: expected stream header, got %v", ErrUnexpected, t.Name)
			}
			err = info.FromStartElement(t)
			return info, err
		default:
			return info, fmt.Errorf("%w: expected stream header, got %T", ErrUnexpected, tok)
		}
	}
}

// SendHeader sends a server stream header with a new stream ID.
func (s *Server) SendHeader() error {
	s.streams++
	_, err := fmt.Fprintf(s.conn, internalstream.XMLHeader+
		`<stream:stream from='%s' id='stream%d' version='1.0' xmlns='%s' xmlns:stream='%s'>`,
		s.Domain, s.streams, ns.Client, stream.NS)
	return err
}

// Open reads the header of a new client stream, answers it and offers
// features.
func (s *Server) Open(features ...*xmlnode.Element) (stream.Info, error) {
	info, err := s.ReadHeader()
	if err != nil {
		return info, err
	}
	if err = s.SendHeader(); err != nil {
		return info, err
	}
	return info, s.Send(Features(features...))
}

// Next returns the next element sent by the client.
// It returns io.EOF when the client closes the stream.
func (s *Server) Next() (*xmlnode.Element, error) {
	if s.d == nil {
		return nil, fmt.Errorf("%w: no stream header was read", ErrUnexpected)
	}
	return internalstream.Next(s.d)
}

// Expect returns the next element and checks its name.
func (s *Server) Expect(name xml.Name) (*xmlnode.Element, error) {
	el, err := s.Next()
	if err != nil {
		return nil, err
	}
	if el.Name != name {
		return el, fmt.Errorf("%w: want %v, got %v", ErrUnexpected, name, el.Name)
	}
	return el, nil
}

// Send writes elements to the client.
func (s *Server) Send(els ...*xmlnode.Element) error {
	var b bytes.Buffer
	for _, el := range els {
		b.WriteString(el.Serialize(ns.Client))
	}
	_, err := s.conn.Write(b.Bytes())
	return err
}

// SendString writes raw data to the client.
func (s *Server) SendString(raw string) error {
	_, err := io.WriteString(s.conn, raw)
	return err
}

// Reply answers the IQ request req with an IQ of the given type.
func (s *Server) Reply(req *xmlnode.Element, typ string, payloads ...*xmlnode.Element) error {
	id, _ := req.Attribute("id")
	iq := xmlnode.New(ns.Client, "iq").SetAttr("id", id).SetAttr("type", typ)
	if from, ok := req.Attribute("to"); ok {
		iq.SetAttr("from", from)
	}
	for _, p := range payloads {
		iq.AddChild(p)
	}
	return s.Send(iq)
}

// StartTLS waits for a STARTTLS request, allows it and performs the server
// side of the handshake.
func (s *Server) StartTLS(cfg *tls.Config) error {
	if _, err := s.Expect(xml.Name{Space: ns.StartTLS, Local: "starttls"}); err != nil {
		return err
	}
	if err := s.Send(xmlnode.New(ns.StartTLS, "proceed")); err != nil {
		return err
	}
	conn := tls.Server(s.conn, cfg)
	if err := conn.Handshake(); err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Compress waits for a request to compress the stream with zlib, accepts it
// and compresses the connection.
func (s *Server) Compress() error {
	el, err := s.Expect(compress.Request(compress.ZLIB).Name)
	if err != nil {
		return err
	}
	if m := compress.Methods(el); len(m) != 1 || m[0] != compress.ZLIB.Name {
		/* #nosec */
		s.Send(xmlnode.New(compress.NSProtocol, "failure").AddChild(xmlnode.New(compress.NSProtocol, "unsupported-method")))
		return fmt.Errorf("%w: compression methods %v", ErrUnexpected, m)
	}
	if err = s.Send(xmlnode.New(compress.NSProtocol, "compressed")); err != nil {
		return err
	}
	conn, err := compress.ZLIB.Wrap(context.Background(), s.conn)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// AuthPlain waits for PLAIN authentication and checks the credentials.
// If they do not match, a not-authorized failure is sent and ErrBadAuth is
// returned.
func (s *Server) AuthPlain(username, password string) error {
	el, err := s.Expect(xml.Name{Space: ns.SASL, Local: "auth"})
	if err != nil {
		return err
	}
	if mech, _ := el.Attribute("mechanism"); mech != "PLAIN" {
		/* #nosec */
		s.Send(saslerr.Failure{Condition: saslerr.InvalidMechanism}.Element())
		return fmt.Errorf("%w: mechanism %s", ErrUnexpected, mech)
	}
	data, err := base64.StdEncoding.DecodeString(el.Text())
	if err != nil {
		return err
	}
	parts := bytes.Split(data, []byte{0})
	if len(parts) != 3 || string(parts[1]) != username || string(parts[2]) != password {
		/* #nosec */
		s.Send(saslerr.Failure{Condition: saslerr.NotAuthorized, Text: "bad credentials"}.Element())
		return ErrBadAuth
	}
	return s.Send(xmlnode.New(ns.SASL, "success"))
}

// Bind waits for a resource binding request and binds username to the
// requested resource, or to resource if the client did not ask for one.
func (s *Server) Bind(username, resource string) (jid.JID, error) {
	el, err := s.Expect(xml.Name{Space: ns.Client, Local: "iq"})
	if err != nil {
		return jid.JID{}, err
	}
	b := el.Child(xml.Name{Space: ns.Bind, Local: "bind"})
	if b == nil {
		return jid.JID{}, fmt.Errorf("%w: iq without bind payload", ErrUnexpected)
	}
	if r := b.Child(xml.Name{Space: ns.Bind, Local: "resource"}); r != nil && r.Text() != "" {
		resource = r.Text()
	}
	j, err := jid.New(username, s.Domain, resource)
	if err != nil {
		return j, err
	}
	return j, s.Reply(el, "result",
		xmlnode.New(ns.Bind, "bind").AddChild(xmlnode.New(ns.Bind, "jid").AddText(j.String())),
	)
}

// Session waits for a legacy session establishment request and accepts it.
func (s *Server) Session() error {
	el, err := s.Expect(xml.Name{Space: ns.Client, Local: "iq"})
	if err != nil {
		return err
	}
	if el.Child(xml.Name{Space: ns.Session, Local: "session"}) == nil {
		return fmt.Errorf("%w: iq without session payload", ErrUnexpected)
	}
	return s.Reply(el, "result")
}

// EnableSM waits for a request to enable stream management and accepts it.
func (s *Server) EnableSM(id string) error {
	el, err := s.Expect(xml.Name{Space: ns.SM, Local: "enable"})
	if err != nil {
		return err
	}
	enabled := xmlnode.New(ns.SM, "enabled").SetAttr("id", id)
	if resume, _ := el.Attribute("resume"); resume == "true" {
		enabled.SetAttr("resume", "true")
	}
	return s.Send(enabled)
}

// Login scripts a complete negotiation without TLS: PLAIN authentication
// followed by resource binding.
// Extra features are offered on the stream after authentication.
func (s *Server) Login(username, password, resource string, features ...*xmlnode.Element) (jid.JID, error) {
	if _, err := s.Open(Mechanisms("PLAIN")); err != nil {
		return jid.JID{}, err
	}
	if err := s.AuthPlain(username, password); err != nil {
		return jid.JID{}, err
	}
	if _, err := s.Open(append([]*xmlnode.Element{BindFeature()}, features...)...); err != nil {
		return jid.JID{}, err
	}
	return s.Bind(username, resource)
}
