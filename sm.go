// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"context"
	"encoding/xml"
	"strconv"

	"mellium.im/courier/internal/ns"
	"mellium.im/courier/stanza"
	"mellium.im/courier/xmlnode"
)

// Stream management (XEP-0198) nonzas.
var (
	smEnabled = xml.Name{Space: ns.SM, Local: "enabled"}
	smFailed  = xml.Name{Space: ns.SM, Local: "failed"}
	smRequest = xml.Name{Space: ns.SM, Local: "r"}
	smAnswer  = xml.Name{Space: ns.SM, Local: "a"}
)

// smState is the stream management state of a session.
// Everything except inbound is guarded by the session write lock; inbound is
// only touched by the session goroutine.
type smState struct {
	enabled   bool
	resumable bool
	id        string
	location  string

	inbound uint32
	acked   uint32
	unacked []stanza.Stanza
}

// enableSM asks the server to enable stream management.
// A refusal is not fatal, the session just continues without it.
func (s *Session) enableSM(ctx context.Context) error {
	enable := xmlnode.New(ns.SM, "enable")
	if s.opts.UseStreamResumption {
		enable.SetAttr("resume", "true")
	}
	if err := s.writeElement(enable); err != nil {
		return err
	}
	el, err := s.next(ctx)
	if err != nil {
		return err
	}
	switch el.Name {
	case smEnabled:
		s.wmu.Lock()
		s.sm.enabled = true
		s.sm.id, _ = el.Attribute("id")
		s.sm.location, _ = el.Attribute("location")
		resume, _ := el.Attribute("resume")
		s.sm.resumable = resume == "true" || resume == "1"
		s.wmu.Unlock()
		s.log.Debugf("stream management enabled (resumable: %t)", s.sm.resumable)
	case smFailed:
		s.log.Warn("server refused to enable stream management")
	default:
		return newError(UnexpectedElement, errUnexpected(el))
	}
	return nil
}

// handleSM processes a stream management nonza received while the session is
// established.
// It reports whether el was one.
func (s *Session) handleSM(el *xmlnode.Element) (bool, error) {
	switch el.Name {
	case smRequest:
		a := xmlnode.New(ns.SM, "a").SetAttr("h", strconv.FormatUint(uint64(s.sm.inbound), 10))
		return true, s.writeElement(a)
	case smAnswer:
		h, _ := el.Attribute("h")
		n, err := strconv.ParseUint(h, 10, 32)
		if err != nil {
			s.log.Warnf("ignoring ack with invalid count %q", h)
			return true, nil
		}
		s.ack(uint32(n))
		return true, nil
	}
	return el.Name.Space == ns.SM, nil
}

// ack removes the stanzas acknowledged by a count of h from the queue and
// reports them.
func (s *Session) ack(h uint32) {
	s.wmu.Lock()
	n := int(h - s.sm.acked)
	if n < 0 || n > len(s.sm.unacked) {
		s.log.Warnf("server acknowledged %d stanzas but only %d were sent", n, len(s.sm.unacked))
		n = len(s.sm.unacked)
	}
	acked := append([]stanza.Stanza(nil), s.sm.unacked[:n]...)
	s.sm.unacked = s.sm.unacked[n:]
	s.sm.acked = h
	s.wmu.Unlock()

	if s.handlers.StanzaAcked == nil {
		return
	}
	for _, st := range acked {
		s.handlers.StanzaAcked(st)
	}
}

// StreamManagementEnabled reports whether stream management was enabled.
func (s *Session) StreamManagementEnabled() bool {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.sm.enabled
}

// ResumptionID returns the identifier of a resumable stream or the empty
// string if the server did not allow resumption.
func (s *Session) ResumptionID() string {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if !s.sm.resumable {
		return ""
	}
	return s.sm.id
}
