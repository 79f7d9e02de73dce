// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"mellium.im/courier/codec"
)

// IQ ("Information Query") is used as a general request response mechanism.
// IQ's are one-to-one, provide get and set semantics, and always require a
// response in the form of a result or an error.
type IQ struct {
	Header
	Type IQType
}

// IQType is the type of an IQ stanza.
type IQType string

const (
	// GetIQ is used to query another entity for information.
	GetIQ IQType = "get"

	// SetIQ is used to provide data to another entity, set new values, and
	// replace existing values.
	SetIQ IQType = "set"

	// ResultIQ is sent in response to a successful get or set IQ.
	ResultIQ IQType = "result"

	// ErrorIQ is sent to report that an error occurred during the delivery or
	// processing of a get or set IQ.
	ErrorIQ IQType = "error"
)

func (t IQType) valid() bool {
	switch t {
	case GetIQ, SetIQ, ResultIQ, ErrorIQ:
		return true
	}
	return false
}

// IsRequest reports whether the IQ expects a response.
func (iq IQ) IsRequest() bool {
	return iq.Type == GetIQ || iq.Type == SetIQ
}

// Kind satisfies the Stanza interface.
func (IQ) Kind() Kind { return KindIQ }

// Head satisfies the Stanza interface.
func (iq IQ) Head() Header { return iq.Header }

func (IQ) isStanza() {}

// Result returns a result IQ addressed back to the sender of iq with the same
// id.
func (iq IQ) Result(payloads ...codec.Payload) IQ {
	return IQ{
		Header: Header{
			ID:       iq.ID,
			To:       iq.From,
			From:     iq.To,
			Lang:     iq.Lang,
			Payloads: payloads,
		},
		Type: ResultIQ,
	}
}

// Error returns an error IQ addressed back to the sender of iq with the same
// id.
func (iq IQ) Error(e Error) IQ {
	return IQ{
		Header: Header{
			ID:       iq.ID,
			To:       iq.From,
			From:     iq.To,
			Lang:     iq.Lang,
			Payloads: []codec.Payload{e},
		},
		Type: ErrorIQ,
	}
}
