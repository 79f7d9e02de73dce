// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpptest

import (
	"sync"
	"testing"

	"github.com/pion/logging"

	"mellium.im/courier/compress"
	"mellium.im/courier/internal/ns"
	"mellium.im/courier/stream"
	"mellium.im/courier/xmlnode"
)

// Features returns a stream features element listing features.
func Features(features ...*xmlnode.Element) *xmlnode.Element {
	el := xmlnode.New(stream.NS, "features")
	for _, f := range features {
		el.AddChild(f)
	}
	return el
}

// StartTLSFeature offers STARTTLS.
func StartTLSFeature(required bool) *xmlnode.Element {
	el := xmlnode.New(ns.StartTLS, "starttls")
	if required {
		el.AddChild(xmlnode.New(ns.StartTLS, "required"))
	}
	return el
}

// Mechanisms offers SASL mechanisms.
func Mechanisms(names ...string) *xmlnode.Element {
	el := xmlnode.New(ns.SASL, "mechanisms")
	for _, name := range names {
		el.AddChild(xmlnode.New(ns.SASL, "mechanism").AddText(name))
	}
	return el
}

// CompressionFeature offers stream compression methods.
func CompressionFeature(methods ...string) *xmlnode.Element {
	el := xmlnode.New(compress.NSFeatures, "compression")
	for _, m := range methods {
		el.AddChild(xmlnode.New(compress.NSFeatures, "method").AddText(m))
	}
	return el
}

// BindFeature offers resource binding.
func BindFeature() *xmlnode.Element {
	return xmlnode.New(ns.Bind, "bind")
}

// SessionFeature offers legacy session establishment.
func SessionFeature(optional bool) *xmlnode.Element {
	el := xmlnode.New(ns.Session, "session")
	if optional {
		el.AddChild(xmlnode.New(ns.Session, "optional"))
	}
	return el
}

// SMFeature offers stream management.
func SMFeature() *xmlnode.Element {
	return xmlnode.New(ns.SM, "sm")
}

type testWriter struct {
	mu     sync.Mutex
	t      testing.TB
	closed bool
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.t.Logf("%s", p)
	}
	return len(p), nil
}

// LoggerFactory returns a factory for loggers that write every level to the
// test log.
// Anything logged after the test has completed is dropped.
func LoggerFactory(t testing.TB) logging.LoggerFactory {
	w := &testWriter{t: t}
	t.Cleanup(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.closed = true
	})
	return &logging.DefaultLoggerFactory{
		Writer:          w,
		DefaultLogLevel: logging.LogLevelTrace,
		ScopeLevels:     map[string]logging.LogLevel{},
	}
}
