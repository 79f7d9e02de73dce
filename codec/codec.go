// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package codec

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"sync"

	"mellium.im/courier/xmlnode"
)

// Errors returned by the registry.
var (
	ErrDuplicate   = errors.New("codec: a codec is already registered for that name")
	ErrNoCodec     = errors.New("codec: no codec registered for payload")
	ErrInvalidName = errors.New("codec: codec has an empty element name")
)

// Payload is a typed extension element carried inside a stanza.
// Every payload reports the qualified name of the element it serializes to.
type Payload interface {
	XMLName() xml.Name
}

// ParseFunc turns an element tree into a payload.
type ParseFunc func(el *xmlnode.Element) (Payload, error)

// SerializeFunc turns a payload into an element tree.
type SerializeFunc func(p Payload) (*xmlnode.Element, error)

// Codec is the parser and serializer pair for one payload type.
type Codec struct {
	Name      xml.Name
	Parse     ParseFunc
	Serialize SerializeFunc
}

// ParseError is returned when a registered codec fails to parse an element.
type ParseError struct {
	Name xml.Name
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("codec: error parsing {%s}%s: %v", e.Name.Space, e.Name.Local, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Unknown is a payload that no codec understood.
// It keeps the original element so that it can be inspected or re-serialized
// verbatim.
// If a codec was registered but failed, Err holds the parse error.
type Unknown struct {
	Element *xmlnode.Element
	Err     error
}

// XMLName satisfies the Payload interface.
func (u *Unknown) XMLName() xml.Name {
	if u.Element == nil {
		return xml.Name{}
	}
	return u.Element.Name
}

// Registry maps element names to codecs.
// It is safe for concurrent use.
// The zero value is an empty registry ready to use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[xml.Name]Codec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a codec to the registry.
// It is an error to register two codecs for the same element name.
func (r *Registry) Register(c Codec) error {
	if c.Name.Local == "" {
		return ErrInvalidName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codecs == nil {
		r.codecs = make(map[xml.Name]Codec)
	}
	if _, ok := r.codecs[c.Name]; ok {
		return fmt.Errorf("%w: {%s}%s", ErrDuplicate, c.Name.Space, c.Name.Local)
	}
	r.codecs[c.Name] = c
	return nil
}

// Lookup returns the codec registered for name.
func (r *Registry) Lookup(name xml.Name) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	return c, ok
}

// Names returns the registered element names sorted by namespace and then
// local name.
func (r *Registry) Names() []xml.Name {
	r.mu.RLock()
	names := make([]xml.Name, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Slice(names, func(i, j int) bool {
		if names[i].Space != names[j].Space {
			return names[i].Space < names[j].Space
		}
		return names[i].Local < names[j].Local
	})
	return names
}

// Parse converts el into a payload.
//
// If no codec is registered for the element an *Unknown payload is returned
// with a nil error.
// If the registered codec fails, an *Unknown payload carrying the failure is
// returned along with a *ParseError.
func (r *Registry) Parse(el *xmlnode.Element) (Payload, error) {
	c, ok := r.Lookup(el.Name)
	if !ok || c.Parse == nil {
		return &Unknown{Element: el}, nil
	}
	p, err := c.Parse(el)
	if err != nil {
		perr := &ParseError{Name: el.Name, Err: err}
		return &Unknown{Element: el, Err: perr}, perr
	}
	return p, nil
}

// Serialize converts p into an element tree.
// Unknown payloads serialize to the element they were parsed from.
func (r *Registry) Serialize(p Payload) (*xmlnode.Element, error) {
	if u, ok := p.(*Unknown); ok {
		if u.Element == nil {
			return nil, ErrNoCodec
		}
		return u.Element, nil
	}
	c, ok := r.Lookup(p.XMLName())
	if !ok || c.Serialize == nil {
		name := p.XMLName()
		return nil, fmt.Errorf("%w: {%s}%s", ErrNoCodec, name.Space, name.Local)
	}
	return c.Serialize(p)
}
