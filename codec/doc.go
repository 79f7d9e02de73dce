// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package codec maps qualified element names to payload parsers and
// serializers.
//
// A Registry is open for extension: packages implementing a protocol
// extension register a Codec for each element they understand and the stanza
// layer dispatches on the element name without knowing the concrete payload
// types.
// Elements for which no codec is registered, or which a codec fails to parse,
// are preserved as *Unknown payloads so that a single bad payload never aborts
// decoding of the stanza carrying it.
package codec // import "mellium.im/courier/codec"
