// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jid

import (
	"encoding/xml"
	"errors"
	"net"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
	"golang.org/x/text/secure/precis"
)

// CompareMode controls which parts of a JID take part in a comparison.
type CompareMode uint8

const (
	// WithResource compares all three parts of the JIDs.
	WithResource CompareMode = iota

	// WithoutResource ignores the resourcepart, comparing only the bare JIDs.
	WithoutResource
)

var domainFold = cases.Fold()

// JID represents an XMPP address (Jabber ID) comprising a localpart,
// domainpart, and resourcepart.
// All parts of a JID are guaranteed to be valid UTF-8 and are stored in their
// canonical form.
// The zero value is an empty JID that is not a valid address.
type JID struct {
	locallen  int
	domainlen int
	data      string
}

// Parse constructs a new JID from the given string representation.
func Parse(s string) (JID, error) {
	localpart, domainpart, resourcepart, err := SplitString(s)
	if err != nil {
		return JID{}, err
	}
	return New(localpart, domainpart, resourcepart)
}

// MustParse is like Parse but panics if the JID cannot be parsed.
// It simplifies safe initialization of JIDs from known-good constant strings.
func MustParse(s string) JID {
	j, err := Parse(s)
	if err != nil {
		if strconv.CanBackquote(s) {
			s = "`" + s + "`"
		} else {
			s = strconv.Quote(s)
		}
		panic(`jid: Parse(` + s + `): ` + err.Error())
	}
	return j
}

// New constructs a new JID from the given localpart, domainpart, and
// resourcepart.
func New(localpart, domainpart, resourcepart string) (JID, error) {
	if !utf8.ValidString(localpart) || !utf8.ValidString(resourcepart) {
		return JID{}, errors.New("jid: JID contains invalid UTF-8")
	}

	domainpart, err := prepDomain(domainpart)
	if err != nil {
		return JID{}, err
	}

	if localpart != "" {
		localpart, err = precis.UsernameCaseMapped.String(localpart)
		if err != nil {
			return JID{}, err
		}
	}
	if resourcepart != "" {
		resourcepart, err = precis.OpaqueString.String(resourcepart)
		if err != nil {
			return JID{}, err
		}
	}

	if err := commonChecks(localpart, domainpart, resourcepart); err != nil {
		return JID{}, err
	}

	return build(localpart, domainpart, resourcepart), nil
}

// prepDomain converts A-labels to U-labels as RFC 7622 §3.2.1 requires and
// folds case so that domainparts compare equal regardless of how they were
// typed.
func prepDomain(domainpart string) (string, error) {
	domainpart, err := idna.ToUnicode(domainpart)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(domainpart) {
		return "", errors.New("jid: domainpart contains invalid UTF-8")
	}
	return domainFold.String(domainpart), nil
}

func build(localpart, domainpart, resourcepart string) JID {
	var b strings.Builder
	b.Grow(len(localpart) + len(domainpart) + len(resourcepart) + 2)
	if localpart != "" {
		b.WriteString(localpart)
		b.WriteByte('@')
	}
	b.WriteString(domainpart)
	if resourcepart != "" {
		b.WriteByte('/')
		b.WriteString(resourcepart)
	}
	return JID{
		locallen:  len(localpart),
		domainlen: len(domainpart),
		data:      b.String(),
	}
}

func (j JID) domainStart() int {
	if j.locallen > 0 {
		return j.locallen + 1
	}
	return 0
}

func (j JID) domainEnd() int {
	return j.domainStart() + j.domainlen
}

// WithLocal returns a copy of the JID with a new localpart.
// This elides validation of the domainpart and resourcepart.
func (j JID) WithLocal(localpart string) (JID, error) {
	if localpart != "" {
		if !utf8.ValidString(localpart) {
			return JID{}, errors.New("jid: localpart contains invalid UTF-8")
		}
		var err error
		localpart, err = precis.UsernameCaseMapped.String(localpart)
		if err != nil {
			return JID{}, err
		}
	}
	if err := checkLocal(localpart); err != nil {
		return JID{}, err
	}
	return build(localpart, j.Domainpart(), j.Resourcepart()), nil
}

// WithDomain returns a copy of the JID with a new domainpart.
// This elides validation of the localpart and resourcepart.
func (j JID) WithDomain(domainpart string) (JID, error) {
	domainpart, err := prepDomain(domainpart)
	if err != nil {
		return JID{}, err
	}
	if err := checkDomain(domainpart); err != nil {
		return JID{}, err
	}
	return build(j.Localpart(), domainpart, j.Resourcepart()), nil
}

// WithResource returns a copy of the JID with a new resourcepart.
// This elides validation of the localpart and domainpart.
func (j JID) WithResource(resourcepart string) (JID, error) {
	if resourcepart != "" {
		if !utf8.ValidString(resourcepart) {
			return JID{}, errors.New("jid: resourcepart contains invalid UTF-8")
		}
		var err error
		resourcepart, err = precis.OpaqueString.String(resourcepart)
		if err != nil {
			return JID{}, err
		}
	}
	if err := checkResource(resourcepart); err != nil {
		return JID{}, err
	}
	return build(j.Localpart(), j.Domainpart(), resourcepart), nil
}

// Bare returns a copy of the JID without a resourcepart. This is sometimes
// called a "bare" JID.
func (j JID) Bare() JID {
	return JID{
		locallen:  j.locallen,
		domainlen: j.domainlen,
		data:      j.data[:j.domainEnd()],
	}
}

// Domain returns a copy of the JID without a resourcepart or localpart.
func (j JID) Domain() JID {
	return JID{
		domainlen: j.domainlen,
		data:      j.data[j.domainStart():j.domainEnd()],
	}
}

// IsBare reports whether the JID has no resourcepart.
func (j JID) IsBare() bool {
	return len(j.data) == j.domainEnd()
}

// IsZero reports whether the JID is the empty zero value.
func (j JID) IsZero() bool {
	return j.data == ""
}

// Localpart gets the localpart of a JID (eg "username").
func (j JID) Localpart() string {
	return j.data[:j.locallen]
}

// Domainpart gets the domainpart of a JID (eg. "example.net").
func (j JID) Domainpart() string {
	return j.data[j.domainStart():j.domainEnd()]
}

// Resourcepart gets the resourcepart of a JID.
func (j JID) Resourcepart() string {
	end := j.domainEnd()
	if len(j.data) == end {
		return ""
	}
	return j.data[end+1:]
}

// Copy makes a copy of the given JID. j.Equal(j.Copy()) will always return
// true.
func (j JID) Copy() JID {
	return j
}

// Network satisfies the net.Addr interface by returning the name of the network
// ("xmpp").
func (JID) Network() string {
	return "xmpp"
}

// String converts an JID to its string representation.
func (j JID) String() string {
	return j.data
}

// Compare orders two JIDs octet-for-octet using the given mode.
// It returns 0 if the JIDs are equal, -1 if j sorts before j2, and +1
// otherwise.
func (j JID) Compare(j2 JID, mode CompareMode) int {
	if mode == WithoutResource {
		return strings.Compare(j.data[:j.domainEnd()], j2.data[:j2.domainEnd()])
	}
	return strings.Compare(j.data, j2.data)
}

// Equal performs an octet-for-octet comparison with the given JID.
func (j JID) Equal(j2 JID) bool {
	return j.locallen == j2.locallen &&
		j.domainlen == j2.domainlen &&
		j.data == j2.data
}

// MarshalXML satisfies the xml.Marshaler interface and marshals the JID as
// XML chardata.
func (j JID) MarshalXML(e *xml.Encoder, start xml.StartElement) (err error) {
	if err = e.EncodeToken(start); err != nil {
		return
	}
	if err = e.EncodeToken(xml.CharData(j.String())); err != nil {
		return
	}
	if err = e.EncodeToken(start.End()); err != nil {
		return
	}
	return e.Flush()
}

// UnmarshalXML satisfies the xml.Unmarshaler interface and unmarshals the JID
// from the elements chardata.
func (j *JID) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	data := struct {
		CharData string `xml:",chardata"`
	}{}
	if err := d.DecodeElement(&data, &start); err != nil {
		return err
	}
	j2, err := Parse(data.CharData)
	if err != nil {
		return err
	}
	*j = j2
	return nil
}

// MarshalXMLAttr satisfies the xml.MarshalerAttr interface and marshals the JID
// as an XML attribute.
// The empty JID marshals to an empty attribute which the encoder omits.
func (j JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if j.IsZero() {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr satisfies the xml.UnmarshalerAttr interface and unmarshals
// an XML attribute into a valid JID (or returns an error).
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	if attr.Value == "" {
		*j = JID{}
		return nil
	}
	j2, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = j2
	return nil
}

// SplitString splits out the localpart, domainpart, and resourcepart from a
// string representation of a JID. The parts are not guaranteed to be valid, and
// each part must be 1023 bytes or less.
func SplitString(s string) (localpart, domainpart, resourcepart string, err error) {
	// RFC 7622 §3.1 requires that the separators be matched before any
	// transformation is applied, since some code points decompose into them.
	// The domainpart is what remains after removing everything from the first
	// '/' to the end and everything up to and including the first '@'.
	if sep := strings.IndexByte(s, '/'); sep != -1 {
		if sep == len(s)-1 {
			err = errors.New("jid: the resourcepart must be larger than 0 bytes")
			return
		}
		resourcepart = s[sep+1:]
		s = s[:sep]
	}

	switch sep := strings.IndexByte(s, '@'); sep {
	case -1:
		domainpart = s
	case 0:
		err = errors.New("jid: the localpart must be larger than 0 bytes")
		return
	default:
		domainpart = s[sep+1:]
		localpart = s[:sep]
	}

	// A single trailing label separator is stripped before any other
	// canonicalization.
	domainpart = strings.TrimSuffix(domainpart, ".")
	return
}

func checkLocal(localpart string) error {
	if len(localpart) > 1023 {
		return errors.New("jid: the localpart must be smaller than 1024 bytes")
	}
	// RFC 7622 §3.3.1 forbids a few characters that the UsernameCaseMapped
	// profile still allows.
	if strings.ContainsAny(localpart, `"&'/:<>@`) {
		return errors.New("jid: localpart contains forbidden characters")
	}
	return nil
}

func checkResource(resourcepart string) error {
	if len(resourcepart) > 1023 {
		return errors.New("jid: the resourcepart must be smaller than 1024 bytes")
	}
	return nil
}

func checkDomain(domainpart string) error {
	l := len(domainpart)
	if l < 1 || l > 1023 {
		return errors.New("jid: the domainpart must be between 1 and 1023 bytes")
	}
	switch {
	case strings.HasPrefix(domainpart, "[") || strings.HasSuffix(domainpart, "]"):
		if l < 3 || domainpart[0] != '[' || domainpart[l-1] != ']' {
			return errors.New("jid: domainpart has unbalanced IPv6 brackets")
		}
		if ip := net.ParseIP(domainpart[1 : l-1]); ip == nil || ip.To4() != nil {
			return errors.New("jid: domainpart is not a valid IPv6 address")
		}
	}
	return nil
}

func commonChecks(localpart, domainpart, resourcepart string) error {
	if err := checkLocal(localpart); err != nil {
		return err
	}
	if err := checkResource(resourcepart); err != nil {
		return err
	}
	return checkDomain(domainpart)
}
