// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/text/language"
	"mellium.im/sasl"

	"mellium.im/courier/internal/ns"
	"mellium.im/courier/internal/saslerr"
	"mellium.im/courier/stack"
	"mellium.im/courier/xmlnode"
)

// External is the SASL EXTERNAL mechanism (RFC 4422 Appendix A).
// The credentials are established outside of SASL, normally by the client
// certificate presented during the TLS handshake.
// The identity, if any, is sent as the authorization identity.
var External = sasl.Mechanism{
	Name: "EXTERNAL",
	Start: func(n *sasl.Negotiator) (bool, []byte, interface{}, error) {
		_, _, identity := n.Credentials()
		return false, identity, nil, nil
	},
	Next: func(*sasl.Negotiator, []byte, interface{}) (bool, []byte, interface{}, error) {
		return false, nil, nil, sasl.ErrTooManySteps
	},
}

// selectMechanism picks the first mechanism in prefs that the server offered
// and that is usable on the current stream.
func selectMechanism(prefs []sasl.Mechanism, offered []string, secure, allowPlain bool) (sasl.Mechanism, bool) {
	for _, m := range prefs {
		switch {
		case strings.HasSuffix(m.Name, "-PLUS") && !secure:
			continue
		case m.Name == sasl.Plain.Name && !secure && !allowPlain:
			continue
		}
		for _, name := range offered {
			if name == m.Name {
				return m, true
			}
		}
	}
	return sasl.Mechanism{}, false
}

// authenticate performs SASL authentication.
// Unless a client certificate can be used with EXTERNAL, the credentials are
// requested from the application and authentication waits until they are
// supplied.
func (s *Session) authenticate(ctx context.Context, offered []string) error {
	tlsLayer, secure := s.stk.Layer(stack.Security).(*TLSLayer)

	var mech sasl.Mechanism
	var password string
	external := secure && hasClientCertificate(s.opts.TLSConfig) && contains(offered, External.Name)
	if external {
		mech = External
	} else {
		var ok bool
		mech, ok = selectMechanism(s.opts.Mechanisms, offered, secure, s.opts.AllowPlainWithoutTLS)
		if !ok {
			var err error
			if !secure && contains(offered, sasl.Plain.Name) {
				err = ErrPlainWithoutTLS
			}
			return newError(NoSupportedAuthMechanisms, err)
		}
		var err error
		password, err = s.credentials(ctx)
		if err != nil {
			return err
		}
	}
	s.log.Debugf("authenticating with %s", mech.Name)

	opts := []sasl.Option{
		sasl.RemoteMechanisms(offered...),
		sasl.Credentials(func() ([]byte, []byte, []byte) {
			if external {
				return nil, nil, nil
			}
			return []byte(s.local.Localpart()), []byte(password), nil
		}),
	}
	if secure {
		opts = append(opts, sasl.TLSState(tlsLayer.ConnectionState()))
	}
	client := sasl.NewClient(mech, opts...)

	more, resp, err := client.Step(nil)
	if err != nil {
		return newError(AuthenticationFailed, err)
	}
	auth := xmlnode.New(ns.SASL, "auth").
		SetAttr("mechanism", mech.Name).
		AddText(encodeSASL(resp))
	if err = s.writeElement(auth); err != nil {
		return err
	}

	for {
		el, err := s.next(ctx)
		if err != nil {
			return err
		}
		if el.Name.Space != ns.SASL {
			return newError(UnexpectedElement, errUnexpected(el))
		}
		switch el.Name.Local {
		case "challenge":
			challenge, err := decodeSASL(el.Text())
			if err != nil {
				return newError(AuthenticationFailed, err)
			}
			if !more {
				return newError(AuthenticationFailed, sasl.ErrTooManySteps)
			}
			more, resp, err = client.Step(challenge)
			if err != nil {
				return newError(AuthenticationFailed, err)
			}
			if err = s.writeElement(xmlnode.New(ns.SASL, "response").AddText(encodeSASL(resp))); err != nil {
				return err
			}
		case "success":
			// RFC 6120 §6.3.10: the success element may carry additional data
			// with outcome of the authentication, such as the SCRAM server
			// signature.
			if more {
				data, err := decodeSASL(el.Text())
				if err != nil {
					return newError(AuthenticationFailed, err)
				}
				if _, _, err = client.Step(data); err != nil {
					return newError(AuthenticationFailed, err)
				}
			}
			return nil
		case "failure":
			lang, _ := language.Parse(s.opts.Lang)
			return newError(AuthenticationFailed, saslerr.Parse(el, lang))
		default:
			return newError(UnexpectedElement, errUnexpected(el))
		}
	}
}

// credentials raises the credentials signal and waits for the application to
// answer with SendCredentials.
func (s *Session) credentials(ctx context.Context) (string, error) {
	if s.handlers.NeedCredentials != nil {
		s.handlers.NeedCredentials()
	}
	select {
	case password := <-s.creds:
		return password, nil
	case <-s.finishReq:
		return "", errFinishRequested
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// encodeSASL encodes a SASL message.
// RFC 6120 §6.4.2: an empty response is sent as a single equals sign.
func encodeSASL(b []byte) string {
	if len(b) == 0 {
		return "="
	}
	return base64.StdEncoding.EncodeToString(b)
}

func decodeSASL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "=" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("courier: invalid base64 in SASL data")
	}
	return b, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
