// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package discover is used to look up the endpoints of XMPP services.
package discover // import "mellium.im/courier/internal/discover"

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the port used for client connections when no SRV records
// exist.
const DefaultPort = 5222

// Errors returned by this package.
var (
	ErrInvalidService = errors.New("discover: service must be one of xmpp[s]-client or xmpp[s]-server")
	ErrUnavailable    = errors.New("discover: service is decidedly not available at this domain")
	ErrNoEndpoints    = errors.New("discover: no endpoint addresses could be resolved")
)

// Resolver looks up SRV and address records.
// It is satisfied by *net.Resolver and by DNSResolver.
type Resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Endpoint is a single address that a connection attempt can be made to.
type Endpoint struct {
	// Host is the name the address was resolved from.
	Host string
	// Addr is the "ip:port" form of the endpoint.
	Addr string
}

// String returns a description of the endpoint suitable for logging.
func (e Endpoint) String() string {
	if e.Host == "" {
		return e.Addr
	}
	return e.Host + " (" + e.Addr + ")"
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	ok := errors.As(err, &dnsErr)
	return ok && dnsErr.IsNotFound
}

// FallbackRecords returns fake SRV records based on the service that can be
// used if no actual SRV records can be found but we believe that an XMPP
// service exists at the given domain.
func FallbackRecords(service, domain string) []*net.SRV {
	switch service {
	case "xmpp-client":
		return []*net.SRV{{
			Target: domain,
			Port:   DefaultPort,
		}}
	case "xmpps-client":
		return []*net.SRV{{
			Target: domain,
			Port:   5223,
		}}
	case "xmpp-server":
		return []*net.SRV{{
			Target: domain,
			Port:   5269,
		}}
	case "xmpps-server":
		return []*net.SRV{{
			Target: domain,
			Port:   5270,
		}}
	}
	return nil
}

// LookupService looks for an XMPP service hosted at the given domain.
// It returns addresses from SRV records and if none are found, or the lookup
// fails for any reason other than ctx ending, returns the fallback record for
// the service.
// If the only record has a target of "." ErrUnavailable is returned.
// Service should be one of "xmpp[s]-client" or "xmpp[s]-server".
func LookupService(ctx context.Context, resolver Resolver, service, domain string) ([]*net.SRV, error) {
	switch service {
	case "xmpp-client", "xmpp-server", "xmpps-client", "xmpps-server":
	default:
		return nil, ErrInvalidService
	}
	_, addrs, err := resolver.LookupSRV(ctx, service, "tcp", domain)
	if err != nil {
		// RFC 6120 §3.2.2: a failed SRV lookup falls back to the domain itself,
		// whether the records do not exist or the query failed.
		if ctx.Err() != nil {
			return nil, err
		}
		return FallbackRecords(service, domain), nil
	}
	if len(addrs) == 0 {
		return FallbackRecords(service, domain), nil
	}

	// RFC 6120 §3.2.1
	//    3.  If a response is received, it will contain one or more
	//        combinations of a port and FDQN, each of which is weighted and
	//        prioritized as described in [DNS-SRV].  (However, if the result
	//        of the SRV lookup is a single resource record with a Target of
	//        ".", i.e., the root domain, then the initiating entity MUST abort
	//        SRV processing at this point because according to [DNS-SRV] such
	//        a Target "means that the service is decidedly not available at
	//        this domain".)
	if len(addrs) == 1 && addrs[0].Target == "." {
		return nil, ErrUnavailable
	}
	return addrs, nil
}

// Candidates returns the ordered endpoints of the client service at domain.
// SRV targets are resolved to addresses in record order; targets that fail to
// resolve are skipped.
// If no SRV target resolves, the domain itself is tried on DefaultPort.
func Candidates(ctx context.Context, resolver Resolver, domain string) ([]Endpoint, error) {
	records, err := LookupService(ctx, resolver, "xmpp-client", domain)
	if err != nil {
		return nil, err
	}
	var (
		endpoints []Endpoint
		lastErr   error
	)
	for _, rec := range records {
		eps, err := resolve(ctx, resolver, rec.Target, rec.Port)
		if err != nil {
			lastErr = err
			continue
		}
		endpoints = append(endpoints, eps...)
	}
	if len(endpoints) == 0 && !isFallback(records, domain) {
		eps, err := resolve(ctx, resolver, domain, DefaultPort)
		if err != nil {
			lastErr = err
		}
		endpoints = eps
	}
	if len(endpoints) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoEndpoints, lastErr)
		}
		return nil, ErrNoEndpoints
	}
	return endpoints, nil
}

func isFallback(records []*net.SRV, domain string) bool {
	return len(records) == 1 &&
		strings.TrimSuffix(records[0].Target, ".") == domain &&
		records[0].Port == DefaultPort
}

// HostCandidates returns the endpoints of an explicitly configured host,
// bypassing SRV lookup.
// Host may carry a port, otherwise DefaultPort is used.
func HostCandidates(ctx context.Context, resolver Resolver, host string) ([]Endpoint, error) {
	port := uint16(DefaultPort)
	if h, p, err := net.SplitHostPort(host); err == nil {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("discover: invalid port in %q: %w", host, err)
		}
		host, port = h, uint16(n)
	}
	eps, err := resolve(ctx, resolver, host, port)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoEndpoints, err)
	}
	return eps, nil
}

func resolve(ctx context.Context, resolver Resolver, target string, port uint16) ([]Endpoint, error) {
	name := strings.TrimSuffix(target, ".")
	p := strconv.Itoa(int(port))
	if ip := net.ParseIP(strings.Trim(name, "[]")); ip != nil {
		return []Endpoint{{Host: name, Addr: net.JoinHostPort(ip.String(), p)}}, nil
	}
	addrs, err := resolver.LookupHost(ctx, name)
	if err != nil {
		return nil, err
	}
	eps := make([]Endpoint, 0, len(addrs))
	for _, a := range addrs {
		eps = append(eps, Endpoint{Host: name, Addr: net.JoinHostPort(a, p)})
	}
	return eps, nil
}
