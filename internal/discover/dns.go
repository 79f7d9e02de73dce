// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package discover

import (
	"context"
	"net"
	"sort"

	"github.com/miekg/dns"
)

// DNSResolver is a Resolver that queries a single DNS server directly instead
// of going through the system resolver.
type DNSResolver struct {
	// Server is the "host:port" address of the DNS server.
	Server string

	// Client is used to perform exchanges.
	// If nil, a UDP client with default settings is used.
	Client *dns.Client
}

func (r *DNSResolver) exchange(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	c := r.Client
	if c == nil {
		c = new(dns.Client)
	}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	in, _, err := c.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return nil, &net.DNSError{Err: err.Error(), Name: name, Server: r.Server}
	}
	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, &net.DNSError{Err: "no such host", Name: name, Server: r.Server, IsNotFound: true}
	default:
		return nil, &net.DNSError{Err: dns.RcodeToString[in.Rcode], Name: name, Server: r.Server}
	}
	return in.Answer, nil
}

// LookupSRV looks up the SRV records of the given service.
// Records are sorted by priority and then by descending weight.
func (r *DNSResolver) LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error) {
	cname := "_" + service + "._" + proto + "." + dns.Fqdn(name)
	answer, err := r.exchange(ctx, cname, dns.TypeSRV)
	if err != nil {
		return "", nil, err
	}
	var addrs []*net.SRV
	for _, rr := range answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		addrs = append(addrs, &net.SRV{
			Target:   srv.Target,
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
	}
	if len(addrs) == 0 {
		return "", nil, &net.DNSError{Err: "no such host", Name: cname, Server: r.Server, IsNotFound: true}
	}
	sort.SliceStable(addrs, func(i, j int) bool {
		if addrs[i].Priority != addrs[j].Priority {
			return addrs[i].Priority < addrs[j].Priority
		}
		return addrs[i].Weight > addrs[j].Weight
	})
	return cname, addrs, nil
}

// LookupHost returns the IPv4 and IPv6 addresses of host, IPv4 first.
func (r *DNSResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	var addrs []string
	var notFound error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		answer, err := r.exchange(ctx, host, qtype)
		if err != nil {
			if isNotFound(err) {
				notFound = err
				continue
			}
			return nil, err
		}
		for _, rr := range answer {
			switch rec := rr.(type) {
			case *dns.A:
				addrs = append(addrs, rec.A.String())
			case *dns.AAAA:
				addrs = append(addrs, rec.AAAA.String())
			}
		}
	}
	if len(addrs) == 0 {
		if notFound != nil {
			return nil, notFound
		}
		return nil, &net.DNSError{Err: "no such host", Name: host, Server: r.Server, IsNotFound: true}
	}
	return addrs, nil
}
