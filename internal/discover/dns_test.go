// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package discover_test

import (
	"context"
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/courier/internal/discover"
)

var zone = map[uint16]map[string][]string{
	dns.TypeSRV: {
		"_xmpp-client._tcp.example.net.": {
			"_xmpp-client._tcp.example.net. 300 IN SRV 20 10 5222 backup.example.net.",
			"_xmpp-client._tcp.example.net. 300 IN SRV 10 5 5222 low.example.net.",
			"_xmpp-client._tcp.example.net. 300 IN SRV 10 50 5223 high.example.net.",
		},
		"_xmpp-client._tcp.down.example.": {
			"_xmpp-client._tcp.down.example. 300 IN SRV 0 0 0 .",
		},
	},
	dns.TypeA: {
		"high.example.net.": {"high.example.net. 300 IN A 192.0.2.10"},
		"low.example.net.":  {"low.example.net. 300 IN A 192.0.2.20"},
		"example.org.":      {"example.org. 300 IN A 192.0.2.30"},
	},
	dns.TypeAAAA: {
		"high.example.net.": {"high.example.net. 300 IN AAAA 2001:db8::10"},
	},
}

func startDNS(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			q := req.Question[0]
			records, ok := zone[q.Qtype][q.Name]
			if !ok {
				// Names that exist with another type get an empty answer.
				found := false
				for _, byName := range zone {
					if _, ok := byName[q.Name]; ok {
						found = true
					}
				}
				if !found {
					m.Rcode = dns.RcodeNameError
				}
			}
			for _, s := range records {
				rr, err := dns.NewRR(s)
				if err != nil {
					panic(err)
				}
				m.Answer = append(m.Answer, rr)
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() {
		_ = srv.ActivateAndServe()
	}()
	<-started
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})
	return pc.LocalAddr().String()
}

func TestDNSResolverSRV(t *testing.T) {
	r := &discover.DNSResolver{Server: startDNS(t)}

	cname, addrs, err := r.LookupSRV(context.Background(), "xmpp-client", "tcp", "example.net")
	require.NoError(t, err)
	assert.Equal(t, "_xmpp-client._tcp.example.net.", cname)
	require.Len(t, addrs, 3)
	assert.Equal(t, "high.example.net.", addrs[0].Target)
	assert.Equal(t, uint16(5223), addrs[0].Port)
	assert.Equal(t, "low.example.net.", addrs[1].Target)
	assert.Equal(t, "backup.example.net.", addrs[2].Target)

	_, _, err = r.LookupSRV(context.Background(), "xmpp-client", "tcp", "nowhere.example")
	var dnsErr *net.DNSError
	require.ErrorAs(t, err, &dnsErr)
	assert.True(t, dnsErr.IsNotFound)
}

func TestDNSResolverHost(t *testing.T) {
	r := &discover.DNSResolver{Server: startDNS(t)}

	addrs, err := r.LookupHost(context.Background(), "high.example.net")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.10", "2001:db8::10"}, addrs)

	_, err = r.LookupHost(context.Background(), "nowhere.example")
	var dnsErr *net.DNSError
	require.ErrorAs(t, err, &dnsErr)
	assert.True(t, dnsErr.IsNotFound)
}

func TestDNSCandidates(t *testing.T) {
	r := &discover.DNSResolver{Server: startDNS(t)}

	eps, err := discover.Candidates(context.Background(), r, "example.net")
	require.NoError(t, err)
	assert.Equal(t, []discover.Endpoint{
		{Host: "high.example.net", Addr: "192.0.2.10:5223"},
		{Host: "high.example.net", Addr: "[2001:db8::10]:5223"},
		{Host: "low.example.net", Addr: "192.0.2.20:5222"},
	}, eps)

	eps, err = discover.Candidates(context.Background(), r, "example.org")
	require.NoError(t, err)
	assert.Equal(t, []discover.Endpoint{{Host: "example.org", Addr: "192.0.2.30:5222"}}, eps)

	_, err = discover.Candidates(context.Background(), r, "down.example")
	assert.ErrorIs(t, err, discover.ErrUnavailable)
}
