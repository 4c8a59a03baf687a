package resolver

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/al002/ztracker/internal/blocklist"
	"github.com/rs/dnscache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFunc(addrs map[string][]net.IPAddr) func(ctx context.Context, host string) ([]net.IPAddr, error) {
	return func(ctx context.Context, host string) ([]net.IPAddr, error) {
		a, ok := addrs[host]
		if !ok {
			return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
		}
		return a, nil
	}
}

func TestResolveUDP(t *testing.T) {
	bl := blocklist.New()
	_, err := bl.Reload(strings.NewReader("198.51.100.0/24\n"))
	require.NoError(t, err)

	r := &Resolver{
		Blocklist: bl,
		LookupIPAddr: lookupFunc(map[string][]net.IPAddr{
			"tracker.example": {{IP: net.ParseIP("2001:db8::1")}, {IP: net.ParseIP("192.0.2.10")}},
			"v6.example":      {{IP: net.ParseIP("2001:db8::2")}},
			"blocked.example": {{IP: net.ParseIP("198.51.100.3")}},
		}),
	}

	testCases := []struct {
		name        string
		hostport    string
		expected    string
		expectedErr error
	}{
		{name: "IPv4 literal", hostport: "192.0.2.1:6969", expected: "192.0.2.1:6969"},
		{name: "Host name", hostport: "tracker.example:80", expected: "192.0.2.10:80"},
		{name: "IPv6 literal", hostport: "[2001:db8::1]:6969", expectedErr: ErrNotIpv4Address},
		{name: "IPv6 only host", hostport: "v6.example:6969", expectedErr: ErrNotIpv4Address},
		{name: "Blocked literal", hostport: "198.51.100.1:6969", expectedErr: ErrBlocked},
		{name: "Blocked host", hostport: "blocked.example:6969", expectedErr: ErrBlocked},
		{name: "Zero port", hostport: "192.0.2.1:0", expectedErr: ErrInvalidPort},
		{name: "Large port", hostport: "192.0.2.1:65536", expectedErr: ErrInvalidPort},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := r.ResolveUDP(context.Background(), tc.hostport)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, addr.String())
		})
	}
}

func TestResolveUDPErrors(t *testing.T) {
	r := &Resolver{LookupIPAddr: lookupFunc(nil)}

	_, err := r.ResolveUDP(context.Background(), "missing.example:6969")
	var dnsErr *net.DNSError
	require.True(t, errors.As(err, &dnsErr))
	assert.True(t, dnsErr.IsNotFound)

	_, err = r.ResolveUDP(context.Background(), "192.0.2.1")
	assert.Error(t, err, "no port")

	_, err = r.ResolveUDP(context.Background(), "192.0.2.1:http")
	assert.Error(t, err)
}

func TestResolveUDPTimeout(t *testing.T) {
	r := &Resolver{
		Timeout: 1,
		LookupIPAddr: func(ctx context.Context, host string) ([]net.IPAddr, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	_, err := r.ResolveUDP(context.Background(), "slow.example:6969")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type countingDNS struct {
	hosts map[string][]string
	calls int
}

func (d *countingDNS) LookupHost(ctx context.Context, host string) ([]string, error) {
	d.calls++
	a, ok := d.hosts[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return a, nil
}

func (d *countingDNS) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	return nil, nil
}

func TestResolveUDPCache(t *testing.T) {
	dns := &countingDNS{hosts: map[string][]string{
		"tracker.example": {"2001:db8::1", "192.0.2.10"},
	}}
	r := &Resolver{Cache: &dnscache.Resolver{Resolver: dns}}

	for i := 0; i < 3; i++ {
		addr, err := r.ResolveUDP(context.Background(), "tracker.example:6969")
		require.NoError(t, err)
		assert.Equal(t, "192.0.2.10:6969", addr.String())
	}
	assert.Equal(t, 1, dns.calls)

	_, err := r.ResolveUDP(context.Background(), "missing.example:6969")
	assert.Error(t, err)
}
