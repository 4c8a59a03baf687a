package resolver

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/al002/ztracker/internal/blocklist"
	"github.com/rs/dnscache"
)

var (
	ErrBlocked        = errors.New("ip is blocked")
	ErrNotIpv4Address = errors.New("not ipv4 address")
	ErrInvalidPort    = errors.New("invalid port number")
)

const defaultTimeout = 5 * time.Second

// Resolver maps the authority of a tracker URL to a UDP address.
// Only IPv4 is supported and blocked addresses are refused.
type Resolver struct {
	Timeout   time.Duration
	Blocklist *blocklist.Blocklist
	// Used for host names when LookupIPAddr is nil, re-announces then skip DNS
	Cache *dnscache.Resolver
	// LookupIPAddr defaults to Cache, then net.DefaultResolver.LookupIPAddr
	LookupIPAddr func(ctx context.Context, host string) ([]net.IPAddr, error)
}

func (r *Resolver) ResolveUDP(ctx context.Context, hostport string) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, ErrInvalidPort
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ip, err = r.lookupIPv4(ctx, host)
		if err != nil {
			return nil, err
		}
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return nil, ErrNotIpv4Address
	}
	if r.Blocklist != nil && r.Blocklist.Blocked(ip4) {
		return nil, ErrBlocked
	}

	return &net.UDPAddr{IP: ip4, Port: port}, nil
}

func (r *Resolver) lookupIPv4(ctx context.Context, host string) (net.IP, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	lookup := r.LookupIPAddr
	if lookup == nil && r.Cache != nil {
		lookup = CachedLookup(r.Cache)
	}
	if lookup == nil {
		lookup = net.DefaultResolver.LookupIPAddr
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := lookup(ctx, host)
	if err != nil {
		return nil, err
	}

	for _, ia := range addrs {
		if ip4 := ia.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}

	return nil, ErrNotIpv4Address
}

// CachedLookup adapts a dnscache resolver to the LookupIPAddr signature.
func CachedLookup(c *dnscache.Resolver) func(ctx context.Context, host string) ([]net.IPAddr, error) {
	return func(ctx context.Context, host string) ([]net.IPAddr, error) {
		hosts, err := c.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}

		addrs := make([]net.IPAddr, 0, len(hosts))
		for _, h := range hosts {
			if ip := net.ParseIP(h); ip != nil {
				addrs = append(addrs, net.IPAddr{IP: ip})
			}
		}
		return addrs, nil
	}
}
