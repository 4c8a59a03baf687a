package udptracker

import (
	"context"
	"net/url"

	"github.com/al002/ztracker/internal/log"
	"github.com/al002/ztracker/internal/resolver"
	"github.com/al002/ztracker/internal/tracker"
)

type UDPTracker struct {
	rawURL    string
	dest      string
	transport *Transport
	resolver  *resolver.Resolver
	cfg       Config
	log       log.Logger
}

var _ tracker.Tracker = (*UDPTracker)(nil)

func New(rawURL string, u *url.URL, t *Transport, r *resolver.Resolver, cfg Config, logger log.Logger) *UDPTracker {
	return &UDPTracker{
		rawURL:    rawURL,
		dest:      u.Host,
		transport: t,
		resolver:  r,
		cfg:       cfg,
		log:       logger,
	}
}

func (t *UDPTracker) URL() string {
	return t.rawURL
}

// Announce resolves the tracker and runs a fresh session against it.
func (t *UDPTracker) Announce(ctx context.Context, req tracker.AnnounceRequest) (*tracker.AnnounceResponse, error) {
	addr, err := t.resolver.ResolveUDP(ctx, t.dest)
	if err != nil {
		return nil, err
	}

	s := NewSession(t.rawURL, addr, req, t.transport, t.cfg, t.log)
	return s.Run(ctx)
}
