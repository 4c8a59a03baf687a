package trackermanager

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/al002/ztracker/internal/blocklist"
	"github.com/al002/ztracker/internal/log"
	"github.com/al002/ztracker/internal/resolver"
	"github.com/al002/ztracker/internal/tracker"
	"github.com/al002/ztracker/internal/tracker/udptracker"
	"github.com/rs/dnscache"
	"go.uber.org/multierr"
)

const dnsRefreshInterval = 5 * time.Minute

type Options struct {
	// Local address of the shared UDP socket
	BindAddr   string
	DNSTimeout time.Duration
	Blocklist  *blocklist.Blocklist
	Session    udptracker.Config
}

// TrackerManager hands out trackers that all share one UDP transport.
type TrackerManager struct {
	udpTransport *udptracker.Transport
	resolver     *resolver.Resolver
	dnsCache     *dnscache.Resolver
	session      udptracker.Config
	log          log.Logger

	closeOnce sync.Once
	closeC    chan struct{}
	doneC     chan struct{}
}

func New(opts Options, logger log.Logger) (*TrackerManager, error) {
	bindAddr := opts.BindAddr
	if bindAddr == "" {
		bindAddr = "0.0.0.0:0"
	}

	t, err := udptracker.ListenTransport(bindAddr, logger)
	if err != nil {
		return nil, err
	}

	cache := &dnscache.Resolver{}
	m := &TrackerManager{
		udpTransport: t,
		resolver: &resolver.Resolver{
			Timeout:   opts.DNSTimeout,
			Blocklist: opts.Blocklist,
			Cache:     cache,
		},
		dnsCache: cache,
		session:  opts.Session,
		log:      logger,
		closeC:   make(chan struct{}),
		doneC:    make(chan struct{}),
	}

	go m.udpTransport.Run()
	go m.refreshDNS(dnsRefreshInterval)
	m.log.Info("Tracker transport listening", "local_addr", t.LocalAddr().String())

	return m, nil
}

// refreshDNS re-resolves cached tracker hosts and drops the ones no longer used.
func (m *TrackerManager) refreshDNS(interval time.Duration) {
	defer close(m.doneC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.dnsCache.Refresh(true)
		case <-m.closeC:
			return
		}
	}
}

func (m *TrackerManager) Close() error {
	m.closeOnce.Do(func() { close(m.closeC) })
	<-m.doneC

	err := m.udpTransport.Close()
	<-m.udpTransport.Done()

	if terr := m.udpTransport.Err(); terr != nil && terr != udptracker.ErrTransportClosed {
		err = multierr.Append(err, terr)
	}
	return err
}

func (m *TrackerManager) Get(s string) (tracker.Tracker, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "udp", "udp4":
		if u.Port() == "" {
			return nil, fmt.Errorf("tracker url has no port: %s", s)
		}
		return udptracker.New(s, u, m.udpTransport, m.resolver, m.session, m.log), nil
	default:
		return nil, fmt.Errorf("unsupported tracker scheme: %s", u.Scheme)
	}
}
