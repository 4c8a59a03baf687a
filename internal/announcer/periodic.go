package announcer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/al002/ztracker/internal/log"
	"github.com/al002/ztracker/internal/resolver"
	"github.com/al002/ztracker/internal/tracker"
	"github.com/cenkalti/backoff/v5"
)

type Status int

const (
	NotContactedYet Status = iota
	Contacting
	Working
	NotWorking
)

var statusNames = [...]string{
	"not_contacted_yet",
	"contacting",
	"working",
	"not_working",
}

func (s Status) String() string {
	return statusNames[s]
}

// Result is a successful announce published to the caller.
type Result struct {
	URL      string
	InfoHash [20]byte
	Response *tracker.AnnounceResponse
}

// PeriodicalAnnouncer announces the torrent to one tracker at the interval the
// tracker asks for, and backs off exponentially while the tracker fails.
type PeriodicalAnnouncer struct {
	Tracker      tracker.Tracker
	minInterval  time.Duration
	interval     time.Duration
	seeders      int
	leechers     int
	backoff      backoff.BackOff
	getTorrent   func() tracker.Torrent
	lastAnnounce time.Time
	nextAnnounce time.Time
	HasAnnounced bool
	resultC      chan<- Result
	responseC    chan *tracker.AnnounceResponse
	errC         chan error
	closeC       chan struct{}
	doneC        chan struct{}
	lastError    *AnnounceError

	status        Status
	statsCommandC chan statsRequest

	log log.Logger
}

func NewPeriodicalAnnouncer(t tracker.Tracker, minInterval time.Duration, getTorrent func() tracker.Torrent, resultC chan<- Result, logger log.Logger) *PeriodicalAnnouncer {
	return &PeriodicalAnnouncer{
		Tracker:       t,
		status:        NotContactedYet,
		minInterval:   minInterval,
		getTorrent:    getTorrent,
		resultC:       resultC,
		responseC:     make(chan *tracker.AnnounceResponse),
		errC:          make(chan error),
		closeC:        make(chan struct{}),
		doneC:         make(chan struct{}),
		statsCommandC: make(chan statsRequest),
		backoff: &backoff.ExponentialBackOff{
			InitialInterval:     5 * time.Second,
			RandomizationFactor: 0.5,
			Multiplier:          2,
			MaxInterval:         30 * time.Minute,
		},
		log: logger.With("tracker", t.URL()),
	}
}

func (a *PeriodicalAnnouncer) Close() {
	close(a.closeC)
	<-a.doneC
}

func (a *PeriodicalAnnouncer) Run() {
	defer close(a.doneC)

	a.backoff.Reset()

	timer := time.NewTimer(math.MaxInt64)
	defer timer.Stop()

	resetTimer := func(interval time.Duration) {
		timer.Reset(interval)
		if interval < 0 {
			a.nextAnnounce = time.Now()
		} else {
			a.nextAnnounce = time.Now().Add(interval)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.doAnnounce(ctx)
	for {
		select {
		case <-timer.C:
			if a.status == Contacting {
				break
			}
			a.doAnnounce(ctx)
		case resp := <-a.responseC:
			a.status = Working
			a.seeders = int(resp.Seeders)
			a.leechers = int(resp.Leechers)
			a.interval = resp.Interval
			a.HasAnnounced = true
			a.lastError = nil
			a.backoff.Reset()
			resetTimer(a.getNextInterval())
			a.log.Info(
				"announce succeeded",
				"peers", len(resp.Peers),
				"seeders", resp.Seeders,
				"leechers", resp.Leechers,
				"interval", resp.Interval,
			)
			res := Result{URL: a.Tracker.URL(), InfoHash: a.getTorrent().InfoHash, Response: resp}
			go func() {
				select {
				case a.resultC <- res:
				case <-a.closeC:
				}
			}()
		case err := <-a.errC:
			a.status = NotWorking
			a.lastError = a.newAnnounceError(err)
			interval := a.backoff.NextBackOff()
			resetTimer(interval)
			a.log.Warn(
				"announce failed",
				"error", a.lastError.Message,
				"retry_in", interval,
			)
		case req := <-a.statsCommandC:
			req.Response <- a.stats()
		case <-a.closeC:
			return
		}
	}
}

func (a *PeriodicalAnnouncer) doAnnounce(ctx context.Context) {
	go announce(ctx, a.Tracker, a.getTorrent(), a.responseC, a.errC)
	a.status = Contacting
	a.lastAnnounce = time.Now()
}

// getNextInterval never lets a tracker ask for announces faster than minInterval.
func (a *PeriodicalAnnouncer) getNextInterval() time.Duration {
	if a.interval < a.minInterval {
		return a.minInterval
	}
	return a.interval
}

type statsRequest struct {
	Response chan Stats
}

func (a *PeriodicalAnnouncer) Stats() Stats {
	var stats Stats
	req := statsRequest{
		Response: make(chan Stats, 1),
	}

	select {
	case a.statsCommandC <- req:
	case <-a.doneC:
		return stats
	}

	select {
	case stats = <-req.Response:
	case <-a.doneC:
	}

	return stats
}

type Stats struct {
	Status       Status
	Error        *AnnounceError
	Seeders      int
	Leechers     int
	LastAnnounce time.Time
	NextAnnounce time.Time
}

func (a *PeriodicalAnnouncer) stats() Stats {
	return Stats{
		Status:       a.status,
		Error:        a.lastError,
		Seeders:      a.seeders,
		Leechers:     a.leechers,
		LastAnnounce: a.lastAnnounce,
		NextAnnounce: a.nextAnnounce,
	}
}

type AnnounceError struct {
	Err     error
	Message string
	Unknown bool
}

func (e *AnnounceError) Error() string {
	return e.Message
}

func (e *AnnounceError) Unwrap() error {
	return e.Err
}

func (a *PeriodicalAnnouncer) newAnnounceError(err error) *AnnounceError {
	return newAnnounceError(a.Tracker.URL(), err)
}

func newAnnounceError(rawURL string, err error) (e *AnnounceError) {
	e = &AnnounceError{Err: err}
	hostname := rawURL
	if parsed, perr := url.Parse(rawURL); perr == nil {
		hostname = parsed.Hostname()
	}

	switch {
	case errors.Is(err, resolver.ErrNotIpv4Address):
		e.Message = "tracker has no IPv4 address: " + hostname
		return
	case errors.Is(err, resolver.ErrBlocked):
		e.Message = "tracker IP is blocked"
		return
	case errors.Is(err, resolver.ErrInvalidPort):
		e.Message = "invalid port number in tracker address: " + rawURL
		return
	case errors.Is(err, tracker.ErrDecode):
		e.Message = "invalid response from tracker"
		return
	}

	var terr *tracker.TimeoutError
	if errors.As(err, &terr) {
		e.Message = fmt.Sprintf("tracker did not respond after %d attempts", terr.Attempts)
		if terr.LastMessage != "" {
			e.Message += ": " + terr.LastMessage
		}
		return
	}

	var trerr *tracker.TransportError
	if errors.As(err, &trerr) {
		e.Message = "udp transport failure: " + trerr.Err.Error()
		return
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			e.Message = "host not found: " + dnsErr.Name
		case dnsErr.IsTimeout:
			e.Message = "timeout resolving host: " + dnsErr.Name
		default:
			e.Message = "temporary failure in name resolution: " + dnsErr.Name
		}
		return
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		e.Message = "invalid tracker address: " + addrErr.Err
		return
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		e.Message = "contacting tracker timeout"
		return
	}

	e.Message = "Unknown error in announce"
	e.Unknown = true
	return
}
