package udptracker

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/al002/ztracker/internal/log"
	"github.com/al002/ztracker/internal/tracker"
	"github.com/google/uuid"
)

const defaultConnectionIDTTL = time.Minute

type State int32

const (
	Idle State = iota
	AwaitingConnect
	AwaitingAnnounce
	Succeeded
	Failed
)

var stateNames = [...]string{
	"idle",
	"awaiting_connect",
	"awaiting_announce",
	"succeeded",
	"failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// datagramTransport is the part of *Transport a session needs.
type datagramTransport interface {
	Send(b []byte, addr net.Addr) error
	Register(id uint32, c chan<- []byte) bool
	Unregister(id uint32)
	Done() <-chan struct{}
	Err() error
}

type Config struct {
	// Timeout of the first attempt, doubled on every retransmission
	BaseTimeout time.Duration
	// Number of retransmissions before giving up, at most 8
	MaxRetries int
	// How long a connection id issued by the tracker may be used
	ConnectionIDTTL time.Duration
	Clock           Clock
}

func (c Config) withDefaults() Config {
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = defaultBaseTimeout
	}
	if c.MaxRetries <= 0 || c.MaxRetries > defaultMaxRetries {
		c.MaxRetries = defaultMaxRetries
	}
	if c.ConnectionIDTTL <= 0 {
		c.ConnectionIDTTL = defaultConnectionIDTTL
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	return c
}

type timeoutEvent struct {
	transactionID uint32
	exhausted     bool
}

// Session runs one connect then announce exchange with one tracker.
// A Session is single use; all protocol state is touched only by Run's goroutine.
type Session struct {
	id        string
	url       string
	addr      net.Addr
	req       tracker.AnnounceRequest
	transport datagramTransport
	clock     Clock
	retry     *RetryScheduler
	connTTL   time.Duration
	log       log.Logger

	state atomic.Int32
	tctx  transactionContext
	// bytes of the outstanding request, sent again on timeout
	pending    []byte
	registered bool
	// set once an expired connection id forced a new connect
	restarted bool

	inboundC chan []byte
	timeoutC chan timeoutEvent
	doneC    chan struct{}
}

func NewSession(rawURL string, addr net.Addr, req tracker.AnnounceRequest, t datagramTransport, cfg Config, logger log.Logger) *Session {
	cfg = cfg.withDefaults()
	id := uuid.NewString()

	return &Session{
		id:        id,
		url:       rawURL,
		addr:      addr,
		req:       req,
		transport: t,
		clock:     cfg.Clock,
		retry:     NewRetryScheduler(cfg.Clock, cfg.BaseTimeout, cfg.MaxRetries),
		connTTL:   cfg.ConnectionIDTTL,
		log:       logger.With("session_id", id, "tracker", rawURL),
		inboundC:  make(chan []byte, 8),
		timeoutC:  make(chan timeoutEvent),
		doneC:     make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.log.Debug("session state changed", "from", old.String(), "to", st.String())
	}
}

// Run blocks until the tracker answered the announce, the retry budget is spent,
// the transport failed or ctx is done.
func (s *Session) Run(ctx context.Context) (*tracker.AnnounceResponse, error) {
	if s.State() != Idle {
		return nil, errors.New("tracker session already used")
	}

	defer close(s.doneC)
	defer s.finish()

	if err := s.connect(); err != nil {
		return nil, s.fail(err)
	}

	for {
		select {
		case <-ctx.Done():
			s.setState(Failed)
			return nil, ctx.Err()
		case <-s.transport.Done():
			err := s.transport.Err()
			var terr *tracker.TransportError
			if !errors.As(err, &terr) {
				if err == nil {
					err = ErrTransportClosed
				}
				err = &tracker.TransportError{Op: "read", Err: err}
			}
			return nil, s.fail(err)
		case b := <-s.inboundC:
			resp, err := s.handleDatagram(b)
			if err != nil {
				return nil, s.fail(err)
			}
			if resp != nil {
				return resp, nil
			}
		case ev := <-s.timeoutC:
			if err := s.handleTimeout(ev); err != nil {
				return nil, s.fail(err)
			}
		}
	}
}

func (s *Session) fail(err error) error {
	s.setState(Failed)
	s.log.Warn("tracker session failed", "error", err)
	return err
}

func (s *Session) finish() {
	s.retry.Cancel()
	if s.registered {
		s.transport.Unregister(s.tctx.transactionID)
		s.registered = false
	}
}

// connect starts over from Idle with a new connect request.
func (s *Session) connect() error {
	if !s.restarted {
		s.retry.Reset()
	}
	s.tctx.connectionID = 0
	s.tctx.connectionIssuedAt = time.Time{}

	s.begin(encodeConnectRequest)
	s.setState(AwaitingConnect)
	return s.transmit()
}

func (s *Session) announce() error {
	s.begin(func() ([]byte, uint32) {
		t := s.req.Torrent
		return encodeAnnounceRequest(s.tctx.connectionID, t.InfoHash, t.BytesLeft, t.PeerID, t.Port)
	})
	s.setState(AwaitingAnnounce)
	return s.transmit()
}

// begin makes encode's message the outstanding request, regenerating on id collision.
func (s *Session) begin(encode func() ([]byte, uint32)) {
	if s.registered {
		s.transport.Unregister(s.tctx.transactionID)
		s.registered = false
	}

	for {
		b, id := encode()
		if !s.transport.Register(id, s.inboundC) {
			s.log.Debug("transaction id collision", "transaction_id", id)
			continue
		}
		s.pending = b
		s.tctx.transactionID = id
		s.registered = true
		return
	}
}

// transmit arms the retry timer for the outstanding request and writes it.
func (s *Session) transmit() error {
	id := s.tctx.transactionID
	if !s.retry.Arm(s.onTimeout(id)) {
		return s.timeoutError()
	}
	s.tctx.retryCount = s.retry.Attempt()

	s.log.Debug(
		"sending request",
		"state", s.State().String(),
		"transaction_id", id,
		"attempt", s.tctx.retryCount,
	)

	if err := s.transport.Send(s.pending, s.addr); err != nil {
		s.retry.Cancel()
		return err
	}
	return nil
}

func (s *Session) onTimeout(id uint32) func(exhausted bool) {
	return func(exhausted bool) {
		select {
		case s.timeoutC <- timeoutEvent{transactionID: id, exhausted: exhausted}:
		case <-s.doneC:
		}
	}
}

func (s *Session) handleTimeout(ev timeoutEvent) error {
	if ev.transactionID != s.tctx.transactionID {
		return nil
	}

	if ev.exhausted {
		return s.timeoutError()
	}

	if s.State() == AwaitingAnnounce && s.tctx.connectionExpired(s.clock.Now(), s.connTTL) {
		s.log.Debug("connection id expired, connecting again", "connection_id", s.tctx.connectionID)
		s.restarted = true
		return s.connect()
	}

	return s.transmit()
}

func (s *Session) timeoutError() error {
	return &tracker.TimeoutError{
		URL:         s.url,
		Attempts:    s.tctx.retryCount + 1,
		LastMessage: s.tctx.lastTrackerError,
	}
}

// handleDatagram returns a response once the announce succeeded and an error only
// for terminal failures. Anything not answering the outstanding request is dropped.
func (s *Session) handleDatagram(b []byte) (*tracker.AnnounceResponse, error) {
	act, id, err := peekHeader(b)
	if err != nil {
		s.discard(b, err)
		return nil, nil
	}
	if id != s.tctx.transactionID {
		s.discard(b, ErrProtocolMismatch)
		return nil, nil
	}
	if act == actionError {
		s.recordTrackerError(b)
		return nil, nil
	}

	switch s.State() {
	case AwaitingConnect:
		if act != actionConnect {
			s.discard(b, ErrProtocolMismatch)
			return nil, nil
		}
		res, err := decodeConnectResponse(b)
		if err != nil {
			s.discard(b, err)
			return nil, nil
		}

		s.retry.Cancel()
		s.tctx.connectionID = res.ConnectionID
		s.tctx.connectionIssuedAt = s.clock.Now()
		if !s.restarted {
			s.retry.Reset()
		}

		return nil, s.announce()
	case AwaitingAnnounce:
		if act != actionAnnounce {
			s.discard(b, ErrProtocolMismatch)
			return nil, nil
		}
		res, err := decodeAnnounceResponse(b)
		if err != nil {
			s.discard(b, err)
			return nil, nil
		}

		s.retry.Cancel()
		s.setState(Succeeded)
		s.log.Debug(
			"announce response",
			"interval", res.Interval,
			"leechers", res.Leechers,
			"seeders", res.Seeders,
			"peers", len(res.Peers),
		)

		return &tracker.AnnounceResponse{
			Interval: time.Duration(res.Interval) * time.Second,
			Leechers: res.Leechers,
			Seeders:  res.Seeders,
			Peers:    res.Peers,
		}, nil
	default:
		s.discard(b, ErrProtocolMismatch)
		return nil, nil
	}
}

func (s *Session) recordTrackerError(b []byte) {
	res, err := decodeErrorResponse(b)
	if err != nil {
		s.discard(b, err)
		return
	}
	s.tctx.lastTrackerError = res.Message
	s.log.Warn("tracker returned error", "transaction_id", res.TransactionID, "message", res.Message)
}

func (s *Session) discard(b []byte, reason error) {
	s.log.Debug(
		"discarding datagram",
		"state", s.State().String(),
		"size", len(b),
		"reason", reason.Error(),
	)
}
