package udptracker

import (
	"errors"
	"net"
	"sync"

	"github.com/al002/ztracker/internal/log"
	"github.com/al002/ztracker/internal/tracker"
)

// Largest UDP payload over IPv4. Announces ask for every peer, so a smaller
// buffer would cut the peer list at a multiple of 6 and go unnoticed.
const maxDatagramSize = 65507

var ErrTransportClosed = errors.New("udp transport closed")

// Transport shares one UDP socket between any number of sessions.
// Responses are routed to sessions by transaction id only.
type Transport struct {
	conn     net.PacketConn
	registry transactionRegistry

	closeOnce sync.Once
	closeC    chan struct{}
	doneC     chan struct{}
	// set before doneC is closed
	err error

	log log.Logger
}

func NewTransport(conn net.PacketConn, logger log.Logger) *Transport {
	return &Transport{
		conn:   conn,
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
		log:    logger,
	}
}

// ListenTransport binds an IPv4 UDP socket on addr, "0.0.0.0:0" picks any port.
func ListenTransport(addr string, logger log.Logger) (*Transport, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, &tracker.TransportError{Op: "listen", Err: err}
	}
	return NewTransport(conn, logger), nil
}

func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Run reads datagrams until the transport is closed or the socket fails.
func (t *Transport) Run() {
	t.log.Debug("Starting udp transport read loop", "local_addr", t.conn.LocalAddr().String())
	defer close(t.doneC)

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.closeC:
				t.err = ErrTransportClosed
			default:
				t.log.Error("udp transport read failed", "error", err)
				t.err = &tracker.TransportError{Op: "read", Err: err}
			}
			return
		}

		b := make([]byte, n)
		copy(b, buf[:n])

		id, err := t.registry.dispatch(b)
		if err != nil {
			t.log.Debug(
				"Dropping datagram",
				"from", addr.String(),
				"size", n,
				"transaction_id", id,
				"reason", err.Error(),
			)
		}
	}
}

func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closeC)
		err = t.conn.Close()
	})
	return err
}

func (t *Transport) Send(b []byte, addr net.Addr) error {
	select {
	case <-t.doneC:
		err := t.Err()
		var terr *tracker.TransportError
		if errors.As(err, &terr) {
			return err
		}
		return &tracker.TransportError{Op: "write", Err: err}
	default:
	}

	if _, err := t.conn.WriteTo(b, addr); err != nil {
		return &tracker.TransportError{Op: "write", Err: err}
	}
	return nil
}

// Register subscribes c to responses carrying id, false if id is in use.
func (t *Transport) Register(id uint32, c chan<- []byte) bool {
	return t.registry.register(id, c)
}

func (t *Transport) Unregister(id uint32) {
	t.registry.forget(id)
}

// Done is closed once the transport stopped reading.
func (t *Transport) Done() <-chan struct{} {
	return t.doneC
}

func (t *Transport) Err() error {
	select {
	case <-t.doneC:
		return t.err
	default:
		return nil
	}
}
