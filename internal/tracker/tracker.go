// Shape from https://github.com/cenkalti/rain
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/anacrolix/dht/v2/krpc"
)

type Tracker interface {
	Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error)
	URL() string
}

// Torrent related info sent in announce request
type Torrent struct {
	InfoHash  [20]byte
	PeerID    [20]byte
	BytesLeft int64
	Port      uint16
}

type AnnounceRequest struct {
	Torrent Torrent
}

type AnnounceResponse struct {
	// Seconds until the tracker allows the next announce
	Interval time.Duration
	Leechers int32
	Seeders  int32
	Peers    []Peer
}

func (r *AnnounceResponse) NodeAddrs() []krpc.NodeAddr {
	ret := make([]krpc.NodeAddr, 0, len(r.Peers))
	for _, p := range r.Peers {
		ret = append(ret, p.NodeAddr())
	}
	return ret
}

type Peer struct {
	IP   string
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(int(p.Port)))
}

func (p Peer) NodeAddr() krpc.NodeAddr {
	return krpc.NodeAddr{
		IP:   net.ParseIP(p.IP).To4(),
		Port: int(p.Port),
	}
}

var ErrDecode = errors.New("cannot decode response")

// TimeoutError is returned when the tracker did not answer within the retry budget.
type TimeoutError struct {
	URL      string
	Attempts int
	// Last error message sent by the tracker, if any
	LastMessage string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("tracker %s did not respond after %d attempts", e.URL, e.Attempts)
	if e.LastMessage != "" {
		msg += ": last tracker error: " + e.LastMessage
	}
	return msg
}

func (e *TimeoutError) Timeout() bool   { return true }
func (e *TimeoutError) Temporary() bool { return true }

// TransportError wraps a failure of the underlying datagram socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "udp transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
