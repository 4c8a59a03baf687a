package torrent

import (
	"fmt"
	"time"

	"github.com/al002/ztracker/internal/announcer"
	"github.com/al002/ztracker/internal/metainfo"
	"github.com/al002/ztracker/internal/tracker"
)

type State int

const (
	StateStopped State = iota
	StateAnnouncing
)

// Torrent is a torrent being announced to its UDP trackers.
type Torrent struct {
	Trackers []string
	Name     string
	InfoHash [20]byte
	AddedAt  time.Time
	State    State

	peerID     [20]byte
	port       uint16
	bytesLeft  int64
	announcers []*announcer.PeriodicalAnnouncer
}

// New announces mi as a leecher that has downloaded nothing yet. trackers
// overrides the udp trackers of mi when not empty.
func New(mi *metainfo.MetaInfo, trackers []string, peerID [20]byte, port uint16) (*Torrent, error) {
	if len(trackers) == 0 {
		trackers = mi.UDPTrackers()
	}
	if len(trackers) == 0 {
		return nil, fmt.Errorf("torrent %s has no udp trackers", mi.InfoHashHex())
	}

	return &Torrent{
		Trackers:  trackers,
		Name:      mi.Name,
		InfoHash:  mi.InfoHash,
		AddedAt:   time.Now(),
		State:     StateStopped,
		peerID:    peerID,
		port:      port,
		bytesLeft: mi.Length,
	}, nil
}

func (t *Torrent) announceGetTorrent() tracker.Torrent {
	return tracker.Torrent{
		InfoHash:  t.InfoHash,
		PeerID:    t.peerID,
		BytesLeft: t.bytesLeft,
		Port:      t.port,
	}
}

// AnnounceRequest is the request sent to every tracker of t.
func (t *Torrent) AnnounceRequest() tracker.AnnounceRequest {
	return tracker.AnnounceRequest{Torrent: t.announceGetTorrent()}
}

func (t *Torrent) GetState() State {
	return t.State
}
