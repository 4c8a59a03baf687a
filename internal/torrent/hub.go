package torrent

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/al002/ztracker/internal/announcer"
	"github.com/al002/ztracker/internal/log"
	"github.com/al002/ztracker/internal/tracker"
)

var errHubClosed = errors.New("hub closed")

// TrackerGetter returns the tracker behind an announce url.
type TrackerGetter interface {
	Get(s string) (tracker.Tracker, error)
}

type HubConfig struct {
	// Lower bound for the re-announce interval a tracker asks for
	MinInterval time.Duration
}

// Hub keeps announcing every added torrent to all of its trackers.
type Hub struct {
	logger   log.Logger
	trackers TrackerGetter
	torrents map[[20]byte]*Torrent
	config   HubConfig
	resultC  chan announcer.Result
	closed   bool
	mu       sync.RWMutex
}

func NewHub(cfg HubConfig, trackers TrackerGetter, logger log.Logger) *Hub {
	return &Hub{
		torrents: make(map[[20]byte]*Torrent),
		trackers: trackers,
		config:   cfg,
		resultC:  make(chan announcer.Result, 16),
		logger:   logger,
	}
}

// Results delivers every successful announce of every torrent.
func (h *Hub) Results() <-chan announcer.Result {
	return h.resultC
}

// AddTorrent starts one announcer per tracker of t. Trackers that cannot be
// used are skipped, it fails only when none is left.
func (h *Hub) AddTorrent(t *Torrent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errHubClosed
	}
	if _, exists := h.torrents[t.InfoHash]; exists {
		return fmt.Errorf("torrent already exists")
	}

	for _, u := range t.Trackers {
		tr, err := h.trackers.Get(u)
		if err != nil {
			h.logger.Warn("skipping tracker", "tracker", u, "error", err)
			continue
		}
		a := announcer.NewPeriodicalAnnouncer(tr, h.config.MinInterval, t.announceGetTorrent, h.resultC, h.logger)
		t.announcers = append(t.announcers, a)
	}
	if len(t.announcers) == 0 {
		return fmt.Errorf("torrent %x has no usable trackers", t.InfoHash[:])
	}

	for _, a := range t.announcers {
		go a.Run()
	}
	t.State = StateAnnouncing
	h.torrents[t.InfoHash] = t

	h.logger.Info("torrent added", "info_hash", fmt.Sprintf("%x", t.InfoHash[:]), "trackers", len(t.announcers))
	return nil
}

func (h *Hub) RemoveTorrent(infoHash [20]byte) error {
	h.mu.Lock()
	t, exists := h.torrents[infoHash]
	if exists {
		delete(h.torrents, infoHash)
	}
	h.mu.Unlock()

	if !exists {
		return fmt.Errorf("torrent with info hash %x not found", infoHash[:])
	}

	t.stop()
	return nil
}

func (h *Hub) GetTorrent(infoHash [20]byte) (*Torrent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	torrent, exists := h.torrents[infoHash]
	return torrent, exists
}

// Stats reports the announcer state of every tracker of a torrent, keyed by url.
func (h *Hub) Stats(infoHash [20]byte) (map[string]announcer.Stats, bool) {
	t, ok := h.GetTorrent(infoHash)
	if !ok {
		return nil, false
	}

	ret := make(map[string]announcer.Stats, len(t.announcers))
	for _, a := range t.announcers {
		ret[a.Tracker.URL()] = a.Stats()
	}
	return ret, true
}

// Close stops all announcers. Results is not closed.
func (h *Hub) Close() {
	h.mu.Lock()
	torrents := h.torrents
	h.torrents = make(map[[20]byte]*Torrent)
	h.closed = true
	h.mu.Unlock()

	h.logger.Info("Stopping torrent hub")
	for _, t := range torrents {
		t.stop()
	}
}

func (t *Torrent) stop() {
	for _, a := range t.announcers {
		a.Close()
	}
	t.State = StateStopped
}
