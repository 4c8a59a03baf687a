package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/al002/ztracker/internal/blocklist"
	"github.com/al002/ztracker/internal/metainfo"
	"github.com/al002/ztracker/internal/peerid"
	"github.com/al002/ztracker/internal/torrent"
	"github.com/al002/ztracker/internal/tracker"
	"github.com/al002/ztracker/internal/tracker/udptracker"
	"github.com/al002/ztracker/internal/trackermanager"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var (
	announceTrackers []string
	announceWatch    bool
)

var announceCmd = &cobra.Command{
	Use:   "announce <file.torrent>",
	Short: "Announce a torrent to its UDP trackers and print the peers",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnnounce,
}

func init() {
	announceCmd.Flags().StringSliceVar(&announceTrackers, "tracker", nil, "announce to these udp:// trackers instead of the ones in the torrent")
	announceCmd.Flags().BoolVar(&announceWatch, "watch", false, "keep announcing at the interval the trackers ask for")
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	mi, err := metainfo.LoadFromFile(args[0])
	if err != nil {
		return fmt.Errorf("open torrent file: %w", err)
	}

	peerID, err := peerid.New(cfg.PeerIDPrefix)
	if err != nil {
		return err
	}

	t, err := torrent.New(mi, announceTrackers, peerID, uint16(cfg.ListenPort))
	if err != nil {
		return err
	}

	var bl *blocklist.Blocklist
	if cfg.Tracker.BlocklistFile != "" {
		bl, err = blocklist.Load(cfg.Tracker.BlocklistFile)
		if err != nil {
			return fmt.Errorf("load blocklist: %w", err)
		}
		log.Info("Blocklist loaded", "rules", bl.Len())
	}

	m, err := trackermanager.New(trackermanager.Options{
		BindAddr:   cfg.Tracker.BindAddr,
		DNSTimeout: cfg.Tracker.DNSTimeout,
		Blocklist:  bl,
		Session: udptracker.Config{
			BaseTimeout:     cfg.Tracker.BaseTimeout,
			MaxRetries:      cfg.Tracker.MaxRetries,
			ConnectionIDTTL: cfg.Tracker.ConnectionIDTTL,
		},
	}, *log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Error("Failed to close tracker manager", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Announcing torrent", "name", t.Name, "info_hash", mi.InfoHashHex(), "trackers", len(t.Trackers))

	if announceWatch {
		return watch(ctx, cmd.OutOrStdout(), m, t)
	}
	return announceOnce(ctx, cmd.OutOrStdout(), m, t, cfg.Tracker.MaxParallel)
}

type announceResult struct {
	url  string
	resp *tracker.AnnounceResponse
	err  error
}

// announceOnce asks every tracker once, at most maxParallel at a time. It fails
// only when no tracker answered.
func announceOnce(ctx context.Context, w io.Writer, trackers torrent.TrackerGetter, t *torrent.Torrent, maxParallel int) error {
	results := make([]announceResult, len(t.Trackers))
	req := t.AnnounceRequest()

	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, u := range t.Trackers {
		g.Go(func() error {
			results[i].url = u
			tr, err := trackers.Get(u)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].resp, results[i].err = tr.Announce(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	var answered int
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(w, "%s: %v\n", r.url, r.err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", r.url, r.err))
			continue
		}
		answered++
		printResponse(w, r.url, r.resp)
	}

	if answered == 0 {
		return errs
	}
	if errs != nil {
		log.Warn("Some trackers failed", "failed", len(multierr.Errors(errs)), "answered", answered)
	}
	return nil
}

func watch(ctx context.Context, w io.Writer, trackers torrent.TrackerGetter, t *torrent.Torrent) error {
	hub := torrent.NewHub(torrent.HubConfig{MinInterval: cfg.Tracker.MinInterval}, trackers, *log)
	defer hub.Close()

	if err := hub.AddTorrent(t); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-hub.Results():
			printResponse(w, res.URL, res.Response)
		}
	}
}

func printResponse(w io.Writer, url string, resp *tracker.AnnounceResponse) {
	fmt.Fprintf(w, "%s: interval=%s seeders=%d leechers=%d peers=%d\n",
		url, resp.Interval, resp.Seeders, resp.Leechers, len(resp.Peers))
	for _, addr := range resp.NodeAddrs() {
		fmt.Fprintf(w, "  %s\n", addr.String())
	}
}
