package announcer

import (
	"context"
	"errors"

	"github.com/al002/ztracker/internal/tracker"
)

// announce runs one announce and reports to exactly one of responseC and errC,
// or to neither when ctx was cancelled.
func announce(
	ctx context.Context,
	t tracker.Tracker,
	torrent tracker.Torrent,
	responseC chan *tracker.AnnounceResponse,
	errC chan error,
) {
	req := tracker.AnnounceRequest{
		Torrent: torrent,
	}

	resp, err := t.Announce(ctx, req)
	if errors.Is(err, context.Canceled) {
		return
	}

	if err != nil {
		select {
		case errC <- err:
		case <-ctx.Done():
		}
		return
	}

	select {
	case responseC <- resp:
	case <-ctx.Done():
	}
}
