package torrent

import (
	"context"
	"time"
)

const (
	// availabilityPollInterval and maxAvailabilityPolls bound how long a
	// worker keeps a connection open once a pass over its peer's bitfield
	// finds nothing left to claim: it sleeps availabilityPollInterval before
	// the next pass and gives up on that peer after maxAvailabilityPolls
	// such waits in a row. The connection is not read while the worker
	// sleeps, so a Have or Bitfield the peer sends meanwhile is not seen
	// during the wait.
	availabilityPollInterval = 30 * time.Second
	maxAvailabilityPolls     = 5
)

// runWorker drives one peer connection for the lifetime of a download: dial,
// then repeatedly claim and fetch any piece the peer's bitfield advertises
// that is still in the pool, until the pool is empty, the peer runs dry for
// too long, or ctx is cancelled.
func runWorker(ctx context.Context, addr string, infoHash, peerID [20]byte, numPieces int, pool *PiecePool, pieceCh chan<- PieceData) {
	pc, err := Dial(addr, infoHash, peerID, numPieces)
	if err != nil {
		logWarn("peer %s: %v", addr, err)
		return
	}
	defer pc.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			pc.Close()
		case <-stop:
		}
	}()

	emptyPolls := 0
	for {
		if pool.Remaining() == 0 {
			return
		}
		if ctx.Err() != nil {
			return
		}

		progressed := false
		for idx := range pc.SnapshotBitfield().IterSet() {
			if ctx.Err() != nil {
				return
			}
			desc, ok := pool.Claim(idx)
			if !ok {
				continue
			}
			progressed = true
			if err := pc.DownloadPiece(desc, pieceCh); err != nil {
				logWarn("peer %s: piece %d: %v", addr, idx, err)
				pool.Release(desc)
				continue
			}
		}

		if progressed {
			emptyPolls = 0
			continue
		}

		emptyPolls++
		if emptyPolls > maxAvailabilityPolls {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(availabilityPollInterval):
		}
	}
}
