package torrent

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// pieceChanCap bounds how many completed-but-not-yet-written pieces may
// queue up in memory at once; it decouples peer throughput from disk
// throughput without letting a slow writer blow up memory use.
const pieceChanCap = 1024

// PeerAddress is one candidate peer returned by a tracker.
type PeerAddress struct {
	IP   net.IP
	Port uint16
}

func (a PeerAddress) String() string {
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(int(a.Port)))
}

// Download drives the whole piece-acquisition pipeline for one torrent: one
// worker goroutine per candidate peer, all feeding a shared pool and a
// bounded piece channel, drained by a single writer goroutine. It returns
// once every piece has been written, every worker has exited, or ctx is
// cancelled — whichever makes the download impossible to continue.
//
// progressTx, if non-nil, receives the index of each piece as it is written
// to disk and is closed before Download returns.
func Download(ctx context.Context, meta *Metainfo, peers []PeerAddress, peerID [20]byte, outPath string, progressTx chan<- int) error {
	if progressTx != nil {
		defer close(progressTx)
	}
	if len(peers) == 0 {
		return fmt.Errorf("torrent: no peers to download from")
	}

	total := meta.NumPieces()
	pool := NewPiecePool(meta)
	pieceCh := make(chan PieceData, pieceChanCap)

	writer, err := NewWriter(outPath, meta)
	if err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		addr := peer.String()
		go func(addr string) {
			defer wg.Done()
			runWorker(workerCtx, addr, meta.InfoHash, peerID, total, pool, pieceCh)
		}(addr)
	}

	go func() {
		wg.Wait()
		close(pieceCh)
	}()

	written, err := writer.Run(pieceCh, total, progressTx)
	cancel()
	wg.Wait()

	if err != nil {
		return err
	}
	if written < total {
		return fmt.Errorf("torrent: download stalled at %d/%d pieces", written, total)
	}
	logInfo("downloaded %q: %d/%d pieces", meta.Name, written, total)
	return nil
}
