package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"pvrtorrent/torrent"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// listenPort is the port advertised to trackers. This client never accepts
// incoming connections (no seeding), but trackers expect a nonzero value.
const listenPort = 6881

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <path-to-torrent-file> [download-folder]\n", os.Args[0])
		os.Exit(1)
	}

	torrentPath := os.Args[1]
	outDir := filepath.Dir(torrentPath)
	if len(os.Args) >= 3 {
		outDir = os.Args[2]
	}

	if err := run(torrentPath, outDir); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(torrentPath, outDir string) error {
	meta, err := torrent.Load(torrentPath)
	if err != nil {
		return err
	}

	peerID, err := torrent.GeneratePeerID()
	if err != nil {
		return fmt.Errorf("generating peer id: %w", err)
	}

	_, peers, err := torrent.DiscoverPeers(meta, peerID, listenPort)
	if err != nil {
		return fmt.Errorf("discovering peers: %w", err)
	}
	fmt.Printf("%q: %d peers, %d pieces\n", meta.Name, len(peers), meta.NumPieces())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	bar := newProgressBar(meta.NumPieces())
	progressTx := make(chan int, pieceChanDisplayBuffer)
	go func() {
		for range progressTx {
			bar.Add(1)
		}
	}()

	outPath := filepath.Join(outDir, meta.Name)
	if err := torrent.Download(ctx, meta, peers, peerID, outPath, progressTx); err != nil {
		return err
	}

	fmt.Printf("saved to %s\n", outPath)
	return nil
}

// pieceChanDisplayBuffer only needs to absorb bursts between progress-bar
// redraws; it is unrelated to the core download pipeline's own buffering.
const pieceChanDisplayBuffer = 64

// newProgressBar sizes the bar to the terminal width when stdout is a
// terminal, falling back to progressbar's own default otherwise.
func newProgressBar(total int) *progressbar.ProgressBar {
	width := 40
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w - 20
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWidth(width),
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
