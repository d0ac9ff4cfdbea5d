package torrent

import (
	"context"
	"crypto/sha1"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// runMockPeer accepts one connection, completes the handshake, advertises
// every piece in pieces as available, and serves whole-piece Request
// messages until the connection closes.
func runMockPeer(t *testing.T, ln net.Listener, infoHash [20]byte, pieces [][]byte) {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	var in [handshakeLen]byte
	_, err = io.ReadFull(conn, in[:])
	require.NoError(t, err)

	resp := Handshake{InfoHash: infoHash, PeerID: [20]byte{9, 9, 9}}.Encode()
	_, err = conn.Write(resp[:])
	require.NoError(t, err)

	bf := EmptyBitfield(len(pieces))
	for i := range pieces {
		bf.Set(i)
	}
	_, err = conn.Write(BitfieldMessage(bf).Encode())
	require.NoError(t, err)
	_, err = conn.Write((&Message{ID: MsgUnchoke}).Encode())
	require.NoError(t, err)

	for {
		msg, err := DecodeMessage(conn)
		if err != nil {
			return
		}
		if msg == nil || msg.ID != MsgRequest {
			continue
		}
		index, begin, length, err := msg.RequestFields()
		if err != nil {
			continue
		}
		block := pieces[index][begin : begin+length]
		if _, err := conn.Write(PieceMessage(index, begin, block).Encode()); err != nil {
			return
		}
	}
}

func TestDownloadEndToEndWithMockPeer(t *testing.T) {
	pieces := [][]byte{
		[]byte("aaaa"),
		[]byte("bbbb"),
		[]byte("cccc"),
	}
	var hashes [][20]byte
	for _, p := range pieces {
		hashes = append(hashes, sha1.Sum(p))
	}

	meta := &Metainfo{
		Name:        "mock.bin",
		PieceLength: 4,
		TotalLength: 12,
		PieceHashes: hashes,
		InfoHash:    [20]byte{1, 1, 1},
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go runMockPeer(t, ln, meta.InfoHash, pieces)

	addr := ln.Addr().(*net.TCPAddr)
	peers := []PeerAddress{{IP: net.IPv4(127, 0, 0, 1), Port: uint16(addr.Port)}}

	outDir := t.TempDir()
	outPath := filepath.Join(outDir, meta.Name)

	progressTx := make(chan int, 16)
	var gotIndices []int
	done := make(chan struct{})
	go func() {
		for idx := range progressTx {
			gotIndices = append(gotIndices, idx)
		}
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peerID := [20]byte{2, 2, 2}
	err = Download(ctx, meta, peers, peerID, outPath, progressTx)
	require.NoError(t, err)
	<-done

	require.ElementsMatch(t, []int{0, 1, 2}, gotIndices)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "aaaabbbbcccc", string(got))
}
