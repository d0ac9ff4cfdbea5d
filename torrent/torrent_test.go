package torrent

import (
	"bytes"
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackpal/bencode-go"
	"github.com/stretchr/testify/require"
)

func writeTestTorrent(t *testing.T, info rawTorrentInfo, announce string) string {
	t.Helper()

	var infoBuf bytes.Buffer
	require.NoError(t, bencode.Marshal(&infoBuf, info))

	raw := rawMetainfo{Announce: announce, Info: info}
	var buf bytes.Buffer
	require.NoError(t, bencode.Marshal(&buf, raw))

	path := filepath.Join(t.TempDir(), "test.torrent")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestLoadSingleFileTorrent(t *testing.T) {
	piece := []byte("aaaa")
	hash := sha1.Sum(piece)

	info := rawTorrentInfo{
		PieceLength: 4,
		Pieces:      string(hash[:]),
		Name:        "example.bin",
		Length:      4,
	}
	path := writeTestTorrent(t, info, "http://tracker.example.com/announce")

	meta, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://tracker.example.com/announce", meta.AnnounceURL)
	require.Equal(t, "example.bin", meta.Name)
	require.Equal(t, int64(4), meta.TotalLength)
	require.Equal(t, 1, meta.NumPieces())
	require.Equal(t, hash, meta.PieceHashes[0])
}

func TestLoadRejectsMultiFileTorrent(t *testing.T) {
	info := rawTorrentInfo{
		PieceLength: 4,
		Pieces:      string(make([]byte, 20)),
		Name:        "example-dir",
		Files: []rawFileEntry{
			{Length: 4, Path: []string{"a.bin"}},
		},
	}
	path := writeTestTorrent(t, info, "http://tracker.example.com/announce")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedPieces(t *testing.T) {
	info := rawTorrentInfo{
		PieceLength: 4,
		Pieces:      "short",
		Name:        "example.bin",
		Length:      4,
	}
	path := writeTestTorrent(t, info, "http://tracker.example.com/announce")

	_, err := Load(path)
	require.Error(t, err)
}

func TestPieceLengthLastPieceShorter(t *testing.T) {
	// 10 bytes total, 4-byte pieces: pieces of length 4, 4, 2.
	require.EqualValues(t, 4, pieceLength(0, 3, 4, 10))
	require.EqualValues(t, 4, pieceLength(1, 3, 4, 10))
	require.EqualValues(t, 2, pieceLength(2, 3, 4, 10))
}

func TestPieceLengthExactMultiple(t *testing.T) {
	// 8 bytes total, 4-byte pieces: both pieces are full length.
	require.EqualValues(t, 4, pieceLength(0, 2, 4, 8))
	require.EqualValues(t, 4, pieceLength(1, 2, 4, 8))
}
