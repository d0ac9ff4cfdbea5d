package torrent

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"os"
	"strconv"

	"github.com/jackpal/bencode-go"
)

// rawMetainfo mirrors the root dictionary of a .torrent file. Only
// single-file torrents are supported (multi-file torrents are a Non-goal);
// the Files field is decoded so a multi-file torrent is rejected with a
// clear error rather than silently downloading the wrong thing.
type rawMetainfo struct {
	Announce     string         `bencode:"announce"`
	AnnounceList [][]string     `bencode:"announce-list"`
	Info         rawTorrentInfo `bencode:"info"`
}

type rawTorrentInfo struct {
	PieceLength int64          `bencode:"piece length"`
	Pieces      string         `bencode:"pieces"`
	Name        string         `bencode:"name"`
	Length      int64          `bencode:"length"`
	Files       []rawFileEntry `bencode:"files"`
}

type rawFileEntry struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

// Metainfo is the parsed, validated torrent metadata the rest of the core
// consumes. It is immutable for the life of a download.
type Metainfo struct {
	AnnounceURL  string
	AnnounceList [][]string
	InfoHash     [20]byte
	PieceLength  int64
	PieceHashes  [][20]byte
	TotalLength  int64
	Name         string
}

// NumPieces returns the total piece count.
func (m *Metainfo) NumPieces() int {
	return len(m.PieceHashes)
}

// Load reads and validates a .torrent file from disk.
func Load(path string) (*Metainfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("torrent: reading %q: %w", path, err)
	}

	var raw rawMetainfo
	if err := bencode.Unmarshal(bytes.NewReader(data), &raw); err != nil {
		return nil, fmt.Errorf("torrent: decoding %q: %w", path, err)
	}

	if raw.Announce == "" {
		return nil, fmt.Errorf("torrent: %q has no announce URL", path)
	}
	if len(raw.Info.Pieces)%20 != 0 {
		return nil, fmt.Errorf("torrent: %q has malformed pieces field (%d bytes)", path, len(raw.Info.Pieces))
	}
	if len(raw.Info.Files) > 0 {
		return nil, fmt.Errorf("torrent: %q is a multi-file torrent, which is unsupported", path)
	}

	infoBytes, err := extractInfoBytes(data)
	if err != nil {
		return nil, fmt.Errorf("torrent: %q: %w", path, err)
	}
	infoHash := sha1.Sum(infoBytes)

	numPieces := len(raw.Info.Pieces) / 20
	hashes := make([][20]byte, numPieces)
	for i := range hashes {
		copy(hashes[i][:], raw.Info.Pieces[i*20:(i+1)*20])
	}

	return &Metainfo{
		AnnounceURL:  raw.Announce,
		AnnounceList: raw.AnnounceList,
		InfoHash:     infoHash,
		PieceLength:  raw.Info.PieceLength,
		PieceHashes:  hashes,
		TotalLength:  raw.Info.Length,
		Name:         raw.Info.Name,
	}, nil
}

// extractInfoBytes locates the raw, undecoded bencoded span of the "info"
// dictionary within a .torrent file's bytes. Hashing this span directly
// (rather than re-encoding a decoded struct) is required: bencode
// dictionaries are ordered, and a re-encode that reorders or reformats keys
// would silently change the info-hash.
func extractInfoBytes(data []byte) ([]byte, error) {
	idx := bytes.Index(data, []byte("4:info"))
	if idx < 0 {
		return nil, fmt.Errorf("no \"4:info\" key found")
	}
	start := idx + len("4:info")

	depth := 0
	for i := start; i < len(data); i++ {
		switch b := data[i]; b {
		case 'd', 'l':
			depth++
		case 'e':
			depth--
			if depth == 0 {
				return data[start : i+1], nil
			}
		case 'i':
			j := i + 1
			for ; j < len(data) && data[j] != 'e'; j++ {
			}
			if j >= len(data) {
				return nil, fmt.Errorf("unterminated integer at offset %d", i)
			}
			i = j
		default:
			if b < '0' || b > '9' {
				continue
			}
			j := i
			for ; j < len(data) && data[j] >= '0' && data[j] <= '9'; j++ {
			}
			if j >= len(data) || data[j] != ':' {
				continue
			}
			strLen, err := strconv.Atoi(string(data[i:j]))
			if err != nil {
				return nil, fmt.Errorf("invalid string length at offset %d: %w", i, err)
			}
			i = j + strLen
		}
	}
	return nil, fmt.Errorf("unterminated info dictionary")
}
