package torrent

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackpal/bencode-go"
)

const trackerRequestTimeout = 15 * time.Second

type trackerResponse struct {
	FailureReason string `bencode:"failure reason"`
	Interval      int    `bencode:"interval"`
	Peers         string `bencode:"peers"`
}

// DiscoverPeers announces to meta's tracker and returns the re-announce
// interval (seconds) and the peer list it returned. HTTP trackers are fully
// supported; a udp:// announce URL returns errUDPTrackerUnsupported rather
// than attempting the UDP tracker protocol (Non-goal).
func DiscoverPeers(meta *Metainfo, peerID [20]byte, port uint16) (int, []PeerAddress, error) {
	u, err := url.Parse(meta.AnnounceURL)
	if err != nil {
		return 0, nil, fmt.Errorf("torrent: parsing announce URL %q: %w", meta.AnnounceURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		return discoverPeersHTTP(u, meta, peerID, port)
	case "udp":
		return 0, nil, fmt.Errorf("torrent: %w (%s)", errUDPTrackerUnsupported, meta.AnnounceURL)
	default:
		return 0, nil, fmt.Errorf("torrent: unsupported tracker scheme %q", u.Scheme)
	}
}

var errUDPTrackerUnsupported = fmt.Errorf("UDP tracker protocol is not implemented")

func discoverPeersHTTP(u *url.URL, meta *Metainfo, peerID [20]byte, port uint16) (int, []PeerAddress, error) {
	q := url.Values{}
	q.Set("peer_id", string(peerID[:]))
	q.Set("port", strconv.Itoa(int(port)))
	q.Set("uploaded", "0")
	q.Set("downloaded", "0")
	q.Set("left", strconv.FormatInt(meta.TotalLength, 10))
	q.Set("compact", "1")

	u.RawQuery = q.Encode() + "&info_hash=" + percentEncodeInfoHash(meta.InfoHash)

	client := http.Client{Timeout: trackerRequestTimeout}
	resp, err := client.Get(u.String())
	if err != nil {
		return 0, nil, fmt.Errorf("torrent: announcing to %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("torrent: reading tracker response from %s: %w", u.Host, err)
	}

	var tr trackerResponse
	if err := bencode.Unmarshal(bytes.NewReader(body), &tr); err != nil {
		return 0, nil, fmt.Errorf("torrent: decoding tracker response from %s: %w", u.Host, err)
	}
	if tr.FailureReason != "" {
		return 0, nil, fmt.Errorf("torrent: tracker %s refused: %s", u.Host, tr.FailureReason)
	}

	peers, err := ParseCompactPeers([]byte(tr.Peers))
	if err != nil {
		return 0, nil, fmt.Errorf("torrent: %s: %w", u.Host, err)
	}
	return tr.Interval, peers, nil
}

// percentEncodeInfoHash produces the exact byte-for-byte percent-encoding
// BitTorrent trackers expect for a raw 20-byte info-hash: url.QueryEscape
// leaves some bytes un-encoded and uppercases hex digits it does encode,
// neither of which matches the convention every tracker implementation
// assumes, so this is hand-built one byte at a time.
func percentEncodeInfoHash(hash [20]byte) string {
	var sb strings.Builder
	sb.Grow(3 * len(hash))
	for _, b := range hash {
		sb.WriteByte('%')
		sb.WriteString(lowerHex(b >> 4))
		sb.WriteString(lowerHex(b & 0x0f))
	}
	return sb.String()
}

func lowerHex(nibble byte) string {
	const digits = "0123456789abcdef"
	return string(digits[nibble])
}

// ParseCompactPeers decodes the BEP 23 compact peer list: a flat string of
// 6-byte groups (4-byte IPv4 address, 2-byte big-endian port). A trailing
// partial group is silently ignored rather than treated as an error.
func ParseCompactPeers(data []byte) ([]PeerAddress, error) {
	n := len(data) / 6
	peers := make([]PeerAddress, 0, n)
	for i := 0; i < n; i++ {
		chunk := data[i*6 : i*6+6]
		ip := net.IP(chunk[0:4])
		port := uint16(chunk[4])<<8 | uint16(chunk[5])
		peers = append(peers, PeerAddress{IP: ip, Port: port})
	}
	return peers, nil
}
