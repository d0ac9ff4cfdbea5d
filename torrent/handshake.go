package torrent

import (
	"bytes"
	"fmt"
)

const (
	handshakeLen   = 68
	protocolString = "BitTorrent protocol"
)

// Handshake is the fixed 68-byte message exchanged before any other
// peer-wire traffic: 1 length byte, 19 protocol bytes, 8 reserved bytes,
// the torrent's info-hash and the sender's peer-id.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Encode serializes the handshake to its wire form.
func (h Handshake) Encode() [handshakeLen]byte {
	var buf [handshakeLen]byte
	buf[0] = byte(len(protocolString))
	copy(buf[1:20], protocolString)
	// buf[20:28] reserved, left zero
	copy(buf[28:48], h.InfoHash[:])
	copy(buf[48:68], h.PeerID[:])
	return buf
}

// DecodeHandshake parses a 68-byte buffer received from a peer. It validates
// the length byte and protocol string but leaves the info-hash comparison to
// the caller, since only the caller knows which torrent it dialed for.
func DecodeHandshake(buf [handshakeLen]byte) (Handshake, error) {
	var h Handshake
	if buf[0] != byte(len(protocolString)) {
		return h, fmt.Errorf("torrent: handshake protocol length mismatch: got %d", buf[0])
	}
	if !bytes.Equal(buf[1:20], []byte(protocolString)) {
		return h, fmt.Errorf("torrent: handshake protocol string mismatch: %q", buf[1:20])
	}
	copy(h.InfoHash[:], buf[28:48])
	copy(h.PeerID[:], buf[48:68])
	return h, nil
}
