package torrent

import (
	"github.com/google/uuid"
)

// peerIDPrefix identifies this client in the conventional Azureus-style
// peer-id convention: an 8-byte client tag followed by 12 arbitrary bytes.
const peerIDPrefix = "-PVR001-"

const lowercaseAlphabet = "abcdefghijklmnopqrstuvwxyz"

// GeneratePeerID builds the 20-byte peer-id used for this process's entire
// lifetime: the fixed prefix followed by 12 bytes sampled from lowercase
// ASCII. The entropy comes from a random UUID rather than a bare
// crypto/rand.Read, so that a single well-tested randomness source backs
// both the peer-id and the transaction ids, if any, this client generates.
func GeneratePeerID() ([20]byte, error) {
	var id [20]byte
	copy(id[:], peerIDPrefix)

	u, err := uuid.NewRandom()
	if err != nil {
		return id, err
	}

	for i, b := range u[:20-len(peerIDPrefix)] {
		id[len(peerIDPrefix)+i] = lowercaseAlphabet[int(b)%len(lowercaseAlphabet)]
	}
	return id, nil
}
