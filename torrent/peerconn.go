package torrent

import (
	"crypto/sha1"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	connectTimeout      = 5 * time.Second
	handshakeTimeout    = 5 * time.Second
	requestSendTimeout  = 5 * time.Second
	blockReceiveTimeout = 60 * time.Second
	chokeWaitTimeout    = 60 * time.Second

	// blockSize is the size of one requested block. BEP 3 recommends
	// 16 KiB; the upstream reference source used 1024 bytes and a buggy
	// stride equal to the whole piece length (SPEC_FULL.md §9.1) — neither
	// is reproduced here.
	blockSize = 16384
)

// PeerConnection is the per-peer protocol state machine: the socket, the
// peer's advertised bitfield, and the four choke/interest flags.
type PeerConnection struct {
	conn   net.Conn
	peerID [20]byte

	bitfieldMu sync.Mutex
	bitfield   Bitfield

	amChoking      bool
	amInterested   bool
	peerChoking    bool
	peerInterested bool
}

// Dial connects to addr and performs the full BitTorrent entry protocol:
// handshake, then Interested + wait for a usable bitfield/unchoke.
func Dial(addr string, infoHash, peerID [20]byte, numPieces int) (*PeerConnection, error) {
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("torrent: connecting to %s: %w", addr, err)
	}
	return newPeerConnection(conn, infoHash, peerID, numPieces)
}

func newPeerConnection(conn net.Conn, infoHash, peerID [20]byte, numPieces int) (*PeerConnection, error) {
	pc := &PeerConnection{
		conn:           conn,
		bitfield:       EmptyBitfield(numPieces),
		amChoking:      true,
		amInterested:   false,
		peerChoking:    true,
		peerInterested: false,
	}

	if err := pc.handshake(infoHash, peerID); err != nil {
		conn.Close()
		return nil, err
	}
	if err := pc.tryGetBitfield(); err != nil {
		conn.Close()
		return nil, err
	}
	return pc, nil
}

// Close releases the underlying socket; it is the cancellation signal a
// worker's context watcher uses to unblock any in-flight read or write.
func (pc *PeerConnection) Close() error {
	return pc.conn.Close()
}

func (pc *PeerConnection) handshake(infoHash, peerID [20]byte) error {
	out := Handshake{InfoHash: infoHash, PeerID: peerID}.Encode()

	pc.conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	if _, err := pc.conn.Write(out[:]); err != nil {
		return fmt.Errorf("torrent: sending handshake: %w", err)
	}

	pc.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var in [handshakeLen]byte
	if _, err := io.ReadFull(pc.conn, in[:]); err != nil {
		return fmt.Errorf("torrent: reading handshake: %w", err)
	}

	resp, err := DecodeHandshake(in)
	if err != nil {
		return fmt.Errorf("torrent: decoding handshake: %w", err)
	}
	if resp.InfoHash != infoHash {
		return fmt.Errorf("torrent: handshake info-hash mismatch")
	}

	pc.peerID = resp.PeerID
	return nil
}

// tryGetBitfield sends Interested and then reads messages until both a
// piece-availability message (Bitfield or Have, in either order relative to
// Unchoke) and an Unchoke have been observed.
func (pc *PeerConnection) tryGetBitfield() error {
	if err := pc.send(&Message{ID: MsgInterested}, handshakeTimeout); err != nil {
		return err
	}
	pc.amInterested = true

	gotPieceInfo := false
	for {
		msg, err := pc.receive(0)
		if err != nil {
			return fmt.Errorf("torrent: waiting for bitfield/unchoke: %w", err)
		}
		if msg == nil {
			continue // keep-alive: no-op
		}
		if msg.ID == MsgBitfield || msg.ID == MsgHave {
			gotPieceInfo = true
		}
		if gotPieceInfo && !pc.peerChoking {
			return nil
		}
	}
}

func (pc *PeerConnection) send(msg *Message, timeout time.Duration) error {
	pc.conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := pc.conn.Write(msg.Encode()); err != nil {
		return fmt.Errorf("torrent: sending message: %w", err)
	}
	return nil
}

// receive reads and decodes one frame, applying its state effects, under
// the given timeout (zero means no deadline).
func (pc *PeerConnection) receive(timeout time.Duration) (*Message, error) {
	if timeout > 0 {
		pc.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		pc.conn.SetReadDeadline(time.Time{})
	}

	msg, err := DecodeMessage(pc.conn)
	if err != nil {
		return nil, err
	}
	pc.applyStateEffects(msg)
	return msg, nil
}

// applyStateEffects mutates connection state per SPEC_FULL.md §4.5. Inbound
// Choke/Unchoke land on peerChoking, not amChoking — the naming inversion in
// the upstream reference source (SPEC_FULL.md §9.1) is not reproduced.
func (pc *PeerConnection) applyStateEffects(msg *Message) {
	if msg == nil {
		return
	}
	switch msg.ID {
	case MsgChoke:
		pc.peerChoking = true
	case MsgUnchoke:
		pc.peerChoking = false
	case MsgInterested:
		pc.peerInterested = true
	case MsgNotInterested:
		pc.peerInterested = false
	case MsgHave:
		if idx, err := msg.HaveIndex(); err == nil {
			pc.bitfieldMu.Lock()
			pc.bitfield.Set(int(idx))
			pc.bitfieldMu.Unlock()
		}
	case MsgBitfield:
		pc.bitfieldMu.Lock()
		pc.bitfield = NewBitfield(append([]byte(nil), msg.Payload...))
		pc.bitfieldMu.Unlock()
	}
	// Request and Cancel are ignored: this client never seeds.
}

// SnapshotBitfield returns a private copy of the peer's advertised bitfield,
// safe to iterate without holding any lock.
func (pc *PeerConnection) SnapshotBitfield() Bitfield {
	pc.bitfieldMu.Lock()
	defer pc.bitfieldMu.Unlock()
	return pc.bitfield.Clone()
}

// DownloadPiece downloads and hash-verifies one whole piece, pushing the
// result onto out on success. Any timeout, malformed frame, or hash mismatch
// returns an error and leaves out untouched; the caller is responsible for
// re-inserting the descriptor into the pool.
func (pc *PeerConnection) DownloadPiece(desc PieceDescriptor, out chan<- PieceData) error {
	if pc.peerChoking {
		if err := pc.waitForUnchoke(); err != nil {
			return err
		}
	}

	buf := make([]byte, 0, desc.Length)
	for offset := 0; offset < desc.Length; offset += blockSize {
		remaining := desc.Length - offset
		reqLen := blockSize
		if remaining < reqLen {
			reqLen = remaining
		}

		req := RequestMessage(uint32(desc.Index), uint32(offset), uint32(reqLen))
		if err := pc.send(req, requestSendTimeout); err != nil {
			return fmt.Errorf("torrent: requesting piece %d block at %d: %w", desc.Index, offset, err)
		}

		block, err := pc.receiveBlock(desc.Index, offset)
		if err != nil {
			return err
		}
		buf = append(buf, block...)
	}

	sum := sha1.Sum(buf)
	if sum != desc.ExpectedHash {
		return fmt.Errorf("torrent: piece %d failed hash verification", desc.Index)
	}

	out <- PieceData{Index: desc.Index, Bytes: buf}
	return nil
}

func (pc *PeerConnection) waitForUnchoke() error {
	for {
		msg, err := pc.receive(chokeWaitTimeout)
		if err != nil {
			return fmt.Errorf("torrent: waiting for unchoke: %w", err)
		}
		if msg != nil && msg.ID == MsgUnchoke {
			return nil
		}
	}
}

// receiveBlock reads messages until the Piece block matching (index, begin)
// arrives. An intervening Choke does not abort the transfer; any other
// message is likewise skipped.
func (pc *PeerConnection) receiveBlock(index, begin int) ([]byte, error) {
	for {
		msg, err := pc.receive(blockReceiveTimeout)
		if err != nil {
			return nil, fmt.Errorf("torrent: receiving piece %d block at %d: %w", index, begin, err)
		}
		if msg == nil || msg.ID != MsgPiece {
			continue
		}
		gotIndex, gotBegin, block, err := msg.PieceFields()
		if err != nil {
			continue
		}
		if int(gotIndex) == index && int(gotBegin) == begin {
			return block, nil
		}
	}
}
