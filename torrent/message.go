package torrent

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageID enumerates the BitTorrent peer-wire message types.
type MessageID uint8

const (
	MsgChoke MessageID = iota
	MsgUnchoke
	MsgInterested
	MsgNotInterested
	MsgHave
	MsgBitfield
	MsgRequest
	MsgPiece
	MsgCancel
)

// Message is a decoded peer-wire message. A nil *Message (returned only by
// DecodeMessage) represents a keep-alive: a distinct no-op, never aliased to
// MsgChoke.
type Message struct {
	ID      MessageID
	Payload []byte
}

// HaveMessage builds a Have message for the given piece index.
func HaveMessage(index uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, index)
	return &Message{ID: MsgHave, Payload: payload}
}

// BitfieldMessage builds a Bitfield message carrying the given raw bitfield.
func BitfieldMessage(bf Bitfield) *Message {
	return &Message{ID: MsgBitfield, Payload: append([]byte(nil), bf...)}
}

// RequestMessage builds a Request message. CancelMessage reuses the same
// payload layout.
func RequestMessage(index, begin, length uint32) *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	binary.BigEndian.PutUint32(payload[8:12], length)
	return &Message{ID: MsgRequest, Payload: payload}
}

// CancelMessage builds a Cancel message.
func CancelMessage(index, begin, length uint32) *Message {
	m := RequestMessage(index, begin, length)
	m.ID = MsgCancel
	return m
}

// PieceMessage builds a Piece message carrying one downloaded block.
func PieceMessage(index, begin uint32, block []byte) *Message {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	copy(payload[8:], block)
	return &Message{ID: MsgPiece, Payload: payload}
}

// Parsed block-request fields, shared shape of Request and Cancel.
func (m *Message) RequestFields() (index, begin, length uint32, err error) {
	if len(m.Payload) != 12 {
		return 0, 0, 0, fmt.Errorf("torrent: request-shaped payload must be 12 bytes, got %d", len(m.Payload))
	}
	return binary.BigEndian.Uint32(m.Payload[0:4]),
		binary.BigEndian.Uint32(m.Payload[4:8]),
		binary.BigEndian.Uint32(m.Payload[8:12]),
		nil
}

// PieceFields parses the index, begin, and block of a Piece message.
func (m *Message) PieceFields() (index, begin uint32, block []byte, err error) {
	if len(m.Payload) < 8 {
		return 0, 0, nil, fmt.Errorf("torrent: piece payload too short: %d bytes", len(m.Payload))
	}
	return binary.BigEndian.Uint32(m.Payload[0:4]),
		binary.BigEndian.Uint32(m.Payload[4:8]),
		m.Payload[8:],
		nil
}

// HaveIndex parses the piece index of a Have message.
func (m *Message) HaveIndex() (uint32, error) {
	if len(m.Payload) != 4 {
		return 0, fmt.Errorf("torrent: have payload must be 4 bytes, got %d", len(m.Payload))
	}
	return binary.BigEndian.Uint32(m.Payload), nil
}

// Encode serializes m to its length-prefixed wire form. A nil m encodes to
// the 4-byte zero-length keep-alive frame.
func (m *Message) Encode() []byte {
	if m == nil {
		return []byte{0, 0, 0, 0}
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+len(m.Payload)+1)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// DecodeMessage reads one length-prefixed frame from r. It returns
// (nil, nil) for a keep-alive frame (length prefix of zero) — callers must
// treat that as a no-op and never confuse it with MsgChoke.
func DecodeMessage(r io.Reader) (*Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("torrent: reading message length: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 {
		return nil, nil
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("torrent: reading message body: %w", err)
	}

	id := MessageID(buf[0])
	if id > MsgCancel {
		return nil, fmt.Errorf("torrent: unknown message id %d", id)
	}
	payload := buf[1:]
	if len(payload) == 0 {
		payload = nil
	}
	return &Message{ID: id, Payload: payload}, nil
}
