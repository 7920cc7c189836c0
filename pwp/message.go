package pwp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ID identifies the type of a regular (post-handshake) peer-wire message.
type ID byte

const (
	MsgChoke         ID = 0
	MsgUnchoke       ID = 1
	MsgInterested    ID = 2
	MsgNotInterested ID = 3
	MsgHave          ID = 4
	MsgBitfield      ID = 5
	MsgRequest       ID = 6
	MsgPiece         ID = 7
	MsgCancel        ID = 8
)

// ErrUnknownMessageID is returned by ReadMessage when a frame's id byte
// does not name one of the nine known message types (spec.md §4.3:
// "Decoder fails on any unknown id"; §7 classifies this as a protocol
// violation that closes the connection).
var ErrUnknownMessageID = fmt.Errorf("pwp: unknown message id")

func validID(id ID) bool {
	return id <= MsgCancel
}

func (id ID) String() string {
	switch id {
	case MsgChoke:
		return "choke"
	case MsgUnchoke:
		return "unchoke"
	case MsgInterested:
		return "interested"
	case MsgNotInterested:
		return "not_interested"
	case MsgHave:
		return "have"
	case MsgBitfield:
		return "bitfield"
	case MsgRequest:
		return "request"
	case MsgPiece:
		return "piece"
	case MsgCancel:
		return "cancel"
	default:
		return fmt.Sprintf("unknown(%d)", byte(id))
	}
}

// Message is a single regular peer-wire-protocol frame: a 4-byte big-endian
// length prefix, a 1-byte id, and an id-dependent payload (spec.md §4.3).
// A zero-length frame (no id, no payload) is the keep-alive, represented
// here as a nil Message from ReadMessage.
type Message struct {
	ID      ID
	Payload []byte
}

// Serialize renders the length-prefixed wire frame for m.
func (m *Message) Serialize() []byte {
	length := 1 + len(m.Payload)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], uint32(length))
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads one frame from r. A keep-alive frame (length-prefix of
// zero) is reported as (nil, nil).
func ReadMessage(r io.Reader) (*Message, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("pwp: read message length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length == 0 {
		return nil, nil // keep-alive
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("pwp: read message body: %w", err)
	}

	id := ID(body[0])
	if !validID(id) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageID, body[0])
	}

	return &Message{ID: id, Payload: body[1:]}, nil
}

// KeepAlive is the zero-length frame sent to hold a connection open.
func KeepAlive() []byte {
	return []byte{0, 0, 0, 0}
}

// --- payload encode/decode helpers, grounded in the teacher's message.go ---

// FormatHave builds a have message payload carrying a piece index.
func FormatHave(index int) *Message {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(index))
	return &Message{ID: MsgHave, Payload: buf}
}

// ParseHave extracts the piece index from a have message.
func ParseHave(m *Message) (int, error) {
	if m.ID != MsgHave {
		return 0, fmt.Errorf("pwp: expected have, got %s", m.ID)
	}
	if len(m.Payload) != 4 {
		return 0, fmt.Errorf("pwp: malformed have payload length %d", len(m.Payload))
	}
	return int(binary.BigEndian.Uint32(m.Payload)), nil
}

// FormatBitfield builds a bitfield message payload from packed bytes.
func FormatBitfield(packed []byte) *Message {
	return &Message{ID: MsgBitfield, Payload: packed}
}

// BlockRequest is the common (index, begin, length) triple shared by
// request, piece, and cancel messages.
type BlockRequest struct {
	Index  int
	Begin  int
	Length int
}

// FormatRequest builds a request message payload.
func FormatRequest(b BlockRequest) *Message {
	return &Message{ID: MsgRequest, Payload: encodeBlockHeader(b)}
}

// FormatCancel builds a cancel message payload.
func FormatCancel(b BlockRequest) *Message {
	return &Message{ID: MsgCancel, Payload: encodeBlockHeader(b)}
}

func encodeBlockHeader(b BlockRequest) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], uint32(b.Index))
	binary.BigEndian.PutUint32(buf[4:8], uint32(b.Begin))
	binary.BigEndian.PutUint32(buf[8:12], uint32(b.Length))
	return buf
}

// ParseRequest parses a request or cancel message payload.
func ParseRequest(m *Message) (BlockRequest, error) {
	if m.ID != MsgRequest && m.ID != MsgCancel {
		return BlockRequest{}, fmt.Errorf("pwp: expected request/cancel, got %s", m.ID)
	}
	if len(m.Payload) != 12 {
		return BlockRequest{}, fmt.Errorf("pwp: malformed request payload length %d", len(m.Payload))
	}
	return BlockRequest{
		Index:  int(binary.BigEndian.Uint32(m.Payload[0:4])),
		Begin:  int(binary.BigEndian.Uint32(m.Payload[4:8])),
		Length: int(binary.BigEndian.Uint32(m.Payload[8:12])),
	}, nil
}

// Block is a concrete piece message: index, begin offset, and raw bytes.
type Block struct {
	Index int
	Begin int
	Data  []byte
}

// FormatPiece builds a piece message payload.
func FormatPiece(b Block) *Message {
	buf := make([]byte, 8+len(b.Data))
	binary.BigEndian.PutUint32(buf[0:4], uint32(b.Index))
	binary.BigEndian.PutUint32(buf[4:8], uint32(b.Begin))
	copy(buf[8:], b.Data)
	return &Message{ID: MsgPiece, Payload: buf}
}

// ParseBlock parses a piece message payload.
func ParseBlock(m *Message) (Block, error) {
	if m.ID != MsgPiece {
		return Block{}, fmt.Errorf("pwp: expected piece, got %s", m.ID)
	}
	if len(m.Payload) < 8 {
		return Block{}, fmt.Errorf("pwp: malformed piece payload length %d", len(m.Payload))
	}
	return Block{
		Index: int(binary.BigEndian.Uint32(m.Payload[0:4])),
		Begin: int(binary.BigEndian.Uint32(m.Payload[4:8])),
		Data:  m.Payload[8:],
	}, nil
}
