// Package pwp implements the peer-wire protocol framing of spec.md §4.3:
// the fixed 68-byte handshake and the length-prefixed regular message
// frame, bit-exact.
package pwp

import (
	"fmt"
	"io"
)

const protocolString = "BitTorrent protocol"

// Handshake is the fixed 68-byte frame exchanged once per connection before
// any other message.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake builds a Handshake for the given info-hash and peer-id.
func NewHandshake(infoHash, peerID [20]byte) *Handshake {
	return &Handshake{InfoHash: infoHash, PeerID: peerID}
}

// Serialize renders the 68-byte handshake frame:
// <1>0x13 <19>"BitTorrent protocol" <8>reserved-zero <20>info-hash <20>peer-id.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, 49+len(protocolString))
	cursor := 0
	buf[cursor] = byte(len(protocolString))
	cursor++
	cursor += copy(buf[cursor:], protocolString)
	cursor += 8 // reserved, already zero
	cursor += copy(buf[cursor:], h.InfoHash[:])
	copy(buf[cursor:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and validates a 68-byte handshake frame from r.
// Returns an error if the protocol string does not match
// "BitTorrent protocol".
func ReadHandshake(r io.Reader) (*Handshake, error) {
	lenBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("pwp: read handshake pstrlen: %w", err)
	}
	pstrlen := int(lenBuf[0])

	rest := make([]byte, pstrlen+48)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("pwp: read handshake body: %w", err)
	}

	pstr := string(rest[:pstrlen])
	if pstr != protocolString {
		return nil, fmt.Errorf("pwp: unexpected protocol string %q", pstr)
	}

	cursor := pstrlen + 8 // skip reserved bytes
	var h Handshake
	copy(h.InfoHash[:], rest[cursor:cursor+20])
	cursor += 20
	copy(h.PeerID[:], rest[cursor:cursor+20])
	return &h, nil
}
