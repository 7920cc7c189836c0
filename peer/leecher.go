// Package peer implements both sides of a peer-wire-protocol connection:
// the leecher session that drives downloads (spec.md §4.4) and the
// seeder session that serves blocks to other peers (spec.md §4.5).
// Grounded in the teacher's peer/peer.go Client/NewClient/SendRequest
// dial-and-request sequence, generalized into an explicit state machine
// and split from its private work-queue so a download.Coordinator can
// drive piece assignment instead.
package peer

import (
	"fmt"
	"net"
	"time"

	"gorent/bitfield"
	"gorent/piece"
	"gorent/pwp"
)

// State is a leecher session's position in the spec.md §4.4 state machine.
type State int

const (
	AwaitingHandshake State = iota
	AwaitingBitfield
	Choked
	Unchoked
	Requesting
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingHandshake:
		return "awaiting_handshake"
	case AwaitingBitfield:
		return "awaiting_bitfield"
	case Choked:
		return "choked"
	case Unchoked:
		return "unchoked"
	case Requesting:
		return "requesting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// requestDeadline bounds how long a session waits for a piece's blocks
// to fully arrive before abandoning it.
const requestDeadline = 30 * time.Second

// LeecherSession drives a single outbound connection to one peer for the
// duration of a download.
type LeecherSession struct {
	conn      net.Conn
	infoHash  [20]byte
	peerID    [20]byte
	numPieces int
	state     State
	availFrom *bitfield.Bitmap // the peer's advertised availability
	choked    bool
}

// DialLeecher connects to addr, performs the handshake, verifies the
// peer's info-hash matches the expected torrent, and announces interest.
// On a mismatched info-hash the connection is closed and an error is
// returned (the AwaitingHandshake → Closed transition of spec.md §4.4).
func DialLeecher(addr string, infoHash, peerID [20]byte, numPieces int) (*LeecherSession, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("peer: dial %s: %w", addr, err)
	}

	s := &LeecherSession{
		conn:      conn,
		infoHash:  infoHash,
		peerID:    peerID,
		numPieces: numPieces,
		state:     AwaitingHandshake,
		availFrom: bitfield.NewBitmap(numPieces),
		choked:    true,
	}

	if err := s.handshake(); err != nil {
		conn.Close()
		s.state = Closed
		return nil, err
	}

	if _, err := conn.Write((&pwp.Message{ID: pwp.MsgInterested}).Serialize()); err != nil {
		conn.Close()
		s.state = Closed
		return nil, fmt.Errorf("peer: send interested: %w", err)
	}

	s.state = AwaitingBitfield
	return s, nil
}

func (s *LeecherSession) handshake() error {
	if _, err := s.conn.Write(pwp.NewHandshake(s.infoHash, s.peerID).Serialize()); err != nil {
		return fmt.Errorf("peer: send handshake: %w", err)
	}
	got, err := pwp.ReadHandshake(s.conn)
	if err != nil {
		return fmt.Errorf("peer: read handshake: %w", err)
	}
	if got.InfoHash != s.infoHash {
		return fmt.Errorf("peer: info-hash mismatch")
	}
	return nil
}

// State reports the session's current state.
func (s *LeecherSession) State() State { return s.state }

// Availability returns the peer's currently known piece bitmap.
func (s *LeecherSession) Availability() *bitfield.Bitmap { return s.availFrom }

// AwaitUnchoke reads messages until the peer unchokes us, updating the
// peer's advertised availability from bitfield/have messages along the
// way (the AwaitingBitfield state of spec.md §4.4).
func (s *LeecherSession) AwaitUnchoke() error {
	for {
		msg, err := pwp.ReadMessage(s.conn)
		if err != nil {
			s.state = Closed
			return fmt.Errorf("peer: read during awaiting_bitfield: %w", err)
		}
		if msg == nil {
			continue // keep-alive
		}
		switch msg.ID {
		case pwp.MsgBitfield:
			bm, err := bitfield.FromBytes(s.numPieces, msg.Payload)
			if err != nil {
				s.state = Closed
				return fmt.Errorf("peer: malformed bitfield: %w", err)
			}
			s.availFrom = bm
		case pwp.MsgHave:
			idx, err := pwp.ParseHave(msg)
			if err != nil {
				s.state = Closed
				return err
			}
			s.availFrom.Set(idx)
		case pwp.MsgChoke:
			s.choked = true
		case pwp.MsgUnchoke:
			s.choked = false
			s.state = Unchoked
			return nil
		default:
			// tolerated: any other message is ignored while awaiting unchoke.
		}
	}
}

// DownloadPiece requests every block of w in order, pipelining up to
// piece.MaxBacklog outstanding requests, and returns the verified piece
// bytes. A choke, timeout, I/O error, or hash mismatch aborts the piece;
// the caller is responsible for releasing the progress-bitmap slot.
func (s *LeecherSession) DownloadPiece(w piece.Work) ([]byte, error) {
	s.state = Requesting
	s.conn.SetDeadline(time.Now().Add(requestDeadline))
	defer s.conn.SetDeadline(time.Time{})

	a := piece.NewAssembler(w)
	numBlocks := piece.NumBlocks(w.Length)
	nextBlock := 0

	for !a.Complete() {
		for !s.choked && a.Backlog < piece.MaxBacklog && nextBlock < numBlocks {
			begin, size := piece.BlockBounds(w.Length, nextBlock)
			req := pwp.FormatRequest(pwp.BlockRequest{Index: w.Index, Begin: begin, Length: size})
			if _, err := s.conn.Write(req.Serialize()); err != nil {
				return nil, fmt.Errorf("peer: send request: %w", err)
			}
			a.Backlog++
			nextBlock++
		}

		msg, err := pwp.ReadMessage(s.conn)
		if err != nil {
			return nil, fmt.Errorf("peer: read during requesting: %w", err)
		}
		if msg == nil {
			continue // keep-alive
		}
		switch msg.ID {
		case pwp.MsgChoke:
			s.choked = true
			s.state = Choked
			return nil, fmt.Errorf("peer: choked mid-piece %d", w.Index)
		case pwp.MsgUnchoke:
			s.choked = false
		case pwp.MsgHave:
			if idx, err := pwp.ParseHave(msg); err == nil {
				s.availFrom.Set(idx)
			}
		case pwp.MsgPiece:
			block, err := pwp.ParseBlock(msg)
			if err != nil {
				return nil, err
			}
			if block.Index != w.Index {
				continue // stale block from a previously abandoned piece
			}
			if err := a.AddBlock(block.Begin, block.Data); err != nil {
				return nil, err
			}
		}
	}

	verified, err := a.Verify()
	if err != nil {
		return nil, err
	}
	return verified, nil
}

// Close closes the underlying connection.
func (s *LeecherSession) Close() error {
	s.state = Closed
	return s.conn.Close()
}
