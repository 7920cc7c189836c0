package peer

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"gorent/bitfield"
	"gorent/pwp"
)

// idleTimeout closes a seeder-side connection that has sent no traffic
// (including keep-alives) for this long (spec.md §4.5).
const idleTimeout = 2 * time.Minute

// TorrentSource is the read-only view of a loaded torrent a SeederSession
// needs: its info-hash for lookup, current availability to advertise, and
// where to find already-verified per-piece files on disk.
type TorrentSource interface {
	InfoHash() [20]byte
	Bitmap() *bitfield.Bitmap
	DownloadsDir() string
	FileName() string
}

// Lookup resolves an info-hash to a loaded torrent, mirroring the shared
// read-locked torrent table of spec.md §4.7.
type Lookup func(infoHash [20]byte) (TorrentSource, bool)

// SeederSession serves blocks to one inbound peer connection.
type SeederSession struct {
	conn       net.Conn
	peerID     [20]byte
	lookup     Lookup
	log        *logrus.Entry
	torrent    TorrentSource
	interested bool
	choking    bool
}

// NewSeederSession wraps an accepted connection; peerID is this node's
// locally-generated peer-id used when replying to the handshake.
func NewSeederSession(conn net.Conn, peerID [20]byte, lookup Lookup, log *logrus.Entry) *SeederSession {
	return &SeederSession{conn: conn, peerID: peerID, lookup: lookup, log: log, choking: true}
}

// Serve runs the seeder-side protocol to completion: handshake, bitfield,
// then the request/choke/keep-alive loop of spec.md §4.5. It blocks until
// the connection closes or a fatal error occurs.
func (s *SeederSession) Serve() error {
	defer s.conn.Close()

	handshake, err := pwp.ReadHandshake(s.conn)
	if err != nil {
		return fmt.Errorf("peer: seeder read handshake: %w", err)
	}
	torrentSrc, ok := s.lookup(handshake.InfoHash)
	if !ok {
		return fmt.Errorf("peer: unknown info-hash from %s", s.conn.RemoteAddr())
	}
	s.torrent = torrentSrc

	reply := pwp.NewHandshake(handshake.InfoHash, s.peerID)
	if _, err := s.conn.Write(reply.Serialize()); err != nil {
		return fmt.Errorf("peer: seeder send handshake: %w", err)
	}

	bitmap := s.torrent.Bitmap()
	if _, err := s.conn.Write(pwp.FormatBitfield(bitmap.Bytes()).Serialize()); err != nil {
		return fmt.Errorf("peer: seeder send bitfield: %w", err)
	}

	lastActivity := time.Now()
	for {
		s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		msg, err := pwp.ReadMessage(s.conn)
		if err != nil {
			return fmt.Errorf("peer: seeder read: %w", err)
		}
		if time.Since(lastActivity) > idleTimeout {
			return fmt.Errorf("peer: seeder connection idle timeout")
		}
		lastActivity = time.Now()
		if msg == nil {
			continue // keep-alive extends the idle timer only
		}

		switch msg.ID {
		case pwp.MsgInterested:
			s.interested = true
		case pwp.MsgNotInterested:
			s.interested = false
		case pwp.MsgRequest:
			req, err := pwp.ParseRequest(msg)
			if err != nil {
				return err
			}
			if err := s.serveBlock(req); err != nil {
				s.log.WithError(err).Warn("failed to serve requested block, closing connection")
				return err
			}
		}

		if s.interested && s.choking {
			s.choking = false
			if _, err := s.conn.Write((&pwp.Message{ID: pwp.MsgUnchoke}).Serialize()); err != nil {
				return fmt.Errorf("peer: seeder send unchoke: %w", err)
			}
		}
	}
}

func (s *SeederSession) serveBlock(req pwp.BlockRequest) error {
	if s.choking || !s.interested {
		return nil
	}
	path := filepath.Join(s.torrent.DownloadsDir(), fmt.Sprintf("piece%d-%s", req.Index, s.torrent.FileName()))
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("peer: open piece file for block request: %w", err)
	}
	defer f.Close()

	buf := make([]byte, req.Length)
	if _, err := f.ReadAt(buf, int64(req.Begin)); err != nil {
		return fmt.Errorf("peer: read block: %w", err)
	}

	block := pwp.Block{Index: req.Index, Begin: req.Begin, Data: buf}
	if _, err := s.conn.Write(pwp.FormatPiece(block).Serialize()); err != nil {
		return fmt.Errorf("peer: send piece: %w", err)
	}
	return nil
}
