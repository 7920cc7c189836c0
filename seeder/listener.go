// Package seeder implements the inbound PWP acceptor of spec.md §4.7: a
// persistent listener that hands each accepted connection to a
// peer.SeederSession, resolving the requested info-hash against a shared,
// read-locked table of loaded torrents. Grounded fresh from
// original_source/src/server/server_handler.rs's TcpListener +
// per-connection-goroutine + Arc<RwLock<...>> torrent table, since the
// teacher is leecher-only and has no seeding code at all.
package seeder

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"gorent/peer"
)

// DefaultPort is the default inbound PWP listening port (spec.md §4.7).
const DefaultPort = 6881

// Listener accepts inbound PWP connections and serves any torrent
// registered with it.
type Listener struct {
	peerID [20]byte
	log    *logrus.Entry

	mu       sync.RWMutex
	torrents map[[20]byte]peer.TorrentSource
}

// NewListener builds a Listener that identifies itself with peerID when
// replying to handshakes.
func NewListener(peerID [20]byte, log *logrus.Entry) *Listener {
	return &Listener{
		peerID:   peerID,
		log:      log,
		torrents: make(map[[20]byte]peer.TorrentSource),
	}
}

// Register makes a torrent available for seeding. Safe to call
// concurrently with Serve.
func (l *Listener) Register(t peer.TorrentSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.torrents[t.InfoHash()] = t
}

// Unregister stops seeding a torrent.
func (l *Listener) Unregister(infoHash [20]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.torrents, infoHash)
}

func (l *Listener) lookup(infoHash [20]byte) (peer.TorrentSource, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.torrents[infoHash]
	return t, ok
}

// Serve binds to addr and accepts connections until the listener is
// closed or ln.Accept fails. Each connection runs its own
// peer.SeederSession in a dedicated goroutine.
func (l *Listener) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("seeder: listen on %s: %w", addr, err)
	}
	defer ln.Close()

	l.log.WithField("addr", addr).Info("seeder listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("seeder: accept: %w", err)
		}
		go l.handle(conn)
	}
}

func (l *Listener) handle(conn net.Conn) {
	session := peer.NewSeederSession(conn, l.peerID, l.lookup, l.log)
	if err := session.Serve(); err != nil {
		l.log.WithError(err).WithField("remote", conn.RemoteAddr()).Debug("seeder session ended")
	}
}
