// Package download implements the per-torrent download coordinator of
// spec.md §4.6: it announces to the tracker, fans peer sessions out
// concurrently, assigns pieces under the shared progress bitmap, and
// reassembles the final file once every piece is verified. Grounded in
// the teacher's Torrent.Download/startDownloadWorker work-queue, replaced
// with explicit assign/release against bitfield.Progress so that, unlike
// the teacher's channel-only queue, at most one session ever holds a
// piece InProgress at a time.
package download

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"gorent/bitfield"
	"gorent/metainfo"
	"gorent/peer"
	"gorent/piece"
)

// MaxConcurrentPeerSessions bounds how many peer sessions a Coordinator
// runs at once, regardless of how many candidates the tracker returns.
const MaxConcurrentPeerSessions = 30

// Coordinator owns one torrent's download: its descriptor, progress
// bitmap, and the fan-out of peer sessions working to complete it.
type Coordinator struct {
	Descriptor   *metainfo.Descriptor
	downloadsDir string
	PeerID       [20]byte
	Announce     *AnnounceClient

	progress *bitfield.Progress
	log      *logrus.Entry

	reassembleOnce sync.Once
	reassembleErr  error
}

// NewCoordinator builds a Coordinator for a freshly-read descriptor.
func NewCoordinator(desc *metainfo.Descriptor, downloadsDir string, peerID [20]byte, announce *AnnounceClient, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		Descriptor:   desc,
		downloadsDir: downloadsDir,
		PeerID:       peerID,
		Announce:     announce,
		progress:     bitfield.NewProgress(desc.NumPieces()),
		log:          log,
	}
}

// Progress exposes the coordinator's piece progress bitmap, e.g. for a
// SeederSession to advertise current availability.
func (c *Coordinator) Progress() *bitfield.Progress { return c.progress }

// InfoHash satisfies peer.TorrentSource.
func (c *Coordinator) InfoHash() [20]byte { return c.Descriptor.InfoHash() }

// Bitmap satisfies peer.TorrentSource.
func (c *Coordinator) Bitmap() *bitfield.Bitmap { return c.progress.Snapshot() }

// FileName satisfies peer.TorrentSource.
func (c *Coordinator) FileName() string { return c.Descriptor.Name }

// DownloadsDir satisfies peer.TorrentSource.
func (c *Coordinator) DownloadsDir() string { return c.downloadsDir }

// Run announces to the tracker, spawns one peer session per returned
// candidate (bounded by MaxConcurrentPeerSessions), and blocks until
// every session has ended, then reassembles the file. Individual
// peer-session failures do not fail the whole download; Run returns an
// error if the announce fails or yields no peers, if the sessions end
// (for any reason, including cancellation) with any piece not yet
// Present, or if reassembly fails.
func (c *Coordinator) Run(ctx context.Context) error {
	left := c.Descriptor.Length
	peers, err := c.Announce.Announce(c.Descriptor, "started", 0, 0, left)
	if err != nil {
		return fmt.Errorf("download: announce: %w", err)
	}
	if len(peers) == 0 {
		return fmt.Errorf("download: tracker returned no peers")
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(MaxConcurrentPeerSessions)

	for _, p := range peers {
		p := p
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			c.runPeerSession(gctx, p)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if !c.progress.AllPresent() {
		return fmt.Errorf("download: finished peer sessions without completing all pieces")
	}
	return c.reassemble()
}

// runPeerSession drives one peer from dial through repeated piece
// assignment until the peer has nothing left to offer, the connection
// fails, or the torrent completes. Failures are logged, not propagated:
// one bad peer must not abort the whole swarm.
func (c *Coordinator) runPeerSession(ctx context.Context, addr PeerAddr) {
	session, err := peer.DialLeecher(addr.String(), c.Descriptor.InfoHash(), c.PeerID, c.Descriptor.NumPieces())
	if err != nil {
		c.log.WithError(err).WithField("peer", addr.String()).Debug("failed to connect to peer")
		return
	}
	defer session.Close()

	if err := session.AwaitUnchoke(); err != nil {
		c.log.WithError(err).WithField("peer", addr.String()).Debug("peer session ended before unchoke")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.progress.AllPresent() {
			return
		}

		index, ok := c.progress.Assign(session.Availability())
		if !ok {
			return // this peer has nothing left that we still need
		}

		work := piece.Work{Index: index, Length: c.pieceLength(index), Hash: c.Descriptor.PieceHashes[index]}
		data, err := session.DownloadPiece(work)
		if err != nil {
			c.log.WithError(err).WithField("peer", addr.String()).WithField("piece", index).Debug("abandoning piece")
			c.progress.Release(index)
			return
		}

		if err := piece.WritePiece(c.downloadsDir, c.Descriptor.Name, index, data); err != nil {
			c.log.WithError(err).WithField("piece", index).Error("failed to persist verified piece")
			c.progress.Release(index)
			return
		}
		c.progress.Complete(index)
		c.log.WithField("piece", index).WithField("peer", addr.String()).Info("piece verified and stored")
	}
}

// pieceLength returns the expected byte length of piece i: PieceLength
// for every piece but the last, which is the remainder.
func (c *Coordinator) pieceLength(i int) int {
	total := c.Descriptor.Length
	pieceLen := c.Descriptor.PieceLength
	start := int64(i) * pieceLen
	if start+pieceLen > total {
		return int(total - start)
	}
	return int(pieceLen)
}

func (c *Coordinator) reassemble() error {
	c.reassembleOnce.Do(func() {
		c.reassembleErr = piece.Reassemble(
			c.downloadsDir,
			c.Descriptor.Name,
			c.Descriptor.Length,
			c.Descriptor.NumPieces(),
			c.Descriptor.PieceLength,
		)
		if c.reassembleErr == nil {
			c.log.WithField("file", c.Descriptor.Name).Info("download complete, file reassembled")
		}
	})
	return c.reassembleErr
}
