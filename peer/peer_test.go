package peer

import (
	"crypto/sha1"
	"net"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorent/bitfield"
	"gorent/piece"
	"gorent/pwp"
)

func TestDialLeecherHandshakeMismatchCloses(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var wantHash, actualHash, peerID [20]byte
	wantHash[0] = 1
	actualHash[0] = 2

	go func() {
		_, _ = pwp.ReadHandshake(server)
		server.Write(pwp.NewHandshake(actualHash, peerID).Serialize())
	}()

	done := make(chan struct{})
	var dialErr error
	go func() {
		_, dialErr = dialOverConn(client, wantHash, peerID, 1)
		close(done)
	}()
	<-done
	assert.Error(t, dialErr)
}

// dialOverConn runs the same handshake+interested logic as DialLeecher but
// over an already-connected net.Conn, so tests can use net.Pipe instead of
// a real TCP dial.
func dialOverConn(conn net.Conn, infoHash, peerID [20]byte, numPieces int) (*LeecherSession, error) {
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
		return nil, err
	}
	s.state = AwaitingBitfield
	return s, nil
}

func TestLeecherFullPieceDownload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	var infoHash, peerID [20]byte
	data := []byte("abcdefghijklmnopqrstuvwxyz0123456789")
	hash := sha1.Sum(data)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		defer server.Close()

		if _, err := pwp.ReadHandshake(server); err != nil {
			return
		}
		server.Write(pwp.NewHandshake(infoHash, peerID).Serialize())

		msg, err := pwp.ReadMessage(server) // interested
		if err != nil || msg.ID != pwp.MsgInterested {
			return
		}

		server.Write(pwp.FormatBitfield([]byte{0x80}).Serialize())
		server.Write((&pwp.Message{ID: pwp.MsgUnchoke}).Serialize())

		for {
			msg, err := pwp.ReadMessage(server)
			if err != nil {
				return
			}
			if msg == nil {
				continue
			}
			if msg.ID != pwp.MsgRequest {
				continue
			}
			req, err := pwp.ParseRequest(msg)
			require.NoError(t, err)
			block := pwp.Block{Index: req.Index, Begin: req.Begin, Data: data[req.Begin : req.Begin+req.Length]}
			server.Write(pwp.FormatPiece(block).Serialize())
			if req.Begin+req.Length >= len(data) {
				return
			}
		}
	}()

	session, err := dialOverConn(client, infoHash, peerID, 1)
	require.NoError(t, err)

	require.NoError(t, session.AwaitUnchoke())
	assert.Equal(t, Unchoked, session.State())
	assert.True(t, session.Availability().Test(0))

	got, err := session.DownloadPiece(piece.Work{Index: 0, Length: len(data), Hash: hash})
	require.NoError(t, err)
	assert.Equal(t, data, got)

	<-serverDone
}

type fakeTorrentSource struct {
	infoHash     [20]byte
	bitmap       *bitfield.Bitmap
	downloadsDir string
	fileName     string
}

func (f *fakeTorrentSource) InfoHash() [20]byte       { return f.infoHash }
func (f *fakeTorrentSource) Bitmap() *bitfield.Bitmap { return f.bitmap }
func (f *fakeTorrentSource) DownloadsDir() string     { return f.downloadsDir }
func (f *fakeTorrentSource) FileName() string         { return f.fileName }

func TestSeederSessionUnknownInfoHashRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	var infoHash, peerID [20]byte
	lookup := func([20]byte) (TorrentSource, bool) { return nil, false }
	log := logrus.NewEntry(logrus.New())

	sess := NewSeederSession(server, peerID, lookup, log)
	done := make(chan error, 1)
	go func() { done <- sess.Serve() }()

	client.Write(pwp.NewHandshake(infoHash, peerID).Serialize())
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("seeder session did not terminate on unknown info-hash")
	}
}

func TestSeederSessionServesBlockAfterInterestedAndUnchokes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir+"/piece0-out.bin", []byte("0123456789")))

	client, server := net.Pipe()
	defer client.Close()

	var infoHash, peerID [20]byte
	bm := bitfield.NewBitmap(1)
	bm.Set(0)
	src := &fakeTorrentSource{infoHash: infoHash, bitmap: bm, downloadsDir: dir, fileName: "out.bin"}
	lookup := func(h [20]byte) (TorrentSource, bool) { return src, true }
	log := logrus.NewEntry(logrus.New())

	sess := NewSeederSession(server, peerID, lookup, log)
	go sess.Serve()

	require.NoError(t, readHandshakeAndReply(client, infoHash, peerID))

	// bitfield sent unprompted after handshake
	bfMsg, err := pwp.ReadMessage(client)
	require.NoError(t, err)
	assert.Equal(t, pwp.MsgBitfield, bfMsg.ID)

	// net.Pipe is unbuffered and the seeder writes an unchoke between the
	// two reads, so the writes run concurrently with the reads below.
	go func() {
		client.Write((&pwp.Message{ID: pwp.MsgInterested}).Serialize())
		client.Write(pwp.FormatRequest(pwp.BlockRequest{Index: 0, Begin: 0, Length: 5}).Serialize())
	}()

	for {
		msg, err := pwp.ReadMessage(client)
		require.NoError(t, err)
		if msg == nil {
			continue
		}
		if msg.ID == pwp.MsgUnchoke {
			continue
		}
		if msg.ID == pwp.MsgPiece {
			block, err := pwp.ParseBlock(msg)
			require.NoError(t, err)
			assert.Equal(t, []byte("01234"), block.Data)
			return
		}
	}
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func readHandshakeAndReply(conn net.Conn, infoHash, peerID [20]byte) error {
	conn.Write(pwp.NewHandshake(infoHash, peerID).Serialize())
	_, err := pwp.ReadHandshake(conn)
	return err
}
