package download

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorent/bencode"
	"gorent/metainfo"
	"gorent/pwp"
)

// fakeSeeder accepts exactly one connection and serves every requested
// block straight out of an in-memory file, mimicking peer.SeederSession
// without depending on the peer package (avoids an import cycle in tests).
func fakeSeeder(t *testing.T, ln net.Listener, infoHash [20]byte, fileData []byte, pieceLength int64, numPieces int) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	handshake, err := pwp.ReadHandshake(conn)
	require.NoError(t, err)
	require.Equal(t, infoHash, handshake.InfoHash)

	var myPeerID [20]byte
	conn.Write(pwp.NewHandshake(infoHash, myPeerID).Serialize())

	full := make([]byte, (numPieces+7)/8)
	for i := 0; i < numPieces; i++ {
		full[i/8] |= 1 << (7 - uint(i%8))
	}
	conn.Write(pwp.FormatBitfield(full).Serialize())

	msg, err := pwp.ReadMessage(conn)
	require.NoError(t, err)
	require.Equal(t, pwp.MsgInterested, msg.ID)
	conn.Write((&pwp.Message{ID: pwp.MsgUnchoke}).Serialize())

	for i := 0; i < numPieces; i++ {
		msg, err := pwp.ReadMessage(conn)
		require.NoError(t, err)
		require.Equal(t, pwp.MsgRequest, msg.ID)
		req, err := pwp.ParseRequest(msg)
		require.NoError(t, err)

		offset := req.Index*int(pieceLength) + req.Begin
		block := pwp.Block{Index: req.Index, Begin: req.Begin, Data: fileData[offset : offset+req.Length]}
		conn.Write(pwp.FormatPiece(block).Serialize())
	}
}

func TestCoordinatorDownloadsThreePieceTorrentFromSinglePeer(t *testing.T) {
	const pieceLength = 16384
	const numPieces = 3
	const length = pieceLength * numPieces

	fileData := make([]byte, length)
	_, err := rand.Read(fileData)
	require.NoError(t, err)

	hashes := make([]byte, 0, 20*numPieces)
	for i := 0; i < numPieces; i++ {
		h := sha1.Sum(fileData[i*pieceLength : (i+1)*pieceLength])
		hashes = append(hashes, h[:]...)
	}

	info := bencode.NewDict([]bencode.DictEntry{
		{Key: []byte("length"), Value: bencode.NewInteger(length)},
		{Key: []byte("name"), Value: bencode.NewByteString([]byte("movie.bin"))},
		{Key: []byte("piece length"), Value: bencode.NewInteger(pieceLength)},
		{Key: []byte("pieces"), Value: bencode.NewByteString(hashes)},
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, port, _ := net.SplitHostPort(ln.Addr().String())
		portInt, _ := strconv.Atoi(port)
		compact := []byte{127, 0, 0, 1, byte(portInt >> 8), byte(portInt)}
		resp := bencode.NewDict([]bencode.DictEntry{
			{Key: []byte("interval"), Value: bencode.NewInteger(900)},
			{Key: []byte("peers"), Value: bencode.NewByteString(compact)},
		})
		w.Write(bencode.Encode(resp))
	}))
	defer srv.Close()

	top := bencode.NewDict([]bencode.DictEntry{
		{Key: []byte("announce"), Value: bencode.NewByteString([]byte(srv.URL + "/announce"))},
		{Key: []byte("info"), Value: info},
	})
	desc, err := metainfo.Parse(bencode.Encode(top))
	require.NoError(t, err)

	seederDone := make(chan struct{})
	go func() {
		defer close(seederDone)
		fakeSeeder(t, ln, desc.InfoHash(), fileData, pieceLength, numPieces)
	}()

	downloadsDir := t.TempDir()
	var peerID [20]byte
	copy(peerID[:], "-GR0001-testclient01")
	announceClient := NewAnnounceClient(peerID, 6882)
	log := logrus.NewEntry(logrus.New())

	coord := NewCoordinator(desc, downloadsDir, peerID, announceClient, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, coord.Run(ctx))

	<-seederDone

	assert.True(t, coord.Progress().AllPresent())

	got, err := os.ReadFile(filepath.Join(downloadsDir, "movie.bin"))
	require.NoError(t, err)
	assert.Equal(t, fileData, got)
}

