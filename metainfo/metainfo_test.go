package metainfo

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorent/bencode"
)

func buildTorrent(t *testing.T, pieceLength, length int64, numPieces int, extra ...bencode.DictEntry) []byte {
	t.Helper()
	pieces := make([]byte, 20*numPieces)
	for i := range pieces {
		pieces[i] = byte(i)
	}
	infoEntries := []bencode.DictEntry{
		{Key: []byte("length"), Value: bencode.NewInteger(length)},
		{Key: []byte("name"), Value: bencode.NewByteString([]byte("file.bin"))},
		{Key: []byte("piece length"), Value: bencode.NewInteger(pieceLength)},
		{Key: []byte("pieces"), Value: bencode.NewByteString(pieces)},
	}
	infoEntries = append(infoEntries, extra...)
	info := bencode.NewDict(infoEntries)
	top := bencode.NewDict([]bencode.DictEntry{
		{Key: []byte("announce"), Value: bencode.NewByteString([]byte("http://tracker.example/announce"))},
		{Key: []byte("info"), Value: info},
	})
	return bencode.Encode(top)
}

func TestReadValidTorrent(t *testing.T) {
	raw := buildTorrent(t, 16384, 49152, 3)
	d, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "http://tracker.example/announce", d.Announce)
	assert.Equal(t, "file.bin", d.Name)
	assert.Equal(t, int64(16384), d.PieceLength)
	assert.Equal(t, int64(49152), d.Length)
	assert.Len(t, d.PieceHashes, 3)
}

func TestInfoHashMatchesRawInfoBytes(t *testing.T) {
	raw := buildTorrent(t, 16384, 49152, 3)
	top, err := bencode.Parse(raw)
	require.NoError(t, err)
	infoVal, _ := top.Get("info")
	want := sha1.Sum(bencode.Encode(infoVal))

	d, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, want, d.InfoHash())
}

func TestPieceCountMismatchRejected(t *testing.T) {
	raw := buildTorrent(t, 16384, 49152, 2) // needs 3 pieces, only 2 given
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestUnknownTopLevelKeyRejected(t *testing.T) {
	info := bencode.NewDict([]bencode.DictEntry{
		{Key: []byte("length"), Value: bencode.NewInteger(0)},
		{Key: []byte("name"), Value: bencode.NewByteString([]byte("f"))},
		{Key: []byte("piece length"), Value: bencode.NewInteger(1)},
		{Key: []byte("pieces"), Value: bencode.NewByteString(nil)},
	})
	top := bencode.NewDict([]bencode.DictEntry{
		{Key: []byte("announce"), Value: bencode.NewByteString([]byte("http://t"))},
		{Key: []byte("info"), Value: info},
		{Key: []byte("nonsense"), Value: bencode.NewInteger(1)},
	})
	_, err := Parse(bencode.Encode(top))
	require.Error(t, err)
}

func TestMultiFileTorrentRejected(t *testing.T) {
	info := bencode.NewDict([]bencode.DictEntry{
		{Key: []byte("files"), Value: bencode.NewList(nil)},
		{Key: []byte("name"), Value: bencode.NewByteString([]byte("dir"))},
		{Key: []byte("piece length"), Value: bencode.NewInteger(1)},
		{Key: []byte("pieces"), Value: bencode.NewByteString(nil)},
	})
	top := bencode.NewDict([]bencode.DictEntry{
		{Key: []byte("announce"), Value: bencode.NewByteString([]byte("http://t"))},
		{Key: []byte("info"), Value: info},
	})
	_, err := Parse(bencode.Encode(top))
	require.Error(t, err)
}

func TestZeroLengthTorrentHasZeroPieces(t *testing.T) {
	raw := buildTorrent(t, 16384, 0, 0)
	d, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 0, d.NumPieces())
}
