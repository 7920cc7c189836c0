// Package metainfo reads and validates .torrent metainfo descriptors and
// exposes the fields the rest of gorent needs: piece length, total length,
// piece hashes, the announce URL, and the info-hash.
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"io"

	"gorent/bencode"
)

// recognizedTopLevelKeys is the full set of top-level keys this reader
// tolerates. Any other key rejects the torrent (spec.md §4.2's documented,
// intentional strictness — see DESIGN.md's Open Question decision).
var recognizedTopLevelKeys = map[string]bool{
	"announce":      true,
	"info":          true,
	"announce-list": true,
	"comment":       true,
	"created by":    true,
	"creation date": true,
	"encoding":      true,
	"httpseeds":     true,
}

// Descriptor is the validated, immutable view of a single-file .torrent.
type Descriptor struct {
	Announce     string
	AnnounceList [][]string
	Comment      string
	CreatedBy    string
	CreationDate int64
	Encoding     string

	Name        string
	PieceLength int64
	Length      int64
	PieceHashes [][20]byte
	MD5Sum      string
	Private     bool

	infoHash [20]byte
}

// InfoHash returns the 20-byte SHA-1 of the exact bencoded bytes of the
// info subdictionary — the swarm identifier.
func (d *Descriptor) InfoHash() [20]byte { return d.infoHash }

// NumPieces returns the number of pieces declared by Pieces.
func (d *Descriptor) NumPieces() int { return len(d.PieceHashes) }

// Error is returned for any torrent that fails validation.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "metainfo: invalid torrent: " + e.Reason }

// Read parses and validates a single .torrent file from r.
func Read(r io.Reader) (*Descriptor, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("metainfo: read: %w", err)
	}
	return Parse(raw)
}

// Parse parses and validates a single .torrent file already held in memory.
func Parse(raw []byte) (*Descriptor, error) {
	top, err := bencode.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("metainfo: %w", err)
	}
	if !top.IsDict() {
		return nil, &Error{Reason: "top level value is not a dictionary"}
	}
	for _, entry := range top.Entries {
		if !recognizedTopLevelKeys[string(entry.Key)] {
			return nil, &Error{Reason: fmt.Sprintf("unrecognized top-level key %q", entry.Key)}
		}
	}

	announceVal, ok := top.Get("announce")
	if !ok {
		return nil, &Error{Reason: "missing announce"}
	}
	announce, ok := announceVal.ByteString()
	if !ok {
		return nil, &Error{Reason: "announce is not a byte string"}
	}

	infoVal, ok := top.Get("info")
	if !ok {
		return nil, &Error{Reason: "missing info"}
	}
	if !infoVal.IsDict() {
		return nil, &Error{Reason: "info is not a dictionary"}
	}

	d, err := parseInfo(infoVal)
	if err != nil {
		return nil, err
	}
	d.Announce = string(announce)

	if al, ok := top.Get("announce-list"); ok {
		d.AnnounceList = parseAnnounceList(al)
	}
	if c, ok := top.Get("comment"); ok {
		if s, ok := c.ByteString(); ok {
			d.Comment = string(s)
		}
	}
	if c, ok := top.Get("created by"); ok {
		if s, ok := c.ByteString(); ok {
			d.CreatedBy = string(s)
		}
	}
	if c, ok := top.Get("creation date"); ok {
		if n, ok := c.Integer(); ok {
			d.CreationDate = n
		}
	}
	if c, ok := top.Get("encoding"); ok {
		if s, ok := c.ByteString(); ok {
			d.Encoding = string(s)
		}
	}

	sum := sha1.Sum(bencode.Encode(infoVal))
	d.infoHash = sum

	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func parseInfo(infoVal bencode.Value) (*Descriptor, error) {
	if infoVal.Has("files") {
		return nil, &Error{Reason: "multi-file torrents are unsupported"}
	}

	nameVal, ok := infoVal.Get("name")
	if !ok {
		return nil, &Error{Reason: "info missing name"}
	}
	name, ok := nameVal.ByteString()
	if !ok {
		return nil, &Error{Reason: "info.name is not a byte string"}
	}

	pieceLengthVal, ok := infoVal.Get("piece length")
	if !ok {
		return nil, &Error{Reason: "info missing piece length"}
	}
	pieceLength, ok := pieceLengthVal.Integer()
	if !ok || pieceLength <= 0 {
		return nil, &Error{Reason: "info.piece length must be a positive integer"}
	}

	piecesVal, ok := infoVal.Get("pieces")
	if !ok {
		return nil, &Error{Reason: "info missing pieces"}
	}
	piecesRaw, ok := piecesVal.ByteString()
	if !ok {
		return nil, &Error{Reason: "info.pieces is not a byte string"}
	}
	if len(piecesRaw)%20 != 0 {
		return nil, &Error{Reason: "info.pieces length is not a multiple of 20"}
	}
	hashes := make([][20]byte, len(piecesRaw)/20)
	for i := range hashes {
		copy(hashes[i][:], piecesRaw[i*20:(i+1)*20])
	}

	lengthVal, ok := infoVal.Get("length")
	if !ok {
		return nil, &Error{Reason: "info missing length (multi-file mode unsupported)"}
	}
	length, ok := lengthVal.Integer()
	if !ok || length < 0 {
		return nil, &Error{Reason: "info.length must be a non-negative integer"}
	}

	d := &Descriptor{
		Name:        string(name),
		PieceLength: pieceLength,
		Length:      length,
		PieceHashes: hashes,
	}

	if md5, ok := infoVal.Get("md5sum"); ok {
		if s, ok := md5.ByteString(); ok {
			d.MD5Sum = string(s)
		}
	}
	if priv, ok := infoVal.Get("private"); ok {
		if n, ok := priv.Integer(); ok {
			d.Private = n != 0
		}
	}

	return d, nil
}

func parseAnnounceList(v bencode.Value) [][]string {
	if !v.IsList() {
		return nil
	}
	out := make([][]string, 0, len(v.List))
	for _, tier := range v.List {
		if !tier.IsList() {
			continue
		}
		t := make([]string, 0, len(tier.List))
		for _, u := range tier.List {
			if s, ok := u.ByteString(); ok {
				t = append(t, string(s))
			}
		}
		out = append(out, t)
	}
	return out
}

// validate checks the ceil(length/piece_length) == num_pieces invariant of
// spec.md §3.
func (d *Descriptor) validate() error {
	expected := (d.Length + d.PieceLength - 1) / d.PieceLength
	if d.Length == 0 {
		expected = 0
	}
	if int64(len(d.PieceHashes)) != expected {
		return &Error{Reason: fmt.Sprintf(
			"piece count mismatch: ceil(%d/%d)=%d but pieces has %d hashes",
			d.Length, d.PieceLength, expected, len(d.PieceHashes))}
	}
	return nil
}
