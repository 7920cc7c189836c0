// Package bitfield implements the fixed-size piece-availability bitmap
// (spec.md §3 "Bitmap") and the ternary per-piece progress tracker
// ("Progress bitmap") the download coordinator uses to avoid assigning the
// same piece to two sessions at once.
package bitfield

import (
	"fmt"

	"github.com/willf/bitset"
)

// Bitmap is a logical sequence of N bits, most-significant-bit-first in its
// packed byte representation (spec.md §3). Internal storage and
// enumeration are delegated to willf/bitset; the packed-byte wire form is
// produced independently of that library's own (LSB-first) marshalling so
// that Bytes/FromBytes stay bit-exact with spec.md §4.3's bitfield message.
type Bitmap struct {
	n    int
	bits *bitset.BitSet
}

// NewBitmap allocates a Bitmap over n pieces, all initially unset.
func NewBitmap(n int) *Bitmap {
	return &Bitmap{n: n, bits: bitset.New(uint(n))}
}

// Len returns the number of logical pieces the bitmap covers.
func (b *Bitmap) Len() int { return b.n }

// Test reports whether piece i is marked available.
func (b *Bitmap) Test(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.bits.Test(uint(i))
}

// Set marks piece i available.
func (b *Bitmap) Set(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.bits.Set(uint(i))
}

// Clear marks piece i unavailable.
func (b *Bitmap) Clear(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.bits.Clear(uint(i))
}

// AllSet reports whether every piece is marked available.
func (b *Bitmap) AllSet() bool {
	for i := 0; i < b.n; i++ {
		if !b.bits.Test(uint(i)) {
			return false
		}
	}
	return true
}

// AnySet reports whether at least one piece is marked available.
func (b *Bitmap) AnySet() bool {
	return b.bits.Any()
}

// EnumerateSet returns the indices of every set piece, ascending.
func (b *Bitmap) EnumerateSet() []int {
	out := make([]int, 0, b.n)
	for i := 0; i < b.n; i++ {
		if b.bits.Test(uint(i)) {
			out = append(out, i)
		}
	}
	return out
}

// EnumerateUnset returns the indices of every unset piece, ascending.
func (b *Bitmap) EnumerateUnset() []int {
	out := make([]int, 0, b.n)
	for i := 0; i < b.n; i++ {
		if !b.bits.Test(uint(i)) {
			out = append(out, i)
		}
	}
	return out
}

// Bytes packs the bitmap MSB-first into ceil(n/8) bytes, with any padding
// bits in the final byte left zero (spec.md §3, §4.3 bitfield message).
func (b *Bitmap) Bytes() []byte {
	out := make([]byte, (b.n+7)/8)
	for i := 0; i < b.n; i++ {
		if b.bits.Test(uint(i)) {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

// FromBytes builds a Bitmap over n pieces from an MSB-first packed byte
// slice of length ceil(n/8), as sent on the wire in a bitfield message.
// Padding bits past n must be zero.
func FromBytes(n int, data []byte) (*Bitmap, error) {
	want := (n + 7) / 8
	if len(data) != want {
		return nil, fmt.Errorf("bitfield: expected %d bytes for %d pieces, got %d", want, n, len(data))
	}
	b := NewBitmap(n)
	for i := 0; i < n; i++ {
		if data[i/8]&(1<<(7-uint(i%8))) != 0 {
			b.Set(i)
		}
	}
	if n%8 != 0 {
		lastByte := data[len(data)-1]
		padMask := byte(0xFF) >> uint(n%8)
		if lastByte&padMask != 0 {
			return nil, fmt.Errorf("bitfield: non-zero padding bits past piece count %d", n)
		}
	}
	return b, nil
}
