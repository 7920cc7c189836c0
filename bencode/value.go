// Package bencode implements the bencode serialization used by .torrent
// files and PWP/tracker payloads: byte strings, integers, lists, and
// ordered dictionaries.
package bencode

// Kind tags the variant a Value holds.
type Kind int

const (
	KindByteString Kind = iota
	KindInteger
	KindList
	KindDict
)

// DictEntry is one key/value pair of a Dictionary, kept in the order it was
// read so that re-encoding reproduces the source byte-for-byte.
type DictEntry struct {
	Key   []byte
	Value Value
}

// Value is a tagged union over the four bencode value kinds. Only the field
// matching Kind is meaningful.
type Value struct {
	Kind    Kind
	Str     []byte
	Int     int64
	List    []Value
	Entries []DictEntry
}

// NewByteString wraps raw bytes as a bencode byte string value.
func NewByteString(b []byte) Value {
	return Value{Kind: KindByteString, Str: b}
}

// NewInteger wraps an int64 as a bencode integer value.
func NewInteger(i int64) Value {
	return Value{Kind: KindInteger, Int: i}
}

// NewList wraps a slice of values as a bencode list value.
func NewList(items []Value) Value {
	return Value{Kind: KindList, List: items}
}

// NewDict builds a dictionary value, preserving entry order.
func NewDict(entries []DictEntry) Value {
	return Value{Kind: KindDict, Entries: entries}
}

// IsByteString reports whether v holds a byte string.
func (v Value) IsByteString() bool { return v.Kind == KindByteString }

// IsInteger reports whether v holds an integer.
func (v Value) IsInteger() bool { return v.Kind == KindInteger }

// IsList reports whether v holds a list.
func (v Value) IsList() bool { return v.Kind == KindList }

// IsDict reports whether v holds a dictionary.
func (v Value) IsDict() bool { return v.Kind == KindDict }

// ByteString returns the raw bytes of a byte string value, or nil, false if
// v is not a byte string.
func (v Value) ByteString() ([]byte, bool) {
	if v.Kind != KindByteString {
		return nil, false
	}
	return v.Str, true
}

// Integer returns the integer value, or 0, false if v is not an integer.
func (v Value) Integer() (int64, bool) {
	if v.Kind != KindInteger {
		return 0, false
	}
	return v.Int, true
}

// Get returns the value associated with key in a dictionary, in first-match
// order. Returns the zero Value, false if v is not a dictionary or key is
// absent.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindDict {
		return Value{}, false
	}
	for _, e := range v.Entries {
		if string(e.Key) == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Has reports whether a dictionary contains key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}
