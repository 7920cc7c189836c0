package bencode

import (
	"strconv"
)

// Encode renders v as its canonical bencode byte representation. Encoding a
// Value produced by Parse reproduces the source bytes exactly, provided
// dictionary key order was preserved (spec.md §8 invariant 1).
func Encode(v Value) []byte {
	buf := make([]byte, 0, 64)
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindByteString:
		buf = strconv.AppendInt(buf, int64(len(v.Str)), 10)
		buf = append(buf, ':')
		buf = append(buf, v.Str...)
		return buf
	case KindInteger:
		buf = append(buf, 'i')
		buf = strconv.AppendInt(buf, v.Int, 10)
		buf = append(buf, 'e')
		return buf
	case KindList:
		buf = append(buf, 'l')
		for _, item := range v.List {
			buf = appendValue(buf, item)
		}
		buf = append(buf, 'e')
		return buf
	case KindDict:
		buf = append(buf, 'd')
		for _, entry := range v.Entries {
			buf = appendValue(buf, NewByteString(entry.Key))
			buf = appendValue(buf, entry.Value)
		}
		buf = append(buf, 'e')
		return buf
	default:
		return buf
	}
}
