package bencode

import "fmt"

// ErrEmpty is returned when the buffer contains no bencode value at the
// cursor (including a wholly empty buffer).
var ErrEmpty = fmt.Errorf("bencode: empty")

// InvalidEncodingError reports an unrecognised leading byte or malformed
// framing at a given byte offset.
type InvalidEncodingError struct {
	Offset int
	Reason string
}

func (e *InvalidEncodingError) Error() string {
	return fmt.Sprintf("bencode: invalid encoding at offset %d: %s", e.Offset, e.Reason)
}

// InvalidIntegerError reports an integer literal that fails the grammar of
// spec §4.1: leading zero followed by other digits, a negative-zero form, or
// non-digit characters before the terminating 'e'.
type InvalidIntegerError struct {
	Literal string
}

func (e *InvalidIntegerError) Error() string {
	return fmt.Sprintf("bencode: invalid integer literal %q", e.Literal)
}

// ErrInvalidByteStringLength is returned when a byte string's length prefix
// does not parse as a non-negative decimal integer.
var ErrInvalidByteStringLength = fmt.Errorf("bencode: invalid byte string length")
