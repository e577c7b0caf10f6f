package buffer

import "fmt"

// ByteOffset represents a byte position in the buffer.
// This is the fundamental position type, directly indexing into the text.
type ByteOffset = int

// ModSeq is a buffer modification sequence number. Every edit applied to a
// buffer produces a strictly greater value than the one before it.
type ModSeq uint64

// String returns a human-readable representation of the sequence number.
func (s ModSeq) String() string {
	return fmt.Sprintf("#%d", uint64(s))
}
