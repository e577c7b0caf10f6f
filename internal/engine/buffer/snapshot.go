package buffer

import "github.com/dshills/treesync/internal/engine/rope"

// Snapshot provides a read-only view of a buffer at a specific point in time.
// It is safe for concurrent access and will not change even if the original
// buffer is modified.
type Snapshot struct {
	text   rope.Rope
	modSeq ModSeq
}

// Text returns the full snapshot content as a string.
func (s *Snapshot) Text() string {
	return s.text.String()
}

// TextRange returns text in the given byte range.
// The range is clamped to the snapshot bounds.
func (s *Snapshot) TextRange(start, end ByteOffset) string {
	return s.text.Slice(start, end)
}

// Len returns the total byte length of the snapshot.
func (s *Snapshot) Len() ByteOffset {
	return s.text.Len()
}

// LineCount returns the number of lines.
func (s *Snapshot) LineCount() int {
	return s.text.LineCount()
}

// ModSeq returns the modification sequence the snapshot was frozen at.
func (s *Snapshot) ModSeq() ModSeq {
	return s.modSeq
}

// IsEmpty returns true if the snapshot is empty.
func (s *Snapshot) IsEmpty() bool {
	return s.Len() == 0
}
