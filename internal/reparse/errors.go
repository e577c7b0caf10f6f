package reparse

import "errors"

var (
	// ErrPositionCorrupt reports that offsets computed from the tree do not
	// fit the new text. Local reparse must stop and a full parse is forced.
	ErrPositionCorrupt = errors.New("tree positions do not match text")

	// ErrLengthMismatch reports a reparse result whose text length differs
	// from the text it was parsed from.
	ErrLengthMismatch = errors.New("reparsed node length mismatch")
)
