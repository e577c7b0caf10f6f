package commit

import (
	"github.com/dshills/treesync/internal/engine/buffer"
)

// UncommittedInfo describes the edits made to a buffer since its last
// commit. It lets readers ask what changed without racing the live buffer.
type UncommittedInfo struct {
	base    *buffer.Snapshot
	changes []buffer.Change
}

// Base returns the buffer as it was frozen before the first uncommitted edit.
func (u *UncommittedInfo) Base() *buffer.Snapshot { return u.base }

// Changes returns the raw edits in the order they were made.
func (u *UncommittedInfo) Changes() []buffer.Change {
	out := make([]buffer.Change, len(u.changes))
	copy(out, u.changes)
	return out
}

// Len returns the number of uncommitted edits.
func (u *UncommittedInfo) Len() int { return len(u.changes) }

// ChangedRange returns the smallest range of the base text touched by the
// uncommitted edits and the length the range has now.
func (u *UncommittedInfo) ChangedRange() (r buffer.Range, newLen int) {
	if len(u.changes) == 0 {
		return buffer.Range{}, 0
	}
	// start and end bound the dirty region in current coordinates. Text
	// after end is unchanged and shifted by delta.
	first := u.changes[0]
	start, end := first.Range.Start, first.Range.Start+len(first.NewText)
	delta := first.Edit().Delta()
	for _, c := range u.changes[1:] {
		if c.Range.End <= end {
			end += c.Edit().Delta()
		} else {
			end = c.Range.Start + len(c.NewText)
		}
		start = min(start, c.Range.Start)
		delta += c.Edit().Delta()
	}
	return buffer.Range{Start: start, End: end - delta}, end - start
}

func (u *UncommittedInfo) clone() *UncommittedInfo {
	return &UncommittedInfo{base: u.base, changes: u.Changes()}
}

// since drops the edits already reflected in snap.
func (u *UncommittedInfo) since(snap *buffer.Snapshot) *UncommittedInfo {
	i := 0
	for i < len(u.changes) && u.changes[i].ModSeq <= snap.ModSeq() {
		i++
	}
	if i == len(u.changes) {
		return nil
	}
	return &UncommittedInfo{base: snap, changes: append([]buffer.Change(nil), u.changes[i:]...)}
}
