// Package backsync turns edits made to a syntax tree back into text edits.
//
// A Session is opened over the snapshot the tree currently spans. Each tree
// edit is recorded as a text replacement in the coordinates of the text as it
// stands after the previous edits:
//
//	s := backsync.NewSession(buf.Freeze(), logger)
//	s.Record(backsync.Edit{Start: 3, End: 6, Text: "XY Z"}, nil)
//	s.Close(buf) // one insertion of " " at offset 5
//
// Recorded edits are first minimized: text the edit leaves unchanged is
// trimmed from both ends, cuts never split a grapheme cluster and pure
// deletions over several lines are moved to line boundaries. When the tree
// is supplied, the result is widened to the tokens it touches.
//
// Edits are kept in a PendingPatch, a persistent sequence of retained and
// replaced runs of the base text in which overlapping and adjacent edits
// merge. Closing the session applies the merged edits to the buffer in
// descending offset order, only if the buffer still matches the base.
package backsync
