// Package rope provides the immutable text store behind buffers and their
// snapshots.
//
// A rope is a tree whose leaves hold bounded text chunks and whose nodes carry
// the byte and newline totals of their subtree. Summaries are computed when a
// node is built and nodes are never modified afterwards, so a Rope value is a
// snapshot: copying it is free and any number of goroutines may read it while
// another goroutine derives new ropes from it.
//
// Basic usage:
//
//	r := rope.FromString("{ foo(); }", 0)
//	r2 := r.Replace(8, 8, "bar();")  // "{ foo();bar(); }"
//	r.String()                        // "{ foo(); }"
//	r2.Slice(2, 8)                    // "foo();"
//
// Edits split the tree at the edit bounds and join the pieces, sharing every
// untouched node with the rope they came from. A rope whose tree has become
// deep or fragmented after many small edits is rebuilt from its chunks.
package rope
