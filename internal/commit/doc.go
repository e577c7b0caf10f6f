// Package commit reconciles a document's syntax tree with its text buffer.
//
// A commit compares the buffer against the last committed snapshot, tries a
// local reparse of the smallest eligible subtree, falls back to a full parse
// and tree diff, and applies the resulting edit script to the live tree.
//
// # Phases
//
// Computing the edit script runs in the background under the document's read
// lock and can be canceled at any point. Applying it runs under the document's
// write lock, after the result has been checked against the buffer's current
// modification sequence. A result computed for text that has since changed is
// discarded and the commit is redone.
//
// # Scheduling
//
// Each document has one actor goroutine. RequestCommit cancels any queued or
// running task for the document and enqueues a fresh one; CommitNow commits
// synchronously on the caller's goroutine.
//
// # Repairs
//
// A failed apply rebuilds the tree from scratch. A committed tree whose text
// does not match the buffer is repaired with a forced full reparse; a second
// mismatch is reported as unrecoverable.
//
// # Events
//
// tree.* events are published while the document is locked, so their
// handlers must not read the document. document.* events are published after
// the locks are released.
package commit
