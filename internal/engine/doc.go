// Package engine is the treesync facade. It keeps the syntax tree of every
// open document consistent with the document's text buffer, in both
// directions.
//
// # Architecture
//
// The engine is built on several packages:
//
//   - buffer: text storage with modification sequences and snapshots
//   - commit: documents, the commit pipeline and the per-document scheduler
//   - treediff: edit scripts between an old tree and a reparsed one
//   - reparse: in-place reparsing of the smallest enclosing subtree
//   - backsync: minimal text patches for edits made to the tree
//   - event: tree and document notifications
//   - config: TOML configuration with hot reload
//
// # Text to tree
//
// Buffer edits are recorded per document. A commit computes an edit script
// for the new text in the background and applies it under the engine's
// write context, provided the buffer has not moved on in the meantime.
// With auto_commit enabled every edit requests a commit:
//
//	e, _ := engine.New(brace.NewParser())
//	defer e.Stop()
//
//	doc, _ := e.Open(ctx, "main.br", "{ foo(); }")
//	e.Edit(doc, 8, 8, "bar();")
//	e.WaitIdle(ctx, doc)
//
// CommitNow commits synchronously on the calling goroutine.
//
// # Tree to text
//
// EditTree hands out a TreeTx that mutates the committed tree. Each change
// is recorded as a minimal text edit, and the edits are written to the
// buffer together when the transaction ends:
//
//	err := e.EditTree(ctx, doc, func(tx *engine.TreeTx) error {
//		leaf := syntax.LeafAt(tx.Root(), 2)
//		_, err := tx.ReplaceText(leaf, "baz")
//		return err
//	})
//
// # Thread Safety
//
// All Engine operations are thread-safe. Only one tree mutation, a commit
// being applied or a tree transaction, runs at any time across all
// documents.
package engine
