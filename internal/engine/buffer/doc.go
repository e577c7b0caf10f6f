// Package buffer provides the versioned text buffer that syntax trees are
// synchronized against.
//
// The buffer package provides:
//
//   - Thread-safe read/write access via sync.RWMutex
//   - An immutable rope as storage, so freezing is O(1)
//   - A per-buffer modification sequence that increases with every edit
//   - Immutable snapshots used as the "last committed" baseline
//   - Raw edit events delivered to listeners after each mutation
//
// Basic usage:
//
//	buf := buffer.NewBufferFromString("{ foo(); }")
//
//	// Freeze the current content before editing
//	base := buf.Freeze()
//
//	buf.Insert(8, "bar();") // "{ foo();bar(); }"
//
//	base.Text()      // "{ foo(); }"
//	buf.ModSeq() > base.ModSeq()
//
// Listeners observe every edit together with the snapshot taken just before
// it was applied:
//
//	buf.AddListener(func(c buffer.Change) {
//	    log.Printf("%s at seq %d", c.Edit(), c.ModSeq)
//	})
//
// Thread Safety:
//
// All Buffer methods are thread-safe. Read operations acquire a read lock,
// while write operations acquire an exclusive write lock. Listeners run after
// the lock is released, in the goroutine that performed the edit.
package buffer
