package engine

import (
	"context"
	"fmt"

	"github.com/dshills/treesync/internal/backsync"
	"github.com/dshills/treesync/internal/difflog"
	"github.com/dshills/treesync/internal/engine/buffer"
	"github.com/dshills/treesync/internal/event"
	"github.com/dshills/treesync/internal/syntax"
)

// TreeTx edits the committed tree of a document directly. Every structural
// change is mirrored into a pending text patch, which is written to the buffer
// when the transaction ends.
//
// A TreeTx is only valid inside the function passed to EditTree.
type TreeTx struct {
	root    *syntax.Node
	session *backsync.Session
	sink    *event.TreeSink
	done    bool
}

// EditTree runs fn with exclusive write access to the tree of doc. Any
// uncommitted buffer edits are committed first. When fn returns, the text of
// the edited tree is written back to the buffer as a minimal set of edits and
// the tree becomes the committed state for the new buffer text.
//
// If the buffer was changed by someone else in the meantime the tree edits
// are discarded: the tree is rebuilt from the buffer by a forced full reparse
// and buffer.ErrModified is returned.
//
// fn holds the write context and must not call EditTree or CommitNow.
func (e *Engine) EditTree(ctx context.Context, doc *Document, fn func(tx *TreeTx) error) error {
	if _, err := e.CommitNow(ctx, doc); err != nil {
		return fmt.Errorf("committing before tree edit: %w", err)
	}
	e.scheduler.CancelAll(doc)

	e.write.Lock()
	defer e.write.Unlock()

	// Commits apply only under e.write, so the baseline cannot move until
	// the transaction is done.
	base := doc.Committed()
	log := e.logger.WithField("doc", doc.Name())
	tx := &TreeTx{session: backsync.NewSession(base, log)}

	err := doc.Transact(func(root *syntax.Node) error {
		tx.root = root
		tx.sink = event.NewTreeSink(ctx, e.bus, doc.ID(), root)
		defer func() { tx.done = true }()
		return fn(tx)
	}, func() (*buffer.Snapshot, error) {
		return tx.session.Close(doc.Buffer())
	})
	if err != nil && doc.ForceFullReparse() {
		log.Warn("tree edit discarded: %v", err)
		if rerr := e.scheduler.RequestCommit(doc, "tree-conflict"); rerr != nil {
			log.Debug("rebuild not scheduled: %v", rerr)
		}
	}
	return err
}

// Root returns the root of the tree being edited.
func (tx *TreeTx) Root() *syntax.Node { return tx.root }

// Text returns the text of the tree as edited so far.
func (tx *TreeTx) Text() string { return tx.session.Text() }

// Replace swaps old for replacement, which must be detached.
func (tx *TreeTx) Replace(old, replacement *syntax.Node) error {
	if err := tx.checkMember(old); err != nil {
		return err
	}
	if err := tx.checkDetached(replacement); err != nil {
		return err
	}
	return tx.replace(old, replacement, tx.root)
}

// ReplaceText replaces the text of a leaf. The leaf is swapped for a new leaf
// of the same type, which is returned.
func (tx *TreeTx) ReplaceText(leaf *syntax.Node, text string) (*syntax.Node, error) {
	if err := tx.checkMember(leaf); err != nil {
		return nil, err
	}
	if !leaf.IsLeaf() {
		return nil, ErrNotLeaf
	}
	replacement := syntax.NewLeaf(leaf.Type(), text)
	if err := tx.replace(leaf, replacement, nil); err != nil {
		return nil, err
	}
	return replacement, nil
}

// Insert inserts node as the child of parent at index.
func (tx *TreeTx) Insert(parent, node *syntax.Node, index int) error {
	if err := tx.check(parent); err != nil {
		return err
	}
	if err := tx.checkDetached(node); err != nil {
		return err
	}
	if parent.IsLeaf() {
		return syntax.ErrLeafParent
	}
	if index < 0 || index > parent.ChildCount() {
		return fmt.Errorf("insert at %d of %d: %w", index, parent.ChildCount(), ErrIndexOutOfRange)
	}

	var off int
	if c := parent.ChildAt(index); c != nil {
		off = c.StartOffset()
	} else {
		_, off = parent.Range()
	}
	edit, err := tx.session.Minimize(backsync.Edit{Start: off, End: off, Text: node.Text()}, tx.root)
	if err != nil {
		return err
	}
	log := difflog.New()
	log.Insert(parent, node, index)
	return tx.apply(log, edit)
}

// Delete removes node from the tree.
func (tx *TreeTx) Delete(node *syntax.Node) error {
	if err := tx.checkMember(node); err != nil {
		return err
	}
	start, end := node.Range()
	edit, err := tx.session.Minimize(backsync.Edit{Start: start, End: end}, tx.root)
	if err != nil {
		return err
	}
	log := difflog.New()
	log.Delete(node.Parent(), node)
	return tx.apply(log, edit)
}

// replace records the text change before mutating, while the tree still spans
// the session text. snap, when non-nil, widens the edit to whole tokens.
func (tx *TreeTx) replace(old, replacement, snap *syntax.Node) error {
	start, end := old.Range()
	edit, err := tx.session.Minimize(backsync.Edit{Start: start, End: end, Text: replacement.Text()}, snap)
	if err != nil {
		return err
	}
	log := difflog.New()
	log.Replace(old, replacement)
	return tx.apply(log, edit)
}

func (tx *TreeTx) apply(log *difflog.Log, edit backsync.Edit) error {
	if err := log.Apply(tx.sink, tx.sink); err != nil {
		return err
	}
	return tx.session.Add(edit)
}

func (tx *TreeTx) check(n *syntax.Node) error {
	if tx.done {
		return ErrTxDone
	}
	if n == nil || !n.Valid() || n.Root() != tx.root {
		return ErrNotInTree
	}
	return nil
}

// checkMember accepts any node of the tree except the root.
func (tx *TreeTx) checkMember(n *syntax.Node) error {
	if err := tx.check(n); err != nil {
		return err
	}
	if n == tx.root {
		return ErrRootNode
	}
	return nil
}

func (tx *TreeTx) checkDetached(n *syntax.Node) error {
	if tx.done {
		return ErrTxDone
	}
	if n == nil || !n.Valid() {
		return syntax.ErrInvalidNode
	}
	if n.Parent() != nil || n == tx.root {
		return ErrAttached
	}
	return nil
}
