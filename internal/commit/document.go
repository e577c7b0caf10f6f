package commit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/treesync/internal/engine/buffer"
	"github.com/dshills/treesync/internal/syntax"
)

// Document pairs a text buffer with the syntax tree committed for it.
type Document struct {
	id     string
	name   string
	buf    *buffer.Buffer
	parser syntax.Parser

	// mu guards the tree and the committed snapshot. Background computation
	// holds it shared; apply holds it exclusively.
	mu        sync.RWMutex
	root      *syntax.Node
	committed *buffer.Snapshot

	umu         sync.Mutex
	uncommitted *UncommittedInfo

	forceFull  atomic.Bool
	lastDefect atomic.Pointer[DefectError]

	removeListener func()
	closed         atomic.Bool
}

// NewDocument parses the buffer and commits the result as the initial tree.
func NewDocument(ctx context.Context, name string, buf *buffer.Buffer, parser syntax.Parser) (*Document, error) {
	snap := buf.Freeze()
	root, err := parser.Parse(ctx, snap.Text())
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	if root.Len() != snap.Len() {
		return nil, fmt.Errorf("parsing %s: tree covers %d bytes of %d", name, root.Len(), snap.Len())
	}

	d := &Document{
		id:        uuid.NewString(),
		name:      name,
		buf:       buf,
		parser:    parser,
		root:      root,
		committed: snap,
	}
	d.removeListener = buf.AddListener(d.recordChange)
	return d, nil
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Name returns the display name.
func (d *Document) Name() string { return d.name }

// Buffer returns the live text buffer.
func (d *Document) Buffer() *buffer.Buffer { return d.buf }

// Parser returns the parser used for full parses.
func (d *Document) Parser() syntax.Parser { return d.parser }

// Root returns the committed tree. The tree must not be mutated outside a
// commit or a tree transaction.
func (d *Document) Root() *syntax.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root
}

// Committed returns the snapshot the tree was last committed against.
func (d *Document) Committed() *buffer.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.committed
}

// IsCommitted reports whether the tree reflects the buffer's current text.
func (d *Document) IsCommitted() bool {
	return d.Committed().ModSeq() == d.buf.ModSeq()
}

// Uncommitted returns the edits made since the last commit, or nil when
// there are none.
func (d *Document) Uncommitted() *UncommittedInfo {
	d.umu.Lock()
	defer d.umu.Unlock()
	if d.uncommitted == nil {
		return nil
	}
	return d.uncommitted.clone()
}

// MarkForceFullReparse makes the next commit replace the whole tree. The flag
// is cleared once such a commit has been applied.
func (d *Document) MarkForceFullReparse() {
	d.forceFull.Store(true)
}

// ForceFullReparse reports whether the next commit replaces the whole tree.
func (d *Document) ForceFullReparse() bool {
	return d.forceFull.Load()
}

// LastDefect returns the most recent internal defect, or nil.
func (d *Document) LastDefect() *DefectError {
	return d.lastDefect.Load()
}

// Mutate runs fn with exclusive access to the committed tree.
func (d *Document) Mutate(fn func(root *syntax.Node) error) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.root)
}

// Transact runs fn with exclusive access to the committed tree, then calls
// publish to write the tree's changes to the buffer. The baseline advances to
// the snapshot publish returns when the tree spans exactly its text;
// otherwise the next commit reparses in full. publish runs even when fn
// fails, since fn may have changed the tree before failing.
func (d *Document) Transact(fn func(root *syntax.Node) error, publish func() (*buffer.Snapshot, error)) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ferr := fn(d.root)
	snap, perr := publish()
	if perr == nil && d.root.Text() == snap.Text() {
		d.setCommittedLocked(snap)
	} else {
		d.forceFull.Store(true)
	}
	return errors.Join(ferr, perr)
}

// AdvanceBaseline commits snap without reparsing when the tree text already
// equals it. It reports whether the baseline moved.
func (d *Document) AdvanceBaseline(snap *buffer.Snapshot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root.Text() != snap.Text() {
		return false
	}
	d.setCommittedLocked(snap)
	return true
}

// Close stops change tracking.
func (d *Document) Close() {
	if d.closed.Swap(true) {
		return
	}
	d.removeListener()
}

func (d *Document) recordChange(c buffer.Change) {
	d.umu.Lock()
	defer d.umu.Unlock()
	if d.uncommitted == nil {
		d.uncommitted = &UncommittedInfo{base: c.Before}
	}
	d.uncommitted.changes = append(d.uncommitted.changes, c)
}

// setCommittedLocked moves the baseline to snap and drops the edits it
// covers. d.mu must be held exclusively.
func (d *Document) setCommittedLocked(snap *buffer.Snapshot) {
	d.committed = snap

	d.umu.Lock()
	defer d.umu.Unlock()
	if d.uncommitted == nil {
		return
	}
	d.uncommitted = d.uncommitted.since(snap)
}

// replaceRootLocked discards the current tree in favor of root.
func (d *Document) replaceRootLocked(root *syntax.Node) {
	old := d.root
	d.root = root
	if old != nil && old != root {
		syntax.Invalidate(old)
	}
}
