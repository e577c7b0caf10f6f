package backsync

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dshills/treesync/internal/engine/buffer"
	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/syntax"
)

// ErrClosed is returned when a closed session is used.
var ErrClosed = errors.New("backsync: session closed")

// Session collects the text edits made by tree-side changes against a base
// snapshot and writes them to the buffer when closed.
type Session struct {
	mu     sync.Mutex
	base   *buffer.Snapshot
	patch  *PendingPatch
	text   string
	logger *logging.Logger
	closed bool
}

// NewSession opens a session over base, the text the tree currently spans.
func NewSession(base *buffer.Snapshot, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	text := base.Text()
	return &Session{
		base:   base,
		patch:  NewPendingPatch(text),
		text:   text,
		logger: logger.WithComponent("backsync"),
	}
}

// Base returns the snapshot the session started from.
func (s *Session) Base() *buffer.Snapshot { return s.base }

// Text returns the tree text with every recorded edit applied.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Minimize returns the minimal form of e against the current text. With a
// non-nil root, which must span the current text, the result is widened to
// token boundaries.
func (s *Session) Minimize(e Edit, root *syntax.Node) (Edit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(e); err != nil {
		return Edit{}, err
	}
	m := Minimize(s.text, e)
	if root != nil {
		m = SnapToTokens(root, s.text, m)
	}
	return m, nil
}

// Add records e exactly as given.
func (s *Session) Add(e Edit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(e); err != nil {
		return err
	}
	if e.Start == e.End && e.Text == "" {
		return nil
	}
	if err := s.patch.Replace(e.Start, e.End, e.Text); err != nil {
		return err
	}
	s.text = s.text[:e.Start] + e.Text + s.text[e.End:]
	s.logger.Debug("recorded [%d, %d) -> %q", e.Start, e.End, e.Text)
	return nil
}

// Record minimizes e and records the result.
func (s *Session) Record(e Edit, root *syntax.Node) (Edit, error) {
	m, err := s.Minimize(e, root)
	if err != nil {
		return Edit{}, err
	}
	return m, s.Add(m)
}

// Edits returns the pending edits in ascending order, in base coordinates.
func (s *Session) Edits() []buffer.Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patch.Edits()
}

// Close writes the pending edits to buf in descending offset order and
// returns the buffer frozen right after them, or the base snapshot when there
// was nothing to write. It fails with buffer.ErrModified when buf has changed
// since the base snapshot, in which case nothing is written.
func (s *Session) Close(buf *buffer.Buffer) (*buffer.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.closed = true

	edits := s.patch.Edits()
	if len(edits) == 0 {
		return s.base, nil
	}
	slices.Reverse(edits)
	snap, err := buf.ApplyEditsAt(s.base.ModSeq(), edits)
	if err != nil {
		return nil, fmt.Errorf("applying %d tree edits: %w", len(edits), err)
	}
	s.logger.Debug("applied %d tree edits at %s", len(edits), s.base.ModSeq())
	return snap, nil
}

func (s *Session) check(e Edit) error {
	if s.closed {
		return ErrClosed
	}
	if e.Start < 0 || e.Start > e.End || e.End > len(s.text) {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrRange, e.Start, e.End, len(s.text))
	}
	return nil
}
