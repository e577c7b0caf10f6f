package reparse

import (
	"context"
	"fmt"

	"github.com/dshills/treesync/internal/difflog"
	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/syntax"
)

// Outcome is the verdict of Locate.
type Outcome int

const (
	// NoReparse means no node could be reparsed locally; a full parse is
	// needed.
	NoReparse Outcome = iota
	// Reparsed means Old can be replaced by New.
	Reparsed
	// Abort means position bookkeeping found the tree inconsistent with the
	// text. Local reparse must not be attempted again for this commit.
	Abort
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case NoReparse:
		return "none"
	case Reparsed:
		return "reparsed"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Input describes an edit against the committed tree.
type Input struct {
	// Root is the committed tree.
	Root *syntax.Node
	// Start and End bound the changed range in committed coordinates.
	Start, End int
	// NewText is the complete new text.
	NewText string
	// Delta is len(NewText) minus the committed length.
	Delta int
}

// Result is the outcome of Locate.
type Result struct {
	Outcome Outcome
	// Old is the node to replace and New its replacement, held detached.
	Old, New *syntax.Node
	// Defect is set when an internal defect was detected. It wraps
	// ErrPositionCorrupt or ErrLengthMismatch.
	Defect error
}

// Log returns the single-op edit script for a reparsed result, or nil.
func (r Result) Log() *difflog.Log {
	if r.Outcome != Reparsed {
		return nil
	}
	l := difflog.New()
	l.Replace(r.Old, r.New)
	return l
}

// Locator finds the smallest subtree that can be reparsed on its own.
type Locator struct {
	local  *LocalReparser
	logger *logging.Logger
}

// NewLocator creates a locator. A nil logger discards output.
func NewLocator(logger *logging.Logger) *Locator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Locator{
		local:  NewLocalReparser(logger),
		logger: logger.WithComponent("reparse"),
	}
}

// Locate tries to repair the tree for the edit described by in. The only
// error returned is the context error when ctx is done.
func (l *Locator) Locate(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	root := in.Root
	if root == nil || in.Start < 0 || in.End < in.Start || in.End > root.Len() ||
		root.Len()+in.Delta != len(in.NewText) {
		return abort("edit [%d,%d) delta %d against tree of length %d and text of length %d",
			in.Start, in.End, in.Delta, lenOf(root), len(in.NewText)), nil
	}

	var prev, next *syntax.Node
	if in.Start > 0 {
		prev = syntax.LeafAt(root, in.Start-1)
	}
	if in.End < root.Len() {
		next = syntax.LeafAt(root, in.End)
	}

	// A single token that grows or shrinks at its edge is re-lexed alone.
	if prev != nil && prev.Type().LeafReparseable && prev.Type().CanReparse() {
		if s, e := prev.Range(); e == in.End {
			if r, done, err := l.attempt(ctx, prev, s, e, in); done || err != nil {
				return r, err
			}
		}
	}
	if next != nil && next.Type().LeafReparseable && next.Type().CanReparse() {
		if s, e := next.Range(); s == in.Start {
			if r, done, err := l.attempt(ctx, next, s, e, in); done || err != nil {
				return r, err
			}
		}
	}

	var cand *syntax.Node
	switch {
	case prev != nil && next != nil:
		cand = syntax.CommonAncestor(prev, next)
	case prev != nil:
		cand = prev
	default:
		cand = next
	}

	for n := cand; n != nil; n = n.Parent() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if n == root || n.TooDeep() {
			break
		}
		if !qualifies(n, in.Delta) {
			continue
		}
		s, e := n.Range()
		if s > in.Start || e < in.End {
			continue
		}
		r, done, err := l.attempt(ctx, n, s, e, in)
		if done || err != nil {
			return r, err
		}
	}
	return Result{Outcome: NoReparse}, nil
}

// qualifies reports whether n may be reparsed locally at all.
func qualifies(n *syntax.Node, delta int) bool {
	t := n.Type()
	if !t.CanReparse() {
		return false
	}
	if n.Len()+delta <= 0 {
		return false
	}
	// Reparsing across a language boundary is never local.
	if !t.LeafReparseable && syntax.ContainsForeign(n) {
		return false
	}
	return true
}

// attempt reparses n, whose committed range is [s, e). done is false when n
// declined and the walk may continue.
func (l *Locator) attempt(ctx context.Context, n *syntax.Node, s, e int, in Input) (Result, bool, error) {
	newEnd := e + in.Delta
	if newEnd > len(in.NewText) || newEnd < s {
		r := abort("%s at [%d,%d) maps to [%d,%d) in text of length %d",
			n, s, e, s, newEnd, len(in.NewText))
		return r, true, nil
	}
	if newEnd == s {
		return Result{}, false, nil
	}
	text := in.NewText[s:newEnd]
	if !n.Type().Reparser.IsReparseable(ctx, n, text, in.NewText[newEnd:]) {
		l.logger.Debug("%s declined %d bytes", n, len(text))
		return Result{}, false, nil
	}

	repl, err := l.local.Reparse(ctx, n, text)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, true, ctx.Err()
		}
		// A rejected or defective reparse ends local repair for this edit.
		return Result{Outcome: NoReparse, Defect: defectOf(err)}, true, nil
	}
	if repl == nil {
		return Result{Outcome: NoReparse}, true, nil
	}
	return Result{Outcome: Reparsed, Old: n, New: repl}, true, nil
}

func abort(format string, args ...any) Result {
	return Result{
		Outcome: Abort,
		Defect:  fmt.Errorf("%w: %s", ErrPositionCorrupt, fmt.Sprintf(format, args...)),
	}
}

func defectOf(err error) error {
	if isDefect(err) {
		return err
	}
	return nil
}

func lenOf(n *syntax.Node) int {
	if n == nil {
		return 0
	}
	return n.Len()
}
