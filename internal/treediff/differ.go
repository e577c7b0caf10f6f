// Package treediff computes the edit script that turns a committed tree into
// the tree of a freshly parsed text.
//
// The comparison is shallow and level by level: the children of two matched
// parents are aligned by their comparator keys, unmatched children become
// inserts and deletes, and matched children are either kept, replaced or
// descended into. Nodes that survive the alignment keep their identity.
package treediff

import (
	"context"
	"sync/atomic"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dshills/treesync/internal/difflog"
	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/syntax"
)

// DefaultMaxDepth is the tree depth above which the whole root is replaced
// instead of diffed.
const DefaultMaxDepth = 256

// Preparer is implemented by parsers that can hand back an edit script they
// prepared while parsing. When Prepared returns true the computed diff is
// abandoned in favor of that script.
type Preparer interface {
	Prepared(ctx context.Context, oldRoot *syntax.Node, text string) (*difflog.Log, bool)
}

// Options configures a Differencer.
type Options struct {
	// MaxDepth is the depth safety valve. Zero uses DefaultMaxDepth and a
	// negative value disables it.
	MaxDepth int
	// Comparator defaults to DefaultComparator.
	Comparator Comparator
	// Logger defaults to a discarding logger.
	Logger *logging.Logger
}

// Differencer parses new text and diffs the result against the old tree.
type Differencer struct {
	parser   syntax.Parser
	cmp      Comparator
	maxDepth atomic.Int64
	logger   *logging.Logger
}

// New creates a Differencer.
func New(parser syntax.Parser, opts Options) *Differencer {
	d := &Differencer{
		parser: parser,
		cmp:    opts.Comparator,
		logger: opts.Logger,
	}
	if d.cmp == nil {
		d.cmp = DefaultComparator{}
	}
	if d.logger == nil {
		d.logger = logging.Nop()
	}
	d.logger = d.logger.WithComponent("treediff")
	d.SetMaxDepth(opts.MaxDepth)
	return d
}

// SetMaxDepth changes the depth safety valve. It is safe to call while diffs
// are running.
func (d *Differencer) SetMaxDepth(n int) {
	if n == 0 {
		n = DefaultMaxDepth
	}
	d.maxDepth.Store(int64(n))
}

// MaxDepth returns the depth safety valve, or a negative value if disabled.
func (d *Differencer) MaxDepth() int {
	return int(d.maxDepth.Load())
}

// Parser returns the parser used for full parses.
func (d *Differencer) Parser() syntax.Parser {
	return d.parser
}

// Diff parses newText and returns the script that turns oldRoot into the new
// tree. With force set, or when the new tree is deeper than the safety
// valve, the script is a single ReplaceWhole. The walk checks ctx at every
// level and returns ctx.Err() once it is done.
func (d *Differencer) Diff(ctx context.Context, oldRoot *syntax.Node, newText string, force bool) (difflog.Result, error) {
	if err := ctx.Err(); err != nil {
		return difflog.Result{}, err
	}
	if p, ok := d.parser.(Preparer); ok {
		if log, ok := p.Prepared(ctx, oldRoot, newText); ok && log != nil {
			d.logger.Debug("parser supplied a prepared script of %d ops", log.Len())
			return difflog.Result{Log: log, Superseded: true}, nil
		}
	}

	newRoot, err := d.parser.Parse(ctx, newText)
	if err != nil {
		return difflog.Result{}, err
	}

	log := difflog.New()
	if limit := d.MaxDepth(); force || (limit > 0 && syntax.Depth(newRoot) > limit) {
		if limit > 0 {
			if n := syntax.MarkDeeperThan(newRoot, limit); n > 0 {
				d.logger.Debug("marked %d nodes deeper than %d", n, limit)
			}
		}
		log.ReplaceWhole(oldRoot, newRoot)
		return difflog.Result{Log: log}, nil
	}

	w := &walker{ctx: ctx, cmp: d.cmp, log: log}
	retained, err := w.children(oldRoot, newRoot)
	if err != nil {
		return difflog.Result{}, err
	}
	if retained == 0 && !log.IsEmpty() {
		// Nothing at the top level survived; swap the root contents wholesale.
		log = difflog.New()
		log.ReplaceWhole(oldRoot, newRoot)
	}
	d.logger.Debug("diff produced %d ops", log.Len())
	return difflog.Result{Log: log}, nil
}

type walker struct {
	ctx context.Context
	cmp Comparator
	log *difflog.Log
}

// children aligns the children of oldParent and newParent and records the ops
// for them. It returns the number of old children kept in place.
func (w *walker) children(oldParent, newParent *syntax.Node) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}
	oldKids := oldParent.Children()
	newKids := newParent.Children()

	keys := newKeyRunes()
	oldRunes := make([]rune, len(oldKids))
	for i, n := range oldKids {
		oldRunes[i] = keys.rune(w.cmp.Key(n))
	}
	newRunes := make([]rune, len(newKids))
	for i, n := range newKids {
		newRunes[i] = keys.rune(w.cmp.Key(n))
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(oldRunes, newRunes, false)

	// pos is the index in oldParent's child list as it will be when the
	// next op for this level runs.
	oi, ni, pos, retained := 0, 0, 0, 0
	for _, df := range diffs {
		count := 0
		for range df.Text {
			count++
		}
		switch df.Type {
		case diffmatchpatch.DiffEqual:
			for range count {
				kept, err := w.match(oldKids[oi], newKids[ni])
				if err != nil {
					return 0, err
				}
				if kept {
					retained++
				}
				oi++
				ni++
				pos++
			}
		case diffmatchpatch.DiffDelete:
			for range count {
				w.log.Delete(oldParent, oldKids[oi])
				oi++
			}
		case diffmatchpatch.DiffInsert:
			for range count {
				w.log.Insert(oldParent, newKids[ni], pos)
				ni++
				pos++
			}
		}
	}
	return retained, nil
}

// match records the ops for an aligned pair and reports whether the old node
// keeps its identity.
func (w *walker) match(old, replacement *syntax.Node) (bool, error) {
	if old.Type() != replacement.Type() || old.IsLeaf() != replacement.IsLeaf() {
		w.log.Replace(old, replacement)
		return false, nil
	}
	if sameText(old, replacement) {
		if old.IsLeaf() || sameShape(old, replacement) {
			return true, nil
		}
	}
	if old.IsLeaf() || !w.cmp.Descend(old, replacement) {
		w.log.Replace(old, replacement)
		return false, nil
	}
	if _, err := w.children(old, replacement); err != nil {
		return false, err
	}
	return true, nil
}

// sameShape reports whether two trees with equal text also have the same
// structure, so no ops are needed.
func sameShape(a, b *syntax.Node) bool {
	if a.Type() != b.Type() || a.ChildCount() != b.ChildCount() {
		return false
	}
	if a.IsLeaf() {
		return a.LeafText() == b.LeafText()
	}
	for x, y := a.FirstChild(), b.FirstChild(); x != nil; x, y = x.NextSibling(), y.NextSibling() {
		if !sameShape(x, y) {
			return false
		}
	}
	return true
}
