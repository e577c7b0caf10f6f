package backsync

import (
	"errors"
	"fmt"
	"strings"

	ft "github.com/leisure-tools/lazyfingertree"

	"github.com/dshills/treesync/internal/engine/buffer"
)

// ErrRange is returned for edits outside the current text.
var ErrRange = errors.New("backsync: edit out of range")

// run is a stretch of the base text. A retained run keeps its text; an edit
// run replaces old with new.
type run struct {
	old  string
	new  string
	edit bool
}

type runMeasure struct {
	Old int
	New int
}

type runMeasurer bool

type runTree = ft.FingerTree[runMeasurer, run, runMeasure]

func (m runMeasurer) Identity() runMeasure {
	return runMeasure{}
}

func (m runMeasurer) Measure(r run) runMeasure {
	return runMeasure{Old: len(r.old), New: len(r.new)}
}

func (m runMeasurer) Sum(a runMeasure, b runMeasure) runMeasure {
	return runMeasure{Old: a.Old + b.Old, New: a.New + b.New}
}

func newRunTree(runs ...run) runTree {
	return ft.FromArray[runMeasurer, run, runMeasure](runMeasurer(true), runs)
}

// PendingPatch maps ranges of a base text to replacement text. Ranges are
// kept sorted by offset and overlapping or adjacent ranges are merged.
type PendingPatch struct {
	runs runTree
}

// NewPendingPatch returns an empty patch over base.
func NewPendingPatch(base string) *PendingPatch {
	if base == "" {
		return &PendingPatch{runs: newRunTree()}
	}
	return &PendingPatch{runs: newRunTree(run{old: base, new: base})}
}

// Len returns the length of the patched text.
func (p *PendingPatch) Len() int {
	return p.runs.Measure().New
}

// BaseLen returns the length of the base text.
func (p *PendingPatch) BaseLen() int {
	return p.runs.Measure().Old
}

// Text returns the patched text.
func (p *PendingPatch) Text() string {
	var sb strings.Builder
	sb.Grow(p.Len())
	p.runs.Each(func(r run) bool {
		sb.WriteString(r.new)
		return true
	})
	return sb.String()
}

// Replace replaces [start, end) of the patched text with text.
func (p *PendingPatch) Replace(start, end int, text string) error {
	if start < 0 || start > end || end > p.Len() {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrRange, start, end, p.Len())
	}

	left, rest, pre := splitNew(p.runs, start)
	mid, right, head := splitNew(rest, end-start+len(pre))
	post := ""
	if head != "" {
		// The edit straddling end joins the replaced region.
		r := right.PeekFirst()
		right = right.RemoveFirst()
		mid = mid.AddLast(r)
		post = r.new[len(head):]
	}

	var old, repl strings.Builder
	if !left.IsEmpty() && left.PeekLast().edit {
		r := left.PeekLast()
		left = left.RemoveLast()
		old.WriteString(r.old)
		repl.WriteString(r.new)
	}
	mid.Each(func(r run) bool {
		old.WriteString(r.old)
		return true
	})
	repl.WriteString(pre)
	repl.WriteString(text)
	repl.WriteString(post)
	if !right.IsEmpty() && right.PeekFirst().edit {
		r := right.PeekFirst()
		right = right.RemoveFirst()
		old.WriteString(r.old)
		repl.WriteString(r.new)
	}

	if old.Len() > 0 || repl.Len() > 0 {
		left = left.AddLast(run{old: old.String(), new: repl.String(), edit: true})
	}
	p.runs = left.Concat(right)
	return nil
}

// Edits returns the merged replacements in ascending order, in base text
// coordinates. Replacements that restore their original text are dropped.
func (p *PendingPatch) Edits() []buffer.Edit {
	var edits []buffer.Edit
	off := 0
	p.runs.Each(func(r run) bool {
		if r.edit && r.old != r.new {
			edits = append(edits, buffer.NewEdit(buffer.NewRange(off, off+len(r.old)), r.new))
		}
		off += len(r.old)
		return true
	})
	return edits
}

// splitNew splits t at offset off of the patched text. Retained runs are cut
// exactly. An edit run straddling off goes to right whole and head is the part
// of its new text before off.
func splitNew(t runTree, off int) (left, right runTree, head string) {
	left, right = t.Split(func(m runMeasure) bool {
		return m.New > off
	})
	k := off - left.Measure().New
	if k <= 0 {
		return left, right, ""
	}
	first := right.PeekFirst()
	if first.edit {
		return left, right, first.new[:k]
	}
	left = left.AddLast(run{old: first.old[:k], new: first.new[:k]})
	right = right.RemoveFirst().AddFirst(run{old: first.old[k:], new: first.new[k:]})
	return left, right, ""
}
