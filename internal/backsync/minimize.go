package backsync

import (
	"strings"

	"github.com/rivo/uniseg"

	"github.com/dshills/treesync/internal/engine/textdiff"
	"github.com/dshills/treesync/internal/syntax"
)

// Edit replaces [Start, End) of a text with Text.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Minimize trims the text an edit leaves unchanged from both of its ends. The
// trimmed edit never splits a grapheme cluster of either the old or the new
// text, and a pure deletion spanning lines is moved to line boundaries when
// an equivalent deletion starts there.
func Minimize(text string, e Edit) Edit {
	old := text[e.Start:e.End]
	prefix := textdiff.CommonPrefix(old, e.Text)
	suffix := textdiff.CommonSuffix(old[prefix:], e.Text[prefix:])

	for {
		p := min(graphemeFloor(old, prefix), graphemeFloor(e.Text, prefix))
		if p == prefix {
			break
		}
		prefix = p
	}
	for {
		s := min(len(old)-graphemeCeil(old, len(old)-suffix), len(e.Text)-graphemeCeil(e.Text, len(e.Text)-suffix))
		if s == suffix {
			break
		}
		suffix = s
	}

	m := Edit{
		Start: e.Start + prefix,
		End:   e.End - suffix,
		Text:  e.Text[prefix : len(e.Text)-suffix],
	}
	if m.Text == "" && strings.Contains(text[m.Start:m.End], "\n") {
		m = snapDeletion(text, m)
	}
	return m
}

// snapDeletion slides a deletion over runs of equal text and prefers the
// position that removes whole lines, then one that starts a line.
func snapDeletion(text string, e Edit) Edit {
	lo, hi := e, e
	for lo.Start > 0 && text[lo.Start-1] == text[lo.End-1] {
		lo.Start--
		lo.End--
	}
	for hi.End < len(text) && text[hi.Start] == text[hi.End] {
		hi.Start++
		hi.End++
	}

	lineStart := func(i int) bool { return i == 0 || text[i-1] == '\n' }
	width := e.End - e.Start
	for s := lo.Start; s <= hi.Start; s++ {
		if lineStart(s) && lineStart(s+width) {
			return Edit{Start: s, End: s + width}
		}
	}
	for s := lo.Start; s <= hi.Start; s++ {
		if lineStart(s) {
			return Edit{Start: s, End: s + width}
		}
	}
	return e
}

// SnapToTokens widens e outward to the boundaries of the leaves of root it
// touches, so that no token is left partially edited. root must span text.
func SnapToTokens(root *syntax.Node, text string, e Edit) Edit {
	if root == nil || root.Len() != len(text) || root.Len() == 0 {
		return e
	}
	start, end := e.Start, e.End
	if first := syntax.LeafAt(root, e.Start); first != nil {
		ls, le := first.Range()
		if e.Start < e.End || (ls < e.Start && e.Start < le) {
			start = ls
		}
		if e.Start == e.End && ls < e.Start && e.Start < le {
			end = le
		}
	}
	if e.Start < e.End {
		if last := syntax.LeafAt(root, e.End-1); last != nil {
			_, le := last.Range()
			end = max(end, le)
		}
	}
	return Edit{
		Start: start,
		End:   end,
		Text:  text[start:e.Start] + e.Text + text[e.End:end],
	}
}

// graphemeFloor returns the last grapheme cluster boundary of s at or before i.
func graphemeFloor(s string, i int) int {
	if i <= 0 || i >= len(s) {
		return min(max(i, 0), len(s))
	}
	g := uniseg.NewGraphemes(s)
	last := 0
	for g.Next() {
		from, to := g.Positions()
		if to > i {
			return from
		}
		last = to
	}
	return last
}

// graphemeCeil returns the first grapheme cluster boundary of s at or after i.
func graphemeCeil(s string, i int) int {
	if i <= 0 || i >= len(s) {
		return min(max(i, 0), len(s))
	}
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		if _, to := g.Positions(); to >= i {
			return to
		}
	}
	return len(s)
}
