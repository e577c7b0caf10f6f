// Package textdiff computes the changed region between two texts and renders
// text differences for diagnostics.
package textdiff

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Region describes the single contiguous region in which two texts differ.
// Start is shared by both texts; OldEnd and NewEnd are exclusive ends in the
// old and new text respectively.
type Region struct {
	Start  int
	OldEnd int
	NewEnd int
}

// Delta returns the length change (new length - old length).
func (r Region) Delta() int {
	return (r.NewEnd - r.Start) - (r.OldEnd - r.Start)
}

// IsEmpty reports whether the texts are identical.
func (r Region) IsEmpty() bool {
	return r.OldEnd == r.Start && r.NewEnd == r.Start
}

// CommonPrefix returns the length in bytes of the longest common prefix of a
// and b. The result never splits a UTF-8 sequence.
func CommonPrefix(a, b string) int {
	dmp := diffmatchpatch.New()
	n := runesToBytes(a, dmp.DiffCommonPrefix(a, b))
	// Distinct invalid bytes both decode to RuneError; shrink to the byte match.
	for n > 0 && (n > len(b) || a[:n] != b[:n]) {
		_, size := utf8.DecodeLastRuneInString(a[:n])
		n -= size
	}
	return n
}

// CommonSuffix returns the length in bytes of the longest common suffix of a
// and b. The result never splits a UTF-8 sequence.
func CommonSuffix(a, b string) int {
	dmp := diffmatchpatch.New()
	runes := dmp.DiffCommonSuffix(a, b)
	n := len(a) - runesToBytes(a, utf8.RuneCountInString(a)-runes)
	for n > 0 && (n > len(b) || a[len(a)-n:] != b[len(b)-n:]) {
		_, size := utf8.DecodeRuneInString(a[len(a)-n:])
		n -= size
	}
	return n
}

// Changed returns the minimal region covering every difference between
// oldText and newText. The prefix is matched first, so the suffix never
// overlaps it.
func Changed(oldText, newText string) Region {
	prefix := CommonPrefix(oldText, newText)
	suffix := CommonSuffix(oldText[prefix:], newText[prefix:])
	return Region{
		Start:  prefix,
		OldEnd: len(oldText) - suffix,
		NewEnd: len(newText) - suffix,
	}
}

// Describe renders a unified-style patch from oldText to newText, suitable
// for attaching to defect reports.
func Describe(oldText, newText string) string {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(oldText, newText)
	return dmp.PatchToText(patches)
}

// runesToBytes converts a rune count from the start of s into a byte offset.
func runesToBytes(s string, runes int) int {
	if runes <= 0 {
		return 0
	}
	i := 0
	for off := range s {
		if i == runes {
			return off
		}
		i++
	}
	return len(s)
}
