package treediff

import (
	"unicode/utf8"

	"github.com/dshills/treesync/internal/syntax"
)

// Comparator is the language hook for the shallow comparison.
type Comparator interface {
	// Key returns the alignment key of a node. Only nodes with equal keys
	// are matched against each other.
	Key(n *syntax.Node) string

	// Descend reports whether two matched composites whose texts differ
	// should be diffed child by child. Returning false replaces old with
	// replacement as a whole.
	Descend(old, replacement *syntax.Node) bool
}

// DefaultComparator matches nodes by language and type name and always
// descends into matched composites.
type DefaultComparator struct{}

// Key implements Comparator.
func (DefaultComparator) Key(n *syntax.Node) string {
	t := n.Type()
	return string(t.Language) + "/" + t.Name
}

// Descend implements Comparator.
func (DefaultComparator) Descend(_, _ *syntax.Node) bool {
	return true
}

// keyRunes assigns one rune per distinct key so child lists can be aligned by
// a character diff. Surrogate code points are skipped because they do not
// survive conversion to a string.
type keyRunes struct {
	ids  map[string]rune
	next rune
}

func newKeyRunes() *keyRunes {
	return &keyRunes{ids: make(map[string]rune), next: 1}
}

func (k *keyRunes) rune(key string) rune {
	if r, ok := k.ids[key]; ok {
		return r
	}
	r := k.next
	k.next++
	if k.next == 0xD800 {
		k.next = 0xE000
	}
	if k.next > utf8.MaxRune {
		// Out of code points; collapse further keys together.
		k.next = utf8.MaxRune
	}
	k.ids[key] = r
	return r
}

// sameText reports whether two nodes have identical text without building it
// when the lengths already differ.
func sameText(a, b *syntax.Node) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a.IsLeaf() && b.IsLeaf() {
		return a.LeafText() == b.LeafText()
	}
	return a.Text() == b.Text()
}
