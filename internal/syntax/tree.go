package syntax

import (
	"fmt"
	"strings"
)

// Walk visits n and its descendants in document order. Returning false from
// fn skips the children of the visited node.
func Walk(n *Node, fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.first; c != nil; c = c.next {
		Walk(c, fn)
	}
}

// LeafAt returns the non-empty leaf whose range contains offset. An offset at
// the very end of the tree returns the last non-empty leaf. It returns nil when
// the offset is out of range or the tree has no text.
func LeafAt(root *Node, offset int) *Node {
	if offset < 0 || offset > root.length || root.length == 0 {
		return nil
	}
	if offset == root.length {
		return lastLeaf(root)
	}
	n := root
	for !n.IsLeaf() {
		var next *Node
		for c := n.first; c != nil; c = c.next {
			if offset < c.length {
				next = c
				break
			}
			offset -= c.length
		}
		if next == nil {
			return nil
		}
		n = next
	}
	return n
}

func lastLeaf(n *Node) *Node {
	if n.IsLeaf() {
		if n.length == 0 {
			return nil
		}
		return n
	}
	for c := n.last; c != nil; c = c.prev {
		if l := lastLeaf(c); l != nil {
			return l
		}
	}
	return nil
}

// Depth returns the number of levels in the tree rooted at n. A single node
// has depth 1.
func Depth(n *Node) int {
	best := 0
	for c := n.first; c != nil; c = c.next {
		if d := Depth(c); d > best {
			best = d
		}
	}
	return best + 1
}

// MarkDeeperThan flags every node whose depth from root exceeds limit as too
// deep. It returns the number of nodes marked.
func MarkDeeperThan(root *Node, limit int) int {
	var mark func(n *Node, depth int) int
	mark = func(n *Node, depth int) int {
		marked := 0
		if depth > limit {
			n.tooDeep = true
			marked++
		}
		for c := n.first; c != nil; c = c.next {
			marked += mark(c, depth+1)
		}
		return marked
	}
	return mark(root, 1)
}

// CommonAncestor returns the lowest node that is a or b or an ancestor of
// both, or nil if they are in different trees.
func CommonAncestor(a, b *Node) *Node {
	seen := make(map[*Node]struct{})
	for x := a; x != nil; x = x.parent {
		seen[x] = struct{}{}
	}
	for x := b; x != nil; x = x.parent {
		if _, ok := seen[x]; ok {
			return x
		}
	}
	return nil
}

// ContainsForeign reports whether any descendant of n belongs to a language
// other than the language of n.
func ContainsForeign(n *Node) bool {
	lang := n.typ.Language
	found := false
	Walk(n, func(x *Node) bool {
		if found {
			return false
		}
		if x != n && x.typ.Language != lang {
			found = true
			return false
		}
		return true
	})
	return found
}

// Check verifies the structural invariants of the tree rooted at n: parent,
// child and sibling links agree, child counts match and cached lengths equal
// the sum of the leaf texts.
func Check(n *Node) error {
	if n.invalid {
		return fmt.Errorf("%w: %s is invalidated", ErrInconsistent, n)
	}
	if n.IsLeaf() {
		if n.first != nil || n.count != 0 {
			return fmt.Errorf("%w: leaf %s has children", ErrInconsistent, n)
		}
		if n.length != len(n.text) {
			return fmt.Errorf("%w: leaf %s length %d, text %d", ErrInconsistent, n, n.length, len(n.text))
		}
		return nil
	}

	count, length := 0, 0
	var prev *Node
	for c := n.first; c != nil; c = c.next {
		if c.parent != n {
			return fmt.Errorf("%w: %s has wrong parent", ErrInconsistent, c)
		}
		if c.prev != prev {
			return fmt.Errorf("%w: %s has wrong prev link", ErrInconsistent, c)
		}
		if err := Check(c); err != nil {
			return err
		}
		count++
		length += c.length
		prev = c
	}
	if n.last != prev {
		return fmt.Errorf("%w: %s has wrong last child", ErrInconsistent, n)
	}
	if n.count != count {
		return fmt.Errorf("%w: %s counts %d children, has %d", ErrInconsistent, n, n.count, count)
	}
	if n.length != length {
		return fmt.Errorf("%w: %s caches length %d, children sum %d", ErrInconsistent, n, n.length, length)
	}
	return nil
}

// Dump renders the tree rooted at n with one node per line, indented by depth.
func Dump(n *Node) string {
	var sb strings.Builder
	var dump func(n *Node, depth int)
	dump = func(n *Node, depth int) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(n.String())
		sb.WriteByte('\n')
		for c := n.first; c != nil; c = c.next {
			dump(c, depth+1)
		}
	}
	dump(n, 0)
	return sb.String()
}
