package syntax

import (
	"fmt"
	"strings"
)

// Node is a composite or leaf node of a syntax tree.
//
// Nodes are not safe for concurrent mutation. Readers may share a tree as long
// as no mutation is in progress.
type Node struct {
	typ  *NodeType
	text string

	// length is the byte length of the node text, maintained for composites
	// on every structural change.
	length int

	parent *Node
	first  *Node
	last   *Node
	prev   *Node
	next   *Node
	count  int

	gen     uint64
	invalid bool
	tooDeep bool
}

// NewLeaf creates a detached leaf.
func NewLeaf(t *NodeType, text string) *Node {
	return &Node{typ: t, text: text, length: len(text)}
}

// NewComposite creates a detached composite with the given children.
// Children that are attached elsewhere are moved.
func NewComposite(t *NodeType, children ...*Node) *Node {
	n := &Node{typ: t}
	for _, c := range children {
		if c == nil {
			continue
		}
		// A fresh composite cannot be a descendant of c, so this cannot fail.
		_ = n.InsertBefore(c, nil)
	}
	return n
}

// NewHolder wraps n in a detached holder node.
func NewHolder(n *Node) *Node {
	return NewComposite(HolderType, n)
}

// Type returns the node type.
func (n *Node) Type() *NodeType { return n.typ }

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool { return n.typ != nil && n.typ.Leaf }

// Len returns the byte length of the node text.
func (n *Node) Len() int { return n.length }

// Parent returns the parent node, or nil for a root or detached node.
func (n *Node) Parent() *Node { return n.parent }

// FirstChild returns the first child.
func (n *Node) FirstChild() *Node { return n.first }

// LastChild returns the last child.
func (n *Node) LastChild() *Node { return n.last }

// PrevSibling returns the previous sibling.
func (n *Node) PrevSibling() *Node { return n.prev }

// NextSibling returns the next sibling.
func (n *Node) NextSibling() *Node { return n.next }

// ChildCount returns the number of children.
func (n *Node) ChildCount() int { return n.count }

// Valid reports whether the node has not been invalidated.
func (n *Node) Valid() bool { return n != nil && !n.invalid }

// TooDeep reports whether the node is marked as exceeding the depth limit.
func (n *Node) TooDeep() bool { return n.tooDeep }

// MarkTooDeep flags the node so local reparse never climbs through it.
func (n *Node) MarkTooDeep() { n.tooDeep = true }

// Children returns the children in order.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, n.count)
	for c := n.first; c != nil; c = c.next {
		out = append(out, c)
	}
	return out
}

// ChildAt returns the child at index i, or nil.
func (n *Node) ChildAt(i int) *Node {
	if i < 0 || i >= n.count {
		return nil
	}
	c := n.first
	for ; i > 0; i-- {
		c = c.next
	}
	return c
}

// IndexOf returns the index of child c, or -1.
func (n *Node) IndexOf(c *Node) int {
	i := 0
	for x := n.first; x != nil; x = x.next {
		if x == c {
			return i
		}
		i++
	}
	return -1
}

// LeafText returns the text owned by a leaf. Composites return "".
func (n *Node) LeafText() string { return n.text }

// Text returns the concatenated text of all leaves under n.
func (n *Node) Text() string {
	if n.IsLeaf() {
		return n.text
	}
	var sb strings.Builder
	sb.Grow(n.length)
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	if n.IsLeaf() {
		sb.WriteString(n.text)
		return
	}
	for c := n.first; c != nil; c = c.next {
		c.writeText(sb)
	}
}

// Root returns the topmost ancestor of n.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// StartOffset returns the offset of n relative to its root.
func (n *Node) StartOffset() int {
	off := 0
	for x := n; x.parent != nil; x = x.parent {
		for s := x.prev; s != nil; s = s.prev {
			off += s.length
		}
	}
	return off
}

// Range returns the [start, end) offsets of n relative to its root.
func (n *Node) Range() (start, end int) {
	start = n.StartOffset()
	return start, start + n.length
}

// IsAncestorOf reports whether n is a proper ancestor of other.
func (n *Node) IsAncestorOf(other *Node) bool {
	for x := other.parent; x != nil; x = x.parent {
		if x == n {
			return true
		}
	}
	return false
}

// String returns a short description of the node.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	if n.IsLeaf() {
		return fmt.Sprintf("%s(%q)", n.typ, n.text)
	}
	return fmt.Sprintf("%s[%d]", n.typ, n.count)
}

// InsertBefore inserts c as a child of n before anchor. A nil anchor appends.
// If c is attached elsewhere it is detached first.
func (n *Node) InsertBefore(c, anchor *Node) error {
	switch {
	case n.IsLeaf():
		return ErrLeafParent
	case n.invalid || c.invalid:
		return ErrInvalidNode
	case c == n || c.IsAncestorOf(n):
		return ErrCycle
	case anchor != nil && anchor.parent != n:
		return fmt.Errorf("anchor %s: %w", anchor, ErrNotChild)
	case c == anchor:
		return nil
	}
	c.detach()

	c.parent = n
	c.next = anchor
	if anchor == nil {
		c.prev = n.last
		if n.last != nil {
			n.last.next = c
		} else {
			n.first = c
		}
		n.last = c
	} else {
		c.prev = anchor.prev
		if anchor.prev != nil {
			anchor.prev.next = c
		} else {
			n.first = c
		}
		anchor.prev = c
	}
	n.count++
	n.grow(c.length)
	return nil
}

// InsertAt inserts c so that it becomes the child at index.
func (n *Node) InsertAt(c *Node, index int) error {
	if index < 0 || index > n.count {
		return fmt.Errorf("insert at %d of %d: %w", index, n.count, ErrIndexOutOfRange)
	}
	return n.InsertBefore(c, n.ChildAt(index))
}

// RemoveChild unlinks c from n and invalidates the removed subtree.
func (n *Node) RemoveChild(c *Node) error {
	if c.parent != n {
		return fmt.Errorf("remove %s: %w", c, ErrNotChild)
	}
	c.detach()
	Invalidate(c)
	return nil
}

// ReplaceChild swaps old for replacement in place and invalidates old.
// The replacement is detached from any current parent first.
func (n *Node) ReplaceChild(old, replacement *Node) error {
	if old.parent != n {
		return fmt.Errorf("replace %s: %w", old, ErrNotChild)
	}
	if old == replacement {
		return nil
	}
	if replacement.invalid {
		return ErrInvalidNode
	}
	if replacement == n || replacement.IsAncestorOf(n) {
		return ErrCycle
	}
	anchor := old.next
	if anchor == replacement {
		anchor = replacement.next
	}
	old.detach()
	if err := n.InsertBefore(replacement, anchor); err != nil {
		return err
	}
	Invalidate(old)
	return nil
}

// ReplaceChildren removes and invalidates all children of n and moves the
// children of from under n in their original order. from is left empty.
func (n *Node) ReplaceChildren(from *Node) error {
	if n.IsLeaf() || from.IsLeaf() {
		return ErrLeafParent
	}
	if from == n || from.IsAncestorOf(n) || n.IsAncestorOf(from) {
		return ErrCycle
	}
	for c := n.first; c != nil; {
		next := c.next
		c.detach()
		Invalidate(c)
		c = next
	}
	for c := from.first; c != nil; {
		next := c.next
		if err := n.InsertBefore(c, nil); err != nil {
			return err
		}
		c = next
	}
	return nil
}

// Detach unlinks n from its parent without invalidating it.
func (n *Node) Detach() { n.detach() }

func (n *Node) detach() {
	p := n.parent
	if p == nil {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		p.first = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		p.last = n.prev
	}
	p.count--
	p.grow(-n.length)
	n.parent, n.prev, n.next = nil, nil, nil
}

// grow adjusts the cached length of n and every ancestor.
func (n *Node) grow(delta int) {
	if delta == 0 {
		return
	}
	for x := n; x != nil; x = x.parent {
		x.length += delta
	}
}

// Invalidate marks n and its whole subtree inert. Links are cleared so the
// nodes no longer reach the live tree and any Ref to them reports stale.
func Invalidate(n *Node) {
	for c := n.first; c != nil; {
		next := c.next
		Invalidate(c)
		c = next
	}
	n.parent, n.first, n.last, n.prev, n.next = nil, nil, nil, nil, nil
	n.count = 0
	n.invalid = true
	n.gen++
}
