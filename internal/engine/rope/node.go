package rope

import "strings"

// Tree shape constants
const (
	// maxChildren is the maximum children per internal node.
	maxChildren = 8

	// maxChunksPerLeaf is the maximum chunks in a leaf node.
	maxChunksPerLeaf = 4
)

// node is a node of the rope tree. Leaves (height 0) hold chunks, internal
// nodes hold children. A node is never modified after it is built.
type node struct {
	height   uint8
	summary  Summary
	children []*node
	chunks   []chunk
}

var emptyLeaf = &node{}

func newLeaf(chunks []chunk) *node {
	if len(chunks) == 0 {
		return emptyLeaf
	}
	n := &node{chunks: chunks}
	for _, c := range chunks {
		n.summary = n.summary.Add(c.summary)
	}
	return n
}

func newInternal(children []*node) *node {
	n := &node{children: children}
	for _, c := range children {
		n.height = max(n.height, c.height+1)
		n.summary = n.summary.Add(c.summary)
	}
	return n
}

func (n *node) isLeaf() bool {
	return n.height == 0 && len(n.children) == 0
}

func (n *node) len() int {
	return n.summary.Bytes
}

// build joins sibling nodes under as few levels of parents as needed.
func build(nodes []*node) *node {
	switch {
	case len(nodes) == 0:
		return emptyLeaf
	case len(nodes) == 1:
		return nodes[0]
	case len(nodes) <= maxChildren:
		return newInternal(nodes)
	}
	parents := make([]*node, 0, len(nodes)/maxChildren+1)
	for i := 0; i < len(nodes); i += maxChildren {
		end := min(i+maxChildren, len(nodes))
		parents = append(parents, newInternal(nodes[i:end:end]))
	}
	return build(parents)
}

// buildChunks builds a balanced tree over chunks.
func buildChunks(chunks []chunk) *node {
	leaves := make([]*node, 0, len(chunks)/maxChunksPerLeaf+1)
	for i := 0; i < len(chunks); i += maxChunksPerLeaf {
		end := min(i+maxChunksPerLeaf, len(chunks))
		leaves = append(leaves, newLeaf(chunks[i:end:end]))
	}
	return build(leaves)
}

// each calls fn for every chunk in order until fn returns false.
func (n *node) each(fn func(c chunk) bool) bool {
	if n.isLeaf() {
		for _, c := range n.chunks {
			if !fn(c) {
				return false
			}
		}
		return true
	}
	for _, child := range n.children {
		if !child.each(fn) {
			return false
		}
	}
	return true
}

// appendRange writes the text in [start, end) of the subtree to sb.
func (n *node) appendRange(sb *strings.Builder, start, end int) {
	pos := 0
	if n.isLeaf() {
		for _, c := range n.chunks {
			cend := pos + c.summary.Bytes
			if cend > start && pos < end {
				sb.WriteString(c.text[max(start-pos, 0):min(end, cend)-pos])
			}
			pos = cend
		}
		return
	}
	for _, child := range n.children {
		cend := pos + child.len()
		if cend > start && pos < end {
			child.appendRange(sb, max(start-pos, 0), min(end, cend)-pos)
		}
		if cend >= end {
			return
		}
		pos = cend
	}
}

// split returns nodes holding [0, off) and [off, len) of the subtree.
func (n *node) split(off int) (*node, *node) {
	if off <= 0 {
		return emptyLeaf, n
	}
	if off >= n.len() {
		return n, emptyLeaf
	}

	pos := 0
	if n.isLeaf() {
		var left, right []chunk
		for _, c := range n.chunks {
			l := c.summary.Bytes
			switch {
			case pos+l <= off:
				left = append(left, c)
			case pos >= off:
				right = append(right, c)
			default:
				a, b := c.split(off - pos)
				left = append(left, a)
				right = append(right, b)
			}
			pos += l
		}
		return newLeaf(left), newLeaf(right)
	}

	var left, right []*node
	for _, child := range n.children {
		l := child.len()
		switch {
		case pos+l <= off:
			left = append(left, child)
		case pos >= off:
			right = append(right, child)
		default:
			a, b := child.split(off - pos)
			left = append(left, a)
			right = append(right, b)
		}
		pos += l
	}
	return build(left), build(right)
}

// concat joins two subtrees. Adjacent leaves are merged when their chunks fit
// in one leaf.
func concat(left, right *node) *node {
	if left.len() == 0 {
		return right
	}
	if right.len() == 0 {
		return left
	}
	if left.isLeaf() && right.isLeaf() && len(left.chunks)+len(right.chunks) <= maxChunksPerLeaf {
		chunks := make([]chunk, 0, len(left.chunks)+len(right.chunks))
		chunks = append(chunks, left.chunks...)
		chunks = append(chunks, right.chunks...)
		return newLeaf(chunks)
	}
	if left.height == right.height && !left.isLeaf() {
		children := make([]*node, 0, len(left.children)+len(right.children))
		children = append(children, left.children...)
		children = append(children, right.children...)
		return build(children)
	}
	return newInternal([]*node{left, right})
}
