package syntax

// Ref is a long-lived reference to a node that can tell when the node has
// been removed from its tree.
type Ref struct {
	node *Node
	gen  uint64
}

// NewRef returns a reference to n.
func NewRef(n *Node) Ref {
	if n == nil {
		return Ref{}
	}
	return Ref{node: n, gen: n.gen}
}

// Get returns the node and true while it is still live.
func (r Ref) Get() (*Node, bool) {
	if r.node == nil || r.node.invalid || r.node.gen != r.gen {
		return nil, false
	}
	return r.node, true
}

// Stale reports whether the referenced node has been invalidated.
func (r Ref) Stale() bool {
	_, ok := r.Get()
	return !ok
}
