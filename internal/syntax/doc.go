// Package syntax provides the mutable syntax tree kept in step with a text
// buffer.
//
// A tree is made of composite nodes, which own an ordered, doubly linked list
// of children, and leaf nodes, which own a run of text. The text of any node is
// the concatenation of the leaf texts beneath it, and every node caches its
// length so offsets can be computed without materializing text.
//
// Nodes are identified by pointer. A node that is removed from a tree by a
// structural mutation is invalidated: its links are cleared and its generation
// advances, so long-lived holders use Ref to detect that the node they
// remember is gone.
//
// The grammar is not part of this package. Parser and Reparser describe the
// collaborator that produces trees, and NodeType carries per-type metadata
// such as whether a subtree can be regenerated from its own text.
package syntax
