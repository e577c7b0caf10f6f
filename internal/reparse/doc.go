// Package reparse salvages a syntax tree after a text edit by regenerating
// the smallest eligible subtree from its own text.
//
// Locate walks from the leaves around the changed range toward the root and
// stops at the first node whose type can reparse the node's new text in
// isolation. The replacement is validated by LocalReparser before it is
// offered as a single Replace op; everything outside the node, including its
// ancestors, keeps its identity.
package reparse
