package syntax

import "errors"

// Sentinel errors for tree mutation and validation.
var (
	// ErrNotChild is returned when a node is not a child of the given parent.
	ErrNotChild = errors.New("node is not a child of parent")

	// ErrLeafParent is returned when children are added to a leaf.
	ErrLeafParent = errors.New("leaf nodes cannot have children")

	// ErrInvalidNode is returned when an invalidated node is used.
	ErrInvalidNode = errors.New("node has been invalidated")

	// ErrCycle is returned when a node would become its own descendant.
	ErrCycle = errors.New("node cannot be inserted below itself")

	// ErrIndexOutOfRange is returned for a child index past the end.
	ErrIndexOutOfRange = errors.New("child index out of range")

	// ErrInconsistent is returned by Check when links or cached lengths disagree.
	ErrInconsistent = errors.New("inconsistent tree")
)
