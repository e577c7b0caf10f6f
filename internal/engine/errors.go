package engine

import "errors"

// Errors returned by engine operations.
var (
	// ErrClosed indicates the engine or document has been closed.
	ErrClosed = errors.New("engine: closed")

	// ErrUnknownDocument indicates the document is not open in this engine.
	ErrUnknownDocument = errors.New("engine: unknown document")

	// ErrNotInTree indicates a node passed to a tree transaction does not
	// belong to the document's tree.
	ErrNotInTree = errors.New("engine: node is not in the document tree")

	// ErrNotLeaf indicates a text edit was attempted on a composite node.
	ErrNotLeaf = errors.New("engine: node is not a leaf")

	// ErrIndexOutOfRange indicates an insertion index past the last child.
	ErrIndexOutOfRange = errors.New("engine: child index out of range")

	// ErrAttached indicates a node passed for insertion already has a parent.
	ErrAttached = errors.New("engine: node is already attached")

	// ErrRootNode indicates an attempt to replace or delete the root.
	ErrRootNode = errors.New("engine: cannot replace or delete the root")

	// ErrTxDone indicates a tree transaction was used after it finished.
	ErrTxDone = errors.New("engine: tree transaction finished")
)
