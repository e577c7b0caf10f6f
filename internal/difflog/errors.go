package difflog

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOp is returned for an op with missing operands.
	ErrInvalidOp = errors.New("invalid edit op")

	// ErrDetached is returned when a replaced node has no parent.
	ErrDetached = errors.New("node is not attached to a tree")

	// ErrPanic wraps a panic recovered while applying an op.
	ErrPanic = errors.New("panic while applying edit")
)

// ApplyError reports the op that failed during Apply.
type ApplyError struct {
	Index int
	Op    Op
	Err   error
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply op %d (%s): %v", e.Index, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ApplyError) Unwrap() error {
	return e.Err
}
