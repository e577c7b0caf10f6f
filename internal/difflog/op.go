// Package difflog records tree edit scripts and applies them to a live tree
// as a single transaction.
package difflog

import (
	"fmt"

	"github.com/dshills/treesync/internal/syntax"
)

// Kind identifies the structural operation of an Op.
type Kind int

const (
	// Replace swaps Old for New in the parent of Old.
	Replace Kind = iota
	// Delete removes Old from Parent.
	Delete
	// Insert places New in Parent at Index.
	Insert
	// ReplaceWhole moves all children of New under the root Old.
	ReplaceWhole
)

// String returns the operation name.
func (k Kind) String() string {
	switch k {
	case Replace:
		return "replace"
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	case ReplaceWhole:
		return "replace-whole"
	default:
		return "unknown"
	}
}

// Op is a single structural edit.
type Op struct {
	Kind   Kind
	Parent *syntax.Node
	Old    *syntax.Node
	New    *syntax.Node

	// Index is the zero-based child position for Insert. It is resolved to
	// a sibling anchor when the op is applied, after earlier ops have run.
	Index int
}

// String returns a short description of the op.
func (o Op) String() string {
	switch o.Kind {
	case Replace:
		return fmt.Sprintf("replace %s with %s", o.Old, o.New)
	case Delete:
		return fmt.Sprintf("delete %s from %s", o.Old, o.Parent)
	case Insert:
		return fmt.Sprintf("insert %s into %s at %d", o.New, o.Parent, o.Index)
	case ReplaceWhole:
		return fmt.Sprintf("replace children of %s with %s", o.Old, o.New)
	default:
		return "unknown op"
	}
}

func (o Op) validate() error {
	switch o.Kind {
	case Replace:
		if o.Old == nil || o.New == nil {
			return ErrInvalidOp
		}
	case Delete:
		if o.Parent == nil || o.Old == nil {
			return ErrInvalidOp
		}
	case Insert:
		if o.Parent == nil || o.New == nil || o.Index < 0 {
			return ErrInvalidOp
		}
	case ReplaceWhole:
		if o.Old == nil || o.New == nil {
			return ErrInvalidOp
		}
	default:
		return ErrInvalidOp
	}
	return nil
}
