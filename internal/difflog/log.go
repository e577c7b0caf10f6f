package difflog

import (
	"fmt"

	"github.com/dshills/treesync/internal/engine/buffer"
	"github.com/dshills/treesync/internal/syntax"
)

// Sink observes every structural mutation. BeforeChange is called while the
// tree still has its pre-op shape and AfterChange once the op is complete.
type Sink interface {
	BeforeChange(op Op)
	AfterChange(op Op)
}

// Owner is the structure that holds the tree being edited.
type Owner interface {
	// SubtreeChanged is called once after a non-empty log has been applied.
	SubtreeChanged()
}

// NopSink ignores all notifications.
type NopSink struct{}

// BeforeChange implements Sink.
func (NopSink) BeforeChange(Op) {}

// AfterChange implements Sink.
func (NopSink) AfterChange(Op) {}

// Log is an ordered edit script together with the buffer state it was
// computed for.
type Log struct {
	ops []Op

	// BaseSeq is the modification sequence of the committed text the script
	// was computed from.
	BaseSeq buffer.ModSeq

	// TargetSeq is the modification sequence of the text the script
	// produces. The log applies only while the buffer is still at TargetSeq.
	TargetSeq buffer.ModSeq
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Replace records that old is replaced by replacement.
func (l *Log) Replace(old, replacement *syntax.Node) {
	l.ops = append(l.ops, Op{Kind: Replace, Old: old, New: replacement})
}

// Delete records that node is removed from parent.
func (l *Log) Delete(parent, node *syntax.Node) {
	l.ops = append(l.ops, Op{Kind: Delete, Parent: parent, Old: node})
}

// Insert records that node is inserted into parent at index.
func (l *Log) Insert(parent, node *syntax.Node, index int) {
	l.ops = append(l.ops, Op{Kind: Insert, Parent: parent, New: node, Index: index})
}

// ReplaceWhole records that the children of oldRoot are swapped for those of
// newRoot.
func (l *Log) ReplaceWhole(oldRoot, newRoot *syntax.Node) {
	l.ops = append(l.ops, Op{Kind: ReplaceWhole, Old: oldRoot, New: newRoot})
}

// Ops returns the recorded ops in order.
func (l *Log) Ops() []Op {
	return l.ops
}

// Len returns the number of ops.
func (l *Log) Len() int {
	return len(l.ops)
}

// IsEmpty reports whether the log has no ops.
func (l *Log) IsEmpty() bool {
	return len(l.ops) == 0
}

// Applies reports whether the log was computed for the buffer state seq.
func (l *Log) Applies(seq buffer.ModSeq) bool {
	return l.TargetSeq == seq
}

// Apply runs every op in order, bracketing each with sink notifications, and
// then marks owner changed once. A panic raised by a mutation or a sink is
// recovered and reported as an ApplyError; the tree may then be partially
// edited and must be discarded by the caller.
func (l *Log) Apply(owner Owner, sink Sink) (err error) {
	if len(l.ops) == 0 {
		return nil
	}
	if sink == nil {
		sink = NopSink{}
	}
	if owner != nil {
		defer owner.SubtreeChanged()
	}
	for i, op := range l.ops {
		if err := applyOp(op, sink); err != nil {
			return &ApplyError{Index: i, Op: op, Err: err}
		}
	}
	return nil
}

func applyOp(op Op, sink Sink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	if err := op.validate(); err != nil {
		return err
	}
	if op.Kind == Replace {
		if op.Old.Parent() == nil {
			return ErrDetached
		}
		op.Parent = op.Old.Parent()
	}

	sink.BeforeChange(op)
	switch op.Kind {
	case Replace:
		err = op.Parent.ReplaceChild(op.Old, op.New)
	case Delete:
		err = op.Parent.RemoveChild(op.Old)
	case Insert:
		err = op.Parent.InsertAt(op.New, op.Index)
	case ReplaceWhole:
		err = op.Old.ReplaceChildren(op.New)
	}
	if err != nil {
		return err
	}
	sink.AfterChange(op)
	return nil
}

// Result is the outcome of computing a log. Superseded is set when the parser
// abandoned the computed script in favor of one it had already prepared, in
// which case Log is that prepared script.
type Result struct {
	Log        *Log
	Superseded bool
}
