package event

import (
	"context"

	"github.com/dshills/treesync/internal/difflog"
	"github.com/dshills/treesync/internal/engine/buffer"
	"github.com/dshills/treesync/internal/syntax"
)

// Tree and document topics.
const (
	TopicNodeReplace    Topic = "tree.node.replace"
	TopicChildInsert    Topic = "tree.child.insert"
	TopicChildDelete    Topic = "tree.child.delete"
	TopicRootReplace    Topic = "tree.root.replace"
	TopicSubtreeChanged Topic = "tree.subtree.changed"

	TopicDocumentCommitted Topic = "document.committed"
	TopicDocumentReloaded  Topic = "document.reloaded"
	TopicDocumentDefect    Topic = "document.defect"
)

// Phase distinguishes the notification before a mutation from the one after.
type Phase string

// Phases of a structural change.
const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// TopicFor returns the phased topic for an op kind, for example
// "tree.child.insert.after".
func TopicFor(kind difflog.Kind, phase Phase) Topic {
	var base Topic
	switch kind {
	case difflog.Replace:
		base = TopicNodeReplace
	case difflog.Delete:
		base = TopicChildDelete
	case difflog.Insert:
		base = TopicChildInsert
	default:
		base = TopicRootReplace
	}
	return base.Child(string(phase))
}

// TreeChange is the payload of structural tree events.
type TreeChange struct {
	DocumentID string
	Phase      Phase
	Op         difflog.Op
}

// SubtreeChanged is the payload published once after an edit script.
type SubtreeChanged struct {
	DocumentID string
	Root       *syntax.Node
}

// Committed is published after a commit has been applied.
type Committed struct {
	DocumentID string
	ModSeq     buffer.ModSeq
	Mode       string
	Ops        int
	// Superseded is set when the parser supplied the edit script instead of
	// the tree differ.
	Superseded bool
}

// Reloaded is published when a document tree is rebuilt from scratch.
type Reloaded struct {
	DocumentID string
	Reason     string
}

// Defect is published for internal defects: corrupt positions, apply faults
// and failed consistency checks.
type Defect struct {
	DocumentID string
	Kind       string
	Message    string
	// Diff is a patch from the expected text to the actual text, when known.
	Diff string
}

// TreeSink publishes the notifications of an edit script on a bus. It
// implements difflog.Sink and difflog.Owner.
type TreeSink struct {
	bus   *Bus
	ctx   context.Context
	docID string
	root  *syntax.Node
}

// NewTreeSink creates a sink for the tree rooted at root.
func NewTreeSink(ctx context.Context, bus *Bus, docID string, root *syntax.Node) *TreeSink {
	return &TreeSink{bus: bus, ctx: ctx, docID: docID, root: root}
}

// BeforeChange implements difflog.Sink.
func (s *TreeSink) BeforeChange(op difflog.Op) {
	s.publish(op, PhaseBefore)
}

// AfterChange implements difflog.Sink.
func (s *TreeSink) AfterChange(op difflog.Op) {
	s.publish(op, PhaseAfter)
}

// SubtreeChanged implements difflog.Owner.
func (s *TreeSink) SubtreeChanged() {
	if s.bus == nil {
		return
	}
	ev := New(TopicSubtreeChanged, SubtreeChanged{DocumentID: s.docID, Root: s.root}, "tree")
	_ = s.bus.Publish(s.ctx, ev)
}

func (s *TreeSink) publish(op difflog.Op, phase Phase) {
	if s.bus == nil {
		return
	}
	ev := New(TopicFor(op.Kind, phase), TreeChange{DocumentID: s.docID, Phase: phase, Op: op}, "tree")
	_ = s.bus.Publish(s.ctx, ev)
}
