package syntax

import "context"

// Language identifies the language a node type belongs to.
type Language string

// NodeType is the metadata shared by all nodes of one kind.
type NodeType struct {
	// Name is the display name of the type.
	Name string

	// Language is the language the type belongs to. A composite that holds
	// nodes of another language cannot be reparsed locally.
	Language Language

	// Leaf reports whether nodes of this type own text directly.
	Leaf bool

	// Reparseable marks types whose subtree can be regenerated from its own
	// text without touching ancestors.
	Reparseable bool

	// LeafReparseable marks token types that can be re-lexed in isolation,
	// such as strings and comments.
	LeafReparseable bool

	// Reparser performs local reparse for this type. Nil disables local
	// reparse regardless of the flags above.
	Reparser Reparser
}

// String returns the type name.
func (t *NodeType) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// CanReparse reports whether the type is eligible for local reparse.
func (t *NodeType) CanReparse() bool {
	return t != nil && t.Reparser != nil && (t.Reparseable || t.LeafReparseable)
}

// HolderType is the type of the detached node that wraps a local reparse
// result until it is spliced into the live tree.
var HolderType = &NodeType{Name: "HOLDER"}

// Parser produces a complete tree for a text.
type Parser interface {
	// Parse parses text into a new detached root. Implementations should
	// return ctx.Err() promptly once ctx is done.
	Parse(ctx context.Context, text string) (*Node, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, text string) (*Node, error)

// Parse implements Parser.
func (f ParserFunc) Parse(ctx context.Context, text string) (*Node, error) {
	return f(ctx, text)
}

// Reparser regenerates a single node from new text.
type Reparser interface {
	// IsReparseable reports whether n can be replaced by a node parsed from
	// newText alone. after is the new document text following newText, for
	// tokens whose extent depends on what comes next. Implementations that
	// parse should stop once ctx is done.
	IsReparseable(ctx context.Context, n *Node, newText, after string) bool

	// Reparse parses newText as a replacement for n. A nil node with a nil
	// error means the reparse was declined.
	Reparse(ctx context.Context, n *Node, newText string) (*Node, error)

	// IsValidReparse reports whether replacing old with replacement keeps
	// the meaning of the parent intact.
	IsValidReparse(old, replacement *Node) bool
}
