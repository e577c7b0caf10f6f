// Package brace implements a small brace-delimited language used to drive the
// synchronization engine in tests and in the command line tool.
//
// The grammar is deliberately forgiving: every input parses, and the text of
// the resulting tree is always the input. Blocks delimited by braces can be
// reparsed in isolation, as can string and comment tokens. Template segments
// written as <% ... %> belong to a separate language, which prevents any
// enclosing block from being reparsed on its own.
package brace

import (
	"context"
	"strings"

	"github.com/dshills/treesync/internal/syntax"
)

// Languages produced by the parser.
const (
	Language         syntax.Language = "brace"
	TemplateLanguage syntax.Language = "tmpl"
)

// Node types.
var (
	File       = &syntax.NodeType{Name: "FILE", Language: Language}
	Block      = &syntax.NodeType{Name: "BLOCK", Language: Language, Reparseable: true}
	Statement  = &syntax.NodeType{Name: "STATEMENT", Language: Language}
	Ident      = &syntax.NodeType{Name: "IDENT", Language: Language, Leaf: true}
	Punct      = &syntax.NodeType{Name: "PUNCT", Language: Language, Leaf: true}
	Whitespace = &syntax.NodeType{Name: "WHITESPACE", Language: Language, Leaf: true}
	String     = &syntax.NodeType{Name: "STRING", Language: Language, Leaf: true, LeafReparseable: true}
	Comment    = &syntax.NodeType{Name: "COMMENT", Language: Language, Leaf: true, LeafReparseable: true}
	Template   = &syntax.NodeType{Name: "TEMPLATE", Language: TemplateLanguage, Leaf: true}
)

func init() {
	Block.Reparser = blockReparser{}
	String.Reparser = tokenReparser{kind: tokString}
	Comment.Reparser = tokenReparser{kind: tokComment}
}

// checkEvery is the number of items parsed between cancellation checks.
const checkEvery = 64

// Parser parses brace source text.
type Parser struct{}

// NewParser returns a brace parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse implements syntax.Parser.
func (Parser) Parse(ctx context.Context, text string) (*syntax.Node, error) {
	p := &parser{ctx: ctx, src: text}
	root := syntax.NewComposite(File)
	p.items(root, false)
	if p.err != nil {
		return nil, p.err
	}
	return root, nil
}

type parser struct {
	ctx   context.Context
	src   string
	pos   int
	steps int
	err   error
}

func (p *parser) canceled() bool {
	if p.err != nil {
		return true
	}
	p.steps++
	if p.steps%checkEvery == 0 {
		p.err = p.ctx.Err()
	}
	return p.err != nil
}

func (p *parser) leaf(parent *syntax.Node, t *syntax.NodeType, end int) {
	_ = parent.InsertBefore(syntax.NewLeaf(t, p.src[p.pos:end]), nil)
	p.pos = end
}

// items parses children of parent until end of input or, inside a block, an
// unconsumed closing brace.
func (p *parser) items(parent *syntax.Node, inBlock bool) {
	for p.pos < len(p.src) && !p.canceled() {
		kind, end, _ := scan(p.src, p.pos)
		switch kind {
		case tokSpace:
			p.leaf(parent, Whitespace, end)
		case tokComment:
			p.leaf(parent, Comment, end)
		case tokTemplate:
			p.leaf(parent, Template, end)
		case tokLBrace:
			b, _ := p.block()
			_ = parent.InsertBefore(b, nil)
		case tokRBrace:
			if inBlock {
				return
			}
			p.leaf(parent, Punct, end)
		default:
			_ = parent.InsertBefore(p.statement(), nil)
		}
	}
}

// block parses a braced block starting at the opening brace.
func (p *parser) block() (b *syntax.Node, closed bool) {
	b = syntax.NewComposite(Block)
	p.leaf(b, Punct, p.pos+1)
	p.items(b, true)
	if p.pos < len(p.src) && p.src[p.pos] == '}' {
		p.leaf(b, Punct, p.pos+1)
		closed = true
	}
	return b, closed
}

// statement collects tokens up to and including a semicolon. It stops early
// before a brace, a template or the end of input.
func (p *parser) statement() *syntax.Node {
	s := syntax.NewComposite(Statement)
	for p.pos < len(p.src) {
		kind, end, _ := scan(p.src, p.pos)
		switch kind {
		case tokLBrace, tokRBrace, tokTemplate:
			return s
		case tokSemi:
			p.leaf(s, Punct, end)
			return s
		case tokSpace:
			p.leaf(s, Whitespace, end)
		case tokComment:
			p.leaf(s, Comment, end)
		case tokString:
			p.leaf(s, String, end)
		case tokIdent:
			p.leaf(s, Ident, end)
		default:
			p.leaf(s, Punct, end)
		}
	}
	return s
}

// blockReparser reparses a block from its own text when the text is exactly
// one closed block.
type blockReparser struct{}

func (blockReparser) IsReparseable(ctx context.Context, _ *syntax.Node, newText, _ string) bool {
	_, ok := parseBlock(ctx, newText)
	return ok
}

func (blockReparser) Reparse(ctx context.Context, _ *syntax.Node, newText string) (*syntax.Node, error) {
	b, ok := parseBlock(ctx, newText)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return b, nil
}

func (blockReparser) IsValidReparse(old, replacement *syntax.Node) bool {
	return old.Type() == replacement.Type()
}

func parseBlock(ctx context.Context, text string) (*syntax.Node, bool) {
	if len(text) == 0 || text[0] != '{' {
		return nil, false
	}
	p := &parser{ctx: ctx, src: text}
	b, closed := p.block()
	if p.err != nil || !closed || p.pos != len(text) {
		return nil, false
	}
	return b, true
}

// tokenReparser re-lexes a single string or comment token.
type tokenReparser struct {
	kind tokenKind
}

// IsReparseable accepts newText when it lexes as exactly one closed token of
// the reparser's kind. A line comment runs to the end of the line, so it is
// only complete when after starts a new line or is empty.
func (r tokenReparser) IsReparseable(_ context.Context, _ *syntax.Node, newText, after string) bool {
	if !r.lexes(newText) {
		return false
	}
	if strings.HasPrefix(newText, "//") {
		return after == "" || after[0] == '\n'
	}
	return true
}

func (r tokenReparser) lexes(text string) bool {
	kind, end, closed := scan(text, 0)
	return kind == r.kind && closed && end == len(text)
}

func (r tokenReparser) Reparse(_ context.Context, n *syntax.Node, newText string) (*syntax.Node, error) {
	if !r.lexes(newText) {
		return nil, nil
	}
	return syntax.NewLeaf(n.Type(), newText), nil
}

func (tokenReparser) IsValidReparse(old, replacement *syntax.Node) bool {
	return old.Type() == replacement.Type()
}
