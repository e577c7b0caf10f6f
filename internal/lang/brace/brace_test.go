package brace

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/treesync/internal/syntax"
)

func parse(t *testing.T, text string) *syntax.Node {
	t.Helper()
	root, err := NewParser().Parse(context.Background(), text)
	require.NoError(t, err)
	require.NoError(t, syntax.Check(root))
	return root
}

func TestParseRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"{ foo(); }",
		"x(); { foo(); bar(); }",
		"a = \"str { ; }\"; // note {\n{ /* c } */ }",
		"}}} {{",
		"<% if x %>{ y; }<% end %>",
		"\"unterminated",
		"/* open",
		"héllo wörld;",
		"{ { { deep; } } }",
	}
	for _, in := range inputs {
		root := parse(t, in)
		assert.Equal(t, in, root.Text())
		assert.Same(t, File, root.Type())
	}
}

func TestParseShape(t *testing.T) {
	root := parse(t, "x(); { foo(); }")
	kids := root.Children()
	require.Len(t, kids, 3)
	assert.Same(t, Statement, kids[0].Type())
	assert.Equal(t, "x();", kids[0].Text())
	assert.Same(t, Whitespace, kids[1].Type())
	assert.Same(t, Block, kids[2].Type())

	block := kids[2].Children()
	require.Len(t, block, 5)
	assert.Equal(t, "{", block[0].Text())
	assert.Same(t, Statement, block[2].Type())
	assert.Equal(t, "}", block[4].Text())
}

func TestParseTemplate(t *testing.T) {
	root := parse(t, "{ <% x %> }")
	block := root.FirstChild()
	require.Same(t, Block, block.Type())
	assert.True(t, syntax.ContainsForeign(block))
	assert.Same(t, Template, block.ChildAt(2).Type())
}

func TestParseCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewParser().Parse(ctx, strings.Repeat("a; ", 100))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBlockReparser(t *testing.T) {
	root := parse(t, "{ foo(); }")
	block := root.FirstChild()
	r := Block.Reparser

	tests := []struct {
		text string
		ok   bool
	}{
		{"{ foo();bar(); }", true},
		{"{}", true},
		{"{ { } }", true},
		{"{ foo(); } x", false},
		{"{ foo(); ", false},
		{"foo(); }", false},
		{"{ } }", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, r.IsReparseable(context.Background(), block, tt.text, ""), tt.text)
		n, err := r.Reparse(context.Background(), block, tt.text)
		require.NoError(t, err)
		if tt.ok {
			require.NotNil(t, n, tt.text)
			assert.Equal(t, tt.text, n.Text())
			assert.True(t, r.IsValidReparse(block, n))
		} else {
			assert.Nil(t, n, tt.text)
		}
	}
}

func TestBlockReparserCanceled(t *testing.T) {
	root := parse(t, "{ foo(); }")
	block := root.FirstChild()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text := "{ " + strings.Repeat("a; ", 100) + "}"
	assert.False(t, Block.Reparser.IsReparseable(ctx, block, text, ""))
	assert.True(t, Block.Reparser.IsReparseable(context.Background(), block, text, ""))

	_, err := Block.Reparser.Reparse(ctx, block, text)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenReparser(t *testing.T) {
	root := parse(t, `a = "ab"; // c`)
	stmt := root.FirstChild()
	str := stmt.ChildAt(4)
	require.Same(t, String, str.Type())
	comment := root.LastChild()
	require.Same(t, Comment, comment.Type())

	ctx := context.Background()
	tests := []struct {
		typ   *syntax.NodeType
		node  *syntax.Node
		text  string
		after string
		ok    bool
	}{
		{String, str, `"abc"`, "; x", true},
		{String, str, `"ab`, "", false},
		{String, str, `"a"b"`, "", false},
		{Comment, comment, "// cd", "", true},
		{Comment, comment, "// cd", "\nx;", true},
		{Comment, comment, "// cd", " */;", false},
		{Comment, comment, "// cd", "\r\n", false},
		{Comment, comment, "// c\nd", "", false},
		{Comment, comment, "/* x */", "y;", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.typ.Reparser.IsReparseable(ctx, tt.node, tt.text, tt.after), "%q before %q", tt.text, tt.after)
	}

	n, err := String.Reparser.Reparse(context.Background(), str, `"abc"`)
	require.NoError(t, err)
	assert.Same(t, String, n.Type())
	assert.Equal(t, `"abc"`, n.Text())
	assert.True(t, String.Reparser.IsValidReparse(str, n))
	assert.False(t, String.Reparser.IsValidReparse(str, syntax.NewLeaf(Ident, "x")))
}
