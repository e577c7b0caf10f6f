package backsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/treesync/internal/engine/buffer"
	"github.com/dshills/treesync/internal/lang/brace"
)

func TestMinimize(t *testing.T) {
	tests := []struct {
		name string
		text string
		edit Edit
		want Edit
	}{
		{"inner insertion", "abcXYZdef", Edit{3, 6, "XY Z"}, Edit{5, 5, " "}},
		{"unchanged", "abc", Edit{0, 3, "abc"}, Edit{3, 3, ""}},
		{"pure insertion", "abc", Edit{1, 1, "x"}, Edit{1, 1, "x"}},
		{"shared ends", "foo(bar);", Edit{0, 9, "foo(baz);"}, Edit{6, 7, "z"}},
		{"combining mark", "ae\u0301x", Edit{1, 4, "e\u0300"}, Edit{1, 4, "e\u0300"}},
		{"whole line", "a\nb\nb\nc\n", Edit{3, 5, ""}, Edit{2, 4, ""}},
		{"deletion without lines", "aaa", Edit{1, 2, ""}, Edit{1, 2, ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Minimize(tt.text, tt.edit))
		})
	}
}

func TestSnapToTokens(t *testing.T) {
	text := "foo(bar);"
	root, err := brace.NewParser().Parse(context.Background(), text)
	require.NoError(t, err)

	tests := []struct {
		name string
		edit Edit
		want Edit
	}{
		{"inside token", Edit{6, 7, "z"}, Edit{4, 7, "baz"}},
		{"insert inside token", Edit{1, 1, "x"}, Edit{0, 3, "fxoo"}},
		{"insert at boundary", Edit{3, 3, " "}, Edit{3, 3, " "}},
		{"across tokens", Edit{2, 5, ""}, Edit{0, 7, "foar"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SnapToTokens(root, text, tt.edit))
		})
	}

	assert.Equal(t, Edit{1, 2, ""}, SnapToTokens(nil, text, Edit{1, 2, ""}))
}

func TestPendingPatchMerges(t *testing.T) {
	tests := []struct {
		name  string
		edits []Edit
		text  string
		want  []buffer.Edit
	}{
		{
			name:  "disjoint",
			edits: []Edit{{1, 2, "x"}, {6, 8, ""}},
			text:  "0x234589",
			want: []buffer.Edit{
				buffer.NewEdit(buffer.NewRange(1, 2), "x"),
				buffer.NewEdit(buffer.NewRange(6, 8), ""),
			},
		},
		{
			name:  "overlapping",
			edits: []Edit{{2, 4, "ab"}, {3, 6, "X"}},
			text:  "01aX6789",
			want:  []buffer.Edit{buffer.NewEdit(buffer.NewRange(2, 6), "aX")},
		},
		{
			name:  "adjacent",
			edits: []Edit{{2, 3, "x"}, {3, 3, "y"}},
			text:  "01xy3456789",
			want:  []buffer.Edit{buffer.NewEdit(buffer.NewRange(2, 3), "xy")},
		},
		{
			name:  "adjacent deletion",
			edits: []Edit{{4, 6, ""}, {2, 4, "z"}},
			text:  "01z6789",
			want:  []buffer.Edit{buffer.NewEdit(buffer.NewRange(2, 6), "z")},
		},
		{
			name:  "inside earlier edit",
			edits: []Edit{{2, 3, "abcd"}, {3, 5, "X"}},
			text:  "01aXd3456789",
			want:  []buffer.Edit{buffer.NewEdit(buffer.NewRange(2, 3), "aXd")},
		},
		{
			name:  "restored",
			edits: []Edit{{2, 3, "x"}, {2, 3, "2"}},
			text:  "0123456789",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPendingPatch("0123456789")
			for _, e := range tt.edits {
				require.NoError(t, p.Replace(e.Start, e.End, e.Text))
			}
			assert.Equal(t, tt.text, p.Text())
			assert.Equal(t, len(tt.text), p.Len())
			assert.Equal(t, 10, p.BaseLen())
			assert.Equal(t, tt.want, p.Edits())
		})
	}
}

func TestPendingPatchRange(t *testing.T) {
	p := NewPendingPatch("")
	assert.ErrorIs(t, p.Replace(0, 1, "x"), ErrRange)
	require.NoError(t, p.Replace(0, 0, "abc"))
	assert.Equal(t, "abc", p.Text())
	assert.ErrorIs(t, p.Replace(2, 1, ""), ErrRange)
	assert.Equal(t, []buffer.Edit{buffer.NewInsert(0, "abc")}, p.Edits())
}

func TestSessionMinimalPatch(t *testing.T) {
	buf := buffer.NewBufferFromString("abcXYZdef")
	s := NewSession(buf.Freeze(), nil)

	m, err := s.Record(Edit{Start: 3, End: 6, Text: "XY Z"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Edit{5, 5, " "}, m)
	assert.Equal(t, "abcXY Zdef", s.Text())

	assert.Equal(t, []buffer.Edit{buffer.NewInsert(5, " ")}, s.Edits())
	snap, err := s.Close(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcXY Zdef", buf.Text())
	assert.Equal(t, buf.ModSeq(), snap.ModSeq())

	_, err = s.Close(buf)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Record(Edit{}, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSessionDescendingApply(t *testing.T) {
	buf := buffer.NewBufferFromString("a; b; c;")
	var seen []buffer.Change
	buf.AddListener(func(c buffer.Change) { seen = append(seen, c) })

	s := NewSession(buf.Freeze(), nil)
	_, err := s.Record(Edit{0, 1, "x"}, nil)
	require.NoError(t, err)
	_, err = s.Record(Edit{6, 7, "yy"}, nil)
	require.NoError(t, err)
	_, err = s.Record(Edit{9, 9, " d;"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "x; b; yy; d;", s.Text())

	_, err = s.Close(buf)
	require.NoError(t, err)
	assert.Equal(t, "x; b; yy; d;", buf.Text())
	require.Len(t, seen, 3)
	assert.Equal(t, 8, seen[0].Range.Start)
	assert.Equal(t, 6, seen[1].Range.Start)
	assert.Equal(t, 0, seen[2].Range.Start)
}

func TestSessionBufferModified(t *testing.T) {
	buf := buffer.NewBufferFromString("abc")
	s := NewSession(buf.Freeze(), nil)
	_, err := s.Record(Edit{0, 1, "x"}, nil)
	require.NoError(t, err)

	_, err = buf.Insert(3, "d")
	require.NoError(t, err)

	_, err = s.Close(buf)
	assert.ErrorIs(t, err, buffer.ErrModified)
	assert.Equal(t, "abcd", buf.Text())
}

func TestSessionEmpty(t *testing.T) {
	buf := buffer.NewBufferFromString("abc")
	s := NewSession(buf.Freeze(), nil)
	_, err := s.Record(Edit{1, 2, "b"}, nil)
	require.NoError(t, err)
	assert.Empty(t, s.Edits())

	snap, err := s.Close(buf)
	require.NoError(t, err)
	assert.Same(t, s.Base(), snap)
	assert.Equal(t, buffer.ModSeq(0), buf.ModSeq())
}

func TestSessionRecordRange(t *testing.T) {
	s := NewSession(buffer.NewBufferFromString("abc").Freeze(), nil)
	_, err := s.Record(Edit{2, 5, ""}, nil)
	assert.ErrorIs(t, err, ErrRange)
	assert.ErrorIs(t, s.Add(Edit{-1, 0, ""}), ErrRange)
}
