package textdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommonPrefixSuffix(t *testing.T) {
	tests := []struct {
		a, b           string
		prefix, suffix int
	}{
		{"abcXYZdef", "abcXY Zdef", 5, 4},
		{"", "abc", 0, 0},
		{"same", "same", 4, 4},
		{"héllo", "hémlo", 3, 2},
		{"日本語", "日本人", 6, 0},
		{"\xff\xfe", "\xfe\xfe", 0, 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.prefix, CommonPrefix(tt.a, tt.b), "prefix of %q/%q", tt.a, tt.b)
		assert.Equal(t, tt.suffix, CommonSuffix(tt.a, tt.b), "suffix of %q/%q", tt.a, tt.b)
	}
}

func TestChanged(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
		want     Region
		delta    int
	}{
		{"insert", "{ foo(); }", "{ foo();bar(); }", Region{Start: 8, OldEnd: 8, NewEnd: 14}, 6},
		{"delete", "abcdef", "abef", Region{Start: 2, OldEnd: 4, NewEnd: 2}, -2},
		{"replace", "abcXYZdef", "abc123def", Region{Start: 3, OldEnd: 6, NewEnd: 6}, 0},
		{"repeated chars", "aaa", "aaaa", Region{Start: 3, OldEnd: 3, NewEnd: 4}, 1},
		{"identical", "abc", "abc", Region{Start: 3, OldEnd: 3, NewEnd: 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Changed(tt.old, tt.new)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.delta, got.Delta())
			assert.Equal(t, tt.old[:got.Start]+tt.new[got.Start:got.NewEnd]+tt.old[got.OldEnd:], tt.new)
		})
	}

	assert.True(t, Changed("x", "x").IsEmpty())
}

func TestDescribe(t *testing.T) {
	out := Describe("hello world", "hello there")
	assert.Contains(t, out, "@@")
	assert.Empty(t, Describe("same", "same"))
}
