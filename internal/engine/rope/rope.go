package rope

import (
	"math/bits"
	"strings"
)

// Rope is an immutable sequence of text. Operations return new ropes and
// leave the receiver unchanged, so a Rope may be shared freely between
// goroutines. The zero value is an empty rope using DefaultChunkSize.
type Rope struct {
	root *node
	size int
}

// New creates an empty rope whose chunks hold at most chunkSize bytes. A
// chunkSize <= 0 selects DefaultChunkSize.
func New(chunkSize int) Rope {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return Rope{root: emptyLeaf, size: chunkSize}
}

// FromString creates a rope holding s.
func FromString(s string, chunkSize int) Rope {
	r := New(chunkSize)
	r.root = buildChunks(chunkString(s, r.size))
	return r
}

func (r Rope) node() *node {
	if r.root == nil {
		return emptyLeaf
	}
	return r.root
}

func (r Rope) with(root *node) Rope {
	if r.size <= 0 {
		r.size = DefaultChunkSize
	}
	r.root = root
	return r
}

// ChunkSize returns the maximum chunk size of the rope.
func (r Rope) ChunkSize() int {
	if r.size <= 0 {
		return DefaultChunkSize
	}
	return r.size
}

// Summary returns the metrics of the whole rope.
func (r Rope) Summary() Summary {
	return r.node().summary
}

// Len returns the total byte length.
func (r Rope) Len() int {
	return r.node().len()
}

// LineCount returns the number of lines (newlines + 1).
func (r Rope) LineCount() int {
	return r.node().summary.Lines + 1
}

// IsEmpty returns true if the rope holds no text.
func (r Rope) IsEmpty() bool {
	return r.Len() == 0
}

// Height returns the height of the tree.
func (r Rope) Height() int {
	return int(r.node().height) + 1
}

// String returns the full text.
func (r Rope) String() string {
	return r.Slice(0, r.Len())
}

// Slice returns the text in [start, end), clamped to the rope bounds.
func (r Rope) Slice(start, end int) string {
	n := r.node()
	start = max(0, min(start, n.len()))
	end = max(start, min(end, n.len()))
	if start == end {
		return ""
	}
	var sb strings.Builder
	sb.Grow(end - start)
	n.appendRange(&sb, start, end)
	return sb.String()
}

// Each calls fn with every chunk of text in order until fn returns false.
func (r Rope) Each(fn func(text string) bool) {
	r.node().each(func(c chunk) bool {
		return fn(c.text)
	})
}

// Split returns ropes holding [0, off) and [off, Len()).
func (r Rope) Split(off int) (Rope, Rope) {
	left, right := r.node().split(off)
	return r.with(left), r.with(right)
}

// Concat returns the rope followed by other.
func (r Rope) Concat(other Rope) Rope {
	return r.with(concat(r.node(), other.node())).balanced()
}

// Insert returns a rope with text inserted at off.
func (r Rope) Insert(off int, text string) Rope {
	return r.Replace(off, off, text)
}

// Delete returns a rope with [start, end) removed.
func (r Rope) Delete(start, end int) Rope {
	return r.Replace(start, end, "")
}

// Replace returns a rope with [start, end) replaced by text. Offsets are
// clamped to the rope bounds.
func (r Rope) Replace(start, end int, text string) Rope {
	n := r.node()
	start = max(0, min(start, n.len()))
	end = max(start, min(end, n.len()))
	if start == end && text == "" {
		return r.with(n)
	}

	left, rest := n.split(start)
	_, right := rest.split(end - start)
	mid := buildChunks(chunkString(text, r.ChunkSize()))
	return r.with(concat(concat(left, mid), right)).balanced()
}

// balanced rebuilds the tree from its chunks once it is much deeper than a
// balanced tree over the same chunks, or once small edits have left it with
// far more chunks than its text needs.
func (r Rope) balanced() Rope {
	n := r.node()
	s := n.summary
	deep := int(n.height) > 2*bits.Len(uint(s.Chunks))+2
	fragmented := s.Chunks > 2*(s.Bytes/r.ChunkSize())+maxChunksPerLeaf
	if !deep && !fragmented {
		return r
	}
	chunks := make([]chunk, 0, s.Chunks)
	n.each(func(c chunk) bool {
		chunks = append(chunks, c)
		return true
	})
	return r.with(buildChunks(coalesce(chunks, r.ChunkSize())))
}
