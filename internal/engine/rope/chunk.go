package rope

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the maximum number of bytes stored in one chunk when no
// size is given.
const DefaultChunkSize = 512

// Summary holds the aggregated metrics of a span of text.
type Summary struct {
	Bytes  int // UTF-8 byte count
	Lines  int // newline count
	Chunks int // chunks the span is stored in
}

// Add combines two adjacent summaries.
func (s Summary) Add(other Summary) Summary {
	return Summary{
		Bytes:  s.Bytes + other.Bytes,
		Lines:  s.Lines + other.Lines,
		Chunks: s.Chunks + other.Chunks,
	}
}

// chunk is a bounded run of text with its metrics computed up front.
type chunk struct {
	text    string
	summary Summary
}

func newChunk(s string) chunk {
	return chunk{
		text:    s,
		summary: Summary{Bytes: len(s), Lines: strings.Count(s, "\n"), Chunks: 1},
	}
}

func (c chunk) split(off int) (chunk, chunk) {
	return newChunk(c.text[:off]), newChunk(c.text[off:])
}

// chunkString cuts s into chunks of at most size bytes. Cuts are moved back to
// a rune boundary, or forward when a single rune is longer than size.
func chunkString(s string, size int) []chunk {
	if s == "" {
		return nil
	}
	chunks := make([]chunk, 0, len(s)/size+1)
	for len(s) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			for cut = size; cut < len(s) && !utf8.RuneStart(s[cut]); cut++ {
			}
		}
		chunks = append(chunks, newChunk(s[:cut]))
		s = s[cut:]
	}
	if s != "" {
		chunks = append(chunks, newChunk(s))
	}
	return chunks
}

// coalesce merges runs of adjacent chunks that fit together in size bytes.
func coalesce(chunks []chunk, size int) []chunk {
	out := make([]chunk, 0, len(chunks))
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			out = append(out, newChunk(sb.String()))
			sb.Reset()
		}
	}
	for _, c := range chunks {
		if c.summary.Bytes == 0 {
			continue
		}
		if sb.Len()+c.summary.Bytes > size {
			flush()
		}
		if c.summary.Bytes >= size {
			out = append(out, c)
			continue
		}
		sb.WriteString(c.text)
	}
	flush()
	return out
}
