package buffer

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuffer(t *testing.T) {
	b := NewBuffer()

	assert.True(t, b.IsEmpty())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 1, b.LineCount())
	assert.Equal(t, ModSeq(0), b.ModSeq())
}

func TestNewBufferFromString(t *testing.T) {
	text := "line1\nline2\nline3"
	b := NewBufferFromString(text, WithChunkSize(4))

	assert.Equal(t, text, b.Text())
	assert.Equal(t, len(text), b.Len())
	assert.Equal(t, 3, b.LineCount())
	assert.Equal(t, "line2", b.TextRange(6, 11))
}

func TestNewBufferFromReader(t *testing.T) {
	b, err := NewBufferFromReader(strings.NewReader("{ foo(); }"))
	require.NoError(t, err)
	assert.Equal(t, "{ foo(); }", b.Text())
}

func TestBufferEdits(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		start int
		end   int
		repl  string
		want  string
	}{
		{"insert middle", "Hello World", 5, 5, ",", "Hello, World"},
		{"insert start", "World", 0, 0, "Hello ", "Hello World"},
		{"insert end", "Hello", 5, 5, "!", "Hello!"},
		{"delete", "Hello, World", 5, 7, "", "HelloWorld"},
		{"replace across chunks", "abcdefghijkl", 2, 10, "XY", "abXYkl"},
		{"replace all", "abc", 0, 3, "xyz", "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBufferFromString(tt.text, WithChunkSize(3))
			end, err := b.Replace(tt.start, tt.end, tt.repl)
			require.NoError(t, err)
			assert.Equal(t, tt.start+len(tt.repl), end)
			assert.Equal(t, tt.want, b.Text())
			assert.Equal(t, len(tt.want), b.Len())
			assert.Equal(t, ModSeq(1), b.ModSeq())
		})
	}
}

func TestBufferInvalidRanges(t *testing.T) {
	b := NewBufferFromString("abc")

	_, err := b.Insert(4, "x")
	assert.ErrorIs(t, err, ErrOffsetOutOfRange)

	_, err = b.Replace(2, 1, "x")
	assert.ErrorIs(t, err, ErrRangeInvalid)

	err = b.Delete(0, 10)
	assert.ErrorIs(t, err, ErrRangeInvalid)

	assert.Equal(t, ModSeq(0), b.ModSeq(), "failed edits must not advance the sequence")
}

func TestFreezeIsolation(t *testing.T) {
	b := NewBufferFromString("original text", WithChunkSize(4))
	snap := b.Freeze()

	_, err := b.Replace(0, 8, "changed")
	require.NoError(t, err)

	assert.Equal(t, "original text", snap.Text())
	assert.Equal(t, "changed text", b.Text())
	assert.Equal(t, ModSeq(0), snap.ModSeq())
	assert.Equal(t, "text", snap.TextRange(9, 100))
}

func TestApplyEditsDescending(t *testing.T) {
	b := NewBufferFromString("abcXYZdef")

	err := b.ApplyEdits([]Edit{
		NewEdit(NewRange(6, 9), "DEF"),
		NewInsert(5, " "),
		NewDelete(0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, "bcXY ZDEF", b.Text())
	assert.Equal(t, ModSeq(3), b.ModSeq())

	err = b.ApplyEdits([]Edit{NewInsert(0, "x"), NewInsert(3, "y")})
	assert.ErrorIs(t, err, ErrEditsOverlap)
}

func TestApplyEditsAt(t *testing.T) {
	b := NewBufferFromString("abc")
	seq := b.ModSeq()

	snap, err := b.ApplyEditsAt(seq, []Edit{NewInsert(3, "d")})
	require.NoError(t, err)
	assert.Equal(t, "abcd", b.Text())
	assert.Equal(t, "abcd", snap.Text())
	assert.Equal(t, b.ModSeq(), snap.ModSeq())

	_, err = b.ApplyEditsAt(seq, []Edit{NewInsert(0, "x")})
	assert.ErrorIs(t, err, ErrModified)
	assert.Equal(t, "abcd", b.Text())

	snap, err = b.ApplyEditsAt(b.ModSeq(), nil)
	require.NoError(t, err)
	assert.Equal(t, "abcd", snap.Text())
}

func TestListenersReceiveChanges(t *testing.T) {
	b := NewBufferFromString("hello")

	var got []Change
	remove := b.AddListener(func(c Change) {
		got = append(got, c)
	})

	_, err := b.Replace(0, 1, "J")
	require.NoError(t, err)
	_, err = b.Insert(5, "!")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "h", got[0].OldText)
	assert.Equal(t, "J", got[0].NewText)
	assert.Equal(t, ModSeq(1), got[0].ModSeq)
	assert.Equal(t, "hello", got[0].Before.Text())
	assert.Equal(t, "Jello", got[1].Before.Text())
	assert.Equal(t, NewInsert(5, "!"), got[1].Edit())

	remove()
	require.NoError(t, b.SetText("bye"))
	assert.Len(t, got, 2)
}

func TestConcurrentEditsAdvanceSequence(t *testing.T) {
	b := NewBuffer()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.Insert(0, "x")
			_ = b.Freeze().Text()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, b.Len())
	assert.Equal(t, ModSeq(50), b.ModSeq())
}

func TestSnapshotReadersDuringWrites(t *testing.T) {
	b := NewBufferFromString(strings.Repeat("{ a; }\n", 100), WithChunkSize(8))

	var readers, writers sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := b.Freeze()
				text := snap.Text()
				assert.Equal(t, snap.Len(), len(text))
				assert.Equal(t, strings.Count(text, "\n")+1, snap.LineCount())
				_ = snap.TextRange(3, 40)
			}
		}()
	}

	for i := 0; i < 4; i++ {
		writers.Add(1)
		go func(i int) {
			defer writers.Done()
			for j := 0; j < 100; j++ {
				off := (i*31 + j*7) % (b.Len() + 1)
				_, _ = b.Replace(off, off, "x;")
				_, _ = b.Replace(0, 1, "{")
			}
		}(i)
	}

	writers.Wait()
	close(done)
	readers.Wait()

	assert.Equal(t, 100*7+4*100*2, b.Len())
}
