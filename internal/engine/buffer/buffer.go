package buffer

import (
	"errors"
	"io"
	"sync"

	"github.com/dshills/treesync/internal/engine/rope"
)

// Errors returned by buffer operations.
var (
	ErrOffsetOutOfRange = errors.New("offset out of range")
	ErrRangeInvalid     = errors.New("invalid range")
	ErrEditsOverlap     = errors.New("edits overlap or are not in reverse order")
	ErrModified         = errors.New("buffer modified")
)

// DefaultChunkSize is the maximum number of bytes stored in one chunk.
const DefaultChunkSize = rope.DefaultChunkSize

// Buffer is a versioned, mutable character sequence.
// All methods are thread-safe.
type Buffer struct {
	mu        sync.RWMutex
	text      rope.Rope
	modSeq    ModSeq
	chunkSize int

	lmu       sync.RWMutex
	listeners []Listener
}

// Option is a functional option for configuring a Buffer.
type Option func(*Buffer)

// WithChunkSize sets the maximum chunk size used for storage.
func WithChunkSize(size int) Option {
	return func(b *Buffer) {
		if size > 0 {
			b.chunkSize = size
		}
	}
}

// NewBuffer creates a new empty buffer.
func NewBuffer(opts ...Option) *Buffer {
	b := &Buffer{
		chunkSize: DefaultChunkSize,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.text = rope.New(b.chunkSize)
	return b
}

// NewBufferFromString creates a buffer with initial content.
func NewBufferFromString(s string, opts ...Option) *Buffer {
	b := NewBuffer(opts...)
	b.text = rope.FromString(s, b.chunkSize)
	return b
}

// NewBufferFromReader creates a buffer from an io.Reader.
func NewBufferFromReader(r io.Reader, opts ...Option) (*Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewBufferFromString(string(data), opts...), nil
}

// AddListener registers a listener for raw edit events.
// It returns a function that removes the listener.
func (b *Buffer) AddListener(l Listener) func() {
	b.lmu.Lock()
	defer b.lmu.Unlock()

	b.listeners = append(b.listeners, l)
	idx := len(b.listeners) - 1
	return func() {
		b.lmu.Lock()
		defer b.lmu.Unlock()
		if idx < len(b.listeners) {
			b.listeners[idx] = nil
		}
	}
}

func (b *Buffer) notify(changes []Change) {
	b.lmu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		if l != nil {
			listeners = append(listeners, l)
		}
	}
	b.lmu.RUnlock()

	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}

// Read Operations

// Text returns the full buffer content as a string.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text.String()
}

// TextRange returns text in the given byte range.
func (b *Buffer) TextRange(start, end ByteOffset) string {
	return b.Freeze().TextRange(start, end)
}

// Len returns the total byte length of the buffer.
func (b *Buffer) Len() ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text.Len()
}

// LineCount returns the number of lines.
func (b *Buffer) LineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text.LineCount()
}

// IsEmpty returns true if the buffer is empty.
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// ModSeq returns the current modification sequence number.
func (b *Buffer) ModSeq() ModSeq {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.modSeq
}

// Freeze returns an immutable snapshot of the current content.
// Rope nodes are immutable and shared with the snapshot, so this does not
// copy text.
func (b *Buffer) Freeze() *Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.freezeLocked()
}

func (b *Buffer) freezeLocked() *Snapshot {
	return &Snapshot{text: b.text, modSeq: b.modSeq}
}

// Write Operations

// Insert inserts text at the given offset.
// Returns the end position of the inserted text.
func (b *Buffer) Insert(offset ByteOffset, text string) (ByteOffset, error) {
	if offset < 0 || offset > b.Len() {
		return 0, ErrOffsetOutOfRange
	}
	return b.Replace(offset, offset, text)
}

// Delete removes text in the given range.
func (b *Buffer) Delete(start, end ByteOffset) error {
	_, err := b.Replace(start, end, "")
	return err
}

// Replace replaces text in the given range with new text.
// Returns the end position of the replacement text.
func (b *Buffer) Replace(start, end ByteOffset, text string) (ByteOffset, error) {
	b.mu.Lock()
	c, err := b.replaceLocked(Edit{Range: Range{Start: start, End: end}, NewText: text})
	b.mu.Unlock()
	if err != nil {
		return 0, err
	}

	b.notify([]Change{c})
	return start + len(text), nil
}

// ApplyEdit applies a single edit to the buffer.
func (b *Buffer) ApplyEdit(edit Edit) (Change, error) {
	b.mu.Lock()
	c, err := b.replaceLocked(edit)
	b.mu.Unlock()
	if err != nil {
		return Change{}, err
	}

	b.notify([]Change{c})
	return c, nil
}

// ApplyEdits applies multiple edits atomically.
// Edits must be in reverse order (highest offset first) to maintain validity.
// Each edit advances the modification sequence and produces its own Change.
func (b *Buffer) ApplyEdits(edits []Edit) error {
	_, err := b.applyEdits(edits, nil)
	return err
}

// ApplyEditsAt is ApplyEdits that only applies when the modification sequence
// still equals seq. It returns ErrModified otherwise. The returned snapshot is
// the buffer frozen right after the edits.
func (b *Buffer) ApplyEditsAt(seq ModSeq, edits []Edit) (*Snapshot, error) {
	return b.applyEdits(edits, &seq)
}

func (b *Buffer) applyEdits(edits []Edit, seq *ModSeq) (*Snapshot, error) {
	// Validate edits are in reverse order and non-overlapping
	for i := 1; i < len(edits); i++ {
		if edits[i].Range.End > edits[i-1].Range.Start {
			return nil, ErrEditsOverlap
		}
	}

	b.mu.Lock()
	if seq != nil && *seq != b.modSeq {
		b.mu.Unlock()
		return nil, ErrModified
	}
	n := b.text.Len()
	for _, edit := range edits {
		if !edit.Range.IsValid() || edit.Range.End > n {
			b.mu.Unlock()
			return nil, ErrRangeInvalid
		}
	}

	changes := make([]Change, 0, len(edits))
	for _, edit := range edits {
		c, err := b.replaceLocked(edit)
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		changes = append(changes, c)
	}
	after := b.freezeLocked()
	b.mu.Unlock()

	b.notify(changes)
	return after, nil
}

func (b *Buffer) replaceLocked(edit Edit) (Change, error) {
	r := edit.Range
	if !r.IsValid() || r.End > b.text.Len() {
		return Change{}, ErrRangeInvalid
	}

	before := b.freezeLocked()
	oldText := b.text.Slice(r.Start, r.End)
	b.text = b.text.Replace(r.Start, r.End, edit.NewText)
	b.modSeq++

	return Change{
		Range:   r,
		OldText: oldText,
		NewText: edit.NewText,
		ModSeq:  b.modSeq,
		Before:  before,
	}, nil
}

// SetText replaces the whole content.
func (b *Buffer) SetText(text string) error {
	b.mu.Lock()
	c, err := b.replaceLocked(Edit{Range: Range{End: b.text.Len()}, NewText: text})
	b.mu.Unlock()
	if err != nil {
		return err
	}

	b.notify([]Change{c})
	return nil
}
