package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/treesync/internal/config"
	"github.com/dshills/treesync/internal/engine/buffer"
	"github.com/dshills/treesync/internal/event"
	"github.com/dshills/treesync/internal/lang/brace"
	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/syntax"
)

func manualConfig() config.Config {
	cfg := config.Default()
	cfg.Sync.AutoCommit = false
	return cfg
}

func newEngine(t *testing.T, cfg config.Config) *Engine {
	t.Helper()
	e, err := New(brace.NewParser(), WithConfig(cfg), WithLogger(logging.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func open(t *testing.T, e *Engine, text string) *Document {
	t.Helper()
	doc, err := e.Open(context.Background(), "test.br", text)
	require.NoError(t, err)
	return doc
}

// topics collects the topics published on a bus.
type topics struct {
	mu   sync.Mutex
	seen []event.Topic
}

func subscribe(t *testing.T, bus *event.Bus, pattern event.Topic) *topics {
	t.Helper()
	rec := &topics{}
	_, err := bus.SubscribeFunc(pattern, func(_ context.Context, ev any) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.seen = append(rec.seen, ev.(event.TopicProvider).EventTopic())
		return nil
	})
	require.NoError(t, err)
	return rec
}

func (r *topics) list() []event.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Topic(nil), r.seen...)
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sync.Workers = 0
	_, err := New(brace.NewParser(), WithConfig(cfg), WithLogger(logging.Nop()))
	var verr *config.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestEngineLocalReparse(t *testing.T) {
	e := newEngine(t, manualConfig())
	doc := open(t, e, "{ foo(); }")
	root := doc.Root()
	block := root.FirstChild()

	_, err := e.Edit(doc, 8, 8, "bar();")
	require.NoError(t, err)
	assert.False(t, doc.IsCommitted())

	out, err := e.CommitNow(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, out.Mode)
	assert.Same(t, root, doc.Root())
	assert.False(t, block.Valid())
	assert.Equal(t, "{ foo();bar(); }", doc.Root().Text())
	assert.True(t, doc.IsCommitted())
}

func TestEngineWholesaleReplacement(t *testing.T) {
	e := newEngine(t, manualConfig())
	doc := open(t, e, "{ foo(); }")

	require.NoError(t, doc.Buffer().SetText("x = 1;"))
	out, err := e.CommitNow(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, ModeWhole, out.Mode)
	assert.Equal(t, "x = 1;", doc.Root().Text())
}

func TestEngineAutoCommit(t *testing.T) {
	e := newEngine(t, config.Default())
	doc := open(t, e, "a; { b; }")

	for i := range 10 {
		_, err := e.Edit(doc, 0, 0, "x;")
		require.NoError(t, err, "edit %d", i)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.WaitIdle(ctx, doc))

	assert.True(t, doc.IsCommitted())
	assert.Equal(t, doc.Buffer().Text(), doc.Root().Text())
	require.NoError(t, syntax.Check(doc.Root()))
	assert.LessOrEqual(t, e.PeakRunning(doc), int64(1))
	assert.GreaterOrEqual(t, e.Stats().Applied, uint64(1))
}

func TestEditTreeMinimalPatch(t *testing.T) {
	e := newEngine(t, manualConfig())
	doc := open(t, e, "abcXYZdef;")
	var changes []buffer.Change
	doc.Buffer().AddListener(func(c buffer.Change) { changes = append(changes, c) })
	rec := subscribe(t, e.Bus(), "tree.**")

	stmt := doc.Root().FirstChild()
	err := e.EditTree(context.Background(), doc, func(tx *TreeTx) error {
		leaf := syntax.LeafAt(tx.Root(), 0)
		replacement, err := tx.ReplaceText(leaf, "abcXY Zdef")
		if err != nil {
			return err
		}
		assert.Equal(t, "abcXY Zdef", replacement.Text())
		assert.Equal(t, "abcXY Zdef;", tx.Text())
		return nil
	})
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, buffer.NewRange(5, 5), changes[0].Range)
	assert.Equal(t, " ", changes[0].NewText)

	assert.Equal(t, "abcXY Zdef;", doc.Buffer().Text())
	assert.Equal(t, doc.Buffer().Text(), doc.Root().Text())
	assert.True(t, doc.IsCommitted())
	assert.True(t, stmt.Valid())
	assert.Equal(t, []event.Topic{
		"tree.node.replace.before",
		"tree.node.replace.after",
		"tree.subtree.changed",
	}, rec.list())

	out, err := e.CommitNow(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, ModeNoop, out.Mode)
}

func TestEditTreeStructural(t *testing.T) {
	e := newEngine(t, manualConfig())
	doc := open(t, e, "a; b;")
	var starts []int
	doc.Buffer().AddListener(func(c buffer.Change) { starts = append(starts, c.Range.Start) })

	err := e.EditTree(context.Background(), doc, func(tx *TreeTx) error {
		root := tx.Root()
		if err := tx.Delete(root.FirstChild()); err != nil {
			return err
		}
		stmt := syntax.NewComposite(brace.Statement,
			syntax.NewLeaf(brace.Ident, "c"),
			syntax.NewLeaf(brace.Punct, ";"),
		)
		return tx.Insert(root, stmt, root.ChildCount())
	})
	require.NoError(t, err)

	assert.Equal(t, " b;c;", doc.Buffer().Text())
	assert.Equal(t, " b;c;", doc.Root().Text())
	assert.Equal(t, []int{5, 0}, starts, "edits are written back to front")
	require.NoError(t, syntax.Check(doc.Root()))
	assert.True(t, doc.IsCommitted())
}

func TestEditTreeErrors(t *testing.T) {
	e := newEngine(t, manualConfig())
	doc := open(t, e, "a; { b; }")
	foreign, err := brace.NewParser().Parse(context.Background(), "z;")
	require.NoError(t, err)

	var saved *TreeTx
	err = e.EditTree(context.Background(), doc, func(tx *TreeTx) error {
		saved = tx
		root := tx.Root()
		stmt := root.FirstChild()

		assert.ErrorIs(t, tx.Replace(root, syntax.NewLeaf(brace.Ident, "x")), ErrRootNode)
		assert.ErrorIs(t, tx.Delete(foreign.FirstChild()), ErrNotInTree)
		assert.ErrorIs(t, tx.Insert(root, stmt.FirstChild(), 0), ErrAttached)
		assert.ErrorIs(t, tx.Insert(root, syntax.NewLeaf(brace.Whitespace, " "), 9), ErrIndexOutOfRange)
		_, err := tx.ReplaceText(stmt, "x")
		assert.ErrorIs(t, err, ErrNotLeaf)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "a; { b; }", doc.Buffer().Text())

	assert.ErrorIs(t, saved.Delete(doc.Root().FirstChild()), ErrTxDone)
}

func TestEditTreeCommitsPendingEdits(t *testing.T) {
	e := newEngine(t, manualConfig())
	doc := open(t, e, "a;")
	_, err := e.Edit(doc, 2, 2, " b;")
	require.NoError(t, err)

	err = e.EditTree(context.Background(), doc, func(tx *TreeTx) error {
		assert.Equal(t, "a; b;", tx.Root().Text())
		_, err := tx.ReplaceText(syntax.LeafAt(tx.Root(), 3), "c")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "a; c;", doc.Buffer().Text())
}

func TestEditTreeConflict(t *testing.T) {
	e := newEngine(t, manualConfig())
	doc := open(t, e, "a; b;")

	err := e.EditTree(context.Background(), doc, func(tx *TreeTx) error {
		if _, err := tx.ReplaceText(syntax.LeafAt(tx.Root(), 0), "x"); err != nil {
			return err
		}
		_, err := doc.Buffer().Insert(5, " c;")
		return err
	})
	assert.ErrorIs(t, err, buffer.ErrModified)
	assert.Equal(t, "a; b; c;", doc.Buffer().Text())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.WaitIdle(ctx, doc))
	assert.Equal(t, "a; b; c;", doc.Root().Text())
	assert.True(t, doc.IsCommitted())
	assert.False(t, doc.ForceFullReparse())
}

func TestConcurrentEditsAndCommits(t *testing.T) {
	e := newEngine(t, config.Default())
	doc := open(t, e, "a; { b; c(); }")
	ctx := context.Background()

	var writers sync.WaitGroup
	for i := 0; i < 4; i++ {
		writers.Add(1)
		go func(i int) {
			defer writers.Done()
			for j := 0; j < 50; j++ {
				off := (i*13 + j*5) % (doc.Buffer().Len() + 1)
				_, err := e.Edit(doc, off, off, " x;")
				assert.NoError(t, err)
			}
		}(i)
	}

	done := make(chan struct{})
	committer := make(chan struct{})
	go func() {
		defer close(committer)
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if i%2 == 0 {
				_, _ = e.CommitNow(ctx, doc)
				continue
			}
			_ = e.EditTree(ctx, doc, func(tx *TreeTx) error {
				leaf := syntax.LeafAt(tx.Root(), 0)
				if leaf == nil {
					return nil
				}
				_, err := tx.ReplaceText(leaf, leaf.Text())
				return err
			})
		}
	}()

	writers.Wait()
	close(done)
	<-committer

	_, err := e.CommitNow(ctx, doc)
	require.NoError(t, err)
	text := doc.Buffer().Text()
	assert.Equal(t, text, doc.Root().Text())

	full, err := brace.NewParser().Parse(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, syntax.Dump(full), syntax.Dump(doc.Root()))
}

func TestEngineDocuments(t *testing.T) {
	e := newEngine(t, manualConfig())
	b, err := e.Open(context.Background(), "b.br", "b;")
	require.NoError(t, err)
	a, err := e.Open(context.Background(), "a.br", "a;")
	require.NoError(t, err)

	got, ok := e.Lookup(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, []*Document{a, b}, e.Documents())

	require.NoError(t, e.Close(a))
	assert.ErrorIs(t, e.Close(a), ErrUnknownDocument)
	_, ok = e.Lookup(a.ID())
	assert.False(t, ok)

	_, err = e.Edit(a, 0, 0, "x")
	assert.ErrorIs(t, err, ErrUnknownDocument)
	_, err = e.CommitNow(context.Background(), a)
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

func TestReconfigure(t *testing.T) {
	e := newEngine(t, manualConfig())

	bad := e.Config()
	bad.Sync.MaxTreeDepth = 0
	require.Error(t, e.Reconfigure(bad))
	assert.Equal(t, 256, e.differ.MaxDepth())

	cfg := e.Config()
	cfg.Sync.MaxTreeDepth = -1
	cfg.Sync.Workers = 4
	cfg.Logging.Level = "debug"
	require.NoError(t, e.Reconfigure(cfg))
	assert.Equal(t, cfg, e.Config())
	assert.Negative(t, e.differ.MaxDepth())
	assert.Equal(t, logging.LevelDebug, e.Logger().Level())
}

func TestWatchConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treesync.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sync]\nauto_commit = false\n"), 0o644))

	e := newEngine(t, manualConfig())
	loader := config.NewLoader(path, config.WithEnviron(func() []string { return nil }))
	require.NoError(t, e.WatchConfig(context.Background(), path,
		config.WithLoader(loader), config.WithDebounce(10*time.Millisecond)))

	require.NoError(t, os.WriteFile(path, []byte("[sync]\nauto_commit = false\nmax_tree_depth = 7\n"), 0o644))
	assert.Eventually(t, func() bool {
		return e.Config().Sync.MaxTreeDepth == 7
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 7, e.differ.MaxDepth())

	require.NoError(t, os.WriteFile(path, []byte("[sync]\nworkers = 0\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 7, e.Config().Sync.MaxTreeDepth, "invalid files are ignored")
}

func TestStop(t *testing.T) {
	e, err := New(brace.NewParser(), WithConfig(manualConfig()), WithLogger(logging.Nop()))
	require.NoError(t, err)
	doc := open(t, e, "a;")

	require.NoError(t, e.Stop())
	assert.ErrorIs(t, e.Stop(), ErrClosed)

	_, err = e.Open(context.Background(), "x", "x;")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.Edit(doc, 0, 0, "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.WatchConfig(context.Background(), "x.toml"), ErrClosed)
	assert.Empty(t, e.Documents())
}
