package commit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/treesync/internal/lang/brace"
	"github.com/dshills/treesync/internal/syntax"
)

func newScheduler(t *testing.T, e *env, opts SchedulerOptions) *Scheduler {
	t.Helper()
	s := NewScheduler(e.committer, opts)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitIdle(t *testing.T, s *Scheduler, doc *Document) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIdle(ctx, doc))
}

func TestSchedulerRequestCommit(t *testing.T) {
	e := newEnv(t, brace.NewParser(), "a;")
	s := newScheduler(t, e, SchedulerOptions{})

	e.edit(t, 0, 1, "b")
	require.NoError(t, s.RequestCommit(e.doc, "edit"))
	waitIdle(t, s, e.doc)

	assert.Equal(t, "b;", e.doc.Root().Text())
	assert.True(t, e.doc.IsCommitted())
	st := s.Stats()
	assert.Equal(t, uint64(1), st.Queued)
	assert.Equal(t, uint64(1), st.Applied)
	assert.Equal(t, int64(0), st.Running)
}

func TestSchedulerWaitIdleUnknownDocument(t *testing.T) {
	e := newEnv(t, brace.NewParser(), "a;")
	s := newScheduler(t, e, SchedulerOptions{})
	assert.NoError(t, s.WaitIdle(context.Background(), e.doc))
	assert.Equal(t, int64(0), s.PeakRunning(e.doc))
}

func TestSchedulerConcurrentEdits(t *testing.T) {
	e := newEnv(t, brace.NewParser(), "{ }")
	s := newScheduler(t, e, SchedulerOptions{Workers: 4})

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				_, err := e.doc.Buffer().Insert(2, fmt.Sprintf("s%d_%d; ", w, i))
				assert.NoError(t, err)
				assert.NoError(t, s.RequestCommit(e.doc, "edit"))
			}
		}()
	}
	wg.Wait()
	waitIdle(t, s, e.doc)

	assert.Equal(t, e.doc.Buffer().Text(), e.doc.Root().Text())
	assert.True(t, e.doc.IsCommitted())
	require.NoError(t, syntax.Check(e.doc.Root()))
	assert.LessOrEqual(t, s.PeakRunning(e.doc), int64(1))
	assert.Nil(t, e.doc.LastDefect())
}

func TestSchedulerManyDocuments(t *testing.T) {
	e := newEnv(t, brace.NewParser(), "a;")
	s := newScheduler(t, e, SchedulerOptions{Workers: 2})

	docs := []*Document{e.doc}
	for i := range 3 {
		other := newEnv(t, brace.NewParser(), fmt.Sprintf("d%d;", i))
		docs = append(docs, other.doc)
	}
	for i, doc := range docs {
		_, err := doc.Buffer().Insert(0, fmt.Sprintf("x%d; ", i))
		require.NoError(t, err)
		require.NoError(t, s.RequestCommit(doc, "edit"))
	}
	for _, doc := range docs {
		waitIdle(t, s, doc)
		assert.Equal(t, doc.Buffer().Text(), doc.Root().Text())
	}
	assert.LessOrEqual(t, s.Stats().PeakRunning, int64(2))
}

func TestSchedulerCommitNow(t *testing.T) {
	e := newEnv(t, brace.NewParser(), "a; { b; }")
	s := newScheduler(t, e, SchedulerOptions{})

	e.edit(t, 0, 1, "c")
	require.NoError(t, s.RequestCommit(e.doc, "edit"))
	out, err := s.CommitNow(context.Background(), e.doc)
	require.NoError(t, err)
	assert.NotEqual(t, ModeReload, out.Mode)
	assert.Equal(t, "c; { b; }", e.doc.Root().Text())

	waitIdle(t, s, e.doc)
	assert.True(t, e.doc.IsCommitted())
}

func TestSchedulerCommitNowRetriesStale(t *testing.T) {
	p := &hookParser{}
	e := newEnv(t, p, "a;")
	s := newScheduler(t, e, SchedulerOptions{})
	var once sync.Once
	p.onParse = func(string) {
		once.Do(func() {
			_, err := e.doc.Buffer().Insert(0, "z;")
			require.NoError(t, err)
		})
	}

	e.edit(t, 0, 1, "b")
	_, err := s.CommitNow(context.Background(), e.doc)
	require.NoError(t, err)
	assert.Equal(t, "z;b;", e.doc.Root().Text())
	assert.Equal(t, uint64(1), s.Stats().Stale)
}

func TestSchedulerCancelAll(t *testing.T) {
	p := &hookParser{}
	e := newEnv(t, p, "a;")
	s := newScheduler(t, e, SchedulerOptions{})

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p.onParse = func(string) {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	e.edit(t, 0, 1, "b")
	require.NoError(t, s.RequestCommit(e.doc, "edit"))
	<-started
	s.CancelAll(e.doc)
	close(release)
	waitIdle(t, s, e.doc)

	assert.Equal(t, "a;", e.doc.Root().Text(), "canceled work is not applied")
	assert.False(t, e.doc.IsCommitted())
	assert.GreaterOrEqual(t, s.Stats().Canceled, uint64(1))
}

func TestSchedulerFaultRetries(t *testing.T) {
	p := &hookParser{}
	e := newEnv(t, p, "a;")
	s := newScheduler(t, e, SchedulerOptions{MaxRetries: 2})

	p.fail.Store(true)
	e.edit(t, 0, 1, "b")
	require.NoError(t, s.RequestCommit(e.doc, "edit"))
	waitIdle(t, s, e.doc)

	st := s.Stats()
	assert.Equal(t, uint64(3), st.Faults)
	assert.Equal(t, uint64(2), st.Requeued)
	assert.True(t, e.doc.ForceFullReparse())
	require.NotNil(t, e.doc.LastDefect())
	assert.Equal(t, DefectRetries, e.doc.LastDefect().Kind)

	p.fail.Store(false)
	out, err := s.CommitNow(context.Background(), e.doc)
	require.NoError(t, err)
	assert.Equal(t, ModeWhole, out.Mode)
	assert.Equal(t, "b;", e.doc.Root().Text())
	assert.False(t, e.doc.ForceFullReparse())
}

func TestSchedulerForget(t *testing.T) {
	e := newEnv(t, brace.NewParser(), "a;")
	s := newScheduler(t, e, SchedulerOptions{})

	require.NoError(t, s.RequestCommit(e.doc, "edit"))
	waitIdle(t, s, e.doc)
	s.Forget(e.doc)
	s.Forget(e.doc)

	e.edit(t, 0, 1, "b")
	require.NoError(t, s.RequestCommit(e.doc, "edit"))
	waitIdle(t, s, e.doc)
	assert.Equal(t, "b;", e.doc.Root().Text())
}

func TestSchedulerClose(t *testing.T) {
	e := newEnv(t, brace.NewParser(), "a;")
	s := NewScheduler(e.committer, SchedulerOptions{})
	require.NoError(t, s.RequestCommit(e.doc, "edit"))

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrClosed)
	assert.ErrorIs(t, s.RequestCommit(e.doc, "edit"), ErrClosed)
	_, err := s.CommitNow(context.Background(), e.doc)
	assert.ErrorIs(t, err, ErrClosed)
}
