package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dshills/treesync/internal/commit"
	"github.com/dshills/treesync/internal/config"
	"github.com/dshills/treesync/internal/engine/buffer"
	"github.com/dshills/treesync/internal/event"
	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/metrics"
	"github.com/dshills/treesync/internal/syntax"
	"github.com/dshills/treesync/internal/treediff"
)

// Re-export commonly used types for convenience.
type (
	// ByteOffset is a byte position in a buffer.
	ByteOffset = buffer.ByteOffset

	// Range represents a byte range in a buffer.
	Range = buffer.Range

	// Edit represents a text edit.
	Edit = buffer.Edit

	// Document is a buffer together with its committed syntax tree.
	Document = commit.Document

	// Outcome reports what a commit did.
	Outcome = commit.Outcome

	// Mode is how a commit brought a tree up to date.
	Mode = commit.Mode

	// Stats is a snapshot of scheduler counters.
	Stats = commit.Stats
)

// Re-export constants.
const (
	ModeNoop   = commit.ModeNoop
	ModeLocal  = commit.ModeLocal
	ModeDiff   = commit.ModeDiff
	ModeWhole  = commit.ModeWhole
	ModeReload = commit.ModeReload
)

// Engine keeps the syntax trees of a set of documents in step with their
// buffers. It owns the process-wide write context: only one tree mutation is
// in flight at any time across all of its documents.
//
// All operations are thread-safe and can be called from multiple goroutines.
type Engine struct {
	parser     syntax.Parser
	logger     *logging.Logger
	bus        *event.Bus
	metrics    *metrics.Recorder
	comparator treediff.Comparator

	// write is the exclusive write context. Commits hold it while applying
	// and tree transactions for their whole duration.
	write sync.Mutex

	differ    *treediff.Differencer
	committer *commit.Committer
	scheduler *commit.Scheduler

	cfg atomic.Pointer[config.Config]

	mu      sync.RWMutex
	docs    map[string]*entry
	watcher *config.Watcher
	closed  bool
}

type entry struct {
	doc            *Document
	removeListener func()
}

// New creates an engine that parses documents with parser.
func New(parser syntax.Parser, opts ...Option) (*Engine, error) {
	e := &Engine{
		parser: parser,
		docs:   make(map[string]*entry),
	}
	def := config.Default()
	e.cfg.Store(&def)

	for _, opt := range opts {
		opt(e)
	}

	cfg := *e.cfg.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	if e.logger == nil {
		lc := logging.DefaultConfig()
		lc.Level = cfg.LogLevel()
		e.logger = logging.New(lc)
	}
	if e.bus == nil {
		log := e.logger.WithComponent("event")
		e.bus = event.NewBus(event.WithErrorHandler(func(ev any, err error) {
			log.Warn("handler failed for %T: %v", ev, err)
		}))
	}
	if e.metrics == nil {
		e.metrics = metrics.New(e.logger)
	}

	e.differ = treediff.New(parser, treediff.Options{
		MaxDepth:   cfg.Sync.MaxTreeDepth,
		Comparator: e.comparator,
		Logger:     e.logger,
	})
	e.committer = commit.NewCommitter(commit.NewPipelineWith(e.differ, e.logger), commit.CommitterOptions{
		Bus:              e.bus,
		Metrics:          e.metrics,
		Logger:           e.logger,
		WriteLock:        &e.write,
		ConsistencyCheck: cfg.Sync.ConsistencyCheck,
	})
	e.scheduler = commit.NewScheduler(e.committer, commit.SchedulerOptions{
		Workers:    cfg.Sync.Workers,
		MaxRetries: retryLimit(cfg),
		Metrics:    e.metrics,
		Logger:     e.logger,
	})
	return e, nil
}

// retryLimit maps the configured bound onto the scheduler's, where zero means
// the default.
func retryLimit(cfg config.Config) int {
	if cfg.Sync.MaxRetries == 0 {
		return -1
	}
	return cfg.Sync.MaxRetries
}

// ============================================================================
// Documents
// ============================================================================

// Open creates a document holding text and parses it.
func (e *Engine) Open(ctx context.Context, name, text string) (*Document, error) {
	return e.OpenBuffer(ctx, name, buffer.NewBufferFromString(text))
}

// OpenBuffer creates a document over an existing buffer.
func (e *Engine) OpenBuffer(ctx context.Context, name string, buf *buffer.Buffer) (*Document, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	doc, err := commit.NewDocument(ctx, name, buf, e.parser)
	if err != nil {
		return nil, err
	}
	ent := &entry{doc: doc}
	ent.removeListener = buf.AddListener(func(buffer.Change) {
		if !e.cfg.Load().Sync.AutoCommit {
			return
		}
		if err := e.scheduler.RequestCommit(doc, "edit"); err != nil {
			e.logger.Debug("auto-commit of %s skipped: %v", name, err)
		}
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		ent.removeListener()
		doc.Close()
		return nil, ErrClosed
	}
	e.docs[doc.ID()] = ent
	e.logger.Debug("opened %s (%s), %d bytes", name, doc.ID(), buf.Len())
	return doc, nil
}

// Lookup returns the open document with the given ID.
func (e *Engine) Lookup(id string) (*Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ent, ok := e.docs[id]
	if !ok {
		return nil, false
	}
	return ent.doc, true
}

// Documents returns the open documents sorted by name.
func (e *Engine) Documents() []*Document {
	e.mu.RLock()
	docs := make([]*Document, 0, len(e.docs))
	for _, ent := range e.docs {
		docs = append(docs, ent.doc)
	}
	e.mu.RUnlock()
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name() < docs[j].Name() })
	return docs
}

// Close cancels the pending work of doc and stops tracking it.
func (e *Engine) Close(doc *Document) error {
	e.mu.Lock()
	ent, ok := e.docs[doc.ID()]
	delete(e.docs, doc.ID())
	e.mu.Unlock()
	if !ok {
		return ErrUnknownDocument
	}
	ent.removeListener()
	e.scheduler.Forget(doc)
	doc.Close()
	return nil
}

// ============================================================================
// Edits and commits
// ============================================================================

// Edit replaces [start, end) of the document text. With auto-commit enabled
// a background commit is requested.
func (e *Engine) Edit(doc *Document, start, end ByteOffset, text string) (ByteOffset, error) {
	if err := e.check(doc); err != nil {
		return 0, err
	}
	return doc.Buffer().Replace(start, end, text)
}

// RequestCommit asks for doc to be committed in the background, replacing
// any queued or running commit.
func (e *Engine) RequestCommit(doc *Document, reason string) error {
	if err := e.check(doc); err != nil {
		return err
	}
	return e.scheduler.RequestCommit(doc, reason)
}

// CommitNow commits doc on the calling goroutine.
func (e *Engine) CommitNow(ctx context.Context, doc *Document) (Outcome, error) {
	if err := e.check(doc); err != nil {
		return Outcome{}, err
	}
	return e.scheduler.CommitNow(ctx, doc)
}

// CancelAll cancels the queued and running commits of doc.
func (e *Engine) CancelAll(doc *Document) {
	e.scheduler.CancelAll(doc)
}

// WaitIdle blocks until doc has no queued or running commit.
func (e *Engine) WaitIdle(ctx context.Context, doc *Document) error {
	return e.scheduler.WaitIdle(ctx, doc)
}

// PeakRunning returns the most commits ever running at once for doc.
func (e *Engine) PeakRunning(doc *Document) int64 {
	return e.scheduler.PeakRunning(doc)
}

func (e *Engine) check(doc *Document) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	if _, ok := e.docs[doc.ID()]; !ok {
		return ErrUnknownDocument
	}
	return nil
}

// ============================================================================
// Configuration
// ============================================================================

// Config returns the current configuration.
func (e *Engine) Config() config.Config {
	return *e.cfg.Load()
}

// Reconfigure validates cfg and applies it. The worker count is fixed when
// the engine is created; a change is logged and otherwise ignored.
func (e *Engine) Reconfigure(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	old := e.cfg.Swap(&cfg)

	e.differ.SetMaxDepth(cfg.Sync.MaxTreeDepth)
	e.scheduler.SetMaxRetries(retryLimit(cfg))
	e.committer.SetConsistencyCheck(cfg.Sync.ConsistencyCheck)
	e.logger.SetLevel(cfg.LogLevel())

	if old.Sync.Workers != cfg.Sync.Workers {
		e.logger.Warn("sync.workers changed from %d to %d; restart to apply", old.Sync.Workers, cfg.Sync.Workers)
	}
	e.logger.Info("configuration applied")
	return nil
}

// WatchConfig reloads the configuration file at path whenever it changes
// and applies it. Invalid files are logged and leave the configuration as
// it was.
func (e *Engine) WatchConfig(ctx context.Context, path string, opts ...config.WatchOption) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.watcher != nil {
		_ = e.watcher.Close()
	}
	log := e.logger.WithField("path", path)
	w, err := config.Watch(ctx, path, func(cfg config.Config, err error) {
		if err == nil {
			err = e.Reconfigure(cfg)
		}
		if err != nil {
			log.Error("config reload failed: %v", err)
		}
	}, opts...)
	if err != nil {
		return err
	}
	e.watcher = w
	return nil
}

// ============================================================================
// Accessors and lifecycle
// ============================================================================

// Bus returns the event bus.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Metrics returns the metrics recorder.
func (e *Engine) Metrics() *metrics.Recorder { return e.metrics }

// Logger returns the engine logger.
func (e *Engine) Logger() *logging.Logger { return e.logger }

// Stats returns the scheduler counters.
func (e *Engine) Stats() Stats { return e.scheduler.Stats() }

// Stop cancels all work, closes every document and stops watching the
// configuration.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	docs := e.docs
	e.docs = make(map[string]*entry)
	w := e.watcher
	e.watcher = nil
	e.mu.Unlock()

	if w != nil {
		_ = w.Close()
	}
	err := e.scheduler.Close()
	for _, ent := range docs {
		ent.removeListener()
		ent.doc.Close()
	}
	return err
}
