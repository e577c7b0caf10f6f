package commit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/metrics"
)

// DefaultMaxRetries bounds how often a faulting background commit is
// requeued.
const DefaultMaxRetries = 8

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Queued   uint64
	Started  uint64
	Applied  uint64
	Canceled uint64
	Stale    uint64
	Requeued uint64
	Faults   uint64

	// Running is the number of tasks running now and PeakRunning the most
	// that ever ran at once across all documents.
	Running     int64
	PeakRunning int64
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Workers is the number of background compute slots. Zero means one.
	Workers int
	// MaxRetries bounds requeues after background faults. Zero means
	// DefaultMaxRetries and a negative value disables retries.
	MaxRetries int
	Metrics    *metrics.Recorder
	Logger     *logging.Logger
}

// Scheduler runs commits for many documents. Each document has one actor
// goroutine, so at most one task per document is running at any time.
type Scheduler struct {
	committer *Committer
	metrics   *metrics.Recorder
	logger    *logging.Logger

	slots      chan struct{}
	maxRetries atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	actors map[*Document]*actor
	closed bool

	queued   atomic.Uint64
	started  atomic.Uint64
	applied  atomic.Uint64
	canceled atomic.Uint64
	stale    atomic.Uint64
	requeued atomic.Uint64
	faults   atomic.Uint64
	running  atomic.Int64
	peak     atomic.Int64
}

// NewScheduler creates a scheduler that commits with c.
func NewScheduler(c *Committer, opts SchedulerOptions) *Scheduler {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	s := &Scheduler{
		committer: c,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		slots:     make(chan struct{}, workers),
		actors:    make(map[*Document]*actor),
	}
	if s.metrics == nil {
		s.metrics = c.metrics
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.logger = s.logger.WithComponent("scheduler")
	s.SetMaxRetries(opts.MaxRetries)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// SetMaxRetries changes the retry bound.
func (s *Scheduler) SetMaxRetries(n int) {
	if n == 0 {
		n = DefaultMaxRetries
	}
	s.maxRetries.Store(int64(n))
}

// Committer returns the committer used for every task.
func (s *Scheduler) Committer() *Committer {
	return s.committer
}

// RequestCommit asks for doc to be committed in the background. Any queued
// or running task for doc is canceled and replaced by a fresh one.
func (s *Scheduler) RequestCommit(doc *Document, reason string) error {
	a, err := s.actor(doc)
	if err != nil {
		return err
	}
	a.mu.Lock()
	if a.queued {
		s.canceled.Add(1)
		s.metrics.RecordCanceled(s.ctx)
	}
	a.queued = true
	a.reason = reason
	a.retries = 0
	a.cancelRunningLocked(s)
	a.mu.Unlock()

	s.queued.Add(1)
	a.kick()
	return nil
}

// CommitNow commits doc on the calling goroutine, canceling any queued or
// running background task. It retries while the buffer keeps changing and
// returns when ctx is done.
func (s *Scheduler) CommitNow(ctx context.Context, doc *Document) (Outcome, error) {
	a, err := s.actor(doc)
	if err != nil {
		return Outcome{}, err
	}
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	a.mu.Lock()
	if a.queued {
		a.queued = false
		s.canceled.Add(1)
		s.metrics.RecordCanceled(ctx)
	}
	a.cancelRunningLocked(s)
	a.mu.Unlock()

	for {
		s.started.Add(1)
		out, err := s.committer.Commit(ctx, doc)
		switch {
		case err == nil:
			s.applied.Add(1)
			a.notifyIdle()
			return out, nil
		case errors.Is(err, ErrStale):
			s.stale.Add(1)
			s.metrics.RecordStale(ctx)
		default:
			return Outcome{}, err
		}
	}
}

// CancelAll cancels the queued and running tasks for doc without
// rescheduling them.
func (s *Scheduler) CancelAll(doc *Document) {
	s.mu.Lock()
	a := s.actors[doc]
	s.mu.Unlock()
	if a == nil {
		return
	}
	s.cancelActor(a)
}

// WaitIdle blocks until doc has no queued or running task, or ctx is done.
func (s *Scheduler) WaitIdle(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	a := s.actors[doc]
	s.mu.Unlock()
	if a == nil {
		return nil
	}
	for {
		a.mu.Lock()
		if !a.queued && !a.busy {
			a.mu.Unlock()
			return nil
		}
		ch := make(chan struct{})
		a.waiters = append(a.waiters, ch)
		a.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PeakRunning returns the most tasks ever running at once for doc.
func (s *Scheduler) PeakRunning(doc *Document) int64 {
	s.mu.Lock()
	a := s.actors[doc]
	s.mu.Unlock()
	if a == nil {
		return 0
	}
	return a.peak.Load()
}

// Forget stops the actor of doc.
func (s *Scheduler) Forget(doc *Document) {
	s.mu.Lock()
	a := s.actors[doc]
	delete(s.actors, doc)
	s.mu.Unlock()
	if a != nil {
		s.cancelActor(a)
		close(a.stop)
	}
}

func (s *Scheduler) cancelActor(a *actor) {
	a.mu.Lock()
	if a.queued {
		a.queued = false
		s.canceled.Add(1)
		s.metrics.RecordCanceled(s.ctx)
	}
	a.cancelRunningLocked(s)
	a.mu.Unlock()
	a.notifyIdle()
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Queued:      s.queued.Load(),
		Started:     s.started.Load(),
		Applied:     s.applied.Load(),
		Canceled:    s.canceled.Load(),
		Stale:       s.stale.Load(),
		Requeued:    s.requeued.Load(),
		Faults:      s.faults.Load(),
		Running:     s.running.Load(),
		PeakRunning: s.peak.Load(),
	}
}

// Close cancels all work and waits for the actors to exit.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Scheduler) actor(doc *Document) (*actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if a, ok := s.actors[doc]; ok {
		return a, nil
	}
	a := &actor{
		doc:    doc,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		logger: s.logger.WithField("doc", doc.Name()),
	}
	s.actors[doc] = a
	s.wg.Add(1)
	go a.loop(s)
	return a, nil
}

// actor owns the background commits of one document.
type actor struct {
	doc    *Document
	wake   chan struct{}
	stop   chan struct{}
	logger *logging.Logger

	// syncMu serializes synchronous commits.
	syncMu sync.Mutex

	mu         sync.Mutex
	queued     bool
	busy       bool
	reason     string
	retries    int
	cancelTask context.CancelFunc
	taskID     uint64
	waiters    []chan struct{}

	running atomic.Int64
	peak    atomic.Int64
}

func (a *actor) kick() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *actor) cancelRunningLocked(s *Scheduler) {
	if a.cancelTask == nil {
		return
	}
	a.cancelTask()
	a.cancelTask = nil
	s.canceled.Add(1)
	s.metrics.RecordCanceled(s.ctx)
}

func (a *actor) notifyIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queued || a.busy {
		return
	}
	for _, ch := range a.waiters {
		close(ch)
	}
	a.waiters = nil
}

func (a *actor) loop(s *Scheduler) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-a.stop:
			return
		case <-a.wake:
		}
		for a.runNext(s) {
		}
		a.notifyIdle()
	}
}

// runNext runs the queued task, if any, and reports whether one ran.
func (a *actor) runNext(s *Scheduler) bool {
	a.mu.Lock()
	if !a.queued {
		a.mu.Unlock()
		return false
	}
	a.queued = false
	a.busy = true
	reason := a.reason
	a.taskID++
	id := a.taskID
	ctx, cancel := context.WithCancel(s.ctx)
	a.cancelTask = cancel
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		if a.taskID == id {
			a.cancelTask = nil
		}
		a.busy = false
		a.mu.Unlock()
	}()

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return true
	}
	s.started.Add(1)
	a.enter(s)
	_, err := s.committer.Commit(ctx, a.doc)
	a.leave(s)
	<-s.slots

	switch {
	case err == nil:
		s.applied.Add(1)
		a.mu.Lock()
		a.retries = 0
		a.mu.Unlock()
	case errors.Is(err, ErrStale):
		s.stale.Add(1)
		s.metrics.RecordStale(ctx)
		a.requeue(s, reason, false)
	case ctx.Err() != nil:
		// Canceled by a newer request, a synchronous commit or shutdown.
	default:
		s.faults.Add(1)
		a.logger.Warn("background commit failed (%s): %v", reason, err)
		a.requeue(s, reason, true)
	}
	return true
}

// requeue schedules another attempt unless a newer request already did.
// Faulting attempts count against the retry bound; once it is exceeded the
// document is forced to a full reparse on its next commit.
func (a *actor) requeue(s *Scheduler, reason string, fault bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queued {
		return
	}
	if fault {
		a.retries++
		if limit := s.maxRetries.Load(); limit < 0 || int64(a.retries) > limit {
			a.retries = 0
			a.doc.MarkForceFullReparse()
			d := newDefect(DefectRetries, a.doc.ID(), errors.New("background commit keeps failing"), "", "")
			a.doc.lastDefect.Store(d)
			a.logger.Error("%v; next commit will reparse in full", d)
			return
		}
	}
	s.requeued.Add(1)
	s.metrics.RecordRequeued(s.ctx)
	a.queued = true
	a.reason = reason
	a.kick()
}

func (a *actor) enter(s *Scheduler) {
	n := a.running.Add(1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	total := s.running.Add(1)
	for {
		p := s.peak.Load()
		if total <= p || s.peak.CompareAndSwap(p, total) {
			break
		}
	}
}

func (a *actor) leave(s *Scheduler) {
	a.running.Add(-1)
	s.running.Add(-1)
}
