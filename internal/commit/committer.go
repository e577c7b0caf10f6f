package commit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dshills/treesync/internal/event"
	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/metrics"
	"github.com/dshills/treesync/internal/syntax"
)

// Outcome reports what a commit did.
type Outcome struct {
	Mode Mode
	Ops  int
}

// Committer computes and applies commits for documents.
type Committer struct {
	pipeline    *Pipeline
	bus         *event.Bus
	metrics     *metrics.Recorder
	logger      *logging.Logger
	writeLock   sync.Locker
	consistency atomic.Bool
}

// CommitterOptions configures a Committer. Zero fields take defaults.
type CommitterOptions struct {
	Bus     *event.Bus
	Metrics *metrics.Recorder
	Logger  *logging.Logger

	// WriteLock is the process-wide exclusive write context, held while an
	// edit script is applied.
	WriteLock sync.Locker

	// ConsistencyCheck compares tree text with buffer text after each apply.
	ConsistencyCheck bool
}

// NewCommitter creates a committer around pipeline.
func NewCommitter(pipeline *Pipeline, opts CommitterOptions) *Committer {
	c := &Committer{
		pipeline:  pipeline,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		writeLock: opts.WriteLock,
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	c.logger = c.logger.WithComponent("commit")
	if c.metrics == nil {
		c.metrics = metrics.New(c.logger)
	}
	if c.writeLock == nil {
		c.writeLock = &sync.Mutex{}
	}
	c.consistency.Store(opts.ConsistencyCheck)
	return c
}

// SetConsistencyCheck toggles the post-commit text check.
func (c *Committer) SetConsistencyCheck(on bool) {
	c.consistency.Store(on)
}

// Pipeline returns the compute pipeline.
func (c *Committer) Pipeline() *Pipeline {
	return c.pipeline
}

// Commit brings the tree of doc up to date with its buffer. The compute
// phase stops early when ctx is done; the apply phase is never interrupted.
// It returns ErrStale when the buffer changed while the script was computed.
func (c *Committer) Commit(ctx context.Context, doc *Document) (Outcome, error) {
	if doc.closed.Load() {
		return Outcome{}, ErrClosed
	}
	timer := metrics.StartTimer()

	plan, err := c.compute(ctx, doc)
	if err != nil {
		return Outcome{}, err
	}
	var box outbox
	if plan.Defect != nil {
		c.report(&box, newDefect(DefectPosition, doc.id, plan.Defect, plan.Base.Text(), plan.Target.Text()), doc)
	}

	out, err := c.apply(ctx, doc, plan, &box)
	c.flush(ctx, box)
	if err != nil {
		return Outcome{}, err
	}
	c.metrics.RecordCommit(ctx, out.Mode.String(), out.Ops, timer.Elapsed())
	c.logger.Debug("committed %s at %s: %s, %d ops, prepared=%t",
		doc.name, plan.Target.ModSeq(), out.Mode, out.Ops, plan.Superseded)
	return out, nil
}

// apply takes the write context and the document lock, rechecks that plan
// still matches the buffer and applies it. Events raised meanwhile go to box
// and are published by the caller once the locks are released.
func (c *Committer) apply(ctx context.Context, doc *Document, plan Plan, box *outbox) (Outcome, error) {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	doc.mu.Lock()
	defer doc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if doc.committed.ModSeq() != plan.Base.ModSeq() || !plan.Log.Applies(doc.buf.ModSeq()) {
		return Outcome{}, ErrStale
	}

	out := c.applyLocked(context.WithoutCancel(ctx), doc, plan, box)
	if out.Mode != ModeNoop || plan.Forced {
		box.add(event.New(event.TopicDocumentCommitted, event.Committed{
			DocumentID: doc.id,
			ModSeq:     plan.Target.ModSeq(),
			Mode:       out.Mode.String(),
			Ops:        out.Ops,
			Superseded: plan.Superseded,
		}, "commit"))
	}
	return out, nil
}

func (c *Committer) compute(ctx context.Context, doc *Document) (Plan, error) {
	doc.mu.RLock()
	defer doc.mu.RUnlock()
	target := doc.buf.Freeze()
	return c.pipeline.Compute(ctx, doc.root, doc.committed, target, doc.forceFull.Load())
}

// applyLocked runs the plan and the repairs it may need. doc.mu must be held
// exclusively.
func (c *Committer) applyLocked(ctx context.Context, doc *Document, plan Plan, box *outbox) Outcome {
	out := Outcome{Mode: plan.Mode, Ops: plan.Log.Len()}
	if plan.Forced {
		doc.forceFull.Store(false)
	}

	sink := event.NewTreeSink(ctx, c.bus, doc.id, doc.root)
	if err := plan.Log.Apply(sink, sink); err != nil {
		c.metrics.RecordApplyFault(ctx)
		c.report(box, newDefect(DefectApply, doc.id, err, plan.Target.Text(), doc.root.Text()), doc)
		if rerr := c.reloadLocked(ctx, doc, plan, err.Error(), box); rerr != nil {
			doc.forceFull.Store(true)
			c.logger.Error("reloading %s failed: %v", doc.name, rerr)
		}
		out.Mode = ModeReload
	}

	if c.consistency.Load() {
		if ok := c.checkLocked(ctx, doc, plan, box); !ok {
			out.Mode = ModeWhole
		}
	}

	doc.setCommittedLocked(plan.Target)
	return out
}

// reloadLocked discards the tree and builds a new one from the target text.
func (c *Committer) reloadLocked(ctx context.Context, doc *Document, plan Plan, reason string, box *outbox) error {
	c.metrics.RecordReload(ctx)
	root, err := doc.parser.Parse(ctx, plan.Target.Text())
	if err != nil {
		return fmt.Errorf("parsing %s: %w", doc.name, err)
	}
	doc.replaceRootLocked(root)
	box.add(event.New(event.TopicDocumentReloaded, event.Reloaded{DocumentID: doc.id, Reason: reason}, "commit"))
	return nil
}

// checkLocked verifies the committed tree against the target text. On a
// mismatch the tree is repaired with a forced full reparse; a second
// mismatch is reported as unrecoverable. It reports whether the first check
// passed.
func (c *Committer) checkLocked(ctx context.Context, doc *Document, plan Plan, box *outbox) bool {
	want := plan.Target.Text()
	cerr := consistent(doc.root, want)
	if cerr == nil {
		return true
	}
	c.metrics.RecordConsistencyFailure(ctx)
	c.report(box, newDefect(DefectConsistency, doc.id, cerr, want, doc.root.Text()), doc)

	res, err := c.pipeline.differ.Diff(ctx, doc.root, want, true)
	if err == nil {
		sink := event.NewTreeSink(ctx, c.bus, doc.id, doc.root)
		err = res.Log.Apply(sink, sink)
	}
	if err != nil {
		c.metrics.RecordApplyFault(ctx)
		err = errors.Join(err, c.reloadLocked(ctx, doc, plan, "consistency repair failed", box))
	}

	if cerr := consistent(doc.root, want); cerr != nil {
		doc.forceFull.Store(true)
		c.report(box, newDefect(DefectUnrecoverable, doc.id, errors.Join(ErrUnrecoverable, cerr, err), want, doc.root.Text()), doc)
	}
	return false
}

func consistent(root *syntax.Node, want string) error {
	if err := syntax.Check(root); err != nil {
		return err
	}
	if got := root.Text(); got != want {
		return fmt.Errorf("tree text has %d bytes, buffer has %d", len(got), len(want))
	}
	return nil
}

func (c *Committer) report(box *outbox, d *DefectError, doc *Document) {
	doc.lastDefect.Store(d)
	if d.Diff != "" {
		c.logger.Error("%v\n%s", d, d.Diff)
	} else {
		c.logger.Error("%v", d)
	}
	box.add(event.New(event.TopicDocumentDefect, event.Defect{
		DocumentID: d.DocumentID,
		Kind:       d.Kind.String(),
		Message:    d.Error(),
		Diff:       d.Diff,
	}, "commit"))
}

// outbox holds document events until the document lock is released, so
// handlers may read the document.
type outbox []any

func (b *outbox) add(ev any) { *b = append(*b, ev) }

func (c *Committer) flush(ctx context.Context, box outbox) {
	if c.bus == nil {
		return
	}
	for _, ev := range box {
		if err := c.bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
			c.logger.Warn("publish failed: %v", err)
		}
	}
}
