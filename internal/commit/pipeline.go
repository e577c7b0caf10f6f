package commit

import (
	"context"

	"github.com/dshills/treesync/internal/difflog"
	"github.com/dshills/treesync/internal/engine/buffer"
	"github.com/dshills/treesync/internal/engine/textdiff"
	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/reparse"
	"github.com/dshills/treesync/internal/syntax"
	"github.com/dshills/treesync/internal/treediff"
)

// Mode is how a commit brought the tree up to date.
type Mode int

const (
	// ModeNoop means the tree already matched.
	ModeNoop Mode = iota
	// ModeLocal means a single subtree was reparsed in place.
	ModeLocal
	// ModeDiff means the text was parsed in full and diffed.
	ModeDiff
	// ModeWhole means the root's children were replaced wholesale.
	ModeWhole
	// ModeReload means the tree was rebuilt after a failed apply.
	ModeReload
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNoop:
		return "noop"
	case ModeLocal:
		return "local"
	case ModeDiff:
		return "diff"
	case ModeWhole:
		return "whole"
	case ModeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Plan is a computed but not yet applied commit.
type Plan struct {
	Log  *difflog.Log
	Mode Mode

	// Base is the committed snapshot the plan was computed from and Target
	// the snapshot it brings the tree to.
	Base   *buffer.Snapshot
	Target *buffer.Snapshot

	// Forced is set when the plan replaces the whole tree on request.
	Forced bool

	// Superseded is set when the parser handed back a prepared script.
	Superseded bool

	// Defect is a position defect found by the locator, if any.
	Defect error
}

// Pipeline computes edit scripts. It never mutates the tree it is given.
type Pipeline struct {
	locator *reparse.Locator
	differ  *treediff.Differencer
	logger  *logging.Logger
}

// NewPipeline creates a pipeline that fully parses with parser.
func NewPipeline(parser syntax.Parser, maxDepth int, logger *logging.Logger) *Pipeline {
	return NewPipelineWith(treediff.New(parser, treediff.Options{MaxDepth: maxDepth, Logger: logger}), logger)
}

// NewPipelineWith creates a pipeline around a configured differencer.
func NewPipelineWith(differ *treediff.Differencer, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{
		locator: reparse.NewLocator(logger),
		differ:  differ,
		logger:  logger.WithComponent("commit"),
	}
}

// Differencer returns the tree differencer.
func (p *Pipeline) Differencer() *treediff.Differencer {
	return p.differ
}

// Compute returns the plan that turns root, committed at base, into the tree
// for target. With force set, local reparse is skipped and the plan replaces
// the whole tree. Only context errors and parser errors are returned.
func (p *Pipeline) Compute(ctx context.Context, root *syntax.Node, base, target *buffer.Snapshot, force bool) (Plan, error) {
	plan := Plan{Base: base, Target: target, Log: difflog.New(), Forced: force}
	seal := func() Plan {
		plan.Log.BaseSeq = base.ModSeq()
		plan.Log.TargetSeq = target.ModSeq()
		return plan
	}
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}

	oldText, newText := base.Text(), target.Text()
	if oldText == newText && !force {
		return seal(), nil
	}

	if !force {
		region := textdiff.Changed(oldText, newText)
		res, err := p.locator.Locate(ctx, reparse.Input{
			Root:    root,
			Start:   region.Start,
			End:     region.OldEnd,
			NewText: newText,
			Delta:   region.Delta(),
		})
		if err != nil {
			return Plan{}, err
		}
		switch res.Outcome {
		case reparse.Reparsed:
			plan.Log = res.Log()
			plan.Mode = ModeLocal
			return seal(), nil
		case reparse.Abort:
			plan.Defect = res.Defect
			plan.Forced = true
			force = true
			p.logger.Error("local reparse aborted, forcing full reparse: %v", res.Defect)
		case reparse.NoReparse:
			if res.Defect != nil {
				p.logger.Warn("local reparse declined: %v", res.Defect)
			}
		}
	}

	res, err := p.differ.Diff(ctx, root, newText, force)
	if err != nil {
		return Plan{}, err
	}
	plan.Log = res.Log
	plan.Superseded = res.Superseded
	plan.Mode = modeOf(res.Log)
	return seal(), nil
}

func modeOf(log *difflog.Log) Mode {
	ops := log.Ops()
	switch {
	case len(ops) == 0:
		return ModeNoop
	case len(ops) == 1 && ops[0].Kind == difflog.ReplaceWhole:
		return ModeWhole
	default:
		return ModeDiff
	}
}
