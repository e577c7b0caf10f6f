// Package metrics records commit pipeline counters.
//
// A Recorder keeps process-local atomic counters that tests and the CLI read
// through Snapshot, and mirrors every update into OpenTelemetry instruments
// obtained from the global meter provider. Without an installed SDK the
// instruments are no-ops.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dshills/treesync/internal/logging"
)

// MeterName is the instrumentation scope of the recorder.
const MeterName = "github.com/dshills/treesync/commit"

// Recorder tracks commit pipeline activity. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	byMode map[string]uint64

	commits      atomic.Uint64
	ops          atomic.Uint64
	stale        atomic.Uint64
	canceled     atomic.Uint64
	requeued     atomic.Uint64
	applyFaults  atomic.Uint64
	consistency  atomic.Uint64
	reloads      atomic.Uint64
	totalNs      atomic.Int64
	maxNs        atomic.Int64
	lastCommitNs atomic.Int64

	commitCounter  metric.Int64Counter
	opCounter      metric.Int64Counter
	discardCounter metric.Int64Counter
	faultCounter   metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// New creates a recorder with instruments from the global meter provider.
// Instrument creation failures are logged and the counter is skipped.
func New(logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("metrics")
	meter := otel.Meter(MeterName)

	r := &Recorder{byMode: make(map[string]uint64)}
	var err error

	r.commitCounter, err = meter.Int64Counter(
		"treesync_commits_total",
		metric.WithDescription("Total number of applied commits by mode"),
	)
	if err != nil {
		logger.Warn("failed to create commit counter: %v", err)
	}

	r.opCounter, err = meter.Int64Counter(
		"treesync_edit_ops_total",
		metric.WithDescription("Total number of applied edit operations"),
	)
	if err != nil {
		logger.Warn("failed to create op counter: %v", err)
	}

	r.discardCounter, err = meter.Int64Counter(
		"treesync_commit_discards_total",
		metric.WithDescription("Commit tasks discarded as stale, canceled or requeued"),
	)
	if err != nil {
		logger.Warn("failed to create discard counter: %v", err)
	}

	r.faultCounter, err = meter.Int64Counter(
		"treesync_commit_faults_total",
		metric.WithDescription("Apply faults, consistency failures and reloads"),
	)
	if err != nil {
		logger.Warn("failed to create fault counter: %v", err)
	}

	r.durationHist, err = meter.Float64Histogram(
		"treesync_commit_duration_seconds",
		metric.WithDescription("Commit duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram: %v", err)
	}

	return r
}

// RecordCommit records an applied commit.
func (r *Recorder) RecordCommit(ctx context.Context, mode string, ops int, d time.Duration) {
	ns := d.Nanoseconds()
	r.commits.Add(1)
	r.ops.Add(uint64(ops))
	r.totalNs.Add(ns)
	r.lastCommitNs.Store(ns)
	for {
		old := r.maxNs.Load()
		if ns <= old || r.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}

	r.mu.Lock()
	r.byMode[mode]++
	r.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("mode", mode))
	if r.commitCounter != nil {
		r.commitCounter.Add(ctx, 1, attrs)
	}
	if r.opCounter != nil && ops > 0 {
		r.opCounter.Add(ctx, int64(ops), attrs)
	}
	if r.durationHist != nil {
		r.durationHist.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordStale records a result discarded because the buffer moved on.
func (r *Recorder) RecordStale(ctx context.Context) {
	r.stale.Add(1)
	r.discard(ctx, "stale")
}

// RecordCanceled records a task canceled by a newer edit.
func (r *Recorder) RecordCanceled(ctx context.Context) {
	r.canceled.Add(1)
	r.discard(ctx, "canceled")
}

// RecordRequeued records a task requeued after a background fault.
func (r *Recorder) RecordRequeued(ctx context.Context) {
	r.requeued.Add(1)
	r.discard(ctx, "requeued")
}

// RecordApplyFault records an edit script that failed while applying.
func (r *Recorder) RecordApplyFault(ctx context.Context) {
	r.applyFaults.Add(1)
	r.fault(ctx, "apply")
}

// RecordConsistencyFailure records a tree whose text did not match the
// buffer after a commit.
func (r *Recorder) RecordConsistencyFailure(ctx context.Context) {
	r.consistency.Add(1)
	r.fault(ctx, "consistency")
}

// RecordReload records a tree rebuilt from scratch.
func (r *Recorder) RecordReload(ctx context.Context) {
	r.reloads.Add(1)
	r.fault(ctx, "reload")
}

func (r *Recorder) discard(ctx context.Context, reason string) {
	if r.discardCounter != nil {
		r.discardCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (r *Recorder) fault(ctx context.Context, kind string) {
	if r.faultCounter != nil {
		r.faultCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Commits             uint64
	CommitsByMode       map[string]uint64
	Ops                 uint64
	Stale               uint64
	Canceled            uint64
	Requeued            uint64
	ApplyFaults         uint64
	ConsistencyFailures uint64
	Reloads             uint64
	TotalCommitNs       int64
	MaxCommitNs         int64
	LastCommitNs        int64
}

// AvgCommit returns the mean commit duration.
func (s Snapshot) AvgCommit() time.Duration {
	if s.Commits == 0 {
		return 0
	}
	return time.Duration(s.TotalCommitNs / int64(s.Commits))
}

// Snapshot returns the current counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	byMode := make(map[string]uint64, len(r.byMode))
	for k, v := range r.byMode {
		byMode[k] = v
	}
	r.mu.Unlock()

	return Snapshot{
		Commits:             r.commits.Load(),
		CommitsByMode:       byMode,
		Ops:                 r.ops.Load(),
		Stale:               r.stale.Load(),
		Canceled:            r.canceled.Load(),
		Requeued:            r.requeued.Load(),
		ApplyFaults:         r.applyFaults.Load(),
		ConsistencyFailures: r.consistency.Load(),
		Reloads:             r.reloads.Load(),
		TotalCommitNs:       r.totalNs.Load(),
		MaxCommitNs:         r.maxNs.Load(),
		LastCommitNs:        r.lastCommitNs.Load(),
	}
}

// Timer measures an operation.
type Timer struct {
	start time.Time
}

// StartTimer starts a timer.
func StartTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
