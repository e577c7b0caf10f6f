package engine

import (
	"github.com/dshills/treesync/internal/config"
	"github.com/dshills/treesync/internal/event"
	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/metrics"
	"github.com/dshills/treesync/internal/treediff"
)

// Option configures an Engine during creation.
type Option func(*Engine)

// WithConfig sets the initial configuration. It is validated by New.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.cfg.Store(&cfg)
	}
}

// WithLogger sets the logger. By default a logger writing to stderr at the
// configured level is created.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithBus sets the event bus notifications are published on.
func WithBus(b *event.Bus) Option {
	return func(e *Engine) {
		e.bus = b
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithComparator sets the comparator used by the tree differencer.
func WithComparator(c treediff.Comparator) Option {
	return func(e *Engine) {
		e.comparator = c
	}
}
