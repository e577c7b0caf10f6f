package reparse

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/syntax"
)

// LocalReparser regenerates one node from its new text and checks that the
// result can stand in for it.
type LocalReparser struct {
	logger *logging.Logger
}

// NewLocalReparser creates a local reparser. A nil logger discards output.
func NewLocalReparser(logger *logging.Logger) *LocalReparser {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LocalReparser{logger: logger.WithComponent("reparse")}
}

// Reparse asks the type of old to parse text and returns the replacement,
// detached inside a holder node. It returns nil, nil when the type declines
// or forbids the transformation, and an error wrapping ErrLengthMismatch when
// the result does not cover text exactly.
func (r *LocalReparser) Reparse(ctx context.Context, old *syntax.Node, text string) (*syntax.Node, error) {
	rp := old.Type().Reparser
	if rp == nil {
		return nil, nil
	}
	repl, err := rp.Reparse(ctx, old, text)
	if err != nil {
		return nil, err
	}
	if repl == nil {
		return nil, nil
	}
	syntax.NewHolder(repl)

	if repl.Len() != len(text) {
		err := fmt.Errorf("%w: %s reparsed %d bytes into %d", ErrLengthMismatch, old.Type(), len(text), repl.Len())
		r.logger.Error("%v", err)
		return nil, err
	}
	if !rp.IsValidReparse(old, repl) {
		r.logger.Debug("%s rejected replacement %s", old, repl)
		return nil, nil
	}
	return repl, nil
}

func isDefect(err error) bool {
	return errors.Is(err, ErrLengthMismatch) || errors.Is(err, ErrPositionCorrupt)
}
