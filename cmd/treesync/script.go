package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/treesync/internal/engine"
	"github.com/dshills/treesync/internal/syntax"
)

var errNoLeaf = errors.New("no leaf at offset")

type stepKind int

const (
	stepEdit stepKind = iota
	stepLeaf
	stepCommit
)

// step is one line of an edit script.
type step struct {
	kind       stepKind
	line       int
	start, end int
	text       string
}

// parseScript reads one JSON object per line. Blank lines and lines starting
// with # are skipped.
func parseScript(r io.Reader) ([]step, error) {
	var steps []step
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !gjson.Valid(line) {
			return nil, fmt.Errorf("line %d: invalid JSON", n)
		}
		res := gjson.Parse(line)
		s := step{line: n, text: res.Get("text").String()}
		switch {
		case res.Get("commit").Bool():
			s.kind = stepCommit
		case res.Get("leaf").Exists():
			s.kind = stepLeaf
			s.start = int(res.Get("leaf").Int())
		default:
			start, end := res.Get("start"), res.Get("end")
			if !start.Exists() {
				return nil, fmt.Errorf("line %d: missing start", n)
			}
			s.start = int(start.Int())
			s.end = s.start
			if end.Exists() {
				s.end = int(end.Int())
			}
			if s.end < s.start {
				return nil, fmt.Errorf("line %d: end %d before start %d", n, s.end, s.start)
			}
		}
		steps = append(steps, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}

// replay applies steps to doc in order.
func replay(ctx context.Context, e *engine.Engine, doc *engine.Document, steps []step) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch s.kind {
		case stepEdit:
			_, err = e.Edit(doc, s.start, s.end, s.text)
		case stepCommit:
			_, err = e.CommitNow(ctx, doc)
		case stepLeaf:
			err = e.EditTree(ctx, doc, func(tx *engine.TreeTx) error {
				leaf := syntax.LeafAt(tx.Root(), s.start)
				if leaf == nil {
					return fmt.Errorf("%w %d", errNoLeaf, s.start)
				}
				_, err := tx.ReplaceText(leaf, s.text)
				return err
			})
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", s.line, err)
		}
	}
	return nil
}
