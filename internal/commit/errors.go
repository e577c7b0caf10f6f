package commit

import (
	"errors"
	"fmt"

	"github.com/dshills/treesync/internal/engine/textdiff"
)

// Errors returned by commit operations.
var (
	// ErrClosed indicates the scheduler or document has been closed.
	ErrClosed = errors.New("commit: closed")

	// ErrStale indicates a computed result no longer matches the buffer.
	ErrStale = errors.New("commit: result is stale")

	// ErrUnrecoverable indicates the committed tree could not be brought in
	// line with the buffer even after a full reparse.
	ErrUnrecoverable = errors.New("commit: tree does not match buffer")
)

// DefectKind classifies internal defects.
type DefectKind int

const (
	// DefectPosition is a corrupt offset found while locating a local reparse.
	DefectPosition DefectKind = iota
	// DefectApply is a failure while applying an edit script.
	DefectApply
	// DefectConsistency is a committed tree whose text differs from the buffer.
	DefectConsistency
	// DefectUnrecoverable is a consistency failure that survived a full reparse.
	DefectUnrecoverable
	// DefectRetries is a background commit that kept failing.
	DefectRetries
)

// String returns the defect kind name.
func (k DefectKind) String() string {
	switch k {
	case DefectPosition:
		return "position"
	case DefectApply:
		return "apply"
	case DefectConsistency:
		return "consistency"
	case DefectUnrecoverable:
		return "unrecoverable"
	case DefectRetries:
		return "retries"
	default:
		return "unknown"
	}
}

// DefectError describes an internal defect with the texts involved.
type DefectError struct {
	Kind       DefectKind
	DocumentID string
	Err        error

	// Expected and Actual are the texts that should have matched.
	Expected string
	Actual   string

	// Diff is a patch from Expected to Actual.
	Diff string
}

func newDefect(kind DefectKind, docID string, err error, expected, actual string) *DefectError {
	d := &DefectError{
		Kind:       kind,
		DocumentID: docID,
		Err:        err,
		Expected:   expected,
		Actual:     actual,
	}
	if expected != actual {
		d.Diff = textdiff.Describe(expected, actual)
	}
	return d
}

// Error implements the error interface.
func (e *DefectError) Error() string {
	msg := fmt.Sprintf("%s defect in document %s", e.Kind, e.DocumentID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DefectError) Unwrap() error {
	return e.Err
}
