// Package errors defines typed errors with categories for user-friendly
// reporting. Each error carries a machine-readable kind matching the
// engine's failure taxonomy, a human-friendly message, and optionally the
// underlying cause, so the presentation layer can render an actionable
// message for every failure mode without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ParseFailed indicates a malformed or unterminated script statement.
	ParseFailed Kind = "parse_failed"
	// ConnectFailed indicates the database cannot be reached or
	// authenticated; it is fatal for the run.
	ConnectFailed Kind = "connect_failed"
	// StatementFailed indicates the server rejected a statement; the run
	// recovers via rollback and continues unless fail-fast is set.
	StatementFailed Kind = "statement_failed"
	// StatementTimeout indicates a statement exceeded its deadline and was
	// cancelled or terminated server-side.
	StatementTimeout Kind = "statement_timeout"
	// OutputFailed indicates a result file could not be written; fatal for
	// that statement's output, not for the run.
	OutputFailed Kind = "output_failed"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As chains.
func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the first *E in err's chain, or StatementFailed
// for plain errors.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return StatementFailed
}
