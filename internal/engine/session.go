// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package engine executes parsed SQL scripts against PostgreSQL. Each script
// run owns one pooled connection and a transaction state machine; statements
// run strictly in script order, DDL in autocommit, DML and queries inside
// rollback-safe transactions committed per statement, every statement raced
// against its deadline with server-side cancellation on expiry. A failed
// statement's rollback discards only that statement's work; earlier
// statements are already committed.
package engine

import (
	"context"
	"io"

	"sqlrun/cli/internal/errors"
)

// TxState is the session's transaction state.
type TxState int

const (
	// TxNone means no transaction is open; the next DML or query begins one.
	TxNone TxState = iota
	// TxActive means a transaction is open and accepting statements.
	TxActive
	// TxFailed means the open transaction was aborted by a server error and
	// must be rolled back before any further statement.
	TxFailed
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "ACTIVE"
	case TxFailed:
		return "FAILED"
	default:
		return "NONE"
	}
}

// Rows is the engine's view of a streaming result set.
type Rows interface {
	Next() bool
	Values() ([]any, error)
	Err() error
	Columns() []string
	Close()
}

// Conn abstracts the single database connection a session owns. The pgx
// adapter backs it in production; tests substitute fakes.
type Conn interface {
	// Exec runs a statement and returns the affected row count.
	Exec(ctx context.Context, sql string) (int64, error)
	// Query runs a result-producing statement.
	Query(ctx context.Context, sql string) (Rows, error)
	// CopyTo streams a COPY TO STDOUT command's output to w.
	CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error)
	// BackendPID identifies the server process for cancel/terminate.
	BackendPID() uint32
	// Release returns a healthy connection to the pool.
	Release()
	// Discard closes the underlying connection so the pool replaces it.
	// Used after forced termination; a terminated connection is never reused.
	Discard()
}

// Session binds one script run to one connection and drives the transaction
// state machine across its statements. Sessions are not safe for concurrent
// use; each script run owns exactly one.
type Session struct {
	conn  Conn
	state TxState
}

// NewSession wraps a freshly acquired connection. The session starts with no
// open transaction.
func NewSession(conn Conn) *Session {
	return &Session{conn: conn, state: TxNone}
}

// State returns the current transaction state.
func (s *Session) State() TxState { return s.state }

// Conn exposes the underlying connection for supervision and native export.
func (s *Session) Conn() Conn { return s.conn }

// Replace swaps in a fresh connection after the previous one was discarded.
// Any transaction died with the old connection, so the state resets.
func (s *Session) Replace(conn Conn) {
	s.conn = conn
	s.state = TxNone
}

// ensureActive opens a transaction when none is open. A FAILED session must
// be recovered before this is called.
func (s *Session) ensureActive(ctx context.Context) error {
	switch s.state {
	case TxFailed:
		return errors.New(errors.StatementFailed, "session in aborted transaction; rollback required first")
	case TxNone:
		if _, err := s.conn.Exec(ctx, "BEGIN"); err != nil {
			return err
		}
		s.state = TxActive
	}
	return nil
}

// ExecDDL runs a schema statement in autocommit mode, outside the
// transaction machinery. An open transaction is committed first so earlier
// data changes and the schema change are both visible to later statements.
// DDL failure needs no rollback and leaves the state at NONE either way.
func (s *Session) ExecDDL(ctx context.Context, sql string) error {
	if err := s.Commit(ctx); err != nil {
		return err
	}
	_, err := s.conn.Exec(ctx, sql)
	return err
}

// Commit commits the open transaction, returning the session to NONE.
// No-op when no transaction is open. A commit rejected by the server leaves
// the session FAILED.
func (s *Session) Commit(ctx context.Context) error {
	if s.state != TxActive {
		return nil
	}
	if _, err := s.conn.Exec(ctx, "COMMIT"); err != nil {
		s.state = TxFailed
		return err
	}
	s.state = TxNone
	return nil
}

// ExecDML runs a data statement inside a transaction, beginning one if
// needed. On server rejection the session transitions to FAILED; the caller
// must Recover before the next statement.
func (s *Session) ExecDML(ctx context.Context, sql string) (int64, error) {
	if err := s.ensureActive(ctx); err != nil {
		return 0, err
	}
	n, err := s.conn.Exec(ctx, sql)
	if err != nil {
		s.state = TxFailed
		return 0, err
	}
	return n, nil
}

// Query runs a result-producing statement inside a transaction. An error
// surfacing later from the returned rows aborts the transaction server-side;
// the caller reports it through Fail.
func (s *Session) Query(ctx context.Context, sql string) (Rows, error) {
	if err := s.ensureActive(ctx); err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		s.state = TxFailed
		return nil, err
	}
	return rows, nil
}

// CopyOut streams a COPY command inside the transaction, for the native CSV
// export path.
func (s *Session) CopyOut(ctx context.Context, w io.Writer, sql string) (int64, error) {
	if err := s.ensureActive(ctx); err != nil {
		return 0, err
	}
	n, err := s.conn.CopyTo(ctx, w, sql)
	if err != nil {
		s.state = TxFailed
		return 0, err
	}
	return n, nil
}

// Fail records a mid-result server error that aborted the open transaction.
func (s *Session) Fail() {
	if s.state == TxActive {
		s.state = TxFailed
	}
}

// Recover rolls back a failed transaction, restoring the session to NONE.
// It must run before any statement following a failure. No-op otherwise.
func (s *Session) Recover(ctx context.Context) error {
	if s.state != TxFailed {
		return nil
	}
	if _, err := s.conn.Exec(ctx, "ROLLBACK"); err != nil {
		return err
	}
	s.state = TxNone
	return nil
}

// Reset rolls back whatever transaction is open, failed or not, restoring
// the session to NONE. Used to discard a failed statement's work and to
// abandon a no-commit validation run.
func (s *Session) Reset(ctx context.Context) error {
	if s.state == TxNone {
		return nil
	}
	if _, err := s.conn.Exec(ctx, "ROLLBACK"); err != nil {
		return err
	}
	s.state = TxNone
	return nil
}

// Finish commits an open transaction at end of script, or rolls back a
// failed one. The session ends at NONE.
func (s *Session) Finish(ctx context.Context) error {
	switch s.state {
	case TxActive:
		_, err := s.conn.Exec(ctx, "COMMIT")
		s.state = TxNone
		return err
	case TxFailed:
		return s.Recover(ctx)
	}
	return nil
}
