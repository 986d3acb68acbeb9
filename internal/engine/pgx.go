// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlrunerrors "sqlrun/cli/internal/errors"
	"sqlrun/cli/internal/output"
)

// Connect builds a connection pool sized for the run's worker count. The
// server gets a statement_timeout backstop slightly above the supervisor's
// deadline so a stuck backend dies even if the client never reaches it.
func Connect(ctx context.Context, dsn string, spec output.Spec) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, sqlrunerrors.Wrap(sqlrunerrors.ConnectFailed, "parse connection string", err)
	}

	workers := spec.Workers
	if workers <= 0 {
		workers = 1
	}
	// One connection per concurrent run plus one for cancel/terminate calls.
	cfg.MaxConns = int32(workers) + 1
	cfg.ConnConfig.RuntimeParams["application_name"] = "sqlrun"
	if spec.Timeout > 0 {
		backstop := spec.Timeout + 3*DefaultGrace
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", backstop.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, sqlrunerrors.Wrap(sqlrunerrors.ConnectFailed, "create connection pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, sqlrunerrors.Wrap(sqlrunerrors.ConnectFailed, "database unreachable", err)
	}
	return pool, nil
}

// PoolSource adapts a pgx pool to ConnSource.
type PoolSource struct {
	Pool *pgxpool.Pool
}

// Acquire checks out one dedicated connection.
func (p *PoolSource) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxConn{c: c}, nil
}

// pgxConn adapts *pgxpool.Conn to the engine's Conn interface.
type pgxConn struct {
	c *pgxpool.Conn
}

func (p *pgxConn) Exec(ctx context.Context, sql string) (int64, error) {
	tag, err := p.c.Exec(ctx, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *pgxConn) Query(ctx context.Context, sql string) (Rows, error) {
	rows, err := p.c.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (p *pgxConn) CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error) {
	tag, err := p.c.Conn().PgConn().CopyTo(ctx, w, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *pgxConn) BackendPID() uint32 {
	return p.c.Conn().PgConn().PID()
}

func (p *pgxConn) Release() { p.c.Release() }

// Discard closes the underlying connection before releasing it, so the pool
// destroys rather than reuses it.
func (p *pgxConn) Discard() {
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.c.Conn().Close(closeCtx)
	p.c.Release()
}

// pgxRows adapts pgx.Rows to the engine's Rows interface.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Values() ([]any, error) { return r.rows.Values() }
func (r *pgxRows) Err() error             { return r.rows.Err() }
func (r *pgxRows) Close()                 { r.rows.Close() }

func (r *pgxRows) Columns() []string {
	fds := r.rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = string(fd.Name)
	}
	return cols
}

// PoolCanceler issues backend cancellation from its own pool connection,
// never the supervised one.
type PoolCanceler struct {
	Pool *pgxpool.Pool
}

// CancelBackend asks the server to cancel the backend's current query.
func (p *PoolCanceler) CancelBackend(ctx context.Context, pid uint32) error {
	_, err := p.Pool.Exec(ctx, "SELECT pg_cancel_backend($1)", int32(pid))
	return err
}

// TerminateBackend kills the backend process.
func (p *PoolCanceler) TerminateBackend(ctx context.Context, pid uint32) error {
	_, err := p.Pool.Exec(ctx, "SELECT pg_terminate_backend($1)", int32(pid))
	return err
}
