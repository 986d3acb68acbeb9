// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	sqlrunerrors "sqlrun/cli/internal/errors"
	"sqlrun/cli/internal/output"
	"sqlrun/cli/internal/progress"
	"sqlrun/cli/internal/script"
	"sqlrun/cli/internal/stream"
)

// ConnSource hands out dedicated connections for script runs. The pgx pool
// adapter backs it in production.
type ConnSource interface {
	Acquire(ctx context.Context) (Conn, error)
}

// Runner executes scripts. One Runner serves many script runs; each run gets
// its own session and connection. Fields are read-only after construction.
type Runner struct {
	// Source provides one dedicated connection per script run.
	Source ConnSource
	// Canceler backs the timeout supervisor's server-side cancellation.
	Canceler Canceler
	// Spec is the per-run output configuration.
	Spec output.Spec
	// Reporter receives per-statement progress events; may be nil.
	Reporter *progress.Reporter
	// FailFast aborts a run at the first FAILED or TIMEOUT statement.
	FailFast bool
	// DrainOnly consumes query results without writing output files.
	DrainOnly bool
	// NoCommit suppresses the per-statement commit, holding the script's
	// statements in one transaction that is rolled back at end of script.
	// For validation runs. DDL still autocommits; it cannot be taken back.
	NoCommit bool
	// Timeouts, when set, resolves a per-script deadline from the script
	// base name, overriding Spec.Timeout.
	Timeouts func(scriptName string) time.Duration
	// Grace overrides the cancel-to-terminate grace period.
	Grace time.Duration
}

// timeoutFor returns the statement deadline for a script.
func (r *Runner) timeoutFor(sc *script.Script) time.Duration {
	if r.Timeouts != nil {
		return r.Timeouts(sc.BaseName())
	}
	return r.Spec.Timeout
}

// RunAll executes independent scripts concurrently, bounded by the worker
// count, each on its own connection. Reports come back in input order.
func (r *Runner) RunAll(ctx context.Context, scripts []*script.Script) []*Report {
	workers := r.Spec.Workers
	if workers <= 0 {
		workers = 1
	}
	reports := make([]*Report, len(scripts))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, sc := range scripts {
		wg.Add(1)
		go func(i int, sc *script.Script) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			reports[i] = r.Run(ctx, sc)
		}(i, sc)
	}
	wg.Wait()
	return reports
}

// Run executes one script sequentially on one dedicated connection and
// returns its report. Statement failures are recorded and recovered;
// connection failures abort the run with the report's Fatal field set.
func (r *Runner) Run(ctx context.Context, sc *script.Script) *Report {
	report := NewReport(sc.Source)
	defer func() { report.FinishedAt = time.Now() }()

	conn, err := r.Source.Acquire(ctx)
	if err != nil {
		report.Fatal = sqlrunerrors.Wrap(sqlrunerrors.ConnectFailed, "acquire connection", err).Error()
		return report
	}
	sess := NewSession(conn)
	alive := true
	defer func() {
		if alive {
			r.finish(ctx, sess)
			sess.Conn().Release()
		}
	}()

	sup := &Supervisor{Canceler: r.Canceler, Grace: r.Grace}
	total := len(sc.Statements)

	for i, st := range sc.Statements {
		// Caller cancellation propagates at statement boundaries.
		if ctx.Err() != nil {
			report.Fatal = "run canceled"
			break
		}

		res, out := r.runStatement(ctx, sess, sup, sc, st, total)
		report.Add(res)
		r.emit(sc, res, total, st)

		if out.TimedOut || out.Canceled || out.Terminated {
			// The statement's backend was cancelled or killed; never reuse
			// the connection.
			sess.Conn().Discard()
			alive = false
			if out.Canceled {
				report.Fatal = "run canceled"
				break
			}
			if r.FailFast || i == len(sc.Statements)-1 {
				break
			}
			fresh, err := r.Source.Acquire(ctx)
			if err != nil {
				report.Fatal = sqlrunerrors.Wrap(sqlrunerrors.ConnectFailed, "replace connection", err).Error()
				break
			}
			sess.Replace(fresh)
			alive = true
			continue
		}

		if res.Status == progress.StatusFailed {
			// Automatic rollback of the failed statement's transaction.
			// Earlier statements are already committed and unaffected.
			if err := sess.Reset(ctx); err != nil {
				report.Fatal = sqlrunerrors.Wrap(sqlrunerrors.StatementFailed, "rollback after failure", err).Error()
				break
			}
			if r.FailFast {
				break
			}
		}
	}
	return report
}

// runStatement executes one statement under supervision and builds its
// result. The session's transaction state is updated but not yet recovered;
// the caller rolls back failed transactions before the next statement.
func (r *Runner) runStatement(ctx context.Context, sess *Session, sup *Supervisor, sc *script.Script, st script.Statement, total int) (Result, Outcome) {
	res := Result{Index: st.Index + 1, Kind: st.Kind.String()}
	start := time.Now()

	timeout := r.timeoutFor(sc)
	var rows int64
	var outFile string
	out := sup.Run(ctx, timeout, sess.Conn().BackendPID(), func(runCtx context.Context) error {
		var err error
		rows, outFile, err = r.execute(runCtx, sess, sc, st)
		return err
	})

	res.Elapsed = time.Since(start)
	res.Rows = rows
	res.OutputFile = outFile

	switch {
	case out.TimedOut:
		res.Status = progress.StatusTimeout
		res.Error = sqlrunerrors.Wrap(sqlrunerrors.StatementTimeout,
			fmt.Sprintf("statement %d exceeded %s", res.Index, timeout), out.Err).Error()
	case out.Err != nil:
		res.Status = progress.StatusFailed
		res.Error = out.Err.Error()
	default:
		res.Status = progress.StatusSuccess
	}
	return res, out
}

// execute runs one statement according to its kind. Returns the row count
// and, for written query results, the output file path. Successful DML and
// queries commit before this returns, so a later statement's failure cannot
// take their work back; NoCommit runs leave the transaction open instead.
func (r *Runner) execute(ctx context.Context, sess *Session, sc *script.Script, st script.Statement) (int64, string, error) {
	switch st.Kind {
	case script.KindDDL:
		if r.NoCommit {
			// A validation transaction must not be committed by the DDL
			// autocommit path.
			if err := sess.Reset(ctx); err != nil {
				return 0, "", err
			}
		}
		return 0, "", sess.ExecDDL(ctx, st.Text)
	case script.KindQuery:
		return r.executeQuery(ctx, sess, sc, st)
	default:
		n, err := sess.ExecDML(ctx, st.Text)
		if err != nil {
			return n, "", err
		}
		return n, "", r.commit(ctx, sess)
	}
}

// commit closes the current statement's transaction unless the run is
// holding everything for a final rollback.
func (r *Runner) commit(ctx context.Context, sess *Session) error {
	if r.NoCommit {
		return nil
	}
	return sess.Commit(ctx)
}

// executeQuery streams a result set into the configured output, the drain
// sink, or the server-native CSV export.
func (r *Runner) executeQuery(ctx context.Context, sess *Session, sc *script.Script, st script.Statement) (int64, string, error) {
	if r.DrainOnly {
		rows, err := sess.Query(ctx, st.Text)
		if err != nil {
			return 0, "", err
		}
		defer rows.Close()
		n, err := stream.Drain(ctx, rows)
		if err != nil {
			sess.Fail()
			return n, "", err
		}
		return n, "", r.commit(ctx, sess)
	}

	path := output.Filename(r.Spec.Dir, sc.BaseName(), st.Index+1, r.Spec.Format, time.Now())

	if output.NativeEligible(r.Spec.Format, st.Text) {
		n, err := output.ExportNativeCSV(ctx, output.CopyFunc(sess.CopyOut), st.Text, path)
		if err != nil {
			return 0, "", err
		}
		return n, path, r.commit(ctx, sess)
	}

	rows, err := sess.Query(ctx, st.Text)
	if err != nil {
		return 0, "", err
	}
	defer rows.Close()

	w, err := output.New(r.Spec.Format, path, r.Spec.BatchSize)
	if err != nil {
		// Output failure: the statement's result is lost but the session
		// is untouched; drain so the transaction stays clean.
		n, drainErr := stream.Drain(ctx, rows)
		if drainErr != nil {
			sess.Fail()
			return n, "", drainErr
		}
		if err := r.commit(ctx, sess); err != nil {
			return n, "", err
		}
		return n, "", sqlrunerrors.Wrap(sqlrunerrors.OutputFailed, "create result file", err)
	}

	n, err := stream.Chunk(ctx, rows.Columns(), rows, r.Spec.ChunkSize, func(b stream.Batch) error {
		if err := w.WriteBatch(b); err != nil {
			return sqlrunerrors.Wrap(sqlrunerrors.OutputFailed, "write result batch", err)
		}
		return nil
	})
	closeErr := w.Close()
	if err != nil {
		if sqlrunerrors.KindOf(err) != sqlrunerrors.OutputFailed {
			sess.Fail()
		}
		return n, "", err
	}
	if closeErr != nil {
		return n, "", sqlrunerrors.Wrap(sqlrunerrors.OutputFailed, "finalize result file", closeErr)
	}
	return n, path, r.commit(ctx, sess)
}

// finish closes out the session's transaction at end of script.
func (r *Runner) finish(ctx context.Context, sess *Session) {
	if r.NoCommit || ctx.Err() != nil {
		// Validation run or canceled run: take back what we can.
		finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sess.Reset(finishCtx)
		return
	}
	_ = sess.Finish(ctx)
}

// emit forwards a progress event without blocking.
func (r *Runner) emit(sc *script.Script, res Result, total int, st script.Statement) {
	if r.Reporter == nil {
		return
	}
	r.Reporter.Emit(progress.Event{
		Script:  sc.BaseName(),
		Index:   res.Index,
		Total:   total,
		Kind:    st.Kind.String(),
		Elapsed: res.Elapsed,
		Rows:    res.Rows,
		Status:  res.Status,
		Detail:  res.Error,
	})
}
