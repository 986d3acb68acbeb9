// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sqlrun/cli/internal/output"
	"sqlrun/cli/internal/progress"
	"sqlrun/cli/internal/script"
)

// fakeSource hands out pre-built fake connections in order.
type fakeSource struct {
	mu    sync.Mutex
	conns []*fakeConn
	next  int
}

func (s *fakeSource) Acquire(ctx context.Context) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.conns) {
		return nil, errors.New("connection pool exhausted")
	}
	c := s.conns[s.next]
	s.next++
	return c, nil
}

func (s *fakeSource) acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func mustParse(t *testing.T, source, text string) *script.Script {
	t.Helper()
	sc, err := script.Parse(source, text)
	if err != nil {
		t.Fatalf("parse %s: %v", source, err)
	}
	return sc
}

func testSpec(t *testing.T) output.Spec {
	t.Helper()
	return output.Spec{
		Dir:       t.TempDir(),
		Format:    output.FormatCSV,
		BatchSize: 100,
		ChunkSize: 100,
		Timeout:   time.Second,
		Workers:   1,
	}
}

func statuses(rep *Report) []progress.Status {
	out := make([]progress.Status, len(rep.Results))
	for i, res := range rep.Results {
		out[i] = res.Status
	}
	return out
}

func TestRunnerMixedScript(t *testing.T) {
	conn := newFakeConn(1)
	conn.failOn["SELECT broken"] = errors.New(`column "broken" does not exist`)
	conn.rowsFor["SELECT id, name FROM t"] = 3
	src := &fakeSource{conns: []*fakeConn{conn}}

	r := &Runner{Source: src, Canceler: &fakeCanceler{}, Spec: testSpec(t), Grace: 10 * time.Millisecond}
	sc := mustParse(t,"mixed.sql",
		"CREATE TABLE t (id int, name text);\n"+
			"INSERT INTO t VALUES (1, 'a');\n"+
			"SELECT broken;\n"+
			"SELECT id, name FROM t;")

	rep := r.Run(context.Background(), sc)
	if rep.Fatal != "" {
		t.Fatalf("unexpected fatal: %s", rep.Fatal)
	}
	want := []progress.Status{progress.StatusSuccess, progress.StatusSuccess,
		progress.StatusFailed, progress.StatusSuccess}
	got := statuses(rep)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", got, want)
		}
	}
	if rep.Succeeded() != 3 || rep.Failed() != 1 {
		t.Fatalf("succeeded=%d failed=%d, want 3 and 1", rep.Succeeded(), rep.Failed())
	}

	// The failed statement's transaction was rolled back before the next
	// statement ran on the same connection.
	log := conn.executed()
	rolledBack := false
	for i, sql := range log {
		if sql == "SELECT broken" {
			if i+1 < len(log) && log[i+1] == "ROLLBACK" {
				rolledBack = true
			}
		}
	}
	if !rolledBack {
		t.Fatalf("no rollback after failed statement; log %v", log)
	}
	if !conn.released {
		t.Fatal("healthy connection was not released")
	}
	if conn.discarded {
		t.Fatal("healthy connection was discarded")
	}
}

// replayTransactions applies a connection's statement log against
// PostgreSQL commit visibility rules: work inside BEGIN..COMMIT and
// autocommit statements persist, work inside a rolled-back transaction
// does not.
func replayTransactions(log []string) (committed []string) {
	var pending []string
	inTx := false
	for _, sql := range log {
		switch sql {
		case "BEGIN":
			inTx = true
			pending = nil
		case "COMMIT":
			committed = append(committed, pending...)
			pending = nil
			inTx = false
		case "ROLLBACK":
			pending = nil
			inTx = false
		default:
			if inTx {
				pending = append(pending, sql)
			} else {
				committed = append(committed, sql)
			}
		}
	}
	return committed
}

func TestRunnerStatementScopedTransactions(t *testing.T) {
	conn := newFakeConn(1)
	conn.failOn["INSERT INTO t VALUES ('x')"] = errors.New(`invalid input syntax for type integer: "x"`)
	src := &fakeSource{conns: []*fakeConn{conn}}

	r := &Runner{Source: src, Canceler: &fakeCanceler{}, Spec: testSpec(t)}
	sc := mustParse(t, "load.sql",
		"CREATE TABLE t(id int);\nINSERT INTO t VALUES (1);\nINSERT INTO t VALUES ('x');")

	rep := r.Run(context.Background(), sc)
	if rep.Fatal != "" {
		t.Fatalf("unexpected fatal: %s", rep.Fatal)
	}
	want := []progress.Status{progress.StatusSuccess, progress.StatusSuccess, progress.StatusFailed}
	got := statuses(rep)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", got, want)
		}
	}

	// Each successful statement commits before the next one runs, so the
	// rollback after the bad insert discards only the bad insert.
	log := conn.executed()
	committed := replayTransactions(log)
	wantCommitted := []string{"CREATE TABLE t(id int)", "INSERT INTO t VALUES (1)"}
	if len(committed) != len(wantCommitted) {
		t.Fatalf("committed %q, want %q (full log %v)", committed, wantCommitted, log)
	}
	for i := range wantCommitted {
		if committed[i] != wantCommitted[i] {
			t.Fatalf("committed %q, want %q (full log %v)", committed, wantCommitted, log)
		}
	}

	// The commit for the good insert must land before the failed
	// statement even starts.
	goodCommit, badInsert := -1, -1
	for i, sql := range log {
		if sql == "INSERT INTO t VALUES (1)" && i+1 < len(log) && log[i+1] == "COMMIT" {
			goodCommit = i + 1
		}
		if sql == "INSERT INTO t VALUES ('x')" {
			badInsert = i
		}
	}
	if goodCommit < 0 || badInsert < 0 || goodCommit > badInsert {
		t.Fatalf("no commit between the good insert and the bad one; log %v", log)
	}
}

func TestRunnerWritesQueryResults(t *testing.T) {
	conn := newFakeConn(1)
	conn.rowsFor["SELECT id, name FROM t"] = 5
	src := &fakeSource{conns: []*fakeConn{conn}}
	spec := testSpec(t)

	r := &Runner{Source: src, Canceler: &fakeCanceler{}, Spec: spec}
	rep := r.Run(context.Background(), mustParse(t,"q.sql", "SELECT id, name FROM t;"))

	if rep.Failed() != 0 || rep.Fatal != "" {
		t.Fatalf("run failed: %+v", rep)
	}
	if rep.LastOutputFile == "" {
		t.Fatal("no output file recorded")
	}
	data, err := os.ReadFile(rep.LastOutputFile)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("output has %d lines, want header + 5 rows", len(lines))
	}
	if lines[0] != "id,name" {
		t.Fatalf("header = %q", lines[0])
	}
	if rep.TotalRows() != 5 {
		t.Fatalf("TotalRows = %d, want 5", rep.TotalRows())
	}
	if filepath.Dir(rep.LastOutputFile) != spec.Dir {
		t.Fatalf("output written outside %s: %s", spec.Dir, rep.LastOutputFile)
	}
}

func TestRunnerTimeoutReplacesConnection(t *testing.T) {
	slow := newFakeConn(1)
	slow.blockOn["SELECT pg_sleep(3600)"] = true
	fresh := newFakeConn(2)
	fresh.rowsFor["SELECT 1"] = 1
	src := &fakeSource{conns: []*fakeConn{slow, fresh}}

	spec := testSpec(t)
	spec.Timeout = 30 * time.Millisecond
	r := &Runner{Source: src, Canceler: &fakeCanceler{}, Spec: spec, Grace: 20 * time.Millisecond}

	sc := mustParse(t,"slow.sql", "SELECT pg_sleep(3600);\nSELECT 1;")
	rep := r.Run(context.Background(), sc)

	got := statuses(rep)
	want := []progress.Status{progress.StatusTimeout, progress.StatusSuccess}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	if !slow.discarded {
		t.Fatal("timed-out connection was not discarded")
	}
	if slow.released {
		t.Fatal("timed-out connection must not return to the pool")
	}
	if src.acquired() != 2 {
		t.Fatalf("acquired %d connections, want 2", src.acquired())
	}
	if !fresh.released {
		t.Fatal("replacement connection was not released")
	}
	if rep.Results[0].Error == "" || !strings.Contains(rep.Results[0].Error, "exceeded") {
		t.Fatalf("timeout error = %q", rep.Results[0].Error)
	}
}

func TestRunnerFailFast(t *testing.T) {
	conn := newFakeConn(1)
	conn.failOn["INSERT INTO t VALUES (1)"] = errors.New("boom")
	src := &fakeSource{conns: []*fakeConn{conn}}

	r := &Runner{Source: src, Canceler: &fakeCanceler{}, Spec: testSpec(t), FailFast: true}
	sc := mustParse(t,"ff.sql", "INSERT INTO t VALUES (1);\nINSERT INTO t VALUES (2);")
	rep := r.Run(context.Background(), sc)

	if len(rep.Results) != 1 {
		t.Fatalf("executed %d statements, want 1", len(rep.Results))
	}
	if rep.Results[0].Status != progress.StatusFailed {
		t.Fatalf("status = %v", rep.Results[0].Status)
	}
	for _, sql := range conn.executed() {
		if sql == "INSERT INTO t VALUES (2)" {
			t.Fatal("fail-fast ran the statement after the failure")
		}
	}
}

func TestRunnerDrainOnlyNoCommit(t *testing.T) {
	conn := newFakeConn(1)
	conn.rowsFor["SELECT id, name FROM t"] = 4
	src := &fakeSource{conns: []*fakeConn{conn}}
	spec := testSpec(t)

	r := &Runner{Source: src, Canceler: &fakeCanceler{}, Spec: spec, DrainOnly: true, NoCommit: true}
	sc := mustParse(t,"check.sql", "INSERT INTO t VALUES (1, 'a');\nSELECT id, name FROM t;")
	rep := r.Run(context.Background(), sc)

	if rep.Failed() != 0 {
		t.Fatalf("run failed: %+v", rep)
	}
	if rep.LastOutputFile != "" {
		t.Fatalf("drain-only wrote %s", rep.LastOutputFile)
	}
	entries, err := os.ReadDir(spec.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("drain-only left %d files in output dir", len(entries))
	}
	if rep.Results[1].Rows != 4 {
		t.Fatalf("drained rows = %d, want 4", rep.Results[1].Rows)
	}

	// Validation runs roll back instead of committing.
	log := conn.executed()
	if log[len(log)-1] != "ROLLBACK" {
		t.Fatalf("run did not end in rollback; log %v", log)
	}
	for _, sql := range log {
		if sql == "COMMIT" {
			t.Fatalf("no-commit run committed; log %v", log)
		}
	}
}

func TestRunnerConnectFailureIsFatal(t *testing.T) {
	src := &fakeSource{}
	r := &Runner{Source: src, Canceler: &fakeCanceler{}, Spec: testSpec(t)}
	rep := r.Run(context.Background(), mustParse(t,"x.sql", "SELECT 1;"))

	if rep.Fatal == "" {
		t.Fatal("expected fatal report")
	}
	if len(rep.Results) != 0 {
		t.Fatalf("results = %v, want none", rep.Results)
	}
}

func TestRunnerEmitsProgressInOrder(t *testing.T) {
	conn := newFakeConn(1)
	conn.rowsFor["SELECT id, name FROM t"] = 2
	src := &fakeSource{conns: []*fakeConn{conn}}

	rep := progress.NewReporter(16)
	r := &Runner{Source: src, Canceler: &fakeCanceler{}, Spec: testSpec(t), Reporter: rep}
	sc := mustParse(t,"p.sql",
		"CREATE TABLE t (id int, name text);\nINSERT INTO t VALUES (1, 'a');\nSELECT id, name FROM t;")
	r.Run(context.Background(), sc)
	rep.Close()

	var events []progress.Event
	for ev := range rep.Events() {
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Index != i+1 {
			t.Fatalf("event %d has index %d", i, ev.Index)
		}
		if ev.Total != 3 {
			t.Fatalf("event total = %d, want 3", ev.Total)
		}
		if ev.Status != progress.StatusSuccess {
			t.Fatalf("event %d status = %v", i, ev.Status)
		}
	}
	if events[0].Kind != "DDL" || events[1].Kind != "DML" || events[2].Kind != "QUERY" {
		t.Fatalf("event kinds = %s %s %s", events[0].Kind, events[1].Kind, events[2].Kind)
	}
}

func TestRunAllReportsInInputOrder(t *testing.T) {
	var conns []*fakeConn
	var scripts []*script.Script
	for i := 0; i < 4; i++ {
		c := newFakeConn(uint32(i + 1))
		c.rowsFor["SELECT id, name FROM t"] = i + 1
		conns = append(conns, c)
		scripts = append(scripts, mustParse(t,
			fmt.Sprintf("script-%d.sql", i), "SELECT id, name FROM t;"))
	}
	src := &fakeSource{conns: conns}
	spec := testSpec(t)
	spec.Workers = 2

	r := &Runner{Source: src, Canceler: &fakeCanceler{}, Spec: spec}
	reports := r.RunAll(context.Background(), scripts)

	if len(reports) != 4 {
		t.Fatalf("got %d reports, want 4", len(reports))
	}
	for i, rep := range reports {
		if rep == nil {
			t.Fatalf("report %d is nil", i)
		}
		if rep.Script != fmt.Sprintf("script-%d.sql", i) {
			t.Fatalf("report %d is for %s", i, rep.Script)
		}
	}
}

func TestRunnerPerScriptTimeoutOverride(t *testing.T) {
	conn := newFakeConn(1)
	conn.blockOn["SELECT pg_sleep(3600)"] = true
	src := &fakeSource{conns: []*fakeConn{conn, newFakeConn(2)}}

	spec := testSpec(t)
	spec.Timeout = time.Hour
	r := &Runner{
		Source:   src,
		Canceler: &fakeCanceler{},
		Spec:     spec,
		Grace:    20 * time.Millisecond,
		Timeouts: func(scriptName string) time.Duration {
			if scriptName == "slow" {
				return 20 * time.Millisecond
			}
			return spec.Timeout
		},
	}

	rep := r.Run(context.Background(), mustParse(t,"slow.sql", "SELECT pg_sleep(3600);"))
	if got := statuses(rep); len(got) != 1 || got[0] != progress.StatusTimeout {
		t.Fatalf("statuses = %v, want [TIMEOUT]", got)
	}
}

func TestRunnerCancellationAbortsRun(t *testing.T) {
	conn := newFakeConn(1)
	conn.blockOn["SELECT pg_sleep(3600)"] = true
	src := &fakeSource{conns: []*fakeConn{conn}}

	spec := testSpec(t)
	spec.Timeout = time.Minute
	r := &Runner{Source: src, Canceler: &fakeCanceler{}, Spec: spec, Grace: 20 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	sc := mustParse(t,"c.sql", "SELECT pg_sleep(3600);\nSELECT 1;")
	rep := r.Run(ctx, sc)

	if rep.Fatal != "run canceled" {
		t.Fatalf("Fatal = %q, want run canceled", rep.Fatal)
	}
	if len(rep.Results) != 1 {
		t.Fatalf("executed %d statements after cancel, want 1", len(rep.Results))
	}
	if !conn.discarded {
		t.Fatal("canceled connection was not discarded")
	}
}
