// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"encoding/json"
	"time"

	"sqlrun/cli/internal/progress"
)

// Result records the outcome of exactly one statement. Results are produced
// once per statement and aggregated in script order.
type Result struct {
	// Index is the one-based statement position in the script.
	Index int `json:"index"`
	// Kind is the statement's classification tag.
	Kind string `json:"kind"`
	// Status is SUCCESS, FAILED or TIMEOUT.
	Status progress.Status `json:"status"`
	// Rows is rows affected (DML) or rows retrieved/written (QUERY).
	Rows int64 `json:"rows"`
	// Elapsed is the statement's wall-clock duration.
	Elapsed time.Duration `json:"elapsed"`
	// Error holds diagnostic text for FAILED and TIMEOUT statements.
	Error string `json:"error,omitempty"`
	// OutputFile is the result file written for a QUERY, if any.
	OutputFile string `json:"output_file,omitempty"`
}

// Report aggregates one script run. It replaces any implicit "last output
// file" global: the most recent output file is an explicit field consumers
// read from the report.
type Report struct {
	// Script is the script source path.
	Script string `json:"script"`
	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Results holds one entry per executed statement, in script order.
	Results []Result `json:"results"`
	// LastOutputFile is the most recently written result file, if any.
	LastOutputFile string `json:"last_output_file,omitempty"`
	// Fatal records a run-aborting failure (connection loss, fail-fast).
	Fatal string `json:"fatal,omitempty"`
}

// NewReport starts a report for a script run.
func NewReport(script string) *Report {
	return &Report{Script: script, StartedAt: time.Now()}
}

// Add appends a statement result and tracks the most recent output file.
func (r *Report) Add(res Result) {
	r.Results = append(r.Results, res)
	if res.OutputFile != "" {
		r.LastOutputFile = res.OutputFile
	}
}

// Succeeded counts SUCCESS results.
func (r *Report) Succeeded() int { return r.count(progress.StatusSuccess) }

// Failed counts FAILED results.
func (r *Report) Failed() int { return r.count(progress.StatusFailed) }

// TimedOut counts TIMEOUT results.
func (r *Report) TimedOut() int { return r.count(progress.StatusTimeout) }

func (r *Report) count(s progress.Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// TotalRows sums rows across all statements.
func (r *Report) TotalRows() int64 {
	var n int64
	for _, res := range r.Results {
		n += res.Rows
	}
	return n
}

// JSON renders the report for the presentation layer.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
