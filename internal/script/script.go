// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package script parses multi-statement SQL script files into ordered,
// classified statements. Splitting respects quoted literals, quoted
// identifiers, line and block comments, and PostgreSQL dollar-quoted bodies,
// so a terminator inside any of those never breaks a statement apart.
//
// A parsed Script is immutable: downstream components read statements by
// index and never mutate them.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Statement is one executable unit of a script.
type Statement struct {
	// Text is the statement body without its trailing terminator.
	Text string
	// Index is the zero-based position within the script.
	Index int
	// Kind is the classification tag (DDL, DML or Query).
	Kind Kind
}

// Script is an ordered sequence of statements parsed from one source.
type Script struct {
	// Source identifies where the script came from (file path or "<inline>").
	Source string
	// Statements holds the parsed statements in script order.
	Statements []Statement
}

// BaseName returns the script file name without directory or extension,
// used to derive output file names.
func (s *Script) BaseName() string {
	base := filepath.Base(s.Source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parse splits raw script text into a Script with classified statements.
// An empty or comment-only script yields a Script with no statements;
// malformed text is rejected with a ParseFailed error naming the source.
func Parse(source, text string) (*Script, error) {
	parts, err := Split(text)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	stmts := make([]Statement, 0, len(parts))
	for i, p := range parts {
		stmts = append(stmts, Statement{
			Text:  p,
			Index: i,
			Kind:  Classify(p),
		})
	}
	return &Script{Source: source, Statements: stmts}, nil
}

// Load reads a script file and parses it. Line endings are normalized to
// Unix style before splitting.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return Parse(path, text)
}

// ApplyDates substitutes {{start_date}} and {{end_date}} template
// placeholders in every statement. It returns a new Script; the receiver is
// unchanged. Scripts without placeholders come back equivalent.
func (s *Script) ApplyDates(startDate, endDate string) *Script {
	out := &Script{Source: s.Source, Statements: make([]Statement, len(s.Statements))}
	copy(out.Statements, s.Statements)
	if startDate == "" && endDate == "" {
		return out
	}
	for i := range out.Statements {
		t := out.Statements[i].Text
		t = strings.ReplaceAll(t, "{{start_date}}", startDate)
		t = strings.ReplaceAll(t, "{{end_date}}", endDate)
		out.Statements[i].Text = t
	}
	return out
}
