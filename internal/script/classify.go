// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import "strings"

// Kind tags a statement with the transaction semantics it needs.
type Kind int

const (
	// KindDML is a data-modifying statement executed inside a transaction.
	// It is also the conservative default for unrecognized statements.
	KindDML Kind = iota
	// KindDDL is a schema-changing statement executed in autocommit mode.
	KindDDL
	// KindQuery is a read-only statement producing a result set.
	KindQuery
)

// String returns the tag name used in logs and reports.
func (k Kind) String() string {
	switch k {
	case KindDDL:
		return "DDL"
	case KindQuery:
		return "QUERY"
	default:
		return "DML"
	}
}

// kindByKeyword maps a statement's leading keyword to its kind. Unlisted
// keywords classify as DML so they run under rollback-safe transactions.
var kindByKeyword = map[string]Kind{
	// schema-altering, autocommit
	"create":   KindDDL,
	"alter":    KindDDL,
	"drop":     KindDDL,
	"truncate": KindDDL,
	"comment":  KindDDL,
	"rename":   KindDDL,
	"grant":    KindDDL,
	"revoke":   KindDDL,
	"vacuum":   KindDDL,
	"reindex":  KindDDL,
	"analyze":  KindDDL,
	// DO blocks manage their own scope and many contain DDL; run autocommit
	// like the rest of the schema statements.
	"do": KindDDL,
	// data-modifying, transactional
	"insert": KindDML,
	"update": KindDML,
	"delete": KindDML,
	"merge":  KindDML,
	"copy":   KindDML,
	// read-only result sets
	"select":  KindQuery,
	"with":    KindQuery,
	"values":  KindQuery,
	"table":   KindQuery,
	"explain": KindQuery,
	"show":    KindQuery,
}

// Classify tags a single statement by its first token, case-insensitively.
func Classify(stmt string) Kind {
	tok := firstToken(stmt)
	if k, ok := kindByKeyword[tok]; ok {
		return k
	}
	return KindDML
}

// firstToken returns the first keyword of a statement, lowercased, skipping
// leading whitespace, comments and parentheses.
func firstToken(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			end := 0
			for end < len(s) && isTagChar(s[end]) {
				end++
			}
			return strings.ToLower(s[:end])
		}
	}
}
