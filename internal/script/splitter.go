// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import (
	"fmt"
	"strings"

	"sqlrun/cli/internal/errors"
)

// Split decomposes raw SQL text into ordered, non-empty statement strings.
// Semicolons terminate statements only at the top level: inside single-quoted
// literals (including doubled-quote escapes), double-quoted identifiers,
// line comments, block comments and dollar-quoted bodies they are plain text.
// A trailing statement without a terminator is still returned as the final
// element. Comments outside statements are discarded; comments inside a
// statement are preserved as part of its text.
//
// Text that ends inside an unterminated literal, identifier, block comment
// or dollar-quoted body is malformed and rejected with a ParseFailed error;
// the server would misread everything after the opening delimiter.
func Split(text string) ([]string, error) {
	var stmts []string
	var cur strings.Builder

	const (
		stTop = iota
		stSingle
		stDouble
		stLineComment
		stBlockComment
		stDollar
	)
	state := stTop
	dollarTag := "" // active $tag$ delimiter, including the dollar signs
	blockDepth := 0

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" && !commentOnly(s) {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch state {
		case stSingle:
			cur.WriteByte(c)
			if c == '\'' {
				// '' inside a literal is an escaped quote, not a close
				if i+1 < len(text) && text[i+1] == '\'' {
					cur.WriteByte(text[i+1])
					i++
				} else {
					state = stTop
				}
			}
		case stDouble:
			cur.WriteByte(c)
			if c == '"' {
				state = stTop
			}
		case stLineComment:
			cur.WriteByte(c)
			if c == '\n' {
				state = stTop
			}
		case stBlockComment:
			cur.WriteByte(c)
			if c == '*' && i+1 < len(text) && text[i+1] == '/' {
				cur.WriteByte(text[i+1])
				i++
				blockDepth--
				if blockDepth == 0 {
					state = stTop
				}
			} else if c == '/' && i+1 < len(text) && text[i+1] == '*' {
				cur.WriteByte(text[i+1])
				i++
				blockDepth++
			}
		case stDollar:
			cur.WriteByte(c)
			if c == '$' && strings.HasPrefix(text[i:], dollarTag) {
				cur.WriteString(text[i+1 : i+len(dollarTag)])
				i += len(dollarTag) - 1
				state = stTop
			}
		default: // stTop
			switch {
			case c == '\'':
				state = stSingle
				cur.WriteByte(c)
			case c == '"':
				state = stDouble
				cur.WriteByte(c)
			case c == '-' && i+1 < len(text) && text[i+1] == '-':
				state = stLineComment
				cur.WriteByte(c)
			case c == '/' && i+1 < len(text) && text[i+1] == '*':
				state = stBlockComment
				blockDepth = 1
				cur.WriteByte(c)
			case c == '$':
				if tag, ok := dollarQuoteTag(text[i:]); ok {
					state = stDollar
					dollarTag = tag
					cur.WriteString(tag)
					i += len(tag) - 1
				} else {
					cur.WriteByte(c)
				}
			case c == ';':
				flush()
			default:
				cur.WriteByte(c)
			}
		}
	}
	switch state {
	case stSingle:
		return nil, errors.New(errors.ParseFailed, "unterminated string literal")
	case stDouble:
		return nil, errors.New(errors.ParseFailed, "unterminated quoted identifier")
	case stBlockComment:
		return nil, errors.New(errors.ParseFailed, "unterminated block comment")
	case stDollar:
		return nil, errors.New(errors.ParseFailed,
			fmt.Sprintf("unterminated dollar-quoted body opened with %s", dollarTag))
	}
	flush()
	return stmts, nil
}

// dollarQuoteTag reports whether s starts a dollar-quote delimiter ($$ or
// $tag$ with an identifier-like tag) and returns the full delimiter.
func dollarQuoteTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		if !isTagChar(c) {
			return "", false
		}
	}
	return "", false
}

// commentOnly reports whether s contains nothing but comments and whitespace.
// Such fragments are dropped rather than sent to the server as statements.
func commentOnly(s string) bool {
	for i := 0; i < len(s); {
		switch {
		case s[i] == ' ' || s[i] == '\t' || s[i] == '\n':
			i++
		case strings.HasPrefix(s[i:], "--"):
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return true
			}
			i += nl + 1
		case strings.HasPrefix(s[i:], "/*"):
			depth := 1
			i += 2
			for i < len(s) && depth > 0 {
				if strings.HasPrefix(s[i:], "/*") {
					depth++
					i += 2
				} else if strings.HasPrefix(s[i:], "*/") {
					depth--
					i += 2
				} else {
					i++
				}
			}
		default:
			return false
		}
	}
	return true
}

func isTagChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// Join reassembles statements into an executable script with terminators.
// Split followed by Join is statement-preserving and order-preserving.
func Join(stmts []string) string {
	var b strings.Builder
	for _, s := range stmts {
		b.WriteString(s)
		b.WriteString(";\n")
	}
	return b.String()
}
