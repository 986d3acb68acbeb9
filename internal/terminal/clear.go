// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal erases prompt lines so secrets typed at an interactive
// prompt do not linger on screen.
package terminal

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

const fallbackWidth = 80

// ClearPreviousLines wipes the lines occupied by textLength characters of
// prompt plus input, accounting for wrapping at the current terminal width
// and for the newline the Enter key left behind.
func ClearPreviousLines(textLength int) {
	width := fallbackWidth
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	// One extra line for the empty row the cursor landed on after Enter.
	lines := lineCount(textLength, width) + 1
	for i := 0; i < lines; i++ {
		fmt.Print("\r\x1b[2K")
		if i < lines-1 {
			fmt.Print("\x1b[1A")
		}
	}
}

// lineCount returns how many terminal rows textLength characters occupy at
// the given width. Empty text still occupies the prompt's row.
func lineCount(textLength, width int) int {
	if textLength <= 0 {
		return 1
	}
	return (textLength + width - 1) / width
}
