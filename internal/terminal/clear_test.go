// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import "testing"

func TestLineCount(t *testing.T) {
	tests := []struct {
		name   string
		length int
		width  int
		want   int
	}{
		{"empty prompt still occupies a row", 0, 80, 1},
		{"fits on one row", 40, 80, 1},
		{"exactly one row", 80, 80, 1},
		{"wraps to second row", 81, 80, 2},
		{"long dsn on narrow terminal", 200, 40, 5},
		{"negative length", -5, 80, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lineCount(tt.length, tt.width); got != tt.want {
				t.Errorf("lineCount(%d, %d) = %d, want %d", tt.length, tt.width, got, tt.want)
			}
		})
	}
}
