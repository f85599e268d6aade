// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"
)

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		width int
		want  string
	}{
		{"fits", "short title", 20, "short title"},
		{"exact", "abcde", 5, "abcde"},
		{"truncated", "a very long chat title", 10, "a very lo…"},
		{"newlines flattened", "line one\nline two", 20, "line one line two"},
		{"zero width", "anything", 0, ""},
		{"wide runes", "日本語のタイトル", 8, "日本語…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateTitle(tt.title, tt.width)
			if got != tt.want {
				t.Errorf("truncateTitle(%q, %d) = %q, want %q", tt.title, tt.width, got, tt.want)
			}
		})
	}
}

func TestDeriveTitle(t *testing.T) {
	got := deriveTitle("What is the vacation policy?\nAsking for a friend.", 40)
	if strings.Contains(got, "\n") {
		t.Errorf("derived title contains newline: %q", got)
	}
	if got == "" {
		t.Error("derived title should not be empty")
	}

	long := strings.Repeat("word ", 50)
	if derived := deriveTitle(long, 10); len([]rune(derived)) > 14 {
		t.Errorf("derived title too long: %q", derived)
	}
}
