package util

import (
	"testing"
	"unicode/utf8"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		maxLen        int
		preserveWords bool
		want          string
	}{
		{"short input unchanged", "Binary Search", 20, false, "Binary Search"},
		{"exact length unchanged", "1234567890", 10, false, "1234567890"},
		{"hard cut", "Efficient sorting algorithm", 10, false, "Efficie..."},
		{"word boundary", "Efficient sorting algorithm", 20, true, "Efficient..."},
		{"no space falls back to hard cut", "abcdefghijklmnop", 8, true, "abcde..."},
		{"tiny max", "abcdef", 2, false, ".."},
		{"zero max", "abcdef", 0, false, ""},
		{"negative max", "abcdef", -1, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateString(tt.input, tt.maxLen, tt.preserveWords); got != tt.want {
				t.Errorf("TruncateString(%q, %d, %v) = %q, want %q", tt.input, tt.maxLen, tt.preserveWords, got, tt.want)
			}
		})
	}
}

// Multi-byte input must never be split inside a rune.
func TestTruncateString_UTF8(t *testing.T) {
	inputs := []string{
		"查询中文数据库中的用户信息",
		"データベース システム",
		"Hello 👋 World 🌍",
		"Привет мир",
	}

	for _, input := range inputs {
		for maxLen := 1; maxLen < len(input)+3; maxLen++ {
			for _, preserve := range []bool{false, true} {
				result := TruncateString(input, maxLen, preserve)
				if !utf8.ValidString(result) {
					t.Fatalf("TruncateString(%q, %d, %v) produced invalid UTF-8: %q", input, maxLen, preserve, result)
				}
				if n := utf8.RuneCountInString(result); n > maxLen {
					t.Fatalf("TruncateString(%q, %d, %v) = %d runes", input, maxLen, preserve, n)
				}
			}
		}
	}
}
