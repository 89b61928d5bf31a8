package util

import (
	"testing"
)

func TestContainsString(t *testing.T) {
	tests := []struct {
		name     string
		slice    []string
		item     string
		expected bool
	}{
		{
			name:     "item exists in slice",
			slice:    []string{"apple", "banana", "orange"},
			item:     "banana",
			expected: true,
		},
		{
			name:     "item does not exist in slice",
			slice:    []string{"apple", "banana", "orange"},
			item:     "grape",
			expected: false,
		},
		{
			name:     "empty slice",
			slice:    []string{},
			item:     "apple",
			expected: false,
		},
		{
			name:     "empty item in slice",
			slice:    []string{"", "apple"},
			item:     "",
			expected: true,
		},
		{
			name:     "case sensitive match",
			slice:    []string{"Apple", "Banana"},
			item:     "apple",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ContainsString(tt.slice, tt.item)
			if result != tt.expected {
				t.Errorf("ContainsString(%v, %q) = %v, want %v", tt.slice, tt.item, result, tt.expected)
			}
		})
	}
}

func TestContainsFold(t *testing.T) {
	slice := []string{"JavaScript", "Go"}
	if !ContainsFold(slice, "javascript") {
		t.Error("ContainsFold should match regardless of case")
	}
	if ContainsFold(slice, "rust") {
		t.Error("ContainsFold matched a missing item")
	}
}

func TestCreateSlug(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Quick Sort Implementation", "quick-sort-implementation"},
		{"  Hello, World!  ", "hello-world"},
		{"useFetch Custom Hook", "usefetch-custom-hook"},
		{"C++", "c"},
		{"snake_case and--dashes", "snake-case-and-dashes"},
		{"---", ""},
		{"", ""},
		{"JWT Token Verification (Node.js)", "jwt-token-verification-nodejs"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CreateSlug(tt.input); got != tt.want {
				t.Errorf("CreateSlug(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestShareURLs(t *testing.T) {
	if got := SnippetShareURL("https://example.com/", "abc", "Binary Search"); got != "https://example.com/snippets/abc/binary-search" {
		t.Errorf("SnippetShareURL() = %q", got)
	}
	if got := SnippetShareURL("", "abc", "Binary Search"); got != "/snippets/abc/binary-search" {
		t.Errorf("SnippetShareURL() without base = %q", got)
	}
	if got := ProfileURL("https://example.com", "demo"); got != "https://example.com/profile/demo" {
		t.Errorf("ProfileURL() = %q", got)
	}
	if got := LanguageURL("https://example.com", "Objective C"); got != "https://example.com/languages/objective-c" {
		t.Errorf("LanguageURL() = %q", got)
	}
}

func TestCountLines(t *testing.T) {
	tests := map[string]int{
		"":            1,
		"one":         1,
		"one\ntwo":    2,
		"a\nb\nc\n": 4,
	}
	for input, want := range tests {
		if got := CountLines(input); got != want {
			t.Errorf("CountLines(%q) = %d, want %d", input, got, want)
		}
	}
}
