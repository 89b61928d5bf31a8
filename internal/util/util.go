package util

import (
	"regexp"
	"strings"
)

var (
	slugStripRe    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapseRe = regexp.MustCompile(`[\s_-]+`)
)

// ContainsString reports whether slice contains item.
func ContainsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// ContainsFold reports whether slice contains item, ignoring case.
func ContainsFold(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

// CreateSlug lowercases text, drops punctuation and joins words with dashes.
// Non-ASCII letters are dropped.
func CreateSlug(text string) string {
	slug := strings.TrimSpace(strings.ToLower(text))
	slug = slugStripRe.ReplaceAllString(slug, "")
	slug = slugCollapseRe.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// SnippetShareURL builds the shareable path for a snippet, optionally prefixed by baseURL.
func SnippetShareURL(baseURL, snippetID, title string) string {
	return strings.TrimRight(baseURL, "/") + "/snippets/" + snippetID + "/" + CreateSlug(title)
}

// ProfileURL builds the public profile path for username.
func ProfileURL(baseURL, username string) string {
	return strings.TrimRight(baseURL, "/") + "/profile/" + username
}

// LanguageURL builds the language listing path.
func LanguageURL(baseURL, language string) string {
	return strings.TrimRight(baseURL, "/") + "/languages/" + CreateSlug(language)
}

// CountLines returns the number of newline separated lines in text.
func CountLines(text string) int {
	return strings.Count(text, "\n") + 1
}

// TruncateString truncates s to maxLen and appends "..." if truncated (UTF-8 safe).
// If preserveWords is true, truncates at the last space before maxLen when possible.
func TruncateString(s string, maxLen int, preserveWords bool) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	// Reserve space for ellipsis
	if maxLen <= 3 {
		return "..."[:maxLen]
	}
	cut := maxLen - 3
	if preserveWords {
		if idx := lastSpaceBeforeRune(runes, cut); idx > 0 {
			cut = idx
		}
	}
	return string(runes[:cut]) + "..."
}

// lastSpaceBeforeRune finds the last whitespace rune before pos
func lastSpaceBeforeRune(runes []rune, pos int) int {
	if pos > len(runes) {
		pos = len(runes)
	}
	for i := pos - 1; i >= 0; i-- {
		if runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
