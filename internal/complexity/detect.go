package complexity

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	loopOpenRe    = regexp.MustCompile(`for\s*\(|while\s*\(`)
	namedFuncRe   = regexp.MustCompile(`function\s+\w+`)
	hashTableHint = []string{"Map", "Set", "HashMap"}
	treeHint      = []string{"tree", "Tree", "node"}
)

// detector inspects cleaned source and reports at most one pattern
type detector func(src cleanedSource) (Pattern, bool)

// detectors run in this order; the order only affects tie-breaking between
// patterns that share a confidence value
var detectors = []detector{
	detectLoops,
	detectRecursion,
	detectSorting,
	detectBinarySearch,
	detectCallPattern("map(", "Array Map"),
	detectCallPattern("filter(", "Array Filter"),
	detectCallPattern("reduce(", "Array Reduce"),
	detectHashTable,
	detectTree,
}

// cleanedSource is snippet text with blank and comment lines removed
type cleanedSource struct {
	lines []string
	text  string
}

// cleanSource trims every line and drops blanks and lines starting with // or #.
// Block comments and language specific comment markers are not recognised.
func cleanSource(code string) cleanedSource {
	raw := strings.Split(code, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return cleanedSource{lines: lines, text: strings.Join(lines, "\n")}
}

// DetectPatterns runs every detector over code. language is accepted for
// callers that track it but does not change detection.
func DetectPatterns(code, language string) []Pattern {
	_ = language
	src := cleanSource(code)

	var patterns []Pattern
	for _, detect := range detectors {
		if p, ok := detect(src); ok {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// maxLoopNesting walks the lines with a depth counter. A loop opener raises
// the depth, and any line holding a closing brace lowers it, whichever block
// the brace actually closes.
func maxLoopNesting(lines []string) int {
	depth, maxDepth := 0, 0
	for _, line := range lines {
		if loopOpenRe.MatchString(line) {
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		}
		if strings.Contains(line, "}") && depth > 0 {
			depth--
		}
	}
	return maxDepth
}

func detectLoops(src cleanedSource) (Pattern, bool) {
	loopCount := len(loopOpenRe.FindAllStringIndex(src.text, -1))
	if loopCount == 0 {
		return Pattern{}, false
	}

	depth := maxLoopNesting(src.lines)
	switch {
	case depth >= 4:
		return Pattern{
			Name:       fmt.Sprintf("%d-Level Nested Loops", depth),
			Category:   CategoryLoop,
			Complexity: fmt.Sprintf("O(n^%d)", depth),
			Confidence: 0.95,
		}, true
	case depth == 3:
		return Pattern{Name: "Triple Nested Loops", Category: CategoryLoop, Complexity: LabelCubic, Confidence: 0.95}, true
	case depth == 2:
		return Pattern{Name: "Nested Loops", Category: CategoryLoop, Complexity: LabelQuadratic, Confidence: 0.9}, true
	case loopCount == 1:
		return Pattern{Name: "Single Loop", Category: CategoryLoop, Complexity: LabelLinear, Confidence: 0.8}, true
	default:
		return Pattern{Name: "Multiple Loops", Category: CategoryLoop, Complexity: LabelQuadratic, Confidence: 0.8}, true
	}
}

// detectRecursion only checks that a named function and a return statement
// both appear. It does not look for a self call.
func detectRecursion(src cleanedSource) (Pattern, bool) {
	if !strings.Contains(src.text, "function") || !strings.Contains(src.text, "return") {
		return Pattern{}, false
	}
	if !namedFuncRe.MatchString(src.text) {
		return Pattern{}, false
	}
	return Pattern{Name: "Recursive Function", Category: CategoryRecursion, Complexity: LabelLinear, Confidence: 0.6}, true
}

func detectSorting(src cleanedSource) (Pattern, bool) {
	if !strings.Contains(src.text, "sort(") {
		return Pattern{}, false
	}
	return Pattern{Name: "Sorting", Category: CategoryAlgorithm, Complexity: LabelLinearithmic, Confidence: 0.9}, true
}

func detectBinarySearch(src cleanedSource) (Pattern, bool) {
	if !strings.Contains(src.text, "binary") && !strings.Contains(src.text, "Binary") {
		return Pattern{}, false
	}
	return Pattern{Name: "Binary Search", Category: CategoryAlgorithm, Complexity: LabelLogarithmic, Confidence: 0.8}, true
}

// detectCallPattern builds a linear-time detector for a collection helper call
func detectCallPattern(call, name string) detector {
	return func(src cleanedSource) (Pattern, bool) {
		if !strings.Contains(src.text, call) {
			return Pattern{}, false
		}
		return Pattern{Name: name, Category: CategoryLoop, Complexity: LabelLinear, Confidence: 0.8}, true
	}
}

func detectHashTable(src cleanedSource) (Pattern, bool) {
	if !containsAny(src.text, hashTableHint) {
		return Pattern{}, false
	}
	return Pattern{Name: "Hash Table", Category: CategoryDataStructure, Complexity: LabelConstant, Confidence: 0.7}, true
}

func detectTree(src cleanedSource) (Pattern, bool) {
	if !containsAny(src.text, treeHint) {
		return Pattern{}, false
	}
	return Pattern{Name: "Tree Traversal", Category: CategoryAlgorithm, Complexity: LabelLinear, Confidence: 0.6}, true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
