package complexity

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// polyRe matches O(n^k) labels and the caret-less O(nk) form
var polyRe = regexp.MustCompile(`^O\(n\^?(\d+)\)$`)

const (
	fallbackConfidence = 0.3
	fallbackReason     = "No complex patterns detected"
)

// Power ranks a complexity label so labels can be compared.
// Unrecognised labels rank as constant time.
func Power(label string) float64 {
	switch label {
	case LabelConstant:
		return 0
	case LabelLogarithmic:
		return 0.5
	case LabelLinear:
		return 1
	case LabelLinearithmic:
		return 1.5
	}
	if k, ok := polynomialDegree(label); ok {
		return k
	}
	switch label {
	case LabelQuadratic:
		return 2
	case LabelCubic:
		return 3
	}
	return 0
}

// polynomialDegree extracts k from an O(n^k) label. Degrees beyond int range
// still rank above every smaller one; past float64 range they become +Inf.
func polynomialDegree(label string) (float64, bool) {
	m := polyRe.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	// m[1] is all digits, so the only possible error is ErrRange
	k, _ := strconv.ParseFloat(m[1], 64)
	return k, true
}

// Estimate picks the dominant complexity among patterns. Patterns are visited
// from most to least confident and the selection only moves on a strictly
// higher power, so among equal powers the most confident pattern wins. The
// returned confidence is the winning pattern's own.
func Estimate(patterns []Pattern) (string, float64, []string) {
	if len(patterns) == 0 {
		return LabelConstant, fallbackConfidence, []string{fallbackReason}
	}

	ordered := byConfidence(patterns)

	best := ordered[0]
	bestPower := Power(best.Complexity)
	reasoning := make([]string, 0, len(ordered))
	for _, p := range ordered {
		reasoning = append(reasoning, fmt.Sprintf("Detected %s (%s)", p.Name, p.Complexity))
		if pw := Power(p.Complexity); pw > bestPower {
			best, bestPower = p, pw
		}
	}
	return best.Complexity, best.Confidence, reasoning
}

// byConfidence returns a copy of patterns, most confident first. Ties keep
// detector order.
func byConfidence(patterns []Pattern) []Pattern {
	ordered := make([]Pattern, len(patterns))
	copy(ordered, patterns)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Confidence > ordered[j].Confidence
	})
	return ordered
}
