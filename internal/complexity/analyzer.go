// Package complexity estimates the time complexity of a code snippet from
// structural signals in its text. It does not parse the code: every detector
// is a textual heuristic, so results are suggestions and not guarantees.
package complexity

// Analyze detects patterns in code and estimates its dominant complexity.
// It never fails; input without recognisable signals yields the O(1) fallback.
// Patterns are listed most confident first, matching the reasoning lines.
func Analyze(code, language string) Analysis {
	patterns := byConfidence(DetectPatterns(code, language))
	label, confidence, reasoning := Estimate(patterns)

	names := make([]string, 0, len(patterns))
	for _, p := range patterns {
		names = append(names, p.Name)
	}

	return Analysis{
		EstimatedComplexity: label,
		Confidence:          confidence,
		Reasoning:           reasoning,
		Patterns:            names,
	}
}
