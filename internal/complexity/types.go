package complexity

// Category groups detected patterns by the kind of structure they describe
type Category string

const (
	CategoryLoop          Category = "loop"
	CategoryRecursion     Category = "recursion"
	CategoryDataStructure Category = "data-structure"
	CategoryAlgorithm     Category = "algorithm"
)

// Complexity labels produced by the detectors
const (
	LabelConstant     = "O(1)"
	LabelLogarithmic  = "O(log n)"
	LabelLinear       = "O(n)"
	LabelLinearithmic = "O(n log n)"
	LabelQuadratic    = "O(n²)"
	LabelCubic        = "O(n³)"
)

// Pattern is a structural signal found in snippet source text
type Pattern struct {
	Name       string   `json:"name"`
	Category   Category `json:"category"`
	Complexity string   `json:"complexity"`
	Confidence float64  `json:"confidence"`
}

// Analysis is the result of a complexity estimate for one snippet
type Analysis struct {
	EstimatedComplexity string   `json:"estimatedComplexity"`
	Confidence          float64  `json:"confidence"`
	Reasoning           []string `json:"reasoning"`
	Patterns            []string `json:"patterns"`
}
