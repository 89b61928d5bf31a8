package complexity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPower(t *testing.T) {
	tests := []struct {
		label string
		want  float64
	}{
		{"O(1)", 0},
		{"O(log n)", 0.5},
		{"O(n)", 1},
		{"O(n log n)", 1.5},
		{"O(n²)", 2},
		{"O(n³)", 3},
		{"O(n^2)", 2},
		{"O(n^7)", 7},
		{"O(n4)", 4},
		{"O(2^n)", 0},
		{"", 0},
		{"O(n^99999999999999999999)", 1e20},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Power(tt.label))
		})
	}
}

func TestEstimate(t *testing.T) {
	t.Run("no patterns", func(t *testing.T) {
		label, confidence, reasoning := Estimate(nil)
		assert.Equal(t, "O(1)", label)
		assert.Equal(t, 0.3, confidence)
		assert.Equal(t, []string{"No complex patterns detected"}, reasoning)
	})

	t.Run("higher power wins over higher confidence", func(t *testing.T) {
		patterns := []Pattern{
			{Name: "Tree Traversal", Category: CategoryAlgorithm, Complexity: "O(n)", Confidence: 0.6},
			{Name: "Binary Search", Category: CategoryAlgorithm, Complexity: "O(log n)", Confidence: 0.8},
		}
		label, confidence, reasoning := Estimate(patterns)
		assert.Equal(t, "O(n)", label)
		assert.Equal(t, 0.6, confidence)
		assert.Equal(t, []string{
			"Detected Binary Search (O(log n))",
			"Detected Tree Traversal (O(n))",
		}, reasoning)
	})

	t.Run("equal power keeps the more confident pattern", func(t *testing.T) {
		patterns := []Pattern{
			{Name: "Recursive Function", Category: CategoryRecursion, Complexity: "O(n)", Confidence: 0.6},
			{Name: "Array Map", Category: CategoryLoop, Complexity: "O(n)", Confidence: 0.8},
		}
		label, confidence, _ := Estimate(patterns)
		assert.Equal(t, "O(n)", label)
		assert.Equal(t, 0.8, confidence)
	})

	t.Run("input slice is not reordered", func(t *testing.T) {
		patterns := []Pattern{
			{Name: "low", Complexity: "O(1)", Confidence: 0.1},
			{Name: "high", Complexity: "O(1)", Confidence: 0.9},
		}
		Estimate(patterns)
		assert.Equal(t, "low", patterns[0].Name)
	})
}

func TestColor(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"O(1)", "text-green-600"},
		{"O(log n)", "text-blue-600"},
		{"O(n)", "text-yellow-600"},
		{"O(n log n)", "text-orange-600"},
		{"O(n²)", "text-red-600"},
		{"O(n^2)", "text-red-600"},
		{"O(n³)", "text-red-800"},
		{"O(n^3)", "text-red-800"},
		{"O(n^1)", "text-yellow-600"},
		{"O(n^4)", "text-red-900"},
		{"O(n^5)", "text-red-900"},
		{"O(n!)", "text-gray-600"},
		{"", "text-gray-600"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Color(tt.label))
		})
	}
}

func TestDescription(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"O(1)", "Constant time - excellent performance"},
		{"O(log n)", "Logarithmic time - very good performance"},
		{"O(n)", "Linear time - good performance"},
		{"O(n log n)", "Linearithmic time - acceptable performance"},
		{"O(n²)", "Quadratic time - consider optimization"},
		{"O(n^2)", "Quadratic time - consider optimization"},
		{"O(n³)", "Cubic time - needs optimization"},
		{"O(n^5)", "O(n^5) time - requires significant optimization"},
		{"O(n4)", "O(n^4) time - requires significant optimization"},
		{"O(2^n)", "Unknown complexity"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Description(tt.label))
		})
	}
}
