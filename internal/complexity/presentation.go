package complexity

import (
	"fmt"
	"strconv"
)

// Display classes are CSS utility class names consumed by existing front-ends
const (
	colorGreen   = "text-green-600"
	colorBlue    = "text-blue-600"
	colorYellow  = "text-yellow-600"
	colorOrange  = "text-orange-600"
	colorRed     = "text-red-600"
	colorDarkRed = "text-red-800"
	colorDarkest = "text-red-900"
	colorUnknown = "text-gray-600"
)

var fixedColors = map[string]string{
	LabelConstant:     colorGreen,
	LabelLogarithmic:  colorBlue,
	LabelLinear:       colorYellow,
	LabelLinearithmic: colorOrange,
	LabelQuadratic:    colorRed,
	"O(n^2)":          colorRed,
	LabelCubic:        colorDarkRed,
	"O(n^3)":          colorDarkRed,
}

var fixedDescriptions = map[string]string{
	LabelConstant:     "Constant time - excellent performance",
	LabelLogarithmic:  "Logarithmic time - very good performance",
	LabelLinear:       "Linear time - good performance",
	LabelLinearithmic: "Linearithmic time - acceptable performance",
	LabelQuadratic:    "Quadratic time - consider optimization",
	"O(n^2)":          "Quadratic time - consider optimization",
	LabelCubic:        "Cubic time - needs optimization",
	"O(n^3)":          "Cubic time - needs optimization",
}

// Color returns the display class for a complexity label
func Color(label string) string {
	if k, ok := polynomialDegree(label); ok {
		switch {
		case k == 1:
			return colorYellow
		case k == 2:
			return colorRed
		case k == 3:
			return colorDarkRed
		case k >= 4:
			return colorDarkest
		}
	}
	if c, ok := fixedColors[label]; ok {
		return c
	}
	return colorUnknown
}

// Description returns a short human readable summary for a complexity label
func Description(label string) string {
	if k, ok := polynomialDegree(label); ok {
		switch {
		case k == 1:
			return fixedDescriptions[LabelLinear]
		case k == 2:
			return fixedDescriptions[LabelQuadratic]
		case k == 3:
			return fixedDescriptions[LabelCubic]
		case k >= 4:
			return fmt.Sprintf("O(n^%s) time - requires significant optimization", strconv.FormatFloat(k, 'f', -1, 64))
		}
	}
	if d, ok := fixedDescriptions[label]; ok {
		return d
	}
	return "Unknown complexity"
}
