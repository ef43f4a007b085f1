// Package confidence provides confidence score math utilities.
package confidence

// AboveThreshold checks if confidence meets minimum requirement.
func AboveThreshold(score, threshold float64) bool {
	return score >= threshold
}

// Clamp ensures confidence is in valid range [0, 1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// NonIncreasing reports whether scores are sorted from most to least certain.
func NonIncreasing(scores []float64) bool {
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[i-1] {
			return false
		}
	}
	return true
}

// Confidence values assigned by relationship inference.
const (
	Exact      = 1.0  // identical normalized native id across sources
	FieldMatch = 0.95 // field-derived, substring matching is heuristic
	DNSMatch   = 0.85 // shared DNS name
	Endpoint   = 0.75 // shared endpoint string
	SharedIP   = 0.60 // externally visible IP overlap
	TagOverlap = 0.50 // shared resource group or tag set
)
