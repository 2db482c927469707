package models

// Recommendation is one validated action item from the LLM diagnosis.
type Recommendation struct {
	Action   string `json:"action"`
	Priority string `json:"priority"` // high, medium, low
	Reason   string `json:"reason"`
}

// Diagnosis is the parsed, validated LLM analysis of an aggregate.
// RawResponse keeps the unparsed model output for debugging; it is never
// surfaced to callers as an error.
type Diagnosis struct {
	Diagnosis       string           `json:"diagnosis"`
	KeyPatterns     []string         `json:"key_patterns,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
	Confidence      float64          `json:"confidence"`
	RawResponse     string           `json:"-"`
}
