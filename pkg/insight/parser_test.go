package insight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseDiagnosis_FencedJSON(t *testing.T) {
	response := "Here is my analysis:\n```json\n" +
		`{"diagnosis":"Order amounts spike on weekends.","key_patterns":["weekend spike"],` +
		`"recommendations":[{"action":"Review weekend pricing","priority":"high","reason":"Spike correlates with promotions."}],` +
		`"confidence":0.85}` + "\n```\nLet me know if you need more."

	d := ParseDiagnosis(response, zap.NewNop())

	assert.Equal(t, "Order amounts spike on weekends.", d.Diagnosis)
	assert.Equal(t, []string{"weekend spike"}, d.KeyPatterns)
	require.Len(t, d.Recommendations, 1)
	assert.Equal(t, "high", d.Recommendations[0].Priority)
	assert.Equal(t, 0.85, d.Confidence)
	assert.Equal(t, response, d.RawResponse)
}

func TestParseDiagnosis_BareJSONWithSurroundingProse(t *testing.T) {
	response := `Based on the data {"diagnosis":"Two clusters dominate.",` +
		`"recommendations":[{"action":"Target champions","priority":"medium","reason":"They hold most value."}],` +
		`"confidence":0.6} is my conclusion.`

	d := ParseDiagnosis(response, zap.NewNop())

	assert.Equal(t, "Two clusters dominate.", d.Diagnosis)
	assert.Equal(t, 0.6, d.Confidence)
}

func TestParseDiagnosis_SingleRecommendationBecomesArray(t *testing.T) {
	response := `{"diagnosis":"One pattern.",` +
		`"recommendations":{"action":"Check feed","priority":"low","reason":"Minor drift."},` +
		`"confidence":0.4}`

	d := ParseDiagnosis(response, zap.NewNop())

	require.Len(t, d.Recommendations, 1)
	assert.Equal(t, "Check feed", d.Recommendations[0].Action)
}

func TestParseDiagnosis_NumericPriorityCoercedToString(t *testing.T) {
	response := `{"diagnosis":"One pattern.",` +
		`"recommendations":[{"action":"Check feed","priority":1,"reason":"Minor drift."}],` +
		`"confidence":"0.4"}`

	d := ParseDiagnosis(response, zap.NewNop())

	require.Len(t, d.Recommendations, 1)
	assert.Equal(t, "1", d.Recommendations[0].Priority)
	assert.Equal(t, 0.4, d.Confidence)
}

func TestParseDiagnosis_FallbackCases(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no JSON at all", "I could not produce a structured answer."},
		{"empty response", ""},
		{"missing diagnosis", `{"recommendations":[{"action":"a","priority":"p","reason":"r"}]}`},
		{"missing recommendations", `{"diagnosis":"something"}`},
		{"empty recommendation fields", `{"diagnosis":"d","recommendations":[{"action":"","priority":"p","reason":"r"}]}`},
		{"recommendations wrong type", `{"diagnosis":"d","recommendations":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ParseDiagnosis(tt.response, zap.NewNop())

			require.NotNil(t, d)
			assert.Equal(t, 0.2, d.Confidence)
			assert.NotEmpty(t, d.Diagnosis)
			require.NotEmpty(t, d.Recommendations)
			assert.Equal(t, tt.response, d.RawResponse)
		})
	}
}

func TestParseDiagnosis_OutOfRangeConfidenceClamped(t *testing.T) {
	response := `{"diagnosis":"d","recommendations":[{"action":"a","priority":"p","reason":"r"}],"confidence":7}`

	d := ParseDiagnosis(response, zap.NewNop())
	assert.Equal(t, 0.2, d.Confidence)
}
