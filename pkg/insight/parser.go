package insight

import (
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/jsonutil"
	"github.com/datalens-hq/insight-engine/pkg/llm"
	"github.com/datalens-hq/insight-engine/pkg/models"
)

// fallbackConfidence is the confidence assigned when the model response
// cannot be parsed or validated.
const fallbackConfidence = 0.2

// rawDiagnosis mirrors the expected response JSON; recommendations stays raw
// so a single object can be normalized into a one-element array, and
// confidence stays raw because models sometimes quote it.
type rawDiagnosis struct {
	Diagnosis       string          `json:"diagnosis"`
	KeyPatterns     []string        `json:"key_patterns"`
	Recommendations json.RawMessage `json:"recommendations"`
	Confidence      json.RawMessage `json:"confidence"`
}

// rawRecommendation defers field decoding so numeric or boolean values from
// the model still land as strings.
type rawRecommendation struct {
	Action   json.RawMessage `json:"action"`
	Priority json.RawMessage `json:"priority"`
	Reason   json.RawMessage `json:"reason"`
}

func (r rawRecommendation) toModel() models.Recommendation {
	return models.Recommendation{
		Action:   jsonutil.FlexibleStringValue(r.Action),
		Priority: jsonutil.FlexibleStringValue(r.Priority),
		Reason:   jsonutil.FlexibleStringValue(r.Reason),
	}
}

// ParseDiagnosis extracts and validates the LLM diagnosis from a raw
// response. It never fails: any parse or validation problem returns a fixed
// low-confidence fallback object with the raw text preserved for debugging.
func ParseDiagnosis(response string, logger *zap.Logger) *models.Diagnosis {
	jsonStr, err := llm.ExtractJSON(response)
	if err != nil {
		logger.Warn("no JSON found in LLM response", zap.Int("response_len", len(response)))
		return fallbackDiagnosis(response)
	}

	var raw rawDiagnosis
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		logger.Warn("LLM response JSON did not match expected shape", zap.Error(err))
		return fallbackDiagnosis(response)
	}
	if strings.TrimSpace(raw.Diagnosis) == "" || len(raw.Recommendations) == 0 {
		logger.Warn("LLM response missing diagnosis or recommendations")
		return fallbackDiagnosis(response)
	}

	recs, ok := normalizeRecommendations(raw.Recommendations)
	if !ok {
		logger.Warn("LLM recommendations failed validation")
		return fallbackDiagnosis(response)
	}

	confidence := jsonutil.FlexibleFloatValue(raw.Confidence)
	if confidence <= 0 || confidence > 1 {
		confidence = fallbackConfidence
	}
	return &models.Diagnosis{
		Diagnosis:       raw.Diagnosis,
		KeyPatterns:     raw.KeyPatterns,
		Recommendations: recs,
		Confidence:      confidence,
		RawResponse:     response,
	}
}

// normalizeRecommendations accepts either a single recommendation object or
// an array, and validates each entry carries action, priority, and reason.
func normalizeRecommendations(raw json.RawMessage) ([]models.Recommendation, bool) {
	var rawRecs []rawRecommendation
	if err := json.Unmarshal(raw, &rawRecs); err != nil {
		var single rawRecommendation
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, false
		}
		rawRecs = []rawRecommendation{single}
	}

	recs := make([]models.Recommendation, 0, len(rawRecs))
	for _, rr := range rawRecs {
		recs = append(recs, rr.toModel())
	}
	if len(recs) == 0 {
		return nil, false
	}
	for _, rec := range recs {
		if strings.TrimSpace(rec.Action) == "" ||
			strings.TrimSpace(rec.Priority) == "" ||
			strings.TrimSpace(rec.Reason) == "" {
			return nil, false
		}
	}
	return recs, true
}

func fallbackDiagnosis(response string) *models.Diagnosis {
	return &models.Diagnosis{
		Diagnosis: "The analysis completed, but the model response could not be interpreted with confidence.",
		Recommendations: []models.Recommendation{{
			Action:   "Re-run the analysis or review the raw model response",
			Priority: "low",
			Reason:   "The model returned a response that did not match the expected structure.",
		}},
		Confidence:  fallbackConfidence,
		RawResponse: response,
	}
}
