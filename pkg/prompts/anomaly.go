// Package prompts builds the LLM prompts for each analysis algorithm.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datalens-hq/insight-engine/pkg/models"
)

// BuildAnomalySystemMessage returns the system message for anomaly diagnosis.
func BuildAnomalySystemMessage() string {
	return "You are a data analyst specializing in anomaly diagnosis for business datasets. " +
		"You receive aggregated anomaly statistics, never raw rows. " +
		"Respond with a single JSON object and nothing else."
}

// BuildAnomalyPrompt renders the anomaly digest and table context into the
// diagnosis prompt.
func BuildAnomalyPrompt(insightCtx *models.InsightContext, agg *models.AnomalyAggregate) string {
	var b strings.Builder

	b.WriteString("# Anomaly Diagnosis\n\n")
	fmt.Fprintf(&b, "Table: %s (%d rows)\n", insightCtx.TableMetadata.TableName, insightCtx.TableMetadata.RowCount)
	fmt.Fprintf(&b, "Business domain: %s\n\n", insightCtx.BusinessDomain)

	b.WriteString("## Feature Definitions\n\n")
	for _, name := range sortedKeys(insightCtx.FeatureDefinitions) {
		fmt.Fprintf(&b, "- %s: %s\n", name, insightCtx.FeatureDefinitions[name])
	}

	b.WriteString("\n## Anomaly Statistics\n\n")
	fmt.Fprintf(&b, "Total anomalies: %d\n", agg.TotalAnomalies)
	fmt.Fprintf(&b, "Average anomaly score: %.3f\n\n", agg.AverageScore)

	b.WriteString("| Feature | Anomaly Avg | Min | Max | Table Avg |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, name := range sortedStatKeys(agg.NumericFeatures) {
		st := agg.NumericFeatures[name]
		global := "n/a"
		if st.GlobalAvg != nil {
			global = fmt.Sprintf("%.2f", *st.GlobalAvg)
		}
		fmt.Fprintf(&b, "| %s | %.2f | %.2f | %.2f | %s |\n", name, st.Avg, st.Min, st.Max, global)
	}

	if len(agg.SuspiciousPatterns) > 0 {
		b.WriteString("\n## Suspicious Patterns\n\n")
		for _, name := range sortedCountKeys(agg.SuspiciousPatterns) {
			fmt.Fprintf(&b, "- %s deviates from the table average in %d anomalies\n", name, agg.SuspiciousPatterns[name])
		}
	}

	b.WriteString("\n## Response Format\n\n")
	b.WriteString("Return a JSON object:\n")
	b.WriteString("```json\n")
	b.WriteString(`{"diagnosis": "...", "key_patterns": ["..."], "recommendations": [{"action": "...", "priority": "high|medium|low", "reason": "..."}], "confidence": 0.0}`)
	b.WriteString("\n```\n")

	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStatKeys(m map[string]models.FeatureStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
