package prompts

import (
	"fmt"
	"strings"

	"github.com/datalens-hq/insight-engine/pkg/models"
)

// BuildClusteringSystemMessage returns the system message for segmentation
// diagnosis.
func BuildClusteringSystemMessage() string {
	return "You are a CRM analyst interpreting RFM customer segmentation results. " +
		"You receive cluster-level digests and a small high-value sample, never the full customer list. " +
		"Respond with a single JSON object and nothing else."
}

// BuildClusteringPrompt renders the cluster digest into the diagnosis prompt.
func BuildClusteringPrompt(insightCtx *models.InsightContext, agg *models.ClusterAggregate) string {
	var b strings.Builder

	b.WriteString("# Customer Segmentation Diagnosis\n\n")
	fmt.Fprintf(&b, "Table: %s (%d rows)\n", insightCtx.TableMetadata.TableName, insightCtx.TableMetadata.RowCount)
	fmt.Fprintf(&b, "Business domain: %s\n", insightCtx.BusinessDomain)
	fmt.Fprintf(&b, "Total customers: %d\n\n", agg.TotalCustomers)

	b.WriteString("## Population Averages\n\n")
	fmt.Fprintf(&b, "- Recency: %.1f days\n", agg.RFMStats.AvgRecency)
	fmt.Fprintf(&b, "- Frequency: %.1f orders\n", agg.RFMStats.AvgFrequency)
	fmt.Fprintf(&b, "- Monetary: %.2f\n\n", agg.RFMStats.AvgMonetary)

	b.WriteString("## Clusters\n\n")
	b.WriteString("| Cluster | Label | Customers | Avg Recency | Avg Frequency | Avg Monetary | Value Share |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, c := range agg.Clusters {
		fmt.Fprintf(&b, "| %d | %s | %d | %.1f | %.1f | %.2f | %.1f%% |\n",
			c.ClusterID, c.Label, c.CustomerCount, c.AvgRecency, c.AvgFrequency, c.AvgMonetary, c.ValueShare*100)
	}

	if len(agg.SampleCustomers) > 0 {
		fmt.Fprintf(&b, "\n## Sample Customers (top spenders, %d shown)\n\n", len(agg.SampleCustomers))
		for i, s := range agg.SampleCustomers {
			if i >= 10 {
				fmt.Fprintf(&b, "- ... and %d more\n", len(agg.SampleCustomers)-10)
				break
			}
			fmt.Fprintf(&b, "- customer %s: cluster %d, R=%.0f F=%.0f M=%.2f\n",
				s.CustomerID, s.ClusterID, s.Recency, s.Frequency, s.Monetary)
		}
	}

	b.WriteString("\n## Response Format\n\n")
	b.WriteString("Return a JSON object:\n")
	b.WriteString("```json\n")
	b.WriteString(`{"diagnosis": "...", "key_patterns": ["..."], "recommendations": [{"action": "...", "priority": "high|medium|low", "reason": "..."}], "confidence": 0.0}`)
	b.WriteString("\n```\n")

	return b.String()
}
