// Package segment classifies computed customer clusters into named business
// archetypes using rule-based RFM scoring.
package segment

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/models"
)

// Classification names the business archetype a cluster belongs to.
type Classification struct {
	Label       string
	Description string
	ColorHint   string
	Priority    int
}

// emptyCluster is the sentinel classification for clusters with no members.
var emptyCluster = Classification{
	Label:       "Empty Cluster",
	Description: "No customers were assigned to this cluster.",
	ColorHint:   "#9ca3af",
	Priority:    0,
}

// rfmRule maps an (R, F, M) score triple to an archetype. A zero in any
// dimension matches every score. Rules are evaluated in order; first match
// wins.
type rfmRule struct {
	r, f, m   int
	archetype Classification
}

var rfmRules = []rfmRule{
	{3, 3, 3, Classification{"Champions", "Bought recently, buy often, and spend the most.", "#16a34a", 1}},
	{0, 3, 3, Classification{"Loyal", "High frequency and high spend regardless of recency.", "#22c55e", 2}},
	{1, 0, 3, Classification{"Can't Lose Them", "Big spenders who have gone quiet.", "#dc2626", 3}},
	{1, 3, 0, Classification{"At Risk", "Used to buy often but have not returned recently.", "#f97316", 4}},
	{3, 1, 1, Classification{"New Customers", "First purchases are recent; value still unproven.", "#3b82f6", 5}},
	{3, 2, 0, Classification{"Potential Loyalist", "Recent buyers with growing frequency.", "#0ea5e9", 6}},
	{3, 1, 0, Classification{"Promising", "Recent buyers who have not settled into a habit yet.", "#6366f1", 7}},
	{2, 2, 2, Classification{"Need Attention", "Middle of the pack on every dimension.", "#eab308", 8}},
	{2, 1, 0, Classification{"About to Sleep", "Activity is fading.", "#a855f7", 9}},
	{1, 1, 1, Classification{"Lost", "Lowest score on every dimension.", "#6b7280", 11}},
	{1, 0, 0, Classification{"Hibernating", "Long inactive with little historical value.", "#78716c", 10}},
}

// Labeler assigns archetypes to clusters using percentile breakpoints
// computed across the set of cluster-level averages.
type Labeler struct {
	logger *zap.Logger
}

// NewLabeler creates a segment labeler.
func NewLabeler(logger *zap.Logger) *Labeler {
	return &Labeler{logger: logger.Named("segment-labeler")}
}

// LabelCluster classifies one cluster against the full cluster set. The
// percentile context comes from per-cluster averages, not per-customer
// values.
func (l *Labeler) LabelCluster(cluster models.ClusterMetadata, allClusters []models.ClusterMetadata) Classification {
	if cluster.CustomerCount == 0 {
		return emptyCluster
	}

	breaks := computeBreakpoints(allClusters)
	r := scoreRecency(cluster.AvgRecency, breaks.recency)
	f := scoreAscending(cluster.AvgFrequency, breaks.frequency)
	m := scoreAscending(cluster.AvgMonetary, breaks.monetary)

	for _, rule := range rfmRules {
		if (rule.r == 0 || rule.r == r) && (rule.f == 0 || rule.f == f) && (rule.m == 0 || rule.m == m) {
			return rule.archetype
		}
	}

	// Unmatched triples fall back to a total-score heuristic.
	switch total := r + f + m; {
	case total >= 8:
		return findArchetype("Loyal")
	case total >= 6:
		return findArchetype("Need Attention")
	default:
		return findArchetype("About to Sleep")
	}
}

// LabelAllClusters classifies every cluster using the full set for percentile
// context and returns a new slice with labels filled in.
func (l *Labeler) LabelAllClusters(clusters []models.ClusterMetadata) []models.ClusterMetadata {
	labeled := make([]models.ClusterMetadata, len(clusters))
	copy(labeled, clusters)
	for i := range labeled {
		c := l.LabelCluster(labeled[i], clusters)
		labeled[i].Label = c.Label
		labeled[i].Description = c.Description
		labeled[i].ColorHint = c.ColorHint
		labeled[i].Priority = c.Priority
		l.logger.Debug("labeled cluster",
			zap.Int("cluster_id", labeled[i].ClusterID),
			zap.String("label", c.Label),
			zap.Int("customers", labeled[i].CustomerCount))
	}
	return labeled
}

func findArchetype(label string) Classification {
	for _, rule := range rfmRules {
		if rule.archetype.Label == label {
			return rule.archetype
		}
	}
	return emptyCluster
}

type breakpoints struct {
	recency   [2]float64
	frequency [2]float64
	monetary  [2]float64
}

// computeBreakpoints finds the 33rd and 66th percentiles of each RFM
// dimension across cluster-level averages.
func computeBreakpoints(clusters []models.ClusterMetadata) breakpoints {
	recency := make([]float64, 0, len(clusters))
	frequency := make([]float64, 0, len(clusters))
	monetary := make([]float64, 0, len(clusters))
	for _, c := range clusters {
		recency = append(recency, c.AvgRecency)
		frequency = append(frequency, c.AvgFrequency)
		monetary = append(monetary, c.AvgMonetary)
	}
	return breakpoints{
		recency:   [2]float64{percentile(recency, 0.33), percentile(recency, 0.66)},
		frequency: [2]float64{percentile(frequency, 0.33), percentile(frequency, 0.66)},
		monetary:  [2]float64{percentile(monetary, 0.33), percentile(monetary, 0.66)},
	}
}

// percentile computes the p-th percentile with linear interpolation.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// scoreAscending maps a value to {1,2,3} where higher values score higher.
func scoreAscending(value float64, breaks [2]float64) int {
	switch {
	case value <= breaks[0]:
		return 1
	case value <= breaks[1]:
		return 2
	default:
		return 3
	}
}

// scoreRecency inverts the scale: lower recency (more recent) scores higher.
func scoreRecency(value float64, breaks [2]float64) int {
	switch {
	case value <= breaks[0]:
		return 3
	case value <= breaks[1]:
		return 2
	default:
		return 1
	}
}
