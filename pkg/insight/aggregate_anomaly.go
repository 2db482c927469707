package insight

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/models"
	"github.com/datalens-hq/insight-engine/pkg/schema"
)

// MaxAnalysisSize caps the anomaly working set to bound downstream cost.
const MaxAnalysisSize = 500

// suspiciousDeviation is the relative deviation from the table average above
// which a feature value counts as a suspicious pattern.
const suspiciousDeviation = 0.5

// Aggregator compresses raw per-record analysis results into statistics and
// stratified samples small enough for an LLM prompt.
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator creates an insight aggregator.
func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{logger: logger.Named("insight-aggregator")}
}

// AggregateAnomalies digests anomaly records into per-feature statistics
// merged with one batched full-table average query. Empty input returns a
// zero digest without issuing any query. A failing global query degrades to
// anomaly-only statistics rather than failing the aggregation.
func (a *Aggregator) AggregateAnomalies(ctx context.Context, records []models.AnomalyRecord, tableName string, exec datasource.QueryExecutor) (*models.AnomalyAggregate, error) {
	agg := &models.AnomalyAggregate{
		NumericFeatures:    map[string]models.FeatureStats{},
		TopPatterns:        map[string]int{},
		SuspiciousPatterns: map[string]int{},
	}
	if len(records) == 0 {
		return agg, nil
	}

	working := records
	if len(working) > MaxAnalysisSize {
		a.logger.Debug("capping anomaly working set",
			zap.Int("records", len(records)), zap.Int("cap", MaxAnalysisSize))
		working = working[:MaxAnalysisSize]
	}
	agg.TotalAnomalies = len(working)

	var scoreSum float64
	featureNames := map[string]bool{}
	for _, rec := range working {
		scoreSum += rec.Score
		for name := range rec.Features {
			featureNames[name] = true
		}
	}
	if avg := scoreSum / float64(len(working)); !math.IsNaN(avg) {
		agg.AverageScore = avg
	}

	names := make([]string, 0, len(featureNames))
	for name := range featureNames {
		names = append(names, name)
	}
	sort.Strings(names)

	// Per-feature stats are computed purely in memory over the working set.
	for _, name := range names {
		stats := models.FeatureStats{Min: math.Inf(1), Max: math.Inf(-1)}
		var sum float64
		var n int
		for _, rec := range working {
			v, ok := rec.Features[name]
			if !ok {
				continue
			}
			sum += v
			n++
			stats.Min = math.Min(stats.Min, v)
			stats.Max = math.Max(stats.Max, v)
		}
		if n == 0 {
			continue
		}
		stats.Avg = sum / float64(n)
		agg.NumericFeatures[name] = stats
	}

	// One batched query computes the global average of every feature column.
	globals, err := a.fetchGlobalAverages(ctx, tableName, names, exec)
	if err != nil {
		a.logger.Warn("global average query failed, returning anomaly-only stats", zap.Error(err))
		return agg, nil
	}
	for name, global := range globals {
		stats, ok := agg.NumericFeatures[name]
		if !ok {
			continue
		}
		g := global
		stats.GlobalAvg = &g
		agg.NumericFeatures[name] = stats

		for _, rec := range working {
			v, ok := rec.Features[name]
			if !ok {
				continue
			}
			if v > global {
				agg.TopPatterns[name]++
			}
			if global != 0 && math.Abs(v-global) > suspiciousDeviation*math.Abs(global) {
				agg.SuspiciousPatterns[name]++
			}
		}
	}

	return agg, nil
}

func (a *Aggregator) fetchGlobalAverages(ctx context.Context, tableName string, featureCols []string, exec datasource.QueryExecutor) (map[string]float64, error) {
	if err := datasource.CheckLiteral("table_name", tableName); err != nil {
		return nil, err
	}
	exprs := make([]string, 0, len(featureCols))
	for _, col := range featureCols {
		if !schema.IsValidColumnName(col) {
			continue
		}
		alias := schema.SanitizeColumnName(col) + "__global_avg"
		exprs = append(exprs, fmt.Sprintf("AVG(%s) AS %s",
			datasource.QuoteIdentifier(col), datasource.QuoteIdentifier(alias)))
	}
	if len(exprs) == 0 {
		return map[string]float64{}, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), datasource.QuoteIdentifier(tableName))
	result, err := exec.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return map[string]float64{}, nil
	}

	out := make(map[string]float64, len(featureCols))
	for _, col := range featureCols {
		alias := schema.SanitizeColumnName(col) + "__global_avg"
		if v, ok := datasource.Float64(result.Rows[0][alias]); ok {
			out[col] = v
		}
	}
	return out, nil
}
