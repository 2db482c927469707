// Package binning chooses adaptive histogram binning strategies for numeric
// columns. It only decides which binning expression to request; the query
// executor evaluates it.
package binning

import (
	"fmt"
	"math"

	"github.com/datalens-hq/insight-engine/pkg/datasource"
)

// Strategy identifies how a numeric column is bucketed.
type Strategy string

const (
	StrategyLinear      Strategy = "linear"
	StrategyClipped     Strategy = "clipped"
	StrategyLogarithmic Strategy = "logarithmic"
)

const (
	// dynamicRangeThreshold is the max/min ratio above which logarithmic
	// binning is used.
	dynamicRangeThreshold = 10000

	// fallbackBinWidth is used when the IQR or row count is zero and the
	// Freedman-Diaconis width cannot be computed.
	fallbackBinWidth = 10
)

// Stats are the summary statistics the strategy decision needs.
type Stats struct {
	Min      float64
	Max      float64
	Q1       float64
	Q3       float64
	RowCount int64
}

// Plan is the chosen strategy plus the abstract SQL expression that buckets
// a value of the column.
type Plan struct {
	Strategy   Strategy
	Expression string
	BinWidth   float64 // zero for logarithmic plans
}

// SelectStrategy picks a binning strategy for a numeric column:
// logarithmic when the dynamic range exceeds 10,000, clipped when the
// maximum sits beyond twice the upper Tukey fence, linear otherwise.
func SelectStrategy(column string, stats Stats) Plan {
	iqr := stats.Q3 - stats.Q1
	upperFence := stats.Q3 + 1.5*iqr
	dynamicRange := stats.Max / math.Max(stats.Min, 1)

	quoted := datasource.QuoteIdentifier(column)

	if dynamicRange > dynamicRangeThreshold {
		// Bucket by decade: 10^floor(log10(max(value, 1))).
		return Plan{
			Strategy:   StrategyLogarithmic,
			Expression: fmt.Sprintf("POWER(10, FLOOR(LOG10(GREATEST(%s, 1))))", quoted),
		}
	}

	width := calculateOptimalBinWidth(iqr, stats.RowCount)
	if stats.Max > 2*upperFence {
		// Values above the fence collapse into one bin at the fence.
		return Plan{
			Strategy: StrategyClipped,
			Expression: fmt.Sprintf("CASE WHEN %s > %g THEN %g ELSE FLOOR(%s / %g) * %g END",
				quoted, upperFence, upperFence, quoted, width, width),
			BinWidth: width,
		}
	}

	return Plan{
		Strategy:   StrategyLinear,
		Expression: fmt.Sprintf("FLOOR(%s / %g) * %g", quoted, width, width),
		BinWidth:   width,
	}
}

// calculateOptimalBinWidth applies the Freedman-Diaconis rule and snaps the
// result up to the nearest "nice" width (2, 5, or 10 times a power of ten).
func calculateOptimalBinWidth(iqr float64, rowCount int64) float64 {
	if iqr == 0 || rowCount == 0 {
		return fallbackBinWidth
	}
	width := 2 * iqr / math.Cbrt(float64(rowCount))

	magnitude := math.Pow(10, math.Floor(math.Log10(width)))
	normalized := width / magnitude
	switch {
	case normalized <= 2:
		return magnitude * 2
	case normalized <= 5:
		return magnitude * 5
	default:
		return magnitude * 10
	}
}
