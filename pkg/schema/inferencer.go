// Package schema infers statistical types and business semantics for the
// columns of a raw tabular dataset already loaded into a queryable store.
package schema

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/models"
)

// categoricalCardinalityMax is the distinct-count ceiling below which a
// numeric column is treated as categorical.
const categoricalCardinalityMax = 20

// Inferencer classifies raw column metadata into basic types and semantic
// roles, computing numeric statistics through batched queries.
type Inferencer struct {
	logger *zap.Logger
}

// NewInferencer creates a schema inferencer.
func NewInferencer(logger *zap.Logger) *Inferencer {
	return &Inferencer{logger: logger.Named("schema-inference")}
}

// rawColumn is the executor-level column description before inference.
type rawColumn struct {
	name    string
	rawType string
}

// InferColumns scans a table and returns one profile per business-relevant
// column, plus the table's row count so callers do not have to re-query it.
// Columns with unsafe names, no semantic match, or an id semantic are
// dropped before any statistics run. An empty result means "no insight
// available" and is not an error.
func (s *Inferencer) InferColumns(ctx context.Context, tableName string, exec datasource.QueryExecutor) ([]models.ColumnProfile, int64, error) {
	if err := datasource.CheckLiteral("table_name", tableName); err != nil {
		return nil, 0, err
	}

	// Row count and schema are critical: their failure aborts inference.
	rowCount, err := s.fetchRowCount(ctx, tableName, exec)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch row count for %s: %w", tableName, err)
	}
	rawCols, err := s.fetchSchema(ctx, tableName, exec)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch schema for %s: %w", tableName, err)
	}

	// Name validation, then semantic filtering. Only business-relevant
	// columns proceed to statistics.
	survivors := make([]rawColumn, 0, len(rawCols))
	semantics := make(map[string]models.SemanticType, len(rawCols))
	for _, col := range rawCols {
		if !IsValidColumnName(col.name) {
			s.logger.Debug("dropped column with unsafe name", zap.String("column", col.name))
			continue
		}
		semantic := MatchSemanticType(col.name)
		if semantic == models.SemanticNone || semantic == models.SemanticID {
			s.logger.Debug("dropped column without business semantics",
				zap.String("column", col.name), zap.String("semantic", string(semantic)))
			continue
		}
		semantics[col.name] = semantic
		survivors = append(survivors, col)
	}
	if len(survivors) == 0 {
		return []models.ColumnProfile{}, rowCount, nil
	}

	// One batched query each for cardinality and null rate. Missing
	// cardinality is passed to InferType as unknown (-1) rather than zero,
	// so a failed batch cannot flip numeric columns to categorical.
	cardinality, err := s.fetchCardinality(ctx, tableName, survivors, exec)
	if err != nil {
		s.logger.Warn("cardinality batch failed, classifying from raw types", zap.Error(err))
		cardinality = map[string]int64{}
	}
	nullRates, err := s.fetchNullRates(ctx, tableName, survivors, rowCount, exec)
	if err != nil {
		s.logger.Warn("null-rate batch failed, continuing without it", zap.Error(err))
		nullRates = map[string]float64{}
	}

	profiles := make([]models.ColumnProfile, 0, len(survivors))
	numericNames := make([]string, 0, len(survivors))
	for _, col := range survivors {
		card, known := cardinality[col.name]
		if !known {
			card = -1
		}
		basic := InferType(col.rawType, card, rowCount, col.name)
		profile := models.ColumnProfile{
			Name:         col.name,
			RawType:      col.rawType,
			BasicType:    basic,
			SemanticType: semantics[col.name],
			Cardinality:  cardinality[col.name],
			NullRate:     nullRates[col.name],
		}
		if basic == models.BasicTypeNumeric {
			numericNames = append(numericNames, col.name)
		}
		profiles = append(profiles, profile)
	}

	// One batched statistics query covering every numeric column.
	if len(numericNames) > 0 {
		stats, err := s.fetchNumericStats(ctx, tableName, numericNames, exec)
		if err != nil {
			s.logger.Warn("numeric statistics batch failed, profiles carry no stats", zap.Error(err))
		} else {
			for i := range profiles {
				if st, ok := stats[profiles[i].Name]; ok {
					profiles[i].Stats = st
				}
			}
		}
	}

	s.logger.Info("schema inference complete",
		zap.String("table", tableName),
		zap.Int("columns_scanned", len(rawCols)),
		zap.Int("columns_kept", len(profiles)),
		zap.Int("numeric_columns", len(numericNames)))
	return profiles, rowCount, nil
}

// InferType classifies a column into one of the four basic types. It is total
// and deterministic: every (rawType, cardinality, rowCount, name) input maps
// to exactly one type. A negative cardinality means "unknown" and leaves the
// rawType-driven classification untouched.
func InferType(rawType string, cardinality, rowCount int64, name string) models.BasicType {
	// Identifier-shaped names stored numerically (phone numbers, zip codes)
	// are text regardless of storage type.
	if idLikeNamePattern.MatchString(name) {
		return models.BasicTypeText
	}

	switch {
	case isDatetimeType(rawType):
		return models.BasicTypeDatetime
	case isNumericType(rawType):
		if cardinality >= 0 &&
			(cardinality <= categoricalCardinalityMax ||
				(rowCount > 0 && float64(cardinality)/float64(rowCount) < 0.05)) {
			return models.BasicTypeCategorical
		}
		return models.BasicTypeNumeric
	case isStringType(rawType):
		if cardinality >= 0 && rowCount > 0 && float64(cardinality)/float64(rowCount) > 0.9 {
			return models.BasicTypeText
		}
		return models.BasicTypeCategorical
	default:
		return models.BasicTypeText
	}
}

// IsValidColumnName rejects names that cannot be safely interpolated into
// query text: quote characters, control characters, or only whitespace.
func IsValidColumnName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	for _, r := range name {
		if r == '\'' || r == '"' || r == '`' {
			return false
		}
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SanitizeColumnName produces a safe result-column alias: quote characters
// stripped, whitespace runs collapsed to a single space, ends trimmed.
// Idempotent: SanitizeColumnName(SanitizeColumnName(s)) == SanitizeColumnName(s).
func SanitizeColumnName(name string) string {
	cleaned := strings.NewReplacer(`"`, "", "'", "", "`", "").Replace(name)
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// SortColumnsByImportance returns a new slice ordered by semantic priority,
// then by descending cardinality within equal priority. The input is not
// mutated.
func SortColumnsByImportance(profiles []models.ColumnProfile) []models.ColumnProfile {
	sorted := make([]models.ColumnProfile, len(profiles))
	copy(sorted, profiles)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := semanticPriority(sorted[i].SemanticType), semanticPriority(sorted[j].SemanticType)
		if pi != pj {
			return pi < pj
		}
		return sorted[i].Cardinality > sorted[j].Cardinality
	})
	return sorted
}

func (s *Inferencer) fetchRowCount(ctx context.Context, tableName string, exec datasource.QueryExecutor) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) AS row_count FROM %s`, datasource.QuoteIdentifier(tableName))
	result, err := exec.Execute(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(result.Rows) == 0 {
		return 0, fmt.Errorf("row count query returned no rows")
	}
	count, _ := datasource.Int64(result.Rows[0]["row_count"])
	return count, nil
}

func (s *Inferencer) fetchSchema(ctx context.Context, tableName string, exec datasource.QueryExecutor) ([]rawColumn, error) {
	query := fmt.Sprintf(
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = %s ORDER BY ordinal_position`,
		datasource.QuoteLiteral(tableName))
	result, err := exec.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	cols := make([]rawColumn, 0, len(result.Rows))
	for _, row := range result.Rows {
		cols = append(cols, rawColumn{
			name:    datasource.String(row["column_name"]),
			rawType: datasource.String(row["data_type"]),
		})
	}
	return cols, nil
}

// fetchCardinality computes distinct counts for every surviving column in a
// single batched query.
func (s *Inferencer) fetchCardinality(ctx context.Context, tableName string, cols []rawColumn, exec datasource.QueryExecutor) (map[string]int64, error) {
	exprs := make([]string, 0, len(cols))
	for _, col := range cols {
		alias := SanitizeColumnName(col.name) + "__cardinality"
		exprs = append(exprs, fmt.Sprintf("COUNT(DISTINCT %s) AS %s",
			datasource.QuoteIdentifier(col.name), datasource.QuoteIdentifier(alias)))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), datasource.QuoteIdentifier(tableName))
	result, err := exec.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return map[string]int64{}, nil
	}
	out := make(map[string]int64, len(cols))
	for _, col := range cols {
		alias := SanitizeColumnName(col.name) + "__cardinality"
		if v, ok := datasource.Int64(result.Rows[0][alias]); ok {
			out[col.name] = v
		}
	}
	return out, nil
}

// fetchNullRates computes per-column null rates in a single batched query.
func (s *Inferencer) fetchNullRates(ctx context.Context, tableName string, cols []rawColumn, rowCount int64, exec datasource.QueryExecutor) (map[string]float64, error) {
	if rowCount == 0 {
		return map[string]float64{}, nil
	}
	exprs := make([]string, 0, len(cols))
	for _, col := range cols {
		alias := SanitizeColumnName(col.name) + "__nulls"
		exprs = append(exprs, fmt.Sprintf("SUM(CASE WHEN %s IS NULL THEN 1 ELSE 0 END) AS %s",
			datasource.QuoteIdentifier(col.name), datasource.QuoteIdentifier(alias)))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), datasource.QuoteIdentifier(tableName))
	result, err := exec.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return map[string]float64{}, nil
	}
	out := make(map[string]float64, len(cols))
	for _, col := range cols {
		alias := SanitizeColumnName(col.name) + "__nulls"
		if nulls, ok := datasource.Int64(result.Rows[0][alias]); ok {
			out[col.name] = float64(nulls) / float64(rowCount)
		}
	}
	return out, nil
}

// statExprs maps stat suffixes to their SQL expression templates.
var statExprs = []struct {
	suffix string
	expr   string
}{
	{"min", "MIN(%s)"},
	{"max", "MAX(%s)"},
	{"mean", "AVG(%s)"},
	{"median", "MEDIAN(%s)"},
	{"stddev", "STDDEV_POP(%s)"},
	{"p50", "QUANTILE_CONT(%s, 0.50)"},
	{"p80", "QUANTILE_CONT(%s, 0.80)"},
	{"p99", "QUANTILE_CONT(%s, 0.99)"},
}

// fetchNumericStats computes the full statistics block for every numeric
// column in one batched query.
func (s *Inferencer) fetchNumericStats(ctx context.Context, tableName string, numericCols []string, exec datasource.QueryExecutor) (map[string]*models.NumericStats, error) {
	exprs := make([]string, 0, len(numericCols)*len(statExprs))
	for _, col := range numericCols {
		quoted := datasource.QuoteIdentifier(col)
		base := SanitizeColumnName(col)
		for _, st := range statExprs {
			alias := datasource.QuoteIdentifier(base + "__" + st.suffix)
			exprs = append(exprs, fmt.Sprintf(st.expr, quoted)+" AS "+alias)
		}
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), datasource.QuoteIdentifier(tableName))
	result, err := exec.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return map[string]*models.NumericStats{}, nil
	}
	row := result.Rows[0]

	out := make(map[string]*models.NumericStats, len(numericCols))
	for _, col := range numericCols {
		base := SanitizeColumnName(col)
		read := func(suffix string) float64 {
			v, _ := datasource.Float64(row[base+"__"+suffix])
			return v
		}
		out[col] = &models.NumericStats{
			Min:    read("min"),
			Max:    read("max"),
			Mean:   read("mean"),
			Median: read("median"),
			StdDev: read("stddev"),
			P50:    read("p50"),
			P80:    read("p80"),
			P99:    read("p99"),
		}
	}
	return out, nil
}

func isNumericType(rawType string) bool {
	t := strings.ToLower(rawType)
	for _, kw := range []string{"int", "double", "float", "decimal", "numeric", "real"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func isDatetimeType(rawType string) bool {
	t := strings.ToLower(rawType)
	return strings.Contains(t, "timestamp") || strings.Contains(t, "date") || strings.Contains(t, "time")
}

func isStringType(rawType string) bool {
	t := strings.ToLower(rawType)
	for _, kw := range []string{"char", "text", "string", "varchar"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
