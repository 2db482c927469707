package models

// BasicType is the statistical type inferred for a column.
type BasicType string

const (
	BasicTypeNumeric     BasicType = "numeric"
	BasicTypeCategorical BasicType = "categorical"
	BasicTypeDatetime    BasicType = "datetime"
	BasicTypeText        BasicType = "text"
)

// SemanticType is the business-meaning label inferred from a column's name.
// The zero value means no semantic match.
type SemanticType string

const (
	SemanticNone     SemanticType = ""
	SemanticAmount   SemanticType = "amount"
	SemanticTime     SemanticType = "time"
	SemanticStatus   SemanticType = "status"
	SemanticCategory SemanticType = "category"
	SemanticID       SemanticType = "id"
)

// NumericStats holds the batched statistics computed for numeric columns.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P80    float64 `json:"p80"`
	P99    float64 `json:"p99"`
}

// ColumnProfile is the result of schema inference for a single column.
// Profiles are immutable once built; binning, aggregation, and summary
// rendering all consume them read-only.
type ColumnProfile struct {
	Name         string        `json:"name"`
	RawType      string        `json:"raw_type"`
	BasicType    BasicType     `json:"basic_type"`
	SemanticType SemanticType  `json:"semantic_type,omitempty"`
	Cardinality  int64         `json:"cardinality"`
	NullRate     float64       `json:"null_rate"`
	Stats        *NumericStats `json:"stats,omitempty"` // set only for numeric columns
}

// IsNumeric reports whether the column carries numeric statistics.
func (p *ColumnProfile) IsNumeric() bool {
	return p.BasicType == BasicTypeNumeric
}

// InsightConfig aggregates everything the orchestrator decided about a table.
// A nil config is a valid orchestrator result meaning "no business-relevant
// columns" - callers skip insight generation rather than treating it as an
// error.
type InsightConfig struct {
	TableName          string          `json:"table_name"`
	Columns            []ColumnProfile `json:"columns"`
	RowCount           int64           `json:"row_count"`
	SamplingEnabled    bool            `json:"sampling_enabled"`
	SamplingRate       float64         `json:"sampling_rate"`
	NumericColumns     []string        `json:"numeric_columns"`
	CategoricalColumns []string        `json:"categorical_columns"`
	DatetimeColumns    []string        `json:"datetime_columns"`
	StatusColumns      []string        `json:"status_columns"`
	CategoryColumns    []string        `json:"category_columns"`
}
