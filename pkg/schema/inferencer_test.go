package schema

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/models"
)

// scriptedExecutor dispatches queries to canned results by substring match.
type scriptedExecutor struct {
	queries []string
	fail    map[string]bool
	respond func(query string) *datasource.QueryResult
}

func (e *scriptedExecutor) Execute(_ context.Context, query string) (*datasource.QueryResult, error) {
	e.queries = append(e.queries, query)
	for marker := range e.fail {
		if strings.Contains(query, marker) {
			return nil, assert.AnError
		}
	}
	return e.respond(query), nil
}

func (e *scriptedExecutor) Close() error { return nil }

func ordersExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		fail: map[string]bool{},
		respond: func(query string) *datasource.QueryResult {
			switch {
			case strings.Contains(query, "COUNT(*)"):
				return &datasource.QueryResult{
					Columns: []string{"row_count"},
					Rows:    []map[string]any{{"row_count": int64(1000)}},
				}
			case strings.Contains(query, "information_schema.columns"):
				return &datasource.QueryResult{
					Columns: []string{"column_name", "data_type"},
					Rows: []map[string]any{
						{"column_name": "order_amount", "data_type": "DOUBLE"},
						{"column_name": "order_status", "data_type": "VARCHAR"},
						{"column_name": "user_id", "data_type": "BIGINT"},
						{"column_name": "created_at", "data_type": "TIMESTAMP"},
						{"column_name": "notes", "data_type": "VARCHAR"},
					},
				}
			case strings.Contains(query, "__cardinality"):
				return &datasource.QueryResult{Rows: []map[string]any{{
					"order_amount__cardinality": int64(800),
					"order_status__cardinality": int64(4),
					"created_at__cardinality":   int64(950),
				}}}
			case strings.Contains(query, "__nulls"):
				return &datasource.QueryResult{Rows: []map[string]any{{
					"order_amount__nulls": int64(10),
					"order_status__nulls": int64(0),
					"created_at__nulls":   int64(50),
				}}}
			case strings.Contains(query, "__min"):
				return &datasource.QueryResult{Rows: []map[string]any{{
					"order_amount__min":    1.0,
					"order_amount__max":    500.0,
					"order_amount__mean":   120.0,
					"order_amount__median": 100.0,
					"order_amount__stddev": 45.0,
					"order_amount__p50":    100.0,
					"order_amount__p80":    200.0,
					"order_amount__p99":    480.0,
				}}}
			default:
				return &datasource.QueryResult{Rows: []map[string]any{}}
			}
		},
	}
}

func TestInferColumns_DropsIDAndUnmatchedColumns(t *testing.T) {
	exec := ordersExecutor()
	inf := NewInferencer(zap.NewNop())

	profiles, rowCount, err := inf.InferColumns(context.Background(), "orders", exec)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rowCount)

	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	// user_id (id semantic) and notes (no semantic) must not survive.
	assert.ElementsMatch(t, []string{"order_amount", "order_status", "created_at"}, names)
}

func TestInferColumns_ClassifiesAndAttachesStats(t *testing.T) {
	exec := ordersExecutor()
	inf := NewInferencer(zap.NewNop())

	profiles, _, err := inf.InferColumns(context.Background(), "orders", exec)
	require.NoError(t, err)

	byName := map[string]models.ColumnProfile{}
	for _, p := range profiles {
		byName[p.Name] = p
	}

	amount := byName["order_amount"]
	assert.Equal(t, models.BasicTypeNumeric, amount.BasicType)
	assert.Equal(t, models.SemanticAmount, amount.SemanticType)
	assert.InDelta(t, 0.01, amount.NullRate, 1e-9)
	require.NotNil(t, amount.Stats)
	assert.Equal(t, 500.0, amount.Stats.Max)
	assert.Equal(t, 100.0, amount.Stats.Median)

	status := byName["order_status"]
	assert.Equal(t, models.BasicTypeCategorical, status.BasicType)
	assert.Equal(t, models.SemanticStatus, status.SemanticType)
	assert.Nil(t, status.Stats)

	created := byName["created_at"]
	assert.Equal(t, models.BasicTypeDatetime, created.BasicType)
	assert.Equal(t, models.SemanticTime, created.SemanticType)
}

func TestInferColumns_StatsFailureDegrades(t *testing.T) {
	exec := ordersExecutor()
	exec.fail["__cardinality"] = true
	exec.fail["__nulls"] = true
	exec.fail["__min"] = true
	inf := NewInferencer(zap.NewNop())

	profiles, _, err := inf.InferColumns(context.Background(), "orders", exec)
	require.NoError(t, err)
	require.NotEmpty(t, profiles)

	byName := map[string]models.ColumnProfile{}
	for _, p := range profiles {
		assert.Zero(t, p.Cardinality)
		assert.Zero(t, p.NullRate)
		assert.Nil(t, p.Stats)
		byName[p.Name] = p
	}

	// Unknown cardinality must not flip raw-type classifications: the
	// numeric column stays numeric instead of falling into the low
	// cardinality categorical bucket.
	assert.Equal(t, models.BasicTypeNumeric, byName["order_amount"].BasicType)
	assert.Equal(t, models.BasicTypeCategorical, byName["order_status"].BasicType)
}

func TestInferColumns_RowCountFailureIsCritical(t *testing.T) {
	exec := ordersExecutor()
	exec.fail["COUNT(*)"] = true
	inf := NewInferencer(zap.NewNop())

	_, _, err := inf.InferColumns(context.Background(), "orders", exec)
	require.Error(t, err)
}

func TestInferColumns_RejectsInjectionInTableName(t *testing.T) {
	exec := ordersExecutor()
	inf := NewInferencer(zap.NewNop())

	_, _, err := inf.InferColumns(context.Background(), "orders; DROP TABLE users--", exec)
	require.Error(t, err)
	assert.Empty(t, exec.queries)
}

func TestInferType(t *testing.T) {
	tests := []struct {
		name        string
		rawType     string
		cardinality int64
		rowCount    int64
		column      string
		want        models.BasicType
	}{
		{"numeric high cardinality", "DOUBLE", 900, 1000, "order_amount", models.BasicTypeNumeric},
		{"numeric low cardinality", "INTEGER", 5, 1000, "discount_amount", models.BasicTypeCategorical},
		{"numeric low ratio", "BIGINT", 30, 100000, "sales_total", models.BasicTypeCategorical},
		{"datetime", "TIMESTAMP WITH TIME ZONE", 0, 0, "created_at", models.BasicTypeDatetime},
		{"string near-unique", "VARCHAR", 950, 1000, "status_note", models.BasicTypeText},
		{"string repeated", "VARCHAR", 4, 1000, "order_status", models.BasicTypeCategorical},
		{"phone stored numerically", "BIGINT", 990, 1000, "phone", models.BasicTypeText},
		{"zip stored numerically", "INTEGER", 900, 1000, "zip_code", models.BasicTypeText},
		{"unknown raw type", "BLOB", 0, 0, "payload_value", models.BasicTypeText},
		{"zero row count string", "VARCHAR", 0, 0, "channel", models.BasicTypeCategorical},
		{"numeric unknown cardinality", "DOUBLE", -1, 1000, "order_amount", models.BasicTypeNumeric},
		{"string unknown cardinality", "VARCHAR", -1, 1000, "status_note", models.BasicTypeCategorical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferType(tt.rawType, tt.cardinality, tt.rowCount, tt.column)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchSemanticType_PriorityOrder(t *testing.T) {
	// "payment_status" matches both amount (payment) and status patterns;
	// status has higher priority.
	assert.Equal(t, models.SemanticStatus, MatchSemanticType("payment_status"))

	// "channel_amount" matches both category (channel) and amount patterns;
	// category wins.
	assert.Equal(t, models.SemanticCategory, MatchSemanticType("channel_amount"))

	assert.Equal(t, models.SemanticAmount, MatchSemanticType("total_revenue"))
	assert.Equal(t, models.SemanticTime, MatchSemanticType("updated_at"))
	assert.Equal(t, models.SemanticID, MatchSemanticType("order_no"))
	assert.Equal(t, models.SemanticNone, MatchSemanticType("description"))
}

func TestMatchSemanticType_Chinese(t *testing.T) {
	assert.Equal(t, models.SemanticStatus, MatchSemanticType("订单状态"))
	assert.Equal(t, models.SemanticCategory, MatchSemanticType("商品类型"))
	assert.Equal(t, models.SemanticAmount, MatchSemanticType("销售额"))
	assert.Equal(t, models.SemanticTime, MatchSemanticType("创建时间"))
	assert.Equal(t, models.SemanticID, MatchSemanticType("订单编号"))
}

func TestIsValidColumnName(t *testing.T) {
	assert.True(t, IsValidColumnName("order_amount"))
	assert.True(t, IsValidColumnName("销售额"))
	assert.False(t, IsValidColumnName(""))
	assert.False(t, IsValidColumnName("   "))
	assert.False(t, IsValidColumnName(`col"umn`))
	assert.False(t, IsValidColumnName("col'umn"))
	assert.False(t, IsValidColumnName("col`umn"))
	assert.False(t, IsValidColumnName("col\numn"))
}

func TestSanitizeColumnName_Idempotent(t *testing.T) {
	inputs := []string{
		`  order   "amount"  `,
		"plain",
		"tab\tseparated name",
		`'quoted'`,
	}
	for _, in := range inputs {
		once := SanitizeColumnName(in)
		assert.Equal(t, once, SanitizeColumnName(once), "input %q", in)
	}

	assert.Equal(t, "order amount", SanitizeColumnName(`  order   "amount"  `))
}

func TestSortColumnsByImportance(t *testing.T) {
	input := []models.ColumnProfile{
		{Name: "created_at", SemanticType: models.SemanticTime, Cardinality: 100},
		{Name: "order_amount", SemanticType: models.SemanticAmount, Cardinality: 500},
		{Name: "order_status", SemanticType: models.SemanticStatus, Cardinality: 4},
		{Name: "channel", SemanticType: models.SemanticCategory, Cardinality: 3},
		{Name: "region", SemanticType: models.SemanticCategory, Cardinality: 30},
	}
	original := make([]models.ColumnProfile, len(input))
	copy(original, input)

	sorted := SortColumnsByImportance(input)

	var names []string
	for _, p := range sorted {
		names = append(names, p.Name)
	}
	// status > category (by cardinality desc) > amount > time
	assert.Equal(t, []string{"order_status", "region", "channel", "order_amount", "created_at"}, names)

	// Input order must be untouched.
	assert.Equal(t, original, input)
}
