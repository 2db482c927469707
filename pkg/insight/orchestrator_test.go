package insight

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/apperrors"
	"github.com/datalens-hq/insight-engine/pkg/cache"
	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/llm"
	"github.com/datalens-hq/insight-engine/pkg/models"
	"github.com/datalens-hq/insight-engine/pkg/schema"
	"github.com/datalens-hq/insight-engine/pkg/segment"
	"github.com/datalens-hq/insight-engine/pkg/store"
)

// routedExecutor dispatches queries to handlers by substring match, in order.
type routedExecutor struct {
	queries []string
	routes  []route
}

type route struct {
	marker string
	result *datasource.QueryResult
}

func (e *routedExecutor) Execute(_ context.Context, query string) (*datasource.QueryResult, error) {
	e.queries = append(e.queries, query)
	for _, r := range e.routes {
		if strings.Contains(query, r.marker) {
			return r.result, nil
		}
	}
	return &datasource.QueryResult{Rows: []map[string]any{}}, nil
}

func (e *routedExecutor) Close() error { return nil }

func oneRow(row map[string]any) *datasource.QueryResult {
	return &datasource.QueryResult{Rows: []map[string]any{row}}
}

// ordersRoutes scripts an orders table with an amount, a status, and a
// datetime column; rowCount controls the sampling decision.
func ordersRoutes(rowCount int64) []route {
	return []route{
		{"information_schema.columns", &datasource.QueryResult{Rows: []map[string]any{
			{"column_name": "order_amount", "data_type": "DOUBLE"},
			{"column_name": "order_status", "data_type": "VARCHAR"},
			{"column_name": "created_at", "data_type": "TIMESTAMP"},
		}}},
		{"__cardinality", oneRow(map[string]any{
			"order_amount__cardinality": int64(800),
			"order_status__cardinality": int64(4),
			"created_at__cardinality":   int64(950),
		})},
		{"__nulls", oneRow(map[string]any{
			"order_amount__nulls": int64(0),
			"order_status__nulls": int64(0),
			"created_at__nulls":   int64(0),
		})},
		{"__min", oneRow(map[string]any{
			"order_amount__min":    1.0,
			"order_amount__max":    500.0,
			"order_amount__mean":   120.0,
			"order_amount__median": 100.0,
			"order_amount__stddev": 45.0,
			"order_amount__p50":    100.0,
			"order_amount__p80":    200.0,
			"order_amount__p99":    480.0,
		})},
		{"__q1", oneRow(map[string]any{
			"order_amount__q1": 50.0,
			"order_amount__q3": 200.0,
		})},
		{"GROUP BY bin", &datasource.QueryResult{Rows: []map[string]any{
			{"bin": 0.0, "cnt": int64(400)},
			{"bin": 100.0, "cnt": int64(600)},
		}}},
		{"GROUP BY grp", &datasource.QueryResult{Rows: []map[string]any{
			{"grp": "paid", "cnt": int64(900)},
			{"grp": "refunded", "cnt": int64(100)},
		}}},
		{"row_count", oneRow(map[string]any{"row_count": rowCount})},
	}
}

func newTestOrchestrator(t *testing.T, chat llm.ChatClient, withCache bool) *Orchestrator {
	t.Helper()
	var rc *cache.ResultCache
	if withCache {
		rc = cache.New(store.NewMemoryStore(), zap.NewNop())
		t.Cleanup(rc.Close)
	}
	// A nil cache disables caching.
	return NewOrchestrator(
		schema.NewInferencer(zap.NewNop()),
		NewContextBuilder(zap.NewNop()),
		NewAggregator(zap.NewNop()),
		segment.NewLabeler(zap.NewNop()),
		rc,
		chat,
		zap.NewNop(),
	)
}

func TestBuildConfig_CategorizesColumns(t *testing.T) {
	exec := &routedExecutor{routes: ordersRoutes(1000)}
	o := newTestOrchestrator(t, llm.NewMockClient(), false)

	cfg, err := o.BuildConfig(context.Background(), "orders", exec)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "orders", cfg.TableName)
	assert.Equal(t, int64(1000), cfg.RowCount)
	assert.False(t, cfg.SamplingEnabled)
	assert.Equal(t, []string{"order_amount"}, cfg.NumericColumns)
	assert.Equal(t, []string{"order_status"}, cfg.CategoricalColumns)
	assert.Equal(t, []string{"created_at"}, cfg.DatetimeColumns)
	assert.Equal(t, []string{"order_status"}, cfg.StatusColumns)
	assert.Empty(t, cfg.CategoryColumns)

	// Importance sorting puts the status column first.
	require.NotEmpty(t, cfg.Columns)
	assert.Equal(t, "order_status", cfg.Columns[0].Name)
}

func TestBuildConfig_CountsRowsOnce(t *testing.T) {
	exec := &routedExecutor{routes: ordersRoutes(1000)}
	o := newTestOrchestrator(t, llm.NewMockClient(), false)

	cfg, err := o.BuildConfig(context.Background(), "orders", exec)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, int64(1000), cfg.RowCount)

	countQueries := 0
	for _, q := range exec.queries {
		if strings.Contains(q, "COUNT(*) AS row_count") {
			countQueries++
		}
	}
	assert.Equal(t, 1, countQueries, "the row count from inference is reused")
}

func TestBuildConfig_SamplingEnabledForLargeTables(t *testing.T) {
	exec := &routedExecutor{routes: ordersRoutes(50000)}
	o := newTestOrchestrator(t, llm.NewMockClient(), false)

	cfg, err := o.BuildConfig(context.Background(), "orders", exec)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.SamplingEnabled)
	assert.Equal(t, 0.75, cfg.SamplingRate)
}

func TestBuildConfig_NoBusinessColumnsReturnsNil(t *testing.T) {
	exec := &routedExecutor{routes: []route{
		{"COUNT(*)", oneRow(map[string]any{"row_count": int64(100)})},
		{"information_schema.columns", &datasource.QueryResult{Rows: []map[string]any{
			{"column_name": "created_at", "data_type": "TIMESTAMP"},
			{"column_name": "notes", "data_type": "VARCHAR"},
		}}},
	}}
	o := newTestOrchestrator(t, llm.NewMockClient(), false)

	cfg, err := o.BuildConfig(context.Background(), "events", exec)
	require.NoError(t, err)
	assert.Nil(t, cfg, "tables without amount, status, or category columns produce no config")
}

func TestBuildConfig_EmptySchemaReturnsNil(t *testing.T) {
	exec := &routedExecutor{routes: []route{
		{"COUNT(*)", oneRow(map[string]any{"row_count": int64(0)})},
		{"information_schema.columns", &datasource.QueryResult{Rows: []map[string]any{}}},
	}}
	o := newTestOrchestrator(t, llm.NewMockClient(), false)

	cfg, err := o.BuildConfig(context.Background(), "empty_table", exec)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestBuildConfig_SecondCallServedFromCache(t *testing.T) {
	exec := &routedExecutor{routes: ordersRoutes(1000)}
	o := newTestOrchestrator(t, llm.NewMockClient(), true)

	first, err := o.BuildConfig(context.Background(), "orders", exec)
	require.NoError(t, err)
	require.NotNil(t, first)
	queriesAfterFirst := len(exec.queries)

	second, err := o.BuildConfig(context.Background(), "orders", exec)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, queriesAfterFirst, len(exec.queries), "cached config must not re-query")
	assert.Equal(t, first.NumericColumns, second.NumericColumns)
}

func TestDistributions_NumericAndCategorical(t *testing.T) {
	exec := &routedExecutor{routes: ordersRoutes(1000)}
	o := newTestOrchestrator(t, llm.NewMockClient(), false)

	cfg, err := o.BuildConfig(context.Background(), "orders", exec)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	dists, err := o.Distributions(context.Background(), cfg, exec)
	require.NoError(t, err)
	require.Len(t, dists, 2)

	byColumn := map[string]Distribution{}
	for _, d := range dists {
		byColumn[d.Column] = d
	}

	amount := byColumn["order_amount"]
	assert.Equal(t, models.BasicTypeNumeric, amount.Kind)
	assert.NotEmpty(t, amount.Strategy)
	assert.Contains(t, amount.Query, "GROUP BY bin")
	assert.Len(t, amount.Rows, 2)

	status := byColumn["order_status"]
	assert.Equal(t, models.BasicTypeCategorical, status.Kind)
	assert.Contains(t, status.Query, "ORDER BY cnt DESC LIMIT 50")
	assert.NotContains(t, status.Query, "USING SAMPLE")
}

func TestDistributions_SampleClauseOnLargeTables(t *testing.T) {
	exec := &routedExecutor{routes: ordersRoutes(50000)}
	o := newTestOrchestrator(t, llm.NewMockClient(), false)

	cfg, err := o.BuildConfig(context.Background(), "orders", exec)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	dists, err := o.Distributions(context.Background(), cfg, exec)
	require.NoError(t, err)
	for _, d := range dists {
		assert.Contains(t, d.Query, "USING SAMPLE 75%")
	}
}

func TestGenerateInsight_HappyPath(t *testing.T) {
	exec := &routedExecutor{routes: ordersRoutes(1000)}
	mock := llm.NewMockClient()
	mock.ChatCompletionFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return `{"diagnosis":"Anomalies cluster around refunds.",` +
			`"recommendations":[{"action":"Audit refunds","priority":"high","reason":"All outliers are refunds."}],` +
			`"confidence":0.9}`, nil
	}
	o := newTestOrchestrator(t, mock, false)

	input := AnalysisInput{
		TableName: "orders",
		Anomalies: []models.AnomalyRecord{anomaly("r1", 0.9, 400)},
	}

	d, err := o.GenerateInsight(context.Background(), models.AlgorithmAnomaly, input, exec)
	require.NoError(t, err)
	assert.Equal(t, "Anomalies cluster around refunds.", d.Diagnosis)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	assert.Equal(t, 1, mock.ChatCompletionCalls)
}

func TestGenerateInsight_LLMFailureFallsBack(t *testing.T) {
	exec := &routedExecutor{routes: ordersRoutes(1000)}
	mock := llm.NewMockClient()
	mock.ChatCompletionFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "", errors.New("invalid api key")
	}
	o := newTestOrchestrator(t, mock, false)

	input := AnalysisInput{
		TableName: "orders",
		Anomalies: []models.AnomalyRecord{anomaly("r1", 0.9, 400)},
	}

	d, err := o.GenerateInsight(context.Background(), models.AlgorithmAnomaly, input, exec)
	require.NoError(t, err, "LLM failure degrades to a fallback diagnosis, not an error")
	assert.InDelta(t, 0.2, d.Confidence, 1e-9)
	assert.NotEmpty(t, d.Recommendations)
}

func TestGenerateInsight_UnsupportedAlgorithm(t *testing.T) {
	exec := &routedExecutor{routes: ordersRoutes(1000)}
	o := newTestOrchestrator(t, llm.NewMockClient(), false)

	_, err := o.GenerateInsight(context.Background(), models.AlgorithmRegression, AnalysisInput{TableName: "orders"}, exec)
	require.ErrorIs(t, err, apperrors.ErrUnsupportedAlgorithm)
}
