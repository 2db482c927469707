package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/cache"
	"github.com/datalens-hq/insight-engine/pkg/config"
	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/insight"
	"github.com/datalens-hq/insight-engine/pkg/llm"
	"github.com/datalens-hq/insight-engine/pkg/models"
	"github.com/datalens-hq/insight-engine/pkg/schema"
	"github.com/datalens-hq/insight-engine/pkg/segment"
	"github.com/datalens-hq/insight-engine/pkg/services"
	"github.com/datalens-hq/insight-engine/pkg/store"
)

// stubExecutor answers every query with scripted results keyed by substring.
type stubExecutor struct {
	results map[string]*datasource.QueryResult
}

func (e *stubExecutor) Execute(_ context.Context, query string) (*datasource.QueryResult, error) {
	for marker, result := range e.results {
		if strings.Contains(query, marker) {
			return result, nil
		}
	}
	return &datasource.QueryResult{Rows: []map[string]any{}}, nil
}

func (e *stubExecutor) Close() error { return nil }

func ordersExecutor() *stubExecutor {
	return &stubExecutor{results: map[string]*datasource.QueryResult{
		"information_schema.columns": {Rows: []map[string]any{
			{"column_name": "order_amount", "data_type": "DOUBLE"},
			{"column_name": "order_status", "data_type": "VARCHAR"},
		}},
		"__cardinality": {Rows: []map[string]any{
			{"order_amount__cardinality": int64(800), "order_status__cardinality": int64(4)},
		}},
		"__nulls": {Rows: []map[string]any{
			{"order_amount__nulls": int64(0), "order_status__nulls": int64(0)},
		}},
		"__min": {Rows: []map[string]any{{
			"order_amount__min": 1.0, "order_amount__max": 500.0,
			"order_amount__mean": 120.0, "order_amount__median": 100.0,
			"order_amount__stddev": 45.0,
			"order_amount__p50":    100.0, "order_amount__p80": 200.0, "order_amount__p99": 480.0,
		}}},
		"__q1": {Rows: []map[string]any{
			{"order_amount__q1": 50.0, "order_amount__q3": 200.0},
		}},
		"GROUP BY bin": {Rows: []map[string]any{{"bin": 0.0, "cnt": int64(1000)}}},
		"GROUP BY grp": {Rows: []map[string]any{{"grp": "paid", "cnt": int64(1000)}}},
		"row_count":    {Rows: []map[string]any{{"row_count": int64(1000)}}},
	}}
}

func newTestInsightHandler(t *testing.T, exec datasource.QueryExecutor) *InsightHandler {
	t.Helper()

	resultCache := cache.New(store.NewMemoryStore(), zap.NewNop())
	t.Cleanup(resultCache.Close)

	orchestrator := insight.NewOrchestrator(
		schema.NewInferencer(zap.NewNop()),
		insight.NewContextBuilder(zap.NewNop()),
		insight.NewAggregator(zap.NewNop()),
		segment.NewLabeler(zap.NewNop()),
		resultCache,
		llm.NewMockClient(),
		zap.NewNop(),
	)
	return NewInsightHandler(orchestrator, resultCache, exec, zap.NewNop())
}

func doRequest(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func insightMux(t *testing.T, exec datasource.QueryExecutor) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	newTestInsightHandler(t, exec).RegisterRoutes(mux)
	return mux
}

func TestHealthHandler(t *testing.T) {
	cfg := &config.Config{Version: "1.2.3", Env: "local"}
	mux := http.NewServeMux()
	NewHealthHandler(cfg, zap.NewNop()).RegisterRoutes(mux)

	rec := doRequest(mux, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = doRequest(mux, http.MethodGet, "/ping", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var ping PingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ping))
	assert.Equal(t, "ok", ping.Status)
	assert.Equal(t, "insight-engine", ping.Service)
	assert.Equal(t, "1.2.3", ping.Version)
	assert.Equal(t, "local", ping.Environment)
}

func TestInsightConfig_ReturnsConfig(t *testing.T) {
	mux := insightMux(t, ordersExecutor())

	rec := doRequest(mux, http.MethodPost, "/api/insight/config", `{"table_name": "orders"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg models.InsightConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "orders", cfg.TableName)
	assert.Equal(t, []string{"order_amount"}, cfg.NumericColumns)
	assert.Equal(t, []string{"order_status"}, cfg.StatusColumns)
}

func TestInsightConfig_InvalidBody(t *testing.T) {
	mux := insightMux(t, ordersExecutor())

	rec := doRequest(mux, http.MethodPost, "/api/insight/config", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestInsightConfig_MissingTableName(t *testing.T) {
	mux := insightMux(t, ordersExecutor())

	rec := doRequest(mux, http.MethodPost, "/api/insight/config", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "table_name is required")
}

func TestInsightConfig_InjectionRejected(t *testing.T) {
	mux := insightMux(t, ordersExecutor())

	rec := doRequest(mux, http.MethodPost, "/api/insight/config",
		`{"table_name": "orders; DROP TABLE users--"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_identifier")
}

func TestInsightConfig_NothingToAnalyze(t *testing.T) {
	exec := &stubExecutor{results: map[string]*datasource.QueryResult{
		"information_schema.columns": {Rows: []map[string]any{
			{"column_name": "notes", "data_type": "VARCHAR"},
		}},
		"row_count": {Rows: []map[string]any{{"row_count": int64(10)}}},
	}}
	mux := insightMux(t, exec)

	rec := doRequest(mux, http.MethodPost, "/api/insight/config", `{"table_name": "notes_only"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestInsightDistributions(t *testing.T) {
	mux := insightMux(t, ordersExecutor())

	rec := doRequest(mux, http.MethodPost, "/api/insight/distributions", `{"table_name": "orders"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TableName     string                 `json:"table_name"`
		Distributions []insight.Distribution `json:"distributions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "orders", resp.TableName)
	assert.Len(t, resp.Distributions, 2)
}

func TestInsightDiagnose_UnsupportedAlgorithm(t *testing.T) {
	mux := insightMux(t, ordersExecutor())

	rec := doRequest(mux, http.MethodPost, "/api/insight/diagnose",
		`{"table_name": "orders", "algorithm": "regression"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_algorithm")
}

func TestCacheEndpoints(t *testing.T) {
	mux := insightMux(t, ordersExecutor())

	// Populate the cache through a config request.
	rec := doRequest(mux, http.MethodPost, "/api/insight/config", `{"table_name": "orders"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(mux, http.MethodGet, "/api/cache/metadata", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var meta models.CacheMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, 1, meta.EntryCount)
	assert.Positive(t, meta.TotalSize)

	rec = doRequest(mux, http.MethodDelete, "/api/cache", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(mux, http.MethodGet, "/api/cache/metadata", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, 0, meta.EntryCount)
}

// fakeAnalysisService is a canned services.AnalysisService.
type fakeAnalysisService struct {
	report *insight.Report
	err    error
}

func (s *fakeAnalysisService) AnalyzeAnomalies(context.Context, string) (*insight.Report, error) {
	return s.report, s.err
}

func (s *fakeAnalysisService) AnalyzeClusters(context.Context, string) (*insight.Report, error) {
	return s.report, s.err
}

var _ services.AnalysisService = (*fakeAnalysisService)(nil)

func analysisMux(service services.AnalysisService) *http.ServeMux {
	mux := http.NewServeMux()
	NewAnalysisHandler(service, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestAnalyze_ReturnsReport(t *testing.T) {
	report := &insight.Report{
		ID:       "r-1",
		Title:    "Anomaly Analysis",
		Markdown: "## Diagnosis\n\nrefund spike",
	}
	mux := analysisMux(&fakeAnalysisService{report: report})

	rec := doRequest(mux, http.MethodPost, "/api/insight/analyze",
		`{"table_name": "orders", "algorithm": "anomaly"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "refund spike")
}

func TestAnalyze_UnsupportedAlgorithm(t *testing.T) {
	mux := analysisMux(&fakeAnalysisService{})

	rec := doRequest(mux, http.MethodPost, "/api/insight/analyze",
		`{"table_name": "orders", "algorithm": "regression"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyze_NoReport(t *testing.T) {
	mux := analysisMux(&fakeAnalysisService{})

	rec := doRequest(mux, http.MethodPost, "/api/insight/analyze",
		`{"table_name": "orders", "algorithm": "clustering"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAnalyze_ServiceError(t *testing.T) {
	mux := analysisMux(&fakeAnalysisService{err: errors.New("kernel crashed")})

	rec := doRequest(mux, http.MethodPost, "/api/insight/analyze",
		`{"table_name": "orders", "algorithm": "anomaly"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "analysis_error")
}
