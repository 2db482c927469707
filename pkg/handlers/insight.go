package handlers

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/apperrors"
	"github.com/datalens-hq/insight-engine/pkg/cache"
	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/insight"
	"github.com/datalens-hq/insight-engine/pkg/models"
)

// ConfigRequest asks for the inferred analysis configuration of a table.
type ConfigRequest struct {
	TableName string `json:"table_name"`
}

// DiagnoseRequest carries kernel output for digestion and diagnosis.
type DiagnoseRequest struct {
	Algorithm models.AlgorithmType           `json:"algorithm"`
	TableName string                         `json:"table_name"`
	Anomalies []models.AnomalyRecord         `json:"anomalies,omitempty"`
	Clusters  []models.CustomerClusterRecord `json:"clusters,omitempty"`
}

// InsightHandler exposes the analysis pipeline over HTTP.
type InsightHandler struct {
	orchestrator *insight.Orchestrator
	cache        *cache.ResultCache
	exec         datasource.QueryExecutor
	logger       *zap.Logger
}

// NewInsightHandler creates a new InsightHandler.
func NewInsightHandler(orchestrator *insight.Orchestrator, resultCache *cache.ResultCache, exec datasource.QueryExecutor, logger *zap.Logger) *InsightHandler {
	return &InsightHandler{
		orchestrator: orchestrator,
		cache:        resultCache,
		exec:         exec,
		logger:       logger,
	}
}

// RegisterRoutes registers the insight handler's routes on the given mux.
func (h *InsightHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/insight/config", h.Config)
	mux.HandleFunc("POST /api/insight/distributions", h.Distributions)
	mux.HandleFunc("POST /api/insight/diagnose", h.Diagnose)
	mux.HandleFunc("GET /api/cache/metadata", h.CacheMetadata)
	mux.HandleFunc("DELETE /api/cache", h.ClearCache)
}

// Config handles POST /api/insight/config requests.
// Infers the table schema and returns the analysis configuration, or
// 204 when the table has nothing worth analyzing.
func (h *InsightHandler) Config(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.TableName == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "table_name is required")
		return
	}

	cfg, err := h.orchestrator.BuildConfig(r.Context(), req.TableName, h.exec)
	if err != nil {
		h.writeInsightError(w, req.TableName, err)
		return
	}
	if cfg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := WriteJSON(w, http.StatusOK, cfg); err != nil {
		h.logger.Error("Failed to encode config response", zap.Error(err))
	}
}

// Distributions handles POST /api/insight/distributions requests.
// Builds the config for the table and returns binned histograms for its
// numeric columns and grouped counts for its categorical columns.
func (h *InsightHandler) Distributions(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.TableName == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "table_name is required")
		return
	}

	cfg, err := h.orchestrator.BuildConfig(r.Context(), req.TableName, h.exec)
	if err != nil {
		h.writeInsightError(w, req.TableName, err)
		return
	}
	if cfg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	distributions, err := h.orchestrator.Distributions(r.Context(), cfg, h.exec)
	if err != nil {
		h.writeInsightError(w, req.TableName, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"table_name":    req.TableName,
		"distributions": distributions,
	}); err != nil {
		h.logger.Error("Failed to encode distributions response", zap.Error(err))
	}
}

// Diagnose handles POST /api/insight/diagnose requests.
// Digests kernel output and returns the model's structured diagnosis.
func (h *InsightHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	var req DiagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.TableName == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "table_name is required")
		return
	}

	input := insight.AnalysisInput{
		TableName: req.TableName,
		Anomalies: req.Anomalies,
		Clusters:  req.Clusters,
	}

	diagnosis, err := h.orchestrator.GenerateInsight(r.Context(), req.Algorithm, input, h.exec)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnsupportedAlgorithm) {
			_ = ErrorResponse(w, http.StatusUnprocessableEntity, "unsupported_algorithm", err.Error())
			return
		}
		h.writeInsightError(w, req.TableName, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, diagnosis); err != nil {
		h.logger.Error("Failed to encode diagnosis response", zap.Error(err))
	}
}

// CacheMetadata handles GET /api/cache/metadata requests.
func (h *InsightHandler) CacheMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.cache.Metadata(r.Context())
	if err != nil {
		h.logger.Error("Failed to read cache metadata", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "cache_error", "failed to read cache metadata")
		return
	}

	if err := WriteJSON(w, http.StatusOK, meta); err != nil {
		h.logger.Error("Failed to encode cache metadata response", zap.Error(err))
	}
}

// ClearCache handles DELETE /api/cache requests.
func (h *InsightHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		h.logger.Error("Failed to clear cache", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "cache_error", "failed to clear cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InsightHandler) writeInsightError(w http.ResponseWriter, tableName string, err error) {
	h.logger.Error("Insight request failed",
		zap.String("table", tableName),
		zap.Error(err))

	if errors.Is(err, apperrors.ErrInjectionDetected) {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_identifier", "table or column name rejected")
		return
	}
	_ = ErrorResponse(w, http.StatusInternalServerError, "insight_error", "failed to analyze table")
}
