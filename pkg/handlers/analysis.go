package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/insight"
	"github.com/datalens-hq/insight-engine/pkg/models"
	"github.com/datalens-hq/insight-engine/pkg/services"
)

// AnalyzeRequest triggers a full kernel-backed analysis of a table.
type AnalyzeRequest struct {
	Algorithm models.AlgorithmType `json:"algorithm"`
	TableName string               `json:"table_name"`
}

// AnalysisHandler exposes the kernel-backed analysis pipeline. It is only
// registered when a compiled analysis kernel is configured.
type AnalysisHandler struct {
	service services.AnalysisService
	logger  *zap.Logger
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(service services.AnalysisService, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{service: service, logger: logger}
}

// RegisterRoutes registers the analysis handler's routes on the given mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/insight/analyze", h.Analyze)
}

// Analyze handles POST /api/insight/analyze requests.
// Runs schema inference, the analysis kernel, and diagnosis end to end,
// returning the assembled report.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.TableName == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "table_name is required")
		return
	}

	var (
		report *insight.Report
		err    error
	)
	switch req.Algorithm {
	case models.AlgorithmAnomaly:
		report, err = h.service.AnalyzeAnomalies(r.Context(), req.TableName)
	case models.AlgorithmClustering:
		report, err = h.service.AnalyzeClusters(r.Context(), req.TableName)
	default:
		_ = ErrorResponse(w, http.StatusUnprocessableEntity, "unsupported_algorithm",
			"algorithm must be \"anomaly\" or \"clustering\"")
		return
	}

	if err != nil {
		h.logger.Error("Analysis failed",
			zap.String("table", req.TableName),
			zap.String("algorithm", string(req.Algorithm)),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "analysis_error", "failed to analyze table")
		return
	}
	if report == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to encode analysis response", zap.Error(err))
	}
}
