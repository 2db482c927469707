package services

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/insight"
	"github.com/datalens-hq/insight-engine/pkg/kernel"
	"github.com/datalens-hq/insight-engine/pkg/models"
)

const (
	// defaultContamination is the expected anomaly share handed to the kernel.
	defaultContamination = 0.05
	// defaultClusterCount is the k handed to the clustering kernel.
	defaultClusterCount = 4
	// maxKernelRows bounds how many rows are shipped into the kernel.
	maxKernelRows = 100000
)

// AnalysisService runs the full pipeline: schema inference, kernel
// execution, digestion, diagnosis, and report assembly.
type AnalysisService interface {
	// AnalyzeAnomalies detects and diagnoses outliers in the table.
	// Returns (nil, nil) when the table has nothing worth analyzing.
	AnalyzeAnomalies(ctx context.Context, tableName string) (*insight.Report, error)

	// AnalyzeClusters segments customers in the table and diagnoses
	// the resulting clusters. Returns (nil, nil) when the table has
	// nothing worth analyzing.
	AnalyzeClusters(ctx context.Context, tableName string) (*insight.Report, error)
}

type analysisService struct {
	orchestrator *insight.Orchestrator
	kernel       kernel.AnalysisKernel
	exec         datasource.QueryExecutor
	logger       *zap.Logger
}

// NewAnalysisService creates a new analysis service.
func NewAnalysisService(
	orchestrator *insight.Orchestrator,
	analysisKernel kernel.AnalysisKernel,
	exec datasource.QueryExecutor,
	logger *zap.Logger,
) AnalysisService {
	return &analysisService{
		orchestrator: orchestrator,
		kernel:       analysisKernel,
		exec:         exec,
		logger:       logger.Named("analysis-service"),
	}
}

func (s *analysisService) AnalyzeAnomalies(ctx context.Context, tableName string) (*insight.Report, error) {
	cfg, err := s.orchestrator.BuildConfig(ctx, tableName, s.exec)
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis config: %w", err)
	}
	if cfg == nil {
		return nil, nil
	}
	if len(cfg.NumericColumns) == 0 {
		s.logger.Info("no numeric columns for anomaly detection", zap.String("table", tableName))
		return nil, nil
	}

	rows, err := s.fetchFeatureRows(ctx, cfg, cfg.NumericColumns)
	if err != nil {
		return nil, err
	}

	anomalies, err := s.kernel.DetectAnomalies(ctx, kernel.AnomalyInput{
		FeatureColumns: cfg.NumericColumns,
		Rows:           rows,
		Contamination:  defaultContamination,
	})
	if err != nil {
		return nil, fmt.Errorf("anomaly detection failed: %w", err)
	}

	diagnosis, err := s.orchestrator.GenerateInsight(ctx, models.AlgorithmAnomaly, insight.AnalysisInput{
		TableName: tableName,
		Anomalies: anomalies,
	}, s.exec)
	if err != nil {
		return nil, err
	}

	return insight.BuildReport(
		fmt.Sprintf("Anomaly analysis: %s", tableName),
		diagnosis,
		anomalyCSVColumns(cfg.NumericColumns),
		anomalyCSVRows(cfg.NumericColumns, anomalies),
	)
}

func (s *analysisService) AnalyzeClusters(ctx context.Context, tableName string) (*insight.Report, error) {
	cfg, err := s.orchestrator.BuildConfig(ctx, tableName, s.exec)
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis config: %w", err)
	}
	if cfg == nil {
		return nil, nil
	}
	if len(cfg.NumericColumns) == 0 {
		s.logger.Info("no numeric columns for clustering", zap.String("table", tableName))
		return nil, nil
	}

	rows, err := s.fetchFeatureRows(ctx, cfg, cfg.NumericColumns)
	if err != nil {
		return nil, err
	}

	clusters, err := s.kernel.ClusterCustomers(ctx, kernel.ClusteringInput{
		Customers: rows,
		K:         defaultClusterCount,
	})
	if err != nil {
		return nil, fmt.Errorf("clustering failed: %w", err)
	}

	diagnosis, err := s.orchestrator.GenerateInsight(ctx, models.AlgorithmClustering, insight.AnalysisInput{
		TableName: tableName,
		Clusters:  clusters,
	}, s.exec)
	if err != nil {
		return nil, err
	}

	return insight.BuildReport(
		fmt.Sprintf("Customer segmentation: %s", tableName),
		diagnosis,
		clusterCSVColumns(),
		clusterCSVRows(clusters),
	)
}

// fetchFeatureRows pulls the kernel's feature matrix from the datasource.
// Sampling mirrors the configuration decided during schema inference.
func (s *analysisService) fetchFeatureRows(ctx context.Context, cfg *models.InsightConfig, columns []string) ([]map[string]float64, error) {
	selectList := ""
	for i, col := range columns {
		if i > 0 {
			selectList += ", "
		}
		selectList += datasource.QuoteIdentifier(col)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", selectList, datasource.QuoteIdentifier(cfg.TableName))
	if cfg.SamplingEnabled {
		query += fmt.Sprintf(" USING SAMPLE %d%%", int(cfg.SamplingRate*100))
	}
	query += fmt.Sprintf(" LIMIT %d", maxKernelRows)

	result, err := s.exec.Execute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feature rows: %w", err)
	}

	rows := make([]map[string]float64, 0, len(result.Rows))
	for _, raw := range result.Rows {
		row := make(map[string]float64, len(columns))
		complete := true
		for _, col := range columns {
			v, ok := datasource.Float64(raw[col])
			if !ok {
				complete = false
				break
			}
			row[col] = v
		}
		// Rows with NULL features would skew the kernel; drop them.
		if complete {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func anomalyCSVColumns(features []string) []string {
	cols := []string{"id", "score", "is_abnormal"}
	return append(cols, features...)
}

func anomalyCSVRows(features []string, records []models.AnomalyRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := []string{
			rec.ID,
			strconv.FormatFloat(rec.Score, 'f', -1, 64),
			strconv.FormatBool(rec.IsAbnormal),
		}
		for _, f := range features {
			row = append(row, strconv.FormatFloat(rec.Features[f], 'f', -1, 64))
		}
		rows = append(rows, row)
	}
	return rows
}

func clusterCSVColumns() []string {
	return []string{"customer_id", "cluster_id", "recency", "frequency", "monetary"}
}

func clusterCSVRows(records []models.CustomerClusterRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.CustomerID,
			strconv.Itoa(rec.ClusterID),
			strconv.FormatFloat(rec.Recency, 'f', -1, 64),
			strconv.FormatFloat(rec.Frequency, 'f', -1, 64),
			strconv.FormatFloat(rec.Monetary, 'f', -1, 64),
		})
	}
	return rows
}
