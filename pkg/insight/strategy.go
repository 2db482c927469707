package insight

import (
	"context"
	"fmt"

	"github.com/datalens-hq/insight-engine/pkg/apperrors"
	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/models"
	"github.com/datalens-hq/insight-engine/pkg/prompts"
	"github.com/datalens-hq/insight-engine/pkg/segment"
)

// AnalysisInput carries the externally computed algorithm output into the
// aggregation pipeline. Exactly one of Anomalies/Clusters is populated,
// matching the algorithm type.
type AnalysisInput struct {
	TableName string
	Anomalies []models.AnomalyRecord
	Clusters  []models.CustomerClusterRecord
}

// ActionStrategy is the polymorphic three-stage pipeline selected by
// algorithm type: build context, aggregate data, build prompt.
type ActionStrategy interface {
	BuildContext(ctx context.Context, tableName string, exec datasource.QueryExecutor) (*models.InsightContext, error)
	AggregateData(ctx context.Context, input AnalysisInput, exec datasource.QueryExecutor) (*models.AggregatedFeatures, error)
	BuildPrompt(insightCtx *models.InsightContext, agg *models.AggregatedFeatures) (prompt string, systemMessage string)
}

// NewStrategy returns the strategy for the given algorithm type. Types
// without an implementation (regression) fail loudly: this is a developer
// error, not a recoverable runtime condition.
func NewStrategy(algorithm models.AlgorithmType, builder *ContextBuilder, aggregator *Aggregator, labeler *segment.Labeler) (ActionStrategy, error) {
	switch algorithm {
	case models.AlgorithmAnomaly:
		return &anomalyStrategy{builder: builder, aggregator: aggregator}, nil
	case models.AlgorithmClustering:
		return &clusteringStrategy{builder: builder, aggregator: aggregator, labeler: labeler}, nil
	default:
		return nil, fmt.Errorf("%w: no strategy implemented for algorithm type %q", apperrors.ErrUnsupportedAlgorithm, algorithm)
	}
}

type anomalyStrategy struct {
	builder    *ContextBuilder
	aggregator *Aggregator
}

func (s *anomalyStrategy) BuildContext(ctx context.Context, tableName string, exec datasource.QueryExecutor) (*models.InsightContext, error) {
	return s.builder.BuildInsightContext(ctx, models.AlgorithmAnomaly, tableName, exec)
}

func (s *anomalyStrategy) AggregateData(ctx context.Context, input AnalysisInput, exec datasource.QueryExecutor) (*models.AggregatedFeatures, error) {
	agg, err := s.aggregator.AggregateAnomalies(ctx, input.Anomalies, input.TableName, exec)
	if err != nil {
		return nil, err
	}
	return &models.AggregatedFeatures{Anomaly: agg}, nil
}

func (s *anomalyStrategy) BuildPrompt(insightCtx *models.InsightContext, agg *models.AggregatedFeatures) (string, string) {
	return prompts.BuildAnomalyPrompt(insightCtx, agg.Anomaly), prompts.BuildAnomalySystemMessage()
}

type clusteringStrategy struct {
	builder    *ContextBuilder
	aggregator *Aggregator
	labeler    *segment.Labeler
}

func (s *clusteringStrategy) BuildContext(ctx context.Context, tableName string, exec datasource.QueryExecutor) (*models.InsightContext, error) {
	return s.builder.BuildInsightContext(ctx, models.AlgorithmClustering, tableName, exec)
}

func (s *clusteringStrategy) AggregateData(ctx context.Context, input AnalysisInput, exec datasource.QueryExecutor) (*models.AggregatedFeatures, error) {
	agg := s.aggregator.AggregateClusters(input.Clusters, s.labeler)
	return &models.AggregatedFeatures{Clustering: agg}, nil
}

func (s *clusteringStrategy) BuildPrompt(insightCtx *models.InsightContext, agg *models.AggregatedFeatures) (string, string) {
	return prompts.BuildClusteringPrompt(insightCtx, agg.Clustering), prompts.BuildClusteringSystemMessage()
}
