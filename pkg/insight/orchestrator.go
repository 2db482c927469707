package insight

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/binning"
	"github.com/datalens-hq/insight-engine/pkg/cache"
	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/llm"
	"github.com/datalens-hq/insight-engine/pkg/models"
	"github.com/datalens-hq/insight-engine/pkg/retry"
	"github.com/datalens-hq/insight-engine/pkg/schema"
	"github.com/datalens-hq/insight-engine/pkg/segment"
)

const (
	// samplingRowThreshold is the row count above which distribution queries
	// run over a sample instead of the full table.
	samplingRowThreshold = 10000

	// samplingRate is the fixed sample fraction once sampling kicks in.
	samplingRate = 0.75

	// categoricalGroupLimit bounds the number of groups a categorical
	// distribution returns.
	categoricalGroupLimit = 50
)

// Orchestrator composes schema inference into a full insight configuration
// and drives the strategy pipeline. It is the entry point callers use.
type Orchestrator struct {
	inferencer *schema.Inferencer
	builder    *ContextBuilder
	aggregator *Aggregator
	labeler    *segment.Labeler
	cache      *cache.ResultCache
	chat       llm.ChatClient
	logger     *zap.Logger
}

// NewOrchestrator wires the orchestrator. cache may be nil, in which case
// every derived result is recomputed.
func NewOrchestrator(
	inferencer *schema.Inferencer,
	builder *ContextBuilder,
	aggregator *Aggregator,
	labeler *segment.Labeler,
	resultCache *cache.ResultCache,
	chat llm.ChatClient,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		inferencer: inferencer,
		builder:    builder,
		aggregator: aggregator,
		labeler:    labeler,
		cache:      resultCache,
		chat:       chat,
		logger:     logger.Named("insight-orchestrator"),
	}
}

// BuildConfig runs schema inference and categorizes the surviving columns.
// It returns (nil, nil) when no amount, status, or category column exists:
// a deliberate sentinel telling the caller to skip insight generation.
func (o *Orchestrator) BuildConfig(ctx context.Context, tableName string, exec datasource.QueryExecutor) (*models.InsightConfig, error) {
	cacheKey := "config:" + tableName
	var cached models.InsightConfig
	if hit := o.cacheGet(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	profiles, rowCount, err := o.inferencer.InferColumns(ctx, tableName, exec)
	if err != nil {
		return nil, fmt.Errorf("infer columns for %s: %w", tableName, err)
	}
	if len(profiles) == 0 {
		return nil, nil
	}

	config := &models.InsightConfig{
		TableName:       tableName,
		Columns:         schema.SortColumnsByImportance(profiles),
		RowCount:        rowCount,
		SamplingEnabled: rowCount > samplingRowThreshold,
		SamplingRate:    samplingRate,
	}
	for _, p := range profiles {
		switch p.BasicType {
		case models.BasicTypeNumeric:
			config.NumericColumns = append(config.NumericColumns, p.Name)
		case models.BasicTypeCategorical:
			config.CategoricalColumns = append(config.CategoricalColumns, p.Name)
		case models.BasicTypeDatetime:
			config.DatetimeColumns = append(config.DatetimeColumns, p.Name)
		}
		switch p.SemanticType {
		case models.SemanticStatus:
			config.StatusColumns = append(config.StatusColumns, p.Name)
		case models.SemanticCategory:
			config.CategoryColumns = append(config.CategoryColumns, p.Name)
		}
	}

	// Without at least one amount, status, or category column there is
	// nothing business-relevant to say about the table.
	hasAmount := false
	for _, p := range profiles {
		if p.SemanticType == models.SemanticAmount {
			hasAmount = true
			break
		}
	}
	if !hasAmount && len(config.StatusColumns) == 0 && len(config.CategoryColumns) == 0 {
		o.logger.Info("no business-relevant columns, skipping insight generation",
			zap.String("table", tableName))
		return nil, nil
	}

	o.cacheSet(ctx, cacheKey, config)
	return config, nil
}

// Distribution is the computed value distribution for one column.
type Distribution struct {
	Column   string           `json:"column"`
	Kind     models.BasicType `json:"kind"`
	Strategy binning.Strategy `json:"strategy,omitempty"`
	Query    string           `json:"query"`
	Rows     []map[string]any `json:"rows"`
}

// Distributions computes histogram and group-count distributions for the
// configured columns, routing numeric columns through the adaptive binner.
// Distribution queries fail independently per column: a failing query is
// logged and skipped so partial results still render.
func (o *Orchestrator) Distributions(ctx context.Context, config *models.InsightConfig, exec datasource.QueryExecutor) ([]Distribution, error) {
	cacheKey := "dist:" + config.TableName
	var cached []Distribution
	if hit := o.cacheGet(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	quartiles, err := o.fetchQuartiles(ctx, config, exec)
	if err != nil {
		o.logger.Warn("quartile batch failed, numeric distributions skipped", zap.Error(err))
		quartiles = map[string][2]float64{}
	}

	var out []Distribution
	for _, p := range config.Columns {
		var dist *Distribution
		switch p.BasicType {
		case models.BasicTypeNumeric:
			q, ok := quartiles[p.Name]
			if !ok || p.Stats == nil {
				continue
			}
			plan := binning.SelectStrategy(p.Name, binning.Stats{
				Min:      p.Stats.Min,
				Max:      p.Stats.Max,
				Q1:       q[0],
				Q3:       q[1],
				RowCount: config.RowCount,
			})
			dist = &Distribution{
				Column:   p.Name,
				Kind:     p.BasicType,
				Strategy: plan.Strategy,
				Query: fmt.Sprintf("SELECT %s AS bin, COUNT(*) AS cnt FROM %s%s GROUP BY bin ORDER BY bin",
					plan.Expression, datasource.QuoteIdentifier(config.TableName), o.sampleClause(config)),
			}
		case models.BasicTypeCategorical:
			dist = &Distribution{
				Column: p.Name,
				Kind:   p.BasicType,
				Query: fmt.Sprintf("SELECT %s AS grp, COUNT(*) AS cnt FROM %s%s GROUP BY grp ORDER BY cnt DESC LIMIT %d",
					datasource.QuoteIdentifier(p.Name), datasource.QuoteIdentifier(config.TableName),
					o.sampleClause(config), categoricalGroupLimit),
			}
		default:
			continue
		}

		result, err := exec.Execute(ctx, dist.Query)
		if err != nil {
			o.logger.Warn("distribution query failed, skipping column",
				zap.String("column", p.Name), zap.Error(err))
			continue
		}
		dist.Rows = result.Rows
		out = append(out, *dist)
	}

	o.cacheSet(ctx, cacheKey, out)
	return out, nil
}

// sampleClause returns the sampling suffix for distribution queries over
// large tables.
func (o *Orchestrator) sampleClause(config *models.InsightConfig) string {
	if !config.SamplingEnabled {
		return ""
	}
	return fmt.Sprintf(" USING SAMPLE %d%%", int(config.SamplingRate*100))
}

// fetchQuartiles computes Q1/Q3 for every numeric column in one batched
// query, feeding the binning strategy decision.
func (o *Orchestrator) fetchQuartiles(ctx context.Context, config *models.InsightConfig, exec datasource.QueryExecutor) (map[string][2]float64, error) {
	if len(config.NumericColumns) == 0 {
		return map[string][2]float64{}, nil
	}
	exprs := make([]string, 0, len(config.NumericColumns)*2)
	for _, col := range config.NumericColumns {
		quoted := datasource.QuoteIdentifier(col)
		base := schema.SanitizeColumnName(col)
		exprs = append(exprs,
			fmt.Sprintf("QUANTILE_CONT(%s, 0.25) AS %s", quoted, datasource.QuoteIdentifier(base+"__q1")),
			fmt.Sprintf("QUANTILE_CONT(%s, 0.75) AS %s", quoted, datasource.QuoteIdentifier(base+"__q3")))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), datasource.QuoteIdentifier(config.TableName))
	result, err := exec.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return map[string][2]float64{}, nil
	}
	row := result.Rows[0]
	out := make(map[string][2]float64, len(config.NumericColumns))
	for _, col := range config.NumericColumns {
		base := schema.SanitizeColumnName(col)
		q1, ok1 := datasource.Float64(row[base+"__q1"])
		q3, ok3 := datasource.Float64(row[base+"__q3"])
		if ok1 && ok3 {
			out[col] = [2]float64{q1, q3}
		}
	}
	return out, nil
}

// GenerateInsight runs the full three-stage pipeline for the algorithm type
// and asks the LLM for a diagnosis. LLM transport or parse failures degrade
// to a fixed low-confidence diagnosis rather than an error.
func (o *Orchestrator) GenerateInsight(ctx context.Context, algorithm models.AlgorithmType, input AnalysisInput, exec datasource.QueryExecutor) (*models.Diagnosis, error) {
	strategy, err := NewStrategy(algorithm, o.builder, o.aggregator, o.labeler)
	if err != nil {
		return nil, err
	}

	insightCtx, err := strategy.BuildContext(ctx, input.TableName, exec)
	if err != nil {
		return nil, fmt.Errorf("build insight context: %w", err)
	}
	agg, err := strategy.AggregateData(ctx, input, exec)
	if err != nil {
		return nil, fmt.Errorf("aggregate analysis data: %w", err)
	}

	prompt, systemMessage := strategy.BuildPrompt(insightCtx, agg)
	response, err := retry.DoWithResult(ctx, nil, func() (string, error) {
		return o.chat.ChatCompletion(ctx, prompt, systemMessage, 0.2)
	})
	if err != nil {
		o.logger.Warn("LLM request failed, returning fallback diagnosis", zap.Error(err))
		return ParseDiagnosis("", o.logger), nil
	}
	return ParseDiagnosis(response, o.logger), nil
}

// cacheGet is a best-effort cache read: any cache failure is logged and
// treated as a miss so the primary computation always proceeds.
func (o *Orchestrator) cacheGet(ctx context.Context, key string, dest any) bool {
	if o.cache == nil {
		return false
	}
	hit, err := o.cache.Get(ctx, key, dest)
	if err != nil {
		o.logger.Warn("cache read failed, recomputing", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

// cacheSet is a best-effort cache write.
func (o *Orchestrator) cacheSet(ctx context.Context, key string, value any) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(ctx, key, value); err != nil {
		o.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
