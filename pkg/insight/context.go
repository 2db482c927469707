// Package insight aggregates algorithm output into compact digests, builds
// LLM context and prompts, and orchestrates insight generation per table.
package insight

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/models"
)

// featureDescription pairs a descriptive label with the name patterns that
// select it. Unlike the classification table in pkg/schema, this table is
// ordered amount > quantity > category > time > status > customer > product >
// address > order > id: descriptions feed the LLM context, where measures
// matter most. The two orders intentionally differ; see DESIGN.md.
type featureDescription struct {
	description string
	patterns    []*regexp.Regexp
}

var featureDescriptions = []featureDescription{
	{"monetary amount (revenue, price, or cost measure)", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(amount|price|cost|revenue|sales|income|profit|fee|payment|total|value|gmv|balance)`),
		regexp.MustCompile(`(金额|价格|单价|费用|销售额|收入|成本|利润|总额|余额)`),
	}},
	{"quantity (count of units or items)", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(quantity|qty|count|num$|units)`),
		regexp.MustCompile(`(数量|件数|个数)`),
	}},
	{"category dimension (grouping or segmentation attribute)", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(category|type|class|group|channel|region|segment|level|grade|brand)`),
		regexp.MustCompile(`(类型|分类|类别|渠道|区域|地区|等级|品类|品牌)`),
	}},
	{"time dimension (event or record timestamp)", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(date|time|created|updated|_at$|_on$|day|month|year)`),
		regexp.MustCompile(`(时间|日期|年份|月份|创建|更新)`),
	}},
	{"status flag (lifecycle or workflow state)", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(status|state|stage|phase|condition)`),
		regexp.MustCompile(`(状态|状况|阶段)`),
	}},
	{"customer attribute", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(customer|user|member|client|buyer)`),
		regexp.MustCompile(`(客户|用户|会员|买家)`),
	}},
	{"product attribute", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(product|item|sku|goods)`),
		regexp.MustCompile(`(产品|商品|货品)`),
	}},
	{"address or location attribute", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(address|city|province|country|location)`),
		regexp.MustCompile(`(地址|城市|省份|国家)`),
	}},
	{"order attribute", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(order|transaction|invoice)`),
		regexp.MustCompile(`(订单|交易|发票)`),
	}},
	{"identifier", []*regexp.Regexp{
		regexp.MustCompile(`(?i)(^id$|_id$|uuid|_no$|^no$|_code$)`),
		regexp.MustCompile(`(编号|号码|编码)`),
	}},
}

// describeFeature maps a column name to a human-readable business
// description, or a generic one when nothing matches.
func describeFeature(name string) string {
	for _, fd := range featureDescriptions {
		for _, pattern := range fd.patterns {
			if pattern.MatchString(name) {
				return fd.description
			}
		}
	}
	return "numeric feature"
}

// ContextBuilder constructs the semantic table description embedded into
// LLM prompts. Built fresh per analysis run.
type ContextBuilder struct {
	logger *zap.Logger
}

// NewContextBuilder creates a context builder.
func NewContextBuilder(logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{logger: logger.Named("insight-context")}
}

// BuildInsightContext fetches row count and column schema from the executor
// and maps every numeric column to a business description. Row count and
// schema queries are critical; their failure aborts context building.
func (b *ContextBuilder) BuildInsightContext(ctx context.Context, algorithm models.AlgorithmType, tableName string, exec datasource.QueryExecutor) (*models.InsightContext, error) {
	if err := datasource.CheckLiteral("table_name", tableName); err != nil {
		return nil, err
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) AS row_count FROM %s", datasource.QuoteIdentifier(tableName))
	countResult, err := exec.Execute(ctx, countQuery)
	if err != nil {
		return nil, fmt.Errorf("fetch row count: %w", err)
	}
	var rowCount int64
	if len(countResult.Rows) > 0 {
		rowCount, _ = datasource.Int64(countResult.Rows[0]["row_count"])
	}

	schemaQuery := fmt.Sprintf(
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_name = %s ORDER BY ordinal_position",
		datasource.QuoteLiteral(tableName))
	schemaResult, err := exec.Execute(ctx, schemaQuery)
	if err != nil {
		return nil, fmt.Errorf("fetch schema: %w", err)
	}

	meta := models.TableMetadata{TableName: tableName, RowCount: rowCount}
	definitions := make(map[string]string)
	for _, row := range schemaResult.Rows {
		col := models.ColumnSchema{
			Name:     datasource.String(row["column_name"]),
			DataType: datasource.String(row["data_type"]),
		}
		meta.Columns = append(meta.Columns, col)
		// All numeric-typed columns are treated as feature columns.
		if isNumericDataType(col.DataType) {
			definitions[col.Name] = describeFeature(col.Name)
		}
	}

	return &models.InsightContext{
		AlgorithmType:      algorithm,
		TableMetadata:      meta,
		FeatureDefinitions: definitions,
		BusinessDomain:     inferBusinessDomain(meta.Columns),
	}, nil
}

// inferBusinessDomain makes a coarse guess at the dataset's domain from its
// column vocabulary, giving the LLM a framing hint.
func inferBusinessDomain(columns []models.ColumnSchema) string {
	var hasOrder, hasCustomer, hasProduct bool
	for _, col := range columns {
		name := strings.ToLower(col.Name)
		switch {
		case strings.Contains(name, "order") || strings.Contains(name, "订单"):
			hasOrder = true
		case strings.Contains(name, "customer") || strings.Contains(name, "user") || strings.Contains(name, "客户"):
			hasCustomer = true
		case strings.Contains(name, "product") || strings.Contains(name, "sku") || strings.Contains(name, "商品"):
			hasProduct = true
		}
	}
	switch {
	case hasOrder && (hasCustomer || hasProduct):
		return "e-commerce transactions"
	case hasCustomer:
		return "customer records"
	case hasProduct:
		return "product catalog"
	default:
		return "general tabular dataset"
	}
}

func isNumericDataType(dataType string) bool {
	t := strings.ToLower(dataType)
	for _, kw := range []string{"int", "double", "float", "decimal", "numeric", "real"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
