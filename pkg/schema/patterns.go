package schema

import (
	"regexp"

	"github.com/datalens-hq/insight-engine/pkg/models"
)

// semanticPattern pairs a semantic label with the name patterns that select
// it. Patterns cover English (case-insensitive ASCII) and Chinese column
// naming conventions.
type semanticPattern struct {
	semantic models.SemanticType
	patterns []*regexp.Regexp
}

// semanticPatterns is evaluated in strict priority order:
// status > category > amount > time > id. The first matching set wins, so a
// name matching both status and category patterns always resolves to status.
var semanticPatterns = []semanticPattern{
	{
		semantic: models.SemanticStatus,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(status|state|stage|phase|condition)`),
			regexp.MustCompile(`(状态|状况|阶段)`),
		},
	},
	{
		semantic: models.SemanticCategory,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(category|type|class|group|channel|region|segment|level|grade|brand)`),
			regexp.MustCompile(`(类型|分类|类别|渠道|区域|地区|等级|品类|品牌)`),
		},
	},
	{
		semantic: models.SemanticAmount,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(amount|price|cost|revenue|sales|income|profit|fee|payment|total|value|gmv|balance)`),
			regexp.MustCompile(`(金额|价格|单价|费用|销售额|收入|成本|利润|总额|余额)`),
		},
	},
	{
		semantic: models.SemanticTime,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(date|time|created|updated|birthday|expire|_at$|_on$|day|month|year)`),
			regexp.MustCompile(`(时间|日期|年份|月份|创建|更新)`),
		},
	},
	{
		semantic: models.SemanticID,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(^id$|_id$|uuid|guid|_no$|^no$|_code$|serial|_key$)`),
			regexp.MustCompile(`(编号|号码|编码)`),
		},
	},
}

// idLikeNamePattern flags names whose values are identifiers stored in
// numeric columns (phone numbers, zip codes, account numbers). These are
// classified as text regardless of storage type because arithmetic over them
// is meaningless.
var idLikeNamePattern = regexp.MustCompile(`(?i)(phone|mobile|tel$|telephone|zip|postal|passport|license|电话|手机|邮编|身份证)`)

// MatchSemanticType returns the highest-priority semantic label whose
// patterns match the column name, or SemanticNone when nothing matches.
func MatchSemanticType(name string) models.SemanticType {
	for _, set := range semanticPatterns {
		for _, pattern := range set.patterns {
			if pattern.MatchString(name) {
				return set.semantic
			}
		}
	}
	return models.SemanticNone
}

// semanticPriority orders semantic labels for importance sorting. Lower is
// more important; unmatched columns sort last.
func semanticPriority(s models.SemanticType) int {
	switch s {
	case models.SemanticStatus:
		return 0
	case models.SemanticCategory:
		return 1
	case models.SemanticAmount:
		return 2
	case models.SemanticTime:
		return 3
	case models.SemanticID:
		return 4
	default:
		return 5
	}
}
