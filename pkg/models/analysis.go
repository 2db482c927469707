package models

// AlgorithmType identifies which analysis kernel produced a result set.
type AlgorithmType string

const (
	AlgorithmAnomaly    AlgorithmType = "anomaly"
	AlgorithmClustering AlgorithmType = "clustering"
	AlgorithmRegression AlgorithmType = "regression"
)

// AnomalyRecord is one scored row from the anomaly-detection kernel.
// The engine consumes these as already-computed input; it never runs the
// isolation forest itself.
type AnomalyRecord struct {
	ID         string             `json:"id"`
	Score      float64            `json:"score"` // [0,1]
	IsAbnormal bool               `json:"is_abnormal"`
	Features   map[string]float64 `json:"features"`
}

// CustomerClusterRecord is one customer assignment from the clustering kernel.
type CustomerClusterRecord struct {
	CustomerID          string   `json:"customer_id"`
	ClusterID           int      `json:"cluster_id"`
	Recency             float64  `json:"recency"`
	Frequency           float64  `json:"frequency"`
	Monetary            float64  `json:"monetary"`
	AOV                 *float64 `json:"aov,omitempty"`
	DiscountSensitivity *float64 `json:"discount_sensitivity,omitempty"`
	ChurnRisk           *float64 `json:"churn_risk,omitempty"`
}

// ClusterMetadata summarizes one computed cluster. Constructed per clustering
// run and immutable afterwards; Label and its companions are filled in by the
// segment labeler.
type ClusterMetadata struct {
	ClusterID     int                `json:"cluster_id"`
	Label         string             `json:"label,omitempty"`
	Description   string             `json:"description,omitempty"`
	ColorHint     string             `json:"color_hint,omitempty"`
	Priority      int                `json:"priority,omitempty"`
	CustomerCount int                `json:"customer_count"`
	AvgRecency    float64            `json:"avg_recency"`
	AvgFrequency  float64            `json:"avg_frequency"`
	AvgMonetary   float64            `json:"avg_monetary"`
	TotalValue    float64            `json:"total_value"`
	ValueShare    float64            `json:"value_share"`
	RadarValues   map[string]float64 `json:"radar_values,omitempty"`
}

// FeatureStats holds in-memory statistics for one feature column over the
// anomaly working set, plus the full-table average when the global query
// succeeded.
type FeatureStats struct {
	Avg       float64  `json:"avg"`
	Min       float64  `json:"min"`
	Max       float64  `json:"max"`
	GlobalAvg *float64 `json:"global_avg,omitempty"`
}

// AnomalyAggregate is the compact digest of an anomaly-detection run.
type AnomalyAggregate struct {
	TotalAnomalies     int                     `json:"total_anomalies"`
	AverageScore       float64                 `json:"average_score"`
	NumericFeatures    map[string]FeatureStats `json:"numeric_features"`
	TopPatterns        map[string]int          `json:"top_patterns"`
	SuspiciousPatterns map[string]int          `json:"suspicious_patterns"`
}

// RFMStats holds population-level recency/frequency/monetary averages.
type RFMStats struct {
	AvgRecency   float64 `json:"avg_recency"`
	AvgFrequency float64 `json:"avg_frequency"`
	AvgMonetary  float64 `json:"avg_monetary"`
}

// ClusterAggregate is the compact digest of a clustering run.
type ClusterAggregate struct {
	TotalCustomers  int                     `json:"total_customers"`
	Clusters        []ClusterMetadata       `json:"clusters"`
	RFMStats        RFMStats                `json:"rfm_stats"`
	SampleCustomers []CustomerClusterRecord `json:"sample_customers"`
}

// AggregatedFeatures is the union-shaped digest handed to prompt building.
// Exactly one branch is populated depending on the algorithm type.
type AggregatedFeatures struct {
	Anomaly    *AnomalyAggregate `json:"anomaly,omitempty"`
	Clustering *ClusterAggregate `json:"clustering,omitempty"`
}

// ColumnSchema is the minimal executor-level view of a column.
type ColumnSchema struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// TableMetadata is the executor-level view of a table used for LLM context.
type TableMetadata struct {
	TableName string         `json:"table_name"`
	RowCount  int64          `json:"row_count"`
	Columns   []ColumnSchema `json:"columns"`
}

// InsightContext is the semantic description of a table built fresh per
// analysis run and embedded into the LLM prompt.
type InsightContext struct {
	AlgorithmType      AlgorithmType     `json:"algorithm_type"`
	TableMetadata      TableMetadata     `json:"table_metadata"`
	FeatureDefinitions map[string]string `json:"feature_definitions"`
	BusinessDomain     string            `json:"business_domain"`
}
