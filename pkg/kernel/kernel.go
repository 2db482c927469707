// Package kernel is the boundary to the compiled numerical analysis kernel.
// Anomaly detection and clustering run inside an opaque WASM plugin; this
// package only shapes inputs to and decodes outputs from that boundary.
package kernel

import (
	"context"

	"github.com/datalens-hq/insight-engine/pkg/models"
)

// AnomalyInput is the payload handed to the anomaly-detection kernel.
type AnomalyInput struct {
	FeatureColumns []string             `json:"feature_columns"`
	Rows           []map[string]float64 `json:"rows"`
	Contamination  float64              `json:"contamination"`
}

// ClusteringInput is the payload handed to the clustering kernel.
type ClusteringInput struct {
	Customers []map[string]float64 `json:"customers"`
	K         int                  `json:"k"`
}

// AnalysisKernel runs the heavy numeric algorithms. Implementations dispatch
// to compiled code; the engine never reimplements the math.
type AnalysisKernel interface {
	// DetectAnomalies scores every row and flags outliers.
	DetectAnomalies(ctx context.Context, input AnomalyInput) ([]models.AnomalyRecord, error)

	// ClusterCustomers assigns each customer to a cluster.
	ClusterCustomers(ctx context.Context, input ClusteringInput) ([]models.CustomerClusterRecord, error)

	// Close releases the kernel.
	Close(ctx context.Context) error
}
