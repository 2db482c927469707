package kernel

import (
	"context"
	"fmt"
	"sync"

	extism "github.com/extism/go-sdk"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/apperrors"
	"github.com/datalens-hq/insight-engine/pkg/models"
)

const (
	anomalyExport    = "detect_anomalies"
	clusteringExport = "cluster_customers"
)

// WASMKernel hosts a compiled analysis plugin through Extism. Plugin calls
// are serialized behind a mutex because Extism plugin instances are not safe
// for concurrent use.
type WASMKernel struct {
	plugin *extism.Plugin
	logger *zap.Logger
	mu     sync.Mutex
}

var _ AnalysisKernel = (*WASMKernel)(nil)

// NewWASMKernel loads the analysis plugin from the given .wasm file.
func NewWASMKernel(ctx context.Context, wasmPath string, logger *zap.Logger) (*WASMKernel, error) {
	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmFile{Path: wasmPath},
		},
	}

	plugin, err := extism.NewPlugin(ctx, manifest, extism.PluginConfig{EnableWasi: true}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis kernel from %s: %w", wasmPath, err)
	}

	return &WASMKernel{
		plugin: plugin,
		logger: logger.Named("kernel"),
	}, nil
}

func (k *WASMKernel) DetectAnomalies(ctx context.Context, input AnomalyInput) ([]models.AnomalyRecord, error) {
	out, err := k.call(ctx, anomalyExport, input)
	if err != nil {
		return nil, err
	}

	var records []models.AnomalyRecord
	if err := json.Unmarshal(out, &records); err != nil {
		return nil, fmt.Errorf("failed to decode anomaly kernel output: %w", err)
	}

	k.logger.Debug("anomaly kernel completed",
		zap.Int("input_rows", len(input.Rows)),
		zap.Int("output_records", len(records)))

	return records, nil
}

func (k *WASMKernel) ClusterCustomers(ctx context.Context, input ClusteringInput) ([]models.CustomerClusterRecord, error) {
	out, err := k.call(ctx, clusteringExport, input)
	if err != nil {
		return nil, err
	}

	var records []models.CustomerClusterRecord
	if err := json.Unmarshal(out, &records); err != nil {
		return nil, fmt.Errorf("failed to decode clustering kernel output: %w", err)
	}

	k.logger.Debug("clustering kernel completed",
		zap.Int("input_customers", len(input.Customers)),
		zap.Int("output_records", len(records)))

	return records, nil
}

func (k *WASMKernel) Close(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.plugin == nil {
		return nil
	}
	err := k.plugin.Close(ctx)
	k.plugin = nil
	return err
}

func (k *WASMKernel) call(ctx context.Context, export string, input any) ([]byte, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode kernel input: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.plugin == nil {
		return nil, fmt.Errorf("%w: kernel is closed", apperrors.ErrKernelUnavailable)
	}

	exit, out, err := k.plugin.CallWithContext(ctx, export, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s call failed: %v", apperrors.ErrKernelUnavailable, export, err)
	}
	if exit != 0 {
		return nil, fmt.Errorf("%w: %s exited with code %d", apperrors.ErrKernelUnavailable, export, exit)
	}

	return out, nil
}
