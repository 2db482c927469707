package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/cache"
	"github.com/datalens-hq/insight-engine/pkg/config"
	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/datasource/duckdb"
	"github.com/datalens-hq/insight-engine/pkg/datasource/postgres"
	"github.com/datalens-hq/insight-engine/pkg/handlers"
	"github.com/datalens-hq/insight-engine/pkg/insight"
	"github.com/datalens-hq/insight-engine/pkg/kernel"
	"github.com/datalens-hq/insight-engine/pkg/llm"
	"github.com/datalens-hq/insight-engine/pkg/logging"
	"github.com/datalens-hq/insight-engine/pkg/middleware"
	"github.com/datalens-hq/insight-engine/pkg/schema"
	"github.com/datalens-hq/insight-engine/pkg/segment"
	"github.com/datalens-hq/insight-engine/pkg/services"
	"github.com/datalens-hq/insight-engine/pkg/store"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("postgres", cfg.Postgres.IsConfigured()),
		zap.Bool("kernel", cfg.Kernel.WASMPath != ""))

	ctx := context.Background()

	// Datasource: PostgreSQL when configured, embedded DuckDB otherwise.
	var exec datasource.QueryExecutor
	if cfg.Postgres.IsConfigured() {
		exec, err = postgres.NewExecutor(ctx, &postgres.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}, logger)
	} else {
		exec, err = duckdb.NewExecutor(cfg.DuckDB.Path, logger)
	}
	if err != nil {
		logger.Fatal("failed to open datasource", zap.Error(err))
	}
	defer func() { _ = exec.Close() }()

	badgerStore, err := store.NewBadgerStore(cfg.Cache.Dir, logger)
	if err != nil {
		logger.Fatal("failed to open cache store", zap.Error(err))
	}
	defer func() { _ = badgerStore.Close() }()

	resultCache := cache.New(badgerStore, logger,
		cache.WithMaxSize(cfg.Cache.MaxSizeBytes),
		cache.WithMinAge(time.Duration(cfg.Cache.MinAgeMinutes)*time.Minute))
	defer resultCache.Close()

	chat, err := newChatClient(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create LLM client", zap.Error(err))
	}

	inferencer := schema.NewInferencer(logger)
	builder := insight.NewContextBuilder(logger)
	aggregator := insight.NewAggregator(logger)
	labeler := segment.NewLabeler(logger)
	orchestrator := insight.NewOrchestrator(inferencer, builder, aggregator, labeler, resultCache, chat, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	insightHandler := handlers.NewInsightHandler(orchestrator, resultCache, exec, logger)
	insightHandler.RegisterRoutes(mux)

	// The kernel-backed pipeline is only available when a compiled
	// analysis plugin is configured.
	if cfg.Kernel.WASMPath != "" {
		analysisKernel, err := kernel.NewWASMKernel(ctx, cfg.Kernel.WASMPath, logger)
		if err != nil {
			logger.Fatal("failed to load analysis kernel", zap.Error(err))
		}
		defer func() { _ = analysisKernel.Close(ctx) }()

		analysisService := services.NewAnalysisService(orchestrator, analysisKernel, exec, logger)
		analysisHandler := handlers.NewAnalysisHandler(analysisService, logger)
		analysisHandler.RegisterRoutes(mux)
	}

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting insight-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newChatClient(cfg *config.Config, logger *zap.Logger) (llm.ChatClient, error) {
	llmCfg := &llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}
	if cfg.LLM.Provider == "anthropic" {
		return llm.NewAnthropicClient(llmCfg, logger)
	}
	if llmCfg.Endpoint == "" {
		llmCfg.Endpoint = "https://api.openai.com/v1"
	}
	return llm.NewOpenAIClient(llmCfg, logger)
}
