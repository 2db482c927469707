// Package postgres provides a pgx-backed QueryExecutor for datasets that
// live in a PostgreSQL warehouse instead of the embedded DuckDB store.
package postgres

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/logging"
)

// Config holds PostgreSQL connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// User-provided fields must be URL-escaped to handle special characters in
// passwords (e.g., @, /, #, ?) that would otherwise break URL parsing.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}

// Executor runs queries against a PostgreSQL database through a pgx pool.
type Executor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewExecutor connects to PostgreSQL and verifies the connection.
func NewExecutor(ctx context.Context, cfg *Config, logger *zap.Logger) (*Executor, error) {
	connStr := buildConnectionString(cfg)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to postgres",
		zap.String("connection", logging.SanitizeConnectionString(connStr)))
	return &Executor{pool: pool, logger: logger.Named("postgres")}, nil
}

// Execute runs a SELECT statement and returns all rows as generic maps.
func (e *Executor) Execute(ctx context.Context, query string) (*datasource.QueryResult, error) {
	e.logger.Debug("executing query", zap.String("query", logging.SanitizeQuery(query)))

	rows, err := e.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	cols := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		cols[i] = string(fd.Name)
	}

	result := &datasource.QueryResult{Columns: cols, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// Close releases the connection pool.
func (e *Executor) Close() error {
	e.pool.Close()
	return nil
}

var _ datasource.QueryExecutor = (*Executor)(nil)
