// Package duckdb provides a DuckDB-backed QueryExecutor. DuckDB is the
// primary store for locally loaded tabular datasets.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/datasource"
	"github.com/datalens-hq/insight-engine/pkg/logging"
)

// Executor runs queries against an embedded DuckDB database.
type Executor struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExecutor opens (or creates) a DuckDB database at path. An empty path
// opens an in-memory database.
func NewExecutor(path string, logger *zap.Logger) (*Executor, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &Executor{db: db, logger: logger.Named("duckdb")}, nil
}

// Execute runs a SELECT statement and returns all rows as generic maps.
func (e *Executor) Execute(ctx context.Context, query string) (*datasource.QueryResult, error) {
	e.logger.Debug("executing query", zap.String("query", logging.SanitizeQuery(query)))

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &datasource.QueryResult{Columns: cols, Rows: make([]map[string]any, 0)}
	values := make([]any, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
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

// Close releases the database handle.
func (e *Executor) Close() error {
	return e.db.Close()
}

var _ datasource.QueryExecutor = (*Executor)(nil)
