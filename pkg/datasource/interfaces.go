// Package datasource defines the query boundary between the insight engine
// and the analytical store. The engine builds query text and hands it to a
// QueryExecutor; it never owns a connection itself.
package datasource

import "context"

// QueryExecutor executes SQL text against an analytical store.
// Implementations own their connection and must be closed when done.
// This is a plain request/response contract - no streaming, no prepared
// statements. All identifier and literal escaping happens through the
// helpers in this package before the text reaches Execute.
type QueryExecutor interface {
	// Execute runs a SELECT statement and returns all rows.
	Execute(ctx context.Context, query string) (*QueryResult, error)

	// Close releases the underlying connection.
	Close() error
}

// QueryResult contains the rows of a query execution, one map per row keyed
// by result column name.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}
