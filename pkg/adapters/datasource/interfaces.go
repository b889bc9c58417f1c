package datasource

import (
	"context"
	"time"

	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// QueryExecutor executes read-only SQL against a target datasource.
// Each implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	// Query runs a SELECT statement with a per-query timeout and returns
	// bounded results. limit <= 0 means no wrapping is applied; otherwise
	// the query is wrapped with a dialect-specific row cap:
	//   - PostgreSQL: SELECT * FROM (query) AS _q LIMIT n
	//   - SQL Server: SELECT TOP (n) * FROM (query) AS _q
	Query(ctx context.Context, sqlQuery string, limit int, timeout time.Duration) (*QueryResult, error)

	// QuoteIdentifier safely quotes a table, column or schema name with
	// dialect-specific quoting.
	QuoteIdentifier(name string) string

	// Dialect returns the models.Dialect* constant for this executor.
	Dialect() string

	// Close releases the underlying connection.
	Close() error
}

// SchemaProvider returns the schema snapshot for a given schema name.
// Implementations may cache upstream; the engine treats the snapshot as
// immutable for the duration of a discovery run.
type SchemaProvider interface {
	Snapshot(ctx context.Context, schemaName string) (*models.SchemaSnapshot, error)
}

// QueryResult holds the tabular results of a query execution.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// RowCount returns the number of rows in the result.
func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
