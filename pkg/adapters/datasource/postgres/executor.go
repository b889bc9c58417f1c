package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumina-bi/lumina-engine/pkg/adapters/datasource"
	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// Executor provides PostgreSQL query execution over a pgx pool.
type Executor struct {
	pool *pgxpool.Pool
}

// NewExecutor connects to PostgreSQL with the given connection string.
func NewExecutor(ctx context.Context, connString string) (*Executor, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Executor{pool: pool}, nil
}

// NewExecutorFromPool wraps an existing pool (tests, shared pools).
func NewExecutorFromPool(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Query implements datasource.QueryExecutor.
func (e *Executor) Query(ctx context.Context, sqlQuery string, limit int, timeout time.Duration) (*datasource.QueryResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	queryToRun := sqlQuery
	if limit > 0 {
		queryToRun = fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", sqlQuery, limit)
	}

	rows, err := e.pool.Query(ctx, queryToRun)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &datasource.QueryResult{Columns: columns, Rows: resultRows}, nil
}

// QuoteIdentifier quotes an identifier with double quotes, doubling any
// embedded quotes.
func (e *Executor) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Dialect implements datasource.QueryExecutor.
func (e *Executor) Dialect() string {
	return models.DialectPostgres
}

// Close releases the connection pool.
func (e *Executor) Close() error {
	e.pool.Close()
	return nil
}
