package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb" // register the sqlserver driver

	"github.com/lumina-bi/lumina-engine/pkg/adapters/datasource"
	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// Executor provides SQL Server query execution via database/sql.
type Executor struct {
	db *sql.DB
}

// NewExecutor connects to SQL Server with the given connection string.
func NewExecutor(connString string) (*Executor, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlserver: %w", err)
	}
	return &Executor{db: db}, nil
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
		queryToRun = fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _q", limit, sqlQuery)
	}

	rows, err := e.db.QueryContext(ctx, queryToRun)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rowMap[col] = v
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &datasource.QueryResult{Columns: columns, Rows: resultRows}, nil
}

// QuoteIdentifier quotes an identifier with brackets, escaping any closing
// brackets.
func (e *Executor) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// Dialect implements datasource.QueryExecutor.
func (e *Executor) Dialect() string {
	return models.DialectMSSQL
}

// Close releases the database handle.
func (e *Executor) Close() error {
	return e.db.Close()
}
