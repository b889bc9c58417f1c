package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// Provider builds schema snapshots from the PostgreSQL catalogs.
type Provider struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewProvider creates a schema provider over an existing pool.
func NewProvider(pool *pgxpool.Pool, logger *zap.Logger) *Provider {
	return &Provider{pool: pool, logger: logger.Named("pg-schema")}
}

const columnsQuery = `
SELECT c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

const primaryKeysQuery = `
SELECT tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
WHERE tc.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY'`

const foreignKeysQuery = `
SELECT tc.table_name, kcu.column_name,
       ccu.table_schema, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name
WHERE tc.table_schema = $1 AND tc.constraint_type = 'FOREIGN KEY'`

const triggersQuery = `
SELECT trigger_name, event_object_table, event_manipulation, action_timing,
       COALESCE(action_statement, '')
FROM information_schema.triggers
WHERE trigger_schema = $1`

// Snapshot implements datasource.SchemaProvider.
func (p *Provider) Snapshot(ctx context.Context, schemaName string) (*models.SchemaSnapshot, error) {
	if schemaName == "" {
		schemaName = "public"
	}

	tables, err := p.fetchTables(ctx, schemaName)
	if err != nil {
		return nil, fmt.Errorf("fetch columns: %w", err)
	}
	if err := p.markPrimaryKeys(ctx, schemaName, tables); err != nil {
		return nil, fmt.Errorf("fetch primary keys: %w", err)
	}
	if err := p.markForeignKeys(ctx, schemaName, tables); err != nil {
		return nil, fmt.Errorf("fetch foreign keys: %w", err)
	}

	snapshot := &models.SchemaSnapshot{
		SchemaName: schemaName,
		Dialect:    models.DialectPostgres,
	}
	for _, name := range sortedTableNames(tables) {
		snapshot.Tables = append(snapshot.Tables, *tables[name])
	}

	triggers, err := p.fetchTriggers(ctx, schemaName)
	if err != nil {
		// Triggers only strengthen evidence; a snapshot without them is
		// still usable.
		p.logger.Warn("trigger introspection failed", zap.Error(err))
	} else {
		snapshot.Triggers = triggers
	}

	p.logger.Info("schema snapshot built",
		zap.String("schema", schemaName),
		zap.Int("tables", len(snapshot.Tables)),
		zap.Int("triggers", len(snapshot.Triggers)))
	return snapshot, nil
}

func (p *Provider) fetchTables(ctx context.Context, schemaName string) (map[string]*models.TableInfo, error) {
	rows, err := p.pool.Query(ctx, columnsQuery, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]*models.TableInfo)
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, err
		}
		t, ok := tables[tableName]
		if !ok {
			t = &models.TableInfo{Name: tableName, SchemaName: schemaName}
			tables[tableName] = t
		}
		t.Columns = append(t.Columns, models.ColumnInfo{
			Name:       columnName,
			DataType:   dataType,
			IsNullable: strings.EqualFold(isNullable, "YES"),
		})
	}
	return tables, rows.Err()
}

func (p *Provider) markPrimaryKeys(ctx context.Context, schemaName string, tables map[string]*models.TableInfo) error {
	rows, err := p.pool.Query(ctx, primaryKeysQuery, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return err
		}
		if t, ok := tables[tableName]; ok {
			if col := t.Column(columnName); col != nil {
				col.IsPrimaryKey = true
			}
		}
	}
	return rows.Err()
}

func (p *Provider) markForeignKeys(ctx context.Context, schemaName string, tables map[string]*models.TableInfo) error {
	rows, err := p.pool.Query(ctx, foreignKeysQuery, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, columnName, refSchema, refTable, refColumn string
		if err := rows.Scan(&tableName, &columnName, &refSchema, &refTable, &refColumn); err != nil {
			return err
		}
		t, ok := tables[tableName]
		if !ok {
			continue
		}
		col := t.Column(columnName)
		if col == nil {
			continue
		}
		col.IsForeignKey = true
		if strings.EqualFold(refSchema, schemaName) {
			col.ForeignKeyRef = refTable + "." + refColumn
		} else {
			col.ForeignKeyRef = refSchema + "." + refTable + "." + refColumn
		}
	}
	return rows.Err()
}

func (p *Provider) fetchTriggers(ctx context.Context, schemaName string) ([]models.TriggerInfo, error) {
	rows, err := p.pool.Query(ctx, triggersQuery, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []models.TriggerInfo
	for rows.Next() {
		var tr models.TriggerInfo
		if err := rows.Scan(&tr.Name, &tr.TableName, &tr.Event, &tr.Timing, &tr.Body); err != nil {
			return nil, err
		}
		triggers = append(triggers, tr)
	}
	return triggers, rows.Err()
}

func sortedTableNames(tables map[string]*models.TableInfo) []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	// Snapshot order is lexicographic so repeated runs see identical input.
	sort.Strings(names)
	return names
}
