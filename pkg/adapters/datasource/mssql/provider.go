package mssql

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// Provider builds schema snapshots from the SQL Server catalogs. It reuses
// the executor's row-mapping instead of scanning raw rows itself.
type Provider struct {
	executor *Executor
	logger   *zap.Logger
}

// NewProvider creates a schema provider over an existing executor.
func NewProvider(executor *Executor, logger *zap.Logger) *Provider {
	return &Provider{executor: executor, logger: logger.Named("mssql-schema")}
}

// The catalog queries interpolate the schema name; it is quoted as a string
// literal with doubled quotes since the snapshot path never takes user SQL.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Snapshot implements datasource.SchemaProvider.
func (p *Provider) Snapshot(ctx context.Context, schemaName string) (*models.SchemaSnapshot, error) {
	if schemaName == "" {
		schemaName = "dbo"
	}
	lit := quoteLiteral(schemaName)

	tables, err := p.fetchTables(ctx, lit, schemaName)
	if err != nil {
		return nil, fmt.Errorf("fetch columns: %w", err)
	}
	if err := p.markPrimaryKeys(ctx, lit, tables); err != nil {
		return nil, fmt.Errorf("fetch primary keys: %w", err)
	}
	if err := p.markForeignKeys(ctx, lit, schemaName, tables); err != nil {
		return nil, fmt.Errorf("fetch foreign keys: %w", err)
	}

	snapshot := &models.SchemaSnapshot{
		SchemaName: schemaName,
		Dialect:    models.DialectMSSQL,
	}
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snapshot.Tables = append(snapshot.Tables, *tables[name])
	}

	triggers, err := p.fetchTriggers(ctx, lit)
	if err != nil {
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

func (p *Provider) fetchTables(ctx context.Context, schemaLit, schemaName string) (map[string]*models.TableInfo, error) {
	query := fmt.Sprintf(`SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE
FROM INFORMATION_SCHEMA.COLUMNS c
JOIN INFORMATION_SCHEMA.TABLES t
  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
WHERE c.TABLE_SCHEMA = %s AND t.TABLE_TYPE = 'BASE TABLE'
ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`, schemaLit)

	result, err := p.executor.Query(ctx, query, 0, 0)
	if err != nil {
		return nil, err
	}
	tables := make(map[string]*models.TableInfo)
	for _, row := range result.Rows {
		tableName, _ := row["TABLE_NAME"].(string)
		if tableName == "" {
			continue
		}
		t, ok := tables[tableName]
		if !ok {
			t = &models.TableInfo{Name: tableName, SchemaName: schemaName}
			tables[tableName] = t
		}
		dataType, _ := row["DATA_TYPE"].(string)
		nullable, _ := row["IS_NULLABLE"].(string)
		columnName, _ := row["COLUMN_NAME"].(string)
		t.Columns = append(t.Columns, models.ColumnInfo{
			Name:       columnName,
			DataType:   dataType,
			IsNullable: strings.EqualFold(nullable, "YES"),
		})
	}
	return tables, nil
}

func (p *Provider) markPrimaryKeys(ctx context.Context, schemaLit string, tables map[string]*models.TableInfo) error {
	query := fmt.Sprintf(`SELECT tc.TABLE_NAME, kcu.COLUMN_NAME
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
  ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
 AND kcu.TABLE_SCHEMA = tc.TABLE_SCHEMA
WHERE tc.TABLE_SCHEMA = %s AND tc.CONSTRAINT_TYPE = 'PRIMARY KEY'`, schemaLit)

	result, err := p.executor.Query(ctx, query, 0, 0)
	if err != nil {
		return err
	}
	for _, row := range result.Rows {
		tableName, _ := row["TABLE_NAME"].(string)
		columnName, _ := row["COLUMN_NAME"].(string)
		if t, ok := tables[tableName]; ok {
			if col := t.Column(columnName); col != nil {
				col.IsPrimaryKey = true
			}
		}
	}
	return nil
}

func (p *Provider) markForeignKeys(ctx context.Context, schemaLit, schemaName string, tables map[string]*models.TableInfo) error {
	query := fmt.Sprintf(`SELECT
  OBJECT_NAME(fkc.parent_object_id) AS src_table,
  cp.name AS src_column,
  SCHEMA_NAME(ro.schema_id) AS ref_schema,
  OBJECT_NAME(fkc.referenced_object_id) AS ref_table,
  cr.name AS ref_column
FROM sys.foreign_key_columns fkc
JOIN sys.objects po ON po.object_id = fkc.parent_object_id
JOIN sys.objects ro ON ro.object_id = fkc.referenced_object_id
JOIN sys.columns cp ON cp.object_id = fkc.parent_object_id AND cp.column_id = fkc.parent_column_id
JOIN sys.columns cr ON cr.object_id = fkc.referenced_object_id AND cr.column_id = fkc.referenced_column_id
WHERE SCHEMA_NAME(po.schema_id) = %s`, schemaLit)

	result, err := p.executor.Query(ctx, query, 0, 0)
	if err != nil {
		return err
	}
	for _, row := range result.Rows {
		tableName, _ := row["src_table"].(string)
		t, ok := tables[tableName]
		if !ok {
			continue
		}
		columnName, _ := row["src_column"].(string)
		col := t.Column(columnName)
		if col == nil {
			continue
		}
		refSchema, _ := row["ref_schema"].(string)
		refTable, _ := row["ref_table"].(string)
		refColumn, _ := row["ref_column"].(string)
		col.IsForeignKey = true
		if strings.EqualFold(refSchema, schemaName) {
			col.ForeignKeyRef = refTable + "." + refColumn
		} else {
			col.ForeignKeyRef = refSchema + "." + refTable + "." + refColumn
		}
	}
	return nil
}

func (p *Provider) fetchTriggers(ctx context.Context, schemaLit string) ([]models.TriggerInfo, error) {
	query := fmt.Sprintf(`SELECT tr.name AS trigger_name,
  OBJECT_NAME(tr.parent_id) AS table_name,
  COALESCE(OBJECT_DEFINITION(tr.object_id), '') AS body
FROM sys.triggers tr
JOIN sys.objects o ON o.object_id = tr.parent_id
WHERE SCHEMA_NAME(o.schema_id) = %s`, schemaLit)

	result, err := p.executor.Query(ctx, query, 0, 0)
	if err != nil {
		return nil, err
	}
	var triggers []models.TriggerInfo
	for _, row := range result.Rows {
		name, _ := row["trigger_name"].(string)
		tableName, _ := row["table_name"].(string)
		body, _ := row["body"].(string)
		triggers = append(triggers, models.TriggerInfo{
			Name:      name,
			TableName: tableName,
			Body:      body,
		})
	}
	return triggers, nil
}
