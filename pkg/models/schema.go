package models

import "strings"

// Database dialects supported by the engine.
const (
	DialectPostgres = "postgres"
	DialectMSSQL    = "mssql"
	DialectOracle   = "oracle"
	DialectMySQL    = "mysql"
	DialectGeneric  = "generic"
)

// ColumnInfo describes a single column in a discovered table.
type ColumnInfo struct {
	Name          string `json:"name"`
	DataType      string `json:"data_type"`
	IsNullable    bool   `json:"is_nullable"`
	IsPrimaryKey  bool   `json:"is_primary_key"`
	IsForeignKey  bool   `json:"is_foreign_key"`
	ForeignKeyRef string `json:"foreign_key_ref,omitempty"` // "TABLE.col", "SCHEMA.TABLE" or "SCHEMA.TABLE.col"
}

// TableInfo is the static description of one table in a schema snapshot.
type TableInfo struct {
	Name       string       `json:"name"`
	SchemaName string       `json:"schema_name,omitempty"`
	Columns    []ColumnInfo `json:"columns"`
	RowCount   *int64       `json:"row_count,omitempty"`
	Comment    string       `json:"comment,omitempty"`
}

// Key returns the canonical upper-cased lookup key for the table.
func (t *TableInfo) Key() string {
	return strings.ToUpper(t.Name)
}

// Column returns the column with the given name (case-insensitive), or nil.
func (t *TableInfo) Column(name string) *ColumnInfo {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// TriggerInfo describes a trigger attached to a table.
type TriggerInfo struct {
	Name      string `json:"name"`
	TableName string `json:"table_name"`
	Event     string `json:"event,omitempty"`  // INSERT, UPDATE, DELETE
	Timing    string `json:"timing,omitempty"` // BEFORE, AFTER
	Body      string `json:"body,omitempty"`
}

// ProcedureInfo describes a stored procedure or function.
type ProcedureInfo struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"` // PROCEDURE or FUNCTION
}

// DependencyEdge is a declared object dependency (view on table, etc.).
type DependencyEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type,omitempty"`
}

// SchemaSnapshot is an immutable point-in-time view of a target database
// schema. It is created once per discovery run and never mutated afterwards.
type SchemaSnapshot struct {
	SchemaName   string           `json:"schema_name"`
	Dialect      string           `json:"dialect"`
	Tables       []TableInfo      `json:"tables"`
	Triggers     []TriggerInfo    `json:"triggers,omitempty"`
	Procedures   []ProcedureInfo  `json:"procedures,omitempty"`
	Dependencies []DependencyEdge `json:"dependencies,omitempty"`
}

// TableByKey returns the table with the given canonical key, or nil.
func (s *SchemaSnapshot) TableByKey(key string) *TableInfo {
	key = strings.ToUpper(key)
	for i := range s.Tables {
		if s.Tables[i].Key() == key {
			return &s.Tables[i]
		}
	}
	return nil
}

// FKEdge is one directed foreign-key relationship resolved from a column's
// reference string. Edges are derived from a SchemaSnapshot and owned by the
// schema graph.
type FKEdge struct {
	SourceTable  string `json:"source_table"`
	SourceColumn string `json:"source_column"`
	SourceSchema string `json:"source_schema,omitempty"`
	TargetTable  string `json:"target_table"`
	TargetSchema string `json:"target_schema,omitempty"`
}

// IsCrossSchema reports whether the edge spans two distinct, named schemas.
func (e *FKEdge) IsCrossSchema() bool {
	return e.SourceSchema != "" && e.TargetSchema != "" &&
		!strings.EqualFold(e.SourceSchema, e.TargetSchema)
}
