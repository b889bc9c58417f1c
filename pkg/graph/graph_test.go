package graph

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/models"
)

func table(schema, name string, cols ...models.ColumnInfo) models.TableInfo {
	return models.TableInfo{Name: name, SchemaName: schema, Columns: cols}
}

func pk(name string) models.ColumnInfo {
	return models.ColumnInfo{Name: name, DataType: "bigint", IsPrimaryKey: true}
}

func fk(name, ref string) models.ColumnInfo {
	return models.ColumnInfo{Name: name, DataType: "bigint", IsForeignKey: true, ForeignKeyRef: ref}
}

func plain(name, dataType string) models.ColumnInfo {
	return models.ColumnInfo{Name: name, DataType: dataType}
}

func newGraph(t *testing.T, tables ...models.TableInfo) *SchemaGraph {
	t.Helper()
	return NewSchemaGraph(&models.SchemaSnapshot{Tables: tables}, zap.NewNop())
}

func TestResolveQualifiedFKReference(t *testing.T) {
	g := newGraph(t,
		table("HR", "EMPLOYEES", pk("employee_id"), fk("department_id", "HR.DEPARTMENTS.department_id")),
		table("HR", "DEPARTMENTS", pk("department_id")),
	)

	edges := g.GetFKNeighbors("EMPLOYEES")
	require.Len(t, edges, 1)
	assert.Equal(t, "DEPARTMENTS", edges[0].TargetTable)
	assert.Equal(t, "HR", edges[0].TargetSchema)
	assert.Equal(t, "department_id", edges[0].SourceColumn)
}

func TestResolveReferenceForms(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		wantTable  string
		wantSchema string
	}{
		{"bare table", "DEPARTMENTS", "DEPARTMENTS", "HR"},
		{"table dot column", "DEPARTMENTS.department_id", "DEPARTMENTS", "HR"},
		{"schema dot table", "HR.DEPARTMENTS", "DEPARTMENTS", "HR"},
		{"schema table column", "HR.DEPARTMENTS.department_id", "DEPARTMENTS", "HR"},
		{"unknown schema qualified", "FIN.LEDGERS.ledger_id", "LEDGERS", "FIN"},
		{"unknown two part", "FIN.LEDGERS", "LEDGERS", "FIN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGraph(t,
				table("HR", "EMPLOYEES", fk("department_id", tt.ref)),
				table("HR", "DEPARTMENTS", pk("department_id")),
			)
			edges := g.GetFKNeighbors("employees")
			require.Len(t, edges, 1)
			assert.Equal(t, tt.wantTable, edges[0].TargetTable)
			assert.Equal(t, tt.wantSchema, edges[0].TargetSchema)
		})
	}
}

func TestDottedTableNameLongestPrefixWins(t *testing.T) {
	// A table whose name itself contains a dot must win over the dot-count
	// heuristic.
	g := newGraph(t,
		table("", "ACME.ORDERS", pk("id")),
		table("", "INVOICES", fk("order_ref", "ACME.ORDERS.id")),
	)
	edges := g.GetFKNeighbors("INVOICES")
	require.Len(t, edges, 1)
	assert.Equal(t, "ACME.ORDERS", edges[0].TargetTable)
}

func TestCaseInsensitiveLookups(t *testing.T) {
	g := newGraph(t,
		table("SALES", "ORDERS", fk("customer_id", "CUSTOMERS"), fk("employee_id", "EMPLOYEES")),
		table("SALES", "CUSTOMERS", pk("id")),
		table("SALES", "EMPLOYEES", pk("id")),
	)

	assert.Equal(t, g.GetOutDegree("ORDERS"), g.GetOutDegree("orders"))
	assert.Equal(t, 2, g.GetOutDegree("orders"))
	assert.Equal(t, 1, g.GetInDegree("Customers"))
}

func TestCrossSchemaEdges(t *testing.T) {
	g := newGraph(t,
		table("SALES", "ORDERS",
			fk("customer_id", "SALES.CUSTOMERS"),
			fk("employee_id", "HR.EMPLOYEES")),
		table("SALES", "CUSTOMERS", pk("id")),
		table("HR", "EMPLOYEES", pk("id")),
	)

	cross := g.GetCrossSchemaEdges()
	require.Len(t, cross, 1)
	assert.Equal(t, "EMPLOYEES", cross[0].TargetTable)
	assert.Equal(t, "HR", cross[0].TargetSchema)
	assert.Equal(t, "SALES", cross[0].SourceSchema)
}

func TestFindHubsRankingDeterministic(t *testing.T) {
	tables := []models.TableInfo{
		table("", "ORDERS", fk("a_id", "A"), fk("b_id", "B"), fk("c_id", "C")),
		table("", "A", pk("id")),
		table("", "B", pk("id"), fk("a_id", "A")),
		table("", "C", pk("id")),
	}
	g := newGraph(t, tables...)

	first := g.FindHubs(10)
	require.NotEmpty(t, first)
	assert.Equal(t, "ORDERS", first[0].Table)
	assert.Equal(t, 3, first[0].TotalDegree)

	for run := 0; run < 5; run++ {
		again := NewSchemaGraph(&models.SchemaSnapshot{Tables: tables}, zap.NewNop()).FindHubs(10)
		assert.Equal(t, first, again)
	}
}

func TestCommunitiesDeterministicAndComplete(t *testing.T) {
	tables := []models.TableInfo{
		table("", "ORDERS", fk("customer_id", "CUSTOMERS")),
		table("", "CUSTOMERS", pk("id")),
		table("", "TICKETS", fk("agent_id", "AGENTS")),
		table("", "AGENTS", pk("id")),
		table("", "LONELY", pk("id")),
	}
	g := newGraph(t, tables...)

	first := g.FindTableCommunities()
	assert.Len(t, first, 5, "every table appears, singletons included")
	assert.Equal(t, first["ORDERS"], first["CUSTOMERS"])
	assert.Equal(t, first["TICKETS"], first["AGENTS"])
	assert.NotEqual(t, first["ORDERS"], first["TICKETS"])

	again := NewSchemaGraph(&models.SchemaSnapshot{Tables: tables}, zap.NewNop()).FindTableCommunities()
	assert.Equal(t, first, again)
}

func TestGeneralGraphMemoized(t *testing.T) {
	g := newGraph(t,
		table("", "A", fk("b_id", "B")),
		table("", "B", pk("id")),
	)
	first := g.generalGraph()
	assert.Same(t, first, g.generalGraph())
	g.Rebuild()
	assert.NotSame(t, first, g.generalGraph())
}

func TestLargeSchemaConstructionAndStats(t *testing.T) {
	const n = 2000
	tables := make([]models.TableInfo, 0, n)
	for i := 0; i < n; i++ {
		cols := []models.ColumnInfo{pk("id")}
		if i > 0 {
			cols = append(cols, fk("parent_id", fmt.Sprintf("T%04d", i-1)))
		}
		tables = append(tables, table("", fmt.Sprintf("T%04d", i), cols...))
	}

	start := time.Now()
	g := newGraph(t, tables...)
	stats := g.GetStats()
	elapsed := time.Since(start)

	assert.Equal(t, n, stats.TotalTables)
	assert.Equal(t, n-1, stats.TotalEdges)
	assert.Equal(t, 1, stats.ComponentCount)
	assert.Less(t, elapsed, 5*time.Second)
}
