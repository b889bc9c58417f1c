package graph

import (
	"strings"

	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// SchemaGraph models the FK topology of a schema snapshot. Adjacency maps
// are built eagerly in one pass over the snapshot; the general directed
// graph used by path and community algorithms is built lazily and memoized.
type SchemaGraph struct {
	snapshot *models.SchemaSnapshot

	// tables keyed by canonical upper-cased name, plus insertion order for
	// deterministic tie-breaking.
	tables   map[string]*models.TableInfo
	keyOrder []string

	// qualified maps "SCHEMA.TABLE" keys to the canonical table key.
	qualified map[string]string

	outgoing map[string][]models.FKEdge
	incoming map[string][]models.FKEdge
	edges    []models.FKEdge

	general *digraph // memoized, built at most once

	logger *zap.Logger
}

// NewSchemaGraph builds the adjacency maps for the snapshot in one pass.
func NewSchemaGraph(snapshot *models.SchemaSnapshot, logger *zap.Logger) *SchemaGraph {
	g := &SchemaGraph{
		snapshot:  snapshot,
		tables:    make(map[string]*models.TableInfo, len(snapshot.Tables)),
		keyOrder:  make([]string, 0, len(snapshot.Tables)),
		qualified: make(map[string]string),
		outgoing:  make(map[string][]models.FKEdge),
		incoming:  make(map[string][]models.FKEdge),
		logger:    logger.Named("schema-graph"),
	}

	for i := range snapshot.Tables {
		t := &snapshot.Tables[i]
		key := t.Key()
		if _, exists := g.tables[key]; exists {
			continue
		}
		g.tables[key] = t
		g.keyOrder = append(g.keyOrder, key)
		if t.SchemaName != "" {
			g.qualified[strings.ToUpper(t.SchemaName)+"."+key] = key
		}
	}

	for i := range snapshot.Tables {
		t := &snapshot.Tables[i]
		srcKey := t.Key()
		for j := range t.Columns {
			col := &t.Columns[j]
			if !col.IsForeignKey || col.ForeignKeyRef == "" {
				continue
			}
			targetKey, targetSchema := g.resolveReference(col.ForeignKeyRef)
			if targetKey == "" {
				g.logger.Debug("unresolvable FK reference",
					zap.String("table", t.Name),
					zap.String("column", col.Name),
					zap.String("ref", col.ForeignKeyRef))
				continue
			}
			edge := models.FKEdge{
				SourceTable:  srcKey,
				SourceColumn: col.Name,
				SourceSchema: t.SchemaName,
				TargetTable:  targetKey,
				TargetSchema: targetSchema,
			}
			g.edges = append(g.edges, edge)
			g.outgoing[srcKey] = append(g.outgoing[srcKey], edge)
			g.incoming[targetKey] = append(g.incoming[targetKey], edge)
		}
	}

	return g
}

// resolveReference maps a foreign-key reference string to a canonical
// (table key, schema) pair. References arrive in at least three forms:
// "TABLE.col", "SCHEMA.TABLE" and "SCHEMA.TABLE.col", and table names may
// themselves contain dots. Resolution tries longest-prefix match against
// known table keys first, then falls back to dot-count heuristics. An
// unresolvable reference degrades to a best-effort guess rather than
// failing graph construction.
func (g *SchemaGraph) resolveReference(ref string) (string, string) {
	upper := strings.ToUpper(strings.TrimSpace(ref))
	if upper == "" {
		return "", ""
	}

	// Exact matches first.
	if _, ok := g.tables[upper]; ok {
		return upper, g.schemaOf(upper)
	}
	if key, ok := g.qualified[upper]; ok {
		return key, g.schemaOf(key)
	}

	// Longest-prefix match against schema-qualified and plain table keys.
	// A prefix only counts when the remainder starts at a dot boundary.
	bestKey, bestSchema, bestLen := "", "", 0
	for qual, key := range g.qualified {
		if len(qual) > bestLen && strings.HasPrefix(upper, qual+".") {
			bestKey, bestSchema, bestLen = key, g.schemaOf(key), len(qual)
		}
	}
	for _, key := range g.keyOrder {
		if len(key) > bestLen && strings.HasPrefix(upper, key+".") {
			bestKey, bestSchema, bestLen = key, g.schemaOf(key), len(key)
		}
	}
	if bestKey != "" {
		return bestKey, bestSchema
	}

	// Dot-count heuristics for references to tables outside the snapshot.
	parts := strings.Split(upper, ".")
	switch len(parts) {
	case 1:
		return parts[0], ""
	case 2:
		// Ambiguous: TABLE.col vs SCHEMA.TABLE. Prefer a known table on
		// either side, else assume SCHEMA.TABLE.
		if _, ok := g.tables[parts[0]]; ok {
			return parts[0], g.schemaOf(parts[0])
		}
		if _, ok := g.tables[parts[1]]; ok {
			return parts[1], parts[0]
		}
		return parts[1], parts[0]
	default:
		// SCHEMA.TABLE.COLUMN; middle parts belong to the table name.
		return strings.Join(parts[1:len(parts)-1], "."), parts[0]
	}
}

func (g *SchemaGraph) schemaOf(key string) string {
	if t, ok := g.tables[key]; ok {
		return t.SchemaName
	}
	return ""
}

// normalizeKey maps any caller-supplied table name to the canonical key.
func normalizeKey(table string) string {
	return strings.ToUpper(strings.TrimSpace(table))
}

// GetFKNeighbors returns the outgoing FK edges for a table. O(1) lookup,
// case-insensitive.
func (g *SchemaGraph) GetFKNeighbors(table string) []models.FKEdge {
	return g.outgoing[normalizeKey(table)]
}

// GetIncomingFKs returns the incoming FK edges for a table. O(1) lookup,
// case-insensitive.
func (g *SchemaGraph) GetIncomingFKs(table string) []models.FKEdge {
	return g.incoming[normalizeKey(table)]
}

// GetOutDegree returns the number of outgoing FK edges for a table.
func (g *SchemaGraph) GetOutDegree(table string) int {
	return len(g.outgoing[normalizeKey(table)])
}

// GetInDegree returns the number of incoming FK edges for a table.
func (g *SchemaGraph) GetInDegree(table string) int {
	return len(g.incoming[normalizeKey(table)])
}

// TableCount returns the number of distinct tables in the graph.
func (g *SchemaGraph) TableCount() int {
	return len(g.keyOrder)
}

// EdgeCount returns the number of resolved FK edges.
func (g *SchemaGraph) EdgeCount() int {
	return len(g.edges)
}

// Edges returns all resolved FK edges in construction order.
func (g *SchemaGraph) Edges() []models.FKEdge {
	return g.edges
}

// GetCrossSchemaEdges returns edges whose source and target schemas differ
// and are both non-empty.
func (g *SchemaGraph) GetCrossSchemaEdges() []models.FKEdge {
	var out []models.FKEdge
	for _, e := range g.edges {
		if e.IsCrossSchema() {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================================
// Memoized general graph
// ============================================================================

// digraph is the lazily built general representation used by algorithms
// needing standard graph theory. It mirrors the adjacency maps exactly and
// is rebuilt only by an explicit Rebuild.
type digraph struct {
	nodes      []string
	successors map[string][]string
	undirected map[string][]string
}

// generalGraph builds the memoized digraph on first use.
func (g *SchemaGraph) generalGraph() *digraph {
	if g.general != nil {
		return g.general
	}

	d := &digraph{
		nodes:      g.keyOrder,
		successors: make(map[string][]string, len(g.keyOrder)),
		undirected: make(map[string][]string, len(g.keyOrder)),
	}
	seenSucc := make(map[string]map[string]struct{})
	seenUndir := make(map[string]map[string]struct{})
	addOnce := func(seen map[string]map[string]struct{}, adj map[string][]string, from, to string) {
		set, ok := seen[from]
		if !ok {
			set = make(map[string]struct{})
			seen[from] = set
		}
		if _, dup := set[to]; dup {
			return
		}
		set[to] = struct{}{}
		adj[from] = append(adj[from], to)
	}

	for _, e := range g.edges {
		// Edges to tables outside the snapshot stay in the adjacency maps
		// but are excluded from the algorithmic view.
		if _, ok := g.tables[e.TargetTable]; !ok {
			continue
		}
		addOnce(seenSucc, d.successors, e.SourceTable, e.TargetTable)
		addOnce(seenUndir, d.undirected, e.SourceTable, e.TargetTable)
		addOnce(seenUndir, d.undirected, e.TargetTable, e.SourceTable)
	}

	g.general = d
	return d
}

// Rebuild drops the memoized general graph so the next analytical call
// reconstructs it from the adjacency maps.
func (g *SchemaGraph) Rebuild() {
	g.general = nil
}
