package graph

import "github.com/lumina-bi/lumina-engine/pkg/models"

// Stats aggregates every topology analysis into one summary. It is the
// only graph entry point the discovery engine calls in steady state.
type Stats struct {
	TotalTables      int             `json:"total_tables"`
	TotalEdges       int             `json:"total_edges"`
	Hubs             []HubTable      `json:"hubs"`
	ComponentCount   int             `json:"component_count"`
	ComponentSizes   []int           `json:"component_sizes"`
	StarSchemas      []StarSchema    `json:"star_schemas"`
	BridgeTables     []string        `json:"bridge_tables"`
	FKChains         [][]string      `json:"fk_chains"`
	Communities      map[string]int  `json:"communities"`
	CommunityCount   int             `json:"community_count"`
	CrossSchemaEdges []models.FKEdge `json:"cross_schema_edges"`
}

// GetStats runs all topology analyses and returns the combined summary.
func (g *SchemaGraph) GetStats() *Stats {
	components := g.FindConnectedComponents()
	sizes := make([]int, len(components))
	for i, c := range components {
		sizes[i] = len(c)
	}

	communities := g.FindTableCommunities()
	communityCount := 0
	seen := make(map[int]struct{})
	for _, id := range communities {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			communityCount++
		}
	}

	return &Stats{
		TotalTables:      g.TableCount(),
		TotalEdges:       g.EdgeCount(),
		Hubs:             g.FindHubs(10),
		ComponentCount:   len(components),
		ComponentSizes:   sizes,
		StarSchemas:      g.FindStarSchemas(3),
		BridgeTables:     g.FindBridgeTables(),
		FKChains:         g.FindFKChains(3),
		Communities:      communities,
		CommunityCount:   communityCount,
		CrossSchemaEdges: g.GetCrossSchemaEdges(),
	}
}

// IsHub reports whether the table appears in the top-hub ranking.
func (s *Stats) IsHub(table string) bool {
	key := normalizeKey(table)
	for _, h := range s.Hubs {
		if h.Table == key {
			return true
		}
	}
	return false
}

// IsStarFact reports whether the table is a detected star-schema fact table.
func (s *Stats) IsStarFact(table string) bool {
	key := normalizeKey(table)
	for _, star := range s.StarSchemas {
		if star.FactTable == key {
			return true
		}
	}
	return false
}

// IsBridge reports whether the table is a detected bridge table.
func (s *Stats) IsBridge(table string) bool {
	key := normalizeKey(table)
	for _, b := range s.BridgeTables {
		if b == key {
			return true
		}
	}
	return false
}
