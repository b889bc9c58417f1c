package graph

import (
	"sort"
	"strings"
)

// Caps keeping path enumeration tractable on pathological schemas.
const (
	maxChainHops   = 8
	maxChainResult = 50
)

// HubTable is a table ranked by total FK degree.
type HubTable struct {
	Table       string `json:"table"`
	OutDegree   int    `json:"out_degree"`
	InDegree    int    `json:"in_degree"`
	TotalDegree int    `json:"total_degree"`
}

// FindHubs returns the topN tables by total (in+out) degree, descending.
// Ties keep snapshot insertion order, making the ranking deterministic.
func (g *SchemaGraph) FindHubs(topN int) []HubTable {
	hubs := make([]HubTable, 0, len(g.keyOrder))
	for _, key := range g.keyOrder {
		out := len(g.outgoing[key])
		in := len(g.incoming[key])
		if out+in == 0 {
			continue
		}
		hubs = append(hubs, HubTable{Table: key, OutDegree: out, InDegree: in, TotalDegree: out + in})
	}
	sort.SliceStable(hubs, func(i, j int) bool {
		return hubs[i].TotalDegree > hubs[j].TotalDegree
	})
	if topN > 0 && len(hubs) > topN {
		hubs = hubs[:topN]
	}
	return hubs
}

// FindConnectedComponents returns undirected connectivity components over
// the FK graph, sorted largest-first. Isolated tables form singleton
// components.
func (g *SchemaGraph) FindConnectedComponents() [][]string {
	d := g.generalGraph()
	visited := make(map[string]bool, len(d.nodes))
	var components [][]string

	for _, start := range d.nodes {
		if visited[start] {
			continue
		}
		var component []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			component = append(component, node)
			for _, next := range d.undirected[node] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		components = append(components, component)
	}

	sort.SliceStable(components, func(i, j int) bool {
		return len(components[i]) > len(components[j])
	})
	return components
}

// StarSchema is one detected fact table with its dimension set.
type StarSchema struct {
	FactTable  string   `json:"fact_table"`
	Dimensions []string `json:"dimensions"`
	FKCount    int      `json:"fk_count"`
}

// FindStarSchemas returns tables whose outgoing FK count meets
// minDimensions, with their deduplicated dimension targets, sorted by FK
// count descending.
func (g *SchemaGraph) FindStarSchemas(minDimensions int) []StarSchema {
	if minDimensions <= 0 {
		minDimensions = 3
	}
	var stars []StarSchema
	for _, key := range g.keyOrder {
		edges := g.outgoing[key]
		if len(edges) < minDimensions {
			continue
		}
		seen := make(map[string]struct{}, len(edges))
		var dims []string
		for _, e := range edges {
			if _, dup := seen[e.TargetTable]; dup {
				continue
			}
			seen[e.TargetTable] = struct{}{}
			dims = append(dims, e.TargetTable)
		}
		stars = append(stars, StarSchema{FactTable: key, Dimensions: dims, FKCount: len(edges)})
	}
	sort.SliceStable(stars, func(i, j int) bool {
		return stars[i].FKCount > stars[j].FKCount
	})
	return stars
}

// bridgeKeyShare is the minimum share of FK+PK columns for a table to count
// as a pure join table.
const bridgeKeyShare = 0.8

// FindBridgeTables returns pure many-to-many join tables: at least two FK
// columns, with FK and PK columns making up at least 80% of all columns.
func (g *SchemaGraph) FindBridgeTables() []string {
	var bridges []string
	for _, key := range g.keyOrder {
		t := g.tables[key]
		if len(t.Columns) == 0 {
			continue
		}
		fkCount, keyCount := 0, 0
		for _, col := range t.Columns {
			if col.IsForeignKey {
				fkCount++
			}
			if col.IsForeignKey || col.IsPrimaryKey {
				keyCount++
			}
		}
		if fkCount >= 2 && float64(keyCount)/float64(len(t.Columns)) >= bridgeKeyShare {
			bridges = append(bridges, key)
		}
	}
	return bridges
}

// FindFKChains enumerates simple FK paths of at least minLength tables,
// starting from source-like nodes (in-degree <= 1). Path length is capped
// at maxChainHops and the result keeps the maxChainResult longest chains.
// Disconnected and degenerate graphs yield an empty result, never a panic.
func (g *SchemaGraph) FindFKChains(minLength int) [][]string {
	if minLength <= 0 {
		minLength = 3
	}
	d := g.generalGraph()

	var chains [][]string
	seenChains := make(map[string]struct{})

	var walk func(node string, path []string, onPath map[string]bool)
	walk = func(node string, path []string, onPath map[string]bool) {
		path = append(path, node)
		onPath[node] = true
		defer delete(onPath, node)

		if len(path) >= minLength {
			key := strings.Join(path, "→")
			if _, dup := seenChains[key]; !dup {
				seenChains[key] = struct{}{}
				chains = append(chains, append([]string(nil), path...))
			}
		}
		if len(path) >= maxChainHops {
			return
		}
		for _, next := range d.successors[node] {
			if !onPath[next] {
				walk(next, path, onPath)
			}
		}
	}

	for _, start := range d.nodes {
		if len(g.incoming[start]) <= 1 && len(d.successors[start]) > 0 {
			walk(start, nil, make(map[string]bool))
		}
	}

	sort.SliceStable(chains, func(i, j int) bool {
		return len(chains[i]) > len(chains[j])
	})
	if len(chains) > maxChainResult {
		chains = chains[:maxChainResult]
	}
	return chains
}
