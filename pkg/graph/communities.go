package graph

// communityMaxSweeps bounds label propagation; schemas converge in a
// handful of sweeps and the cap keeps adversarial inputs time-bounded.
const communityMaxSweeps = 10

// FindTableCommunities assigns every table to a community using
// deterministic synchronous-order label propagation over the undirected FK
// graph. Nodes are visited in snapshot insertion order and ties between
// equally frequent neighbor labels break toward the smallest label, so the
// assignment is identical across runs. Isolated tables become singleton
// communities.
func (g *SchemaGraph) FindTableCommunities() map[string]int {
	d := g.generalGraph()

	labels := make(map[string]int, len(d.nodes))
	for i, node := range d.nodes {
		labels[node] = i
	}

	for sweep := 0; sweep < communityMaxSweeps; sweep++ {
		changed := false
		for _, node := range d.nodes {
			neighbors := d.undirected[node]
			if len(neighbors) == 0 {
				continue
			}
			counts := make(map[int]int, len(neighbors))
			for _, n := range neighbors {
				counts[labels[n]]++
			}
			best, bestCount := labels[node], 0
			for label, count := range counts {
				if count > bestCount || (count == bestCount && label < best) {
					best, bestCount = label, count
				}
			}
			if best != labels[node] {
				labels[node] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	// Renumber communities densely in first-seen order.
	renumber := make(map[int]int)
	result := make(map[string]int, len(d.nodes))
	for _, node := range d.nodes {
		label := labels[node]
		id, ok := renumber[label]
		if !ok {
			id = len(renumber)
			renumber[label] = id
		}
		result[node] = id
	}
	return result
}
