package names

// EdgeKind describes why two people are connected in the relationship graph.
type EdgeKind int

// Edge kinds, strongest first.
const (
	EdgeCoBunked EdgeKind = iota
	EdgeMutualRequest
	EdgeSharedConnection
)

// edgeWeights scale the per-hop contribution of each relationship kind.
var edgeWeights = map[EdgeKind]float64{
	EdgeCoBunked:         1.0,
	EdgeMutualRequest:    0.8,
	EdgeSharedConnection: 0.4,
}

// Graph is the person-relationship graph used for the social bonus: prior
// co-bunking, mutual requests, and shared connections between campers.
// Keys are person external ids. Graph is built once per pipeline run and
// read-only afterward, so it is safe for concurrent readers.
type Graph struct {
	edges map[string]map[string]EdgeKind
}

// NewGraph creates an empty relationship graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[string]map[string]EdgeKind)}
}

// AddEdge records an undirected relationship. A stronger kind overwrites a
// weaker existing edge between the same pair.
func (g *Graph) AddEdge(a, b string, kind EdgeKind) {
	if a == "" || b == "" || a == b {
		return
	}
	g.addDirected(a, b, kind)
	g.addDirected(b, a, kind)
}

func (g *Graph) addDirected(from, to string, kind EdgeKind) {
	m, ok := g.edges[from]
	if !ok {
		m = make(map[string]EdgeKind)
		g.edges[from] = m
	}
	if existing, ok := m[to]; !ok || kind < existing {
		m[to] = kind
	}
}

// Proximity returns the hop count of the shortest path between two people,
// or 0 if none exists within maxHops.
func (g *Graph) Proximity(a, b string, maxHops int) int {
	if a == b || maxHops <= 0 {
		return 0
	}

	visited := map[string]bool{a: true}
	frontier := []string{a}

	for hop := 1; hop <= maxHops; hop++ {
		var next []string
		for _, node := range frontier {
			for neighbor := range g.edges[node] {
				if neighbor == b {
					return hop
				}
				if !visited[neighbor] {
					visited[neighbor] = true
					next = append(next, neighbor)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	return 0
}

// Bonus computes the social-graph confidence bonus between a requester and
// a candidate: the strongest first-hop edge weight decayed by path length,
// capped at maxBonus.
func (g *Graph) Bonus(requester, candidate string, maxHops int, maxBonus float64) float64 {
	hops := g.Proximity(requester, candidate, maxHops)
	if hops == 0 {
		return 0
	}

	weight := edgeWeights[EdgeSharedConnection]
	if hops == 1 {
		if kind, ok := g.edges[requester][candidate]; ok {
			weight = edgeWeights[kind]
		}
	}

	bonus := maxBonus * weight / float64(hops)
	if bonus > maxBonus {
		bonus = maxBonus
	}
	return bonus
}
