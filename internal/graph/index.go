package graph

// Direction selects which edges of a node Neighbors follows.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// Index is the adjacency index over every edge of a graph, built once per
// assembly. Edge lists preserve insertion order.
type Index struct {
	edges []Edge
	out   map[NodeKey][]int
	in    map[NodeKey][]int
}

func newIndex() *Index {
	return &Index{
		out: make(map[NodeKey][]int),
		in:  make(map[NodeKey][]int),
	}
}

func (ix *Index) add(e Edge) {
	i := len(ix.edges)
	ix.edges = append(ix.edges, e)
	ix.out[e.From] = append(ix.out[e.From], i)
	ix.in[e.To] = append(ix.in[e.To], i)
}

func (ix *Index) Len() int { return len(ix.edges) }

// Edges returns a copy of every edge in insertion order.
func (ix *Index) Edges() []Edge {
	out := make([]Edge, len(ix.edges))
	copy(out, ix.edges)
	return out
}

// Out returns the edges leaving key with the given relation; an empty
// relation matches all.
func (ix *Index) Out(key NodeKey, rel Relation) []Edge {
	return ix.collect(ix.out[key], rel)
}

// In returns the edges arriving at key with the given relation.
func (ix *Index) In(key NodeKey, rel Relation) []Edge {
	return ix.collect(ix.in[key], rel)
}

func (ix *Index) collect(positions []int, rel Relation) []Edge {
	out := make([]Edge, 0, len(positions))
	for _, p := range positions {
		if rel == "" || ix.edges[p].Relation == rel {
			out = append(out, ix.edges[p])
		}
	}
	return out
}

// Neighbors returns the nodes adjacent to key.
func (ix *Index) Neighbors(key NodeKey, rel Relation, dir Direction) []NodeKey {
	var out []NodeKey
	if dir == Outgoing || dir == Both {
		for _, e := range ix.Out(key, rel) {
			out = append(out, e.To)
		}
	}
	if dir == Incoming || dir == Both {
		for _, e := range ix.In(key, rel) {
			out = append(out, e.From)
		}
	}
	return out
}
