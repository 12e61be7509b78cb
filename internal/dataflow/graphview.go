package dataflow

import (
	"errors"

	"github.com/dominikbraun/graph"
)

// FlowGraph materializes the result as a directed in-memory graph over
// occurrence indices. Building it revalidates the edge set: an edge
// referencing an occurrence that does not exist fails here before any
// record is emitted. Recursive edges may close cycles across clauses,
// so the graph is not required to be acyclic.
func (res *Result) FlowGraph() (graph.Graph[int, Occurrence], error) {
	g := graph.New(func(o Occurrence) int { return o.Index }, graph.Directed())

	for _, occ := range res.Occurrences {
		if err := g.AddVertex(occ); err != nil {
			return nil, err
		}
	}

	for _, e := range res.Edges {
		err := g.AddEdge(e.Source, e.Target, graph.EdgeAttribute("kind", e.Kind.String()))
		if err != nil {
			if errors.Is(err, graph.ErrEdgeAlreadyExists) {
				continue
			}
			return nil, err
		}
	}

	return g, nil
}
