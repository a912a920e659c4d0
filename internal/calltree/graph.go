package calltree

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

// Edge is one caller -> callee edge of a CallGraph. Steps counts the call
// steps the caller holds towards the callee.
type Edge struct {
	Caller types.NodeRef `json:"caller"`
	Callee types.NodeRef `json:"callee"`
	Steps  int           `json:"steps"`
}

// CallGraph is a read-only presentation graph of persisted call steps.
// It does not prevent cycles: it shows what is stored.
type CallGraph struct {
	g     graph.Graph[int64, types.NodeRef]
	nodes []types.NodeRef
	edges []Edge
}

func nodeHash(n types.NodeRef) int64 { return n.ID }

// Nodes returns the nodes ordered by id.
func (c *CallGraph) Nodes() []types.NodeRef {
	return slices.Clone(c.nodes)
}

// Edges returns the edges ordered by caller then callee id.
func (c *CallGraph) Edges() []Edge {
	return slices.Clone(c.edges)
}

// Callees returns the direct callees of id in the graph, ordered by id.
func (c *CallGraph) Callees(id int64) []int64 {
	adj, err := c.g.AdjacencyMap()
	if err != nil {
		return nil
	}
	return slices.Sorted(maps.Keys(adj[id]))
}

// Callers returns the direct callers of id in the graph, ordered by id.
func (c *CallGraph) Callers(id int64) []int64 {
	pred, err := c.g.PredecessorMap()
	if err != nil {
		return nil
	}
	return slices.Sorted(maps.Keys(pred[id]))
}

// Steps returns the number of call steps from caller to callee, 0 if the
// graph has no such edge.
func (c *CallGraph) Steps(caller, callee int64) int {
	e, err := c.g.Edge(caller, callee)
	if err != nil {
		return 0
	}
	return e.Properties.Weight
}

// WriteDOT renders the graph in Graphviz DOT format.
func (c *CallGraph) WriteDOT(w io.Writer) error {
	return draw.DOT(c.g, w, draw.GraphAttribute("rankdir", "LR"))
}

// MarshalJSON encodes the graph as {"nodes": [...], "edges": [...]}.
func (c *CallGraph) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Nodes []types.NodeRef `json:"nodes"`
		Edges []Edge          `json:"edges"`
	}{Nodes: c.nodes, Edges: c.edges})
}

type edgeKey struct{ caller, callee int64 }

// graphBuilder collects nodes and call pairs during a walk; the graph is
// built once names are known.
type graphBuilder struct {
	refs   map[int64]types.NodeRef
	counts map[edgeKey]int
}

func newGraphBuilder(rootIDs []int64) *graphBuilder {
	b := &graphBuilder{
		refs:   make(map[int64]types.NodeRef),
		counts: make(map[edgeKey]int),
	}
	for _, id := range rootIDs {
		b.refs[id] = types.NodeRef{ID: id}
	}
	return b
}

func (b *graphBuilder) add(p types.CallPair) {
	b.refs[p.Caller.ID] = p.Caller
	b.refs[p.Callee.ID] = p.Callee
	b.counts[edgeKey{p.Caller.ID, p.Callee.ID}]++
}

// build creates the graph. Each edge count is divided by sightings, the
// number of times a walk sees every call step.
func (b *graphBuilder) build(sightings int) (*CallGraph, error) {
	c := &CallGraph{g: graph.New(nodeHash, graph.Directed())}

	for _, id := range slices.Sorted(maps.Keys(b.refs)) {
		ref := b.refs[id]
		label := ref.Name
		if label == "" {
			label = strconv.FormatInt(id, 10)
		}
		if err := c.g.AddVertex(ref, graph.VertexAttribute("label", label)); err != nil {
			return nil, fmt.Errorf("adding node %d: %w", id, err)
		}
		c.nodes = append(c.nodes, ref)
	}

	keys := slices.SortedFunc(maps.Keys(b.counts), func(x, y edgeKey) int {
		return cmp.Or(cmp.Compare(x.caller, y.caller), cmp.Compare(x.callee, y.callee))
	})
	for _, k := range keys {
		steps := max(b.counts[k]/sightings, 1)
		if err := c.g.AddEdge(k.caller, k.callee,
			graph.EdgeWeight(steps),
			graph.EdgeAttribute("label", strconv.Itoa(steps)),
		); err != nil {
			return nil, fmt.Errorf("adding edge %d -> %d: %w", k.caller, k.callee, err)
		}
		c.edges = append(c.edges, Edge{Caller: b.refs[k.caller], Callee: b.refs[k.callee], Steps: steps})
	}
	return c, nil
}
