// Package calltree answers transitive questions over the call graph: which
// test cases a test case ends up calling, which end up calling it, and
// whether a new call step would close a cycle.
//
// Closures are computed one BFS layer at a time. Each layer is a single
// store query for the whole frontier, and ids already visited are never
// expanded again, so a corrupt cyclic graph still terminates.
package calltree

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-logr/logr"

	"github.com/mesh-intelligence/calltree/internal/metrics"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

// Finder computes closures and presentation graphs.
type Finder struct {
	store types.CallEdgeReader
	log   logr.Logger
}

// NewFinder returns a Finder reading call edges from store.
func NewFinder(store types.CallEdgeReader, log logr.Logger) *Finder {
	return &Finder{store: store, log: log.WithName("finder")}
}

type hopFunc func(ctx context.Context, ids []int64) ([]int64, error)

// DownstreamClosure returns every test case reachable from rootIDs through
// call steps. The roots themselves are excluded.
func (f *Finder) DownstreamClosure(ctx context.Context, rootIDs ...int64) (types.IDSet, error) {
	return f.closure(ctx, metrics.Downstream, f.store.CalleesOf, rootIDs)
}

// UpstreamClosure returns every test case that reaches one of rootIDs
// through call steps. The roots themselves are excluded.
func (f *Finder) UpstreamClosure(ctx context.Context, rootIDs ...int64) (types.IDSet, error) {
	return f.closure(ctx, metrics.Upstream, f.store.CallersOf, rootIDs)
}

func (f *Finder) closure(ctx context.Context, direction string, hop hopFunc, rootIDs []int64) (types.IDSet, error) {
	roots := types.NewIDSet(rootIDs...)
	visited := roots.Clone()
	frontier := roots.Sorted()

	layers := 0
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := hop(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("%s layer %d: %w", direction, layers+1, err)
		}
		layers++

		frontier = frontier[:0]
		for _, id := range next {
			if visited.Has(id) {
				continue
			}
			visited.Add(id)
			frontier = append(frontier, id)
		}
	}

	result := visited.Without(roots)
	metrics.ClosureLayers.WithLabelValues(direction).Observe(float64(layers))
	metrics.ClosureSize.WithLabelValues(direction).Observe(float64(len(result)))
	f.log.V(1).Info("closure", "direction", direction, "roots", len(roots), "layers", layers, "size", len(result))
	return result, nil
}

// CallerGraph returns the graph of every call path ending in calleeIDs. The
// callees and all their transitive callers are nodes; edges carry the number
// of call steps behind them.
func (f *Finder) CallerGraph(ctx context.Context, calleeIDs ...int64) (*CallGraph, error) {
	b := newGraphBuilder(calleeIDs)

	visited := types.NewIDSet(calleeIDs...)
	frontier := visited.Sorted()
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pairs, err := f.store.CallPairsTo(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("caller graph: %w", err)
		}
		frontier = nil
		for _, p := range pairs {
			b.add(p)
			if !visited.Has(p.Caller.ID) {
				visited.Add(p.Caller.ID)
				frontier = append(frontier, p.Caller.ID)
			}
		}
	}
	return b.build(1)
}

// ExtendedGraph returns the connected part of the call graph around
// seedIDs, expanding callers and callees of every node in both directions.
func (f *Finder) ExtendedGraph(ctx context.Context, seedIDs ...int64) (*CallGraph, error) {
	b := newGraphBuilder(seedIDs)

	visited := types.NewIDSet(seedIDs...)
	frontier := visited.Sorted()
	layers := 0
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		down, err := f.store.CallPairsFrom(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("extended graph: %w", err)
		}
		up, err := f.store.CallPairsTo(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("extended graph: %w", err)
		}
		layers++

		frontier = nil
		for _, p := range slices.Concat(down, up) {
			b.add(p)
			for _, id := range []int64{p.Caller.ID, p.Callee.ID} {
				if !visited.Has(id) {
					visited.Add(id)
					frontier = append(frontier, id)
				}
			}
		}
	}
	metrics.ClosureLayers.WithLabelValues(metrics.Extended).Observe(float64(layers))
	metrics.ClosureSize.WithLabelValues(metrics.Extended).Observe(float64(len(visited)))

	// Every node is expanded exactly once, so each call step is seen from
	// its caller's layer and again from its callee's layer.
	return b.build(2)
}
