// Package calltree wires the call graph engine for in-process callers: a
// SQLite store, the closure finder, the cycle checker, the importance
// propagator and the step mutator sharing one lock manager.
package calltree

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/mesh-intelligence/calltree/internal/calltree"
	"github.com/mesh-intelligence/calltree/internal/importance"
	"github.com/mesh-intelligence/calltree/internal/lock"
	"github.com/mesh-intelligence/calltree/internal/steps"
	"github.com/mesh-intelligence/calltree/pkg/sqlite"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

// Version is the calltree release.
const Version = "0.1.0"

// Engine is an attached call graph engine. Close it when done.
type Engine struct {
	store      types.Backend
	finder     *calltree.Finder
	checker    *calltree.CycleChecker
	propagator *importance.Propagator
	mutator    *steps.Mutator
	log        logr.Logger
}

// Open validates cfg, attaches the backend it names and builds the engine
// components on top of it. The importance table comes from
// cfg.ImportanceTable, falling back to the default mapping per entry.
func Open(ctx context.Context, cfg types.Config, log logr.Logger, opts ...steps.Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	table, err := importance.FromConfig(cfg.ImportanceTable)
	if err != nil {
		return nil, fmt.Errorf("importance table: %w", err)
	}

	store := sqlite.NewBackend()
	if err := store.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attaching %s backend: %w", cfg.Backend, err)
	}

	finder := calltree.NewFinder(store, log)
	checker := calltree.NewCycleChecker(finder, store, log)
	prop := importance.NewPropagator(store, finder, table, log)
	opts = append([]steps.Option{steps.WithLocks(lock.NewManager()), steps.WithLogger(log)}, opts...)

	log.V(1).Info("engine opened", "backend", cfg.Backend, "dataDir", cfg.DataDir)
	return &Engine{
		store:      store,
		finder:     finder,
		checker:    checker,
		propagator: prop,
		mutator:    steps.NewMutator(store, checker, prop, opts...),
		log:        log,
	}, nil
}

// Close detaches the backend.
func (e *Engine) Close() error {
	return e.store.Detach()
}

// Store returns the backend for catalog reads and writes.
func (e *Engine) Store() types.Backend { return e.store }

// Finder answers closure and graph queries.
func (e *Engine) Finder() *calltree.Finder { return e.finder }

// Checker answers cycle questions without mutating.
func (e *Engine) Checker() *calltree.CycleChecker { return e.checker }

// Propagator deduces importance.
func (e *Engine) Propagator() *importance.Propagator { return e.propagator }

// Mutator applies structural mutations.
func (e *Engine) Mutator() *steps.Mutator { return e.mutator }
