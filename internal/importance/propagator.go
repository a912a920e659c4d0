package importance

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/mesh-intelligence/calltree/internal/calltree"
	"github.com/mesh-intelligence/calltree/internal/metrics"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

// LinkChange says whether a coverage link was added or removed.
type LinkChange int

const (
	LinkAdded LinkChange = iota
	LinkRemoved
)

// Walk label values for metrics and logs.
const (
	walkRaise = "raise"
	walkLower = "lower"
)

// Propagator keeps automatic importance values current. The importance of
// an auto test case is the table level of the strongest criticality verified
// by the test case or anything it calls.
//
// Events walk upwards from the changed test case through DirectCallers, one
// layer at a time, visiting each test case at most once. Manually pinned
// test cases keep their value but still pass the event on to their callers.
// A raise stops at auto test cases that already hold the level.
type Propagator struct {
	store  types.ImportanceStore
	finder *calltree.Finder
	table  Table
	log    logr.Logger
}

// NewPropagator returns a Propagator using finder for downstream closures.
func NewPropagator(store types.ImportanceStore, finder *calltree.Finder, table Table, log logr.Logger) *Propagator {
	return &Propagator{store: store, finder: finder, table: table, log: log.WithName("importance")}
}

// Table returns the criticality table in use.
func (p *Propagator) Table() Table {
	return p.table
}

// Deduce computes the importance of id from the criticalities verified by
// id and its downstream closure.
func (p *Propagator) Deduce(ctx context.Context, id int64) (types.Importance, error) {
	crits, err := p.reachableCriticalities(ctx, id)
	if err != nil {
		return types.ImportanceLow, err
	}
	return p.table.Deduce(crits), nil
}

func (p *Propagator) reachableCriticalities(ctx context.Context, id int64) ([]types.Criticality, error) {
	closure, err := p.finder.DownstreamClosure(ctx, id)
	if err != nil {
		return nil, err
	}
	closure.Add(id)
	crits, err := p.store.CriticalitiesOf(ctx, closure.Sorted())
	if err != nil {
		return nil, fmt.Errorf("reading criticalities: %w", err)
	}
	return crits, nil
}

// Refresh re-deduces the importance of id if it is automatic.
func (p *Propagator) Refresh(ctx context.Context, id int64) error {
	tc, err := p.store.TestCase(ctx, id)
	if err != nil {
		return err
	}
	if !tc.ImportanceAuto {
		return nil
	}
	return p.rededuce(ctx, tc)
}

// OnCallEdgeAdded runs after callerID gained a call step to calleeID.
func (p *Propagator) OnCallEdgeAdded(ctx context.Context, calleeID, callerID int64) error {
	crits, err := p.reachableCriticalities(ctx, calleeID)
	if err != nil {
		return fmt.Errorf("call %d -> %d added: %w", callerID, calleeID, err)
	}
	if len(crits) == 0 {
		return nil
	}
	if err := p.raise(ctx, p.table.Deduce(crits), callerID); err != nil {
		return fmt.Errorf("call %d -> %d added: %w", callerID, calleeID, err)
	}
	return nil
}

// OnCallEdgeRemoved runs after callerID lost a call step to calleeID.
func (p *Propagator) OnCallEdgeRemoved(ctx context.Context, calleeID, callerID int64) error {
	crits, err := p.reachableCriticalities(ctx, calleeID)
	if err != nil {
		return fmt.Errorf("call %d -> %d removed: %w", callerID, calleeID, err)
	}
	if len(crits) == 0 {
		return nil
	}
	if err := p.lower(ctx, p.table.Deduce(crits), callerID); err != nil {
		return fmt.Errorf("call %d -> %d removed: %w", callerID, calleeID, err)
	}
	return nil
}

// OnRequirementLinkChanged runs after testCaseID started or stopped
// verifying a requirement version of criticality crit.
func (p *Propagator) OnRequirementLinkChanged(ctx context.Context, testCaseID int64, crit types.Criticality, change LinkChange) error {
	level := p.table.ImportanceFor(crit)
	var err error
	switch change {
	case LinkAdded:
		err = p.raise(ctx, level, testCaseID)
	case LinkRemoved:
		err = p.lower(ctx, level, testCaseID)
	default:
		return fmt.Errorf("unknown link change %d", change)
	}
	if err != nil {
		return fmt.Errorf("coverage of %d changed: %w", testCaseID, err)
	}
	return nil
}

// OnCriticalityValueChanged runs after the criticality of a requirement
// version changed from oldCrit to its stored value.
func (p *Propagator) OnCriticalityValueChanged(ctx context.Context, requirementVersionID int64, oldCrit types.Criticality) error {
	rv, err := p.store.RequirementVersion(ctx, requirementVersionID)
	if err != nil {
		return err
	}
	oldLevel := p.table.ImportanceFor(oldCrit)
	newLevel := p.table.ImportanceFor(rv.Criticality)
	if oldLevel == newLevel {
		return nil
	}

	ids, err := p.store.TestCasesVerifying(ctx, requirementVersionID)
	if err != nil {
		return fmt.Errorf("reading coverage of %d: %w", requirementVersionID, err)
	}
	if newLevel > oldLevel {
		err = p.raise(ctx, newLevel, ids...)
	} else {
		err = p.lower(ctx, oldLevel, ids...)
	}
	if err != nil {
		return fmt.Errorf("criticality of %d changed: %w", requirementVersionID, err)
	}
	return nil
}

// raise lifts every auto test case on the walk that sits below level. An
// auto test case already at level stops the walk: its callers reach
// everything it reaches, so they are at level too.
func (p *Propagator) raise(ctx context.Context, level types.Importance, startIDs ...int64) error {
	return p.walk(ctx, walkRaise, startIDs, func(ctx context.Context, tc *types.TestCase) (bool, error) {
		if !tc.ImportanceAuto {
			return true, nil
		}
		if tc.Importance >= level {
			return false, nil
		}
		return true, p.set(ctx, tc, level)
	})
}

// lower re-deduces every auto test case on the walk whose importance is at
// or below ceiling. Anything above ceiling owes its level to something else.
func (p *Propagator) lower(ctx context.Context, ceiling types.Importance, startIDs ...int64) error {
	return p.walk(ctx, walkLower, startIDs, func(ctx context.Context, tc *types.TestCase) (bool, error) {
		if !tc.ImportanceAuto || tc.Importance > ceiling {
			return true, nil
		}
		return true, p.rededuce(ctx, tc)
	})
}

func (p *Propagator) rededuce(ctx context.Context, tc *types.TestCase) error {
	imp, err := p.Deduce(ctx, tc.ID)
	if err != nil {
		return err
	}
	if imp == tc.Importance {
		return nil
	}
	return p.set(ctx, tc, imp)
}

func (p *Propagator) set(ctx context.Context, tc *types.TestCase, imp types.Importance) error {
	if err := p.store.SetImportance(ctx, tc.ID, imp); err != nil {
		return fmt.Errorf("setting importance of %d: %w", tc.ID, err)
	}
	p.log.V(1).Info("importance changed", "testCase", tc.ID, "from", tc.Importance.String(), "to", imp.String())
	metrics.ImportanceChanges.Inc()
	tc.Importance = imp
	return nil
}

// visitFunc handles one test case of a walk and reports whether the walk
// goes on to its callers.
type visitFunc func(ctx context.Context, tc *types.TestCase) (bool, error)

// walk visits startIDs and then their transitive callers, layer by layer.
func (p *Propagator) walk(ctx context.Context, name string, startIDs []int64, visit visitFunc) error {
	visited := types.NewIDSet()
	var frontier []*types.TestCase
	for _, id := range startIDs {
		if visited.Has(id) {
			continue
		}
		visited.Add(id)
		tc, err := p.store.TestCase(ctx, id)
		if err != nil {
			return err
		}
		frontier = append(frontier, tc)
	}

	visits := 0
	for len(frontier) > 0 {
		var next []*types.TestCase
		for _, tc := range frontier {
			if err := ctx.Err(); err != nil {
				return err
			}
			visits++
			forward, err := visit(ctx, tc)
			if err != nil {
				return err
			}
			if !forward {
				continue
			}
			callers, err := p.store.DirectCallers(ctx, tc.ID)
			if err != nil {
				return fmt.Errorf("reading callers of %d: %w", tc.ID, err)
			}
			for _, c := range callers {
				if visited.Has(c.ID) {
					continue
				}
				visited.Add(c.ID)
				next = append(next, c)
			}
		}
		frontier = next
	}

	metrics.PropagationVisits.WithLabelValues(name).Add(float64(visits))
	p.log.V(1).Info("walk done", "walk", name, "visits", visits)
	return nil
}
