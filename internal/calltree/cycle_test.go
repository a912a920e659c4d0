package calltree

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/calltree/internal/metrics"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

func newChecker(store types.CallEdgeReader) *CycleChecker {
	return NewCycleChecker(NewFinder(store, logr.Discard()), store, logr.Discard())
}

func TestWouldCreateCycle(t *testing.T) {
	// 1 -> 2 -> 3, 4 isolated
	c := newChecker(&edgeList{edges: [][2]int64{{1, 2}, {2, 3}}})

	tests := []struct {
		name           string
		caller, callee int64
		want           bool
	}{
		{"self call", 4, 4, true},
		{"direct back edge", 2, 1, true},
		{"transitive back edge", 3, 1, true},
		{"forward shortcut", 1, 3, false},
		{"disjoint", 4, 1, false},
		{"into isolated", 3, 4, false},
		{"duplicate forward edge", 1, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.WouldCreateCycle(context.Background(), tt.caller, tt.callee)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckCall_ReturnsCyclicCallError(t *testing.T) {
	c := newChecker(&edgeList{edges: [][2]int64{{1, 2}}})
	before := testutil.ToFloat64(metrics.CycleRejections)

	err := c.CheckCall(context.Background(), 2, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrCyclicCall))

	var cyc *types.CyclicCallError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, int64(2), cyc.CallerID)
	assert.Equal(t, int64(1), cyc.CalleeID)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CycleRejections))

	assert.NoError(t, c.CheckCall(context.Background(), 1, 2))
}

func TestCheckPaste_ChecksAgainstDestination(t *testing.T) {
	// S (10) calls X (1); destination D (2) is called by X.
	store := &edgeList{edges: [][2]int64{{10, 1}, {1, 2}}}
	c := newChecker(store)
	ctx := context.Background()

	toX := &types.Step{Kind: types.StepKindCall, Call: &types.CallStep{CalledTestCaseID: 1}}
	toS := &types.Step{Kind: types.StepKindCall, Call: &types.CallStep{CalledTestCaseID: 10}}
	action := &types.Step{Kind: types.StepKindAction, Action: &types.ActionStep{Action: "click"}}

	err := c.CheckPaste(ctx, 2, []*types.Step{action, toX})
	var cyc *types.CyclicCallError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, int64(2), cyc.CallerID)
	assert.Equal(t, int64(1), cyc.CalleeID)

	// The same step pasted into an unrelated test case is fine.
	assert.NoError(t, c.CheckPaste(ctx, 30, []*types.Step{toX, toX}))

	// Pasting into the callee itself is a self call.
	assert.ErrorIs(t, c.CheckPaste(ctx, 10, []*types.Step{toS}), types.ErrCyclicCall)

	assert.NoError(t, c.CheckPaste(ctx, 2, []*types.Step{action}))
}

func TestCheckCopyFrom(t *testing.T) {
	ctx := context.Background()
	f, b := newSQLiteFinder(t)
	ids := buildGraph(t, b,
		[]string{"source", "helper", "dest", "top"},
		[][2]string{{"source", "helper"}, {"helper", "dest"}, {"top", "source"}},
	)
	c := NewCycleChecker(f, b, logr.Discard())

	// dest would call helper, which already calls dest.
	assert.ErrorIs(t, c.CheckCopyFrom(ctx, ids["dest"], ids["source"]), types.ErrCyclicCall)
	assert.NoError(t, c.CheckCopyFrom(ctx, ids["top"], ids["source"]))
}

func TestAcyclicityHoldsUnderRandomInsertions(t *testing.T) {
	ctx := context.Background()
	f, b := newSQLiteFinder(t)
	c := NewCycleChecker(f, b, logr.Discard())

	names := []string{"n0", "n1", "n2", "n3", "n4", "n5"}
	ids := buildGraph(t, b, names, nil)
	// Deterministic pseudo-random pair sequence covering every ordered pair.
	for step := 0; step < 60; step++ {
		caller := ids[names[(step*7+3)%len(names)]]
		callee := ids[names[(step*5+1)%len(names)]]
		if err := c.CheckCall(ctx, caller, callee); err != nil {
			require.ErrorIs(t, err, types.ErrCyclicCall)
			continue
		}
		_, err := b.CreateCallStep(ctx, caller, callee, types.AppendPosition)
		require.NoError(t, err)
	}

	for _, id := range ids {
		reach, err := f.DownstreamClosure(ctx, id)
		require.NoError(t, err)
		assert.False(t, reach.Has(id), "test case %d reaches itself", id)
	}
}
