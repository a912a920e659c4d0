package steps

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/calltree/internal/calltree"
	"github.com/mesh-intelligence/calltree/internal/importance"
	"github.com/mesh-intelligence/calltree/internal/lock"
	"github.com/mesh-intelligence/calltree/internal/metrics"
	"github.com/mesh-intelligence/calltree/internal/sqlite"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

type env struct {
	t       *testing.T
	ctx     context.Context
	store   *sqlite.Backend
	finder  *calltree.Finder
	mutator *Mutator
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })

	finder := calltree.NewFinder(b, logr.Discard())
	checker := calltree.NewCycleChecker(finder, b, logr.Discard())
	prop := importance.NewPropagator(b, finder, importance.DefaultTable(), logr.Discard())
	return &env{
		t:       t,
		ctx:     context.Background(),
		store:   b,
		finder:  finder,
		mutator: NewMutator(b, checker, prop, opts...),
	}
}

func (e *env) testCases(names ...string) []int64 {
	e.t.Helper()
	ids := make([]int64, len(names))
	for i, n := range names {
		id, err := e.store.CreateTestCase(e.ctx, &types.TestCase{Name: n, ImportanceAuto: true})
		require.NoError(e.t, err)
		ids[i] = id
	}
	return ids
}

func (e *env) callees(id int64) []int64 {
	e.t.Helper()
	out, err := e.store.DirectCallees(e.ctx, id)
	require.NoError(e.t, err)
	return out
}

func (e *env) downstream(id int64) []int64 {
	e.t.Helper()
	out, err := e.finder.DownstreamClosure(e.ctx, id)
	require.NoError(e.t, err)
	return out.Sorted()
}

func (e *env) importanceOf(id int64) types.Importance {
	e.t.Helper()
	tc, err := e.store.TestCase(e.ctx, id)
	require.NoError(e.t, err)
	return tc.Importance
}

func (e *env) requirement(c types.Criticality) int64 {
	e.t.Helper()
	id, err := e.store.CreateRequirementVersion(e.ctx, &types.RequirementVersion{Name: "REQ-" + c.String(), Criticality: c})
	require.NoError(e.t, err)
	return id
}

// mutatorOver builds a second mutator persisting through store and sharing
// the env's database for propagation.
func (e *env) mutatorOver(store types.GraphStore, opts ...Option) *Mutator {
	checker := calltree.NewCycleChecker(e.finder, e.store, logr.Discard())
	prop := importance.NewPropagator(e.store, e.finder, importance.DefaultTable(), logr.Discard())
	return NewMutator(store, checker, prop, opts...)
}

// stepReads intercepts Step reads of a backend.
type stepReads struct {
	*sqlite.Backend
	fail   error
	onRead func(n int)
	n      int
}

func (s *stepReads) Step(ctx context.Context, id int64) (*types.Step, error) {
	s.n++
	if s.onRead != nil {
		s.onRead(s.n)
	}
	if s.fail != nil {
		return nil, s.fail
	}
	return s.Backend.Step(ctx, id)
}

func TestScenario_CycleRejectedGraphUnchanged(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("1", "2", "3")

	_, err := e.mutator.AddCallStep(e.ctx, ids[0], ids[1], types.AppendPosition)
	require.NoError(t, err)

	_, err = e.mutator.AddCallStep(e.ctx, ids[1], ids[0], types.AppendPosition)
	var cyc *types.CyclicCallError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, ids[1], cyc.CallerID)

	assert.Equal(t, []int64{ids[1]}, e.callees(ids[0]))
	assert.Empty(t, e.callees(ids[1]))
	assert.Empty(t, e.callees(ids[2]))
}

func TestScenario_RemoveStepShrinksClosure(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("1", "2", "3")

	_, err := e.mutator.AddCallStep(e.ctx, ids[0], ids[1], types.AppendPosition)
	require.NoError(t, err)
	step, err := e.mutator.AddCallStep(e.ctx, ids[1], ids[2], types.AppendPosition)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[2]}, e.downstream(ids[0]))

	require.NoError(t, e.mutator.RemoveStep(e.ctx, ids[1], step.ID))
	assert.Equal(t, []int64{ids[1]}, e.downstream(ids[0]))
}

func TestScenario_CallRaisesImportance(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("T1", "T2")
	t1, t2 := ids[0], ids[1]
	require.NoError(t, e.mutator.BindRequirement(e.ctx, t2, e.requirement(types.CriticalityCritical)))
	require.Equal(t, types.ImportanceLow, e.importanceOf(t1))

	_, err := e.mutator.AddCallStep(e.ctx, t1, t2, types.AppendPosition)
	require.NoError(t, err)
	assert.Equal(t, types.ImportanceVeryHigh, e.importanceOf(t1))
}

func TestAddCallStep(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("caller", "callee", "other")

	tests := []struct {
		name           string
		caller, callee int64
		wantErr        error
	}{
		{"self call", ids[0], ids[0], types.ErrCyclicCall},
		{"unknown callee", ids[0], 404, types.ErrNotFound},
		{"unknown caller", 404, ids[0], types.ErrNotFound},
		{"valid", ids[0], ids[1], nil},
		{"duplicate call is allowed", ids[0], ids[1], nil},
		{"back edge", ids[1], ids[0], types.ErrCyclicCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := e.mutator.AddCallStep(e.ctx, tt.caller, tt.callee, types.AppendPosition)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, step)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.StepKindCall, step.Kind)
			assert.Equal(t, tt.callee, step.Call.CalledTestCaseID)
		})
	}
	assert.Equal(t, []int64{ids[1], ids[1]}, e.callees(ids[0]))
}

func TestAddCallStep_Position(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("caller", "a", "b")
	_, err := e.store.CreateActionStep(e.ctx, ids[0], types.ActionStep{Action: "first"}, types.AppendPosition)
	require.NoError(t, err)
	_, err = e.mutator.AddCallStep(e.ctx, ids[0], ids[1], types.AppendPosition)
	require.NoError(t, err)

	step, err := e.mutator.AddCallStep(e.ctx, ids[0], ids[2], 0)
	require.NoError(t, err)
	assert.Equal(t, 0, step.Position)
	assert.Equal(t, []int64{ids[2], ids[1]}, e.callees(ids[0]))
}

func TestAddCallStep_Metrics(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("a")
	rejected := metrics.MutatorOperations.WithLabelValues("add_call_step", metrics.StatusRejected)
	before := testutil.ToFloat64(rejected)

	_, err := e.mutator.AddCallStep(e.ctx, ids[0], ids[0], types.AppendPosition)
	require.ErrorIs(t, err, types.ErrCyclicCall)
	assert.Equal(t, before+1, testutil.ToFloat64(rejected))
}

func TestAddCallStep_ConcurrentComplementaryCalls(t *testing.T) {
	e := newEnv(t)

	for round := 0; round < 5; round++ {
		ids := e.testCases("a", "b")
		var (
			wg   sync.WaitGroup
			errs [2]error
		)
		pairs := [2][2]int64{{ids[0], ids[1]}, {ids[1], ids[0]}}
		for i, p := range pairs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = e.mutator.AddCallStep(e.ctx, p[0], p[1], types.AppendPosition)
			}()
		}
		wg.Wait()

		failures := 0
		for _, err := range errs {
			if err != nil {
				require.ErrorIs(t, err, types.ErrCyclicCall)
				failures++
			}
		}
		assert.Equal(t, 1, failures, "exactly one of two complementary calls wins")
		assert.NotContains(t, e.downstream(ids[0]), ids[0])
	}
}

func TestAddCallSteps_BestEffort(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("root", "a", "b", "c")
	_, err := e.mutator.AddCallStep(e.ctx, ids[2], ids[0], types.AppendPosition)
	require.NoError(t, err)

	created, err := e.mutator.AddCallSteps(e.ctx, ids[0], []int64{ids[1], ids[2], ids[3], ids[0]})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCyclicCall)
	assert.Len(t, created, 2)
	assert.Equal(t, []int64{ids[1], ids[3]}, e.callees(ids[0]))
}

func TestAddCallSteps_UnreadableCalleeMutatesNothing(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("root", "a")

	created, err := e.mutator.AddCallSteps(e.ctx, ids[0], []int64{ids[1], 404})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Empty(t, created)
	assert.Empty(t, e.callees(ids[0]))
}

func TestRemoveStep(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("caller", "callee", "stranger")
	step, err := e.mutator.AddCallStep(e.ctx, ids[0], ids[1], types.AppendPosition)
	require.NoError(t, err)

	assert.ErrorIs(t, e.mutator.RemoveStep(e.ctx, ids[2], step.ID), types.ErrStepNotOwned)
	assert.ErrorIs(t, e.mutator.RemoveStep(e.ctx, ids[0], 404), types.ErrNotFound)
	assert.Equal(t, []int64{ids[1]}, e.callees(ids[0]))

	action, err := e.store.CreateActionStep(e.ctx, ids[0], types.ActionStep{Action: "x"}, types.AppendPosition)
	require.NoError(t, err)
	require.NoError(t, e.mutator.RemoveStep(e.ctx, ids[0], action))
	require.NoError(t, e.mutator.RemoveStep(e.ctx, ids[0], step.ID))
	assert.Empty(t, e.callees(ids[0]))
}

func TestRemoveStep_LowersImportance(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("caller", "callee")
	require.NoError(t, e.mutator.BindRequirement(e.ctx, ids[1], e.requirement(types.CriticalityMajor)))
	step, err := e.mutator.AddCallStep(e.ctx, ids[0], ids[1], types.AppendPosition)
	require.NoError(t, err)
	require.Equal(t, types.ImportanceHigh, e.importanceOf(ids[0]))

	require.NoError(t, e.mutator.RemoveStep(e.ctx, ids[0], step.ID))
	assert.Equal(t, types.ImportanceLow, e.importanceOf(ids[0]))
}

func TestPasteSteps(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("source", "x", "dest", "unrelated")
	source, x, dest, unrelated := ids[0], ids[1], ids[2], ids[3]

	call, err := e.mutator.AddCallStep(e.ctx, source, x, types.AppendPosition)
	require.NoError(t, err)
	action, err := e.store.CreateActionStep(e.ctx, source, types.ActionStep{Action: "click"}, types.AppendPosition)
	require.NoError(t, err)
	_, err = e.mutator.AddCallStep(e.ctx, x, dest, types.AppendPosition)
	require.NoError(t, err)

	// x calls dest, so dest may not call x.
	has, err := e.mutator.PasteSteps(e.ctx, dest, []int64{action, call.ID}, types.AppendPosition)
	assert.ErrorIs(t, err, types.ErrCyclicCall)
	assert.False(t, has)
	tc, err := e.store.TestCase(e.ctx, dest)
	require.NoError(t, err)
	assert.Empty(t, tc.Steps, "rejected paste changes nothing")

	has, err = e.mutator.PasteSteps(e.ctx, unrelated, []int64{action, call.ID}, types.AppendPosition)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, []int64{x}, e.callees(unrelated))

	has, err = e.mutator.PasteSteps(e.ctx, dest, []int64{action}, types.AppendPosition)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPasteSteps_RaisesImportance(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("source", "critical", "dest")
	require.NoError(t, e.mutator.BindRequirement(e.ctx, ids[1], e.requirement(types.CriticalityCritical)))
	call, err := e.mutator.AddCallStep(e.ctx, ids[0], ids[1], types.AppendPosition)
	require.NoError(t, err)

	_, err = e.mutator.PasteSteps(e.ctx, ids[2], []int64{call.ID}, types.AppendPosition)
	require.NoError(t, err)
	assert.Equal(t, types.ImportanceVeryHigh, e.importanceOf(ids[2]))
}

func TestCopyStepsFrom(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("source", "helper", "dest", "top")
	source, helper, dest, top := ids[0], ids[1], ids[2], ids[3]

	_, err := e.mutator.AddCallStep(e.ctx, source, helper, types.AppendPosition)
	require.NoError(t, err)
	_, err = e.store.CreateKeywordStep(e.ctx, source, types.KeywordStep{Keyword: "then", Text: "done"}, types.AppendPosition)
	require.NoError(t, err)
	_, err = e.mutator.AddCallStep(e.ctx, helper, dest, types.AppendPosition)
	require.NoError(t, err)

	_, err = e.mutator.CopyStepsFrom(e.ctx, dest, source, types.AppendPosition)
	assert.ErrorIs(t, err, types.ErrCyclicCall)

	has, err := e.mutator.CopyStepsFrom(e.ctx, top, source, types.AppendPosition)
	require.NoError(t, err)
	assert.True(t, has)

	tc, err := e.store.TestCase(e.ctx, top)
	require.NoError(t, err)
	require.Len(t, tc.Steps, 2)
	assert.Equal(t, types.StepKindCall, tc.Steps[0].Kind)
	assert.Equal(t, types.StepKindKeyword, tc.Steps[1].Kind)
}

func TestChangeParameterMode(t *testing.T) {
	var recomputed []int64
	e := newEnv(t, WithDatasetRecomputer(DatasetRecomputerFunc(func(_ context.Context, id int64) error {
		recomputed = append(recomputed, id)
		return nil
	})))
	ids := e.testCases("caller", "callee")
	caller, callee := ids[0], ids[1]

	own, err := e.store.CreateDataset(e.ctx, &types.Dataset{TestCaseID: callee, Name: "admin"})
	require.NoError(t, err)
	foreign, err := e.store.CreateDataset(e.ctx, &types.Dataset{TestCaseID: caller, Name: "mine"})
	require.NoError(t, err)
	call, err := e.mutator.AddCallStep(e.ctx, caller, callee, types.AppendPosition)
	require.NoError(t, err)
	action, err := e.store.CreateActionStep(e.ctx, caller, types.ActionStep{Action: "x"}, types.AppendPosition)
	require.NoError(t, err)

	tests := []struct {
		name     string
		stepID   int64
		mode     types.ParameterMode
		dataset  *int64
		wantErr  error
		wantMode types.ParameterMode
	}{
		{"delegate", call.ID, types.ParameterModeDelegate, nil, nil, types.ParameterModeDelegate},
		{"dataset without id", call.ID, types.ParameterModeCalledDataset, nil, types.ErrInvalidModeArgument, types.ParameterModeDelegate},
		{"nothing with id", call.ID, types.ParameterModeNothing, &own, types.ErrInvalidModeArgument, types.ParameterModeDelegate},
		{"dataset of another test case", call.ID, types.ParameterModeCalledDataset, &foreign, types.ErrInvalidModeArgument, types.ParameterModeDelegate},
		{"unknown dataset", call.ID, types.ParameterModeCalledDataset, ptr(int64(404)), types.ErrNotFound, types.ParameterModeDelegate},
		{"called dataset", call.ID, types.ParameterModeCalledDataset, &own, nil, types.ParameterModeCalledDataset},
		{"unknown mode", call.ID, types.ParameterMode("SOMETIMES"), nil, types.ErrInvalidModeArgument, types.ParameterModeCalledDataset},
		{"back to nothing", call.ID, types.ParameterModeNothing, nil, nil, types.ParameterModeNothing},
		{"action step", action, types.ParameterModeDelegate, nil, types.ErrInvalidModeArgument, types.ParameterModeNothing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.mutator.ChangeParameterMode(e.ctx, tt.stepID, tt.mode, tt.dataset)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			got, err := e.store.Step(e.ctx, call.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, got.Call.Mode())
		})
	}
	assert.Equal(t, []int64{caller, caller, caller}, recomputed, "hook runs once per successful change")
}

func TestChangeParameterMode_HookError(t *testing.T) {
	boom := errors.New("dataset service down")
	e := newEnv(t, WithDatasetRecomputer(DatasetRecomputerFunc(func(context.Context, int64) error { return boom })))
	ids := e.testCases("caller", "callee")
	call, err := e.mutator.AddCallStep(e.ctx, ids[0], ids[1], types.AppendPosition)
	require.NoError(t, err)

	assert.ErrorIs(t, e.mutator.ChangeParameterMode(e.ctx, call.ID, types.ParameterModeDelegate, nil), boom)

	got, err := e.store.Step(e.ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ParameterModeDelegate, got.Call.Mode(), "mode change is kept")
}

func TestChangeParameterMode_ReadsStepUnderLock(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("caller", "callee")
	call, err := e.mutator.AddCallStep(e.ctx, ids[0], ids[1], types.AppendPosition)
	require.NoError(t, err)

	locks := lock.NewManager()
	var held []bool
	store := &stepReads{Backend: e.store, onRead: func(int) {
		_, ok := locks.Holder(ids[0])
		held = append(held, ok)
	}}
	m := e.mutatorOver(store, WithLocks(locks))

	require.NoError(t, m.ChangeParameterMode(e.ctx, call.ID, types.ParameterModeDelegate, nil))
	require.NotEmpty(t, held)
	assert.True(t, held[len(held)-1], "the step that gets updated is read under the owner lock")
}

func TestChangeParameterMode_StepRemovedBeforeLock(t *testing.T) {
	var recomputed []int64
	e := newEnv(t)
	ids := e.testCases("caller", "callee")
	call, err := e.mutator.AddCallStep(e.ctx, ids[0], ids[1], types.AppendPosition)
	require.NoError(t, err)

	store := &stepReads{Backend: e.store}
	store.onRead = func(n int) {
		// The step goes away after the unlocked lookup.
		if n == 2 {
			require.NoError(t, e.store.DeleteStep(e.ctx, call.ID))
		}
	}
	m := e.mutatorOver(store, WithDatasetRecomputer(DatasetRecomputerFunc(func(_ context.Context, id int64) error {
		recomputed = append(recomputed, id)
		return nil
	})))

	assert.ErrorIs(t, m.ChangeParameterMode(e.ctx, call.ID, types.ParameterModeDelegate, nil), types.ErrNotFound)
	assert.Empty(t, recomputed)
}

func TestAddCallStep_PropagatesWhenReadBackFails(t *testing.T) {
	e := newEnv(t)
	ids := e.testCases("caller", "callee")
	caller, callee := ids[0], ids[1]
	require.NoError(t, e.mutator.BindRequirement(e.ctx, callee, e.requirement(types.CriticalityCritical)))

	readErr := errors.New("connection reset")
	m := e.mutatorOver(&stepReads{Backend: e.store, fail: readErr})

	step, err := m.AddCallStep(e.ctx, caller, callee, types.AppendPosition)
	assert.ErrorIs(t, err, readErr)
	assert.Nil(t, step)

	assert.Equal(t, []int64{callee}, e.callees(caller), "the call is committed")
	assert.Equal(t, types.ImportanceVeryHigh, e.importanceOf(caller))
}

func ptr[T any](v T) *T { return &v }
