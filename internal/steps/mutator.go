// Package steps mutates the step lists of test cases while keeping the call
// graph acyclic and importance values current.
//
// Every structural mutation follows the same protocol: take the lock of the
// test case whose steps change (and the graph lock when call edges are
// added), run the cycle check, persist, release the locks, then propagate
// importance. A rejected mutation changes nothing.
// Propagation runs after the commit and is never rolled back into it; its
// failures are returned wrapped in ErrPropagation.
package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/calltree/internal/calltree"
	"github.com/mesh-intelligence/calltree/internal/importance"
	"github.com/mesh-intelligence/calltree/internal/lock"
	"github.com/mesh-intelligence/calltree/internal/metrics"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

// ErrPropagation wraps importance propagation failures. The structural
// change that triggered the propagation is committed.
var ErrPropagation = errors.New("importance propagation failed")

// DatasetRecomputer recomputes the derived datasets of a test case after
// the parameter mode of one of its call steps changed.
type DatasetRecomputer interface {
	RecomputeDatasets(ctx context.Context, testCaseID int64) error
}

// DatasetRecomputerFunc adapts a function to DatasetRecomputer.
type DatasetRecomputerFunc func(ctx context.Context, testCaseID int64) error

// RecomputeDatasets calls f.
func (f DatasetRecomputerFunc) RecomputeDatasets(ctx context.Context, testCaseID int64) error {
	return f(ctx, testCaseID)
}

var noDatasets = DatasetRecomputerFunc(func(context.Context, int64) error { return nil })

// Mutator applies step graph mutations.
type Mutator struct {
	store    types.GraphStore
	checker  *calltree.CycleChecker
	prop     *importance.Propagator
	locks    *lock.Manager
	datasets DatasetRecomputer
	log      logr.Logger
	tracer   trace.Tracer
}

// Option configures a Mutator.
type Option func(*Mutator)

// WithLocks shares a lock manager between mutators. By default each
// Mutator has its own.
func WithLocks(m *lock.Manager) Option {
	return func(mu *Mutator) { mu.locks = m }
}

// WithDatasetRecomputer sets the hook run after parameter mode changes.
func WithDatasetRecomputer(r DatasetRecomputer) Option {
	return func(mu *Mutator) { mu.datasets = r }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l logr.Logger) Option {
	return func(mu *Mutator) { mu.log = l }
}

// NewMutator returns a Mutator persisting through store.
func NewMutator(store types.GraphStore, checker *calltree.CycleChecker, prop *importance.Propagator, opts ...Option) *Mutator {
	m := &Mutator{
		store:    store,
		checker:  checker,
		prop:     prop,
		locks:    lock.NewManager(),
		datasets: noDatasets,
		log:      logr.Discard(),
		tracer:   otel.Tracer("calltree/steps"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithName("steps")
	return m
}

// withLock runs fn while holding the lock of testCaseID.
func (m *Mutator) withLock(ctx context.Context, testCaseID int64, fn func() error) error {
	tok, err := m.locks.Acquire(ctx, testCaseID)
	if err != nil {
		return err
	}
	defer m.locks.Release(tok)
	return fn()
}

// withCallLock runs fn holding the lock of callerID and then the graph
// lock. Always taken in that order.
func (m *Mutator) withCallLock(ctx context.Context, callerID int64, fn func() error) error {
	return m.withLock(ctx, callerID, func() error {
		return m.withLock(ctx, lock.GraphLockID, fn)
	})
}

// start opens a span for op and returns a logger tagged with a fresh
// operation id.
func (m *Mutator) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, logr.Logger) {
	opID := uuid.Must(uuid.NewV7()).String()
	attrs = append(attrs, attribute.String("calltree.operation_id", opID))
	ctx, span := m.tracer.Start(ctx, "steps."+op, trace.WithAttributes(attrs...))
	return ctx, span, m.log.WithValues("op", op, "opID", opID)
}

// finish records the outcome of op on its span and metrics.
func (m *Mutator) finish(span trace.Span, log logr.Logger, op string, err error) {
	defer span.End()

	status := metrics.StatusOK
	switch {
	case err == nil:
		log.V(1).Info("done")
	case errors.Is(err, types.ErrCyclicCall), errors.Is(err, types.ErrInvalidModeArgument):
		status = metrics.StatusRejected
		span.SetStatus(codes.Error, err.Error())
		log.V(1).Info("rejected", "reason", err.Error())
	default:
		status = metrics.StatusError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error(err, "failed")
	}
	metrics.MutatorOperations.WithLabelValues(op, status).Inc()
}

func propagationError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPropagation, err)
}

// AddCallStep inserts a call step from callerID to calleeID at position
// (types.AppendPosition to append). Returns a *types.CyclicCallError and
// changes nothing if the call would close a cycle.
func (m *Mutator) AddCallStep(ctx context.Context, callerID, calleeID int64, position int) (step *types.Step, err error) {
	ctx, span, log := m.start(ctx, "add_call_step",
		attribute.Int64("calltree.caller_id", callerID),
		attribute.Int64("calltree.callee_id", calleeID),
	)
	defer func() { m.finish(span, log, "add_call_step", err) }()

	return m.addCallStep(ctx, callerID, calleeID, position)
}

func (m *Mutator) addCallStep(ctx context.Context, callerID, calleeID int64, position int) (*types.Step, error) {
	var stepID int64
	err := m.withCallLock(ctx, callerID, func() error {
		if err := m.checker.CheckCall(ctx, callerID, calleeID); err != nil {
			return err
		}
		id, err := m.store.CreateCallStep(ctx, callerID, calleeID, position)
		if err != nil {
			return fmt.Errorf("creating call step %d -> %d: %w", callerID, calleeID, err)
		}
		stepID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	propErr := propagationError(m.prop.OnCallEdgeAdded(ctx, calleeID, callerID))
	step, err := m.store.Step(ctx, stepID)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("reading call step %d: %w", stepID, err), propErr)
	}
	return step, propErr
}

// RemoveStep deletes a step of callerID. Removing a call step lowers the
// importance it was holding up.
func (m *Mutator) RemoveStep(ctx context.Context, callerID, stepID int64) (err error) {
	ctx, span, log := m.start(ctx, "remove_step",
		attribute.Int64("calltree.caller_id", callerID),
		attribute.Int64("calltree.step_id", stepID),
	)
	defer func() { m.finish(span, log, "remove_step", err) }()

	var removed *types.Step
	err = m.withLock(ctx, callerID, func() error {
		step, err := m.store.Step(ctx, stepID)
		if err != nil {
			return err
		}
		if step.TestCaseID != callerID {
			return fmt.Errorf("step %d of test case %d: %w", stepID, callerID, types.ErrStepNotOwned)
		}
		if err := m.store.DeleteStep(ctx, stepID); err != nil {
			return err
		}
		removed = step
		return nil
	})
	if err != nil {
		return err
	}

	if removed.Kind != types.StepKindCall {
		return nil
	}
	return propagationError(m.prop.OnCallEdgeRemoved(ctx, removed.Call.CalledTestCaseID, callerID))
}

// PasteSteps copies the steps sourceStepIDs into destinationID at position.
// Call steps are checked against destinationID. Reports whether any call
// step was pasted.
func (m *Mutator) PasteSteps(ctx context.Context, destinationID int64, sourceStepIDs []int64, position int) (hasCallStep bool, err error) {
	ctx, span, log := m.start(ctx, "paste_steps",
		attribute.Int64("calltree.destination_id", destinationID),
		attribute.Int("calltree.steps", len(sourceStepIDs)),
	)
	defer func() { m.finish(span, log, "paste_steps", err) }()

	var callees []int64
	err = m.withCallLock(ctx, destinationID, func() error {
		steps, err := m.store.Steps(ctx, sourceStepIDs)
		if err != nil {
			return err
		}
		if err := m.checker.CheckPaste(ctx, destinationID, steps); err != nil {
			return err
		}
		if _, err := m.store.CopySteps(ctx, destinationID, steps, position); err != nil {
			return fmt.Errorf("pasting into %d: %w", destinationID, err)
		}
		callees = types.CalledTestCaseIDs(steps)
		return nil
	})
	if err != nil {
		return false, err
	}
	return len(callees) > 0, m.propagateAdded(ctx, destinationID, callees)
}

// CopyStepsFrom pastes every step of sourceID into destinationID at
// position. Reports whether any call step was copied.
func (m *Mutator) CopyStepsFrom(ctx context.Context, destinationID, sourceID int64, position int) (hasCallStep bool, err error) {
	ctx, span, log := m.start(ctx, "copy_steps_from",
		attribute.Int64("calltree.destination_id", destinationID),
		attribute.Int64("calltree.source_id", sourceID),
	)
	defer func() { m.finish(span, log, "copy_steps_from", err) }()

	var callees []int64
	err = m.withCallLock(ctx, destinationID, func() error {
		if err := m.checker.CheckCopyFrom(ctx, destinationID, sourceID); err != nil {
			return err
		}
		src, err := m.store.TestCase(ctx, sourceID)
		if err != nil {
			return err
		}
		if _, err := m.store.CopySteps(ctx, destinationID, src.Steps, position); err != nil {
			return fmt.Errorf("copying %d into %d: %w", sourceID, destinationID, err)
		}
		callees = types.CalledTestCaseIDs(src.Steps)
		return nil
	})
	if err != nil {
		return false, err
	}
	return len(callees) > 0, m.propagateAdded(ctx, destinationID, callees)
}

func (m *Mutator) propagateAdded(ctx context.Context, callerID int64, callees []int64) error {
	var errs []error
	for _, callee := range callees {
		if err := m.prop.OnCallEdgeAdded(ctx, callee, callerID); err != nil {
			errs = append(errs, err)
		}
	}
	return propagationError(errors.Join(errs...))
}

// ChangeParameterMode switches how a call step feeds parameters to its
// callee. CALLED_DATASET needs a dataset of the called test case. The
// dataset hook runs for the owning test case afterwards.
func (m *Mutator) ChangeParameterMode(ctx context.Context, stepID int64, mode types.ParameterMode, datasetID *int64) (err error) {
	ctx, span, log := m.start(ctx, "change_parameter_mode",
		attribute.Int64("calltree.step_id", stepID),
		attribute.String("calltree.mode", string(mode)),
	)
	defer func() { m.finish(span, log, "change_parameter_mode", err) }()

	// Steps never change owner, so the unlocked read only picks the lock.
	owner, err := m.store.Step(ctx, stepID)
	if err != nil {
		return err
	}

	err = m.withLock(ctx, owner.TestCaseID, func() error {
		step, err := m.store.Step(ctx, stepID)
		if err != nil {
			return err
		}
		if step.Kind != types.StepKindCall {
			return fmt.Errorf("%w: step %d is not a call step", types.ErrInvalidModeArgument, stepID)
		}
		if mode == types.ParameterModeCalledDataset && datasetID != nil {
			ds, err := m.store.Dataset(ctx, *datasetID)
			if err != nil {
				return err
			}
			if ds.TestCaseID != step.Call.CalledTestCaseID {
				return fmt.Errorf("%w: dataset %d does not belong to test case %d",
					types.ErrInvalidModeArgument, ds.ID, step.Call.CalledTestCaseID)
			}
		}
		if err := step.Call.SetMode(mode, datasetID); err != nil {
			return err
		}
		return m.store.UpdateCallStep(ctx, step)
	})
	if err != nil {
		return err
	}

	if err := m.datasets.RecomputeDatasets(ctx, owner.TestCaseID); err != nil {
		return fmt.Errorf("recomputing datasets of %d: %w", owner.TestCaseID, err)
	}
	return nil
}
