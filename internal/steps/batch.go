package steps

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

// batchReadLimit bounds concurrent reads during the batch pre-check.
const batchReadLimit = 4

// AddCallSteps appends a call step from callerID to each of calleeIDs. The
// caller and every callee must be readable before anything is created; after
// that each call is added on its own and rejected ones are skipped. The
// returned error joins the per-callee failures.
func (m *Mutator) AddCallSteps(ctx context.Context, callerID int64, calleeIDs []int64) (created []*types.Step, err error) {
	ctx, span, log := m.start(ctx, "add_call_steps",
		attribute.Int64("calltree.caller_id", callerID),
		attribute.Int("calltree.callees", len(calleeIDs)),
	)
	defer func() { m.finish(span, log, "add_call_steps", err) }()

	if err := m.readable(ctx, append([]int64{callerID}, calleeIDs...)); err != nil {
		return nil, err
	}

	var errs []error
	for _, callee := range calleeIDs {
		step, err := m.addCallStep(ctx, callerID, callee, types.AppendPosition)
		if step != nil {
			created = append(created, step)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("callee %d: %w", callee, err))
		}
	}
	return created, errors.Join(errs...)
}

// readable loads every id and fails on the first one that cannot be read.
func (m *Mutator) readable(ctx context.Context, ids []int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchReadLimit)
	for _, id := range types.NewIDSet(ids...).Sorted() {
		g.Go(func() error {
			if _, err := m.store.TestCase(gctx, id); err != nil {
				return fmt.Errorf("reading test case %d: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
