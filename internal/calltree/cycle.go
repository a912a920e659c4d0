package calltree

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/mesh-intelligence/calltree/internal/metrics"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

// CycleChecker rejects call steps that would close a cycle in the call
// graph. A call from caller to callee is cyclic when caller == callee or
// when callee already reaches caller.
type CycleChecker struct {
	finder *Finder
	store  types.CallEdgeReader
	log    logr.Logger
}

// NewCycleChecker returns a CycleChecker answering reachability through finder.
func NewCycleChecker(finder *Finder, store types.CallEdgeReader, log logr.Logger) *CycleChecker {
	return &CycleChecker{finder: finder, store: store, log: log.WithName("cycle")}
}

// WouldCreateCycle reports whether a call step from callerID to calleeID
// would close a cycle.
func (c *CycleChecker) WouldCreateCycle(ctx context.Context, callerID, calleeID int64) (bool, error) {
	if callerID == calleeID {
		return true, nil
	}
	reach, err := c.finder.DownstreamClosure(ctx, calleeID)
	if err != nil {
		return false, fmt.Errorf("checking call %d -> %d: %w", callerID, calleeID, err)
	}
	return reach.Has(callerID), nil
}

// CheckCall returns a *types.CyclicCallError when a call step from callerID
// to calleeID would close a cycle.
func (c *CycleChecker) CheckCall(ctx context.Context, callerID, calleeID int64) error {
	cyclic, err := c.WouldCreateCycle(ctx, callerID, calleeID)
	if err != nil {
		return err
	}
	if cyclic {
		metrics.CycleRejections.Inc()
		c.log.V(1).Info("rejected cyclic call", "caller", callerID, "callee", calleeID)
		return &types.CyclicCallError{CallerID: callerID, CalleeID: calleeID}
	}
	return nil
}

// CheckPaste checks every distinct callee among steps against
// destinationID, the test case that will own the pasted steps.
func (c *CycleChecker) CheckPaste(ctx context.Context, destinationID int64, steps []*types.Step) error {
	return c.checkCallees(ctx, destinationID, types.CalledTestCaseIDs(steps))
}

// CheckCopyFrom checks pasting every step of sourceID into destinationID.
func (c *CycleChecker) CheckCopyFrom(ctx context.Context, destinationID, sourceID int64) error {
	callees, err := c.store.DirectCallees(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("reading callees of %d: %w", sourceID, err)
	}
	return c.checkCallees(ctx, destinationID, callees)
}

func (c *CycleChecker) checkCallees(ctx context.Context, destinationID int64, callees []int64) error {
	checked := types.NewIDSet()
	for _, callee := range callees {
		if checked.Has(callee) {
			continue
		}
		checked.Add(callee)
		if err := c.CheckCall(ctx, destinationID, callee); err != nil {
			return err
		}
	}
	return nil
}
