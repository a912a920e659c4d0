package types

import (
	"errors"
	"fmt"
)

// Store operation errors.
var (
	ErrNotFound     = errors.New("entity not found")
	ErrInvalidID    = errors.New("invalid entity ID")
	ErrInvalidData  = errors.New("invalid entity data")
	ErrInvalidName  = errors.New("invalid name")
	ErrStepNotOwned = errors.New("step does not belong to the test case")
	ErrDuplicate    = errors.New("relation already exists")
)

// Store lifecycle errors.
var (
	ErrBackendDetached = errors.New("backend is detached")
	ErrAlreadyAttached = errors.New("backend is already attached")
)

// Enumeration errors.
var (
	ErrInvalidImportance  = errors.New("invalid importance")
	ErrInvalidCriticality = errors.New("invalid criticality")
)

// Call graph errors.
var (
	// ErrCyclicCall matches every *CyclicCallError through errors.Is.
	ErrCyclicCall = errors.New("call step would create a cycle")

	// ErrInvalidModeArgument reports an inconsistent parameter assignation
	// mode transition, e.g. CALLED_DATASET without a dataset.
	ErrInvalidModeArgument = errors.New("invalid parameter assignation mode argument")
)

// Lock errors.
var (
	ErrLockHeld      = errors.New("lock is held")
	ErrNotLockHolder = errors.New("caller is not the lock holder")
)

// CyclicCallError rejects a call step from CallerID to CalleeID because
// CalleeID already reaches CallerID (or they are the same test case).
type CyclicCallError struct {
	CallerID int64
	CalleeID int64
}

func (e *CyclicCallError) Error() string {
	if e.CallerID == e.CalleeID {
		return fmt.Sprintf("test case %d cannot call itself", e.CallerID)
	}
	return fmt.Sprintf("test case %d cannot call test case %d: %d already calls %d", e.CallerID, e.CalleeID, e.CalleeID, e.CallerID)
}

// Is makes errors.Is(err, ErrCyclicCall) true.
func (e *CyclicCallError) Is(target error) bool {
	return target == ErrCyclicCall
}
