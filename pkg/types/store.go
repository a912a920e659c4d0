package types

import "context"

// CallEdgeReader answers one-hop questions over persisted call steps.
type CallEdgeReader interface {
	// CalleesOf returns the distinct test cases called in one hop by any of ids.
	CalleesOf(ctx context.Context, ids []int64) ([]int64, error)

	// CallersOf returns the distinct test cases calling any of ids in one hop.
	CallersOf(ctx context.Context, ids []int64) ([]int64, error)

	// DirectCallees returns the callee of each call step of id, in step order.
	DirectCallees(ctx context.Context, id int64) ([]int64, error)

	// CallPairsFrom returns one pair per call step owned by any of callerIDs.
	CallPairsFrom(ctx context.Context, callerIDs []int64) ([]CallPair, error)

	// CallPairsTo returns one pair per call step calling any of calleeIDs.
	CallPairsTo(ctx context.Context, calleeIDs []int64) ([]CallPair, error)
}

// ImportanceStore holds what importance deduction reads and writes.
type ImportanceStore interface {
	// TestCase returns the test case with its steps.
	// Returns ErrNotFound if no test case has that id.
	TestCase(ctx context.Context, id int64) (*TestCase, error)

	// DirectCallers returns the test cases owning a call step to id.
	DirectCallers(ctx context.Context, id int64) ([]*TestCase, error)

	// CriticalitiesOf returns the distinct criticalities of the requirement
	// versions directly verified by any of ids.
	CriticalitiesOf(ctx context.Context, ids []int64) ([]Criticality, error)

	// TestCasesVerifying returns the test cases directly verifying the
	// requirement version.
	TestCasesVerifying(ctx context.Context, requirementVersionID int64) ([]int64, error)

	// RequirementVersion returns the requirement version.
	RequirementVersion(ctx context.Context, id int64) (*RequirementVersion, error)

	SetImportance(ctx context.Context, id int64, imp Importance) error
	ImportanceAuto(ctx context.Context, id int64) (bool, error)
	SetImportanceAuto(ctx context.Context, id int64, auto bool) error
}

// StepStore mutates the step lists of test cases and the coverage relation.
type StepStore interface {
	Step(ctx context.Context, id int64) (*Step, error)

	// Steps returns the steps in the order of ids.
	// Returns ErrNotFound if any id is unknown.
	Steps(ctx context.Context, ids []int64) ([]*Step, error)

	// CreateCallStep inserts a call step at position (AppendPosition to
	// append), shifting later steps, and returns the new step id.
	CreateCallStep(ctx context.Context, callerID, calleeID int64, position int) (int64, error)

	// CopySteps copies steps into destID starting at position and returns
	// the new step ids in order.
	CopySteps(ctx context.Context, destID int64, steps []*Step, position int) ([]int64, error)

	// UpdateCallStep persists the parameter fields of a call step.
	UpdateCallStep(ctx context.Context, step *Step) error

	// DeleteStep removes the step and closes the gap in positions.
	DeleteStep(ctx context.Context, stepID int64) error

	Dataset(ctx context.Context, id int64) (*Dataset, error)

	LinkRequirement(ctx context.Context, testCaseID, requirementVersionID int64) error
	UnlinkRequirement(ctx context.Context, testCaseID, requirementVersionID int64) error
	SetCriticality(ctx context.Context, requirementVersionID int64, c Criticality) error
}

// GraphStore is everything the call graph engine needs from persistence.
type GraphStore interface {
	CallEdgeReader
	ImportanceStore
	StepStore
}

// Catalog is the CRUD surface around the engine: creating the test cases,
// plain steps, requirement versions and datasets the graph refers to.
type Catalog interface {
	CreateTestCase(ctx context.Context, tc *TestCase) (int64, error)
	TestCases(ctx context.Context) ([]*TestCase, error)
	CreateActionStep(ctx context.Context, testCaseID int64, action ActionStep, position int) (int64, error)
	CreateKeywordStep(ctx context.Context, testCaseID int64, keyword KeywordStep, position int) (int64, error)
	CreateRequirementVersion(ctx context.Context, rv *RequirementVersion) (int64, error)
	RequirementVersions(ctx context.Context) ([]*RequirementVersion, error)
	CreateDataset(ctx context.Context, ds *Dataset) (int64, error)
}

// Store is a full backend: engine store plus catalog.
type Store interface {
	GraphStore
	Catalog
}
