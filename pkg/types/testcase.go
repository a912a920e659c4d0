package types

import "time"

// TestCase is a vertex of the call graph. Steps are ordered by Position.
// Entity methods modify the struct in memory only; stores persist it.
type TestCase struct {
	ID             int64      `json:"test_case_id"`
	Name           string     `json:"name"`
	Importance     Importance `json:"importance"`
	ImportanceAuto bool       `json:"importance_auto"`
	Steps          []*Step    `json:"steps,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CallSteps returns the call steps of the test case in step order.
func (tc *TestCase) CallSteps() []*Step {
	var out []*Step
	for _, s := range tc.Steps {
		if s.Kind == StepKindCall {
			out = append(out, s)
		}
	}
	return out
}

// CalledTestCaseIDs returns the callee of every call step in step order.
// Repeated callees appear once per call step.
func (tc *TestCase) CalledTestCaseIDs() []int64 {
	var out []int64
	for _, s := range tc.CallSteps() {
		out = append(out, s.Call.CalledTestCaseID)
	}
	return out
}

// PinImportance sets a manual importance and turns automatic deduction off.
// Returns ErrInvalidImportance if imp is not a declared level.
func (tc *TestCase) PinImportance(imp Importance) error {
	if !imp.Valid() {
		return ErrInvalidImportance
	}
	tc.Importance = imp
	tc.ImportanceAuto = false
	tc.UpdatedAt = time.Now()
	return nil
}
