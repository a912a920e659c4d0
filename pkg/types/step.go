package types

import "fmt"

// StepKind discriminates the step variants.
type StepKind string

// Step kinds. Only call steps take part in the call graph.
const (
	StepKindAction  StepKind = "action"
	StepKindCall    StepKind = "call"
	StepKindKeyword StepKind = "keyword"
)

// AppendPosition asks a store to place new steps after the last one.
const AppendPosition = -1

// Step is a tagged union over the step variants. Exactly one payload pointer,
// the one matching Kind, is non-nil.
type Step struct {
	ID         int64        `json:"step_id"`
	TestCaseID int64        `json:"test_case_id"`
	Position   int          `json:"position"`
	Kind       StepKind     `json:"kind"`
	Action     *ActionStep  `json:"action,omitempty"`
	Call       *CallStep    `json:"call,omitempty"`
	Keyword    *KeywordStep `json:"keyword,omitempty"`
}

// ActionStep is a manual instruction with an expected result.
type ActionStep struct {
	Action         string `json:"action"`
	ExpectedResult string `json:"expected_result"`
}

// KeywordStep is a BDD-style step (given/when/then/and/but).
type KeywordStep struct {
	Keyword string `json:"keyword"`
	Text    string `json:"text"`
}

// CallStep invokes another test case. The caller is the test case owning the
// step; the callee is referenced, not owned.
type CallStep struct {
	CalledTestCaseID        int64  `json:"called_test_case_id"`
	DelegateParameterValues bool   `json:"delegate_parameter_values"`
	DatasetID               *int64 `json:"dataset_id,omitempty"`
}

// ParameterMode is how a call step feeds parameters to the called test case.
type ParameterMode string

// Parameter assignation modes.
const (
	ParameterModeNothing       ParameterMode = "NOTHING"
	ParameterModeDelegate      ParameterMode = "DELEGATE"
	ParameterModeCalledDataset ParameterMode = "CALLED_DATASET"
)

// ParseParameterMode converts a mode name to a ParameterMode.
func ParseParameterMode(s string) (ParameterMode, error) {
	switch m := ParameterMode(normalizeEnumName(s)); m {
	case ParameterModeNothing, ParameterModeDelegate, ParameterModeCalledDataset:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidModeArgument, s)
	}
}

// Mode derives the parameter assignation mode from the step fields.
func (c *CallStep) Mode() ParameterMode {
	switch {
	case c.DatasetID != nil:
		return ParameterModeCalledDataset
	case c.DelegateParameterValues:
		return ParameterModeDelegate
	default:
		return ParameterModeNothing
	}
}

// SetMode applies a mode transition. CALLED_DATASET needs a dataset id; the
// other modes must not carry one. Returns ErrInvalidModeArgument otherwise.
func (c *CallStep) SetMode(mode ParameterMode, datasetID *int64) error {
	switch mode {
	case ParameterModeNothing, ParameterModeDelegate:
		if datasetID != nil {
			return fmt.Errorf("%w: mode %s does not take a dataset", ErrInvalidModeArgument, mode)
		}
		c.DelegateParameterValues = mode == ParameterModeDelegate
		c.DatasetID = nil
	case ParameterModeCalledDataset:
		if datasetID == nil {
			return fmt.Errorf("%w: mode %s requires a dataset id", ErrInvalidModeArgument, mode)
		}
		id := *datasetID
		c.DelegateParameterValues = false
		c.DatasetID = &id
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidModeArgument, mode)
	}
	return nil
}

// Validate checks that the payload matches Kind.
func (s *Step) Validate() error {
	switch s.Kind {
	case StepKindAction:
		if s.Action == nil || s.Call != nil || s.Keyword != nil {
			return fmt.Errorf("%w: action step payload", ErrInvalidData)
		}
	case StepKindCall:
		if s.Call == nil || s.Action != nil || s.Keyword != nil {
			return fmt.Errorf("%w: call step payload", ErrInvalidData)
		}
		if s.Call.CalledTestCaseID <= 0 {
			return fmt.Errorf("%w: call step without callee", ErrInvalidData)
		}
	case StepKindKeyword:
		if s.Keyword == nil || s.Action != nil || s.Call != nil {
			return fmt.Errorf("%w: keyword step payload", ErrInvalidData)
		}
	default:
		return fmt.Errorf("%w: unknown step kind %q", ErrInvalidData, s.Kind)
	}
	return nil
}

// CalledTestCaseIDs returns the distinct callees of the call steps among
// steps, in first-seen order.
func CalledTestCaseIDs(steps []*Step) []int64 {
	seen := NewIDSet()
	var out []int64
	for _, s := range steps {
		if s.Kind != StepKindCall || s.Call == nil {
			continue
		}
		id := s.Call.CalledTestCaseID
		if seen.Has(id) {
			continue
		}
		seen.Add(id)
		out = append(out, id)
	}
	return out
}
