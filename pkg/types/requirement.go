package types

import (
	"fmt"
	"time"
)

// Criticality is the ordered severity of a requirement. Higher values are
// more critical.
type Criticality int

// Criticality levels, weakest first.
const (
	CriticalityUndefined Criticality = iota
	CriticalityMinor
	CriticalityMajor
	CriticalityCritical
)

var criticalityNames = []string{"UNDEFINED", "MINOR", "MAJOR", "CRITICAL"}

// Criticalities lists every criticality in ascending order.
var Criticalities = []Criticality{CriticalityUndefined, CriticalityMinor, CriticalityMajor, CriticalityCritical}

// String returns the upper-case name of the criticality.
func (c Criticality) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Criticality(%d)", int(c))
	}
	return criticalityNames[c]
}

// Valid reports whether c is one of the declared criticalities.
func (c Criticality) Valid() bool {
	return c >= CriticalityUndefined && c <= CriticalityCritical
}

// ParseCriticality converts a criticality name to a Criticality.
// Returns ErrInvalidCriticality for unknown names.
func ParseCriticality(s string) (Criticality, error) {
	norm := normalizeEnumName(s)
	for i, name := range criticalityNames {
		if name == norm {
			return Criticality(i), nil
		}
	}
	return CriticalityUndefined, fmt.Errorf("%w: %q", ErrInvalidCriticality, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Criticality) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCriticality, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Criticality) UnmarshalText(b []byte) error {
	v, err := ParseCriticality(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// RequirementVersion is the unit a test case verifies. Only its criticality
// matters to importance deduction.
type RequirementVersion struct {
	ID          int64       `json:"requirement_version_id"`
	Name        string      `json:"name"`
	Criticality Criticality `json:"criticality"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Dataset is a named parameter set owned by a test case. A call step in
// CALLED_DATASET mode references a dataset of the called test case.
type Dataset struct {
	ID         int64  `json:"dataset_id"`
	TestCaseID int64  `json:"test_case_id"`
	Name       string `json:"name"`
}
