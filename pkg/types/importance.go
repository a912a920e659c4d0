package types

import (
	"fmt"
	"strings"
)

// Importance is the ordered priority classification of a test case.
// Higher values are more important.
type Importance int

// Importance levels, weakest first.
const (
	ImportanceLow Importance = iota
	ImportanceMedium
	ImportanceHigh
	ImportanceVeryHigh
)

var importanceNames = []string{"LOW", "MEDIUM", "HIGH", "VERY_HIGH"}

// Importances lists every level in ascending order.
var Importances = []Importance{ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceVeryHigh}

// String returns the upper-case name of the level (e.g. "VERY_HIGH").
func (i Importance) String() string {
	if !i.Valid() {
		return fmt.Sprintf("Importance(%d)", int(i))
	}
	return importanceNames[i]
}

// Valid reports whether i is one of the declared levels.
func (i Importance) Valid() bool {
	return i >= ImportanceLow && i <= ImportanceVeryHigh
}

// ParseImportance converts a level name to an Importance. Matching is case
// insensitive and accepts "-" or " " in place of "_".
// Returns ErrInvalidImportance for unknown names.
func ParseImportance(s string) (Importance, error) {
	norm := normalizeEnumName(s)
	for i, name := range importanceNames {
		if name == norm {
			return Importance(i), nil
		}
	}
	return ImportanceLow, fmt.Errorf("%w: %q", ErrInvalidImportance, s)
}

// MaxImportance returns the stronger of a and b.
func MaxImportance(a, b Importance) Importance {
	if a > b {
		return a
	}
	return b
}

// MarshalText implements encoding.TextMarshaler.
func (i Importance) MarshalText() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidImportance, int(i))
	}
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Importance) UnmarshalText(b []byte) error {
	v, err := ParseImportance(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func normalizeEnumName(s string) string {
	s = strings.TrimSpace(strings.ToUpper(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}
