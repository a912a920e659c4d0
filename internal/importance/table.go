// Package importance deduces the importance of test cases from the
// criticality of the requirements they verify, directly or through the test
// cases they call, and keeps deduced values current as the call graph and
// the coverage change.
package importance

import (
	"errors"
	"fmt"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

// Table errors.
var (
	ErrIncompleteTable  = errors.New("importance table does not map every criticality")
	ErrNonMonotoneTable = errors.New("importance table is not monotone in criticality")
)

// Table maps each criticality to an importance level. Tables are complete
// and monotone: a more critical requirement never maps to a lower level.
type Table struct {
	levels [len(criticalities)]types.Importance
}

var criticalities = [...]types.Criticality{
	types.CriticalityUndefined,
	types.CriticalityMinor,
	types.CriticalityMajor,
	types.CriticalityCritical,
}

// DefaultTable maps UNDEFINED to LOW, MINOR to MEDIUM, MAJOR to HIGH and
// CRITICAL to VERY_HIGH.
func DefaultTable() Table {
	return Table{levels: [...]types.Importance{
		types.ImportanceLow,
		types.ImportanceMedium,
		types.ImportanceHigh,
		types.ImportanceVeryHigh,
	}}
}

// NewTable validates m and returns it as a Table.
func NewTable(m map[types.Criticality]types.Importance) (Table, error) {
	var t Table
	for i, c := range criticalities {
		imp, ok := m[c]
		if !ok {
			return Table{}, fmt.Errorf("%w: missing %s", ErrIncompleteTable, c)
		}
		if !imp.Valid() {
			return Table{}, fmt.Errorf("%w for %s", types.ErrInvalidImportance, c)
		}
		if i > 0 && imp < t.levels[i-1] {
			return Table{}, fmt.Errorf("%w: %s maps to %s, below %s for %s",
				ErrNonMonotoneTable, c, imp, t.levels[i-1], criticalities[i-1])
		}
		t.levels[i] = imp
	}
	return t, nil
}

// FromConfig builds a Table from criticality and importance names, starting
// from the default table. A nil or empty map yields DefaultTable.
func FromConfig(names map[string]string) (Table, error) {
	m := DefaultTable().Map()
	for cname, iname := range names {
		c, err := types.ParseCriticality(cname)
		if err != nil {
			return Table{}, fmt.Errorf("importance table: %w", err)
		}
		imp, err := types.ParseImportance(iname)
		if err != nil {
			return Table{}, fmt.Errorf("importance table entry %s: %w", c, err)
		}
		m[c] = imp
	}
	return NewTable(m)
}

// ImportanceFor returns the level c maps to.
func (t Table) ImportanceFor(c types.Criticality) types.Importance {
	if !c.Valid() {
		return types.ImportanceLow
	}
	return t.levels[c]
}

// Deduce returns the highest level among crits, LOW when crits is empty.
func (t Table) Deduce(crits []types.Criticality) types.Importance {
	out := types.ImportanceLow
	for _, c := range crits {
		out = types.MaxImportance(out, t.ImportanceFor(c))
	}
	return out
}

// Map returns the table as a map.
func (t Table) Map() map[types.Criticality]types.Importance {
	m := make(map[types.Criticality]types.Importance, len(criticalities))
	for i, c := range criticalities {
		m[c] = t.levels[i]
	}
	return m
}
