package importance

import (
	"errors"
	"testing"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()
	want := map[types.Criticality]types.Importance{
		types.CriticalityUndefined: types.ImportanceLow,
		types.CriticalityMinor:     types.ImportanceMedium,
		types.CriticalityMajor:     types.ImportanceHigh,
		types.CriticalityCritical:  types.ImportanceVeryHigh,
	}
	for c, imp := range want {
		if got := tbl.ImportanceFor(c); got != imp {
			t.Errorf("ImportanceFor(%s) = %s, want %s", c, got, imp)
		}
	}
}

func TestNewTable(t *testing.T) {
	full := func(u, mi, ma, cr types.Importance) map[types.Criticality]types.Importance {
		return map[types.Criticality]types.Importance{
			types.CriticalityUndefined: u,
			types.CriticalityMinor:     mi,
			types.CriticalityMajor:     ma,
			types.CriticalityCritical:  cr,
		}
	}

	tests := []struct {
		name    string
		m       map[types.Criticality]types.Importance
		wantErr error
	}{
		{"default", DefaultTable().Map(), nil},
		{"flat is monotone", full(types.ImportanceHigh, types.ImportanceHigh, types.ImportanceHigh, types.ImportanceHigh), nil},
		{"compressed", full(types.ImportanceLow, types.ImportanceLow, types.ImportanceHigh, types.ImportanceHigh), nil},
		{"inverted", full(types.ImportanceVeryHigh, types.ImportanceHigh, types.ImportanceMedium, types.ImportanceLow), ErrNonMonotoneTable},
		{"single dip", full(types.ImportanceLow, types.ImportanceHigh, types.ImportanceMedium, types.ImportanceVeryHigh), ErrNonMonotoneTable},
		{"missing entry", map[types.Criticality]types.Importance{types.CriticalityUndefined: types.ImportanceLow}, ErrIncompleteTable},
		{"invalid level", full(types.ImportanceLow, types.Importance(7), types.ImportanceHigh, types.ImportanceVeryHigh), types.ErrInvalidImportance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.m)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTable() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	tbl, err := FromConfig(map[string]string{"minor": "low", "Major": "very-high"})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if got := tbl.ImportanceFor(types.CriticalityMinor); got != types.ImportanceLow {
		t.Errorf("MINOR -> %s, want LOW", got)
	}
	if got := tbl.ImportanceFor(types.CriticalityMajor); got != types.ImportanceVeryHigh {
		t.Errorf("MAJOR -> %s, want VERY_HIGH", got)
	}
	if got := tbl.ImportanceFor(types.CriticalityCritical); got != types.ImportanceVeryHigh {
		t.Errorf("CRITICAL -> %s, want VERY_HIGH (default kept)", got)
	}

	if _, err := FromConfig(map[string]string{"critical": "low"}); !errors.Is(err, ErrNonMonotoneTable) {
		t.Errorf("critical->low: error = %v, want ErrNonMonotoneTable", err)
	}
	if _, err := FromConfig(map[string]string{"blocker": "high"}); !errors.Is(err, types.ErrInvalidCriticality) {
		t.Errorf("unknown criticality: error = %v", err)
	}
	if _, err := FromConfig(map[string]string{"minor": "urgent"}); !errors.Is(err, types.ErrInvalidImportance) {
		t.Errorf("unknown importance: error = %v", err)
	}

	empty, err := FromConfig(nil)
	if err != nil || empty != DefaultTable() {
		t.Errorf("FromConfig(nil) = %v, %v; want default table", empty, err)
	}
}

func TestTableDeduce(t *testing.T) {
	tbl := DefaultTable()
	tests := []struct {
		crits []types.Criticality
		want  types.Importance
	}{
		{nil, types.ImportanceLow},
		{[]types.Criticality{types.CriticalityUndefined}, types.ImportanceLow},
		{[]types.Criticality{types.CriticalityMinor, types.CriticalityMajor}, types.ImportanceHigh},
		{[]types.Criticality{types.CriticalityCritical, types.CriticalityMinor}, types.ImportanceVeryHigh},
	}
	for _, tt := range tests {
		if got := tbl.Deduce(tt.crits); got != tt.want {
			t.Errorf("Deduce(%v) = %s, want %s", tt.crits, got, tt.want)
		}
	}
}
