package types

import (
	"maps"
	"slices"
)

// IDSet is a set of entity ids.
type IDSet map[int64]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts ids into the set.
func (s IDSet) Add(ids ...int64) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// AddAll inserts every member of other.
func (s IDSet) AddAll(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Has reports membership.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Without returns the members of s that are in none of others.
func (s IDSet) Without(others ...IDSet) IDSet {
	out := make(IDSet, len(s))
outer:
	for id := range s {
		for _, o := range others {
			if o.Has(id) {
				continue outer
			}
		}
		out[id] = struct{}{}
	}
	return out
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	if s == nil {
		return IDSet{}
	}
	return maps.Clone(s)
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []int64 {
	return slices.Sorted(maps.Keys(s))
}
