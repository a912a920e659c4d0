// Package types defines the entities of the call graph engine (test cases,
// steps, requirement versions, datasets), the ordered importance and
// criticality enumerations, the store interfaces the engine consumes, and the
// standard error values shared by every backend.
package types
