package types

// NodeRef names a test case in presentation graphs.
type NodeRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CallPair is one call step seen as a (caller, callee) edge. Stores return
// one pair per call step, so two steps between the same test cases yield two
// equal pairs.
type CallPair struct {
	Caller NodeRef `json:"caller"`
	Callee NodeRef `json:"callee"`
}
