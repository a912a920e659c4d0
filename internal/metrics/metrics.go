// Package metrics holds the Prometheus collectors of the call graph engine.
// Collectors register with the default registry on package load.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Closure directions.
const (
	Downstream = "downstream"
	Upstream   = "upstream"
	Extended   = "extended"
)

var (
	ClosureLayers = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calltree_closure_layers",
		Help:    "Number of BFS layers expanded per closure query, labelled by direction.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
	}, []string{"direction"})

	ClosureSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calltree_closure_size",
		Help:    "Number of test cases returned per closure query, labelled by direction.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"direction"})

	CycleRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calltree_cycle_rejections_total",
		Help: "Total number of call steps rejected because they would create a cycle.",
	})

	PropagationVisits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calltree_propagation_visits_total",
		Help: "Total number of test cases visited by importance walks, labelled by walk.",
	}, []string{"walk"})

	ImportanceChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calltree_importance_changes_total",
		Help: "Total number of importance values rewritten by deduction.",
	})

	MutatorOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calltree_mutator_operations_total",
		Help: "Total number of step graph mutations, labelled by operation and status.",
	}, []string{"operation", "status"})
)

// Status label values for MutatorOperations.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusError    = "error"
)
