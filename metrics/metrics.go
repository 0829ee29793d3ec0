// Package metrics registers the prometheus collectors spec.md §6 names:
// histograms for block validation time, transaction apply time and
// parallel-execution speedup, counters for blocks applied, blocks
// rewound and verification failures by kind.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	BlockValidationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tos_core",
		Name:      "block_validation_seconds",
		Help:      "Time to validate and commit a block (C8 pipeline end to end).",
		Buckets:   prometheus.DefBuckets,
	})

	TransactionApplySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tos_core",
		Name:      "transaction_apply_seconds",
		Help:      "Time to verify-then-apply a single transaction (C7).",
		Buckets:   prometheus.DefBuckets,
	})

	ParallelSpeedup = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tos_core",
		Name:      "parallel_execution_speedup_ratio",
		Help:      "Estimated sequential/parallel duration ratio for a parallel-executed block.",
		Buckets:   []float64{0.5, 1, 1.5, 2, 3, 4, 6, 8, 12, 16},
	})

	BlocksApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tos_core",
		Name:      "blocks_applied_total",
		Help:      "Blocks successfully validated and committed.",
	})

	BlocksRewound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tos_core",
		Name:      "blocks_rewound_total",
		Help:      "Blocks removed by C9 rewind.",
	})

	VerificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tos_core",
		Name:      "verification_failures_total",
		Help:      "Transaction/block verification failures by error code.",
	}, []string{"kind"})
)

// Register installs every core collector into reg exactly once. Calling it
// multiple times (e.g. from tests that construct several components) is
// safe; later calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			BlockValidationSeconds,
			TransactionApplySeconds,
			ParallelSpeedup,
			BlocksApplied,
			BlocksRewound,
			VerificationFailures,
		)
	})
}
