// Package benchmarks provides timing estimates for apply tasks.
package benchmarks

import (
	"strings"
	"time"
)

// DefaultTimings are typical task durations (seconds) on a cx22 in fsn1.
var DefaultTimings = map[string]int{
	"network":          10,
	"compute":          45,
	"k3s-install":      60,
	"kubeconfig-fetch": 3,
	"api-ready":        20,
	"nodes":            10,
	// Families
	"namespace/": 1,
	"release/":   60,
	// Individual releases that are slower than the family default
	"release/kafka":                    120,
	"release/zalando-postgres-cluster": 90,
	"release/postgres-operator":        40,
}

// Expected returns the benchmark duration for a task. Unknown tasks fall
// back to their family, then to zero.
func Expected(task string) time.Duration {
	if secs, ok := DefaultTimings[task]; ok {
		return time.Duration(secs) * time.Second
	}
	if family, _, ok := strings.Cut(task, "/"); ok {
		if secs, ok := DefaultTimings[family+"/"]; ok {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// Record is an observed task duration.
type Record struct {
	Task     string
	Duration time.Duration
}

// EstimateRemaining sums the expected durations of pending tasks and the
// unfinished part of running ones, stretched by scale. It assumes
// sequential execution, so it overestimates parallel applies.
func EstimateRemaining(pending []string, running map[string]time.Duration, scale float64) time.Duration {
	var remaining time.Duration
	for task, elapsed := range running {
		expected := time.Duration(float64(Expected(task)) * scale)
		if expected > elapsed {
			remaining += expected - elapsed
		}
	}
	for _, task := range pending {
		remaining += time.Duration(float64(Expected(task)) * scale)
	}
	return remaining
}

// PerformanceScale derives a speed multiplier from observed-vs-expected
// durations.
// Example: expected 3m, observed 4m30s => scale=1.5 (future ETAs are
// stretched by 50%).
func PerformanceScale(finished []Record, running map[string]time.Duration) float64 {
	var expectedTotal, actualTotal time.Duration
	for _, rec := range finished {
		expected := Expected(rec.Task)
		if expected == 0 {
			continue
		}
		expectedTotal += expected
		actualTotal += rec.Duration
	}

	// Fold in overrunning tasks right away so the ETA adapts quickly.
	for task, elapsed := range running {
		if expected := Expected(task); expected > 0 && elapsed > expected {
			expectedTotal += expected
			actualTotal += elapsed
		}
	}

	if expectedTotal == 0 || actualTotal == 0 {
		return 1.0
	}

	scale := float64(actualTotal) / float64(expectedTotal)
	if scale < 0.6 {
		return 0.6
	}
	if scale > 3.0 {
		return 3.0
	}
	return scale
}

// TotalEstimate returns the sequential estimate for a plan.
func TotalEstimate(plan []string) time.Duration {
	return EstimateRemaining(plan, nil, 1.0)
}
