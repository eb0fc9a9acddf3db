package runner

import (
	"runtime"

	"github.com/ethereum-optimism/infra/op-testengine/plan"
)

const (
	// MaxReasonableConcurrency caps auto-determined case concurrency.
	MaxReasonableConcurrency = 32
)

// determineConcurrency picks the size of the case worker pool. A positive
// user value is honoured (capped at the work item count); otherwise the
// value scales with the CPU count.
func (r *Runner) determineConcurrency(numWorkItems int) int {
	if numWorkItems <= 0 {
		return 0
	}
	if r.serial {
		return 1
	}
	if r.concurrency > 0 {
		r.log.Debug("Using user-specified concurrency", "concurrency", r.concurrency, "workItems", numWorkItems)
		return min(r.concurrency, numWorkItems)
	}

	numCPU := runtime.NumCPU()
	var concurrency int
	switch {
	case numCPU <= 2:
		concurrency = numCPU
	case numCPU <= 4:
		concurrency = int(float64(numCPU) * 1.25)
	default:
		concurrency = int(float64(numCPU) * 1.5)
	}
	concurrency = min(concurrency, MaxReasonableConcurrency, numWorkItems)
	concurrency = max(concurrency, 1)

	r.log.Debug("Auto-determined concurrency", "concurrency", concurrency, "cpus", numCPU, "workItems", numWorkItems)
	return concurrency
}

// workItems estimates how many cases could run at once. Parameterized tests
// may expand to any number of cases, so each counts as a full pool.
func workItems(p *plan.Plan) int {
	n := 0
	for _, s := range p.Steps {
		if s.IsSuite() || s.Action == plan.ActionSkip {
			continue
		}
		if s.Test.IsParameterized() {
			n += MaxReasonableConcurrency
		} else {
			n++
		}
	}
	return n
}
