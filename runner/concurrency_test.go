package runner

import (
	"runtime"
	"testing"

	"github.com/ethereum-optimism/infra/op-testengine/plan"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
)

// TestDetermineConcurrency tests the concurrency determination logic
func TestDetermineConcurrency(t *testing.T) {
	r := &Runner{
		log: log.NewLogger(log.DiscardHandler()),
	}

	tests := []struct {
		name            string
		userConcurrency int
		numWorkItems    int
		expectedRange   [2]int // [min, max] expected range
	}{
		{
			name:            "Auto-determine with 4 work items",
			userConcurrency: 0,
			numWorkItems:    4,
			expectedRange:   [2]int{1, 4},
		},
		{
			name:            "Auto-determine with many work items",
			userConcurrency: 0,
			numWorkItems:    200,
			expectedRange:   [2]int{1, MaxReasonableConcurrency},
		},
		{
			name:            "User override within work items",
			userConcurrency: 3,
			numWorkItems:    10,
			expectedRange:   [2]int{3, 3},
		},
		{
			name:            "User override exceeds work items",
			userConcurrency: 8,
			numWorkItems:    3,
			expectedRange:   [2]int{3, 3},
		},
		{
			name:            "Single work item",
			userConcurrency: 0,
			numWorkItems:    1,
			expectedRange:   [2]int{1, 1},
		},
		{
			name:            "User requests high concurrency",
			userConcurrency: 50,
			numWorkItems:    100,
			expectedRange:   [2]int{50, 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.concurrency = tt.userConcurrency

			actual := r.determineConcurrency(tt.numWorkItems)

			assert.GreaterOrEqual(t, actual, tt.expectedRange[0])
			assert.LessOrEqual(t, actual, tt.expectedRange[1])
			assert.LessOrEqual(t, actual, tt.numWorkItems, "Concurrency should never exceed number of work items")
		})
	}
}

// TestConcurrencyHeuristics tests the auto-determination heuristics
func TestConcurrencyHeuristics(t *testing.T) {
	r := &Runner{
		log: log.NewLogger(log.DiscardHandler()),
	}

	numCPU := runtime.NumCPU()
	numWorkItems := 100

	actual := r.determineConcurrency(numWorkItems)

	switch {
	case numCPU <= 2:
		assert.LessOrEqual(t, actual, numCPU, "Low-core systems should not exceed CPU count")
	case numCPU <= 4:
		assert.LessOrEqual(t, actual, int(float64(numCPU)*1.25)+1, "Mid-range systems should have modest increase")
	default:
		assert.LessOrEqual(t, actual, int(float64(numCPU)*1.5)+1, "High-core systems can be more aggressive")
	}
	assert.GreaterOrEqual(t, actual, 1)
	assert.LessOrEqual(t, actual, MaxReasonableConcurrency)
}

func TestConcurrencyEdgeCases(t *testing.T) {
	r := &Runner{
		log: log.NewLogger(log.DiscardHandler()),
	}

	t.Run("Zero work items", func(t *testing.T) {
		r.concurrency = 0
		assert.Equal(t, 0, r.determineConcurrency(0))
	})

	t.Run("Negative user concurrency falls back to auto", func(t *testing.T) {
		r.concurrency = -1
		actual := r.determineConcurrency(5)
		assert.GreaterOrEqual(t, actual, 1)
		assert.LessOrEqual(t, actual, 5)
	})

	t.Run("Very high user concurrency", func(t *testing.T) {
		r.concurrency = 1000
		assert.Equal(t, 5, r.determineConcurrency(5))
	})

	t.Run("Serial configuration", func(t *testing.T) {
		serial := &Runner{log: log.NewLogger(log.DiscardHandler()), concurrency: 8, serial: true}
		assert.Equal(t, 1, serial.determineConcurrency(20))
	})
}

func TestWorkItems(t *testing.T) {
	test := func(params bool, action plan.Action) *plan.Step {
		tt := &types.Test{ID: types.NewID("mod", "t"), Body: passing}
		if params {
			tt.Parameters = []types.Parameter{{Name: "x"}}
			tt.Arguments = []types.ArgumentCollection{types.Range(0, 2)}
		}
		return &plan.Step{Test: tt, Action: action}
	}
	suite := &plan.Step{Test: &types.Test{ID: types.NewID("mod", "s")}}

	p := &plan.Plan{Steps: []*plan.Step{
		suite,
		test(false, plan.ActionRun),
		test(false, plan.ActionSkip),
		test(true, plan.ActionRun),
	}}
	assert.Equal(t, 1+MaxReasonableConcurrency, workItems(p))
}

func BenchmarkDetermineConcurrency(b *testing.B) {
	r := &Runner{
		log: log.NewLogger(log.DiscardHandler()),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.determineConcurrency(10)
	}
}
