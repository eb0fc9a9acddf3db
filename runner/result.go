package runner

import (
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/types"
)

// CaseResult captures one executed, skipped or cancelled case.
type CaseResult struct {
	Case         *types.Case
	Outcome      types.Outcome
	Issues       []*types.Issue
	Skip         *types.SkipInfo
	Cancellation *types.CancellationError
	Duration     time.Duration
}

// TestResult captures one test within one iteration.
type TestResult struct {
	Test         *types.Test
	Outcome      types.Outcome
	Cases        []*CaseResult
	Issues       []*types.Issue
	Skip         *types.SkipInfo
	Cancellation *types.CancellationError
	Duration     time.Duration

	mu sync.Mutex
}

func (r *TestResult) addCase(c *CaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cases = append(r.Cases, c)
}

func (r *TestResult) addIssue(issue *types.Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Issues = append(r.Issues, issue)
}

// finish rolls the case outcomes up into the test outcome.
func (r *TestResult) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := types.Outcome("")
	for _, c := range r.Cases {
		outcome = outcome.Combine(c.Outcome)
	}
	for _, issue := range r.Issues {
		if issue.IsFailure() {
			outcome = outcome.Combine(types.OutcomeFailed)
		}
	}
	if r.Cancellation != nil {
		outcome = outcome.Combine(types.OutcomeCancelled)
	}
	if outcome == "" {
		outcome = types.OutcomePassed
	}
	r.Outcome = outcome
}

// IterationResult captures one pass over the plan.
type IterationResult struct {
	Index         int
	Tests         []*TestResult
	IssueRecorded bool
	Stats         ResultStats
	Duration      time.Duration
}

// RunResult captures the complete run.
type RunResult struct {
	RunID       string
	Iterations  []*IterationResult
	Outcome     types.Outcome
	Stats       ResultStats
	Interrupted bool
	Duration    time.Duration
}

// ResultStats counts cases and tests by outcome.
type ResultStats struct {
	Tests        int
	TestsPassed  int
	TestsFailed  int
	TestsSkipped int

	Total     int
	Passed    int
	Failed    int
	Skipped   int
	Cancelled int

	StartTime time.Time
	EndTime   time.Time
}

func (s *ResultStats) addTest(r *TestResult) {
	s.Tests++
	switch r.Outcome {
	case types.OutcomePassed:
		s.TestsPassed++
	case types.OutcomeFailed:
		s.TestsFailed++
	case types.OutcomeSkipped:
		s.TestsSkipped++
	}
	for _, c := range r.Cases {
		s.addCase(c.Outcome)
	}
}

func (s *ResultStats) addCase(o types.Outcome) {
	s.Total++
	switch o {
	case types.OutcomePassed:
		s.Passed++
	case types.OutcomeFailed:
		s.Failed++
	case types.OutcomeSkipped:
		s.Skipped++
	case types.OutcomeCancelled:
		s.Cancelled++
	}
}

func (s *ResultStats) merge(o ResultStats) {
	s.Tests += o.Tests
	s.TestsPassed += o.TestsPassed
	s.TestsFailed += o.TestsFailed
	s.TestsSkipped += o.TestsSkipped
	s.Total += o.Total
	s.Passed += o.Passed
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.Cancelled += o.Cancelled
}

// Success reports whether no case failed and no test-level failure occurred.
// Cancelled cases alone do not fail a run.
func (r *RunResult) Success() bool {
	return r.Outcome != types.OutcomeFailed
}

// Test returns the results of the test with the given ID across iterations.
func (r *RunResult) Test(id types.ID) []*TestResult {
	var out []*TestResult
	for _, it := range r.Iterations {
		for _, tr := range it.Tests {
			if tr.Test.ID.Equal(id) {
				out = append(out, tr)
			}
		}
	}
	return out
}

func (r *RunResult) finish() {
	outcome := types.Outcome("")
	for _, it := range r.Iterations {
		r.Stats.merge(it.Stats)
		for _, tr := range it.Tests {
			outcome = outcome.Combine(tr.Outcome)
		}
	}
	if outcome == "" {
		outcome = types.OutcomeSkipped
	}
	// cancellation alone does not fail a run
	if outcome == types.OutcomeCancelled {
		outcome = types.OutcomePassed
	}
	r.Outcome = outcome
}
