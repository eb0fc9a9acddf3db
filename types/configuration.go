package types

import (
	"fmt"
	"time"
)

// StopCondition decides when a repeating run ends early.
type StopCondition uint8

const (
	// StopUnconditional always runs the maximum number of iterations.
	StopUnconditional StopCondition = iota
	// StopUntilIssueRecorded stops after the first iteration with a failure.
	StopUntilIssueRecorded
	// StopWhileIssueRecorded stops after the first iteration without a failure.
	StopWhileIssueRecorded
)

func (s StopCondition) String() string {
	switch s {
	case StopUnconditional:
		return "unconditional"
	case StopUntilIssueRecorded:
		return "untilIssueRecorded"
	case StopWhileIssueRecorded:
		return "whileIssueRecorded"
	default:
		return fmt.Sprintf("StopCondition(%d)", uint8(s))
	}
}

// ParseStopCondition parses the String form of a stop condition.
func ParseStopCondition(s string) (StopCondition, error) {
	switch s {
	case "", "unconditional":
		return StopUnconditional, nil
	case "untilIssueRecorded", "until-issue":
		return StopUntilIssueRecorded, nil
	case "whileIssueRecorded", "while-issue":
		return StopWhileIssueRecorded, nil
	default:
		return 0, fmt.Errorf("unknown stop condition %q", s)
	}
}

// RepetitionPolicy controls how many times the whole plan is run.
type RepetitionPolicy struct {
	MaxIterations int
	Stop          StopCondition
}

// Once runs the plan a single time.
func Once() RepetitionPolicy {
	return RepetitionPolicy{MaxIterations: 1}
}

// Repeating runs the plan up to max times, ending early per stop.
func Repeating(stop StopCondition, max int) RepetitionPolicy {
	return RepetitionPolicy{MaxIterations: max, Stop: stop}
}

// Validate rejects non-positive iteration counts.
func (p RepetitionPolicy) Validate() error {
	if p.MaxIterations < 1 {
		return &ConfigError{Field: "repetition.maxIterations", Reason: fmt.Sprintf("must be a positive integer, got %d", p.MaxIterations)}
	}
	if p.Stop > StopWhileIssueRecorded {
		return &ConfigError{Field: "repetition.stop", Reason: fmt.Sprintf("unknown stop condition %d", p.Stop)}
	}
	return nil
}

// ShouldStop reports whether iteration should be the last one, given whether
// any case failed in it.
func (p RepetitionPolicy) ShouldStop(iteration int, issueRecorded bool) bool {
	if iteration+1 >= p.MaxIterations {
		return true
	}
	switch p.Stop {
	case StopUntilIssueRecorded:
		return issueRecorded
	case StopWhileIssueRecorded:
		return !issueRecorded
	default:
		return false
	}
}

func (p RepetitionPolicy) String() string {
	if p.MaxIterations == 1 {
		return "once"
	}
	return fmt.Sprintf("repeating(%s, %d)", p.Stop, p.MaxIterations)
}

// TraitPhaseCancellation decides the outcome of a step whose cancellation is
// observed before any of its cases started running.
type TraitPhaseCancellation uint8

const (
	// SkipOnTraitCancellation reports the step as skipped.
	SkipOnTraitCancellation TraitPhaseCancellation = iota
	// CancelOnTraitCancellation reports the step as cancelled.
	CancelOnTraitCancellation
)

func (p TraitPhaseCancellation) String() string {
	if p == CancelOnTraitCancellation {
		return "cancel"
	}
	return "skip"
}

// Configuration is the per-run value threaded through planning and
// execution. It is copied, never shared by reference between runs.
type Configuration struct {
	// Parallel enables concurrent execution of steps and cases.
	Parallel bool
	// MaxParallelism caps concurrent cases. Zero picks a value from the CPU count.
	MaxParallelism int

	Repetition RepetitionPolicy

	// CaseFilter runs per case in addition to CaseFilterTrait.
	CaseFilter func(test *Test, tc *Case) bool

	// DeliverExpectationChecked opts in to expectationChecked events.
	DeliverExpectationChecked bool

	EventHandler EventHandler

	// DefaultTimeLimit applies when no TimeLimitTrait is in effect; zero means none.
	DefaultTimeLimit time.Duration
	// MaxTimeLimit clamps every time limit; zero means no clamp.
	MaxTimeLimit time.Duration

	TraitPhaseCancellation TraitPhaseCancellation
}

// DefaultConfiguration returns a parallel, run-once configuration.
func DefaultConfiguration() Configuration {
	return Configuration{
		Parallel:   true,
		Repetition: Once(),
	}
}

// Validate reports programmer errors before anything runs.
func (c *Configuration) Validate() error {
	if err := c.Repetition.Validate(); err != nil {
		return err
	}
	if c.MaxParallelism < 0 {
		return &ConfigError{Field: "maxParallelism", Reason: "must not be negative"}
	}
	if c.DefaultTimeLimit < 0 || c.MaxTimeLimit < 0 {
		return &ConfigError{Field: "timeLimit", Reason: "must not be negative"}
	}
	return nil
}

// TimeLimit resolves the effective per-case limit for a trait set. Zero
// means unlimited.
func (c *Configuration) TimeLimit(traits []Trait) time.Duration {
	limit := c.DefaultTimeLimit
	if tl, ok := FindTrait[TimeLimitTrait](traits); ok && tl.Limit > 0 {
		limit = tl.Limit
	}
	if c.MaxTimeLimit > 0 && (limit == 0 || limit > c.MaxTimeLimit) {
		limit = c.MaxTimeLimit
	}
	return limit
}

// Serial reports whether the configuration forbids concurrency.
func (c *Configuration) Serial() bool {
	return !c.Parallel || c.MaxParallelism == 1
}
