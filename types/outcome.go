package types

// Outcome is the terminal state of a case, a test or a run.
type Outcome string

const (
	OutcomePassed    Outcome = "passed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCancelled Outcome = "cancelled"
)

// ValidOutcomes lists every outcome in reporting order.
var ValidOutcomes = []Outcome{OutcomePassed, OutcomeFailed, OutcomeSkipped, OutcomeCancelled}

// Combine rolls a child outcome into a parent one. Failure dominates, then
// cancellation, then passing; a parent stays skipped only if every child is.
func (o Outcome) Combine(child Outcome) Outcome {
	rank := func(x Outcome) int {
		switch x {
		case OutcomeFailed:
			return 3
		case OutcomeCancelled:
			return 2
		case OutcomePassed:
			return 1
		default:
			return 0
		}
	}
	if o == "" {
		return child
	}
	if rank(child) > rank(o) {
		return child
	}
	return o
}
