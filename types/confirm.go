package types

import (
	"context"
	"fmt"
	"time"
)

// Defaults used by Confirm when neither the call nor a trait sets a value.
const (
	DefaultPollingWithin   = time.Minute
	DefaultPollingInterval = time.Millisecond
)

// PollingStop is the condition that ends a confirmation.
type PollingStop uint8

const (
	// PollingFirstPass succeeds as soon as the expression returns true.
	PollingFirstPass PollingStop = iota
	// PollingStopsPassing fails as soon as the expression returns false.
	PollingStopsPassing
)

func (p PollingStop) String() string {
	if p == PollingStopsPassing {
		return "stopsPassing"
	}
	return "firstPass"
}

func (p PollingStop) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PollingStop) UnmarshalText(b []byte) error {
	switch string(b) {
	case "firstPass":
		*p = PollingFirstPass
	case "stopsPassing":
		*p = PollingStopsPassing
	default:
		return fmt.Errorf("unknown polling stop condition %q", b)
	}
	return nil
}

type confirmOptions struct {
	within *time.Duration
	every  *time.Duration
	label  string
}

// ConfirmOption configures Confirm.
type ConfirmOption func(*confirmOptions)

// Within bounds the total polling duration.
func Within(d time.Duration) ConfirmOption {
	return func(o *confirmOptions) { o.within = &d }
}

// PollingEvery sets the pause between polls.
func PollingEvery(d time.Duration) ConfirmOption {
	return func(o *confirmOptions) { o.every = &d }
}

// Described labels the polled expression in the failure issue.
func Described(label string) ConfirmOption {
	return func(o *confirmOptions) { o.label = label }
}

// Confirm polls check up to within/every times. With PollingFirstPass it
// returns nil on the first true result; with PollingStopsPassing it returns
// nil only if every poll is true. A failed confirmation records exactly one
// confirmationPollingFailed issue and returns a RecordedError.
//
// Durations not given at the call site are resolved one at a time from the
// PollingConfirmationTraits for the same stop condition, the nearest layer
// that sets a value winning, then from the package defaults. An invalid combination records an apiMisused issue
// without polling.
func (t *T) Confirm(until PollingStop, check func() bool, opts ...ConfirmOption) error {
	var o confirmOptions
	for _, opt := range opts {
		opt(&o)
	}
	within, every := DefaultPollingWithin, DefaultPollingInterval
	for _, tr := range TraitsOf[PollingConfirmationTrait](t.scope.Traits) {
		if tr.Until != until {
			continue
		}
		if tr.Within > 0 {
			within = tr.Within
		}
		if tr.Every > 0 {
			every = tr.Every
		}
	}
	if o.within != nil {
		within = *o.within
	}
	if o.every != nil {
		every = *o.every
	}

	loc := callerLocationPtr(2)
	if within <= 0 || every <= 0 || every >= within {
		issue := &Issue{
			Kind:     IssueAPIMisused,
			Severity: SeverityError,
			Comments: []string{fmt.Sprintf("polling interval %s must be positive and less than duration %s", every, within)},
			Source:   SourceContext{Location: loc},
		}
		t.record(issue)
		return &RecordedError{Issue: issue}
	}

	maxPolls := int(within / every)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for i := 0; i < maxPolls; i++ {
		if i > 0 {
			if t.ctx.Err() != nil {
				return context.Cause(t.ctx)
			}
			if timer == nil {
				timer = time.NewTimer(every)
			} else {
				timer.Reset(every)
			}
			select {
			case <-t.ctx.Done():
				return context.Cause(t.ctx)
			case <-timer.C:
			}
		}
		passed := check()
		if until == PollingFirstPass && passed {
			return nil
		}
		if until == PollingStopsPassing && !passed {
			return t.confirmationFailed(until, o.label, fmt.Sprintf("stopped passing after %d polls", i+1), loc)
		}
	}
	if until == PollingStopsPassing {
		return nil
	}
	return t.confirmationFailed(until, o.label, fmt.Sprintf("never passed in %d polls", maxPolls), loc)
}

func (t *T) confirmationFailed(until PollingStop, label, comment string, loc *SourceLocation) error {
	issue := &Issue{
		Kind:        IssueConfirmationPollingFailed,
		Severity:    SeverityError,
		PollingStop: until,
		Expression:  label,
		Comments:    []string{comment},
		Source:      SourceContext{Location: loc},
	}
	t.record(issue)
	return &RecordedError{Issue: issue}
}
