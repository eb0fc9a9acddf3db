package types

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Recorder receives what a running body reports. The runner implements it
// and turns each call into an event.
type Recorder interface {
	IssueRecorded(t *T, issue *Issue)
	MessageLogged(t *T, message string)
	ExpectationChecked(t *T, expectation Expectation)
}

// Scope is the ambient state of one case execution.
type Scope struct {
	Test          *Test
	Case          *Case
	Traits        []Trait
	Iteration     int
	Configuration *Configuration
	Logger        log.Logger

	// CancelTest cancels the whole test the case belongs to.
	CancelTest func(err *CancellationError)
}

// T is handed to every body invocation. It records issues against the
// current case and exposes cooperative cancellation.
type T struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	scope  Scope
	rec    Recorder
	logger log.Logger

	mu        sync.Mutex
	issues    []*Issue
	failed    bool
	cancelled *CancellationError
	known     []*knownIssueScope
}

// NewT creates the body-facing handle for one case. The returned T owns a
// child context that is cancelled by CancelCase, CancelTest or End.
func NewT(ctx context.Context, scope Scope, rec Recorder) *T {
	cctx, cancel := context.WithCancelCause(ctx)
	logger := scope.Logger
	if logger == nil {
		logger = log.NewLogger(log.DiscardHandler())
	}
	if scope.Test != nil {
		logger = logger.New("test", scope.Test.ID.String())
	}
	if scope.Case != nil && !scope.Case.ID.IsEmpty() {
		logger = logger.New("case", scope.Case.ID.String())
	}
	return &T{ctx: cctx, cancel: cancel, scope: scope, rec: rec, logger: logger}
}

// End releases the case context.
func (t *T) End() {
	t.cancel(context.Canceled)
}

// Context is cancelled when the case or its test is cancelled, when the
// time limit elapses, or when the run is interrupted.
func (t *T) Context() context.Context { return t.ctx }

func (t *T) Test() *Test                   { return t.scope.Test }
func (t *T) Case() *Case                   { return t.scope.Case }
func (t *T) Iteration() int                { return t.scope.Iteration }
func (t *T) Traits() []Trait               { return t.scope.Traits }
func (t *T) Configuration() *Configuration { return t.scope.Configuration }
func (t *T) Logger() log.Logger            { return t.logger }

// Errorf records an unconditional error-severity issue.
func (t *T) Errorf(format string, args ...any) {
	t.record(&Issue{
		Kind:     IssueUnconditional,
		Severity: SeverityError,
		Comments: []string{fmt.Sprintf(format, args...)},
		Source:   SourceContext{Location: callerLocationPtr(2)},
	})
}

// Warnf records a warning. Warnings never fail the case.
func (t *T) Warnf(format string, args ...any) {
	t.record(&Issue{
		Kind:     IssueUnconditional,
		Severity: SeverityWarning,
		Comments: []string{fmt.Sprintf(format, args...)},
		Source:   SourceContext{Location: callerLocationPtr(2)},
	})
}

// Record records a caller-built issue.
func (t *T) Record(issue *Issue) {
	if issue.Source.Location == nil {
		issue.Source.Location = callerLocationPtr(2)
	}
	t.record(issue)
}

// RecordError records err as a caught error. Errors that were already
// recorded are ignored.
func (t *T) RecordError(err error) {
	if err == nil {
		return
	}
	var re *RecordedError
	if errors.As(err, &re) {
		return
	}
	t.record(errorIssue(err, CaptureBacktrace(1)))
}

func errorIssue(err error, bt Backtrace) *Issue {
	var pe *PanicError
	if errors.As(err, &pe) {
		bt = pe.Backtrace
	}
	issue := &Issue{
		Kind:     IssueErrorCaught,
		Severity: SeverityError,
		Err:      err,
		Source:   SourceContext{Backtrace: bt},
	}
	if frames := bt.Frames(); len(frames) > 0 {
		issue.Source.Location = &SourceLocation{File: frames[0].File, Line: frames[0].Line}
	}
	return issue
}

// RecordBodyError classifies an error returned by a body. Cancellation and
// skip errors are returned unchanged for the caller to act on; every other
// error is recorded once and nil is returned.
func (t *T) RecordBodyError(err error) error {
	if err == nil {
		return nil
	}
	var ce *CancellationError
	var se *SkipError
	var re *RecordedError
	switch {
	case errors.As(err, &ce), errors.As(err, &se):
		return err
	case errors.As(err, &re):
		return nil
	case t.ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		// The body observed cancellation of its context.
		return err
	}
	t.record(errorIssue(err, CaptureBacktrace(1)))
	return nil
}

// Expect records an expectation failure when ok is false.
func (t *T) Expect(ok bool, expression string) bool {
	t.rec.ExpectationChecked(t, Expectation{Expression: expression, Passed: ok})
	if !ok {
		t.record(&Issue{
			Kind:       IssueExpectationFailed,
			Severity:   SeverityError,
			Expression: expression,
			Source:     SourceContext{Location: callerLocationPtr(2)},
		})
	}
	return ok
}

// Require is Expect for preconditions: it returns a RecordedError the body
// should return when ok is false.
func (t *T) Require(ok bool, expression string) error {
	t.rec.ExpectationChecked(t, Expectation{Expression: expression, Passed: ok})
	if ok {
		return nil
	}
	issue := &Issue{
		Kind:       IssueExpectationFailed,
		Severity:   SeverityError,
		Expression: expression,
		Source:     SourceContext{Location: callerLocationPtr(2)},
	}
	t.record(issue)
	return &RecordedError{Issue: issue}
}

// Log emits a messageLogged event.
func (t *T) Log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.logger.Debug("Test message", "message", msg)
	t.rec.MessageLogged(t, msg)
}

// Skip returns an error that ends the case as skipped.
func (t *T) Skip(reason string) error {
	return &SkipError{Reason: reason, Source: callerLocationPtr(2)}
}

// CancelCase cancels the current case only. The body should return the
// result.
func (t *T) CancelCase(reason string) error {
	err := &CancellationError{Scope: CaseScope, Reason: reason, Source: callerLocationPtr(2)}
	t.markCancelled(err)
	return err
}

// CancelTest cancels the current case and every case of the test that has
// not started yet.
func (t *T) CancelTest(reason string) error {
	err := &CancellationError{Scope: TestScope, Reason: reason, Source: callerLocationPtr(2)}
	t.markCancelled(err)
	if t.scope.CancelTest != nil {
		t.scope.CancelTest(err)
	}
	return err
}

func (t *T) markCancelled(err *CancellationError) {
	t.mu.Lock()
	if t.cancelled == nil || (t.cancelled.Scope == CaseScope && err.Scope == TestScope) {
		t.cancelled = err
	}
	t.mu.Unlock()
	t.cancel(err)
}

// Cancelled returns the explicit cancellation request, if any.
func (t *T) Cancelled() *CancellationError {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Failed reports whether a failing issue was recorded.
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Issues returns the issues recorded so far.
func (t *T) Issues() []*Issue {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.issues)
}

func (t *T) record(issue *Issue) {
	t.mu.Lock()
	if issue.Kind.absorbable() && !issue.Known {
		for i := len(t.known) - 1; i >= 0; i-- {
			scope := t.known[i]
			if scope.matches(issue) {
				issue.Known = true
				issue.prependComment(scope.comment)
				scope.matched++
				break
			}
		}
	}
	t.issues = append(t.issues, issue)
	if issue.IsFailure() {
		t.failed = true
	}
	t.mu.Unlock()
	t.rec.IssueRecorded(t, issue)
}
