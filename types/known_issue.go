package types

import "slices"

type knownIssueScope struct {
	comment      string
	intermittent bool
	matcher      func(*Issue) bool
	matched      int
}

func (s *knownIssueScope) matches(issue *Issue) bool {
	return s.matcher == nil || s.matcher(issue)
}

type knownIssueOptions struct {
	intermittent bool
	matcher      func(*Issue) bool
	when         func() bool
}

// KnownIssueOption configures WithKnownIssue.
type KnownIssueOption func(*knownIssueOptions)

// Intermittent tolerates a run of the wrapped code that records no issue.
func Intermittent() KnownIssueOption {
	return func(o *knownIssueOptions) { o.intermittent = true }
}

// Matching limits the scope to issues accepted by match.
func Matching(match func(*Issue) bool) KnownIssueOption {
	return func(o *knownIssueOptions) { o.matcher = match }
}

// When enables the scope only if cond reports true. A disabled scope runs
// fn as ordinary test code.
func When(cond func() bool) KnownIssueOption {
	return func(o *knownIssueOptions) { o.when = cond }
}

// WithKnownIssue runs fn and demotes the issues it records, including an
// error it returns or a panic, so they no longer fail the case. The demoted
// issues are still reported, with comment prepended. If fn records no
// matching issue a knownIssueNotRecorded issue is recorded instead, unless
// the scope is Intermittent.
//
// Cancellation and skip errors from fn are returned for the body to
// propagate; every other error is absorbed.
func (t *T) WithKnownIssue(comment string, fn func() error, opts ...KnownIssueOption) error {
	var o knownIssueOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.when != nil && !o.when() {
		return t.RecordBodyError(Catch(fn))
	}

	scope := &knownIssueScope{comment: comment, intermittent: o.intermittent, matcher: o.matcher}
	t.mu.Lock()
	t.known = append(t.known, scope)
	t.mu.Unlock()

	passthrough := t.RecordBodyError(Catch(fn))

	t.mu.Lock()
	if i := slices.Index(t.known, scope); i >= 0 {
		t.known = slices.Delete(t.known, i, i+1)
	}
	matched := scope.matched
	t.mu.Unlock()

	if passthrough == nil && matched == 0 && !scope.intermittent {
		t.record(&Issue{
			Kind:     IssueKnownIssueNotRecorded,
			Severity: SeverityError,
			Comments: []string{comment},
			Source:   SourceContext{Location: callerLocationPtr(2)},
		})
	}
	return passthrough
}
