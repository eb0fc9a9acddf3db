package types

import (
	"fmt"
	"strings"
	"time"
)

// IssueKind classifies a recorded issue.
type IssueKind uint8

const (
	IssueUnconditional IssueKind = iota + 1
	IssueExpectationFailed
	IssueErrorCaught
	IssueAPIMisused
	IssueTimeLimitExceeded
	IssueConfirmationPollingFailed
	IssueKnownIssueNotRecorded
	IssueSystem
)

var issueKindNames = map[IssueKind]string{
	IssueUnconditional:             "unconditional",
	IssueExpectationFailed:         "expectationFailed",
	IssueErrorCaught:               "errorCaught",
	IssueAPIMisused:                "apiMisused",
	IssueTimeLimitExceeded:         "timeLimitExceeded",
	IssueConfirmationPollingFailed: "confirmationPollingFailed",
	IssueKnownIssueNotRecorded:     "knownIssueNotRecorded",
	IssueSystem:                    "system",
}

func (k IssueKind) String() string {
	if s, ok := issueKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("IssueKind(%d)", uint8(k))
}

func (k IssueKind) MarshalText() ([]byte, error) {
	if _, ok := issueKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown issue kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *IssueKind) UnmarshalText(b []byte) error {
	for kind, name := range issueKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown issue kind %q", b)
}

// absorbable reports whether a known-issue scope may demote issues of this
// kind. Engine and misuse issues always surface.
func (k IssueKind) absorbable() bool {
	switch k {
	case IssueAPIMisused, IssueSystem, IssueTimeLimitExceeded:
		return false
	}
	return true
}

// Severity of an issue. The zero value is SeverityError.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", uint8(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	if s > SeverityWarning {
		return nil, fmt.Errorf("unknown severity %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// SourceContext locates where an issue was raised.
type SourceContext struct {
	Backtrace Backtrace
	Location  *SourceLocation
}

// Issue is a problem recorded while a test ran. Only comments may change
// after creation, when a known-issue scope claims it.
type Issue struct {
	Kind     IssueKind
	Severity Severity
	Comments []string
	Source   SourceContext

	// Known is set when a known-issue scope absorbed the issue.
	Known bool

	// Kind-specific details.
	Err         error
	Expression  string
	TimeLimit   time.Duration
	PollingStop PollingStop
}

// NewIssue creates an error-severity issue of the given kind.
func NewIssue(kind IssueKind, comments ...string) *Issue {
	return &Issue{Kind: kind, Severity: SeverityError, Comments: comments}
}

// IsFailure reports whether the issue fails the enclosing case.
func (i *Issue) IsFailure() bool {
	return !i.Known && i.Severity == SeverityError
}

// prependComment is the one permitted mutation after creation.
func (i *Issue) prependComment(c string) {
	if c == "" {
		return
	}
	i.Comments = append([]string{c}, i.Comments...)
}

// Description renders the issue on one line.
func (i *Issue) Description() string {
	var b strings.Builder
	switch i.Kind {
	case IssueExpectationFailed:
		fmt.Fprintf(&b, "expectation failed: %s", i.Expression)
	case IssueErrorCaught:
		if i.Err != nil {
			fmt.Fprintf(&b, "caught error: %v", i.Err)
		} else {
			b.WriteString("caught error")
		}
	case IssueTimeLimitExceeded:
		fmt.Fprintf(&b, "time limit exceeded: %s", i.TimeLimit)
	case IssueConfirmationPollingFailed:
		fmt.Fprintf(&b, "confirmation polling failed (%s)", i.PollingStop)
		if i.Expression != "" {
			fmt.Fprintf(&b, ": %s", i.Expression)
		}
	default:
		b.WriteString(i.Kind.String())
	}
	if i.Known {
		b.WriteString(" [known]")
	}
	if i.Severity == SeverityWarning {
		b.WriteString(" [warning]")
	}
	if len(i.Comments) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(i.Comments, "; "))
	}
	if i.Source.Location != nil {
		fmt.Fprintf(&b, " (%s)", i.Source.Location)
	}
	return b.String()
}

func (i *Issue) String() string {
	return i.Description()
}
