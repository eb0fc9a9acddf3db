package types

import (
	"fmt"
	"time"
)

// EventKind enumerates the notifications the runner produces.
type EventKind uint8

const (
	EventRunStarted EventKind = iota + 1
	EventRunEnded
	EventIterationStarted
	EventIterationEnded
	EventTestStarted
	EventTestEnded
	EventTestCaseStarted
	EventTestCaseEnded
	EventTestSkipped
	EventTestCaseSkipped
	EventTestCancelled
	EventTestCaseCancelled
	EventIssueRecorded
	EventMessageLogged
	EventExpectationChecked
)

var eventKindNames = map[EventKind]string{
	EventRunStarted:         "runStarted",
	EventRunEnded:           "runEnded",
	EventIterationStarted:   "iterationStarted",
	EventIterationEnded:     "iterationEnded",
	EventTestStarted:        "testStarted",
	EventTestEnded:          "testEnded",
	EventTestCaseStarted:    "testCaseStarted",
	EventTestCaseEnded:      "testCaseEnded",
	EventTestSkipped:        "testSkipped",
	EventTestCaseSkipped:    "testCaseSkipped",
	EventTestCancelled:      "testCancelled",
	EventTestCaseCancelled:  "testCaseCancelled",
	EventIssueRecorded:      "issueRecorded",
	EventMessageLogged:      "messageLogged",
	EventExpectationChecked: "expectationChecked",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

func (k EventKind) MarshalText() ([]byte, error) {
	if _, ok := eventKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown event kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(b []byte) error {
	for kind, name := range eventKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// SkipInfo explains why a test or case was skipped or cancelled.
type SkipInfo struct {
	Reason string
	Source *SourceLocation
}

// Expectation is the payload of an expectationChecked event.
type Expectation struct {
	Expression string
	Passed     bool
}

// Event is an immutable notification. TestID and CaseID are nil for
// run- and iteration-level events.
type Event struct {
	Kind      EventKind
	Instant   time.Time
	Iteration int
	TestID    *ID
	CaseID    *CaseID

	Issue       *Issue
	Skip        *SkipInfo
	Message     string
	Expectation *Expectation
}

func (e *Event) String() string {
	s := e.Kind.String()
	if e.TestID != nil {
		s += " " + e.TestID.String()
	}
	if e.CaseID != nil && !e.CaseID.IsEmpty() {
		s += " " + e.CaseID.String()
	}
	return s
}

// EventContext carries the ambient state an event was produced in.
type EventContext struct {
	Test          *Test
	Case          *Case
	Iteration     int
	Configuration *Configuration
}

// EventHandler receives every event of a run. Calls are serialized by the
// runner, so handlers need not synchronize among themselves.
type EventHandler func(event *Event, ctx *EventContext)

// ComposeHandlers fans an event out to several handlers in order.
func ComposeHandlers(handlers ...EventHandler) EventHandler {
	var hs []EventHandler
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return func(event *Event, ctx *EventContext) {
		for _, h := range hs {
			h(event, ctx)
		}
	}
}
