package abi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-testengine/types"
)

// RecordKind tags the payload of a Record.
type RecordKind string

const (
	KindEvent RecordKind = "event"
	KindTest  RecordKind = "test"
)

// Record is the envelope of everything the engine streams to a tool.
type Record struct {
	Version string          `json:"version"`
	Kind    RecordKind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type ArgumentIDSnapshot struct {
	Bytes    []byte `json:"bytes"`
	Stable   bool   `json:"stable"`
	Strategy string `json:"strategy,omitempty"`
}

type CaseIDSnapshot struct {
	Stable        bool                 `json:"stable"`
	Discriminator int                  `json:"discriminator,omitempty"`
	Arguments     []ArgumentIDSnapshot `json:"arguments,omitempty"`
	Display       string               `json:"display,omitempty"`
}

type IssueSnapshot struct {
	Kind        types.IssueKind       `json:"kind"`
	Severity    types.Severity        `json:"severity"`
	Known       bool                  `json:"known,omitempty"`
	Comments    []string              `json:"comments,omitempty"`
	Description string                `json:"description"`
	Error       string                `json:"error,omitempty"`
	Expression  string                `json:"expression,omitempty"`
	TimeLimit   time.Duration         `json:"timeLimit,omitempty"`
	PollingStop types.PollingStop     `json:"pollingStop,omitempty"`
	Source      *types.SourceLocation `json:"source,omitempty"`
	Backtrace   []uint64              `json:"backtrace,omitempty"`
}

type SkipSnapshot struct {
	Reason string                `json:"reason,omitempty"`
	Source *types.SourceLocation `json:"source,omitempty"`
}

type ExpectationSnapshot struct {
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
}

// EventSnapshot is the wire form of a types.Event.
type EventSnapshot struct {
	Kind        types.EventKind      `json:"kind"`
	Instant     time.Time            `json:"instant"`
	Iteration   int                  `json:"iteration"`
	TestID      string               `json:"testID,omitempty"`
	TestName    string               `json:"testName,omitempty"`
	CaseID      *CaseIDSnapshot      `json:"caseID,omitempty"`
	Issue       *IssueSnapshot       `json:"issue,omitempty"`
	Skip        *SkipSnapshot        `json:"skip,omitempty"`
	Message     string               `json:"message,omitempty"`
	Expectation *ExpectationSnapshot `json:"expectation,omitempty"`
}

type ParameterSnapshot struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TestSnapshot describes a planned test or suite.
type TestSnapshot struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Module        string               `json:"module"`
	Suite         bool                 `json:"suite,omitempty"`
	Parameterized bool                 `json:"parameterized,omitempty"`
	Parameters    []ParameterSnapshot  `json:"parameters,omitempty"`
	Tags          []string             `json:"tags,omitempty"`
	Source        types.SourceLocation `json:"source"`
}

func snapshotCaseID(id *types.CaseID) *CaseIDSnapshot {
	if id == nil {
		return nil
	}
	s := &CaseIDSnapshot{Stable: id.Stable, Discriminator: id.Discriminator, Display: id.String()}
	for _, a := range id.ArgumentIDs {
		s.Arguments = append(s.Arguments, ArgumentIDSnapshot{Bytes: a.Bytes, Stable: a.Stable, Strategy: a.Strategy.String()})
	}
	return s
}

func snapshotIssue(issue *types.Issue) *IssueSnapshot {
	if issue == nil {
		return nil
	}
	s := &IssueSnapshot{
		Kind:        issue.Kind,
		Severity:    issue.Severity,
		Known:       issue.Known,
		Comments:    issue.Comments,
		Description: stripansi.Strip(issue.Description()),
		Expression:  issue.Expression,
		TimeLimit:   issue.TimeLimit,
		PollingStop: issue.PollingStop,
		Source:      issue.Source.Location,
	}
	if issue.Err != nil {
		s.Error = stripansi.Strip(issue.Err.Error())
	}
	for _, pc := range issue.Source.Backtrace {
		s.Backtrace = append(s.Backtrace, uint64(pc))
	}
	return s
}

// SnapshotEvent converts an event and its context to wire form.
func SnapshotEvent(ev *types.Event, ectx *types.EventContext) *EventSnapshot {
	s := &EventSnapshot{
		Kind:      ev.Kind,
		Instant:   ev.Instant.UTC(),
		Iteration: ev.Iteration,
		CaseID:    snapshotCaseID(ev.CaseID),
		Issue:     snapshotIssue(ev.Issue),
		Message:   stripansi.Strip(ev.Message),
	}
	if ev.TestID != nil {
		s.TestID = ev.TestID.String()
	}
	if ectx != nil && ectx.Test != nil {
		s.TestName = ectx.Test.Name()
	}
	if ev.Skip != nil {
		s.Skip = &SkipSnapshot{Reason: ev.Skip.Reason, Source: ev.Skip.Source}
	}
	if ev.Expectation != nil {
		s.Expectation = &ExpectationSnapshot{Expression: ev.Expectation.Expression, Passed: ev.Expectation.Passed}
	}
	return s
}

// SnapshotTest converts a graph node to wire form.
func SnapshotTest(test *types.Test) *TestSnapshot {
	s := &TestSnapshot{
		ID:            test.ID.String(),
		Name:          test.Name(),
		Module:        test.ID.Module,
		Suite:         test.IsSuite(),
		Parameterized: test.IsParameterized(),
		Tags:          test.Tags(),
		Source:        test.Source,
	}
	for _, p := range test.Parameters {
		s.Parameters = append(s.Parameters, ParameterSnapshot{Name: p.Name, Type: p.TypeName()})
	}
	return s
}

func encode(kind RecordKind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return json.Marshal(Record{Version: SchemaVersion, Kind: kind, Payload: raw})
}

// EncodeEvent renders one event record.
func EncodeEvent(ev *types.Event, ectx *types.EventContext) ([]byte, error) {
	return encode(KindEvent, SnapshotEvent(ev, ectx))
}

// EncodeTest renders one test record.
func EncodeTest(test *types.Test) ([]byte, error) {
	return encode(KindTest, SnapshotTest(test))
}

// DecodeRecord strictly decodes a record envelope and checks its version.
func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := strictUnmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if err := CheckVersion(r.Version); err != nil {
		return nil, err
	}
	switch r.Kind {
	case KindEvent, KindTest:
	default:
		return nil, fmt.Errorf("decode record: unknown kind %q", r.Kind)
	}
	return &r, nil
}

// Event decodes the payload of an event record.
func (r *Record) Event() (*EventSnapshot, error) {
	if r.Kind != KindEvent {
		return nil, fmt.Errorf("record is a %s record, not an event", r.Kind)
	}
	var s EventSnapshot
	if err := strictUnmarshal(r.Payload, &s); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &s, nil
}

// Test decodes the payload of a test record.
func (r *Record) Test() (*TestSnapshot, error) {
	if r.Kind != KindTest {
		return nil, fmt.Errorf("record is a %s record, not a test", r.Kind)
	}
	var s TestSnapshot
	if err := strictUnmarshal(r.Payload, &s); err != nil {
		return nil, fmt.Errorf("decode test: %w", err)
	}
	return &s, nil
}
