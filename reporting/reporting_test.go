package reporting

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/abi"
	"github.com/ethereum-optimism/infra/op-testengine/plan"
	"github.com/ethereum-optimism/infra/op-testengine/registry"
	"github.com/ethereum-optimism/infra/op-testengine/runner"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *runner.RunResult {
	failing := types.NewIssue(types.IssueErrorCaught)
	failing.Err = errors.New("boom")

	pass := &runner.TestResult{
		Test:     &types.Test{ID: types.NewID("mod", "ok")},
		Outcome:  types.OutcomePassed,
		Cases:    []*runner.CaseResult{{Outcome: types.OutcomePassed}},
		Duration: 20 * time.Millisecond,
	}
	fail := &runner.TestResult{
		Test:    &types.Test{ID: types.NewID("mod", "bad")},
		Outcome: types.OutcomeFailed,
		Cases: []*runner.CaseResult{
			{Outcome: types.OutcomePassed},
			{Outcome: types.OutcomeFailed, Issues: []*types.Issue{failing}},
		},
		Duration: 1500 * time.Millisecond,
	}
	return &runner.RunResult{
		RunID:      "run-1",
		Outcome:    types.OutcomeFailed,
		Iterations: []*runner.IterationResult{{Index: 0, Tests: []*runner.TestResult{pass, fail}}},
		Stats:      runner.ResultStats{Tests: 2, TestsPassed: 1, TestsFailed: 1, Total: 3, Passed: 2, Failed: 1},
		Duration:   2 * time.Second,
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(sampleResult())
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "bad")
	assert.Contains(t, out, "caught error: boom")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "TOTAL")
}

func TestConsoleResultFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleResultFormatter(log.NewLogger(log.DiscardHandler()), &buf)
	require.NoError(t, f.FormatResults(&runner.RunResult{RunID: "empty", Outcome: types.OutcomePassed}))
	assert.Contains(t, buf.String(), "TOTAL")
}

func TestSummary(t *testing.T) {
	res := sampleResult()
	res.Interrupted = true
	s := Summary(res)
	assert.Contains(t, s, "run-1 FAIL")
	assert.Contains(t, s, "3 case(s) (2 passed, 1 failed, 0 skipped, 0 cancelled)")
	assert.Contains(t, s, "[interrupted]")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
}

func TestEventLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(&buf, log.LevelTrace, false))
	handle := EventLogger(logger)

	id := types.NewID("mod", "bad")
	issue := types.NewIssue(types.IssueUnconditional, "nope")
	handle(&types.Event{Kind: types.EventIssueRecorded, TestID: &id, Issue: issue}, nil)
	handle(&types.Event{Kind: types.EventMessageLogged, TestID: &id, Message: "hello there"}, nil)
	handle(&types.Event{Kind: types.EventTestSkipped, TestID: &id, Skip: &types.SkipInfo{Reason: "disabled"}}, nil)
	handle(&types.Event{Kind: types.EventRunStarted}, nil)

	out := buf.String()
	assert.Contains(t, out, "Issue recorded")
	assert.Contains(t, out, "mod/bad")
	assert.Contains(t, out, "hello there")
	assert.Contains(t, out, "disabled")
	assert.Contains(t, out, "runStarted")
}

func TestRecordSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewRecordSink(dir, "run-1", log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-1", "records.jsonl"), sink.Path())

	id := types.NewID("mod", "ok")
	test := &types.Test{ID: id, Body: func(*types.T, []any) error { return nil }}
	require.NoError(t, sink.WriteTests(&plan.Plan{Steps: []*plan.Step{{Test: test}}}))
	sink.HandleEvent(&types.Event{Kind: types.EventRunStarted, Instant: time.Now()}, &types.EventContext{})
	sink.HandleEvent(&types.Event{Kind: types.EventTestStarted, Instant: time.Now(), TestID: &id}, &types.EventContext{Test: test})
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	// writes after close are dropped
	sink.HandleEvent(&types.Event{Kind: types.EventRunEnded, Instant: time.Now()}, &types.EventContext{})

	data, err := os.ReadFile(sink.Path())
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 3)

	rec, err := abi.DecodeRecord(lines[0])
	require.NoError(t, err)
	snap, err := rec.Test()
	require.NoError(t, err)
	assert.Equal(t, "mod/ok", snap.ID)

	rec, err = abi.DecodeRecord(lines[2])
	require.NoError(t, err)
	ev, err := rec.Event()
	require.NoError(t, err)
	assert.Equal(t, types.EventTestStarted, ev.Kind)
	assert.Equal(t, "mod/ok", ev.TestID)
}

func TestNewRecordSink_RequiresRunID(t *testing.T) {
	_, err := NewRecordSink(t.TempDir(), "", log.NewLogger(log.DiscardHandler()))
	require.Error(t, err)
}

func TestTreePrefix(t *testing.T) {
	tests := []struct {
		depth        int
		isLast       bool
		parentIsLast []bool
		want         string
	}{
		{0, true, nil, ""},
		{1, false, nil, "├── "},
		{1, true, nil, "└── "},
		{2, true, []bool{true}, "    └── "},
		{2, false, []bool{false}, "│   ├── "},
		{3, true, []bool{false, true}, "│       └── "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, treePrefix(tt.depth, tt.isLast, tt.parentIsLast))
	}
}

func TestRenderPlanTree(t *testing.T) {
	body := func(*types.T, []any) error { return nil }
	recs := []registry.Record{
		{Kind: registry.KindSuite, Module: "mod", Names: []string{"s"}},
		{Kind: registry.KindTest, Module: "mod", Names: []string{"s", "a"}, Traits: []types.Trait{types.Tags("x")}, Body: body},
		{
			Kind: registry.KindTest, Module: "mod", Names: []string{"s", "b"}, Body: body,
			Parameters: []types.Parameter{{Name: "n", Type: reflect.TypeFor[int]()}},
			Arguments:  []types.ArgumentCollection{types.Range(0, 2)},
		},
		{Kind: registry.KindTest, Module: "mod", Names: []string{"c"}, Body: body},
	}
	logger := log.NewLogger(log.DiscardHandler())
	graph := registry.NewGraph(slices.Values(recs), logger)
	p, err := plan.Build(context.Background(), graph, plan.All(), types.DefaultConfiguration())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderPlanTree(&buf, p))
	want := "mod/s\n" +
		"├── a #x\n" +
		"└── b (n int)\n" +
		"mod/c\n" +
		"3 test(s) planned\n"
	assert.Equal(t, want, buf.String())
}
