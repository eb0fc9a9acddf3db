// Package reporting renders run results and live events for humans.
package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/runner"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(result *runner.RunResult) error
}

// ConsoleResultFormatter prints a summary table of a run.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter creates a formatter writing to out.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{logger: logger, out: out}
}

// FormatResults renders one row per test and iteration, and a footer with
// the run totals.
func (f *ConsoleResultFormatter) FormatResults(result *runner.RunResult) error {
	f.logger.Debug("Printing results...")
	_, err := fmt.Fprint(f.out, RenderTable(result))
	return err
}

// RenderTable renders the summary table of result.
func RenderTable(result *runner.RunResult) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(result.Duration)))
	t.AppendHeader(table.Row{
		"Iteration", "Test", "Duration", "Cases", "Passed", "Failed", "Skipped", "Cancelled", "Outcome", "Issue",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Iteration", AutoMerge: true, Align: text.AlignRight},
		{Name: "Test", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Cases", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Cancelled", Align: text.AlignRight},
		{Name: "Issue", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, it := range result.Iterations {
		for _, tr := range it.Tests {
			var s runner.ResultStats
			for _, c := range tr.Cases {
				switch c.Outcome {
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
			t.AppendRow(table.Row{
				it.Index + 1,
				testLabel(tr.Test),
				formatDuration(tr.Duration),
				len(tr.Cases),
				s.Passed,
				s.Failed,
				s.Skipped,
				s.Cancelled,
				outcomeString(tr.Outcome),
				firstIssue(tr),
			})
		}
		t.AppendSeparator()
	}

	switch result.Outcome {
	case types.OutcomePassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.OutcomeSkipped, types.OutcomeCancelled:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d tests", result.Stats.Tests),
		formatDuration(result.Duration),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Stats.Skipped,
		result.Stats.Cancelled,
		outcomeString(result.Outcome),
		"",
	})
	return t.Render() + "\n"
}

// Summary renders a one-line description of result.
func Summary(result *runner.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s %s: %d iteration(s), %d test(s), %d case(s) (%d passed, %d failed, %d skipped, %d cancelled) in %s",
		result.RunID, outcomeString(result.Outcome), len(result.Iterations), result.Stats.Tests,
		result.Stats.Total, result.Stats.Passed, result.Stats.Failed, result.Stats.Skipped, result.Stats.Cancelled,
		formatDuration(result.Duration))
	if result.Interrupted {
		b.WriteString(" [interrupted]")
	}
	return b.String()
}

func testLabel(test *types.Test) string {
	indent := strings.Repeat("  ", max(len(test.ID.Names)-1, 0))
	if test.IsSuite() {
		return indent + test.Name() + "/"
	}
	return indent + test.Name()
}

func firstIssue(tr *runner.TestResult) string {
	for _, issue := range tr.Issues {
		if issue.IsFailure() {
			return issue.Description()
		}
	}
	for _, c := range tr.Cases {
		for _, issue := range c.Issues {
			if issue.IsFailure() {
				return issue.Description()
			}
		}
	}
	if tr.Skip != nil {
		return tr.Skip.Reason
	}
	if tr.Cancellation != nil {
		return tr.Cancellation.Error()
	}
	return ""
}

func outcomeString(o types.Outcome) string {
	switch o {
	case types.OutcomePassed:
		return "PASS"
	case types.OutcomeFailed:
		return "FAIL"
	case types.OutcomeSkipped:
		return "SKIP"
	case types.OutcomeCancelled:
		return "CANCEL"
	default:
		return "UNKNOWN"
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
