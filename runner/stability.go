package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/types"
)

const maxFailureLogs = 5

// StabilityResult aggregates one test's outcomes across the iterations of a run
type StabilityResult struct {
	TestID         string        `json:"test_id"`
	TestName       string        `json:"test_name"`
	Module         string        `json:"module"`
	TotalRuns      int           `json:"total_runs"`
	Passes         int           `json:"passes"`
	Failures       int           `json:"failures"`
	Skipped        int           `json:"skipped"`
	Cancelled      int           `json:"cancelled"`
	PassRate       float64       `json:"pass_rate"`
	AvgDuration    time.Duration `json:"avg_duration"`
	MinDuration    time.Duration `json:"min_duration"`
	MaxDuration    time.Duration `json:"max_duration"`
	FailureLogs    []string      `json:"failure_logs,omitempty"`
	LastFailure    *int          `json:"last_failure_iteration,omitempty"`
	Recommendation string        `json:"recommendation"`
}

// StabilityReport contains the stability analysis of a repeated run
type StabilityReport struct {
	Date        string            `json:"date"`
	RunID       string            `json:"run_id"`
	Repetition  string            `json:"repetition"`
	Iterations  int               `json:"iterations"`
	TotalRuns   int               `json:"total_runs"`
	Tests       []StabilityResult `json:"tests"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// BuildStabilityReport summarises every test of result across iterations.
// Tests are listed in plan order. A test is STABLE only if it passed in
// every iteration it ran in.
func BuildStabilityReport(result *RunResult, repetition types.RepetitionPolicy) *StabilityReport {
	now := time.Now()
	report := &StabilityReport{
		Date:        now.Format("2006-01-02"),
		RunID:       result.RunID,
		Repetition:  repetition.String(),
		Iterations:  len(result.Iterations),
		GeneratedAt: now,
	}

	index := make(map[string]int)
	var totals []time.Duration
	for _, it := range result.Iterations {
		for _, tr := range it.Tests {
			key := tr.Test.ID.Key()
			i, ok := index[key]
			if !ok {
				i = len(report.Tests)
				index[key] = i
				report.Tests = append(report.Tests, StabilityResult{
					TestID:      tr.Test.ID.String(),
					TestName:    tr.Test.Name(),
					Module:      tr.Test.ID.Module,
					MinDuration: tr.Duration,
				})
				totals = append(totals, 0)
			}
			sr := &report.Tests[i]
			sr.TotalRuns++
			switch tr.Outcome {
			case types.OutcomePassed:
				sr.Passes++
			case types.OutcomeFailed:
				sr.Failures++
				iteration := it.Index
				sr.LastFailure = &iteration
				for _, log := range failureLogs(tr) {
					if len(sr.FailureLogs) >= maxFailureLogs {
						break
					}
					sr.FailureLogs = append(sr.FailureLogs, log)
				}
			case types.OutcomeSkipped:
				sr.Skipped++
			case types.OutcomeCancelled:
				sr.Cancelled++
			}
			totals[i] += tr.Duration
			sr.MinDuration = min(sr.MinDuration, tr.Duration)
			sr.MaxDuration = max(sr.MaxDuration, tr.Duration)
		}
	}

	for i := range report.Tests {
		sr := &report.Tests[i]
		if sr.TotalRuns > 0 {
			sr.AvgDuration = totals[i] / time.Duration(sr.TotalRuns)
			sr.PassRate = float64(sr.Passes) / float64(sr.TotalRuns) * 100
		}
		if sr.PassRate == 100 {
			sr.Recommendation = "STABLE"
		} else {
			sr.Recommendation = "UNSTABLE"
		}
		report.TotalRuns += sr.TotalRuns
	}
	return report
}

func failureLogs(tr *TestResult) []string {
	var out []string
	for _, issue := range tr.Issues {
		if issue.IsFailure() {
			out = append(out, issue.String())
		}
	}
	for _, c := range tr.Cases {
		for _, issue := range c.Issues {
			if issue.IsFailure() {
				out = append(out, fmt.Sprintf("%s %s", c.Case.ID.String(), issue.String()))
			}
		}
	}
	return out
}

// SaveStabilityReport saves the report in both JSON and HTML formats
func SaveStabilityReport(report *StabilityReport, outputDir string) ([]string, error) {
	var savedFiles []string
	var errs []error

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	jsonFilename := filepath.Join(outputDir, "stability-report.json")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to marshal JSON: %w", err))
	} else if err := os.WriteFile(jsonFilename, data, 0644); err != nil {
		errs = append(errs, fmt.Errorf("failed to write JSON file: %w", err))
	} else {
		savedFiles = append(savedFiles, jsonFilename)
	}

	htmlFilename := filepath.Join(outputDir, "stability-report.html")
	if err := saveHTMLReport(report, htmlFilename); err != nil {
		errs = append(errs, fmt.Errorf("failed to save HTML report: %w", err))
	} else {
		savedFiles = append(savedFiles, htmlFilename)
	}

	return savedFiles, errors.Join(errs...)
}

var stabilityTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Stability Report - {{.Date}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        table { border-collapse: collapse; width: 100%; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background: #4CAF50; color: white; }
        .STABLE { color: #4CAF50; font-weight: bold; }
        .UNSTABLE { color: #f44336; font-weight: bold; }
        .failure-log { background: #ffebee; padding: 8px; font-family: monospace; white-space: pre-wrap; }
    </style>
</head>
<body>
    <h1>Stability Report</h1>
    <p><strong>Run ID:</strong> {{.RunID}} &middot; <strong>Repetition:</strong> {{.Repetition}} &middot; <strong>Iterations:</strong> {{.Iterations}}</p>
    <table>
        <tr><th>Test</th><th>Runs</th><th>Pass Rate</th><th>Avg Duration</th><th>Recommendation</th><th>Failures</th></tr>
        {{range .Tests}}
        <tr>
            <td>{{.TestID}}</td>
            <td>{{.TotalRuns}}</td>
            <td>{{printf "%.1f" .PassRate}}%</td>
            <td>{{.AvgDuration}}</td>
            <td class="{{.Recommendation}}">{{.Recommendation}}</td>
            <td>{{range .FailureLogs}}<div class="failure-log">{{.}}</div>{{end}}</td>
        </tr>
        {{end}}
    </table>
</body>
</html>`))

func saveHTMLReport(report *StabilityReport, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return stabilityTemplate.Execute(file, report)
}
