package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	validLabelRegex := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			assert.Regexp(t, validLabelRegex, result)
		})
	}
}

func TestRecordError(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordError("test_error")
		RecordErrorDetails("label", errors.New("some failure"))
		RecordErrorDetails("label", nil)
	})
}

func TestRecordCase(t *testing.T) {
	before := testutil.ToFloat64(casesTotal.WithLabelValues("mod/a", "failed"))
	RecordCase("mod/a", types.OutcomeFailed)
	RecordCase("mod/a", types.Outcome("bogus"))
	assert.Equal(t, before+1, testutil.ToFloat64(casesTotal.WithLabelValues("mod/a", "failed")))
}

func TestRecordIssue(t *testing.T) {
	issue := types.NewIssue(types.IssueExpectationFailed)
	issue.Known = true
	before := testutil.ToFloat64(issuesTotal.WithLabelValues("expectationFailed", "error", "true"))
	RecordIssue(issue)
	assert.Equal(t, before+1, testutil.ToFloat64(issuesTotal.WithLabelValues("expectationFailed", "error", "true")))
}

func TestRecordRun(t *testing.T) {
	RecordRun("run-1", types.OutcomePassed, 3, 2, 1, 1500*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(runResults.WithLabelValues("run-1", "passed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(runTestTotal.WithLabelValues("run-1")))
	assert.Equal(t, 1.5, testutil.ToFloat64(runDuration.WithLabelValues("run-1")))
}
