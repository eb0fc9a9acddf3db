package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepetitionPolicy_Validate(t *testing.T) {
	require.NoError(t, Once().Validate())
	require.NoError(t, Repeating(StopUntilIssueRecorded, 10).Validate())

	err := Repeating(StopUnconditional, 0).Validate()
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	err = Repeating(StopWhileIssueRecorded, -3).Validate()
	assert.True(t, IsConfigError(err))
}

func TestRepetitionPolicy_ShouldStop(t *testing.T) {
	tests := []struct {
		name      string
		policy    RepetitionPolicy
		iteration int
		issue     bool
		want      bool
	}{
		{name: "once", policy: Once(), iteration: 0, want: true},
		{name: "unconditional continues", policy: Repeating(StopUnconditional, 3), iteration: 1, issue: true, want: false},
		{name: "unconditional hits max", policy: Repeating(StopUnconditional, 3), iteration: 2, want: true},
		{name: "until issue without issue", policy: Repeating(StopUntilIssueRecorded, 10), iteration: 4, want: false},
		{name: "until issue with issue", policy: Repeating(StopUntilIssueRecorded, 10), iteration: 5, issue: true, want: true},
		{name: "while issue with issue", policy: Repeating(StopWhileIssueRecorded, 10), iteration: 4, issue: true, want: false},
		{name: "while issue without issue", policy: Repeating(StopWhileIssueRecorded, 10), iteration: 5, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.ShouldStop(tt.iteration, tt.issue))
		})
	}
}

func TestParseStopCondition(t *testing.T) {
	for _, s := range []StopCondition{StopUnconditional, StopUntilIssueRecorded, StopWhileIssueRecorded} {
		parsed, err := ParseStopCondition(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStopCondition("sometimes")
	assert.Error(t, err)
}

func TestConfiguration_TimeLimit(t *testing.T) {
	cfg := Configuration{DefaultTimeLimit: time.Minute, MaxTimeLimit: 5 * time.Minute}

	assert.Equal(t, time.Minute, cfg.TimeLimit(nil))
	assert.Equal(t, 2*time.Minute, cfg.TimeLimit([]Trait{TimeLimit(2 * time.Minute)}))
	assert.Equal(t, 5*time.Minute, cfg.TimeLimit([]Trait{TimeLimit(time.Hour)}))

	unlimited := Configuration{}
	assert.Zero(t, unlimited.TimeLimit(nil))
}

func TestConfiguration_Validate(t *testing.T) {
	cfg := DefaultConfiguration()
	require.NoError(t, cfg.Validate())

	cfg.MaxParallelism = -1
	assert.True(t, IsConfigError(cfg.Validate()))

	cfg = DefaultConfiguration()
	cfg.Repetition.MaxIterations = 0
	assert.True(t, IsConfigError(cfg.Validate()))
}
