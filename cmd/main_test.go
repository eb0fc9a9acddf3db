package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	testengine "github.com/ethereum-optimism/infra/op-testengine"
	"github.com/ethereum-optimism/infra/op-testengine/exitcodes"
	"github.com/ethereum-optimism/infra/op-testengine/types"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitcodes.Success},
		{"test failure", testengine.NewTestFailureError("1 failed"), exitcodes.TestFailure},
		{"wrapped test failure", fmt.Errorf("run: %w", testengine.NewTestFailureError("x")), exitcodes.TestFailure},
		{"runtime error", testengine.NewRuntimeError(errors.New("no manifest")), exitcodes.RuntimeErr},
		{"config error", &types.ConfigError{Field: "repetition", Reason: "bad"}, exitcodes.RuntimeErr},
		{"unknown error", errors.New("boom"), exitcodes.RuntimeErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
