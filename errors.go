package testengine

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testengine/types"
)

// RuntimeError stops the engine before or outside a test run and maps to
// exit code 2. It wraps registry and manifest load failures, unknown
// profiles, malformed selections and every *types.ConfigError raised while
// validating the run configuration or building the plan.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	if types.IsConfigError(e.Err) {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError wraps err. A nil err yields nil so call sites can wrap
// unconditionally.
func NewRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	return &RuntimeError{Err: err}
}

// IsRuntimeError reports whether err is or wraps a RuntimeError.
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return errors.As(err, &runtimeErr)
}

// TestFailureError reports a run in which at least one case failed. It maps
// to exit code 1; Message is the one-line run summary.
type TestFailureError struct {
	Message string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

// IsTestFailureError reports whether err is or wraps a TestFailureError.
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return errors.As(err, &testErr)
}
