package types

import (
	"errors"
	"fmt"
)

// ConfigError is a programmer or configuration error detected before any
// step runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// CancellationScope distinguishes case and test cancellation.
type CancellationScope uint8

const (
	CaseScope CancellationScope = iota
	TestScope
)

func (s CancellationScope) String() string {
	if s == TestScope {
		return "test"
	}
	return "case"
}

// CancellationError is returned by T.CancelCase and T.CancelTest. Returning
// it from a body ends the case as cancelled without recording an issue.
type CancellationError struct {
	Scope  CancellationScope
	Reason string
	Source *SourceLocation
}

func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s cancelled", e.Scope)
	}
	return fmt.Sprintf("%s cancelled: %s", e.Scope, e.Reason)
}

// SkipError is returned by T.Skip. Returning it from a body ends the case as
// skipped.
type SkipError struct {
	Reason string
	Source *SourceLocation
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// RecordedError reports a failure that is already recorded as an issue, so
// the runner does not record it again.
type RecordedError struct {
	Issue *Issue
}

func (e *RecordedError) Error() string {
	return e.Issue.Description()
}
