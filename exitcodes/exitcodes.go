// Package exitcodes defines the process exit codes of op-testengine.
package exitcodes

// * Success (0): every run passed
// * TestFailure (1): a case or test failed
// * RuntimeErr (2): configuration, discovery or other runtime errors
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
