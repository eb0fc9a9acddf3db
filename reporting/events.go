package reporting

import (
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
)

// EventLogger returns a handler that writes each event as a structured log
// line. Case-level lifecycle events are logged at debug level.
func EventLogger(logger log.Logger) types.EventHandler {
	return func(ev *types.Event, _ *types.EventContext) {
		attrs := []any{"event", ev.Kind.String(), "iteration", ev.Iteration}
		if ev.TestID != nil {
			attrs = append(attrs, "test", ev.TestID.String())
		}
		if ev.CaseID != nil && !ev.CaseID.IsEmpty() {
			attrs = append(attrs, "case", ev.CaseID.String())
		}

		switch ev.Kind {
		case types.EventIssueRecorded:
			attrs = append(attrs, "issue", ev.Issue.Description())
			if ev.Issue.IsFailure() {
				logger.Error("Issue recorded", attrs...)
			} else {
				logger.Warn("Issue recorded", attrs...)
			}
		case types.EventMessageLogged:
			logger.Info(ev.Message, attrs...)
		case types.EventTestSkipped, types.EventTestCaseSkipped, types.EventTestCancelled, types.EventTestCaseCancelled:
			if ev.Skip != nil {
				attrs = append(attrs, "reason", ev.Skip.Reason)
			}
			logger.Info("Test not run", attrs...)
		case types.EventExpectationChecked:
			attrs = append(attrs, "expression", ev.Expectation.Expression, "passed", ev.Expectation.Passed)
			logger.Trace("Expectation checked", attrs...)
		case types.EventTestCaseStarted, types.EventTestCaseEnded:
			logger.Debug("Case lifecycle", attrs...)
		default:
			logger.Info("Lifecycle", attrs...)
		}
	}
}
