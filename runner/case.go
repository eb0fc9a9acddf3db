package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/metrics"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var errTimeLimitExceeded = errors.New("time limit exceeded")

// runCase executes one case of a running test. The caller holds a pool
// token for the duration of the call.
func (it *iterationRun) runCase(tr *testRun, tc *types.Case, leading bool) {
	test := tr.step.Test
	if tr.cancelled.Load() != nil || tr.ctx.Err() != nil {
		it.caseNotStarted(tr, tc)
		return
	}

	start := time.Now()
	ctx, span := it.runner.tracer.Start(tr.ctx, "case")
	defer span.End()
	span.SetAttributes(
		attribute.String("test", test.ID.String()),
		attribute.String("case", tc.ID.String()),
	)

	caseCtx, cancelCase := context.WithCancelCause(ctx)
	defer cancelCase(nil)

	t := types.NewT(caseCtx, types.Scope{
		Test:          test,
		Case:          tc,
		Traits:        tr.step.Traits,
		Iteration:     it.index,
		Configuration: it.cfg,
		Logger:        it.runner.log,
		CancelTest:    tr.cancel,
	}, &caseRecorder{it: it, result: tr.result})
	defer t.End()

	name := caseName(test, tc)
	it.runner.progress.StartCase(name)
	it.post(it.event(types.EventTestCaseStarted, test, tc), test, tc)

	stopTimer := func() {}
	if limit := tr.timeLimit; limit > 0 {
		fired := make(chan struct{})
		timer := time.AfterFunc(limit, func() {
			defer close(fired)
			t.Record(&types.Issue{
				Kind:      types.IssueTimeLimitExceeded,
				Severity:  types.SeverityError,
				TimeLimit: limit,
				Comments:  []string{fmt.Sprintf("time limit of %v exceeded", limit)},
			})
			cancelCase(errTimeLimitExceeded)
		})
		stopTimer = func() {
			if !timer.Stop() {
				<-fired
			}
		}
	}

	var inSetup atomic.Bool
	inSetup.Store(true)
	run := func(context.Context) error {
		inSetup.Store(false)
		return test.Body(t, tc.Values())
	}
	arounds := aroundScopes(tr.step.Traits)
	for i := len(arounds) - 1; i >= 0; i-- {
		scope, next := arounds[i], run
		run = func(ctx context.Context) error {
			return scope.Around(ctx, test, tc, next)
		}
	}

	err := t.RecordBodyError(types.Catch(func() error { return run(t.Context()) }))
	stopTimer()

	var skip *types.SkipError
	skipped := errors.As(err, &skip)

	cancellation := t.Cancelled()
	var ce *types.CancellationError
	if cancellation == nil && errors.As(err, &ce) {
		cancellation = ce
		if ce.Scope == types.TestScope {
			tr.cancel(ce)
		}
	}
	if cancellation == nil && !skipped && tr.ctx.Err() != nil && tr.cancelled.Load() == nil &&
		tr.serial && leading && inSetup.Load() {
		// interrupted before the first case of a serialized test got past setup
		ie := interrupted(tr.ctx)
		cancellation = &types.CancellationError{Scope: types.TestScope, Reason: ie.Reason, Source: ie.Source}
		tr.cancel(cancellation)
	}
	if cancellation == nil && err != nil && !skipped {
		cancellation = interrupted(caseCtx)
	}

	outcome := types.OutcomePassed
	switch {
	case t.Failed():
		outcome = types.OutcomeFailed
	case cancellation != nil:
		outcome = types.OutcomeCancelled
	case skipped:
		outcome = types.OutcomeSkipped
	}

	res := &CaseResult{
		Case:         tc,
		Outcome:      outcome,
		Issues:       t.Issues(),
		Cancellation: cancellation,
		Duration:     time.Since(start),
	}

	if outcome == types.OutcomeSkipped {
		res.Skip = &types.SkipInfo{Reason: skip.Reason, Source: skip.Source}
		ev := it.event(types.EventTestCaseSkipped, test, tc)
		ev.Skip = res.Skip
		it.post(ev, test, tc)
	}
	// a case whose context was cancelled always reports it, even when the
	// body finished normally
	if cancellation != nil || caseCtx.Err() != nil {
		ev := it.event(types.EventTestCaseCancelled, test, tc)
		if cancellation == nil {
			cancellation = interrupted(caseCtx)
		}
		ev.Skip = &types.SkipInfo{Reason: cancellation.Reason, Source: cancellation.Source}
		it.post(ev, test, tc)
	}
	it.post(it.event(types.EventTestCaseEnded, test, tc), test, tc)

	tr.result.addCase(res)
	metrics.RecordCase(test.ID.String(), outcome)
	it.runner.progress.CompleteCase(name, outcome)
	if outcome == types.OutcomeFailed {
		span.SetStatus(codes.Error, "case failed")
	}
	it.runner.log.Debug("Case finished", "test", test.ID.String(), "case", tc.ID.String(), "outcome", outcome, "duration", res.Duration)
}

func aroundScopes(traits []types.Trait) []types.ScopeTrait {
	var out []types.ScopeTrait
	for _, s := range types.TraitsOf[types.ScopeTrait](traits) {
		if s.Around != nil {
			out = append(out, s)
		}
	}
	return out
}

func caseName(test *types.Test, tc *types.Case) string {
	if tc.ID.IsEmpty() {
		return test.ID.String()
	}
	return test.ID.String() + tc.ID.String()
}
