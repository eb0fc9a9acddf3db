package runner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/metrics"
	"github.com/ethereum-optimism/infra/op-testengine/plan"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// runSteps runs sibling steps, one after the other when serial.
func (it *iterationRun) runSteps(ctx context.Context, steps []*plan.Step, serial bool) {
	if serial {
		for _, step := range steps {
			it.runStep(ctx, step)
		}
		return
	}
	// Suite steps never hold pool tokens, so fanning out cannot deadlock.
	var g errgroup.Group
	for _, step := range steps {
		g.Go(func() error {
			it.runStep(ctx, step)
			return nil
		})
	}
	_ = g.Wait()
}

func (it *iterationRun) runStep(ctx context.Context, step *plan.Step) {
	if step.Action == plan.ActionSkip {
		it.abandon(step, types.EventTestSkipped, step.Skip, nil)
		return
	}

	ctx, span := it.runner.tracer.Start(ctx, "step")
	defer span.End()
	span.SetAttributes(attribute.String("test", step.Test.ID.String()))

	if skip, cancel := it.prepare(ctx, step); skip != nil || cancel != nil {
		if cancel != nil {
			it.abandon(step, types.EventTestCancelled, nil, cancel)
		} else {
			it.abandon(step, types.EventTestSkipped, skip, nil)
		}
		return
	}

	if step.IsSuite() {
		it.post(it.event(types.EventTestStarted, step.Test, nil), step.Test, nil)
		it.runSteps(ctx, step.Children, step.Serialized || it.cfg.Serial())
		it.post(it.event(types.EventTestEnded, step.Test, nil), step.Test, nil)
		return
	}

	tr := it.runTest(ctx, step)
	if tr.Outcome == types.OutcomeFailed {
		span.SetStatus(codes.Error, "test failed")
	}
}

// abandon reports a step that never started, together with every planned
// descendant, so consumers still see the full topology.
func (it *iterationRun) abandon(step *plan.Step, kind types.EventKind, skip *types.SkipInfo, cancel *types.CancellationError) {
	ev := it.event(kind, step.Test, nil)
	if skip != nil {
		ev.Skip = skip
	} else if cancel != nil {
		ev.Skip = &types.SkipInfo{Reason: cancel.Reason, Source: cancel.Source}
	}
	it.post(ev, step.Test, nil)

	if !step.IsSuite() {
		tr := it.testResult(step)
		tr.Skip = skip
		tr.Cancellation = cancel
		if cancel != nil {
			tr.Outcome = types.OutcomeCancelled
		} else {
			tr.Outcome = types.OutcomeSkipped
		}
		metrics.RecordTest(tr.Outcome)
	}
	for _, child := range step.Children {
		it.abandon(child, kind, skip, cancel)
	}
}

// prepare runs the step's own scope preparation hooks. A hook that fails or
// asks to skip turns the step into a skip. Cancellation observed in this
// phase is resolved by the configured trait-phase policy.
func (it *iterationRun) prepare(ctx context.Context, step *plan.Step) (*types.SkipInfo, *types.CancellationError) {
	for _, scope := range types.TraitsOf[types.ScopeTrait](step.Test.Traits) {
		if scope.Prepare == nil {
			continue
		}
		err := types.Catch(func() error { return scope.Prepare(ctx, step.Test) })
		if err == nil {
			continue
		}
		var se *types.SkipError
		var ce *types.CancellationError
		switch {
		case errors.As(err, &se):
			return &types.SkipInfo{Reason: se.Reason, Source: se.Source}, nil
		case errors.As(err, &ce):
			return it.traitPhaseCancellation(ce)
		case ctx.Err() != nil:
			return it.traitPhaseCancellation(interrupted(ctx))
		default:
			it.runner.log.Warn("Scope preparation failed", "test", step.Test.ID.String(), "scope", scope.Name, "err", err)
			return &types.SkipInfo{Reason: fmt.Sprintf("scope %q failed: %v", scope.Name, err)}, nil
		}
	}
	if ctx.Err() != nil {
		return it.traitPhaseCancellation(interrupted(ctx))
	}
	return nil, nil
}

func (it *iterationRun) traitPhaseCancellation(ce *types.CancellationError) (*types.SkipInfo, *types.CancellationError) {
	if it.cfg.TraitPhaseCancellation == types.CancelOnTraitCancellation {
		return nil, ce
	}
	return &types.SkipInfo{Reason: ce.Reason, Source: ce.Source}, nil
}

// interrupted describes an implicit cancellation of ctx.
func interrupted(ctx context.Context) *types.CancellationError {
	var ce *types.CancellationError
	if cause := context.Cause(ctx); errors.As(cause, &ce) {
		return ce
	}
	reason := "interrupted"
	if cause := context.Cause(ctx); cause != nil {
		reason = fmt.Sprintf("interrupted: %v", cause)
	}
	return &types.CancellationError{Scope: types.CaseScope, Reason: reason}
}

// testRun is the shared state of one test step while its cases run.
type testRun struct {
	step      *plan.Step
	result    *TestResult
	serial    bool
	timeLimit time.Duration
	filters   []types.CaseFilterTrait

	ctx       context.Context
	cancelCtx context.CancelCauseFunc
	cancelled atomic.Pointer[types.CancellationError]
}

// cancel requests cancellation of every case of the test that has not
// started yet. The first request wins.
func (tr *testRun) cancel(err *types.CancellationError) {
	if tr.cancelled.CompareAndSwap(nil, err) {
		tr.cancelCtx(err)
	}
}

func (tr *testRun) selected(cfg *types.Configuration, tc *types.Case) bool {
	for _, f := range tr.filters {
		if f.Filter != nil && !f.Filter(tc) {
			return false
		}
	}
	return cfg.CaseFilter == nil || cfg.CaseFilter(tr.step.Test, tc)
}

func (it *iterationRun) runTest(ctx context.Context, step *plan.Step) *TestResult {
	start := time.Now()

	// Cases are generated against ctx, not the test context, so cases left
	// over after a test cancellation can still be reported.
	next, stop := iter.Pull2(step.Cases(ctx))
	defer stop()

	first, err, ok := next()
	if err != nil && ctx.Err() != nil {
		// cancelled while generating cases: no case reached running
		skip, cancel := it.traitPhaseCancellation(interrupted(ctx))
		it.abandon(step, kindFor(cancel), skip, cancel)
		return it.resultOf(step)
	}

	result := it.testResult(step)
	defer func() {
		result.Duration = time.Since(start)
		result.finish()
		metrics.RecordTest(result.Outcome)
	}()

	tctx, cancelCtx := context.WithCancelCause(ctx)
	defer cancelCtx(nil)
	tr := &testRun{
		step:      step,
		result:    result,
		serial:    step.Serialized || it.cfg.Serial(),
		timeLimit: it.cfg.TimeLimit(step.Traits),
		filters:   types.TraitsOf[types.CaseFilterTrait](step.Traits),
		ctx:       tctx,
		cancelCtx: cancelCtx,
	}

	it.post(it.event(types.EventTestStarted, step.Test, nil), step.Test, nil)

	var g errgroup.Group
	isFirst := true
	for ok {
		if err != nil {
			if ctx.Err() == nil {
				it.expansionFailed(step, result, err)
			}
			break
		}
		tc := first
		if tr.selected(it.cfg, tc) {
			leading := isFirst
			isFirst = false
			switch {
			case tr.cancelled.Load() != nil || tctx.Err() != nil:
				it.caseNotStarted(tr, tc)
			case it.pool.Acquire(tctx, 1) != nil:
				it.caseNotStarted(tr, tc)
			case tr.serial:
				it.runCase(tr, tc, leading)
				it.pool.Release(1)
			default:
				g.Go(func() error {
					defer it.pool.Release(1)
					it.runCase(tr, tc, leading)
					return nil
				})
			}
		}
		first, err, ok = next()
	}
	_ = g.Wait()

	if ce := tr.cancelled.Load(); ce != nil {
		result.mu.Lock()
		result.Cancellation = ce
		result.mu.Unlock()
		ev := it.event(types.EventTestCancelled, step.Test, nil)
		ev.Skip = &types.SkipInfo{Reason: ce.Reason, Source: ce.Source}
		it.post(ev, step.Test, nil)
	}
	it.post(it.event(types.EventTestEnded, step.Test, nil), step.Test, nil)
	return result
}

func kindFor(cancel *types.CancellationError) types.EventKind {
	if cancel != nil {
		return types.EventTestCancelled
	}
	return types.EventTestSkipped
}

// expansionFailed records a failing argument collection against the test.
// Cases produced before the failure have already been scheduled.
func (it *iterationRun) expansionFailed(step *plan.Step, result *TestResult, err error) {
	issue := &types.Issue{
		Kind:     types.IssueErrorCaught,
		Severity: types.SeverityError,
		Err:      err,
		Comments: []string{"argument generation failed"},
	}
	result.addIssue(issue)
	it.runner.log.Warn("Argument generation failed", "test", step.Test.ID.String(), "err", err)
	it.issueRecorded(step.Test, nil, issue)
}

// caseNotStarted reports a case that was cancelled before it ran.
func (it *iterationRun) caseNotStarted(tr *testRun, tc *types.Case) {
	ce := tr.cancelled.Load()
	if ce == nil {
		ce = interrupted(tr.ctx)
	}
	ev := it.event(types.EventTestCaseCancelled, tr.step.Test, tc)
	ev.Skip = &types.SkipInfo{Reason: ce.Reason, Source: ce.Source}
	it.post(ev, tr.step.Test, tc)
	tr.result.addCase(&CaseResult{Case: tc, Outcome: types.OutcomeCancelled, Cancellation: ce})
	metrics.RecordCase(tr.step.Test.ID.String(), types.OutcomeCancelled)
}
