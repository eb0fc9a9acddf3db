// Package runner executes a plan: it iterates the plan according to the
// repetition policy, runs each step's cases on a bounded worker pool and
// reports everything that happens as events.
package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/metrics"
	"github.com/ethereum-optimism/infra/op-testengine/plan"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// Config holds the runner's options. The run's semantics come from the
// plan's Configuration.
type Config struct {
	Log log.Logger

	// RunID names the run; a random one is generated when empty.
	RunID string

	ShowProgress     bool
	ProgressInterval time.Duration
}

// Runner executes one plan.
type Runner struct {
	plan        *plan.Plan
	cfg         types.Configuration
	runID       string
	log         log.Logger
	tracer      trace.Tracer
	progress    ProgressIndicator
	concurrency int
	serial      bool

	// nested runs report through the enclosing run and publish no run metrics
	nested bool
}

// New validates the plan's configuration and prepares a runner. Invalid
// configuration is reported here, before any iteration starts.
func New(p *plan.Plan, cfg Config) (*Runner, error) {
	if p == nil {
		return nil, errors.New("plan is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	conf := p.Configuration
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	var progress ProgressIndicator
	if cfg.ShowProgress {
		progress = NewConsoleProgressIndicator(cfg.Log.New("component", "progress"), cfg.ProgressInterval)
	} else {
		progress = NewNoOpProgressIndicator()
	}

	return &Runner{
		plan:        p,
		cfg:         conf,
		runID:       runID,
		log:         cfg.Log.New("run", runID),
		tracer:      otel.Tracer("test runner"),
		progress:    progress,
		concurrency: conf.MaxParallelism,
		serial:      conf.Serial(),
	}, nil
}

// RunID returns the identifier of the run.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the plan once per iteration until the repetition policy
// stops it or ctx is cancelled. Cancellation of ctx is the implicit
// cancellation signal: running cases observe it through their context and
// the run ends after the current iteration.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	defer r.progress.Stop()

	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "test run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", r.runID))

	bus := newEventBus(r.cfg.EventHandler, r.cfg.DeliverExpectationChecked)
	// bodies and nested runs see the serialized handler
	conf := r.cfg
	conf.EventHandler = bus.handle

	poolSize := max(r.determineConcurrency(workItems(r.plan)), 1)
	pool := semaphore.NewWeighted(int64(poolSize))

	result := &RunResult{RunID: r.runID}
	result.Stats.StartTime = start

	r.log.Info("Starting run", "tests", r.plan.TestCount(), "repetition", r.cfg.Repetition.String(), "concurrency", poolSize)
	bus.post(&types.Event{Kind: types.EventRunStarted}, &types.EventContext{Configuration: &conf})

	for i := 0; i < r.cfg.Repetition.MaxIterations; i++ {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		it := &iterationRun{
			runner: r,
			index:  i,
			cfg:    &conf,
			bus:    bus,
			pool:   pool,
		}
		itResult := it.run(ctx)
		result.Iterations = append(result.Iterations, itResult)
		metrics.RecordIteration()

		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		if r.cfg.Repetition.ShouldStop(i, itResult.IssueRecorded) {
			break
		}
	}

	bus.post(&types.Event{Kind: types.EventRunEnded}, &types.EventContext{Configuration: &conf})

	result.Duration = time.Since(start)
	result.Stats.EndTime = time.Now()
	result.finish()

	if !r.nested {
		metrics.RecordRun(r.runID, result.Outcome, result.Stats.Tests, result.Stats.TestsPassed, result.Stats.TestsFailed, result.Duration)
	}
	r.log.Info("Run finished",
		"outcome", result.Outcome,
		"iterations", len(result.Iterations),
		"cases", result.Stats.Total,
		"failed", result.Stats.Failed,
		"cancelled", result.Stats.Cancelled,
		"duration", result.Duration.Truncate(time.Millisecond),
	)
	return result, nil
}

// iterationRun is the state of one pass over the plan.
type iterationRun struct {
	runner *Runner
	index  int
	cfg    *types.Configuration
	bus    *eventBus
	pool   *semaphore.Weighted

	mu       sync.Mutex
	results  map[string]*TestResult
	issueHit atomic.Bool
}

func (it *iterationRun) run(ctx context.Context) *IterationResult {
	start := time.Now()
	ctx, span := it.runner.tracer.Start(ctx, "iteration")
	defer span.End()
	span.SetAttributes(attribute.Int("iteration", it.index))

	it.results = make(map[string]*TestResult)
	it.runner.progress.StartIteration(it.index, it.runner.plan.TestCount())
	it.post(it.event(types.EventIterationStarted, nil, nil), nil, nil)

	it.runSteps(ctx, it.runner.plan.Roots, it.cfg.Serial())

	it.post(it.event(types.EventIterationEnded, nil, nil), nil, nil)
	it.runner.progress.CompleteIteration(it.index)

	res := &IterationResult{
		Index:         it.index,
		IssueRecorded: it.issueHit.Load(),
		Duration:      time.Since(start),
	}
	res.Stats.StartTime = start
	res.Stats.EndTime = time.Now()
	for _, step := range it.runner.plan.Steps {
		if tr, ok := it.results[step.Test.ID.Key()]; ok {
			res.Tests = append(res.Tests, tr)
			res.Stats.addTest(tr)
		}
	}
	return res
}

func (it *iterationRun) testResult(step *plan.Step) *TestResult {
	it.mu.Lock()
	defer it.mu.Unlock()
	tr := &TestResult{Test: step.Test}
	it.results[step.Test.ID.Key()] = tr
	return tr
}

func (it *iterationRun) resultOf(step *plan.Step) *TestResult {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.results[step.Test.ID.Key()]
}

func (it *iterationRun) event(kind types.EventKind, test *types.Test, tc *types.Case) *types.Event {
	ev := &types.Event{Kind: kind, Iteration: it.index}
	if test != nil {
		id := test.ID
		ev.TestID = &id
	}
	if tc != nil {
		cid := tc.ID
		ev.CaseID = &cid
	}
	return ev
}

func (it *iterationRun) post(ev *types.Event, test *types.Test, tc *types.Case) {
	it.bus.post(ev, &types.EventContext{
		Test:          test,
		Case:          tc,
		Iteration:     it.index,
		Configuration: it.cfg,
	})
}

func (it *iterationRun) issueRecorded(test *types.Test, tc *types.Case, issue *types.Issue) {
	if issue.IsFailure() {
		it.issueHit.Store(true)
	}
	metrics.RecordIssue(issue)
	ev := it.event(types.EventIssueRecorded, test, tc)
	ev.Issue = issue
	it.post(ev, test, tc)
}
