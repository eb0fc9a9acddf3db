package testengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-testengine/plan"
	"github.com/ethereum-optimism/infra/op-testengine/registry"
	"github.com/ethereum-optimism/infra/op-testengine/reporting"
	"github.com/ethereum-optimism/infra/op-testengine/runner"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/google/uuid"
)

var _ cliapp.Lifecycle = (*Engine)(nil)

// Engine discovers registered tests and runs them once or periodically.
type Engine struct {
	config    *Config
	version   string
	registry  *registry.Registry
	scheduler *RunScheduler
	formatter reporting.ResultFormatter

	mu     sync.Mutex
	result *runner.RunResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New loads the registry and validates the selection before anything runs.
func New(config *Config, version string, shutdownCallback func(error)) (*Engine, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating engine with config",
		"manifest", config.ManifestFile,
		"profile", config.Profile,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"serial", config.Serial)

	reg, err := registry.NewRegistry(registry.Config{
		Log:          config.Log.New("component", "registry"),
		ManifestFile: config.ManifestFile,
		Source:       config.Source,
	})
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to create registry: %w", err))
	}
	for _, d := range reg.Graph().Diagnostics() {
		config.Log.Warn("Discovery diagnostic", "record", d.Record, "reason", d.Reason)
	}

	e := &Engine{
		config:           config,
		version:          version,
		registry:         reg,
		scheduler:        NewRunScheduler(config.RunInterval, config.RunOnce, config.Log.New("component", "scheduler")),
		formatter:        reporting.NewConsoleResultFormatter(config.Log, config.output()),
		shutdownCallback: shutdownCallback,
	}
	if _, _, err := e.selection(); err != nil {
		return nil, NewRuntimeError(err)
	}
	e.scheduler.RegisterCallback(e.runTests)
	return e, nil
}

// Start implements the cliapp.Lifecycle interface.
func (e *Engine) Start(ctx context.Context) error {
	if e.config.List {
		if err := e.listTests(ctx); err != nil {
			return err
		}
		go e.shutdownCallback(nil)
		return nil
	}

	e.running.Store(true)
	if e.config.RunOnce {
		e.config.Log.Info("Starting op-testengine in run-once mode")
	} else {
		e.config.Log.Info("Starting op-testengine in continuous mode", "interval", e.config.RunInterval)
	}

	if err := e.scheduler.Start(ctx); err != nil {
		e.config.Log.Error("Runtime error running tests", "err", err)
		return err
	}

	if e.config.RunOnce {
		e.running.Store(false)
		result := e.Result()
		if result != nil && !result.Success() {
			e.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(reporting.Summary(result))
		}
		go e.shutdownCallback(nil)
	}
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (e *Engine) Stop(ctx context.Context) error {
	e.config.Log.Info("Stopping op-testengine")
	if !e.running.Swap(false) {
		return nil
	}
	if err := e.scheduler.Stop(); err != nil {
		return err
	}
	return e.scheduler.WaitForShutdown(ctx)
}

// Stopped implements the cliapp.Lifecycle interface.
func (e *Engine) Stopped() bool {
	return !e.running.Load()
}

// Result returns the most recent run result.
func (e *Engine) Result() *runner.RunResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

func (e *Engine) selection() (plan.Selection, []types.Override, error) {
	if e.config.Profile != "" {
		profile, err := e.registry.Profile(e.config.Profile)
		if err != nil {
			return plan.Selection{}, nil, err
		}
		return plan.SelectionFromProfile(profile)
	}
	sel, err := plan.ParseSelection(e.config.Filter, e.config.Tags, e.config.ExcludeTags)
	return sel, nil, err
}

// listTests prints the plan the next run would execute.
func (e *Engine) listTests(ctx context.Context) error {
	sel, overrides, err := e.selection()
	if err != nil {
		return NewRuntimeError(err)
	}
	conf, err := e.config.Configuration()
	if err != nil {
		return NewRuntimeError(err)
	}
	p, err := plan.Build(ctx, e.registry.Graph(), sel, conf,
		plan.WithOverrides(overrides),
		plan.WithLogger(e.config.Log.New("component", "plan")))
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to build plan: %w", err))
	}
	if err := reporting.RenderPlanTree(e.config.output(), p); err != nil {
		return NewRuntimeError(err)
	}
	return nil
}

// runTests plans and runs the selected tests once, then reports the result.
func (e *Engine) runTests(ctx context.Context) error {
	sel, overrides, err := e.selection()
	if err != nil {
		return NewRuntimeError(err)
	}
	conf, err := e.config.Configuration()
	if err != nil {
		return NewRuntimeError(err)
	}
	runID := uuid.New().String()
	handlers := []types.EventHandler{reporting.EventLogger(e.config.Log.New("component", "events"))}
	var sink *reporting.RecordSink
	if e.config.ReportDir != "" {
		sink, err = reporting.NewRecordSink(e.config.ReportDir, runID, e.config.Log.New("component", "records"))
		if err != nil {
			return NewRuntimeError(err)
		}
		defer func() {
			if err := sink.Close(); err != nil {
				e.config.Log.Error("Failed to write records", "path", sink.Path(), "err", err)
			}
		}()
		handlers = append(handlers, sink.HandleEvent)
	}
	conf.EventHandler = types.ComposeHandlers(handlers...)

	p, err := plan.Build(ctx, e.registry.Graph(), sel, conf,
		plan.WithOverrides(overrides),
		plan.WithLogger(e.config.Log.New("component", "plan")))
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to build plan: %w", err))
	}
	if sink != nil {
		if err := sink.WriteTests(p); err != nil {
			return NewRuntimeError(err)
		}
	}

	r, err := runner.New(p, runner.Config{
		Log:              e.config.Log.New("component", "runner"),
		RunID:            runID,
		ShowProgress:     e.config.ShowProgress,
		ProgressInterval: e.config.ProgressInterval,
	})
	if err != nil {
		return NewRuntimeError(err)
	}
	e.config.Log.Info("Running tests...", "runID", r.RunID(), "tests", p.TestCount())
	result, err := r.Run(ctx)
	if err != nil {
		return NewRuntimeError(err)
	}

	e.mu.Lock()
	e.result = result
	e.mu.Unlock()

	if err := e.formatter.FormatResults(result); err != nil {
		e.config.Log.Error("Failed to print results", "err", err)
	}
	e.config.Log.Info(reporting.Summary(result))

	if e.config.ReportDir != "" && len(result.Iterations) > 1 {
		report := runner.BuildStabilityReport(result, conf.Repetition)
		files, err := runner.SaveStabilityReport(report, e.config.ReportDir)
		if err != nil {
			e.config.Log.Error("Failed to save stability report", "err", err)
		} else {
			e.config.Log.Info("Stability report saved", "files", files)
		}
	}
	return nil
}
