package abi

import (
	"context"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testengine/plan"
	"github.com/ethereum-optimism/infra/op-testengine/registry"
	"github.com/ethereum-optimism/infra/op-testengine/runner"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
)

// RecordHandler receives encoded records, one call per record.
type RecordHandler func(record []byte)

// Entry runs the tests of graph selected by argsJSON. It streams a test
// record for every planned step followed by an event record for every
// event, and reports whether the run passed.
func Entry(ctx context.Context, argsJSON []byte, graph *registry.Graph, handler RecordHandler, logger log.Logger) (bool, error) {
	if logger == nil {
		logger = log.NewLogger(log.DiscardHandler())
	}
	if handler == nil {
		handler = func([]byte) {}
	}

	args, err := DecodeArguments(argsJSON)
	if err != nil {
		return false, err
	}
	cfg, err := args.Configuration()
	if err != nil {
		return false, err
	}
	sel, err := args.Selection()
	if err != nil {
		return false, err
	}

	cfg.EventHandler = func(ev *types.Event, ectx *types.EventContext) {
		b, err := EncodeEvent(ev, ectx)
		if err != nil {
			logger.Error("Failed to encode event", "event", ev.Kind, "err", err)
			return
		}
		handler(b)
	}

	p, err := plan.Build(ctx, graph, sel, cfg, plan.WithLogger(logger))
	if err != nil {
		return false, fmt.Errorf("build plan: %w", err)
	}
	for _, step := range p.Steps {
		b, err := EncodeTest(step.Test)
		if err != nil {
			return false, fmt.Errorf("encode test %s: %w", step.Test.ID, err)
		}
		handler(b)
	}

	r, err := runner.New(p, runner.Config{Log: logger})
	if err != nil {
		return false, err
	}
	res, err := r.Run(ctx)
	if err != nil {
		return false, err
	}
	logger.Debug("ABI run finished", "runID", res.RunID, "outcome", res.Outcome)
	return res.Success(), nil
}
