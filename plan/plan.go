// Package plan turns the test graph into an ordered execution plan.
package plan

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/ethereum-optimism/infra/op-testengine/cases"
	"github.com/ethereum-optimism/infra/op-testengine/registry"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
)

// Action is what the runner does with a step.
type Action uint8

const (
	ActionRun Action = iota
	ActionSkip
)

func (a Action) String() string {
	if a == ActionSkip {
		return "skip"
	}
	return "run"
}

// Step is one planned test or suite. Suite steps hold their planned
// children; test steps expand into cases when run.
type Step struct {
	Test       *types.Test
	Traits     []types.Trait
	Action     Action
	Skip       *types.SkipInfo
	Serialized bool
	Depth      int
	Children   []*Step
}

// IsSuite reports whether the step groups children.
func (s *Step) IsSuite() bool {
	return s.Test.IsSuite()
}

// Cases expands the step's test into its cases.
func (s *Step) Cases(ctx context.Context) iter.Seq2[*types.Case, error] {
	return cases.Expand(ctx, s.Test)
}

// Plan is immutable once built.
type Plan struct {
	Roots         []*Step
	Steps         []*Step
	Configuration types.Configuration
}

// TestCount is the number of non-suite steps.
func (p *Plan) TestCount() int {
	n := 0
	for _, s := range p.Steps {
		if !s.IsSuite() {
			n++
		}
	}
	return n
}

// Find returns the step for id.
func (p *Plan) Find(id types.ID) (*Step, bool) {
	for _, s := range p.Steps {
		if s.Test.ID.Equal(id) {
			return s, true
		}
	}
	return nil, false
}

type options struct {
	overrides []types.Override
	logger    log.Logger
}

// Option configures Build.
type Option func(*options)

// WithOverrides adds traits to named nodes before planning.
func WithOverrides(overrides []types.Override) Option {
	return func(o *options) { o.overrides = append(o.overrides, overrides...) }
}

// WithLogger sets the planner's logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Build selects tests from graph and resolves their effective traits.
// Configuration and selection errors are returned before any condition is
// evaluated. Each step's own enable/disable conditions are evaluated exactly
// once; a false or failing condition keeps the step in the plan as
// skip-only, and its descendants inherit the skip.
func Build(ctx context.Context, graph *registry.Graph, sel Selection, cfg types.Configuration, opts ...Option) (*Plan, error) {
	o := options{logger: log.NewLogger(log.DiscardHandler())}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	for _, id := range sel.IDs {
		if _, ok := graph.Get(id); !ok {
			return nil, &types.ConfigError{Field: "selection.ids", Reason: fmt.Sprintf("names unknown test %s", id)}
		}
	}
	overrides, err := indexOverrides(graph, o.overrides, o.logger)
	if err != nil {
		return nil, err
	}

	b := &builder{
		ctx:       ctx,
		graph:     graph,
		sel:       sel,
		overrides: overrides,
		logger:    o.logger,
		own:       make(map[string][]types.Trait),
		included:  make(map[string]bool),
	}
	p := &Plan{Configuration: cfg}
	for _, root := range graph.Roots() {
		b.mark(root, nil)
	}
	for _, root := range graph.Roots() {
		if step := b.build(root, nil, nil, 0); step != nil {
			p.Roots = append(p.Roots, step)
		}
	}
	p.Steps = flatten(p.Roots)
	o.logger.Debug("Plan built", "steps", len(p.Steps), "tests", p.TestCount())
	return p, nil
}

func indexOverrides(graph *registry.Graph, overrides []types.Override, logger log.Logger) (map[string][]types.Trait, error) {
	out := make(map[string][]types.Trait)
	for _, ov := range overrides {
		id, err := types.ParseID(ov.ID)
		if err != nil {
			return nil, &types.ConfigError{Field: "overrides", Reason: err.Error()}
		}
		if _, ok := graph.Get(id); !ok {
			logger.Warn("Override names unknown test", "id", ov.ID)
			continue
		}
		out[id.Key()] = append(out[id.Key()], ov.Traits()...)
	}
	return out, nil
}

type builder struct {
	ctx       context.Context
	graph     *registry.Graph
	sel       Selection
	overrides map[string][]types.Trait
	logger    log.Logger

	own      map[string][]types.Trait
	included map[string]bool
}

// ownTraits is the node's trait list plus applicable overrides.
func (b *builder) ownTraits(node *types.Test) []types.Trait {
	key := node.ID.Key()
	if own, ok := b.own[key]; ok {
		return own
	}
	own := node.Traits
	if extra := b.overrides[key]; len(extra) > 0 {
		kept, rejected := types.FilterApplicable(node, extra)
		for _, tr := range rejected {
			b.logger.Warn("Ignoring inapplicable override trait", "node", node.ID.String(), "trait", types.DescribeTrait(tr))
		}
		own = append(append([]types.Trait(nil), own...), kept...)
	}
	b.own[key] = own
	return own
}

// mark records which nodes are selected. Selection depends on effective
// tags only, so no condition runs for nodes outside the plan.
func (b *builder) mark(node *types.Test, inherited []types.Trait) bool {
	effective := types.MergeTraits(inherited, b.ownTraits(node))
	included := false
	if node.IsSuite() {
		for _, child := range b.graph.Children(node.ID) {
			if b.mark(child, effective) {
				included = true
			}
		}
	} else {
		included = b.sel.includes(node, types.TagsOf(effective))
	}
	b.included[node.ID.Key()] = included
	return included
}

func (b *builder) build(node *types.Test, inherited []types.Trait, inheritedSkip *types.SkipInfo, depth int) *Step {
	if !b.included[node.ID.Key()] {
		return nil
	}
	own := b.ownTraits(node)
	effective := types.MergeTraits(inherited, own)
	step := &Step{
		Test:       node,
		Traits:     effective,
		Serialized: types.IsSerialized(effective),
		Depth:      depth,
	}

	// a skipped ancestor's skip is inherited without evaluating conditions
	skip := inheritedSkip
	if skip == nil {
		skip = b.evaluateConditions(node, own)
	}
	if skip != nil {
		step.Action = ActionSkip
		step.Skip = skip
	}

	for _, child := range b.graph.Children(node.ID) {
		if cs := b.build(child, effective, skip, depth+1); cs != nil {
			step.Children = append(step.Children, cs)
		}
	}
	return step
}

// evaluateConditions runs the node's own conditions, in order, until one
// disables the node.
func (b *builder) evaluateConditions(node *types.Test, own []types.Trait) *types.SkipInfo {
	for _, cond := range types.TraitsOf[types.ConditionTrait](own) {
		ok, err := safeEvaluate(b.ctx, cond)
		src := cond.Source
		var loc *types.SourceLocation
		if !src.IsZero() {
			loc = &src
		}
		if err != nil {
			var ce *types.CancellationError
			reason := fmt.Sprintf("condition %q failed: %v", cond.Reason, err)
			if errors.As(err, &ce) || errors.Is(err, context.Canceled) {
				reason = fmt.Sprintf("cancelled while evaluating condition %q", cond.Reason)
			}
			b.logger.Debug("Condition failed", "node", node.ID.String(), "err", err)
			return &types.SkipInfo{Reason: reason, Source: loc}
		}
		if !ok {
			reason := cond.Reason
			if reason == "" {
				reason = "disabled"
			}
			return &types.SkipInfo{Reason: reason, Source: loc}
		}
	}
	return nil
}

func safeEvaluate(ctx context.Context, cond types.ConditionTrait) (ok bool, err error) {
	err = types.Catch(func() error {
		var evalErr error
		ok, evalErr = cond.Evaluate(ctx)
		return evalErr
	})
	return ok, err
}

func flatten(steps []*Step) []*Step {
	var out []*Step
	for _, s := range steps {
		out = append(out, s)
		out = append(out, flatten(s.Children)...)
	}
	return out
}
