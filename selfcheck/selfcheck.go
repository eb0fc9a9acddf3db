// Package selfcheck registers tests that exercise the engine itself. The
// binary links it in so a bare invocation has something meaningful to run.
package selfcheck

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/plan"
	"github.com/ethereum-optimism/infra/op-testengine/registry"
	"github.com/ethereum-optimism/infra/op-testengine/runner"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
)

const Module = "selfcheck"

func init() {
	registry.RegisterSuite(Module, []string{"engine"}, types.Tags("selfcheck"))

	registry.Register(registry.Record{
		Kind:   registry.KindTest,
		Module: Module,
		Names:  []string{"engine", "arguments"},
		Parameters: []types.Parameter{
			{Name: "n", Type: reflect.TypeFor[int]()},
			{Name: "label", Type: reflect.TypeFor[string]()},
		},
		Arguments: []types.ArgumentCollection{types.Range(0, 4), types.Values("a", "b")},
		Body:      arguments,
	})

	registry.RegisterTest(Module, []string{"engine", "confirmation"}, confirmation, types.TimeLimit(5*time.Second))
	registry.RegisterTest(Module, []string{"engine", "known-issue"}, knownIssue)
	registry.RegisterTest(Module, []string{"engine", "nested-run"}, nestedRun)

	registry.RegisterSuite(Module, []string{"engine", "ordered"}, types.Serialized())
	for i := range 3 {
		registry.RegisterTest(Module, []string{"engine", "ordered", fmt.Sprintf("step-%d", i)}, func(t *types.T) error {
			return t.Require(ordered.advance(i), fmt.Sprintf("step %d runs after the steps declared before it", i))
		})
	}
}

// stepOrder remembers the last serialized step that ran. Step 0 starts a
// new sequence, so repeated iterations and runs each begin afresh.
type stepOrder struct {
	mu   sync.Mutex
	last int
}

var ordered = &stepOrder{last: -1}

func (o *stepOrder) advance(step int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if step != 0 && o.last >= step {
		return false
	}
	o.last = step
	return true
}

func arguments(t *types.T, args []any) error {
	n, ok := args[0].(int)
	if err := t.Require(ok, "first argument is an int"); err != nil {
		return err
	}
	label, ok := args[1].(string)
	if err := t.Require(ok, "second argument is a string"); err != nil {
		return err
	}
	t.Expect(n >= 0 && n < 4, "n is within the declared range")
	t.Expect(label == "a" || label == "b", "label is one of the declared values")
	t.Expect(t.Case().ID.Stable, "integer and string arguments have stable identities")
	return nil
}

func confirmation(t *types.T) error {
	var polls atomic.Int32
	return t.Confirm(types.PollingFirstPass, func() bool {
		return polls.Add(1) >= 3
	}, types.Within(2*time.Second), types.PollingEvery(5*time.Millisecond), types.Described("third poll passes"))
}

func knownIssue(t *types.T) error {
	return t.WithKnownIssue("recorded on purpose", func() error {
		t.Errorf("expected failure")
		return nil
	})
}

// nestedRun runs a tiny graph inside the current case.
func nestedRun(t *types.T) error {
	var ran atomic.Bool
	graph := registry.NewGraph(slices.Values([]registry.Record{{
		Kind:   registry.KindTest,
		Module: Module + "-nested",
		Names:  []string{"inner"},
		Body: func(*types.T, []any) error {
			ran.Store(true)
			return nil
		},
	}}), log.NewLogger(log.DiscardHandler()))

	p, err := plan.Build(t.Context(), graph, plan.All(), *t.Configuration())
	if err != nil {
		return err
	}
	res, err := runner.RunNested(t, p)
	if err != nil {
		return err
	}
	t.Expect(res.Success(), "nested run passes")
	t.Expect(ran.Load(), "nested body ran")
	return nil
}

// Records returns the registered self-check records.
func Records() []registry.Record {
	var out []registry.Record
	for r := range registry.Discover() {
		if r.Module == Module {
			out = append(out, r)
		}
	}
	return out
}
