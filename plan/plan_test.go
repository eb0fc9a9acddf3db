package plan

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/registry"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(*types.T, []any) error { return nil }

func graphOf(records ...registry.Record) *registry.Graph {
	return registry.NewGraph(slices.Values(records), log.NewLogger(log.DiscardHandler()))
}

func test(traits []types.Trait, names ...string) registry.Record {
	return registry.Record{Kind: registry.KindTest, Module: "mod", Names: names, Body: noop, Traits: traits}
}

func suite(traits []types.Trait, names ...string) registry.Record {
	return registry.Record{Kind: registry.KindSuite, Module: "mod", Names: names, Traits: traits}
}

func stepIDs(p *Plan) []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Test.ID.String()
	}
	return out
}

func TestBuild_AllPreservesOrder(t *testing.T) {
	g := graphOf(
		suite(nil, "A"),
		test(nil, "A", "one"),
		test(nil, "A", "two"),
		test(nil, "B"),
	)
	p, err := Build(context.Background(), g, All(), types.DefaultConfiguration())
	require.NoError(t, err)
	assert.Equal(t, []string{"mod/A", "mod/A/one", "mod/A/two", "mod/B"}, stepIDs(p))
	assert.Equal(t, 3, p.TestCount())
	assert.Len(t, p.Roots, 2)
	assert.Len(t, p.Roots[0].Children, 2)
}

// TestBuild_EffectiveTraits tests that suite traits are prepended and that
// nearer keyed traits take precedence.
func TestBuild_EffectiveTraits(t *testing.T) {
	g := graphOf(
		suite([]types.Trait{types.TimeLimit(time.Hour), types.Tags("outer"), types.Serialized()}, "A"),
		suite([]types.Trait{types.TimeLimit(time.Minute), types.Tags("inner")}, "A", "B"),
		test([]types.Trait{types.TimeLimit(time.Second)}, "A", "B", "leaf"),
		test(nil, "A", "B", "plain"),
	)
	p, err := Build(context.Background(), g, All(), types.DefaultConfiguration())
	require.NoError(t, err)

	leaf, ok := p.Find(types.NewID("mod", "A", "B", "leaf"))
	require.True(t, ok)
	tl, _ := types.FindTrait[types.TimeLimitTrait](leaf.Traits)
	assert.Equal(t, time.Second, tl.Limit)
	assert.Equal(t, []string{"outer", "inner"}, types.TagsOf(leaf.Traits))
	assert.True(t, leaf.Serialized)

	plain, ok := p.Find(types.NewID("mod", "A", "B", "plain"))
	require.True(t, ok)
	tl, _ = types.FindTrait[types.TimeLimitTrait](plain.Traits)
	assert.Equal(t, time.Minute, tl.Limit)
}

func TestBuild_Selection(t *testing.T) {
	g := graphOf(
		suite([]types.Trait{types.Tags("smoke")}, "A"),
		test(nil, "A", "one"),
		test([]types.Trait{types.Tags("slow")}, "A", "two"),
		test(nil, "B", "three"),
		test([]types.Trait{types.Tags("smoke")}, "C"),
	)

	tests := []struct {
		name string
		sel  Selection
		want []string
	}{
		{
			name: "by suite ID",
			sel:  Selection{IDs: []types.ID{types.NewID("mod", "A")}},
			want: []string{"mod/A", "mod/A/one", "mod/A/two"},
		},
		{
			name: "by test ID",
			sel:  Selection{IDs: []types.ID{types.NewID("mod", "B", "three")}},
			want: []string{"mod/B", "mod/B/three"},
		},
		{
			name: "by inherited tag",
			sel:  Selection{Tags: []string{"smoke"}},
			want: []string{"mod/A", "mod/A/one", "mod/A/two", "mod/C"},
		},
		{
			name: "exclude tag",
			sel:  Selection{Tags: []string{"smoke"}, ExcludeTags: []string{"slow"}},
			want: []string{"mod/A", "mod/A/one", "mod/C"},
		},
		{
			name: "predicate",
			sel:  Selection{Predicate: func(t *types.Test) bool { return t.ID.Name() == "three" }},
			want: []string{"mod/B", "mod/B/three"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Build(context.Background(), g, tt.sel, types.DefaultConfiguration())
			require.NoError(t, err)
			assert.Equal(t, tt.want, stepIDs(p))
		})
	}
}

func TestBuild_DisabledNodesStayAsSkip(t *testing.T) {
	evaluations := 0
	counting := types.Enabled("counted", func(context.Context) (bool, error) {
		evaluations++
		return true, nil
	})
	g := graphOf(
		suite([]types.Trait{types.Disabled("suite off")}, "Off"),
		test([]types.Trait{counting}, "Off", "child"),
		test([]types.Trait{counting}, "On"),
		test([]types.Trait{types.Enabled("fails", func(context.Context) (bool, error) {
			return false, errors.New("cannot reach service")
		})}, "Broken"),
		test([]types.Trait{types.Enabled("panics", func(context.Context) (bool, error) {
			panic("bad condition")
		})}, "Panics"),
	)
	p, err := Build(context.Background(), g, All(), types.DefaultConfiguration())
	require.NoError(t, err)
	assert.Equal(t, []string{"mod/Off", "mod/Off/child", "mod/On", "mod/Broken", "mod/Panics"}, stepIDs(p))

	off, _ := p.Find(types.NewID("mod", "Off"))
	child, _ := p.Find(types.NewID("mod", "Off", "child"))
	on, _ := p.Find(types.NewID("mod", "On"))
	broken, _ := p.Find(types.NewID("mod", "Broken"))
	panics, _ := p.Find(types.NewID("mod", "Panics"))

	assert.Equal(t, ActionSkip, off.Action)
	assert.Equal(t, "suite off", off.Skip.Reason)
	assert.Equal(t, ActionSkip, child.Action)
	assert.Equal(t, "suite off", child.Skip.Reason, "skip propagates to descendants")
	assert.Equal(t, ActionRun, on.Action)
	assert.Equal(t, ActionSkip, broken.Action)
	assert.Contains(t, broken.Skip.Reason, "cannot reach service")
	assert.Equal(t, ActionSkip, panics.Action)

	assert.Equal(t, 1, evaluations, "conditions run once per step and not below a skipped suite")
}

func TestBuild_Overrides(t *testing.T) {
	g := graphOf(test(nil, "A", "one"), test(nil, "A", "two"))
	limit := 5 * time.Second
	p, err := Build(context.Background(), g, All(), types.DefaultConfiguration(), WithOverrides([]types.Override{
		{ID: "mod/A/one", Disabled: "quarantined"},
		{ID: "mod/A", TimeLimit: &limit, Serialized: true},
		{ID: "mod/missing", Tags: []string{"x"}},
	}))
	require.NoError(t, err)

	one, _ := p.Find(types.NewID("mod", "A", "one"))
	two, _ := p.Find(types.NewID("mod", "A", "two"))
	assert.Equal(t, ActionSkip, one.Action)
	assert.Equal(t, ActionRun, two.Action)
	assert.True(t, two.Serialized)
	tl, ok := types.FindTrait[types.TimeLimitTrait](two.Traits)
	require.True(t, ok)
	assert.Equal(t, limit, tl.Limit)
}

func TestBuild_ConfigErrorsBeforeEvaluation(t *testing.T) {
	evaluated := false
	g := graphOf(test([]types.Trait{types.EnabledIf("x", func() bool { evaluated = true; return true })}, "A"))

	bad := types.DefaultConfiguration()
	bad.Repetition = types.Repeating(types.StopUntilIssueRecorded, 0)
	_, err := Build(context.Background(), g, All(), bad)
	assert.True(t, types.IsConfigError(err))

	_, err = Build(context.Background(), g, Selection{}, types.DefaultConfiguration())
	assert.True(t, types.IsConfigError(err))

	_, err = Build(context.Background(), g, Selection{IDs: []types.ID{types.NewID("mod", "nope")}}, types.DefaultConfiguration())
	assert.True(t, types.IsConfigError(err))

	assert.False(t, evaluated)
}

func TestParseSelection(t *testing.T) {
	sel, err := ParseSelection(nil, nil, []string{"slow"})
	require.NoError(t, err)
	assert.True(t, sel.All)

	sel, err = ParseSelection([]string{"mod/A"}, nil, nil)
	require.NoError(t, err)
	assert.False(t, sel.All)
	require.Len(t, sel.IDs, 1)

	_, err = ParseSelection([]string{"mod//x"}, nil, nil)
	assert.True(t, types.IsConfigError(err))

	_, err = ParseSelection(nil, []string{""}, nil)
	assert.True(t, types.IsConfigError(err))
}

func TestSelectionFromProfile(t *testing.T) {
	sel, overrides, err := SelectionFromProfile(types.Profile{
		ID:        "p",
		Include:   []string{"mod/A"},
		Overrides: []types.Override{{ID: "mod/A", Serialized: true}},
	})
	require.NoError(t, err)
	assert.Len(t, sel.IDs, 1)
	assert.Len(t, overrides, 1)
}

func TestStep_Cases(t *testing.T) {
	g := graphOf(registry.Record{
		Kind:       registry.KindTest,
		Module:     "mod",
		Names:      []string{"p"},
		Body:       noop,
		Parameters: []types.Parameter{{Name: "x"}, {Name: "y"}},
		Arguments:  []types.ArgumentCollection{types.Range(0, 3), types.Values("a", "b")},
	})
	p, err := Build(context.Background(), g, All(), types.DefaultConfiguration())
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)

	n := 0
	for c, err := range p.Steps[0].Cases(context.Background()) {
		require.NoError(t, err)
		require.NotNil(t, c)
		n++
	}
	assert.Equal(t, 6, n)
}

func TestBuild_RecordBelowTestIsNeverPlanned(t *testing.T) {
	g := graphOf(test(nil, "A"), test(nil, "A", "B", "C"))
	require.Len(t, g.Diagnostics(), 1)

	p, err := Build(context.Background(), g, All(), types.DefaultConfiguration())
	require.NoError(t, err)
	assert.Equal(t, []string{"mod/A"}, stepIDs(p))

	_, err = Build(context.Background(), g, Selection{IDs: []types.ID{types.NewID("mod", "A", "B", "C")}}, types.DefaultConfiguration())
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}
