package plan

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/op-testengine/types"
)

// Selection chooses which tests of the graph are planned. The inclusion
// criteria are combined with OR: a test is included when All is set, when
// one of IDs names it or an enclosing suite, when it carries one of Tags, or
// when Predicate accepts it. ExcludeTags then removes tests. A suite is
// planned when at least one of its descendants is.
type Selection struct {
	All         bool
	IDs         []types.ID
	Tags        []string
	ExcludeTags []string
	Predicate   func(test *types.Test) bool
}

// All selects every test.
func All() Selection {
	return Selection{All: true}
}

// ParseSelection builds a selection from command-line style strings. With
// no IDs and no tags, everything is selected.
func ParseSelection(ids, tags, excludeTags []string) (Selection, error) {
	sel := Selection{Tags: tags, ExcludeTags: excludeTags}
	for _, s := range ids {
		id, err := types.ParseID(strings.TrimSpace(s))
		if err != nil {
			return Selection{}, &types.ConfigError{Field: "selection.ids", Reason: err.Error()}
		}
		sel.IDs = append(sel.IDs, id)
	}
	sel.All = len(sel.IDs) == 0 && len(sel.Tags) == 0
	if err := sel.Validate(); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

// SelectionFromProfile turns a resolved manifest profile into a selection
// and the trait overrides it carries.
func SelectionFromProfile(p types.Profile) (Selection, []types.Override, error) {
	sel, err := ParseSelection(p.Include, p.Tags, p.ExcludeTags)
	if err != nil {
		return Selection{}, nil, fmt.Errorf("profile %q: %w", p.ID, err)
	}
	return sel, p.Overrides, nil
}

// Validate rejects selections that cannot match anything meaningful.
func (s Selection) Validate() error {
	if !s.All && len(s.IDs) == 0 && len(s.Tags) == 0 && s.Predicate == nil {
		return &types.ConfigError{Field: "selection", Reason: "is empty; use All to select every test"}
	}
	for _, tag := range slices.Concat(s.Tags, s.ExcludeTags) {
		if strings.TrimSpace(tag) == "" {
			return &types.ConfigError{Field: "selection.tags", Reason: "contains an empty tag"}
		}
	}
	for _, id := range s.IDs {
		if id.IsZero() {
			return &types.ConfigError{Field: "selection.ids", Reason: "contains an empty ID"}
		}
	}
	return nil
}

// includes reports whether a test with the given effective tags is selected.
func (s Selection) includes(test *types.Test, tags []string) bool {
	for _, ex := range s.ExcludeTags {
		if slices.Contains(tags, ex) {
			return false
		}
	}
	if s.All {
		return true
	}
	for _, id := range s.IDs {
		if id.Equal(test.ID) || id.IsAncestorOf(test.ID) || id.Equal(withoutSource(test.ID)) {
			return true
		}
	}
	for _, tag := range s.Tags {
		if slices.Contains(tags, tag) {
			return true
		}
	}
	return s.Predicate != nil && s.Predicate(test)
}

func withoutSource(id types.ID) types.ID {
	id.Source = nil
	return id
}
