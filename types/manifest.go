package types

import (
	"fmt"
	"time"
)

// Manifest is the YAML document that names run profiles.
type Manifest struct {
	Profiles []Profile `yaml:"profiles"`
}

// Profile selects part of the test graph and adjusts traits for it.
type Profile struct {
	ID          string     `yaml:"id"`
	Description string     `yaml:"description,omitempty"`
	Inherits    []string   `yaml:"inherits,omitempty"`
	Include     []string   `yaml:"include,omitempty"`
	Tags        []string   `yaml:"tags,omitempty"`
	ExcludeTags []string   `yaml:"exclude_tags,omitempty"`
	Overrides   []Override `yaml:"overrides,omitempty"`
}

// Override adds traits to one node of the graph during planning.
type Override struct {
	ID         string         `yaml:"id"`
	Tags       []string       `yaml:"tags,omitempty"`
	Disabled   string         `yaml:"disabled,omitempty"`
	TimeLimit  *time.Duration `yaml:"time_limit,omitempty"`
	Serialized bool           `yaml:"serialized,omitempty"`
	Bug        string         `yaml:"bug,omitempty"`
}

// Traits converts the override into traits.
func (o Override) Traits() []Trait {
	var traits []Trait
	if len(o.Tags) > 0 {
		traits = append(traits, TagsTrait{Tags: o.Tags})
	}
	if o.Disabled != "" {
		traits = append(traits, ConditionTrait{Reason: o.Disabled})
	}
	if o.TimeLimit != nil {
		traits = append(traits, TimeLimitTrait{Limit: *o.TimeLimit})
	}
	if o.Serialized {
		traits = append(traits, SerializedTrait{})
	}
	if o.Bug != "" {
		traits = append(traits, BugTrait{URL: o.Bug})
	}
	return traits
}

// Profile returns the profile with the given ID.
func (m *Manifest) Profile(id string) (Profile, bool) {
	for _, p := range m.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// ResolveInherited merges the selections and overrides of the profiles p
// inherits from, recursively. The child's own entries take precedence:
// includes and tags are deduplicated, and an override from an ancestor is
// dropped when the child already overrides the same ID. More distant
// ancestors are processed first.
func (p *Profile) ResolveInherited(profiles map[string]Profile) error {
	processed := make(map[string]bool)
	return p.resolveInheritedRecursive(profiles, processed)
}

func (p *Profile) resolveInheritedRecursive(profiles map[string]Profile, processed map[string]bool) error {
	if len(p.Inherits) == 0 {
		return nil
	}

	include := newOrderedSet(p.Include...)
	tags := newOrderedSet(p.Tags...)
	exclude := newOrderedSet(p.ExcludeTags...)
	overrides := append([]Override(nil), p.Overrides...)
	overridden := make(map[string]bool)
	for _, o := range p.Overrides {
		overridden[o.ID] = true
	}

	for _, inheritFrom := range p.Inherits {
		if processed[inheritFrom] {
			return fmt.Errorf("circular inheritance detected for profile %q", inheritFrom)
		}
		parent, ok := profiles[inheritFrom]
		if !ok {
			return fmt.Errorf("profile %q inherits from non-existent profile %q", p.ID, inheritFrom)
		}

		processed[inheritFrom] = true
		if err := parent.resolveInheritedRecursive(profiles, processed); err != nil {
			return fmt.Errorf("resolving inheritance for parent profile %q: %w", inheritFrom, err)
		}

		include.add(parent.Include...)
		tags.add(parent.Tags...)
		exclude.add(parent.ExcludeTags...)
		for _, o := range parent.Overrides {
			if !overridden[o.ID] {
				overrides = append(overrides, o)
				overridden[o.ID] = true
			}
		}

		processed[inheritFrom] = false
	}

	p.Include = include.items
	p.Tags = tags.items
	p.ExcludeTags = exclude.items
	p.Overrides = overrides
	return nil
}

type orderedSet struct {
	items []string
	seen  map[string]bool
}

func newOrderedSet(items ...string) *orderedSet {
	s := &orderedSet{seen: make(map[string]bool)}
	s.add(items...)
	return s
}

func (s *orderedSet) add(items ...string) {
	for _, it := range items {
		if !s.seen[it] {
			s.seen[it] = true
			s.items = append(s.items, it)
		}
	}
}
