package types

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Applicability is the set of node kinds a trait may be attached to.
type Applicability uint8

const (
	AppliesToTest Applicability = 1 << iota
	AppliesToSuite

	AppliesToAll = AppliesToTest | AppliesToSuite
)

// Allows reports whether a trait with this applicability may be attached to
// the given node.
func (a Applicability) Allows(t *Test) bool {
	if t.IsSuite() {
		return a&AppliesToSuite != 0
	}
	return a&AppliesToTest != 0
}

// TraitKey groups traits that conflict with each other. When several traits
// share a non-empty key only the one nearest to the test is effective. Traits
// with an empty key accumulate.
type TraitKey string

// Trait customises how a test or suite is planned and run.
type Trait interface {
	Key() TraitKey
	Applicability() Applicability
}

// ConditionTrait enables or disables a node. Every condition on the effective
// trait set must hold for the node to run.
type ConditionTrait struct {
	Reason string
	Check  func(ctx context.Context) (bool, error)
	Source SourceLocation
}

func (ConditionTrait) Key() TraitKey                { return "" }
func (ConditionTrait) Applicability() Applicability { return AppliesToAll }

// Evaluate runs the condition. A nil Check means unconditionally disabled.
func (c ConditionTrait) Evaluate(ctx context.Context) (bool, error) {
	if c.Check == nil {
		return false, nil
	}
	return c.Check(ctx)
}

// Enabled runs the node only when check reports true.
func Enabled(reason string, check func(ctx context.Context) (bool, error)) Trait {
	return ConditionTrait{Reason: reason, Check: check, Source: callerLocation(2)}
}

// EnabledIf is Enabled for a plain boolean predicate.
func EnabledIf(reason string, check func() bool) Trait {
	return ConditionTrait{
		Reason: reason,
		Check:  func(context.Context) (bool, error) { return check(), nil },
		Source: callerLocation(2),
	}
}

// Disabled unconditionally skips the node.
func Disabled(reason string) Trait {
	return ConditionTrait{Reason: reason, Source: callerLocation(2)}
}

// TagsTrait attaches tags. Tags are inherited by descendants.
type TagsTrait struct {
	Tags []string
}

func (TagsTrait) Key() TraitKey                { return "" }
func (TagsTrait) Applicability() Applicability { return AppliesToAll }

// Tags attaches the given tags.
func Tags(tags ...string) Trait {
	return TagsTrait{Tags: tags}
}

// TimeLimitTrait bounds how long each case may run.
type TimeLimitTrait struct {
	Limit time.Duration
}

func (TimeLimitTrait) Key() TraitKey                { return "timeLimit" }
func (TimeLimitTrait) Applicability() Applicability { return AppliesToAll }

// TimeLimit bounds each case of the node to d.
func TimeLimit(d time.Duration) Trait {
	return TimeLimitTrait{Limit: d}
}

// BugTrait references a tracked bug.
type BugTrait struct {
	URL   string
	ID    string
	Title string
}

func (BugTrait) Key() TraitKey                { return "" }
func (BugTrait) Applicability() Applicability { return AppliesToAll }

// Bug references a bug by URL.
func Bug(url, title string) Trait {
	return BugTrait{URL: url, Title: title}
}

// SerializedTrait forces the cases or children of a node to run one at a
// time in order.
type SerializedTrait struct{}

func (SerializedTrait) Key() TraitKey                { return "serialized" }
func (SerializedTrait) Applicability() Applicability { return AppliesToAll }

// Serialized returns the serialization trait.
func Serialized() Trait {
	return SerializedTrait{}
}

// PollingConfirmationTrait supplies defaults for Confirm calls with a
// matching stop condition. Zero durations leave the value of an enclosing
// layer, or the default, in place. The trait is unkeyed so suite and test
// layers accumulate and Confirm resolves each duration separately.
type PollingConfirmationTrait struct {
	Until  PollingStop
	Within time.Duration
	Every  time.Duration
}

func (PollingConfirmationTrait) Key() TraitKey                { return "" }
func (PollingConfirmationTrait) Applicability() Applicability { return AppliesToAll }

// PollingDefaults configures Confirm defaults for one stop condition.
func PollingDefaults(until PollingStop, within, every time.Duration) Trait {
	return PollingConfirmationTrait{Until: until, Within: within, Every: every}
}

// CaseFilterTrait is evaluated once per case. A case runs only if every
// filter in the effective trait set accepts it.
type CaseFilterTrait struct {
	Filter func(tc *Case) bool
}

func (CaseFilterTrait) Key() TraitKey                { return "" }
func (CaseFilterTrait) Applicability() Applicability { return AppliesToAll }

// FilterCases keeps only the cases accepted by filter.
func FilterCases(filter func(tc *Case) bool) Trait {
	return CaseFilterTrait{Filter: filter}
}

// ScopeTrait hooks into step and case execution. Prepare runs once per step
// before any case is generated; a failure turns the step into a skip. Around
// wraps each case, so it can set up and tear down state. Either may be nil.
type ScopeTrait struct {
	Name    string
	Prepare func(ctx context.Context, test *Test) error
	Around  func(ctx context.Context, test *Test, tc *Case, run func(context.Context) error) error
}

func (ScopeTrait) Key() TraitKey { return "" }

// Applicability restricts scopes with an Around hook to tests.
func (s ScopeTrait) Applicability() Applicability {
	if s.Around != nil {
		return AppliesToTest
	}
	return AppliesToAll
}

// CommentTrait attaches a free-form note.
type CommentTrait struct {
	Text string
}

func (CommentTrait) Key() TraitKey                { return "" }
func (CommentTrait) Applicability() Applicability { return AppliesToAll }

// Comment attaches text to the node.
func Comment(text string) Trait {
	return CommentTrait{Text: text}
}

// FilterApplicable splits traits into the ones that may be attached to t
// and the rejected ones.
func FilterApplicable(t *Test, traits []Trait) (kept, rejected []Trait) {
	for _, tr := range traits {
		if tr == nil {
			continue
		}
		if tr.Applicability().Allows(t) {
			kept = append(kept, tr)
		} else {
			rejected = append(rejected, tr)
		}
	}
	return kept, rejected
}

// MergeTraits combines trait layers ordered from outermost to innermost.
// Keyed traits from a later layer replace earlier ones with the same key;
// unkeyed traits accumulate in order.
func MergeTraits(layers ...[]Trait) []Trait {
	var merged []Trait
	for _, layer := range layers {
		for _, tr := range layer {
			if tr == nil {
				continue
			}
			if k := tr.Key(); k != "" {
				merged = slices.DeleteFunc(merged, func(existing Trait) bool {
					return existing.Key() == k
				})
			}
			merged = append(merged, tr)
		}
	}
	return merged
}

// FindTrait returns the last trait of type T in traits.
func FindTrait[T Trait](traits []Trait) (T, bool) {
	for i := len(traits) - 1; i >= 0; i-- {
		if tr, ok := traits[i].(T); ok {
			return tr, true
		}
	}
	var zero T
	return zero, false
}

// TraitsOf returns every trait of type T in order.
func TraitsOf[T Trait](traits []Trait) []T {
	var out []T
	for _, tr := range traits {
		if v, ok := tr.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// TagsOf collects the tags of every TagsTrait, without duplicates.
func TagsOf(traits []Trait) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, tt := range TraitsOf[TagsTrait](traits) {
		for _, tag := range tt.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// IsSerialized reports whether the trait set contains the serialization trait.
func IsSerialized(traits []Trait) bool {
	_, ok := FindTrait[SerializedTrait](traits)
	return ok
}

// DescribeTrait renders a trait for diagnostics.
func DescribeTrait(tr Trait) string {
	switch v := tr.(type) {
	case ConditionTrait:
		return fmt.Sprintf("condition(%q)", v.Reason)
	case TagsTrait:
		return fmt.Sprintf("tags%v", v.Tags)
	case TimeLimitTrait:
		return fmt.Sprintf("timeLimit(%s)", v.Limit)
	case BugTrait:
		return fmt.Sprintf("bug(%s)", v.URL)
	case SerializedTrait:
		return "serialized"
	case PollingConfirmationTrait:
		return fmt.Sprintf("polling(%s, within %s, every %s)", v.Until, v.Within, v.Every)
	case CaseFilterTrait:
		return "caseFilter"
	case ScopeTrait:
		return fmt.Sprintf("scope(%s)", v.Name)
	case CommentTrait:
		return fmt.Sprintf("comment(%q)", v.Text)
	default:
		return fmt.Sprintf("%T", tr)
	}
}
