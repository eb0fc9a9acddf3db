package types

import (
	"fmt"
	"iter"
	"reflect"
	"strings"
)

// Body is the executable part of a test. args holds the current case's
// argument values in parameter order; it is empty for non-parameterized tests.
type Body func(t *T, args []any) error

// Parameter describes one formal parameter of a parameterized test.
type Parameter struct {
	Name string
	Type reflect.Type
}

// TypeName renders the declared type, or "any" when it was not declared.
func (p Parameter) TypeName() string {
	if p.Type == nil {
		return "any"
	}
	return p.Type.String()
}

// ArgumentCollection lazily produces the values for one parameter. Each call
// returns a fresh sequence so the collection can be enumerated more than once.
// A non-nil error ends the enumeration.
type ArgumentCollection func() iter.Seq2[any, error]

// Values is a collection over a fixed list of values.
func Values(values ...any) ArgumentCollection {
	return func() iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for _, v := range values {
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}

// Slice is a collection over the elements of s.
func Slice[S ~[]E, E any](s S) ArgumentCollection {
	return func() iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for _, v := range s {
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}

// Range is a collection over the integers in [lo, hi).
func Range(lo, hi int) ArgumentCollection {
	return func() iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for i := lo; i < hi; i++ {
				if !yield(i, nil) {
					return
				}
			}
		}
	}
}

// Generated adapts a producer function that may fail part way through.
// Values yielded before the failure are kept.
func Generated(produce func(yield func(any) bool) error) ArgumentCollection {
	return func() iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			stopped := false
			err := produce(func(v any) bool {
				if !yield(v, nil) {
					stopped = true
					return false
				}
				return true
			})
			if err != nil && !stopped {
				yield(nil, err)
			}
		}
	}
}

// Test is a node of the test graph. A node without a body is a suite: it
// only groups children and hosts traits that propagate to them.
type Test struct {
	ID          ID
	DisplayName string
	Parameters  []Parameter
	Arguments   []ArgumentCollection
	Traits      []Trait
	Body        Body
	Source      SourceLocation

	// Implicit marks suites synthesised for missing ancestors.
	Implicit bool
}

// IsSuite reports whether the node is a grouping node.
func (t *Test) IsSuite() bool {
	return t.Body == nil
}

// IsParameterized reports whether the test takes arguments.
func (t *Test) IsParameterized() bool {
	return len(t.Parameters) > 0
}

// Name returns the display name, falling back to the last ID component.
func (t *Test) Name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.ID.Name()
}

// Tags returns the tags declared directly on this node.
func (t *Test) Tags() []string {
	return TagsOf(t.Traits)
}

// Validate checks the structural rules a node must satisfy to be part of a
// graph.
func (t *Test) Validate() error {
	if t.ID.Module == "" {
		return fmt.Errorf("test has no module")
	}
	for i, n := range t.ID.Names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("test %s has an empty name component at index %d", t.ID, i)
		}
	}
	if len(t.ID.Names) == 0 {
		return fmt.Errorf("node in module %s has no name", t.ID.Module)
	}
	if t.IsSuite() {
		if len(t.Parameters) > 0 || len(t.Arguments) > 0 {
			return fmt.Errorf("suite %s cannot take arguments", t.ID)
		}
		return nil
	}
	if len(t.Parameters) != len(t.Arguments) {
		return fmt.Errorf("test %s declares %d parameters but %d argument collections",
			t.ID, len(t.Parameters), len(t.Arguments))
	}
	for i, c := range t.Arguments {
		if c == nil {
			return fmt.Errorf("test %s has a nil argument collection for parameter %q", t.ID, t.Parameters[i].Name)
		}
	}
	return nil
}

// WithTraits returns a shallow copy of t whose trait list is extended by
// extra. The original node is left untouched.
func (t *Test) WithTraits(extra ...Trait) *Test {
	if len(extra) == 0 {
		return t
	}
	cp := *t
	cp.Traits = make([]Trait, 0, len(t.Traits)+len(extra))
	cp.Traits = append(cp.Traits, t.Traits...)
	cp.Traits = append(cp.Traits, extra...)
	return &cp
}
